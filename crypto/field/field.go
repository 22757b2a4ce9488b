// Package field implements the arithmetic over the BN254 scalar field used by
// the RLN circuits, and the Shamir recovery of an identity secret from two
// proof shares.
package field

import (
	"errors"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
)

// ErrDivisionByZero is returned when dividing by the zero element. During
// secret recovery it means both shares carry the same signal hash.
var ErrDivisionByZero = errors.New("division by zero in the scalar field")

// ErrNotInField is returned for values that are not the canonical
// representation of a field element, that is, outside [0, q).
var ErrNotInField = errors.New("value is not a canonical field element")

// Modulus returns a copy of the BN254 scalar field prime.
func Modulus() *big.Int {
	return fr.Modulus()
}

// Normalize returns the canonical representative of x in the field. Negative
// values are mapped using the euclidean modulus.
func Normalize(x *big.Int) *big.Int {
	q := fr.Modulus()
	if x.Sign() >= 0 && x.Cmp(q) < 0 {
		return new(big.Int).Set(x)
	}
	return new(big.Int).Mod(x, q)
}

// IsInField reports whether x is already a canonical field element.
func IsInField(x *big.Int) bool {
	return x != nil && x.Sign() >= 0 && x.Cmp(fr.Modulus()) < 0
}

func element(x *big.Int) fr.Element {
	var e fr.Element
	e.SetBigInt(Normalize(x))
	return e
}

func toBig(e *fr.Element) *big.Int {
	return e.BigInt(new(big.Int))
}

// Add returns a + b mod q.
func Add(a, b *big.Int) *big.Int {
	x, y := element(a), element(b)
	x.Add(&x, &y)
	return toBig(&x)
}

// Sub returns a - b mod q.
func Sub(a, b *big.Int) *big.Int {
	x, y := element(a), element(b)
	x.Sub(&x, &y)
	return toBig(&x)
}

// Mul returns a * b mod q.
func Mul(a, b *big.Int) *big.Int {
	x, y := element(a), element(b)
	x.Mul(&x, &y)
	return toBig(&x)
}

// Div returns a * b^-1 mod q, or ErrDivisionByZero if b is zero in the field.
func Div(a, b *big.Int) (*big.Int, error) {
	x, y := element(a), element(b)
	if y.IsZero() {
		return nil, ErrDivisionByZero
	}
	x.Div(&x, &y)
	return toBig(&x), nil
}

// Recover returns the constant term of the line that passes through the
// points (x1, y1) and (x2, y2), that is, the identity secret that produced
// both shares. The signal hashes are assumed collision free, so two shares
// with the same x are reported as ErrDivisionByZero.
func Recover(x1, y1, x2, y2 *big.Int) (*big.Int, error) {
	slope, err := Div(Sub(y2, y1), Sub(x2, x1))
	if err != nil {
		return nil, err
	}
	return Sub(y1, Mul(slope, x1)), nil
}
