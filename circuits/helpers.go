package circuits

import (
	"fmt"
	"math/big"
)

// BigIntArrayToN pads the big.Int array to n elements, if needed,
// with zeros.
func BigIntArrayToN(arr []*big.Int, n int) []*big.Int {
	bigArr := make([]*big.Int, n)
	for i := 0; i < n; i++ {
		if i < len(arr) {
			bigArr[i] = arr[i]
		} else {
			bigArr[i] = big.NewInt(0)
		}
	}
	return bigArr
}

// BigIntArrayToStringArray converts the big.Int array to a string array.
func BigIntArrayToStringArray(arr []*big.Int, n int) []string {
	strArr := []string{}
	for _, b := range BigIntArrayToN(arr, n) {
		strArr = append(strArr, b.String())
	}
	return strArr
}

// StringArrayToBigIntArray parses an array of decimal strings, as snarkjs
// encodes public signals.
func StringArrayToBigIntArray(arr []string) ([]*big.Int, error) {
	res := make([]*big.Int, len(arr))
	for i, s := range arr {
		v, ok := new(big.Int).SetString(s, 10)
		if !ok {
			return nil, fmt.Errorf("invalid decimal value at position %d: %q", i, s)
		}
		res[i] = v
	}
	return res, nil
}

// inputBigInt reads a decimal string input from a circom inputs map.
func inputBigInt(inputs map[string]any, key string) (*big.Int, error) {
	raw, ok := inputs[key]
	if !ok {
		return nil, fmt.Errorf("missing input %q", key)
	}
	s, ok := raw.(string)
	if !ok {
		return nil, fmt.Errorf("input %q is not a decimal string", key)
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("input %q is not a decimal string", key)
	}
	return v, nil
}
