package web3

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/vocdoni/rln-sandbox/log"
	"github.com/vocdoni/rln-sandbox/types"
	"github.com/vocdoni/rln-sandbox/web3/rpc"
)

const (
	web3QueryTimeout = 10 * time.Second
	defaultGasLimit  = 10000000
)

// Contracts contains the bindings to the deployed RLN contract.
type Contracts struct {
	ChainID    uint64
	RLNAddress common.Address
	TxTimeout  time.Duration

	rln      *bind.BoundContract
	web3pool *rpc.Web3Pool
	cli      *rpc.Client
	privKey  *ecdsa.PrivateKey
	address  common.Address
}

// NewContracts creates a new Contracts instance with the given web3 endpoint.
func NewContracts(rlnAddress common.Address, web3rpc string) (*Contracts, error) {
	w3pool := rpc.NewWeb3Pool()
	chainID, err := w3pool.AddEndpoint(web3rpc)
	if err != nil {
		return nil, fmt.Errorf("failed to add web3 endpoint: %w", err)
	}
	cli, err := w3pool.Client(chainID)
	if err != nil {
		return nil, fmt.Errorf("failed to get client: %w", err)
	}
	return &Contracts{
		ChainID:    chainID,
		RLNAddress: rlnAddress,
		TxTimeout:  types.DefaultTxTimeout,
		rln:        bind.NewBoundContract(rlnAddress, rlnABI, cli, cli, cli),
		web3pool:   w3pool,
		cli:        cli,
	}, nil
}

// AddWeb3Endpoint adds a new web3 endpoint to the pool.
func (c *Contracts) AddWeb3Endpoint(web3rpc string) error {
	_, err := c.web3pool.AddEndpoint(web3rpc)
	return err
}

// SetAccountPrivateKey sets the private key to be used for signing transactions.
func (c *Contracts) SetAccountPrivateKey(hexPrivKey string) error {
	var err error
	c.privKey, err = crypto.HexToECDSA(hexPrivKey)
	if err != nil {
		return fmt.Errorf("failed to parse private key: %w", err)
	}
	c.address = crypto.PubkeyToAddress(c.privKey.PublicKey)
	return nil
}

// AccountAddress returns the address of the account used to sign transactions.
func (c *Contracts) AccountAddress() common.Address {
	return c.address
}

// BlockNumber returns the current block number.
func (c *Contracts) BlockNumber(ctx context.Context) (uint64, error) {
	return c.cli.BlockNumber(ctx)
}

// authTransactOpts helper method creates the transact options with the private
// key configured. It sets the nonce, gas price, and gas limit. If something
// goes wrong creating the signer, getting the nonce, or getting the gas price,
// it returns an error.
func (c *Contracts) authTransactOpts(ctx context.Context) (*bind.TransactOpts, error) {
	if c.privKey == nil {
		return nil, fmt.Errorf("no private key set")
	}
	bChainID := new(big.Int).SetUint64(c.ChainID)
	auth, err := bind.NewKeyedTransactorWithChainID(c.privKey, bChainID)
	if err != nil {
		return nil, fmt.Errorf("failed to create transactor: %w", err)
	}
	// create the context with a timeout
	ctx, cancel := context.WithTimeout(ctx, web3QueryTimeout)
	defer cancel()
	// set the nonce
	log.Debugw("getting nonce", "address", c.address.Hex())
	nonce, err := c.cli.PendingNonceAt(ctx, c.address)
	if err != nil {
		return nil, fmt.Errorf("failed to get nonce: %w", err)
	}
	auth.Nonce = new(big.Int).SetUint64(nonce)
	// set the gas tip cap
	if auth.GasTipCap, err = c.cli.SuggestGasTipCap(ctx); err != nil {
		return nil, fmt.Errorf("failed to get gas tip cap: %w", err)
	}
	// set the gas limit
	auth.GasLimit = defaultGasLimit
	return auth, nil
}

// transact sends the transaction and waits until it is mined. A reverted
// transaction or a confirmation timeout are returned as errors.
func (c *Contracts) transact(ctx context.Context, contract *bind.BoundContract, method string, params ...any) error {
	opts, err := c.authTransactOpts(ctx)
	if err != nil {
		return fmt.Errorf("failed to create transact options: %w", err)
	}
	opts.Context = ctx
	tx, err := contract.Transact(opts, method, params...)
	if err != nil {
		return fmt.Errorf("failed to send %s: %w", method, err)
	}
	log.Debugw("transaction sent", "method", method, "hash", tx.Hash().Hex())
	waitCtx, cancel := context.WithTimeout(ctx, c.TxTimeout)
	defer cancel()
	receipt, err := bind.WaitMined(waitCtx, c.cli, tx)
	if err != nil {
		return fmt.Errorf("failed to wait for %s %s: %w", method, tx.Hash().Hex(), err)
	}
	if receipt.Status != gethtypes.ReceiptStatusSuccessful {
		return fmt.Errorf("%s transaction %s reverted", method, tx.Hash().Hex())
	}
	log.Debugw("transaction mined", "method", method, "hash", tx.Hash().Hex(), "block", receipt.BlockNumber.Uint64())
	return nil
}

// call runs a view method of the contract and returns its outputs.
func (c *Contracts) call(ctx context.Context, method string, params ...any) ([]any, error) {
	ctx, cancel := context.WithTimeout(ctx, web3QueryTimeout)
	defer cancel()
	var out []any
	if err := c.rln.Call(&bind.CallOpts{Context: ctx}, &out, method, params...); err != nil {
		return nil, fmt.Errorf("failed to call %s: %w", method, err)
	}
	return out, nil
}
