package rpc

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	gethrpc "github.com/ethereum/go-ethereum/rpc"
)

// Client struct implements bind.ContractBackend interface for a web3 pool
// with an specific chainID. Every call uses the next available endpoint of
// the chain. Calls are never retried: if the endpoint fails, it is disabled
// and the error is returned.
type Client struct {
	w3p     *Web3Pool
	chainID uint64
}

// ChainID returns the chainID of the client.
func (c *Client) ChainID() uint64 {
	return c.chainID
}

// call runs f with the next endpoint of the chain. Endpoint failures disable
// it, while errors reported by the node itself (reverts, not found) do not.
func call[T any](c *Client, f func(*ethclient.Client) (T, error)) (T, error) {
	var zero T
	endpoint, err := c.w3p.Endpoint(c.chainID)
	if err != nil {
		return zero, fmt.Errorf("error getting endpoint for chainID %d: %w", c.chainID, err)
	}
	res, err := f(endpoint.client)
	if err != nil {
		var rpcErr gethrpc.Error
		if !errors.Is(err, ethereum.NotFound) && !errors.As(err, &rpcErr) {
			c.w3p.DisableEndpoint(c.chainID, endpoint.URI)
		}
		return zero, err
	}
	return res, nil
}

// CodeAt implements bind.ContractCaller interface.
func (c *Client) CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error) {
	return call(c, func(cli *ethclient.Client) ([]byte, error) {
		return cli.CodeAt(ctx, account, blockNumber)
	})
}

// CallContract implements bind.ContractCaller interface.
func (c *Client) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	return call(c, func(cli *ethclient.Client) ([]byte, error) {
		return cli.CallContract(ctx, msg, blockNumber)
	})
}

// HeaderByNumber implements bind.ContractTransactor interface.
func (c *Client) HeaderByNumber(ctx context.Context, number *big.Int) (*gethtypes.Header, error) {
	return call(c, func(cli *ethclient.Client) (*gethtypes.Header, error) {
		return cli.HeaderByNumber(ctx, number)
	})
}

// PendingCodeAt implements bind.ContractTransactor interface.
func (c *Client) PendingCodeAt(ctx context.Context, account common.Address) ([]byte, error) {
	return call(c, func(cli *ethclient.Client) ([]byte, error) {
		return cli.PendingCodeAt(ctx, account)
	})
}

// PendingNonceAt implements bind.ContractTransactor interface.
func (c *Client) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	return call(c, func(cli *ethclient.Client) (uint64, error) {
		return cli.PendingNonceAt(ctx, account)
	})
}

// SuggestGasPrice implements bind.ContractTransactor interface.
func (c *Client) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return call(c, func(cli *ethclient.Client) (*big.Int, error) {
		return cli.SuggestGasPrice(ctx)
	})
}

// SuggestGasTipCap implements bind.ContractTransactor interface.
func (c *Client) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	return call(c, func(cli *ethclient.Client) (*big.Int, error) {
		return cli.SuggestGasTipCap(ctx)
	})
}

// EstimateGas implements bind.ContractTransactor interface.
func (c *Client) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	return call(c, func(cli *ethclient.Client) (uint64, error) {
		return cli.EstimateGas(ctx, msg)
	})
}

// SendTransaction implements bind.ContractTransactor interface.
func (c *Client) SendTransaction(ctx context.Context, tx *gethtypes.Transaction) error {
	_, err := call(c, func(cli *ethclient.Client) (struct{}, error) {
		return struct{}{}, cli.SendTransaction(ctx, tx)
	})
	return err
}

// FilterLogs implements bind.ContractFilterer interface.
func (c *Client) FilterLogs(ctx context.Context, query ethereum.FilterQuery) ([]gethtypes.Log, error) {
	return call(c, func(cli *ethclient.Client) ([]gethtypes.Log, error) {
		return cli.FilterLogs(ctx, query)
	})
}

// SubscribeFilterLogs implements bind.ContractFilterer interface.
func (c *Client) SubscribeFilterLogs(ctx context.Context, query ethereum.FilterQuery,
	ch chan<- gethtypes.Log,
) (ethereum.Subscription, error) {
	return call(c, func(cli *ethclient.Client) (ethereum.Subscription, error) {
		return cli.SubscribeFilterLogs(ctx, query, ch)
	})
}

// TransactionReceipt implements bind.DeployBackend interface, used to wait
// for the transactions to be mined.
func (c *Client) TransactionReceipt(ctx context.Context, txHash common.Hash) (*gethtypes.Receipt, error) {
	return call(c, func(cli *ethclient.Client) (*gethtypes.Receipt, error) {
		return cli.TransactionReceipt(ctx, txHash)
	})
}

// BlockNumber returns the current block number of the chain.
func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	return call(c, func(cli *ethclient.Client) (uint64, error) {
		return cli.BlockNumber(ctx)
	})
}
