package rpc

import (
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/ethclient"
)

// Web3Endpoint struct contains all the required information about a web3
// provider based on its URI. It includes its chain ID, its URI, whether it
// is an archive node and the client to connect to it.
type Web3Endpoint struct {
	ChainID   uint64 `json:"chainId"`
	URI       string `json:"uri"`
	IsArchive bool   `json:"isArchive"`
	client    *ethclient.Client
}

// Web3Iterator struct is a pool of Web3Endpoint that allows to get the next
// available endpoint in a round-robin fashion. Disabled endpoints are skipped
// until every endpoint is disabled, then all of them are available again.
type Web3Iterator struct {
	mtx       sync.Mutex
	available []*Web3Endpoint
	disabled  []*Web3Endpoint
	next      int
}

// NewWeb3Iterator creates a new Web3Iterator with the endpoints provided.
func NewWeb3Iterator(endpoints ...*Web3Endpoint) *Web3Iterator {
	return &Web3Iterator{available: endpoints}
}

// Add adds new endpoints to the available list.
func (w3pp *Web3Iterator) Add(endpoint ...*Web3Endpoint) {
	w3pp.mtx.Lock()
	defer w3pp.mtx.Unlock()
	w3pp.available = append(w3pp.available, endpoint...)
}

// Available returns the number of available endpoints.
func (w3pp *Web3Iterator) Available() int {
	w3pp.mtx.Lock()
	defer w3pp.mtx.Unlock()
	return len(w3pp.available)
}

// Disabled returns the number of disabled endpoints.
func (w3pp *Web3Iterator) Disabled() int {
	w3pp.mtx.Lock()
	defer w3pp.mtx.Unlock()
	return len(w3pp.disabled)
}

// Next returns the next available endpoint. If every endpoint is disabled,
// they are all enabled again before picking one.
func (w3pp *Web3Iterator) Next() (*Web3Endpoint, error) {
	w3pp.mtx.Lock()
	defer w3pp.mtx.Unlock()
	if len(w3pp.available) == 0 {
		w3pp.available, w3pp.disabled = w3pp.disabled, nil
		w3pp.next = 0
	}
	if len(w3pp.available) == 0 {
		return nil, fmt.Errorf("no endpoints available")
	}
	if w3pp.next >= len(w3pp.available) {
		w3pp.next = 0
	}
	endpoint := w3pp.available[w3pp.next]
	w3pp.next++
	return endpoint, nil
}

// Disable moves the endpoint with the URI provided to the disabled list.
func (w3pp *Web3Iterator) Disable(uri string) {
	w3pp.mtx.Lock()
	defer w3pp.mtx.Unlock()
	for i, e := range w3pp.available {
		if e.URI == uri {
			w3pp.available = append(w3pp.available[:i], w3pp.available[i+1:]...)
			w3pp.disabled = append(w3pp.disabled, e)
			return
		}
	}
}

// Del removes the endpoint with the URI provided and closes its client.
func (w3pp *Web3Iterator) Del(uri string) {
	w3pp.mtx.Lock()
	defer w3pp.mtx.Unlock()
	remove := func(list []*Web3Endpoint) []*Web3Endpoint {
		res := list[:0]
		for _, e := range list {
			if e.URI == uri {
				if e.client != nil {
					e.client.Close()
				}
				continue
			}
			res = append(res, e)
		}
		return res
	}
	w3pp.available = remove(w3pp.available)
	w3pp.disabled = remove(w3pp.disabled)
}
