package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/vocdoni/rln-sandbox/log"
)

// Syncer is implemented by the components that catch up with the membership
// events of the chain, such as rln.RLN and registry.LedgerRegistry.
type Syncer interface {
	Sync(ctx context.Context) error
}

// RegistryMonitor represents a service that periodically synchronizes a
// membership registry with the chain.
type RegistryMonitor struct {
	syncer   Syncer
	interval time.Duration
	mu       sync.Mutex
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewRegistryMonitor creates a new RegistryMonitor service.
func NewRegistryMonitor(syncer Syncer, interval time.Duration) *RegistryMonitor {
	return &RegistryMonitor{
		syncer:   syncer,
		interval: interval,
	}
}

// Start synchronizes the registry once and then keeps doing it every
// interval. It returns an error if the service is already running or if the
// first synchronization fails.
func (rm *RegistryMonitor) Start(ctx context.Context) error {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	if rm.cancel != nil {
		return fmt.Errorf("service already running")
	}
	if err := rm.syncer.Sync(ctx); err != nil {
		return fmt.Errorf("failed to sync registry: %w", err)
	}

	ctx, rm.cancel = context.WithCancel(ctx)
	rm.done = make(chan struct{})
	go rm.monitor(ctx, rm.done)
	return nil
}

// Stop halts the monitoring service and waits for the running
// synchronization, if any, to finish.
func (rm *RegistryMonitor) Stop() {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	if rm.cancel != nil {
		rm.cancel()
		<-rm.done
		rm.cancel = nil
	}
}

func (rm *RegistryMonitor) monitor(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(rm.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := rm.syncer.Sync(ctx); err != nil {
				if ctx.Err() != nil {
					return
				}
				log.Warnw("failed to sync registry", "error", err.Error())
			}
		}
	}
}
