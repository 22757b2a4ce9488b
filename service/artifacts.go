package service

import (
	"context"
	"time"

	"github.com/vocdoni/rln-sandbox/circuits"
	"golang.org/x/sync/errgroup"
)

// ResolveArtifacts resolves and loads the RLN artifacts of the tree depth and
// the withdraw artifacts concurrently.
func ResolveArtifacts(timeout time.Duration, rlnConf, withdrawConf *circuits.ArtifactsConfig, depth int,
) (*circuits.CircuitArtifacts, *circuits.CircuitArtifacts, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)

	var rlnArtifacts, withdrawArtifacts *circuits.CircuitArtifacts
	g.Go(func() error {
		var err error
		rlnArtifacts, err = circuits.ResolveRLNArtifacts(ctx, rlnConf, depth)
		return err
	})
	g.Go(func() error {
		var err error
		withdrawArtifacts, err = circuits.ResolveWithdrawArtifacts(ctx, withdrawConf)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return rlnArtifacts, withdrawArtifacts, nil
}
