package experiment

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// RunParallel runs every runner concurrently. The first failure cancels the others
// and is returned.
func RunParallel(ctx context.Context, runners ...*Runner) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, r := range runners {
		g.Go(func() error {
			return r.Run(ctx)
		})
	}
	return g.Wait()
}
