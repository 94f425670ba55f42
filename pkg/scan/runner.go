package scan

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/defenseunicorns/uds-preflight-scan/internal/metrics"
	"github.com/defenseunicorns/uds-preflight-scan/pkg/types"
)

// ImageScanner scans a single image.
type ImageScanner interface {
	ScanImage(ctx context.Context, target types.ImageTarget) *types.ImageScanResult
}

// Runner scans a list of images with bounded parallelism.
type Runner struct {
	scanner  ImageScanner
	onResult func(*types.ImageScanResult)
	parallel int
	mu       sync.Mutex
}

// NewRunner creates a Runner executing at most parallel scans at a time.
// onResult, when not nil, is called once per finished image; calls are serialized.
func NewRunner(scanner ImageScanner, parallel int, onResult func(*types.ImageScanResult)) *Runner {
	if parallel < 1 {
		parallel = 1
	}
	return &Runner{scanner: scanner, parallel: parallel, onResult: onResult}
}

// Run scans every target and returns the results in the order of targets.
// A failing image never stops the others. Each result is recorded in the
// metrics collector carried by ctx.
func (r *Runner) Run(ctx context.Context, targets []types.ImageTarget) []*types.ImageScanResult {
	results := make([]*types.ImageScanResult, len(targets))
	collector := metrics.FromContext(ctx, metrics.Namespace)

	var g errgroup.Group
	g.SetLimit(r.parallel)
	for i, target := range targets {
		g.Go(func() error {
			res := r.scanner.ScanImage(ctx, target)
			results[i] = res
			r.mu.Lock()
			collector.ObserveImage(res)
			if r.onResult != nil {
				r.onResult(res)
			}
			r.mu.Unlock()
			return nil
		})
	}
	_ = g.Wait() //nolint:errcheck

	return results
}
