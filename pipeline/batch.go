package pipeline

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/nilayparikh/loanflow/loan"
)

// defaultBatchConcurrency bounds fan-out when the caller passes no
// explicit limit.
const defaultBatchConcurrency = 4

// BatchItem pairs one application with its run outcome. Err is set when
// the run failed for infrastructure reasons; business rejections come
// back as a Result like any other run.
type BatchItem struct {
	Application *loan.Application `json:"application"`
	Result      *Result           `json:"result,omitempty"`
	Err         error             `json:"-"`
}

// ProcessBatch fans the applications out over at most concurrency
// parallel runs. Runs are isolated: a failed application never cancels
// its siblings, and results come back in input order.
func (p *Pipeline) ProcessBatch(ctx context.Context, apps []*loan.Application, concurrency int) []BatchItem {
	if concurrency <= 0 {
		concurrency = defaultBatchConcurrency
	}

	items := make([]BatchItem, len(apps))

	var g errgroup.Group
	g.SetLimit(concurrency)
	for i, app := range apps {
		i, app := i, app
		g.Go(func() error {
			result, err := p.Process(ctx, app)
			items[i] = BatchItem{Application: app, Result: result, Err: err}
			return nil // collect every run; never cancel siblings
		})
	}
	_ = g.Wait()

	var failed int
	for _, item := range items {
		if item.Err != nil {
			failed++
		}
	}
	p.logger.Info("batch complete",
		zap.Int("applications", len(apps)),
		zap.Int("failed", failed),
		zap.Int("concurrency", concurrency),
	)
	return items
}
