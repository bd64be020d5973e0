package pipeline

import (
	"context"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/radarcore/internal/radar/cfar"
	"github.com/banshee-data/radarcore/internal/radar/doa"
	"github.com/banshee-data/radarcore/internal/radar/doppler"
	"github.com/banshee-data/radarcore/internal/radar/rangeproc"
)

// worker owns one instance of every stateful stage processor. A worker is
// used by exactly one goroutine at a time.
type worker struct {
	id    int
	rng   *rangeproc.Processor
	dop   *doppler.Processor
	det   *cfar.Detector
	est   *doa.Estimator
	cov   *mat.CDense
	snaps [][]complex128
}

func newWorker(id int, cfg Config) (*worker, error) {
	rng, err := rangeproc.New(cfg.Samples, cfg.rangeBins(), cfg.RangeWindow)
	if err != nil {
		return nil, err
	}
	dop, err := doppler.New(cfg.Pulses, cfg.DopplerWindow)
	if err != nil {
		return nil, err
	}
	det, err := cfar.New(cfg.CFAR)
	if err != nil {
		return nil, err
	}
	est, err := doa.New(cfg.Rx, doa.Config{Sources: cfg.Sources, Grid: cfg.Angles, Spacing: cfg.ElementSpacing})
	if err != nil {
		return nil, err
	}

	snaps := make([][]complex128, cfg.Tx*(2*cfg.SnapshotRadius+1))
	for i := range snaps {
		snaps[i] = make([]complex128, cfg.Rx)
	}
	return &worker{
		id:    id,
		rng:   rng,
		dop:   dop,
		det:   det,
		est:   est,
		cov:   mat.NewCDense(cfg.Rx, cfg.Rx, nil),
		snaps: snaps,
	}, nil
}

// run feeds job indices [0, n) to the worker pool and returns the first
// error. Remaining jobs are abandoned once any job fails or ctx is done.
func (p *Pipeline) run(ctx context.Context, n int, fn func(w *worker, job int) error) error {
	g, ctx := errgroup.WithContext(ctx)
	jobs := make(chan int)

	g.Go(func() error {
		defer close(jobs)
		for i := 0; i < n; i++ {
			select {
			case jobs <- i:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return nil
	})

	for _, w := range p.workers {
		g.Go(func() error {
			for job := range jobs {
				if err := fn(w, job); err != nil {
					return err
				}
			}
			return nil
		})
	}
	return g.Wait()
}
