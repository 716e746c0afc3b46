package distribution

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"permclust/pkg/permutation"
	"permclust/pkg/reducer"
)

// permResult carries the entries of one permutation from a worker to the
// writer.
type permResult struct {
	index  int
	values []float64
}

// recorder is the single writer of the distribution. It checks that every
// permutation index arrives exactly once and logs progress.
type recorder struct {
	d     *Dist
	n     int
	seen  []bool
	done  int
	step  int
	nextp int
}

func newRecorder(d *Dist) *recorder {
	return &recorder{
		d:     d,
		n:     d.entries.n(),
		seen:  make([]bool, d.params.Samples),
		step:  max(1, d.params.Samples/10),
		nextp: max(1, d.params.Samples/10),
	}
}

func (r *recorder) record(index int, values []float64) error {
	if index < 0 || index >= len(r.seen) {
		return fmt.Errorf("permutation index %d outside [0, %d): %w", index, len(r.seen), ErrState)
	}
	if r.seen[index] {
		return fmt.Errorf("permutation %d delivered twice: %w", index, ErrState)
	}
	r.seen[index] = true
	copy(r.d.dist[index*r.n:(index+1)*r.n], values)
	r.done++
	if r.done >= r.nextp {
		r.d.logf("Permuting: %.1f%% complete", float64(r.done)/float64(len(r.seen))*100)
		r.nextp += r.step
	}
	return nil
}

func (r *recorder) check() error {
	if r.done != len(r.seen) {
		return fmt.Errorf("%d of %d permutations received: %w", r.done, len(r.seen), ErrState)
	}
	return nil
}

func (d *Dist) runSequential(ctx context.Context, src permutation.Source, fn RecomputeFunc) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("permutation panicked: %v", r)
		}
	}()
	red, err := reducer.New(d.spec)
	if err != nil {
		return err
	}
	rec := newRecorder(d)
	stat := make([]float64, d.y.Cols)
	values := make([]float64, red.Size())
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		p, ok := src.Next()
		if !ok {
			break
		}
		fn(d.y, p, stat)
		red.Reduce(stat, values)
		if err := rec.record(p.Index, values); err != nil {
			return err
		}
	}
	return rec.check()
}

// runPooled fans permutations out to workers. One goroutine draws from src,
// each worker owns a reducer and its scratch maps, and the calling goroutine
// is the only one writing to the distribution.
func (d *Dist) runPooled(ctx context.Context, src permutation.Source, fn RecomputeFunc, workers int) error {
	g, gctx := errgroup.WithContext(ctx)
	jobs := make(chan permutation.Permutation, workers)
	results := make(chan permResult, workers)

	g.Go(func() error {
		defer close(jobs)
		for {
			p, ok := src.Next()
			if !ok {
				return nil
			}
			select {
			case jobs <- p:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
	})
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			return d.worker(gctx, w, jobs, results, fn)
		})
	}

	wait := make(chan error, 1)
	go func() {
		wait <- g.Wait()
		close(results)
	}()

	rec := newRecorder(d)
	var recErr error
	for r := range results {
		if recErr != nil {
			continue
		}
		recErr = rec.record(r.index, r.values)
	}
	if err := <-wait; err != nil {
		return err
	}
	if recErr != nil {
		return recErr
	}
	return rec.check()
}

func (d *Dist) worker(ctx context.Context, id int, jobs <-chan permutation.Permutation, results chan<- permResult, fn RecomputeFunc) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("worker %d: permutation panicked: %v", id, r)
		}
	}()
	red, err := reducer.New(d.spec)
	if err != nil {
		return err
	}
	stat := make([]float64, d.y.Cols)
	for p := range jobs {
		fn(d.y, p, stat)
		values := make([]float64, red.Size())
		red.Reduce(stat, values)
		select {
		case results <- permResult{index: p.Index, values: values}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	d.logf("worker %d joined", id)
	return nil
}
