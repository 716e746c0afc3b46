package store

import (
	"context"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"permclust/internal/monitoring"
	"permclust/pkg/cluster"
	"permclust/pkg/distribution"
	"permclust/pkg/ndvar"
	"permclust/pkg/testfamily"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	monitoring.SetLogger(t.Logf)
	t.Cleanup(func() { monitoring.SetLogger(nil) })
	s, err := Open(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func computeDist(t *testing.T, samples int) *distribution.Dist {
	t.Helper()
	maps := make([][]float64, 6)
	for i := range maps {
		maps[i] = make([]float64, 12)
		for j := range maps[i] {
			maps[i][j] = float64((i*7+j*3)%5) - 2
			if j >= 4 && j < 8 {
				maps[i][j] += 4
			}
		}
	}
	ds, err := ndvar.NewDataset("y", []ndvar.Dimension{ndvar.NewTime(-0.02, 0.01, 12)}, maps)
	require.NoError(t, err)
	test, err := testfamily.T1Samp(ds, 0, nil)
	require.NoError(t, err)
	d, err := distribution.New(ds, distribution.Params{
		Samples:   samples,
		Threshold: distribution.ClusterThreshold(2),
		Tail:      cluster.Both,
		Meas:      "t",
		Name:      "y",
	})
	require.NoError(t, err)
	require.NoError(t, d.AddOriginal(test.Map))
	src, err := test.Source(samples, 1)
	require.NoError(t, err)
	require.NoError(t, d.Run(context.Background(), src, test.Recompute))
	return d
}

func TestMigrations(t *testing.T) {
	s := openStore(t)
	version, dirty, err := s.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(2), version)
	assert.False(t, dirty)

	// running again is a no-op
	require.NoError(t, s.MigrateUp())

	require.NoError(t, s.MigrateDown())
	version, _, err = s.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)
	require.NoError(t, s.MigrateUp())
}

func TestSaveLoad(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	d := computeDist(t, 31)

	id, err := s.Save(ctx, "y/t1samp/31", d)
	require.NoError(t, err)

	loaded, err := s.Load(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, d.NClusters(), loaded.NClusters())
	assert.Empty(t, cmp.Diff(d.Values(), loaded.Values()))

	a, err := d.Clusters(nil, false, nil)
	require.NoError(t, err)
	b, err := loaded.Clusters(nil, false, nil)
	require.NoError(t, err)
	assert.Empty(t, cmp.Diff(a.Columns, b.Columns))

	found, err := s.Find(ctx, "y/t1samp/31")
	require.NoError(t, err)
	assert.Equal(t, d.Samples(), found.Samples())

	records, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, id, records[0].ID)
	assert.Equal(t, "cluster", records[0].Kind)
	assert.Equal(t, 31, records[0].Samples)
	assert.Positive(t, records[0].Size)
	assert.Positive(t, records[0].PayloadBytes)

	// saving under the same key replaces the snapshot
	id2, err := s.Save(ctx, "y/t1samp/31", d)
	require.NoError(t, err)
	records, err = s.List(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, id2, records[0].ID)

	require.NoError(t, s.Delete(ctx, id2))
	_, err = s.Load(ctx, id2)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.Delete(ctx, id2), ErrNotFound)
	_, err = s.Find(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCloseAndReopen(t *testing.T) {
	monitoring.SetLogger(t.Logf)
	t.Cleanup(func() { monitoring.SetLogger(nil) })
	path := filepath.Join(t.TempDir(), "cache.db")
	ctx := context.Background()

	s, err := Open(path)
	require.NoError(t, err)
	_, err = s.Save(ctx, "y/t1samp/9", computeDist(t, 9))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()
	d, err := s.Find(ctx, "y/t1samp/9")
	require.NoError(t, err)
	assert.Equal(t, 9, d.Samples())
}

func TestSaveUnfinished(t *testing.T) {
	s := openStore(t)
	ds, err := ndvar.NewDataset("y", []ndvar.Dimension{ndvar.NewTime(0, 0.01, 3)}, [][]float64{{1, 2, 3}, {2, 3, 4}})
	require.NoError(t, err)
	d, err := distribution.New(ds, distribution.Params{Samples: 2})
	require.NoError(t, err)
	_, err = s.Save(context.Background(), "x", d)
	assert.ErrorIs(t, err, distribution.ErrNotReady)
}

func TestLoadOrCompute(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	d := computeDist(t, 15)

	var calls atomic.Int32
	compute := func(context.Context) (*distribution.Dist, error) {
		calls.Add(1)
		return d, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := s.LoadOrCompute(ctx, "shared", compute)
			assert.NoError(t, err)
			assert.Equal(t, 15, got.Samples())
		}()
	}
	wg.Wait()
	first := calls.Load()
	assert.GreaterOrEqual(t, first, int32(1))

	got, err := s.LoadOrCompute(ctx, "shared", compute)
	require.NoError(t, err)
	assert.Equal(t, first, calls.Load(), "cached result is reused")
	assert.Equal(t, d.NClusters(), got.NClusters())
}
