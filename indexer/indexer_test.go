package indexer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/arakoodev/gutty/ai/mock"
	"github.com/arakoodev/gutty/core"
	"github.com/arakoodev/gutty/progress"
	"github.com/arakoodev/gutty/ratelimit"
	"github.com/arakoodev/gutty/retry"
	"github.com/arakoodev/gutty/storage"
	badgerstore "github.com/arakoodev/gutty/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fastRetry keeps retry counts realistic without sleeping.
var fastRetry = retry.Policy{Attempts: 3}

// recordingIndex counts calls on top of a real in-memory index.
type recordingIndex struct {
	storage.VectorIndex

	mu        sync.Mutex
	upserts   []string
	creates   int
	columns   []string
	createErr error
}

func (r *recordingIndex) Upsert(ctx context.Context, table string, records ...*core.EmbeddingRecord) error {
	r.mu.Lock()
	for _, rec := range records {
		r.upserts = append(r.upserts, rec.ID)
	}
	r.mu.Unlock()
	return r.VectorIndex.Upsert(ctx, table, records...)
}

func (r *recordingIndex) CreateIndex(ctx context.Context, table, column string) error {
	r.mu.Lock()
	r.creates++
	r.columns = append(r.columns, column)
	r.mu.Unlock()
	if r.createErr != nil {
		return r.createErr
	}
	return r.VectorIndex.CreateIndex(ctx, table, column)
}

func (r *recordingIndex) upsertCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.upserts)
}

func newRecordingIndex(t *testing.T) *recordingIndex {
	t.Helper()
	idx, err := badgerstore.NewMemoryVectorIndex()
	require.NoError(t, err)
	t.Cleanup(func() { idx.Close() })
	return &recordingIndex{VectorIndex: idx}
}

func imageItems(ids ...string) []core.WorkItem {
	items := make([]core.WorkItem, len(ids))
	for i, id := range ids {
		items[i] = core.WorkItem{
			ID:       id,
			Source:   "test",
			Label:    "pho",
			Payloads: []core.Payload{core.ImageRef("/data/pho/" + id + ".jpg")},
		}
	}
	return items
}

func readDoneIDs(t *testing.T, path string) map[string]bool {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var snap struct {
		DoneIDs map[string]bool `json:"doneIds"`
	}
	require.NoError(t, json.Unmarshal(data, &snap))
	return snap.DoneIDs
}

func newIndexer(t *testing.T, idx storage.VectorIndex, embedder *mock.MockEmbedder, store *progress.Store, cfg *Config, opts ...Option) *Indexer {
	t.Helper()
	if cfg == nil {
		cfg = DefaultConfig()
		cfg.Table = "segments"
	}
	opts = append([]Option{WithEmbedPolicy(fastRetry), WithUpsertPolicy(fastRetry)}, opts...)
	ix, err := New(idx, embedder, store, cfg, opts...)
	require.NoError(t, err)
	return ix
}

func failFor(failing ...string) mock.EmbedFunc {
	set := make(map[string]bool)
	for _, id := range failing {
		set["/data/pho/"+id+".jpg"] = true
	}
	return func(ctx context.Context, p core.Payload) ([]float32, error) {
		if set[p.Path] {
			return nil, fmt.Errorf("%w: service unavailable", core.ErrTransient)
		}
		return mock.DeterministicVector(p.Key(), 8), nil
	}
}

func TestRun_PartialFailureScenario(t *testing.T) {
	ctx := context.Background()
	idx := newRecordingIndex(t)
	path := filepath.Join(t.TempDir(), "progress", "segments.json")
	store := progress.New(path)
	embedder := mock.NewMockEmbedder().WithEmbedFunc(failFor("3"))

	ix := newIndexer(t, idx, embedder, store, nil)
	result, err := ix.Run(ctx, imageItems("1", "2", "3"))
	require.NoError(t, err)

	assert.Equal(t, 3, result.Total)
	assert.Equal(t, 2, result.Processed)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, 0, result.Skipped)
	assert.True(t, result.IndexBuilt)
	assert.Equal(t, 0, result.ExitCode())

	assert.Equal(t, []string{"1", "2"}, idx.upserts)
	assert.Equal(t, map[string]bool{"1": true, "2": true}, readDoneIDs(t, path))
	assert.Equal(t, 3, embedder.CallsFor(core.ImageRef("/data/pho/3.jpg")), "failing item uses every attempt")
	assert.Equal(t, 1, idx.creates)

	count, err := idx.Count(ctx, "segments")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestRun_IdempotentResume(t *testing.T) {
	ctx := context.Background()
	idx := newRecordingIndex(t)
	path := filepath.Join(t.TempDir(), "progress.json")
	items := imageItems("a", "b", "c")

	first := mock.NewMockEmbedder()
	_, err := newIndexer(t, idx, first, progress.New(path), nil).Run(ctx, items)
	require.NoError(t, err)
	require.Equal(t, 3, first.CallCount())

	reloaded, err := progress.Load(path)
	require.NoError(t, err)
	second := mock.NewMockEmbedder()
	result, err := newIndexer(t, idx, second, reloaded, nil).Run(ctx, items)
	require.NoError(t, err)

	assert.Equal(t, 3, result.AlreadyDone)
	assert.Zero(t, result.Processed)
	assert.Zero(t, second.CallCount())
	assert.Equal(t, 3, idx.upsertCount())
	assert.Equal(t, 1, idx.creates, "no index rebuild when nothing was processed")
	assert.Equal(t, 0, result.ExitCode(), "nothing to do is success")
}

func TestRun_RetriesFailedItemsOnNextRun(t *testing.T) {
	ctx := context.Background()
	idx := newRecordingIndex(t)
	path := filepath.Join(t.TempDir(), "progress.json")
	items := imageItems("1", "2", "3")

	_, err := newIndexer(t, idx, mock.NewMockEmbedder().WithEmbedFunc(failFor("2")), progress.New(path), nil).Run(ctx, items)
	require.NoError(t, err)

	reloaded, err := progress.Load(path)
	require.NoError(t, err)
	embedder := mock.NewMockEmbedder().WithEmbedFunc(failFor())
	result, err := newIndexer(t, idx, embedder, reloaded, nil).Run(ctx, items)
	require.NoError(t, err)

	assert.Equal(t, 2, result.AlreadyDone)
	assert.Equal(t, 1, result.Processed)
	assert.Equal(t, 1, embedder.CallCount())
	assert.Len(t, readDoneIDs(t, path), 3)
}

func TestRun_AllFailedExitCode(t *testing.T) {
	idx := newRecordingIndex(t)
	store := progress.New(filepath.Join(t.TempDir(), "p.json"))
	embedder := mock.NewMockEmbedder().WithEmbedFunc(failFor("1", "2"))

	result, err := newIndexer(t, idx, embedder, store, nil).Run(context.Background(), imageItems("1", "2"))
	require.NoError(t, err)

	assert.Equal(t, 2, result.Failed)
	assert.False(t, result.IndexBuilt)
	assert.Zero(t, idx.creates)
	assert.Equal(t, 1, result.ExitCode())
}

func TestRun_MultiImageMean(t *testing.T) {
	ctx := context.Background()
	idx := newRecordingIndex(t)
	store := progress.New(filepath.Join(t.TempDir(), "p.json"))

	vectors := map[string][]float32{
		"a.jpg": {1, 0, 0},
		"c.jpg": {0, 1, 0},
	}
	embedder := mock.NewMockEmbedder().WithEmbedFunc(func(ctx context.Context, p core.Payload) ([]float32, error) {
		if v, ok := vectors[p.Path]; ok {
			return v, nil
		}
		return nil, errors.New("unreadable image")
	})

	items := []core.WorkItem{{
		ID:       "recipe-1",
		Source:   "recipes",
		Label:    "pho",
		Text:     "beef pho",
		Payloads: []core.Payload{core.ImageRef("a.jpg"), core.ImageRef("b.jpg"), core.ImageRef("c.jpg")},
	}}

	result, err := newIndexer(t, idx, embedder, store, nil).Run(ctx, items)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Processed)

	rec, err := idx.Get(ctx, "segments", "recipe-1")
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float32{0.5, 0.5, 0}, rec.Vector, 1e-6)
	assert.Equal(t, "a.jpg", rec.RepresentativePath)
	assert.Equal(t, "beef pho", rec.Text)
	assert.Equal(t, "recipes", rec.SourceCollection)
}

func TestRun_MultiImageNoneEmbeddedIsSkipped(t *testing.T) {
	path := filepath.Join(t.TempDir(), "p.json")
	embedder := mock.NewMockEmbedder().WithEmbedFunc(func(ctx context.Context, p core.Payload) ([]float32, error) {
		return nil, errors.New("unreadable image")
	})
	items := []core.WorkItem{{
		ID:       "recipe-1",
		Payloads: []core.Payload{core.ImageRef("a.jpg"), core.ImageRef("b.jpg")},
	}}

	result, err := newIndexer(t, newRecordingIndex(t), embedder, progress.New(path), nil).Run(context.Background(), items)
	require.NoError(t, err)

	assert.Equal(t, 1, result.Skipped)
	assert.Zero(t, result.Failed)
	assert.Empty(t, readDoneIDs(t, path))
	assert.Equal(t, 1, result.ExitCode())
}

func TestRun_SingleImageRowNotEmbeddedIsSkipped(t *testing.T) {
	path := filepath.Join(t.TempDir(), "p.json")
	embedder := mock.NewMockEmbedder().WithEmbedFunc(func(ctx context.Context, p core.Payload) ([]float32, error) {
		return nil, errors.New("unreadable image")
	})
	rows := strings.Join([]string{
		`{"id":"r1","label":"pho","image_paths":["bad1.jpg"]}`,
		`{"id":"r2","label":"pho","image_paths":["bad2.jpg","bad3.jpg"]}`,
	}, "\n")
	items, err := ReadRows(strings.NewReader(rows), nil)
	require.NoError(t, err)

	result, err := newIndexer(t, newRecordingIndex(t), embedder, progress.New(path), nil).Run(context.Background(), items)
	require.NoError(t, err)

	assert.Equal(t, 2, result.Skipped, "one bad image and two bad images are handled alike")
	assert.Zero(t, result.Failed)
	assert.Zero(t, result.Processed)
	assert.Empty(t, readDoneIDs(t, path))
}

func TestRun_SingleDiscoveredImageFailureIsFailed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "p.json")
	embedder := mock.NewMockEmbedder().WithEmbedFunc(failFor("1"))

	result, err := newIndexer(t, newRecordingIndex(t), embedder, progress.New(path), nil).Run(context.Background(), imageItems("1"))
	require.NoError(t, err)

	assert.Equal(t, 1, result.Failed)
	assert.Zero(t, result.Skipped)
	assert.Empty(t, readDoneIDs(t, path))
}

func TestRun_ImageCap(t *testing.T) {
	embedder := mock.NewMockEmbedder()
	payloads := make([]core.Payload, 7)
	for i := range payloads {
		payloads[i] = core.ImageRef(fmt.Sprintf("%d.jpg", i))
	}
	items := []core.WorkItem{{ID: "r", Payloads: payloads}}

	result, err := newIndexer(t, newRecordingIndex(t), embedder, progress.New(filepath.Join(t.TempDir(), "p.json")), nil).
		Run(context.Background(), items)
	require.NoError(t, err)

	assert.Equal(t, 1, result.Processed)
	assert.Equal(t, 5, embedder.CallCount())
	assert.Zero(t, embedder.CallsFor(core.ImageRef("6.jpg")))
}

func TestRun_ItemWithoutPayloadIsSkipped(t *testing.T) {
	items := []core.WorkItem{{ID: "empty"}}
	result, err := newIndexer(t, newRecordingIndex(t), mock.NewMockEmbedder(), progress.New(filepath.Join(t.TempDir(), "p.json")), nil).
		Run(context.Background(), items)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Skipped)
}

func TestRun_CheckpointsEveryK(t *testing.T) {
	path := filepath.Join(t.TempDir(), "p.json")
	cfg := DefaultConfig()
	cfg.Table = "segments"
	cfg.CheckpointEvery = 2

	var onDisk map[string]bool
	embedder := mock.NewMockEmbedder().WithEmbedFunc(func(ctx context.Context, p core.Payload) ([]float32, error) {
		if p.Path == "/data/pho/5.jpg" {
			onDisk = readDoneIDs(t, path)
		}
		return []float32{1, 2}, nil
	})

	_, err := newIndexer(t, newRecordingIndex(t), embedder, progress.New(path), cfg).
		Run(context.Background(), imageItems("1", "2", "3", "4", "5"))
	require.NoError(t, err)

	assert.Equal(t, map[string]bool{"1": true, "2": true, "3": true, "4": true}, onDisk)
	assert.Len(t, readDoneIDs(t, path), 5)
}

func TestRun_CancellationFlushesProgress(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	path := filepath.Join(t.TempDir(), "p.json")
	cfg := DefaultConfig()
	cfg.Table = "segments"
	cfg.CheckpointEvery = 100

	idx := newRecordingIndex(t)
	embedder := mock.NewMockEmbedder().WithEmbedFunc(func(ctx context.Context, p core.Payload) ([]float32, error) {
		if p.Path == "/data/pho/3.jpg" {
			cancel()
			return nil, ctx.Err()
		}
		return []float32{1, 0}, nil
	})

	result, err := newIndexer(t, idx, embedder, progress.New(path), cfg).Run(ctx, imageItems("1", "2", "3", "4", "5"))
	assert.ErrorIs(t, err, context.Canceled)

	assert.Equal(t, 2, result.Processed)
	assert.Zero(t, result.Failed, "canceled items are not failures")
	assert.Equal(t, map[string]bool{"1": true, "2": true}, readDoneIDs(t, path))
	assert.Zero(t, embedder.CallsFor(core.ImageRef("/data/pho/4.jpg")))
	assert.Zero(t, idx.creates)
}

func TestRun_ConcurrentWorkers(t *testing.T) {
	ctx := context.Background()
	idx := newRecordingIndex(t)
	path := filepath.Join(t.TempDir(), "p.json")
	cfg := DefaultConfig()
	cfg.Table = "segments"
	cfg.Workers = 4
	cfg.CheckpointEvery = 3

	ids := make([]string, 40)
	for i := range ids {
		ids[i] = fmt.Sprintf("%02d", i)
	}

	var out bytes.Buffer
	embedder := mock.NewMockEmbedder().WithEmbedFunc(failFor("07", "21"))
	result, err := newIndexer(t, idx, embedder, progress.New(path), cfg,
		WithLimiter(ratelimit.New(0)), WithOutput(&out)).Run(ctx, imageItems(ids...))
	require.NoError(t, err)

	assert.Equal(t, 38, result.Processed)
	assert.Equal(t, 2, result.Failed)
	assert.Len(t, readDoneIDs(t, path), 38)
	assert.NotContains(t, readDoneIDs(t, path), "07")

	count, err := idx.Count(ctx, "segments")
	require.NoError(t, err)
	assert.Equal(t, 38, count)
	assert.Contains(t, out.String(), "40/40")
}

func TestRun_RateLimitedAcrossWorkers(t *testing.T) {
	if testing.Short() {
		t.Skip("timing test")
	}
	cfg := DefaultConfig()
	cfg.Table = "segments"
	cfg.Workers = 4

	start := time.Now()
	_, err := newIndexer(t, newRecordingIndex(t), mock.NewMockEmbedder(), progress.New(filepath.Join(t.TempDir(), "p.json")), cfg,
		WithLimiter(ratelimit.New(20))).Run(context.Background(), imageItems("1", "2", "3", "4", "5"))
	require.NoError(t, err)

	assert.GreaterOrEqual(t, time.Since(start), 200*time.Millisecond, "5 calls at 20/s span at least 4 intervals")
}

func TestRun_DimensionMismatchIsNotRetried(t *testing.T) {
	ctx := context.Background()
	idx := newRecordingIndex(t)
	require.NoError(t, idx.VectorIndex.Upsert(ctx, "segments", &core.EmbeddingRecord{ID: "seed", Vector: []float32{1, 0, 0}}))

	embedder := mock.NewMockEmbedder().WithDimension(4)
	result, err := newIndexer(t, idx, embedder, progress.New(filepath.Join(t.TempDir(), "p.json")), nil).
		Run(ctx, imageItems("1"))
	require.NoError(t, err)

	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, 1, idx.upsertCount())
}

func TestRun_BuildsIndexOnTableColumn(t *testing.T) {
	idx := newRecordingIndex(t)

	result, err := newIndexer(t, idx, mock.NewMockEmbedder(), progress.New(filepath.Join(t.TempDir(), "p.json")), nil).
		Run(context.Background(), imageItems("1", "2"))
	require.NoError(t, err)

	assert.True(t, result.IndexBuilt)
	assert.Equal(t, []string{""}, idx.columns, "the table's own column is used")

	tables, err := idx.Tables(context.Background())
	require.NoError(t, err)
	require.Len(t, tables, 1)
	assert.Equal(t, storage.DefaultColumn, tables[0].Column)
	assert.True(t, tables[0].IndexFresh)
}

func TestRun_RecordTimestampFromClock(t *testing.T) {
	idx := newRecordingIndex(t)
	at := time.Date(2025, 3, 14, 9, 26, 53, 589793000, time.UTC)

	_, err := newIndexer(t, idx, mock.NewMockEmbedder(), progress.New(filepath.Join(t.TempDir(), "p.json")), nil,
		WithClock(func() time.Time { return at })).
		Run(context.Background(), imageItems("1"))
	require.NoError(t, err)

	rec, err := idx.Get(context.Background(), "segments", "1")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.True(t, at.Equal(rec.UpdatedAt), "stored %v, want %v", rec.UpdatedAt, at)
}

func TestRun_IndexBuildFailureIsWarning(t *testing.T) {
	idx := newRecordingIndex(t)
	idx.createErr = errors.New("disk full")

	result, err := newIndexer(t, idx, mock.NewMockEmbedder(), progress.New(filepath.Join(t.TempDir(), "p.json")), nil).
		Run(context.Background(), imageItems("1"))
	require.NoError(t, err)

	assert.Equal(t, 1, result.Processed)
	assert.False(t, result.IndexBuilt)
	assert.Equal(t, 1, idx.creates)
}

func TestRun_FlushFailureIsReturned(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	result, err := newIndexer(t, newRecordingIndex(t), mock.NewMockEmbedder(), progress.New(filepath.Join(blocker, "p.json")), nil).
		Run(context.Background(), imageItems("1"))
	require.Error(t, err)
	assert.Equal(t, 1, result.Processed)
}

func TestNew_Validation(t *testing.T) {
	idx := newRecordingIndex(t)
	store := progress.New(filepath.Join(t.TempDir(), "p.json"))
	embedder := mock.NewMockEmbedder()

	_, err := New(nil, embedder, store, nil)
	assert.ErrorIs(t, err, ErrIndexRequired)

	_, err = New(idx, nil, store, nil)
	assert.ErrorIs(t, err, ErrEmbedderRequired)

	_, err = New(idx, embedder, nil, nil)
	assert.ErrorIs(t, err, ErrProgressRequired)

	_, err = New(idx, embedder, store, nil)
	assert.ErrorIs(t, err, core.ErrConfiguration, "table is required")

	cfg := DefaultConfig()
	cfg.Table = "t"
	cfg.Workers = MaxWorkers + 1
	_, err = New(idx, embedder, store, cfg)
	assert.ErrorIs(t, err, core.ErrConfiguration)
}
