package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raphaelgruber/uplink/internal/models"
	"github.com/raphaelgruber/uplink/internal/quota"
	"github.com/raphaelgruber/uplink/internal/source"
	"github.com/raphaelgruber/uplink/internal/store"
)

// fakePipeline scripts the processing backend: happy-path streams complete
// every file, per-account errors simulate a dead stream, and the document
// list feeds the reconciliation poller.
type fakePipeline struct {
	mu           sync.Mutex
	localCalls   int
	localFiles   int
	remoteCalls  []string
	remoteErrs   map[string]error
	docs         []models.Document
	listFailures int
	blockLocal   chan struct{}
}

func (f *fakePipeline) ProcessLocal(ctx context.Context, files []models.LocalFile, onEvent func(models.ProgressEvent) error) error {
	f.mu.Lock()
	f.localCalls++
	f.localFiles += len(files)
	block := f.blockLocal
	f.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return emitHappyPath(len(files), "local", onEvent)
}

func (f *fakePipeline) ProcessRemote(ctx context.Context, account models.Account, fileIDs []string, onEvent func(models.ProgressEvent) error) error {
	f.mu.Lock()
	f.remoteCalls = append(f.remoteCalls, account.ID)
	err := f.remoteErrs[account.ID]
	f.mu.Unlock()

	if err != nil {
		return err
	}
	return emitHappyPath(len(fileIDs), account.ID, onEvent)
}

func (f *fakePipeline) ListDocuments(ctx context.Context) ([]models.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listFailures > 0 {
		f.listFailures--
		return nil, fmt.Errorf("server returned 502")
	}
	docs := make([]models.Document, len(f.docs))
	copy(docs, f.docs)
	return docs, nil
}

func (f *fakePipeline) setDocs(docs []models.Document) {
	f.mu.Lock()
	f.docs = docs
	f.mu.Unlock()
}

func emitHappyPath(n int, prefix string, onEvent func(models.ProgressEvent) error) error {
	for i := 0; i < n; i++ {
		docID := fmt.Sprintf("doc-%s-%d", prefix, i)
		if err := onEvent(models.ProgressEvent{
			FileIndex: i, Stage: models.StageUnderstanding,
			Message: "Analyzing content", ProgressPercent: 50, DocumentID: docID,
		}); err != nil {
			return err
		}
		if err := onEvent(models.ProgressEvent{
			FileIndex: i, Stage: models.StageCompleted,
			Message: "Completed", ProgressPercent: 100, DocumentID: docID,
		}); err != nil {
			return err
		}
	}
	return nil
}

func unlimitedGuard() *quota.Guard {
	return quota.NewGuard(quota.Tier{Name: "pro", MaxItems: quota.Unlimited}, 0)
}

func writeTempFiles(t *testing.T, names ...string) []string {
	t.Helper()
	dir := t.TempDir()
	paths := make([]string, len(names))
	for i, name := range names {
		paths[i] = filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(paths[i], []byte("payload for "+name), 0644))
	}
	return paths
}

func mixedSelection(t *testing.T) source.Selection {
	accA := models.Account{ID: "acc-a", Label: "Work Drive"}
	accB := models.Account{ID: "acc-b", Label: "Personal"}
	return source.Selection{
		LocalPaths: writeTempFiles(t, "notes.md", "report.pdf"),
		Remote: []source.RemoteSelection{
			{Account: accA, FileID: "ra-1", Name: "roadmap.docx"},
			{Account: accA, FileID: "ra-2", Name: "budget.xlsx"},
			{Account: accB, FileID: "rb-1", Name: "photo.png"},
		},
	}
}

func TestSubmit_MixedBatchSettlesAcrossPartitions(t *testing.T) {
	fake := &fakePipeline{}
	o := New(fake, unlimitedGuard(), nil)
	o.pollInterval = 10 * time.Millisecond

	handle, rejected, err := o.Submit(context.Background(), mixedSelection(t))
	require.NoError(t, err)
	assert.Empty(t, rejected)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, handle.Wait(ctx))

	view, ok := o.View()
	require.True(t, ok)
	assert.Equal(t, 5, view.Total)
	assert.Equal(t, 5, view.CompletedCount)
	assert.Equal(t, 0, view.FailedCount)
	assert.True(t, view.Settled())

	fake.mu.Lock()
	defer fake.mu.Unlock()
	assert.Equal(t, 1, fake.localCalls)
	assert.Equal(t, 2, fake.localFiles)
	assert.ElementsMatch(t, []string{"acc-a", "acc-b"}, fake.remoteCalls)
}

func TestSubmit_PartitionFailureIsIsolated(t *testing.T) {
	fake := &fakePipeline{remoteErrs: map[string]error{"acc-b": fmt.Errorf("token expired")}}
	o := New(fake, unlimitedGuard(), nil)
	o.pollInterval = 10 * time.Millisecond

	handle, _, err := o.Submit(context.Background(), mixedSelection(t))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	werr := handle.Wait(ctx)
	require.Error(t, werr)
	assert.ErrorContains(t, werr, "acc-b")
	assert.ErrorContains(t, werr, "token expired")

	view, ok := o.View()
	require.True(t, ok)
	assert.Equal(t, 4, view.CompletedCount)
	assert.Equal(t, 1, view.FailedCount)
	assert.True(t, view.Settled())

	// The dead stream's items carry the generic transport message; the other
	// partitions are untouched by the failure.
	for _, it := range view.Items {
		if it.AccountID == "acc-b" {
			assert.Equal(t, models.StatusFailed, it.Status)
			assert.Equal(t, transportFailureMessage, it.Error)
		} else {
			assert.Equal(t, models.StatusCompleted, it.Status)
		}
	}
}

func TestSubmit_UnreadableLocalFileFailsWithoutStreaming(t *testing.T) {
	fake := &fakePipeline{}
	o := New(fake, unlimitedGuard(), nil)
	o.pollInterval = 10 * time.Millisecond

	// The file vanishes between selection and read; normalization saw it,
	// the partition cannot. Simulated through the injectable reader.
	o.readFile = func(path string) ([]byte, error) {
		if filepath.Base(path) == "gone.md" {
			return nil, os.ErrNotExist
		}
		return os.ReadFile(path)
	}

	paths := writeTempFiles(t, "good.md", "gone.md")
	handle, _, err := o.Submit(context.Background(), source.Selection{LocalPaths: paths})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, handle.Wait(ctx))

	view, ok := o.View()
	require.True(t, ok)
	assert.Equal(t, 1, view.CompletedCount)
	assert.Equal(t, 1, view.FailedCount)
	for _, it := range view.Items {
		if it.DisplayName == "gone.md" {
			assert.Equal(t, "Could not read file from disk", it.Error)
		}
	}
}

func TestSubmit_QuotaRejectionsNeverReachTheNetwork(t *testing.T) {
	fake := &fakePipeline{}
	guard := quota.NewGuard(quota.Tier{Name: "free", MaxItems: 20}, 18)
	o := New(fake, guard, nil)
	o.pollInterval = 10 * time.Millisecond

	paths := writeTempFiles(t, "a.md", "b.md", "c.md", "d.md", "e.md")
	handle, rejected, err := o.Submit(context.Background(), source.Selection{LocalPaths: paths})
	require.NoError(t, err)
	require.Len(t, rejected, 3)
	for _, rej := range rejected {
		assert.Contains(t, rej.Reason, "item quota reached")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, handle.Wait(ctx))

	view, ok := o.View()
	require.True(t, ok)
	assert.Equal(t, 2, view.Total)
	assert.Equal(t, 2, view.CompletedCount)

	fake.mu.Lock()
	defer fake.mu.Unlock()
	assert.Equal(t, 2, fake.localFiles, "rejected items must not be transmitted")
}

func TestSubmit_AllRejected(t *testing.T) {
	guard := quota.NewGuard(quota.Tier{Name: "free", MaxItems: 1}, 1)
	o := New(&fakePipeline{}, guard, nil)

	paths := writeTempFiles(t, "a.md")
	handle, rejected, err := o.Submit(context.Background(), source.Selection{LocalPaths: paths})
	assert.ErrorIs(t, err, ErrAllRejected)
	assert.Nil(t, handle)
	assert.Len(t, rejected, 1)

	_, ok := o.View()
	assert.False(t, ok, "a fully rejected submission must not create a batch")
}

func TestSubmit_RejectsSecondBatchWhileActive(t *testing.T) {
	fake := &fakePipeline{blockLocal: make(chan struct{})}
	o := New(fake, unlimitedGuard(), nil)
	o.pollInterval = 10 * time.Millisecond

	paths := writeTempFiles(t, "a.md")
	handle, _, err := o.Submit(context.Background(), source.Selection{LocalPaths: paths})
	require.NoError(t, err)

	_, _, err = o.Submit(context.Background(), source.Selection{LocalPaths: writeTempFiles(t, "b.md")})
	assert.ErrorIs(t, err, ErrBatchActive)

	close(fake.blockLocal)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, handle.Wait(ctx))
}

func TestRemoveAndClearLifecycle(t *testing.T) {
	o := New(&fakePipeline{}, unlimitedGuard(), nil)

	assert.ErrorIs(t, o.Remove("x"), ErrNoBatch)
	assert.ErrorIs(t, o.Clear(), ErrNoBatch)

	b := newBatch(pendingItems(2))
	b.applyProgress(1, models.ProgressEvent{Stage: models.StageInitializing})
	o.batch = b

	assert.ErrorIs(t, o.Clear(), ErrBatchInFlight)
	assert.ErrorIs(t, o.Remove("b"), ErrItemInFlight)
	require.NoError(t, o.Remove("a"))

	view, ok := o.View()
	require.True(t, ok)
	assert.Equal(t, 1, view.Total)

	require.True(t, b.markFailed(1, "", "boom"))
	require.NoError(t, o.Clear())

	_, ok = o.View()
	assert.False(t, ok)
}

func TestRemoveLastPendingDiscardsBatch(t *testing.T) {
	o := New(&fakePipeline{}, unlimitedGuard(), nil)
	o.batch = newBatch(pendingItems(1))

	require.NoError(t, o.Remove("a"))
	_, ok := o.View()
	assert.False(t, ok)
}

func TestRestore_NothingPersisted(t *testing.T) {
	o := New(&fakePipeline{}, unlimitedGuard(), store.New(filepath.Join(t.TempDir(), "batch.json"), nil))

	handle, err := o.Restore(context.Background())
	require.NoError(t, err)
	assert.Nil(t, handle)
}

func TestRestore_ResumesAndSettlesThroughPolling(t *testing.T) {
	dir := t.TempDir()
	st := store.New(filepath.Join(dir, "batch.json"), nil)

	require.NoError(t, st.Save(models.PersistedSnapshot{
		IsUploading: true,
		Total:       1,
		Files: []models.SnapshotItem{{
			ID:           "item-1",
			DisplayName:  "notes.md",
			Source:       models.SourceLocal,
			Status:       models.StatusProcessing,
			Stage:        models.StageUnderstanding,
			ServerItemID: "doc-42",
		}},
	}))

	fake := &fakePipeline{docs: []models.Document{{DocumentID: "doc-42", Status: models.DocumentProcessing}}}
	o := New(fake, unlimitedGuard(), st)
	o.pollInterval = 10 * time.Millisecond

	handle, err := o.Restore(context.Background())
	require.NoError(t, err)
	require.NotNil(t, handle)

	view, ok := o.View()
	require.True(t, ok)
	assert.Equal(t, models.StatusProcessing, view.Items[0].Status)

	// The server finishes while we watch; the poller notices and settles.
	fake.setDocs([]models.Document{{DocumentID: "doc-42", Status: models.DocumentProcessed}})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, handle.Wait(ctx))

	view, _ = o.View()
	assert.Equal(t, models.StatusCompleted, view.Items[0].Status)
	assert.True(t, view.Settled())

	require.NoError(t, o.Clear())
	_, statErr := os.Stat(filepath.Join(dir, "batch.json"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestRestore_RejectedWhileBatchActive(t *testing.T) {
	fake := &fakePipeline{blockLocal: make(chan struct{})}
	o := New(fake, unlimitedGuard(), nil)
	o.pollInterval = 10 * time.Millisecond

	handle, _, err := o.Submit(context.Background(), source.Selection{LocalPaths: writeTempFiles(t, "a.md")})
	require.NoError(t, err)

	_, err = o.Restore(context.Background())
	assert.ErrorIs(t, err, ErrBatchActive)

	close(fake.blockLocal)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, handle.Wait(ctx))
}
