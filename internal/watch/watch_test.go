package watch

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gcapes/hpcflow-new/internal/store"
)

func newTestStore(t *testing.T) *store.FSStore {
	t.Helper()
	s, err := store.CreateFS(filepath.Join(t.TempDir(), "wf"), store.NewMetadata("w1", "id-1"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, LogLevelDebug, ParseLogLevel("debug"))
	assert.Equal(t, LogLevelWarn, ParseLogLevel("WARNING"))
	assert.Equal(t, LogLevelError, ParseLogLevel("error"))
	assert.Equal(t, LogLevelInfo, ParseLogLevel("anything else"))
}

func TestCheckMetadata_EmitsOnChange(t *testing.T) {
	s := newTestStore(t)
	w, err := New(s, nil, LogLevelError)
	require.NoError(t, err)

	ctx := context.Background()

	// identical content: no event
	w.checkMetadata(ctx)
	select {
	case ev := <-w.events:
		t.Fatalf("unexpected event for unchanged metadata: %+v", ev)
	default:
	}

	md, err := s.ReadMetadata()
	require.NoError(t, err)
	md.Tasks = append(md.Tasks, store.TaskMeta{Name: "t1"})
	require.NoError(t, s.WriteMetadata(md))

	w.checkMetadata(ctx)
	select {
	case ev := <-w.events:
		assert.Equal(t, "id-1", ev.WorkflowID)
		assert.Equal(t, "w1", ev.Name)
		assert.NotEmpty(t, ev.Digest)
	default:
		t.Fatal("expected an event after metadata change")
	}

	// the same state again is deduplicated
	w.checkMetadata(ctx)
	select {
	case ev := <-w.events:
		t.Fatalf("unexpected duplicate event: %+v", ev)
	default:
	}
}

func TestRun_ReportsExternalWrite(t *testing.T) {
	s := newTestStore(t)
	w, err := New(s, nil, LogLevelError)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// give the watcher time to install its fsnotify watch
	time.Sleep(200 * time.Millisecond)

	md, err := s.ReadMetadata()
	require.NoError(t, err)
	md.Tasks = append(md.Tasks, store.TaskMeta{Name: "t1"})
	require.NoError(t, s.WriteMetadata(md))

	select {
	case ev := <-w.Events():
		assert.Equal(t, "id-1", ev.WorkflowID)
	case <-ctx.Done():
		t.Fatal("no event before timeout")
	}

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
}
