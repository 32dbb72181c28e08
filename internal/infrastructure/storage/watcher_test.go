package storage

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startWatcher(t *testing.T, s *FileStore) *Watcher {
	t.Helper()
	w, err := NewWatcher(s, 20*time.Millisecond, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return w
}

func TestWatcherIgnoresOwnWrites(t *testing.T) {
	s := newStore(t)
	w := startWatcher(t, s)

	require.NoError(t, s.Save(context.Background(), sampleForest()))

	select {
	case change := <-w.Changes():
		t.Fatalf("unexpected change %+v", change)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestWatcherReportsExternalWrites(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.Save(context.Background(), sampleForest()))
	w := startWatcher(t, s)

	require.NoError(t, os.WriteFile(s.Path(), []byte(`[{"id":"x","name":"X"}]`), 0o644))

	select {
	case change := <-w.Changes():
		assert.Equal(t, s.Path(), change.Path)
		assert.False(t, change.Removed)
	case <-time.After(3 * time.Second):
		t.Fatal("external write not reported")
	}
}

func TestWatcherReportsRemoval(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.Save(context.Background(), sampleForest()))
	w := startWatcher(t, s)

	require.NoError(t, os.Remove(s.Path()))

	select {
	case change := <-w.Changes():
		assert.True(t, change.Removed)
	case <-time.After(3 * time.Second):
		t.Fatal("removal not reported")
	}
}
