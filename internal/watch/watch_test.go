package watch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type recorder struct {
	mu   sync.Mutex
	libs []string
	err  error
}

func (r *recorder) run(_ context.Context, lib string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.libs = append(r.libs, lib)
	return r.err
}

func (r *recorder) calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.libs...)
}

func writeSource(t *testing.T, path, text string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(text), 0644))
}

func TestWatcher_DebouncesRapidWrites(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "mylib.nim")
	other := filepath.Join(dir, "notes.txt")
	writeSource(t, src, "proc a*() = discard\n")

	rec := &recorder{}
	w, err := New(map[string]string{"pure/mylib": src}, rec.run, 50*time.Millisecond)
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	for i := 0; i < 5; i++ {
		writeSource(t, src, "proc a*() = discard\nproc b*() = discard\n")
		writeSource(t, other, "unrelated")
		time.Sleep(5 * time.Millisecond)
	}

	require.Eventually(t, func() bool { return len(rec.calls()) == 1 }, 2*time.Second, 10*time.Millisecond)
	// no second run for the same burst
	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, []string{"pure/mylib"}, rec.calls())

	stats := w.Stats()
	assert.Equal(t, 1, stats.Runs)
	assert.GreaterOrEqual(t, stats.Events, 1)
	assert.Equal(t, filepath.Clean(src), stats.LastEventPath)
}

func TestWatcher_CountsRunErrors(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "mylib.nim")
	writeSource(t, src, "")

	rec := &recorder{err: errors.New("parse mismatch")}
	w, err := New(map[string]string{"mylib": src}, rec.run, 20*time.Millisecond)
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	writeSource(t, src, "proc x*() = discard\n")
	require.Eventually(t, func() bool { return w.Stats().Errors >= 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestWatcher_ContextCancel(t *testing.T) {
	src := filepath.Join(t.TempDir(), "mylib.nim")
	writeSource(t, src, "")

	ctx, cancel := context.WithCancel(context.Background())
	w, err := New(map[string]string{"mylib": src}, (&recorder{}).run, 0)
	require.NoError(t, err)
	require.NoError(t, w.Start(ctx))

	cancel()
	select {
	case <-w.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("event loop did not exit")
	}
	w.Stop()
}

func TestWatcher_MissingDirectory(t *testing.T) {
	src := filepath.Join(t.TempDir(), "nosuch", "mylib.nim")
	w, err := New(map[string]string{"mylib": src}, (&recorder{}).run, 0)
	require.NoError(t, err)
	assert.Error(t, w.Start(context.Background()))
	w.Stop()
}

func TestWatcher_StopIsIdempotent(t *testing.T) {
	src := filepath.Join(t.TempDir(), "mylib.nim")
	writeSource(t, src, "")
	w, err := New(map[string]string{"mylib": src}, (&recorder{}).run, 0)
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))
	require.NoError(t, w.Start(context.Background()))
	w.Stop()
	w.Stop()
}
