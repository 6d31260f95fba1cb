package policy

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pragati-platform/identity/pkg/observability"
)

const watcherRulesV1 = `
rules:
  - path: /api/ideas
    methods: [GET]
    roles: [mentor]
`

const watcherRulesV2 = `
rules:
  - path: /api/ideas
    methods: [GET]
    roles: [mentor]
  - path: /api/reports
    methods: [GET]
    roles: [principal]
`

func TestWatchFileReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(watcherRulesV1), 0o644))

	table, err := LoadFile(path)
	require.NoError(t, err)
	require.Len(t, table.Paths(), 1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		WatchFile(ctx, path, table, observability.NewLogger(observability.ErrorLevel, io.Discard))
	}()

	// Give the watcher a moment to register before the write.
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte(watcherRulesV2), 0o644))

	require.Eventually(t, func() bool {
		_, ok := table.Lookup("/api/reports")
		return ok
	}, 3*time.Second, 10*time.Millisecond)

	// A broken edit keeps the previous table active.
	require.NoError(t, os.WriteFile(path, []byte(":::not yaml"), 0o644))
	time.Sleep(100 * time.Millisecond)
	require.Len(t, table.Paths(), 2)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop on context cancel")
	}
}
