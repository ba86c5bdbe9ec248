package config_test

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentcore/orchestrator/pkg/config"
)

func writeBridgeFile(t *testing.T, path string, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

func TestLoadBridgeFile_EmptyPath(t *testing.T) {
	f, err := config.LoadBridgeFile("")
	require.NoError(t, err)
	assert.Empty(t, f.Bridges)
}

func TestBridgeFile_EnabledFiltersDisabled(t *testing.T) {
	f := config.BridgeFile{Bridges: []config.BridgeSpec{
		{Name: "docs", Type: "mcp", Enabled: true},
		{Name: "legacy", Type: "plugin", Enabled: false},
	}}
	enabled := f.Enabled()
	require.Len(t, enabled, 1)
	assert.Equal(t, "docs", enabled[0].Name)
}

func TestBridgeWatcher_ReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bridges.json")
	writeBridgeFile(t, path, `{"bridges":[{"name":"docs","type":"mcp","url":"http://x","enabled":true}]}`)

	var mu sync.Mutex
	var seen []config.BridgeFile
	watcher, err := config.NewBridgeWatcher(path, func(f config.BridgeFile) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, f)
	})
	require.NoError(t, err)
	defer watcher.Close()

	mu.Lock()
	require.Len(t, seen, 1)
	mu.Unlock()

	writeBridgeFile(t, path, `{"bridges":[{"name":"docs","type":"mcp","url":"http://x","enabled":false}]}`)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) >= 2 && len(seen[len(seen)-1].Enabled()) == 0
	}, 2*time.Second, 10*time.Millisecond)
}
