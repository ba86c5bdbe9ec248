// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel
//
// Licensed under the GNU Affero General Public License v3.0 (AGPL-3.0) (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.gnu.org/licenses/agpl-3.0.en.html
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// BridgeSpec is one entry in the external_tool_bridge_config JSON file
// (spec §6): one external tool protocol bridge (MCP server or native
// plugin) and whether refresh_external_tools should discover it.
type BridgeSpec struct {
	Name    string `json:"name"`
	Type    string `json:"type"` // "mcp" or "plugin"
	Enabled bool   `json:"enabled"`

	// URL is the MCP server endpoint, used when Type == "mcp".
	URL string `json:"url,omitempty"`

	// Command/Args launch a native plugin subprocess, used when
	// Type == "plugin".
	Command string   `json:"command,omitempty"`
	Args    []string `json:"args,omitempty"`
}

// BridgeFile is the decoded external_tool_bridge_config document.
type BridgeFile struct {
	Bridges []BridgeSpec `json:"bridges"`
}

// Enabled returns only the specs with Enabled set, in file order.
func (f BridgeFile) Enabled() []BridgeSpec {
	out := make([]BridgeSpec, 0, len(f.Bridges))
	for _, b := range f.Bridges {
		if b.Enabled {
			out = append(out, b)
		}
	}
	return out
}

// LoadBridgeFile reads and decodes path as a BridgeFile. An empty path
// yields an empty BridgeFile rather than an error, matching
// workflow.NewTemplateStore's treatment of an unset directory.
func LoadBridgeFile(path string) (BridgeFile, error) {
	if path == "" {
		return BridgeFile{}, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return BridgeFile{}, fmt.Errorf("config: read bridge config %s: %w", path, err)
	}
	var f BridgeFile
	if err := json.Unmarshal(raw, &f); err != nil {
		return BridgeFile{}, fmt.Errorf("config: parse bridge config %s: %w", path, err)
	}
	return f, nil
}

// BridgeWatcher hot-reloads the external_tool_bridge_config file and
// invokes OnChange with the freshly decoded BridgeFile on every write,
// letting refresh_external_tools (spec §6 Inbound) pick up newly enabled
// or disabled bridges without a restart. Grounded on
// pkg/workflow.TemplateStore's fsnotify watch loop, applied here to a
// single file instead of a directory of templates.
type BridgeWatcher struct {
	mu       sync.Mutex
	path     string
	watcher  *fsnotify.Watcher
	onChange func(BridgeFile)
	log      *slog.Logger
}

// NewBridgeWatcher starts watching path (a no-op, closed watcher if path
// is empty) and calls onChange once immediately with the current contents.
func NewBridgeWatcher(path string, onChange func(BridgeFile)) (*BridgeWatcher, error) {
	w := &BridgeWatcher{path: path, onChange: onChange, log: slog.Default().With("component", "bridge_watcher")}
	if path == "" {
		return w, nil
	}

	f, err := LoadBridgeFile(path)
	if err != nil {
		return nil, err
	}
	onChange(f)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config: bridge watcher: %w", err)
	}
	if err := watcher.Add(path); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("config: watch bridge config %q: %w", path, err)
	}
	w.watcher = watcher
	go w.watch()
	return w, nil
}

func (w *BridgeWatcher) watch() {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			f, err := LoadBridgeFile(w.path)
			if err != nil {
				w.log.Warn("bridge config reload failed", "error", err)
				continue
			}
			w.onChange(f)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Warn("bridge watcher error", "error", err)
		}
	}
}

// Close stops the watcher, if one was started.
func (w *BridgeWatcher) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.watcher != nil {
		w.watcher.Close()
	}
}
