package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// TemplateStore loads named Plan templates from a YAML directory
// (SPEC_FULL.md §B "workflow templates"), hot-reloading on change via
// fsnotify (SPEC_FULL.md §A.3 config style).
type TemplateStore struct {
	mu        sync.RWMutex
	templates map[string]Plan
	heuristic []heuristicEntry

	dir     string
	watcher *fsnotify.Watcher
	log     *slog.Logger
}

// heuristicEntry pairs a template name with keywords matched against a
// user request for plan-source precedence step 2 (spec §4.8.1).
type heuristicEntry struct {
	name     string
	keywords []string
}

// NewTemplateStore loads every *.yaml/*.yml file in dir as a named Plan
// template and starts watching dir for changes. Call Close when done.
func NewTemplateStore(dir string) (*TemplateStore, error) {
	s := &TemplateStore{
		templates: make(map[string]Plan),
		dir:       dir,
		log:       slog.Default().With("component", "workflow_templates"),
	}
	if dir == "" {
		return s, nil
	}
	if err := s.reload(); err != nil {
		return nil, err
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("workflow: template watcher: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("workflow: watch template dir %q: %w", dir, err)
	}
	s.watcher = watcher
	go s.watch()
	return s, nil
}

func (s *TemplateStore) watch() {
	for {
		select {
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
				if err := s.reload(); err != nil {
					s.log.Warn("template reload failed", "error", err)
				}
			}
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.log.Warn("template watcher error", "error", err)
		}
	}
}

func (s *TemplateStore) reload() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("workflow: read template dir %q: %w", s.dir, err)
	}
	loaded := make(map[string]Plan)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(s.dir, e.Name()))
		if err != nil {
			return fmt.Errorf("workflow: read template %q: %w", e.Name(), err)
		}
		var p Plan
		if err := yaml.Unmarshal(raw, &p); err != nil {
			return fmt.Errorf("workflow: parse template %q: %w", e.Name(), err)
		}
		if err := ValidatePlan(p); err != nil {
			return fmt.Errorf("workflow: template %q: %w", e.Name(), err)
		}
		if p.Name == "" {
			p.Name = strings.TrimSuffix(e.Name(), ext)
		}
		loaded[p.Name] = p
	}

	s.mu.Lock()
	s.templates = loaded
	s.mu.Unlock()
	s.log.Info("workflow templates reloaded", "count", len(loaded))
	return nil
}

// Get returns the named template, cloned so callers can't mutate the
// stored copy.
func (s *TemplateStore) Get(name string) (Plan, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.templates[name]
	if !ok {
		return Plan{}, false
	}
	steps := make([]Step, len(p.Steps))
	copy(steps, p.Steps)
	p.Steps = steps
	return p, true
}

// Info is a template's name and planner-authored summary, for
// list_workflow_templates (spec §6 Inbound).
type Info struct {
	Name        string
	Description string
}

// List returns every currently loaded template's name and reasoning text,
// sorted by name.
func (s *TemplateStore) List() []Info {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Info, 0, len(s.templates))
	for name, p := range s.templates {
		out = append(out, Info{Name: name, Description: p.Reasoning})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// RegisterHeuristic associates keywords with an already-loaded template
// name, used by MatchHeuristic (spec §4.8.1 step 2).
func (s *TemplateStore) RegisterHeuristic(name string, keywords ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.heuristic = append(s.heuristic, heuristicEntry{name: name, keywords: keywords})
}

// MatchHeuristic returns the first registered template whose keyword set
// intersects request (case-insensitive substring match).
func (s *TemplateStore) MatchHeuristic(ctx context.Context, request string) (Plan, bool) {
	s.mu.RLock()
	entries := append([]heuristicEntry(nil), s.heuristic...)
	s.mu.RUnlock()

	lower := strings.ToLower(request)
	for _, e := range entries {
		for _, kw := range e.keywords {
			if strings.Contains(lower, strings.ToLower(kw)) {
				if p, ok := s.Get(e.name); ok {
					return p, true
				}
			}
		}
	}
	return Plan{}, false
}

// Close stops the template watcher.
func (s *TemplateStore) Close() error {
	if s.watcher == nil {
		return nil
	}
	return s.watcher.Close()
}
