// Package configengine evaluates instance configuration from the
// synchronized script tree.
//
// Every *.yaml or *.yml file under the script root contributes a namespace
// named after its path: tenants/default.yaml is addressed as
// "tenants.default". Keys inside a file are addressed with further dots.
package configengine

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/micro-sensor/sitewhere/internal/lifecycle"

	"gopkg.in/yaml.v3"
)

const Name = "configuration-engine"

// Source is the script tree the engine reads from.
type Source interface {
	Dir() string
	OnChange(fn func())
}

// Engine holds the last successfully loaded configuration tree.
type Engine struct {
	*lifecycle.Base

	source Source

	mu     sync.RWMutex
	values map[string]any
	files  []string
	live   bool
}

// New creates an engine over source. Reloads follow source changes while
// the engine is started.
func New(source Source) *Engine {
	e := &Engine{source: source, values: map[string]any{}}
	e.Base = lifecycle.NewBase(Name, lifecycle.Hooks{
		Initialize: e.initialize,
		Start:      e.start,
		Stop:       e.stop,
	})
	source.OnChange(e.onSourceChange)
	return e
}

func (e *Engine) initialize(_ context.Context, m lifecycle.Monitor) error {
	if err := e.Reload(); err != nil {
		return err
	}
	e.mu.RLock()
	n := len(e.files)
	e.mu.RUnlock()
	m.Notify(fmt.Sprintf("loaded %d configuration file(s)", n))
	return nil
}

func (e *Engine) start(context.Context, lifecycle.Monitor) error {
	e.mu.Lock()
	e.live = true
	e.mu.Unlock()
	return nil
}

func (e *Engine) stop(context.Context, lifecycle.Monitor) error {
	e.mu.Lock()
	e.live = false
	e.mu.Unlock()
	return nil
}

func (e *Engine) onSourceChange() {
	e.mu.RLock()
	live := e.live
	e.mu.RUnlock()
	if !live {
		return
	}
	if err := e.Reload(); err != nil {
		slog.Warn("configuration reload failed, keeping previous values", "component", Name, "err", err)
	}
}

// Reload parses the script tree and replaces the current values. On error
// the current values are kept.
func (e *Engine) Reload() error {
	root := e.source.Dir()
	values := make(map[string]any)
	var files []string

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := filepath.Ext(path)
		if ext != ".yaml" && ext != ".yml" {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		var doc any
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return lifecycle.ConfigurationErrorf("parse %s: %w", rel, err)
		}
		ns := strings.ReplaceAll(strings.TrimSuffix(filepath.ToSlash(rel), ext), "/", ".")
		values[ns] = doc
		files = append(files, rel)
		return nil
	})
	if err != nil {
		return lifecycle.Wrap(lifecycle.ClassConfiguration, fmt.Errorf("load configuration from %q: %w", root, err))
	}
	sort.Strings(files)

	e.mu.Lock()
	e.values = values
	e.files = files
	e.mu.Unlock()
	return nil
}

// Files returns the loaded files relative to the script root.
func (e *Engine) Files() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]string(nil), e.files...)
}

// Lookup resolves a dotted key. Namespaces may contain dots themselves, so
// the longest matching namespace wins.
func (e *Engine) Lookup(key string) (any, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	parts := strings.Split(key, ".")
	for i := len(parts); i > 0; i-- {
		doc, ok := e.values[strings.Join(parts[:i], ".")]
		if !ok {
			continue
		}
		if v, ok := walk(doc, parts[i:]); ok {
			return v, true
		}
	}
	return nil, false
}

// String returns the value at key formatted as a string, or def.
func (e *Engine) String(key, def string) string {
	v, ok := e.Lookup(key)
	if !ok || v == nil {
		return def
	}
	switch v := v.(type) {
	case string:
		return v
	case map[string]any, []any:
		return def
	default:
		return fmt.Sprint(v)
	}
}

// Int returns the integer at key, or def.
func (e *Engine) Int(key string, def int) int {
	v, ok := e.Lookup(key)
	if !ok {
		return def
	}
	switch v := v.(type) {
	case int:
		return v
	case string:
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

// Duration returns the duration at key, or def. Values are Go duration
// strings such as "30s".
func (e *Engine) Duration(key string, def time.Duration) time.Duration {
	s := e.String(key, "")
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}

func walk(v any, path []string) (any, bool) {
	for _, p := range path {
		m, ok := v.(map[string]any)
		if !ok {
			return nil, false
		}
		if v, ok = m[p]; !ok {
			return nil, false
		}
	}
	return v, true
}
