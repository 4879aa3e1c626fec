// Package scripting mirrors the instance script tree from its source
// directory into the local data root and keeps it in sync while running.
package scripting

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/micro-sensor/sitewhere/internal/lifecycle"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"
)

const (
	Name = "script-synchronizer"

	syncMaxElapsed = 30 * time.Second
)

// Option configures a Synchronizer.
type Option func(*Synchronizer)

// WithInterval sets the resync period. Zero disables background resync.
func WithInterval(d time.Duration) Option {
	return func(s *Synchronizer) { s.interval = d }
}

// WithBackoff overrides the retry policy for a failed background sync.
func WithBackoff(newBackoff func() backoff.BackOff) Option {
	return func(s *Synchronizer) { s.newBackoff = newBackoff }
}

// Synchronizer copies every regular file under source into target and
// removes target files that no longer exist in source. An empty source
// leaves target as-is; scripts are then managed in place.
type Synchronizer struct {
	*lifecycle.Base

	source     string
	target     string
	interval   time.Duration
	newBackoff func() backoff.BackOff

	mu        sync.Mutex
	listeners []func()
	lastSync  time.Time
	cancel    context.CancelFunc
	group     *errgroup.Group
}

// New creates a synchronizer that mirrors source into target.
func New(source, target string, opts ...Option) *Synchronizer {
	s := &Synchronizer{
		source: source,
		target: target,
		newBackoff: func() backoff.BackOff {
			return backoff.NewExponentialBackOff(
				backoff.WithInitialInterval(200*time.Millisecond),
				backoff.WithMaxInterval(5*time.Second),
				backoff.WithMaxElapsedTime(syncMaxElapsed),
			)
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.Base = lifecycle.NewBase(Name, lifecycle.Hooks{
		Initialize: s.initialize,
		Start:      s.start,
		Stop:       s.stop,
	})
	return s
}

// Dir returns the local script root.
func (s *Synchronizer) Dir() string {
	return s.target
}

// LastSync returns when the tree last changed locally.
func (s *Synchronizer) LastSync() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSync
}

// OnChange registers fn to run after a sync that changed the local tree.
func (s *Synchronizer) OnChange(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

func (s *Synchronizer) initialize(_ context.Context, m lifecycle.Monitor) error {
	if s.target == "" {
		return lifecycle.ConfigurationErrorf("script directory is required")
	}
	if err := os.MkdirAll(s.target, 0o755); err != nil {
		return lifecycle.ConfigurationErrorf("create script directory %q: %w", s.target, err)
	}
	if s.source == "" {
		m.Notify("scripts managed in place at " + s.target)
		return nil
	}
	info, err := os.Stat(s.source)
	if err != nil {
		return lifecycle.ConfigurationErrorf("script source %q: %w", s.source, err)
	}
	if !info.IsDir() {
		return lifecycle.ConfigurationErrorf("script source %q is not a directory", s.source)
	}

	changed, err := s.Sync()
	if err != nil {
		return err
	}
	m.Notify(fmt.Sprintf("synchronized %d script file(s)", changed))
	return nil
}

func (s *Synchronizer) start(context.Context, lifecycle.Monitor) error {
	if s.source == "" || s.interval <= 0 {
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.loop(ctx) })

	s.mu.Lock()
	s.cancel, s.group = cancel, g
	s.mu.Unlock()
	return nil
}

func (s *Synchronizer) stop(context.Context, lifecycle.Monitor) error {
	s.mu.Lock()
	cancel, g := s.cancel, s.group
	s.cancel, s.group = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func (s *Synchronizer) loop(ctx context.Context) error {
	log := slog.With("component", Name, "source", s.source)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		attempt := 0
		op := func() error {
			attempt++
			_, err := s.Sync()
			return err
		}
		notify := func(err error, next time.Duration) {
			log.Debug("script sync failed, retrying", "attempt", attempt, "backoff", next, "err", err)
		}
		if err := backoff.RetryNotify(op, backoff.WithContext(s.newBackoff(), ctx), notify); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Warn("script sync gave up until next interval", "err", err)
		}
	}
}

// Sync mirrors source into target once and returns the number of files
// written or removed. Listeners run when that number is non-zero.
func (s *Synchronizer) Sync() (int, error) {
	if s.source == "" {
		return 0, nil
	}

	seen := make(map[string]struct{})
	changed := 0
	err := filepath.WalkDir(s.source, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(s.source, path)
		if err != nil {
			return err
		}
		dst := filepath.Join(s.target, rel)
		if d.IsDir() {
			return os.MkdirAll(dst, 0o755)
		}
		if !d.Type().IsRegular() {
			return nil
		}
		seen[rel] = struct{}{}
		wrote, err := copyIfChanged(path, dst)
		if err != nil {
			return err
		}
		if wrote {
			changed++
		}
		return nil
	})
	if err != nil {
		return changed, fmt.Errorf("sync scripts from %q: %w", s.source, err)
	}

	removed, err := s.prune(seen)
	changed += removed
	if err != nil {
		return changed, fmt.Errorf("prune scripts in %q: %w", s.target, err)
	}

	if changed > 0 {
		s.mu.Lock()
		s.lastSync = time.Now()
		listeners := append([]func(){}, s.listeners...)
		s.mu.Unlock()
		for _, fn := range listeners {
			fn()
		}
	}
	return changed, nil
}

func (s *Synchronizer) prune(seen map[string]struct{}) (int, error) {
	removed := 0
	err := filepath.WalkDir(s.target, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(s.target, path)
		if err != nil {
			return err
		}
		if _, ok := seen[rel]; ok {
			return nil
		}
		if err := os.Remove(path); err != nil {
			return err
		}
		removed++
		return nil
	})
	return removed, err
}

func copyIfChanged(src, dst string) (bool, error) {
	srcInfo, err := os.Stat(src)
	if err != nil {
		return false, err
	}
	if dstInfo, err := os.Stat(dst); err == nil {
		if dstInfo.Size() == srcInfo.Size() && dstInfo.ModTime().Equal(srcInfo.ModTime()) {
			return false, nil
		}
	}

	in, err := os.Open(src)
	if err != nil {
		return false, err
	}
	defer in.Close()

	tmp := dst + ".sync"
	out, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return false, err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(tmp)
		return false, err
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return false, err
	}
	if err := os.Chtimes(tmp, srcInfo.ModTime(), srcInfo.ModTime()); err != nil {
		os.Remove(tmp)
		return false, err
	}
	if err := os.Rename(tmp, dst); err != nil {
		os.Remove(tmp)
		return false, err
	}
	return true, nil
}
