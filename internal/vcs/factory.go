// SPDX-License-Identifier: MIT
package vcs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/skaphos/repomonitor/internal/model"
	"github.com/skaphos/repomonitor/internal/strutil"
)

// ParseAdapterSelection parses backend selections such as "git,go-git".
func ParseAdapterSelection(raw string) ([]string, error) {
	values := strutil.SplitCSV(raw)
	if len(values) == 0 {
		return []string{"git"}, nil
	}
	out := make([]string, 0, len(values))
	seen := map[string]struct{}{}
	for _, value := range values {
		name := strings.ToLower(strings.TrimSpace(value))
		switch name {
		case "git":
		case "go-git", "gogit":
			name = "go-git"
		default:
			return nil, fmt.Errorf("unsupported backend %q (supported: git,go-git)", value)
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	if len(out) == 0 {
		return []string{"git"}, nil
	}
	return out, nil
}

// NewAdapterForSelection creates an adapter for a backend selection. remote
// is the preferred remote name; empty means DefaultRemote.
func NewAdapterForSelection(raw, remote string) (Adapter, error) {
	selected, err := ParseAdapterSelection(raw)
	if err != nil {
		return nil, err
	}
	if remote == "" {
		remote = DefaultRemote
	}
	adapters := make([]Adapter, 0, len(selected))
	for _, name := range selected {
		switch name {
		case "git":
			git := NewGitAdapter(nil)
			git.Remote = remote
			adapters = append(adapters, git)
		case "go-git":
			gogit := NewGoGitAdapter()
			gogit.Remote = remote
			adapters = append(adapters, gogit)
		}
	}
	if len(adapters) == 1 {
		return adapters[0], nil
	}
	return NewMultiAdapter(adapters...), nil
}

// MultiAdapter delegates per-path operations to the first backend that can
// open the repository at that path. With "git,go-git" a missing or broken
// git binary falls back to go-git.
type MultiAdapter struct {
	adapters []Adapter
	byPath   map[string]Adapter
	mu       sync.Mutex
}

func NewMultiAdapter(adapters ...Adapter) *MultiAdapter {
	return &MultiAdapter{adapters: adapters, byPath: map[string]Adapter{}}
}

func (m *MultiAdapter) Name() string {
	names := make([]string, 0, len(m.adapters))
	for _, adapter := range m.adapters {
		names = append(names, adapter.Name())
	}
	return strings.Join(names, ",")
}

func (m *MultiAdapter) Identity(ctx context.Context, dir string) (string, error) {
	var errs []error
	for _, adapter := range m.adapters {
		id, err := adapter.Identity(ctx, dir)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", adapter.Name(), err))
			continue
		}
		m.cache(dir, adapter)
		return id, nil
	}
	return "", errors.Join(errs...)
}

func (m *MultiAdapter) Fetch(ctx context.Context, dir string) error {
	adapter, err := m.adapterForPath(ctx, dir)
	if err != nil {
		return err
	}
	return adapter.Fetch(ctx, dir)
}

func (m *MultiAdapter) RemoteTrackingRef(ctx context.Context, dir string) (string, error) {
	adapter, err := m.adapterForPath(ctx, dir)
	if err != nil {
		return "", err
	}
	return adapter.RemoteTrackingRef(ctx, dir)
}

func (m *MultiAdapter) LocalTrackingRef(ctx context.Context, dir string) (string, error) {
	adapter, err := m.adapterForPath(ctx, dir)
	if err != nil {
		return "", err
	}
	return adapter.LocalTrackingRef(ctx, dir)
}

func (m *MultiAdapter) HistoryLog(ctx context.Context, dir, ref string, limit int) ([]model.LogEntry, error) {
	adapter, err := m.adapterForPath(ctx, dir)
	if err != nil {
		return nil, err
	}
	return adapter.HistoryLog(ctx, dir, ref, limit)
}

func (m *MultiAdapter) adapterForPath(ctx context.Context, dir string) (Adapter, error) {
	m.mu.Lock()
	if adapter, ok := m.byPath[dir]; ok {
		m.mu.Unlock()
		return adapter, nil
	}
	m.mu.Unlock()

	if _, err := m.Identity(ctx, dir); err != nil {
		return nil, fmt.Errorf("no selected backend opened repo at %q: %w", dir, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.byPath[dir], nil
}

func (m *MultiAdapter) cache(dir string, adapter Adapter) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byPath[dir] = adapter
}
