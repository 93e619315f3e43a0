// Package identity is the boundary to the identity and organization
// subsystem: it resolves an actor id to organization, role and edit
// permission.
package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/revledger/revledger/internal/types"
)

// Directory resolves actors. Implementations return an error wrapping
// types.ErrNotFound for unknown ids.
type Directory interface {
	LookupActor(ctx context.Context, id string) (*types.Actor, error)
}

// StaticDirectory is an in-memory Directory.
type StaticDirectory struct {
	mu     sync.RWMutex
	actors map[string]*types.Actor
}

// NewStaticDirectory creates a directory holding actors.
func NewStaticDirectory(actors ...*types.Actor) *StaticDirectory {
	d := &StaticDirectory{}
	d.Replace(actors)
	return d
}

// LookupActor returns a copy of the actor with the given id.
func (d *StaticDirectory) LookupActor(_ context.Context, id string) (*types.Actor, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	a, ok := d.actors[id]
	if !ok {
		return nil, fmt.Errorf("actor %q: %w", id, types.ErrNotFound)
	}
	cp := *a
	return &cp, nil
}

// Replace swaps the whole actor set atomically.
func (d *StaticDirectory) Replace(actors []*types.Actor) {
	m := make(map[string]*types.Actor, len(actors))
	for _, a := range actors {
		m[a.ID] = a
	}
	d.mu.Lock()
	d.actors = m
	d.mu.Unlock()
}

// Actors returns all actors sorted by id.
func (d *StaticDirectory) Actors() []*types.Actor {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]*types.Actor, 0, len(d.actors))
	for _, a := range d.actors {
		cp := *a
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

type directoryFile struct {
	Actors []*types.Actor `yaml:"actors"`
}

// ParseActors decodes and validates an actors YAML document:
//
//	actors:
//	  - id: alice
//	    organization_id: acme
//	    role: admin
//	  - id: bob
//	    organization_id: acme
//	    role: member
//	    edit_permission: true
func ParseActors(data []byte) ([]*types.Actor, error) {
	var f directoryFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse actors: %w", err)
	}
	seen := make(map[string]bool, len(f.Actors))
	for i, a := range f.Actors {
		if a == nil || a.ID == "" {
			return nil, fmt.Errorf("actor #%d: id is required", i+1)
		}
		if seen[a.ID] {
			return nil, fmt.Errorf("actor %q: duplicate id", a.ID)
		}
		seen[a.ID] = true
		if a.OrganizationID == "" {
			return nil, fmt.Errorf("actor %q: organization_id is required", a.ID)
		}
		if a.Role == "" {
			a.Role = types.RoleMember
		}
		if !a.Role.IsValid() {
			return nil, fmt.Errorf("actor %q: invalid role %q", a.ID, a.Role)
		}
	}
	return f.Actors, nil
}

// FileDirectory is a StaticDirectory loaded from a YAML file.
type FileDirectory struct {
	*StaticDirectory
	path string
}

// LoadFile reads the actors file at path. A missing file yields an empty
// directory so that every lookup fails closed.
func LoadFile(path string) (*FileDirectory, error) {
	d := &FileDirectory{StaticDirectory: NewStaticDirectory(), path: path}
	if err := d.Reload(); err != nil {
		return nil, err
	}
	return d, nil
}

// Path returns the backing file.
func (d *FileDirectory) Path() string {
	return d.path
}

// Reload re-reads the file. On a parse error the previous actors stay.
func (d *FileDirectory) Reload() error {
	data, err := os.ReadFile(d.path) // #nosec G304 - path comes from trusted config
	if errors.Is(err, os.ErrNotExist) {
		d.Replace(nil)
		return nil
	}
	if err != nil {
		return fmt.Errorf("read actors file: %w", err)
	}
	actors, err := ParseActors(data)
	if err != nil {
		return err
	}
	d.Replace(actors)
	return nil
}

// Watch reloads the directory whenever its file changes, until ctx is done.
// Rapid bursts of writes are debounced.
func (d *FileDirectory) Watch(ctx context.Context, log *slog.Logger) error {
	if log == nil {
		log = slog.Default()
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	// Watch the directory: editors often replace the file instead of writing it.
	dir := filepath.Dir(d.path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	var debounce *time.Timer
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()
	target := filepath.Clean(d.path)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) && !event.Has(fsnotify.Remove) {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(200*time.Millisecond, func() {
				if err := d.Reload(); err != nil {
					log.Error("reload actors failed, keeping previous set", "path", d.path, "error", err)
					return
				}
				log.Info("actors reloaded", "path", d.path, "count", len(d.Actors()))
			})
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warn("actors watcher error", "error", err)
		}
	}
}
