package identity

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/revledger/revledger/internal/types"
)

const actorsYAML = `
actors:
  - id: ann
    name: Ann Admin
    organization_id: acme
    role: admin
  - id: mo
    organization_id: acme
    edit_permission: true
`

func TestParseActors(t *testing.T) {
	actors, err := ParseActors([]byte(actorsYAML))
	if err != nil {
		t.Fatalf("ParseActors: %v", err)
	}
	if len(actors) != 2 {
		t.Fatalf("got %d actors, want 2", len(actors))
	}
	if actors[1].Role != types.RoleMember || !actors[1].EditPermission {
		t.Fatalf("mo = %+v, want member with edit permission", actors[1])
	}
}

func TestParseActorsErrors(t *testing.T) {
	tests := map[string]string{
		"missing id":   "actors:\n  - organization_id: acme\n",
		"missing org":  "actors:\n  - id: x\n",
		"bad role":     "actors:\n  - id: x\n    organization_id: acme\n    role: owner\n",
		"duplicate id": "actors:\n  - id: x\n    organization_id: a\n  - id: x\n    organization_id: a\n",
		"invalid yaml": "actors: [",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := ParseActors([]byte(doc)); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestStaticDirectoryLookup(t *testing.T) {
	d := NewStaticDirectory(&types.Actor{ID: "ann", OrganizationID: "acme", Role: types.RoleAdmin})
	a, err := d.LookupActor(context.Background(), "ann")
	if err != nil {
		t.Fatalf("LookupActor: %v", err)
	}
	a.Role = types.RoleMember
	again, _ := d.LookupActor(context.Background(), "ann")
	if again.Role != types.RoleAdmin {
		t.Fatal("LookupActor returned a shared pointer")
	}
	if _, err := d.LookupActor(context.Background(), "ghost"); !errors.Is(err, types.ErrNotFound) {
		t.Fatalf("LookupActor(ghost) = %v, want ErrNotFound", err)
	}
}

func TestLoadFileMissingIsEmpty(t *testing.T) {
	d, err := LoadFile(filepath.Join(t.TempDir(), "actors.yaml"))
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if len(d.Actors()) != 0 {
		t.Fatal("expected empty directory")
	}
}

func TestReloadKeepsPreviousOnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "actors.yaml")
	if err := os.WriteFile(path, []byte(actorsYAML), 0o600); err != nil {
		t.Fatal(err)
	}
	d, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if err := os.WriteFile(path, []byte("actors: ["), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := d.Reload(); err == nil {
		t.Fatal("Reload of broken file succeeded")
	}
	if len(d.Actors()) != 2 {
		t.Fatalf("previous actors lost, have %d", len(d.Actors()))
	}
}

func TestWatchReloads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "actors.yaml")
	if err := os.WriteFile(path, []byte("actors: []\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	d, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Watch(ctx, nil) }()
	defer func() {
		cancel()
		<-done
	}()

	// Give the watcher time to register before writing.
	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(path, []byte(actorsYAML), 0o600); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := d.LookupActor(context.Background(), "ann"); err == nil {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatal("directory was not reloaded after file change")
}
