package modules

import (
	"encoding/json"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestIsEmpty(t *testing.T) {
	tests := []struct {
		payload string
		want    bool
	}{
		{``, true},
		{`null`, true},
		{`{}`, true},
		{`[]`, true},
		{`""`, true},
		{`"   "`, true},
		{`{"a": null, "b": "", "c": [], "d": {"e": null}}`, true},
		{`not json`, true},
		{`false`, false},
		{`0`, false},
		{`{"exits": 2}`, false},
		{`{"notes": "", "checked": false}`, false},
		{`[null, "x"]`, false},
	}
	for _, tt := range tests {
		if got := IsEmpty(json.RawMessage(tt.payload)); got != tt.want {
			t.Errorf("IsEmpty(%q) = %v, want %v", tt.payload, got, tt.want)
		}
	}
}

const catalogTOML = `
[modules.escape_routes]
title = "Means of escape"
required = ["exit_count", "signage"]

[modules.alarms]
description = "Detection and warning"
`

func TestParseCatalog(t *testing.T) {
	c, err := ParseCatalog(catalogTOML)
	if err != nil {
		t.Fatalf("ParseCatalog: %v", err)
	}
	if c.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", c.Len())
	}
	alarms, ok := c.Get("alarms")
	if !ok || alarms.Title != "alarms" {
		t.Fatalf("alarms definition = %+v", alarms)
	}
	if c.Known("sprinklers") {
		t.Error("unknown module reported as known")
	}
	defs := c.Definitions()
	if defs[0].Key != "alarms" || defs[1].Key != "escape_routes" {
		t.Errorf("Definitions() not sorted: %v, %v", defs[0].Key, defs[1].Key)
	}
}

func TestMissingFields(t *testing.T) {
	c, err := ParseCatalog(catalogTOML)
	if err != nil {
		t.Fatalf("ParseCatalog: %v", err)
	}
	got := c.MissingFields("escape_routes", json.RawMessage(`{"exit_count": 3, "signage": "  "}`))
	if !reflect.DeepEqual(got, []string{"signage"}) {
		t.Fatalf("MissingFields = %v, want [signage]", got)
	}
	if got := c.MissingFields("alarms", json.RawMessage(`{}`)); got != nil {
		t.Fatalf("MissingFields(no required) = %v", got)
	}
	if got := c.MissingFields("unknown", json.RawMessage(`{}`)); got != nil {
		t.Fatalf("MissingFields(unknown) = %v", got)
	}
}

func TestLoadCatalogMissingFile(t *testing.T) {
	c, err := LoadCatalog(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("LoadCatalog: %v", err)
	}
	if c.Len() != 0 || !c.Known("anything") {
		t.Fatal("missing catalog should be empty and permissive")
	}
}

func TestLoadCatalogFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "modules.toml")
	if err := os.WriteFile(path, []byte(catalogTOML), 0o600); err != nil {
		t.Fatal(err)
	}
	c, err := LoadCatalog(path)
	if err != nil {
		t.Fatalf("LoadCatalog: %v", err)
	}
	if !c.Known("escape_routes") {
		t.Fatal("escape_routes not loaded")
	}
}
