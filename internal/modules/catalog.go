// Package modules is the boundary to the form-module subsystem: which module
// kinds exist, which of their fields are mandatory, and when a payload counts
// as empty. Field-level business rules live with the forms, not here.
package modules

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/BurntSushi/toml"
)

// Definition describes one module kind.
type Definition struct {
	Key         string   `toml:"-" json:"key"`
	Title       string   `toml:"title" json:"title"`
	Description string   `toml:"description" json:"description,omitempty"`
	Required    []string `toml:"required" json:"required,omitempty"`
}

// Catalog is the set of known module kinds. The zero value is an empty
// catalog that accepts any module key and requires no fields.
type Catalog struct {
	defs map[string]*Definition
}

type catalogFile struct {
	Modules map[string]*Definition `toml:"modules"`
}

// LoadCatalog reads a TOML catalog such as
//
//	[modules.escape_routes]
//	title = "Means of escape"
//	required = ["exit_count", "signage"]
//
// A missing file yields an empty catalog.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path) // #nosec G304 - path comes from trusted config
	if errors.Is(err, os.ErrNotExist) {
		return &Catalog{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read module catalog: %w", err)
	}
	return ParseCatalog(string(data))
}

// ParseCatalog decodes a TOML catalog document.
func ParseCatalog(data string) (*Catalog, error) {
	var f catalogFile
	if _, err := toml.Decode(data, &f); err != nil {
		return nil, fmt.Errorf("parse module catalog: %w", err)
	}
	c := &Catalog{defs: make(map[string]*Definition, len(f.Modules))}
	for key, def := range f.Modules {
		if def == nil {
			def = &Definition{}
		}
		def.Key = key
		if def.Title == "" {
			def.Title = key
		}
		c.defs[key] = def
	}
	return c, nil
}

// Len returns the number of module kinds.
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.defs)
}

// Get returns the definition for key.
func (c *Catalog) Get(key string) (*Definition, bool) {
	if c == nil {
		return nil, false
	}
	d, ok := c.defs[key]
	return d, ok
}

// Known reports whether key may be used. An empty catalog knows every key.
func (c *Catalog) Known(key string) bool {
	if c.Len() == 0 {
		return true
	}
	_, ok := c.defs[key]
	return ok
}

// Definitions returns all module kinds sorted by key.
func (c *Catalog) Definitions() []*Definition {
	if c == nil {
		return nil
	}
	out := make([]*Definition, 0, len(c.defs))
	for _, d := range c.defs {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// MissingFields returns the required fields of module key that payload does
// not answer. Unknown modules have no required fields.
func (c *Catalog) MissingFields(key string, payload json.RawMessage) []string {
	def, ok := c.Get(key)
	if !ok {
		return nil
	}
	var missing []string
	for _, field := range def.Required {
		if !fieldPresent(payload, field) {
			missing = append(missing, field)
		}
	}
	return missing
}
