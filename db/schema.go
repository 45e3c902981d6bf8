package db

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tailscale/hujson"
)

// FieldType is the declared JSON type of a model field.
type FieldType string

const (
	TypeString  FieldType = "string"
	TypeNumber  FieldType = "number"
	TypeBoolean FieldType = "boolean"
	TypeDate    FieldType = "date"
	TypeObject  FieldType = "object"
	TypeArray   FieldType = "array"
)

// Field is one entry of a model's field map.
type Field struct {
	Type     FieldType `json:"type"`
	Required bool      `json:"required,omitempty"`
	Default  string    `json:"default,omitempty"`
	Value    string    `json:"value,omitempty"`
	Generate string    `json:"generate,omitempty"`
	Enum     []string  `json:"enum,omitempty"`
	TTL      bool      `json:"ttl,omitempty"`
	Hidden   bool      `json:"hidden,omitempty"`
	// Unique and Crypt are schema-allowed but never enforced, matching
	// spec.md's note that the source never enforces them either.
	Unique bool `json:"unique,omitempty"`
	Crypt  bool `json:"crypt,omitempty"`
}

// Model is a named entity type: a field map plus its process policy.
type Model struct {
	Name     string
	Fields   map[string]*Field
	Sort     string // the primary index's sort field name, shared by all models
	Enable   string // "both" | "device" | "cloud"
	Sync     string // "none" | "up" | "down" | "both"
	Mem      bool
	Delay    int // seconds; 0 = immediate
	TTLField string
}

// SchemaParams holds the schema-wide `params` section.
type SchemaParams struct {
	Timestamps bool
	TypeField  string
}

// IndexPrimary names the sort field backing the in-memory primary index.
// Hash is accepted for cloud-side schema compatibility but is not used by
// the in-memory index itself.
type IndexPrimary struct {
	Hash string
	Sort string
}

// Schema is a frozen, loaded set of models and index declarations.
//
// A Schema is immutable once returned by [LoadSchema]; callers must treat
// its exported fields as read-only. There is nothing to enforce that in Go
// beyond convention (the C source enforced it by never re-parsing), so this
// struct has no mutating methods after construction.
type Schema struct {
	Params  SchemaParams
	Primary IndexPrimary
	Models  map[string]*Model
}

// rawSchema mirrors the on-disk JSON5 shape before model/process are merged.
type rawSchema struct {
	Params map[string]json.RawMessage `json:"params"`
	Indexes struct {
		Primary struct {
			Hash string `json:"hash"`
			Sort string `json:"sort"`
		} `json:"primary"`
	} `json:"indexes"`
	Models  map[string]map[string]*Field `json:"models"`
	Process map[string]struct {
		Enable string `json:"enable"`
		Sync   string `json:"sync"`
		Mem    bool   `json:"mem"`
		Delay  int    `json:"delay"`
	} `json:"process"`
	Blend []string `json:"blend"`
}

// LoadSchema parses a JSON5 schema file at path, applies any top-level
// `blend` fragments (resolved relative to path's directory, later files
// overriding same-keyed top-level values from earlier ones), and returns
// the frozen result.
//
// Models whose process.enable is "cloud" are dropped: this is a
// device-local store and cloud-only models have no on-device presence.
func LoadSchema(path string) (*Schema, error) {
	merged, err := loadAndBlend(path, make(map[string]bool))
	if err != nil {
		return nil, err
	}

	var raw rawSchema
	if err := json.Unmarshal(merged, &raw); err != nil {
		return nil, wrap(KindBadFormat, fmt.Errorf("decode schema: %w", err))
	}

	return buildSchema(&raw)
}

// loadAndBlend reads path as JSON5, standardizes it to strict JSON, and
// folds in any blend files named at its top level, following each blend
// file's own blend entries recursively. seen guards against a blend file
// re-including a path already visited in this load, so two files that name
// each other do not loop.
func loadAndBlend(path string, seen map[string]bool) ([]byte, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, wrap(KindCantRead, err)
	}

	if seen[abs] {
		return []byte(`{}`), nil
	}
	seen[abs] = true

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, wrap(KindCantOpen, fmt.Errorf("read schema %q: %w", path, err))
	}

	std, err := hujson.Standardize(data)
	if err != nil {
		return nil, wrap(KindBadFormat, fmt.Errorf("parse schema %q: %w", path, err))
	}

	var top map[string]json.RawMessage
	if err := json.Unmarshal(std, &top); err != nil {
		return nil, wrap(KindBadFormat, fmt.Errorf("decode schema %q: %w", path, err))
	}

	var blendPaths []string
	if raw, ok := top["blend"]; ok {
		if err := json.Unmarshal(raw, &blendPaths); err != nil {
			return nil, wrap(KindBadFormat, fmt.Errorf("decode blend list in %q: %w", path, err))
		}
	}

	dir := filepath.Dir(path)

	for _, rel := range blendPaths {
		blendPath := rel
		if !filepath.IsAbs(blendPath) {
			blendPath = filepath.Join(dir, blendPath)
		}

		blended, err := loadAndBlend(blendPath, seen)
		if err != nil {
			return nil, err
		}

		var blendedTop map[string]json.RawMessage
		if err := json.Unmarshal(blended, &blendedTop); err != nil {
			return nil, wrap(KindBadFormat, fmt.Errorf("decode blended schema %q: %w", blendPath, err))
		}

		for k, v := range blendedTop {
			top[k] = v
		}
	}

	return json.Marshal(top)
}

func buildSchema(raw *rawSchema) (*Schema, error) {
	schema := &Schema{
		Params: SchemaParams{
			TypeField: "_type",
		},
		Primary: IndexPrimary{
			Hash: raw.Indexes.Primary.Hash,
			Sort: raw.Indexes.Primary.Sort,
		},
		Models: make(map[string]*Model, len(raw.Models)),
	}

	if v, ok := raw.Params["timestamps"]; ok {
		if err := json.Unmarshal(v, &schema.Params.Timestamps); err != nil {
			return nil, wrap(KindBadFormat, fmt.Errorf("params.timestamps: %w", err))
		}
	}

	if v, ok := raw.Params["typeField"]; ok {
		var tf string
		if err := json.Unmarshal(v, &tf); err != nil {
			return nil, wrap(KindBadFormat, fmt.Errorf("params.typeField: %w", err))
		}
		if tf != "" {
			schema.Params.TypeField = tf
		}
	}

	if schema.Primary.Sort == "" {
		return nil, wrap(KindBadFormat, fmt.Errorf("indexes.primary.sort is required"))
	}

	for name, fields := range raw.Models {
		proc := raw.Process[name]

		if proc.Enable == "cloud" {
			continue
		}

		model := &Model{
			Name:   name,
			Fields: fields,
			Sort:   schema.Primary.Sort,
			Enable: proc.Enable,
			Sync:   proc.Sync,
			Mem:    proc.Mem,
			Delay:  proc.Delay,
		}

		for fname, f := range fields {
			if f.TTL {
				model.TTLField = fname
			}

			if f.Generate != "" {
				if err := validateGenerateSpec(fname, f.Generate); err != nil {
					return nil, err
				}
			}
		}

		schema.Models[name] = model
	}

	return schema, nil
}

// ModelFor resolves a model by name, or returns a BadArgs error naming it.
func (s *Schema) ModelFor(name string) (*Model, error) {
	m, ok := s.Models[name]
	if !ok {
		return nil, wrap(KindBadArgs, fmt.Errorf("unknown model %q", name), withModel(name))
	}

	return m, nil
}
