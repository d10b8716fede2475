// Package loader reads form definition documents from YAML or JSON files.
package loader

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/goliatone/go-formflow/pkg/form"
)

// Document is the caller-authored portion of a form definition. Lifecycle
// metadata (id, schema version, timestamps) is always engine-owned and never
// read from a file.
type Document struct {
	Name        string       `json:"name" yaml:"name"`
	Description string       `json:"description,omitempty" yaml:"description,omitempty"`
	Protected   bool         `json:"protected,omitempty" yaml:"protected,omitempty"`
	Fields      []form.Field `json:"fields" yaml:"fields"`
}

// Form converts the document into the shape the lifecycle engine accepts.
func (d Document) Form() form.Form {
	return form.Form{
		Name:        d.Name,
		Description: d.Description,
		Protected:   d.Protected,
		Fields:      d.Fields,
	}
}

// FromFile loads a definition from the filesystem, choosing the decoder by
// extension (.json decodes as JSON, anything else as YAML).
func FromFile(path string) (Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Document{}, fmt.Errorf("loader: read %s: %w", path, err)
	}
	return FromBytes(data, filepath.Ext(path))
}

// FromFS loads a definition from an fs.FS, mirroring FromFile.
func FromFS(fsys fs.FS, path string) (Document, error) {
	data, err := fs.ReadFile(fsys, path)
	if err != nil {
		return Document{}, fmt.Errorf("loader: read %s: %w", path, err)
	}
	return FromBytes(data, filepath.Ext(path))
}

// FromBytes decodes a definition document. ext selects the decoder; an empty
// ext falls back to sniffing for a JSON object.
func FromBytes(data []byte, ext string) (Document, error) {
	var doc Document
	switch {
	case strings.EqualFold(ext, ".json"), ext == "" && looksLikeJSON(data):
		if err := json.Unmarshal(data, &doc); err != nil {
			return Document{}, fmt.Errorf("loader: decode json: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return Document{}, fmt.Errorf("loader: decode yaml: %w", err)
		}
	}
	if len(doc.Fields) == 0 {
		return Document{}, fmt.Errorf("loader: definition declares no fields")
	}
	return doc, nil
}

func looksLikeJSON(data []byte) bool {
	trimmed := strings.TrimSpace(string(data))
	return strings.HasPrefix(trimmed, "{")
}
