package satellites

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Document is the satellites.json / satellites.yaml layout, also used for the
// object kept in S3.
type Document struct {
	Satellites  []Record `json:"satellites" yaml:"satellites"`
	Version     string   `json:"version,omitempty" yaml:"version"`
	LastUpdated string   `json:"lastUpdated,omitempty" yaml:"lastUpdated"`
}

// FileSource reads a structured configuration file (JSON or YAML).
// A missing file yields no records and no error.
type FileSource struct {
	Path string
	Log  *zap.SugaredLogger
}

func (f FileSource) Name() string { return "file:" + f.Path }

func (f FileSource) Load(_ context.Context) ([]Record, error) {
	data, err := os.ReadFile(f.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, &ConfigLoadError{Source: f.Name(), Err: err}
	}
	recs, err := ParseDocument(data, isJSON(f.Path, data), f.Log)
	if err != nil {
		return nil, &ConfigLoadError{Source: f.Name(), Err: err}
	}
	return recs, nil
}

// ParseDocument decodes a satellites document. Entries are decoded one by one
// so that a malformed entry is logged and skipped without failing the rest.
func ParseDocument(data []byte, asJSON bool, log *zap.SugaredLogger) ([]Record, error) {
	var decoders []func(*Record) error
	if asJSON {
		var doc struct {
			Satellites []json.RawMessage `json:"satellites"`
		}
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("decode json: %w", err)
		}
		for _, raw := range doc.Satellites {
			decoders = append(decoders, func(r *Record) error { return json.Unmarshal(raw, r) })
		}
	} else {
		var doc struct {
			Satellites []yaml.Node `yaml:"satellites"`
		}
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("decode yaml: %w", err)
		}
		for i := range doc.Satellites {
			node := &doc.Satellites[i]
			decoders = append(decoders, func(r *Record) error { return node.Decode(r) })
		}
	}

	out := make([]Record, 0, len(decoders))
	for i, decode := range decoders {
		var r Record
		if err := decode(&r); err != nil {
			log.Warnw("skipping malformed satellite entry", "index", i, "err", err)
			continue
		}
		norm, err := Normalize(r)
		if err != nil {
			log.Warnw("skipping invalid satellite entry", "index", i, "err", err)
			continue
		}
		out = append(out, norm)
	}
	return out, nil
}

func isJSON(path string, data []byte) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return true
	case ".yaml", ".yml":
		return false
	}
	return bytes.HasPrefix(bytes.TrimSpace(data), []byte("{"))
}
