// Package snapshot loads raw collector snapshots from disk and watches them for replacement.
package snapshot

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"

	"github.com/j-veylop/spendlens/internal/models"
)

//go:embed snapshot.schema.json
var schemaFS embed.FS

var (
	schemaOnce sync.Once
	schema     *gojsonschema.Schema
	schemaErr  error
)

func getSchema() (*gojsonschema.Schema, error) {
	schemaOnce.Do(func() {
		b, err := schemaFS.ReadFile("snapshot.schema.json")
		if err != nil {
			schemaErr = err
			return
		}
		schema, schemaErr = gojsonschema.NewSchema(gojsonschema.NewBytesLoader(b))
	})
	return schema, schemaErr
}

// ValidationError lists the schema violations found in a snapshot document.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid snapshot: " + strings.Join(e.Problems, "; ")
}

// Validate checks a snapshot document against the embedded schema.
func Validate(data []byte) error {
	s, err := getSchema()
	if err != nil {
		return fmt.Errorf("failed to load snapshot schema: %w", err)
	}
	res, err := s.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return fmt.Errorf("failed to validate snapshot: %w", err)
	}
	if res.Valid() {
		return nil
	}
	problems := make([]string, 0, len(res.Errors()))
	for _, e := range res.Errors() {
		problems = append(problems, e.String())
	}
	return &ValidationError{Problems: problems}
}

// envelope is the collector's export wrapper. Older collectors wrote the
// snapshot object bare.
type envelope struct {
	Version  int             `json:"version"`
	Snapshot json.RawMessage `json:"snapshot"`
}

// unwrap returns the snapshot body, stripping the export envelope if present.
func unwrap(data []byte) []byte {
	var env envelope
	if err := json.Unmarshal(data, &env); err == nil && len(env.Snapshot) > 0 && env.Snapshot[0] == '{' {
		return env.Snapshot
	}
	return data
}

// Parse validates and decodes a snapshot document. Numbers are kept as
// json.Number so money values never pass through float64.
func Parse(data []byte) (*models.RawSnapshot, error) {
	body := unwrap(bytes.TrimSpace(data))
	if len(body) == 0 {
		return nil, &ValidationError{Problems: []string{"document is empty"}}
	}
	if err := Validate(body); err != nil {
		return nil, err
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var raw models.RawSnapshot
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return &raw, nil
}

// LoadFile reads and parses the snapshot at path.
func LoadFile(path string) (*models.RawSnapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot %s: %w", path, err)
	}
	raw, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot %s: %w", path, err)
	}
	return raw, nil
}
