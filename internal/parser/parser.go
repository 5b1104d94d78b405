// Package parser decodes activity documents: YAML streams of one mapping per
// document, or JSON lines of one object per line. Each document carries the
// activity kind plus its fields in the canonical flat form.
package parser

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Format int

const (
	FormatUnknown Format = iota
	FormatYAML
	FormatJSONL
)

// FormatFor picks the format from a file extension.
func FormatFor(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	case ".jsonl", ".ndjson":
		return FormatJSONL
	}
	return FormatUnknown
}

type Document struct {
	Source string
	// Index is the 1-based document number in a YAML stream, or the line in a JSONL file.
	Index  int
	Kind   string
	Fields map[string]any
}

// ID returns the explicit "_id" of the document, if any.
func (d *Document) ID() string {
	id, _ := d.Fields["_id"].(string)
	return strings.TrimSpace(id)
}

var (
	ErrInvalidYAML     = errors.New("invalid YAML document")
	ErrInvalidJSON     = errors.New("invalid JSON document")
	ErrMissingKind     = errors.New("document missing required 'kind' field")
	ErrInvalidAt       = errors.New("document 'at' is not an RFC 3339 timestamp")
	ErrUnsupportedFile = errors.New("unsupported document file")
)

// DocumentError ties a decoding failure to the document it came from.
type DocumentError struct {
	Source string
	Index  int
	Err    error
}

func (e *DocumentError) Error() string {
	return fmt.Sprintf("%s#%d: %v", e.Source, e.Index, e.Err)
}

func (e *DocumentError) Unwrap() error { return e.Err }

// ParseFile reads path and decodes every document in it. Per-document
// failures are returned alongside the documents that decoded; err is only
// set when the file itself cannot be read.
func ParseFile(path string) (docs []*Document, docErrs []error, err error) {
	format := FormatFor(path)
	if format == FormatUnknown {
		return nil, nil, fmt.Errorf("%w: %s", ErrUnsupportedFile, path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}
	docs, docErrs = Parse(data, path, format)
	return docs, docErrs, nil
}

func Parse(content []byte, source string, format Format) ([]*Document, []error) {
	switch format {
	case FormatYAML:
		return parseYAML(content, source)
	case FormatJSONL:
		return parseJSONL(content, source)
	}
	return nil, []error{&DocumentError{Source: source, Err: ErrUnsupportedFile}}
}

func parseYAML(content []byte, source string) ([]*Document, []error) {
	var docs []*Document
	var errs []error
	dec := yaml.NewDecoder(bytes.NewReader(bytes.TrimLeft(content, "\ufeff")))
	for index := 1; ; index++ {
		var fields map[string]any
		err := dec.Decode(&fields)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			// the decoder cannot resynchronise after a syntax error
			errs = append(errs, &DocumentError{Source: source, Index: index, Err: fmt.Errorf("%w: %v", ErrInvalidYAML, err)})
			break
		}
		if fields == nil {
			continue
		}
		doc, err := newDocument(source, index, fields)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		docs = append(docs, doc)
	}
	return docs, errs
}

func parseJSONL(content []byte, source string) ([]*Document, []error) {
	var docs []*Document
	var errs []error
	scanner := bufio.NewScanner(bytes.NewReader(content))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := bytes.TrimSpace(scanner.Bytes())
		if len(text) == 0 || text[0] == '#' {
			continue
		}
		var fields map[string]any
		dec := json.NewDecoder(bytes.NewReader(text))
		dec.UseNumber()
		if err := dec.Decode(&fields); err != nil {
			errs = append(errs, &DocumentError{Source: source, Index: line, Err: fmt.Errorf("%w: %v", ErrInvalidJSON, err)})
			continue
		}
		doc, err := newDocument(source, line, normalizeNumbers(fields).(map[string]any))
		if err != nil {
			errs = append(errs, err)
			continue
		}
		docs = append(docs, doc)
	}
	if err := scanner.Err(); err != nil {
		errs = append(errs, &DocumentError{Source: source, Index: line + 1, Err: err})
	}
	return docs, errs
}

func newDocument(source string, index int, fields map[string]any) (*Document, error) {
	kind, _ := fields["kind"].(string)
	if strings.TrimSpace(kind) == "" {
		return nil, &DocumentError{Source: source, Index: index, Err: ErrMissingKind}
	}
	if raw, ok := fields["at"].(string); ok {
		at, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return nil, &DocumentError{Source: source, Index: index, Err: ErrInvalidAt}
		}
		fields["at"] = at
	}
	if id, ok := fields["_id"]; ok {
		switch v := id.(type) {
		case string:
		case int, int64, float64:
			fields["_id"] = fmt.Sprint(v)
		default:
			return nil, &DocumentError{Source: source, Index: index, Err: fmt.Errorf("_id must be a string, got %T", id)}
		}
	}
	return &Document{Source: source, Index: index, Kind: strings.TrimSpace(kind), Fields: fields}, nil
}

// normalizeNumbers turns json.Number into int64 where exact and float64 otherwise.
func normalizeNumbers(v any) any {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		f, _ := t.Float64()
		return f
	case map[string]any:
		for k, item := range t {
			t[k] = normalizeNumbers(item)
		}
		return t
	case []any:
		for i, item := range t {
			t[i] = normalizeNumbers(item)
		}
		return t
	}
	return v
}
