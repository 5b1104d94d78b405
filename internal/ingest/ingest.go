// Package ingest records activity documents in bulk. A failing document is
// reported in the result and never stops the run.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"feedcraft/internal/domain"
	"feedcraft/internal/parser"
)

type Result struct {
	Files         int
	Documents     int
	Recorded      int
	Vetoed        int
	Skipped       int
	EntriesStored int
	Errors        []error
}

type Options struct {
	// Paths are files or directories walked for *.yaml, *.yml, *.jsonl and *.ndjson.
	Paths   []string
	Exclude []string
	// DryRun builds and checks every activity without recording it.
	DryRun bool
}

// Run records every document found under options.Paths. Documents with an
// explicit _id that is already stored are skipped, so re-running an import is safe.
func Run(ctx context.Context, rec Recorder, options Options) (*Result, error) {
	files, err := walkDocumentFiles(options.Paths, options.Exclude)
	if err != nil {
		return nil, fmt.Errorf("walking document files: %w", err)
	}

	result := &Result{Files: len(files)}
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		docs, docErrs, err := parser.ParseFile(path)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Errorf("reading %s: %w", path, err))
			continue
		}
		result.Errors = append(result.Errors, docErrs...)
		for _, doc := range docs {
			result.Documents++
			if err := recordDocument(ctx, rec, doc, options, result); err != nil {
				result.Errors = append(result.Errors, &parser.DocumentError{Source: doc.Source, Index: doc.Index, Err: err})
			}
		}
	}
	return result, nil
}

func recordDocument(ctx context.Context, rec Recorder, doc *parser.Document, options Options, result *Result) error {
	if id := doc.ID(); id != "" {
		existing, err := rec.Activity(ctx, id)
		switch {
		case err == nil && existing != nil:
			result.Skipped++
			return nil
		case err != nil && !errors.Is(err, domain.ErrNotFound):
			return err
		}
	}

	// an explicit _id would mark the activity as stored already
	fields := make(map[string]any, len(doc.Fields))
	for k, v := range doc.Fields {
		if k != "_id" {
			fields[k] = v
		}
	}
	a, err := rec.NewActivity(doc.Kind, fields)
	if err != nil {
		return err
	}
	if options.DryRun {
		return a.Check()
	}
	if id := doc.ID(); id != "" {
		if err := a.SetID(id); err != nil {
			return err
		}
	}

	res, err := rec.Record(ctx, a)
	if a.IsStored() {
		result.Recorded++
	}
	if res != nil {
		result.EntriesStored += res.Stored
	}
	if err != nil {
		return err
	}
	if res == nil && !a.IsStored() {
		result.Vetoed++
	}
	return nil
}

func walkDocumentFiles(roots []string, excludes []string) ([]string, error) {
	excluded := make([]string, 0, len(excludes))
	for _, path := range excludes {
		if path == "" {
			continue
		}
		excluded = append(excluded, filepath.Clean(path))
	}

	var files []string
	for _, root := range roots {
		if root == "" {
			continue
		}
		root = filepath.Clean(root)
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() && isExcluded(path, excluded) {
				return filepath.SkipDir
			}
			if d.IsDir() {
				return nil
			}
			if parser.FormatFor(d.Name()) == parser.FormatUnknown {
				return nil
			}
			if isExcluded(path, excluded) {
				return nil
			}
			files = append(files, path)
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return files, nil
}

func isExcluded(path string, excludes []string) bool {
	clean := filepath.Clean(path)
	for _, exclude := range excludes {
		if exclude == clean || strings.HasPrefix(clean, exclude+string(os.PathSeparator)) {
			return true
		}
	}
	return false
}
