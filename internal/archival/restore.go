// Auditkeep - Audit Integrity and Retention Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/auditkeep

package archival

import (
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-json"

	"github.com/tomtom215/auditkeep/internal/audit"
	"github.com/tomtom215/auditkeep/internal/logging"
	"github.com/tomtom215/auditkeep/internal/metrics"
)

// Restore reads an archive file written by Execute and reinserts its rows
// into the table named by the file name prefix. Rows that are still live
// are skipped. It returns the number of rows inserted.
func (r *Runner) Restore(ctx context.Context, location, fileName string) (int64, error) {
	path, err := archivePath(location, fileName)
	if err != nil {
		return 0, err
	}
	table, err := r.tableFromFileName(fileName)
	if err != nil {
		return 0, err
	}

	rows, err := readArchive(path)
	if err != nil {
		return 0, err
	}

	n, err := call(r, func() (int64, error) {
		return r.store.InsertRows(ctx, table, rows)
	})
	if err != nil {
		return n, fmt.Errorf("restore %s into %s: %w", fileName, table, err)
	}

	metrics.RecordsRestored.WithLabelValues(table).Add(float64(n))
	logging.Ctx(ctx).Info().
		Str("file", fileName).
		Str("table", table).
		Int("rows_in_file", len(rows)).
		Int64("restored", n).
		Msg("Archive restored")

	return n, nil
}

// archivePath joins fileName to location, rejecting anything that is not a
// plain file name inside location.
func archivePath(location, fileName string) (string, error) {
	if fileName == "" || fileName != filepath.Base(fileName) || !filepath.IsLocal(fileName) {
		return "", audit.Validationf("invalid archive file name %q", fileName)
	}
	path := filepath.Join(location, fileName)
	if !strings.HasPrefix(path, filepath.Clean(location)+string(os.PathSeparator)) {
		return "", audit.Validationf("invalid archive file name %q", fileName)
	}
	return path, nil
}

func (r *Runner) tableFromFileName(fileName string) (string, error) {
	if !strings.HasSuffix(fileName, jsonExt) && !strings.HasSuffix(fileName, jsonExt+gzipExt) {
		return "", fmt.Errorf("%w: %s is not a .json or .json.gz archive", audit.ErrInvalidFormat, fileName)
	}
	// Longest match wins in case one table name prefixes another.
	var table string
	for _, t := range r.store.RetainableTables() {
		if strings.HasPrefix(fileName, t+"_") && len(t) > len(table) {
			table = t
		}
	}
	if table == "" {
		return "", fmt.Errorf("%w: %s does not name a retainable table", audit.ErrInvalidFormat, fileName)
	}
	return table, nil
}

// readArchive decodes a plain or gzip-compressed archive. The content must
// be a JSON array of objects.
//
//nolint:gosec // G304: path is validated by archivePath
func readArchive(path string) ([]audit.Row, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, audit.NotFoundf("archive %s", filepath.Base(path))
		}
		return nil, &audit.IOError{Op: "open archive", Path: path, Err: err}
	}
	closers := []io.Closer{file}
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i].Close() //nolint:errcheck // Read-only
		}
	}()

	var reader io.Reader = file
	if strings.HasSuffix(path, gzipExt) {
		gz, err := gzip.NewReader(file)
		if err != nil {
			return nil, &audit.IOError{Op: "open gzip archive", Path: path, Err: err}
		}
		closers = append(closers, gz)
		reader = gz
	}

	var content interface{}
	if err := json.NewDecoder(reader).Decode(&content); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", audit.ErrInvalidFormat, filepath.Base(path), err)
	}

	list, ok := content.([]interface{})
	if !ok {
		return nil, fmt.Errorf("%w: %s does not contain a list of records", audit.ErrInvalidFormat, filepath.Base(path))
	}

	rows := make([]audit.Row, 0, len(list))
	for i, item := range list {
		obj, ok := item.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("%w: element %d of %s is not an object", audit.ErrInvalidFormat, i, filepath.Base(path))
		}
		rows = append(rows, audit.Row(obj))
	}
	return rows, nil
}
