// Auditkeep - Audit Integrity and Retention Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/auditkeep

/*
archive_writer.go - Archive File Creation

Archive files hold one table's archive band for one policy run as a JSON
array of rows:

	<table>_<policyID>_<YYYY-MM-DD>T<HHMMSS>.json
	<table>_<policyID>_<YYYY-MM-DD>T<HHMMSS>.json.gz   (compression enabled)

Rows are encoded one at a time into a file -> gzip -> buffer pipeline, so
at most one encoded row is resident regardless of band size. Output goes to
a temporary file in the archive directory which is renamed into place once
every writer has been flushed and closed; a failed run never leaves a
truncated archive under the final name.

Directories are created 0750 and files 0640.
*/

//nolint:staticcheck // File documentation, not package doc
package archival

import (
	"bufio"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/auditkeep/internal/audit"
	"github.com/tomtom215/auditkeep/internal/metrics"
)

const (
	archiveTimeLayout = "2006-01-02T150405"
	jsonExt           = ".json"
	gzipExt           = ".gz"
	dirPerm           = 0o750
	filePerm          = 0o640
)

// ArchiveFileName returns the file name an archive of table for policyID
// taken at t is written under.
func ArchiveFileName(table, policyID string, t time.Time, compressed bool) string {
	name := fmt.Sprintf("%s_%s_%s%s", table, policyID, t.UTC().Format(archiveTimeLayout), jsonExt)
	if compressed {
		name += gzipExt
	}
	return name
}

// countingWriter counts bytes that reach the file.
type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

// archiveWriters is the file -> gzip -> buffer pipeline. Closers are closed
// in reverse order so each layer flushes into the one below it.
type archiveWriters struct {
	out     *bufio.Writer
	counter *countingWriter
	closers []io.Closer
}

func (aw *archiveWriters) Close() error {
	var firstErr error
	if err := aw.out.Flush(); err != nil {
		firstErr = err
	}
	for i := len(aw.closers) - 1; i >= 0; i-- {
		if err := aw.closers[i].Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

//nolint:gosec // G304: path is built from the configured archive directory
func (r *Runner) setupArchiveWriters(path string, compressed bool) (*archiveWriters, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, filePerm)
	if err != nil {
		return nil, &audit.IOError{Op: "create archive", Path: path, Err: err}
	}

	counter := &countingWriter{w: file}
	aw := &archiveWriters{counter: counter, closers: []io.Closer{file}}

	var dest io.Writer = counter
	if compressed {
		gz, err := gzip.NewWriterLevel(counter, r.level)
		if err != nil {
			file.Close() //nolint:errcheck // Best effort cleanup on error
			return nil, &audit.IOError{Op: "create gzip writer", Path: path, Err: err}
		}
		aw.closers = append(aw.closers, gz)
		dest = gz
	}

	aw.out = bufio.NewWriterSize(dest, 64*1024)
	return aw, nil
}

// writeArchive streams rows to a new archive file and returns its path.
func (r *Runner) writeArchive(ctx context.Context, location, table string, policy *audit.RetentionPolicy, rows []audit.Row, at time.Time) (path string, err error) {
	if err := os.MkdirAll(location, dirPerm); err != nil {
		return "", &audit.IOError{Op: "create archive directory", Path: location, Err: err}
	}

	path = filepath.Join(location, ArchiveFileName(table, policy.ID, at, policy.CompressionEnabled))
	tmp := path + ".tmp"

	aw, err := r.setupArchiveWriters(tmp, policy.CompressionEnabled)
	if err != nil {
		return "", err
	}
	defer func() {
		if err != nil {
			os.Remove(tmp) //nolint:errcheck // Best effort cleanup on error
		}
	}()

	if err := encodeRows(ctx, aw.out, rows); err != nil {
		aw.Close() //nolint:errcheck // Already failing
		return "", &audit.IOError{Op: "write archive", Path: tmp, Err: err}
	}
	if err := aw.Close(); err != nil {
		return "", &audit.IOError{Op: "close archive", Path: tmp, Err: err}
	}
	if err := os.Rename(tmp, path); err != nil {
		return "", &audit.IOError{Op: "rename archive", Path: path, Err: err}
	}

	metrics.ArchivalBytesWritten.Add(float64(aw.counter.n))
	return path, nil
}

// encodeRows writes rows as a JSON array, one element at a time.
func encodeRows(ctx context.Context, w io.Writer, rows []audit.Row) error {
	if _, err := io.WriteString(w, "["); err != nil {
		return err
	}
	for i, row := range rows {
		if i%1000 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		if i > 0 {
			if _, err := io.WriteString(w, ",\n"); err != nil {
				return err
			}
		}
		data, err := json.Marshal(row)
		if err != nil {
			return fmt.Errorf("encode row %s: %w", row.ID(), err)
		}
		if _, err := w.Write(data); err != nil {
			return err
		}
	}
	_, err := io.WriteString(w, "]\n")
	return err
}
