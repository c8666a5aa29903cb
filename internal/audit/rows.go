// Auditkeep - Audit Integrity and Retention Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/auditkeep

package audit

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/goccy/go-json"
)

// retainableTables are the collections a retention policy may name.
// Hashes, policies and security events are never aged out.
var retainableTables = []string{TableAuditLogs, TableArchivalJobs}

// RetainableTables returns the table names retention may act on.
func RetainableTables() []string {
	return slices.Clone(retainableTables)
}

// IsRetainable reports whether table can be archived and purged.
func IsRetainable(table string) bool {
	return slices.Contains(retainableTables, table)
}

// RecordToRow converts an audit record to its archive row.
func RecordToRow(rec *Record) (Row, error) {
	return toRow(rec)
}

// RowToRecord converts an archive row back to an audit record.
func RowToRecord(row Row) (Record, error) {
	var rec Record
	if err := fromRow(row, &rec); err != nil {
		return Record{}, err
	}
	if rec.ID == "" {
		return Record{}, fmt.Errorf("%w: audit record row without id", ErrInvalidFormat)
	}
	rec.ChangedAt = NormalizeTime(rec.ChangedAt)
	return rec, nil
}

// JobToRow converts an archival job to its archive row.
func JobToRow(job *ArchivalJob) (Row, error) {
	return toRow(job)
}

// RowToJob converts an archive row back to an archival job.
func RowToJob(row Row) (ArchivalJob, error) {
	var job ArchivalJob
	if err := fromRow(row, &job); err != nil {
		return ArchivalJob{}, err
	}
	if job.ID == "" {
		return ArchivalJob{}, fmt.Errorf("%w: archival job row without id", ErrInvalidFormat)
	}
	return job, nil
}

func toRow(v interface{}) (Row, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal row: %w", err)
	}
	var row Row
	if err := json.Unmarshal(data, &row); err != nil {
		return nil, fmt.Errorf("unmarshal row: %w", err)
	}
	return row, nil
}

func fromRow(row Row, v interface{}) error {
	data, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidFormat, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidFormat, err)
	}
	return nil
}

// tableAccess implements the table-generic retention operations on top of
// the typed record and job stores.
type tableAccess struct {
	records RecordStore
	jobs    JobStore
}

func unknownTable(table string) error {
	return Validationf("table %q is not retainable (supported: %v)", table, retainableTables)
}

func (a tableAccess) count(ctx context.Context, table string, r TimeRange) (int64, error) {
	switch table {
	case TableAuditLogs:
		return a.records.CountRecords(ctx, RecordFilter{Range: r})
	case TableArchivalJobs:
		jobs, err := a.jobs.ListJobs(ctx, JobFilter{Started: r})
		if err != nil {
			return 0, err
		}
		return int64(len(jobs)), nil
	default:
		return 0, unknownTable(table)
	}
}

func (a tableAccess) fetch(ctx context.Context, table string, r TimeRange) ([]Row, error) {
	switch table {
	case TableAuditLogs:
		recs, err := a.records.QueryRecords(ctx, RecordFilter{Range: r})
		if err != nil {
			return nil, err
		}
		rows := make([]Row, 0, len(recs))
		for i := range recs {
			row, err := RecordToRow(&recs[i])
			if err != nil {
				return nil, err
			}
			rows = append(rows, row)
		}
		return rows, nil
	case TableArchivalJobs:
		jobs, err := a.jobs.ListJobs(ctx, JobFilter{Started: r})
		if err != nil {
			return nil, err
		}
		rows := make([]Row, 0, len(jobs))
		for i := range jobs {
			row, err := JobToRow(&jobs[i])
			if err != nil {
				return nil, err
			}
			rows = append(rows, row)
		}
		return rows, nil
	default:
		return nil, unknownTable(table)
	}
}

func (a tableAccess) delete(ctx context.Context, table string, ids []string) (int64, error) {
	switch table {
	case TableAuditLogs:
		return a.records.DeleteRecords(ctx, ids)
	case TableArchivalJobs:
		return a.jobs.DeleteJobs(ctx, ids)
	default:
		return 0, unknownTable(table)
	}
}

func (a tableAccess) insert(ctx context.Context, table string, rows []Row) (int64, error) {
	switch table {
	case TableAuditLogs:
		recs := make([]Record, 0, len(rows))
		for _, row := range rows {
			rec, err := RowToRecord(row)
			if err != nil {
				return 0, err
			}
			recs = append(recs, rec)
		}
		return a.records.InsertRecords(ctx, recs)
	case TableArchivalJobs:
		var n int64
		for _, row := range rows {
			job, err := RowToJob(row)
			if err != nil {
				return n, err
			}
			// skip jobs that were never purged, matching InsertRecords
			if _, err := a.jobs.GetJob(ctx, job.ID); err == nil {
				continue
			} else if !errors.Is(err, ErrNotFound) {
				return n, err
			}
			if err := a.jobs.InsertJob(ctx, &job); err != nil {
				return n, err
			}
			n++
		}
		return n, nil
	default:
		return 0, unknownTable(table)
	}
}
