// Auditkeep - Audit Integrity and Retention Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/auditkeep

package audit

import (
	"context"
	"time"
)

// RecordFilter selects audit records.
type RecordFilter struct {
	Range     TimeRange // on changed_at
	TableName string
	ChangedBy string
	Action    Action
	IDs       []string

	// Limit of 0 means unbounded. OrderDesc sorts newest first.
	Limit     int
	Offset    int
	OrderDesc bool
}

// GroupField is a column records can be grouped by.
type GroupField string

const (
	GroupByActor  GroupField = "changed_by"
	GroupByAction GroupField = "action"
	GroupByIP     GroupField = "ip_address"
)

// GroupCount is one aggregate bucket. Key holds the group values in the
// order of the requested fields.
type GroupCount struct {
	Key   []string
	Count int64
}

// SecurityEventFilter selects security events.
type SecurityEventFilter struct {
	UnresolvedOnly bool
	Severity       Severity
	EventType      SecurityEventType
	Range          TimeRange // on detected_at
	Limit          int
	Offset         int
}

// PolicyFilter selects retention policies.
type PolicyFilter struct {
	ActiveOnly bool
}

// JobFilter selects archival jobs, newest first. Limit of 0 means unbounded.
type JobFilter struct {
	PolicyID string
	Status   JobStatus
	Started  TimeRange
	Limit    int
}

// RecordStore persists audit_logs.
type RecordStore interface {
	InsertRecord(ctx context.Context, rec *Record) error
	InsertRecords(ctx context.Context, recs []Record) (int64, error)
	GetRecord(ctx context.Context, id string) (*Record, error)
	QueryRecords(ctx context.Context, filter RecordFilter) ([]Record, error)
	CountRecords(ctx context.Context, filter RecordFilter) (int64, error)
	CountRecordsGrouped(ctx context.Context, r TimeRange, fields ...GroupField) ([]GroupCount, error)
	DeleteRecords(ctx context.Context, ids []string) (int64, error)
}

// HashStore persists audit_log_hashes.
type HashStore interface {
	InsertHash(ctx context.Context, h *HashRecord) error
	GetHashByRecordID(ctx context.Context, auditLogID string) (*HashRecord, error)
	// LatestHash returns the chain head or ErrNotFound when the chain is empty.
	LatestHash(ctx context.Context) (*HashRecord, error)
	HashValueExists(ctx context.Context, hashValue string) (bool, error)
	SetHashVerified(ctx context.Context, auditLogID string, verified bool) error
	// ListRecordsWithHashes inner-joins the most recent records with their hashes.
	ListRecordsWithHashes(ctx context.Context, limit int) ([]RecordWithHash, error)
	CountHashes(ctx context.Context) (int64, error)
	CountRecordsWithoutHash(ctx context.Context) (int64, error)
}

// SecurityEventStore persists audit_security_events.
type SecurityEventStore interface {
	InsertSecurityEvent(ctx context.Context, ev *SecurityEvent) error
	GetSecurityEvent(ctx context.Context, id string) (*SecurityEvent, error)
	QuerySecurityEvents(ctx context.Context, filter SecurityEventFilter) ([]SecurityEvent, error)
	CountSecurityEvents(ctx context.Context, filter SecurityEventFilter) (int64, error)
	// ResolveSecurityEvent marks an unresolved event resolved. It reports
	// false without error when the event was already resolved.
	ResolveSecurityEvent(ctx context.Context, id, resolvedBy string, at time.Time) (bool, error)
}

// PolicyStore persists audit_retention_policies.
type PolicyStore interface {
	InsertPolicy(ctx context.Context, p *RetentionPolicy) error
	GetPolicy(ctx context.Context, id string) (*RetentionPolicy, error)
	UpdatePolicy(ctx context.Context, p *RetentionPolicy) error
	DeletePolicy(ctx context.Context, id string) error
	ListPolicies(ctx context.Context, filter PolicyFilter) ([]RetentionPolicy, error)
}

// JobStore persists audit_archival_jobs.
type JobStore interface {
	InsertJob(ctx context.Context, job *ArchivalJob) error
	UpdateJob(ctx context.Context, job *ArchivalJob) error
	GetJob(ctx context.Context, id string) (*ArchivalJob, error)
	ListJobs(ctx context.Context, filter JobFilter) ([]ArchivalJob, error)
	DeleteJobs(ctx context.Context, ids []string) (int64, error)
}

// RetentionStore gives table-generic access to the collections retention
// policies may target.
type RetentionStore interface {
	// RetainableTables lists the table names retention may act on.
	RetainableTables() []string
	CountRows(ctx context.Context, table string, r TimeRange) (int64, error)
	FetchRows(ctx context.Context, table string, r TimeRange) ([]Row, error)
	DeleteRows(ctx context.Context, table string, ids []string) (int64, error)
	InsertRows(ctx context.Context, table string, rows []Row) (int64, error)
}

// Store is the full record store adapter.
type Store interface {
	RecordStore
	HashStore
	SecurityEventStore
	PolicyStore
	JobStore
	RetentionStore

	// Ping checks that the backing store is reachable.
	Ping(ctx context.Context) error
}

// NormalizeTime truncates t to the microsecond precision the stores keep.
func NormalizeTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}
