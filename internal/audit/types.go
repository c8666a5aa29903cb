// Auditkeep - Audit Integrity and Retention Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/auditkeep

package audit

import (
	"time"
)

// Table names of the persisted collections.
const (
	TableAuditLogs         = "audit_logs"
	TableHashes            = "audit_log_hashes"
	TableSecurityEvents    = "audit_security_events"
	TableRetentionPolicies = "audit_retention_policies"
	TableArchivalJobs      = "audit_archival_jobs"
)

// Action is the kind of change an audit record describes.
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Record is one immutable audit fact produced by the application's CRUD layer.
// Records are never mutated once written and only removed by archival.
type Record struct {
	// ID is the unique identifier of this audit record.
	ID string `json:"id"`

	// TableName is the business table the change was made to.
	TableName string `json:"table_name" validate:"required,table_name"`

	// RecordID identifies the changed row within TableName.
	RecordID string `json:"record_id" validate:"required,max=255"`

	// Action is create, update or delete.
	Action Action `json:"action" validate:"oneof=create update delete"`

	// OldValues is the snapshot before the change (nil for create).
	OldValues map[string]interface{} `json:"old_values,omitempty"`

	// NewValues is the snapshot after the change (nil for delete).
	NewValues map[string]interface{} `json:"new_values,omitempty"`

	// ChangedBy is the authenticated actor id.
	ChangedBy string `json:"changed_by" validate:"required,max=255"`

	// IPAddress is the client address the change came from.
	IPAddress string `json:"ip_address,omitempty" validate:"omitempty,ip"`

	// ChangedAt is when the change happened.
	ChangedAt time.Time `json:"changed_at"`
}

// HashRecord links one audit record into the hash chain.
type HashRecord struct {
	ID            string    `json:"id"`
	AuditLogID    string    `json:"audit_log_id"`
	HashValue     string    `json:"hash_value"`
	HashAlgorithm string    `json:"hash_algorithm"`
	PreviousHash  *string   `json:"previous_hash,omitempty"` // nil only for the genesis entry
	Sequence      int64     `json:"sequence"`                // 1-based chain position
	CreatedAt     time.Time `json:"created_at"`
	Verified      bool      `json:"verified"`
}

// RecordWithHash pairs an audit record with its hash record.
type RecordWithHash struct {
	Record Record
	Hash   HashRecord
}

// SecurityEventType categorizes security findings.
type SecurityEventType string

const (
	EventTamperDetected     SecurityEventType = "tamper_detected"
	EventHashMismatch       SecurityEventType = "hash_mismatch"
	EventUnauthorizedAccess SecurityEventType = "unauthorized_access"
	EventBulkModification   SecurityEventType = "bulk_modification"
	EventTimeAnomaly        SecurityEventType = "time_anomaly"
)

// Valid reports whether t is a known event type.
func (t SecurityEventType) Valid() bool {
	switch t {
	case EventTamperDetected, EventHashMismatch, EventUnauthorizedAccess,
		EventBulkModification, EventTimeAnomaly:
		return true
	}
	return false
}

// Severity indicates how urgent a security event is.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Valid reports whether s is a known severity.
func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// SecurityEvent is an append-only finding raised by verification or anomaly
// detection. The only permitted mutation is resolved false -> true.
type SecurityEvent struct {
	ID              string                 `json:"id"`
	EventType       SecurityEventType      `json:"event_type"`
	Severity        Severity               `json:"severity"`
	Description     string                 `json:"description"`
	AffectedRecords []string               `json:"affected_records"`
	DetectedAt      time.Time              `json:"detected_at"`
	ActorID         string                 `json:"actor_id,omitempty"`
	IPAddress       string                 `json:"ip_address,omitempty"`
	Metadata        map[string]interface{} `json:"metadata,omitempty"`
	Resolved        bool                   `json:"resolved"`
	ResolvedBy      string                 `json:"resolved_by,omitempty"`
	ResolvedAt      *time.Time             `json:"resolved_at,omitempty"`
}

// RetentionPolicy maps tables to how long their records are kept before
// archival and final deletion.
type RetentionPolicy struct {
	ID                  string    `json:"id"`
	Name                string    `json:"name" validate:"required,max=200"`
	RetentionPeriodDays int       `json:"retention_period_days" validate:"min=1"`
	ArchivePeriodDays   int       `json:"archive_period_days" validate:"min=0,ltefield=RetentionPeriodDays"`
	CompressionEnabled  bool      `json:"compression_enabled"`
	EncryptionEnabled   bool      `json:"encryption_enabled"`
	ApplicableTables    []string  `json:"applicable_tables" validate:"required,min=1,dive,required,table_name"`
	IsActive            bool      `json:"is_active"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// JobStatus is the lifecycle state of an archival job.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
	JobCancelled JobStatus = "cancelled"
)

// Terminal reports whether no further transition is allowed from s.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed || s == JobCancelled
}

// ArchivalJob records one execution of a retention policy.
type ArchivalJob struct {
	ID               string     `json:"id"`
	PolicyID         string     `json:"policy_id"`
	Status           JobStatus  `json:"status"`
	StartedAt        time.Time  `json:"started_at"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
	RecordsProcessed int64      `json:"records_processed"`
	RecordsArchived  int64      `json:"records_archived"`
	RecordsDeleted   int64      `json:"records_deleted"`
	ArchiveLocation  string     `json:"archive_location,omitempty"`
	ErrorMessage     string     `json:"error_message,omitempty"`
}

// TimeRange is the half-open interval [From, To). A zero bound is unbounded.
type TimeRange struct {
	From time.Time
	To   time.Time
}

// Contains reports whether t falls inside the range.
func (r TimeRange) Contains(t time.Time) bool {
	if !r.From.IsZero() && t.Before(r.From) {
		return false
	}
	return r.To.IsZero() || t.Before(r.To)
}

// Row is a schema-less table row used at the archive boundary. Every row
// carries an "id" key.
type Row map[string]interface{}

// ID returns the row identifier or "" when absent.
func (r Row) ID() string {
	id, _ := r["id"].(string)
	return id
}
