// Auditkeep - Audit Integrity and Retention Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/auditkeep

package audit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/tomtom215/auditkeep/internal/logging"
	"github.com/tomtom215/auditkeep/internal/metrics"
)

// DuckDBStore implements Store using DuckDB for persistent storage.
// Timestamps are stored as UTC TIMESTAMP with microsecond precision.
type DuckDBStore struct {
	db *sql.DB
}

var _ Store = (*DuckDBStore)(nil)

// NewDuckDBStore creates a new DuckDB-backed store.
// Call CreateTables before first use.
func NewDuckDBStore(db *sql.DB) *DuckDBStore {
	return &DuckDBStore{db: db}
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func observe(op, table string, start time.Time, err *error) {
	metrics.RecordStoreOperation(op, table, time.Since(start), *err)
}

// CreateTables creates the pipeline tables if they don't exist.
func (s *DuckDBStore) CreateTables(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS audit_logs (
			id TEXT PRIMARY KEY,
			table_name TEXT NOT NULL,
			record_id TEXT NOT NULL,
			action TEXT NOT NULL,
			old_values JSON,
			new_values JSON,
			changed_by TEXT NOT NULL,
			ip_address TEXT,
			changed_at TIMESTAMP NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_audit_logs_changed_at ON audit_logs(changed_at);
		CREATE INDEX IF NOT EXISTS idx_audit_logs_changed_by ON audit_logs(changed_by);

		CREATE TABLE IF NOT EXISTS audit_log_hashes (
			id TEXT PRIMARY KEY,
			audit_log_id TEXT NOT NULL UNIQUE,
			hash_value TEXT NOT NULL,
			hash_algorithm TEXT NOT NULL,
			previous_hash TEXT,
			sequence BIGINT NOT NULL UNIQUE,
			created_at TIMESTAMP NOT NULL,
			verified BOOLEAN NOT NULL DEFAULT true
		);
		CREATE INDEX IF NOT EXISTS idx_audit_log_hashes_value ON audit_log_hashes(hash_value);

		CREATE TABLE IF NOT EXISTS audit_security_events (
			id TEXT PRIMARY KEY,
			event_type TEXT NOT NULL,
			severity TEXT NOT NULL,
			description TEXT NOT NULL,
			affected_records JSON,
			detected_at TIMESTAMP NOT NULL,
			actor_id TEXT,
			ip_address TEXT,
			metadata JSON,
			resolved BOOLEAN NOT NULL DEFAULT false,
			resolved_by TEXT,
			resolved_at TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_audit_security_events_detected_at ON audit_security_events(detected_at);

		CREATE TABLE IF NOT EXISTS audit_retention_policies (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			retention_period_days INTEGER NOT NULL,
			archive_period_days INTEGER NOT NULL,
			compression_enabled BOOLEAN NOT NULL DEFAULT true,
			encryption_enabled BOOLEAN NOT NULL DEFAULT false,
			applicable_tables JSON NOT NULL,
			is_active BOOLEAN NOT NULL DEFAULT true,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		);

		CREATE TABLE IF NOT EXISTS audit_archival_jobs (
			id TEXT PRIMARY KEY,
			policy_id TEXT NOT NULL,
			status TEXT NOT NULL,
			started_at TIMESTAMP NOT NULL,
			completed_at TIMESTAMP,
			records_processed BIGINT NOT NULL DEFAULT 0,
			records_archived BIGINT NOT NULL DEFAULT 0,
			records_deleted BIGINT NOT NULL DEFAULT 0,
			archive_location TEXT,
			error_message TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_audit_archival_jobs_policy ON audit_archival_jobs(policy_id);
	`

	// Split and execute each statement
	for _, stmt := range strings.Split(schema, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return WrapStore("create schema", fmt.Errorf("failed to execute schema statement: %w", err))
		}
	}

	// Flush the WAL so a restart doesn't replay schema changes.
	if _, err := s.db.ExecContext(ctx, "CHECKPOINT"); err != nil {
		logging.Warn().Err(err).Msg("Failed to checkpoint after audit schema initialization")
	}
	return nil
}

// Ping checks database connectivity.
func (s *DuckDBStore) Ping(ctx context.Context) error {
	return WrapStore("ping", s.db.PingContext(ctx))
}

// buildSliceCondition creates a SQL IN condition for a slice of string values.
func buildSliceCondition[T ~string](column string, values []T, args *[]interface{}) string {
	if len(values) == 0 {
		return ""
	}
	placeholders := make([]string, len(values))
	for i, v := range values {
		placeholders[i] = "?"
		*args = append(*args, string(v))
	}
	return fmt.Sprintf("%s IN (%s)", column, strings.Join(placeholders, ","))
}

// addRangeConditions appends half-open range conditions on column.
func addRangeConditions(column string, r TimeRange, conditions *[]string, args *[]interface{}) {
	if !r.From.IsZero() {
		*conditions = append(*conditions, column+" >= ?")
		*args = append(*args, r.From.UTC())
	}
	if !r.To.IsZero() {
		*conditions = append(*conditions, column+" < ?")
		*args = append(*args, r.To.UTC())
	}
}

func whereClause(conditions []string) string {
	if len(conditions) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(conditions, " AND ")
}

// encodeJSON marshals v for a JSON column; nil values become NULL.
func encodeJSON(v interface{}) (interface{}, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case map[string]interface{}:
		if t == nil {
			return nil, nil
		}
	case []string:
		if t == nil {
			return nil, nil
		}
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal json column: %w", err)
	}
	return string(data), nil
}

// decodeJSON converts a scanned JSON column into dst. DuckDB returns JSON as
// decoded Go values, strings or bytes depending on the driver path.
func decodeJSON(src interface{}, dst interface{}) error {
	var data []byte
	switch v := src.(type) {
	case nil:
		return nil
	case string:
		data = []byte(v)
	case []byte:
		data = v
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return err
		}
		data = b
	}
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	return json.Unmarshal(data, dst)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}

// --- audit_logs ---

const recordColumns = `id, table_name, record_id, action, old_values, new_values, changed_by, ip_address, changed_at`

func scanRecord(scanner rowScanner, rec *Record) error {
	var oldValues, newValues interface{}
	var ip sql.NullString
	if err := scanner.Scan(&rec.ID, &rec.TableName, &rec.RecordID, &rec.Action,
		&oldValues, &newValues, &rec.ChangedBy, &ip, &rec.ChangedAt); err != nil {
		return err
	}
	rec.IPAddress = ip.String
	rec.ChangedAt = rec.ChangedAt.UTC()
	if err := decodeJSON(oldValues, &rec.OldValues); err != nil {
		return fmt.Errorf("decode old_values: %w", err)
	}
	if err := decodeJSON(newValues, &rec.NewValues); err != nil {
		return fmt.Errorf("decode new_values: %w", err)
	}
	return nil
}

func recordArgs(rec *Record) ([]interface{}, error) {
	oldValues, err := encodeJSON(rec.OldValues)
	if err != nil {
		return nil, err
	}
	newValues, err := encodeJSON(rec.NewValues)
	if err != nil {
		return nil, err
	}
	return []interface{}{rec.ID, rec.TableName, rec.RecordID, string(rec.Action),
		oldValues, newValues, rec.ChangedBy, nullString(rec.IPAddress), NormalizeTime(rec.ChangedAt)}, nil
}

// InsertRecord persists an audit record.
func (s *DuckDBStore) InsertRecord(ctx context.Context, rec *Record) (err error) {
	defer observe("insert", TableAuditLogs, time.Now(), &err)

	if rec.ID == "" {
		return Validationf("audit record id is required")
	}
	args, err := recordArgs(rec)
	if err != nil {
		return err
	}
	query := `INSERT INTO audit_logs (` + recordColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return WrapStore("insert audit record", err)
	}
	return nil
}

// InsertRecords persists records in one transaction, skipping existing ids.
func (s *DuckDBStore) InsertRecords(ctx context.Context, recs []Record) (n int64, err error) {
	defer observe("insert_batch", TableAuditLogs, time.Now(), &err)

	if len(recs) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, WrapStore("begin insert audit records", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback() //nolint:errcheck // best effort after failure
		}
	}()

	query := `INSERT INTO audit_logs (` + recordColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING`
	for i := range recs {
		if recs[i].ID == "" {
			return n, Validationf("audit record id is required")
		}
		args, err := recordArgs(&recs[i])
		if err != nil {
			return n, err
		}
		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return n, WrapStore("insert audit records", err)
		}
		if affected, err := res.RowsAffected(); err == nil {
			n += affected
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, WrapStore("commit audit records", err)
	}
	return n, nil
}

// GetRecord retrieves an audit record by ID.
func (s *DuckDBStore) GetRecord(ctx context.Context, id string) (_ *Record, err error) {
	defer observe("get", TableAuditLogs, time.Now(), &err)

	rec := &Record{}
	err = scanRecord(s.db.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM audit_logs WHERE id = ?`, id), rec)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, NotFoundf("audit record %s", id)
	}
	if err != nil {
		return nil, WrapStore("get audit record", err)
	}
	return rec, nil
}

func recordConditions(f *RecordFilter) (string, []interface{}) {
	var conditions []string
	args := make([]interface{}, 0)

	addRangeConditions("changed_at", f.Range, &conditions, &args)
	if f.TableName != "" {
		conditions = append(conditions, "table_name = ?")
		args = append(args, f.TableName)
	}
	if f.ChangedBy != "" {
		conditions = append(conditions, "changed_by = ?")
		args = append(args, f.ChangedBy)
	}
	if f.Action != "" {
		conditions = append(conditions, "action = ?")
		args = append(args, string(f.Action))
	}
	if cond := buildSliceCondition("id", f.IDs, &args); cond != "" {
		conditions = append(conditions, cond)
	}
	return whereClause(conditions), args
}

// QueryRecords returns records matching the filter.
// Security: all values are parameterized; the ORDER BY direction is fixed by a boolean.
func (s *DuckDBStore) QueryRecords(ctx context.Context, filter RecordFilter) (_ []Record, err error) {
	defer observe("query", TableAuditLogs, time.Now(), &err)

	where, args := recordConditions(&filter)
	query := `SELECT ` + recordColumns + ` FROM audit_logs` + where
	if filter.OrderDesc {
		query += " ORDER BY changed_at DESC, id DESC"
	} else {
		query += " ORDER BY changed_at ASC, id ASC"
	}
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}
	if filter.Offset > 0 {
		query += " OFFSET ?"
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, WrapStore("query audit records", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var rec Record
		if err := scanRecord(rows, &rec); err != nil {
			return nil, WrapStore("scan audit record", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, WrapStore("iterate audit records", err)
	}
	return out, nil
}

// CountRecords counts records matching the filter, ignoring pagination.
func (s *DuckDBStore) CountRecords(ctx context.Context, filter RecordFilter) (n int64, err error) {
	defer observe("count", TableAuditLogs, time.Now(), &err)

	where, args := recordConditions(&filter)
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM audit_logs`+where, args...).Scan(&n); err != nil {
		return 0, WrapStore("count audit records", err)
	}
	return n, nil
}

// groupColumns whitelists the columns CountRecordsGrouped may aggregate on.
var groupColumns = map[GroupField]string{
	GroupByActor:  "changed_by",
	GroupByAction: "action",
	GroupByIP:     "COALESCE(ip_address, '')",
}

// CountRecordsGrouped aggregates records in r by the given fields.
func (s *DuckDBStore) CountRecordsGrouped(ctx context.Context, r TimeRange, fields ...GroupField) (_ []GroupCount, err error) {
	defer observe("group", TableAuditLogs, time.Now(), &err)

	if len(fields) == 0 {
		return nil, Validationf("at least one group field is required")
	}
	cols := make([]string, len(fields))
	for i, f := range fields {
		col, ok := groupColumns[f]
		if !ok {
			return nil, Validationf("unsupported group field %q", f)
		}
		cols[i] = col
	}

	var conditions []string
	args := make([]interface{}, 0, 2)
	addRangeConditions("changed_at", r, &conditions, &args)

	colList := strings.Join(cols, ", ")
	query := fmt.Sprintf("SELECT %s, COUNT(*) AS n FROM audit_logs%s GROUP BY %s ORDER BY n DESC",
		colList, whereClause(conditions), colList)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, WrapStore("group audit records", err)
	}
	defer rows.Close()

	var out []GroupCount
	for rows.Next() {
		key := make([]string, len(fields))
		dest := make([]interface{}, 0, len(fields)+1)
		for i := range key {
			dest = append(dest, &key[i])
		}
		gc := GroupCount{Key: key}
		dest = append(dest, &gc.Count)
		if err := rows.Scan(dest...); err != nil {
			return nil, WrapStore("scan group count", err)
		}
		out = append(out, gc)
	}
	if err := rows.Err(); err != nil {
		return nil, WrapStore("iterate group counts", err)
	}
	return out, nil
}

// DeleteRecords removes records by id.
func (s *DuckDBStore) DeleteRecords(ctx context.Context, ids []string) (n int64, err error) {
	defer observe("delete", TableAuditLogs, time.Now(), &err)
	return s.deleteByIDs(ctx, TableAuditLogs, ids)
}

// deleteByIDs deletes from a whitelisted table.
func (s *DuckDBStore) deleteByIDs(ctx context.Context, table string, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	if table != TableAuditLogs && table != TableArchivalJobs {
		return 0, unknownTable(table)
	}
	args := make([]interface{}, 0, len(ids))
	cond := buildSliceCondition("id", ids, &args)
	res, err := s.db.ExecContext(ctx, "DELETE FROM "+table+" WHERE "+cond, args...)
	if err != nil {
		return 0, WrapStore("delete from "+table, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, WrapStore("rows affected "+table, err)
	}
	return n, nil
}

// --- audit_log_hashes ---

const hashColumns = `id, audit_log_id, hash_value, hash_algorithm, previous_hash, sequence, created_at, verified`

func scanHash(scanner rowScanner, h *HashRecord) error {
	var prev sql.NullString
	if err := scanner.Scan(&h.ID, &h.AuditLogID, &h.HashValue, &h.HashAlgorithm,
		&prev, &h.Sequence, &h.CreatedAt, &h.Verified); err != nil {
		return err
	}
	if prev.Valid {
		p := prev.String
		h.PreviousHash = &p
	}
	h.CreatedAt = h.CreatedAt.UTC()
	return nil
}

// InsertHash appends a hash record to the chain. The UNIQUE constraints on
// audit_log_id and sequence reject duplicate or forked appends.
func (s *DuckDBStore) InsertHash(ctx context.Context, h *HashRecord) (err error) {
	defer observe("insert", TableHashes, time.Now(), &err)

	var prev sql.NullString
	if h.PreviousHash != nil {
		prev = sql.NullString{String: *h.PreviousHash, Valid: true}
	}
	query := `INSERT INTO audit_log_hashes (` + hashColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, query, h.ID, h.AuditLogID, h.HashValue, h.HashAlgorithm,
		prev, h.Sequence, NormalizeTime(h.CreatedAt), h.Verified); err != nil {
		return WrapStore("insert hash", err)
	}
	return nil
}

// GetHashByRecordID returns the hash record of an audit record.
func (s *DuckDBStore) GetHashByRecordID(ctx context.Context, auditLogID string) (_ *HashRecord, err error) {
	defer observe("get", TableHashes, time.Now(), &err)

	h := &HashRecord{}
	err = scanHash(s.db.QueryRowContext(ctx,
		`SELECT `+hashColumns+` FROM audit_log_hashes WHERE audit_log_id = ?`, auditLogID), h)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, NotFoundf("hash for audit record %s", auditLogID)
	}
	if err != nil {
		return nil, WrapStore("get hash", err)
	}
	return h, nil
}

// LatestHash returns the chain head.
func (s *DuckDBStore) LatestHash(ctx context.Context) (_ *HashRecord, err error) {
	defer observe("head", TableHashes, time.Now(), &err)

	h := &HashRecord{}
	err = scanHash(s.db.QueryRowContext(ctx,
		`SELECT `+hashColumns+` FROM audit_log_hashes ORDER BY sequence DESC LIMIT 1`), h)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, NotFoundf("chain head")
	}
	if err != nil {
		return nil, WrapStore("get chain head", err)
	}
	return h, nil
}

// HashValueExists reports whether any hash record carries hashValue.
func (s *DuckDBStore) HashValueExists(ctx context.Context, hashValue string) (ok bool, err error) {
	defer observe("exists", TableHashes, time.Now(), &err)

	err = s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM audit_log_hashes WHERE hash_value = ?)`, hashValue).Scan(&ok)
	if err != nil {
		return false, WrapStore("hash exists", err)
	}
	return ok, nil
}

// SetHashVerified updates the verified flag of a hash record.
func (s *DuckDBStore) SetHashVerified(ctx context.Context, auditLogID string, verified bool) (err error) {
	defer observe("update", TableHashes, time.Now(), &err)

	res, err := s.db.ExecContext(ctx,
		`UPDATE audit_log_hashes SET verified = ? WHERE audit_log_id = ?`, verified, auditLogID)
	if err != nil {
		return WrapStore("set hash verified", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return NotFoundf("hash for audit record %s", auditLogID)
	}
	return nil
}

// ListRecordsWithHashes inner-joins the most recent records with their hashes.
func (s *DuckDBStore) ListRecordsWithHashes(ctx context.Context, limit int) (_ []RecordWithHash, err error) {
	defer observe("join", TableHashes, time.Now(), &err)

	query := `SELECT l.id, l.table_name, l.record_id, l.action, l.old_values, l.new_values,
			l.changed_by, l.ip_address, l.changed_at,
			h.id, h.audit_log_id, h.hash_value, h.hash_algorithm, h.previous_hash, h.sequence,
			h.created_at, h.verified
		FROM audit_logs l
		INNER JOIN audit_log_hashes h ON h.audit_log_id = l.id
		ORDER BY l.changed_at DESC, h.sequence DESC`
	args := make([]interface{}, 0, 1)
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, WrapStore("list records with hashes", err)
	}
	defer rows.Close()

	var out []RecordWithHash
	for rows.Next() {
		var rw RecordWithHash
		var oldValues, newValues interface{}
		var ip, prev sql.NullString
		if err := rows.Scan(&rw.Record.ID, &rw.Record.TableName, &rw.Record.RecordID, &rw.Record.Action,
			&oldValues, &newValues, &rw.Record.ChangedBy, &ip, &rw.Record.ChangedAt,
			&rw.Hash.ID, &rw.Hash.AuditLogID, &rw.Hash.HashValue, &rw.Hash.HashAlgorithm, &prev,
			&rw.Hash.Sequence, &rw.Hash.CreatedAt, &rw.Hash.Verified); err != nil {
			return nil, WrapStore("scan record with hash", err)
		}
		rw.Record.IPAddress = ip.String
		rw.Record.ChangedAt = rw.Record.ChangedAt.UTC()
		rw.Hash.CreatedAt = rw.Hash.CreatedAt.UTC()
		if prev.Valid {
			p := prev.String
			rw.Hash.PreviousHash = &p
		}
		if err := decodeJSON(oldValues, &rw.Record.OldValues); err != nil {
			return nil, WrapStore("decode old_values", err)
		}
		if err := decodeJSON(newValues, &rw.Record.NewValues); err != nil {
			return nil, WrapStore("decode new_values", err)
		}
		out = append(out, rw)
	}
	if err := rows.Err(); err != nil {
		return nil, WrapStore("iterate records with hashes", err)
	}
	return out, nil
}

// CountHashes returns the chain length.
func (s *DuckDBStore) CountHashes(ctx context.Context) (n int64, err error) {
	defer observe("count", TableHashes, time.Now(), &err)

	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM audit_log_hashes`).Scan(&n); err != nil {
		return 0, WrapStore("count hashes", err)
	}
	return n, nil
}

// CountRecordsWithoutHash counts audit records that were never hashed.
func (s *DuckDBStore) CountRecordsWithoutHash(ctx context.Context) (n int64, err error) {
	defer observe("count_unhashed", TableAuditLogs, time.Now(), &err)

	query := `SELECT COUNT(*) FROM audit_logs l
		WHERE NOT EXISTS (SELECT 1 FROM audit_log_hashes h WHERE h.audit_log_id = l.id)`
	if err := s.db.QueryRowContext(ctx, query).Scan(&n); err != nil {
		return 0, WrapStore("count unhashed records", err)
	}
	return n, nil
}

// --- audit_security_events ---

const eventColumns = `id, event_type, severity, description, affected_records, detected_at,
	actor_id, ip_address, metadata, resolved, resolved_by, resolved_at`

func scanEvent(scanner rowScanner, ev *SecurityEvent) error {
	var affected, metadata interface{}
	var actor, ip, resolvedBy sql.NullString
	var resolvedAt sql.NullTime
	if err := scanner.Scan(&ev.ID, &ev.EventType, &ev.Severity, &ev.Description, &affected,
		&ev.DetectedAt, &actor, &ip, &metadata, &ev.Resolved, &resolvedBy, &resolvedAt); err != nil {
		return err
	}
	ev.DetectedAt = ev.DetectedAt.UTC()
	ev.ActorID = actor.String
	ev.IPAddress = ip.String
	ev.ResolvedBy = resolvedBy.String
	ev.ResolvedAt = timePtr(resolvedAt)
	if err := decodeJSON(affected, &ev.AffectedRecords); err != nil {
		return fmt.Errorf("decode affected_records: %w", err)
	}
	if err := decodeJSON(metadata, &ev.Metadata); err != nil {
		return fmt.Errorf("decode metadata: %w", err)
	}
	return nil
}

// InsertSecurityEvent persists a security event.
func (s *DuckDBStore) InsertSecurityEvent(ctx context.Context, ev *SecurityEvent) (err error) {
	defer observe("insert", TableSecurityEvents, time.Now(), &err)

	affected := ev.AffectedRecords
	if affected == nil {
		affected = []string{}
	}
	affectedJSON, err := encodeJSON(affected)
	if err != nil {
		return err
	}
	metadataJSON, err := encodeJSON(ev.Metadata)
	if err != nil {
		return err
	}
	query := `INSERT INTO audit_security_events (` + eventColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, query, ev.ID, string(ev.EventType), string(ev.Severity),
		ev.Description, affectedJSON, NormalizeTime(ev.DetectedAt), nullString(ev.ActorID),
		nullString(ev.IPAddress), metadataJSON, ev.Resolved, nullString(ev.ResolvedBy),
		nullTime(ev.ResolvedAt)); err != nil {
		return WrapStore("insert security event", err)
	}
	return nil
}

// GetSecurityEvent retrieves a security event by ID.
func (s *DuckDBStore) GetSecurityEvent(ctx context.Context, id string) (_ *SecurityEvent, err error) {
	defer observe("get", TableSecurityEvents, time.Now(), &err)

	ev := &SecurityEvent{}
	err = scanEvent(s.db.QueryRowContext(ctx,
		`SELECT `+eventColumns+` FROM audit_security_events WHERE id = ?`, id), ev)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, NotFoundf("security event %s", id)
	}
	if err != nil {
		return nil, WrapStore("get security event", err)
	}
	return ev, nil
}

func eventConditions(f *SecurityEventFilter) (string, []interface{}) {
	var conditions []string
	args := make([]interface{}, 0)

	if f.UnresolvedOnly {
		conditions = append(conditions, "resolved = false")
	}
	if f.Severity != "" {
		conditions = append(conditions, "severity = ?")
		args = append(args, string(f.Severity))
	}
	if f.EventType != "" {
		conditions = append(conditions, "event_type = ?")
		args = append(args, string(f.EventType))
	}
	addRangeConditions("detected_at", f.Range, &conditions, &args)
	return whereClause(conditions), args
}

// QuerySecurityEvents returns events matching the filter, newest first.
func (s *DuckDBStore) QuerySecurityEvents(ctx context.Context, filter SecurityEventFilter) (_ []SecurityEvent, err error) {
	defer observe("query", TableSecurityEvents, time.Now(), &err)

	where, args := eventConditions(&filter)
	query := `SELECT ` + eventColumns + ` FROM audit_security_events` + where +
		` ORDER BY detected_at DESC, id ASC`
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}
	if filter.Offset > 0 {
		query += " OFFSET ?"
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, WrapStore("query security events", err)
	}
	defer rows.Close()

	var out []SecurityEvent
	for rows.Next() {
		var ev SecurityEvent
		if err := scanEvent(rows, &ev); err != nil {
			return nil, WrapStore("scan security event", err)
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, WrapStore("iterate security events", err)
	}
	return out, nil
}

// CountSecurityEvents counts events matching the filter.
func (s *DuckDBStore) CountSecurityEvents(ctx context.Context, filter SecurityEventFilter) (n int64, err error) {
	defer observe("count", TableSecurityEvents, time.Now(), &err)

	where, args := eventConditions(&filter)
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM audit_security_events`+where, args...).Scan(&n); err != nil {
		return 0, WrapStore("count security events", err)
	}
	return n, nil
}

// ResolveSecurityEvent transitions an event to resolved. The conditional
// UPDATE makes concurrent resolves race-free.
func (s *DuckDBStore) ResolveSecurityEvent(ctx context.Context, id, resolvedBy string, at time.Time) (_ bool, err error) {
	defer observe("resolve", TableSecurityEvents, time.Now(), &err)

	res, err := s.db.ExecContext(ctx, `UPDATE audit_security_events
		SET resolved = true, resolved_by = ?, resolved_at = ?
		WHERE id = ? AND resolved = false`, resolvedBy, NormalizeTime(at), id)
	if err != nil {
		return false, WrapStore("resolve security event", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, WrapStore("resolve security event", err)
	}
	if n > 0 {
		return true, nil
	}
	if _, err := s.GetSecurityEvent(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

// --- audit_retention_policies ---

const policyColumns = `id, name, retention_period_days, archive_period_days, compression_enabled,
	encryption_enabled, applicable_tables, is_active, created_at, updated_at`

func scanPolicy(scanner rowScanner, p *RetentionPolicy) error {
	var tables interface{}
	if err := scanner.Scan(&p.ID, &p.Name, &p.RetentionPeriodDays, &p.ArchivePeriodDays,
		&p.CompressionEnabled, &p.EncryptionEnabled, &tables, &p.IsActive,
		&p.CreatedAt, &p.UpdatedAt); err != nil {
		return err
	}
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	if err := decodeJSON(tables, &p.ApplicableTables); err != nil {
		return fmt.Errorf("decode applicable_tables: %w", err)
	}
	return nil
}

// InsertPolicy persists a retention policy.
func (s *DuckDBStore) InsertPolicy(ctx context.Context, p *RetentionPolicy) (err error) {
	defer observe("insert", TableRetentionPolicies, time.Now(), &err)

	tables, err := encodeJSON(p.ApplicableTables)
	if err != nil {
		return err
	}
	query := `INSERT INTO audit_retention_policies (` + policyColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, query, p.ID, p.Name, p.RetentionPeriodDays, p.ArchivePeriodDays,
		p.CompressionEnabled, p.EncryptionEnabled, tables, p.IsActive,
		NormalizeTime(p.CreatedAt), NormalizeTime(p.UpdatedAt)); err != nil {
		return WrapStore("insert retention policy", err)
	}
	return nil
}

// GetPolicy retrieves a retention policy by ID.
func (s *DuckDBStore) GetPolicy(ctx context.Context, id string) (_ *RetentionPolicy, err error) {
	defer observe("get", TableRetentionPolicies, time.Now(), &err)

	p := &RetentionPolicy{}
	err = scanPolicy(s.db.QueryRowContext(ctx,
		`SELECT `+policyColumns+` FROM audit_retention_policies WHERE id = ?`, id), p)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, NotFoundf("retention policy %s", id)
	}
	if err != nil {
		return nil, WrapStore("get retention policy", err)
	}
	return p, nil
}

// UpdatePolicy replaces a stored retention policy.
func (s *DuckDBStore) UpdatePolicy(ctx context.Context, p *RetentionPolicy) (err error) {
	defer observe("update", TableRetentionPolicies, time.Now(), &err)

	tables, err := encodeJSON(p.ApplicableTables)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `UPDATE audit_retention_policies
		SET name = ?, retention_period_days = ?, archive_period_days = ?, compression_enabled = ?,
			encryption_enabled = ?, applicable_tables = ?, is_active = ?, updated_at = ?
		WHERE id = ?`,
		p.Name, p.RetentionPeriodDays, p.ArchivePeriodDays, p.CompressionEnabled,
		p.EncryptionEnabled, tables, p.IsActive, NormalizeTime(p.UpdatedAt), p.ID)
	if err != nil {
		return WrapStore("update retention policy", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return NotFoundf("retention policy %s", p.ID)
	}
	return nil
}

// DeletePolicy removes a retention policy.
func (s *DuckDBStore) DeletePolicy(ctx context.Context, id string) (err error) {
	defer observe("delete", TableRetentionPolicies, time.Now(), &err)

	res, err := s.db.ExecContext(ctx, `DELETE FROM audit_retention_policies WHERE id = ?`, id)
	if err != nil {
		return WrapStore("delete retention policy", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return NotFoundf("retention policy %s", id)
	}
	return nil
}

// ListPolicies returns policies ordered by name.
func (s *DuckDBStore) ListPolicies(ctx context.Context, filter PolicyFilter) (_ []RetentionPolicy, err error) {
	defer observe("list", TableRetentionPolicies, time.Now(), &err)

	query := `SELECT ` + policyColumns + ` FROM audit_retention_policies`
	if filter.ActiveOnly {
		query += ` WHERE is_active = true`
	}
	query += ` ORDER BY name, id`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, WrapStore("list retention policies", err)
	}
	defer rows.Close()

	var out []RetentionPolicy
	for rows.Next() {
		var p RetentionPolicy
		if err := scanPolicy(rows, &p); err != nil {
			return nil, WrapStore("scan retention policy", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, WrapStore("iterate retention policies", err)
	}
	return out, nil
}

// --- audit_archival_jobs ---

const jobColumns = `id, policy_id, status, started_at, completed_at, records_processed,
	records_archived, records_deleted, archive_location, error_message`

func scanJob(scanner rowScanner, j *ArchivalJob) error {
	var completedAt sql.NullTime
	var location, message sql.NullString
	if err := scanner.Scan(&j.ID, &j.PolicyID, &j.Status, &j.StartedAt, &completedAt,
		&j.RecordsProcessed, &j.RecordsArchived, &j.RecordsDeleted, &location, &message); err != nil {
		return err
	}
	j.StartedAt = j.StartedAt.UTC()
	j.CompletedAt = timePtr(completedAt)
	j.ArchiveLocation = location.String
	j.ErrorMessage = message.String
	return nil
}

// InsertJob persists an archival job.
func (s *DuckDBStore) InsertJob(ctx context.Context, job *ArchivalJob) (err error) {
	defer observe("insert", TableArchivalJobs, time.Now(), &err)

	query := `INSERT INTO audit_archival_jobs (` + jobColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, query, job.ID, job.PolicyID, string(job.Status),
		NormalizeTime(job.StartedAt), nullTime(job.CompletedAt), job.RecordsProcessed,
		job.RecordsArchived, job.RecordsDeleted, nullString(job.ArchiveLocation),
		nullString(job.ErrorMessage)); err != nil {
		return WrapStore("insert archival job", err)
	}
	return nil
}

// UpdateJob replaces the mutable fields of an archival job.
func (s *DuckDBStore) UpdateJob(ctx context.Context, job *ArchivalJob) (err error) {
	defer observe("update", TableArchivalJobs, time.Now(), &err)

	res, err := s.db.ExecContext(ctx, `UPDATE audit_archival_jobs
		SET status = ?, completed_at = ?, records_processed = ?, records_archived = ?,
			records_deleted = ?, archive_location = ?, error_message = ?
		WHERE id = ?`,
		string(job.Status), nullTime(job.CompletedAt), job.RecordsProcessed, job.RecordsArchived,
		job.RecordsDeleted, nullString(job.ArchiveLocation), nullString(job.ErrorMessage), job.ID)
	if err != nil {
		return WrapStore("update archival job", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return NotFoundf("archival job %s", job.ID)
	}
	return nil
}

// GetJob retrieves an archival job by ID.
func (s *DuckDBStore) GetJob(ctx context.Context, id string) (_ *ArchivalJob, err error) {
	defer observe("get", TableArchivalJobs, time.Now(), &err)

	j := &ArchivalJob{}
	err = scanJob(s.db.QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM audit_archival_jobs WHERE id = ?`, id), j)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, NotFoundf("archival job %s", id)
	}
	if err != nil {
		return nil, WrapStore("get archival job", err)
	}
	return j, nil
}

// ListJobs returns jobs matching the filter, newest first.
func (s *DuckDBStore) ListJobs(ctx context.Context, filter JobFilter) (_ []ArchivalJob, err error) {
	defer observe("list", TableArchivalJobs, time.Now(), &err)

	var conditions []string
	args := make([]interface{}, 0)
	if filter.PolicyID != "" {
		conditions = append(conditions, "policy_id = ?")
		args = append(args, filter.PolicyID)
	}
	if filter.Status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, string(filter.Status))
	}
	addRangeConditions("started_at", filter.Started, &conditions, &args)

	query := `SELECT ` + jobColumns + ` FROM audit_archival_jobs` + whereClause(conditions) +
		` ORDER BY started_at DESC, id DESC`
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, WrapStore("list archival jobs", err)
	}
	defer rows.Close()

	var out []ArchivalJob
	for rows.Next() {
		var j ArchivalJob
		if err := scanJob(rows, &j); err != nil {
			return nil, WrapStore("scan archival job", err)
		}
		out = append(out, j)
	}
	if err := rows.Err(); err != nil {
		return nil, WrapStore("iterate archival jobs", err)
	}
	return out, nil
}

// DeleteJobs removes jobs by id.
func (s *DuckDBStore) DeleteJobs(ctx context.Context, ids []string) (n int64, err error) {
	defer observe("delete", TableArchivalJobs, time.Now(), &err)
	return s.deleteByIDs(ctx, TableArchivalJobs, ids)
}

// --- table-generic retention access ---

// RetainableTables lists the tables retention may act on.
func (s *DuckDBStore) RetainableTables() []string {
	return RetainableTables()
}

// CountRows counts rows of table whose timestamp falls in r.
func (s *DuckDBStore) CountRows(ctx context.Context, table string, r TimeRange) (int64, error) {
	return tableAccess{records: s, jobs: s}.count(ctx, table, r)
}

// FetchRows returns rows of table whose timestamp falls in r.
func (s *DuckDBStore) FetchRows(ctx context.Context, table string, r TimeRange) ([]Row, error) {
	return tableAccess{records: s, jobs: s}.fetch(ctx, table, r)
}

// DeleteRows removes rows of table by id.
func (s *DuckDBStore) DeleteRows(ctx context.Context, table string, ids []string) (int64, error) {
	return tableAccess{records: s, jobs: s}.delete(ctx, table, ids)
}

// InsertRows reinserts archived rows into table.
func (s *DuckDBStore) InsertRows(ctx context.Context, table string, rows []Row) (int64, error) {
	return tableAccess{records: s, jobs: s}.insert(ctx, table, rows)
}
