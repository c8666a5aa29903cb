// Auditkeep - Audit Integrity and Retention Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/auditkeep

package audit

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryStore implements Store using in-memory storage.
// Suitable for development and testing. Data is lost on restart.
type MemoryStore struct {
	mu sync.RWMutex

	records    map[string]*Record
	hashes     []HashRecord // chain order
	hashByLog  map[string]int
	hashValues map[string]struct{}
	events     map[string]*SecurityEvent
	policies   map[string]*RetentionPolicy
	jobs       map[string]*ArchivalJob
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records:    make(map[string]*Record),
		hashByLog:  make(map[string]int),
		hashValues: make(map[string]struct{}),
		events:     make(map[string]*SecurityEvent),
		policies:   make(map[string]*RetentionPolicy),
		jobs:       make(map[string]*ArchivalJob),
	}
}

// Ping always succeeds.
func (s *MemoryStore) Ping(_ context.Context) error {
	return nil
}

func cloneRecord(r *Record) Record {
	c := *r
	c.OldValues = maps.Clone(r.OldValues)
	c.NewValues = maps.Clone(r.NewValues)
	return c
}

// --- audit_logs ---

// InsertRecord persists an audit record.
func (s *MemoryStore) InsertRecord(_ context.Context, rec *Record) error {
	if rec.ID == "" {
		return Validationf("audit record id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[rec.ID]; exists {
		return &StoreError{Op: "insert audit record", Err: fmt.Errorf("duplicate id %s", rec.ID)}
	}
	c := cloneRecord(rec)
	c.ChangedAt = NormalizeTime(c.ChangedAt)
	s.records[rec.ID] = &c
	return nil
}

// InsertRecords persists records, skipping ids that already exist.
func (s *MemoryStore) InsertRecords(_ context.Context, recs []Record) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for i := range recs {
		if recs[i].ID == "" {
			return n, Validationf("audit record id is required")
		}
		if _, exists := s.records[recs[i].ID]; exists {
			continue
		}
		c := cloneRecord(&recs[i])
		c.ChangedAt = NormalizeTime(c.ChangedAt)
		s.records[c.ID] = &c
		n++
	}
	return n, nil
}

// GetRecord retrieves an audit record by ID.
func (s *MemoryStore) GetRecord(_ context.Context, id string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[id]
	if !ok {
		return nil, NotFoundf("audit record %s", id)
	}
	c := cloneRecord(rec)
	return &c, nil
}

func matchesRecord(rec *Record, f *RecordFilter) bool {
	if !f.Range.Contains(rec.ChangedAt) {
		return false
	}
	if f.TableName != "" && rec.TableName != f.TableName {
		return false
	}
	if f.ChangedBy != "" && rec.ChangedBy != f.ChangedBy {
		return false
	}
	if f.Action != "" && rec.Action != f.Action {
		return false
	}
	if len(f.IDs) > 0 && !slices.Contains(f.IDs, rec.ID) {
		return false
	}
	return true
}

func (s *MemoryStore) matchingRecords(f *RecordFilter) []Record {
	var out []Record
	for _, rec := range s.records {
		if matchesRecord(rec, f) {
			out = append(out, cloneRecord(rec))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ChangedAt.Equal(out[j].ChangedAt) {
			return out[i].ID < out[j].ID
		}
		if f.OrderDesc {
			return out[i].ChangedAt.After(out[j].ChangedAt)
		}
		return out[i].ChangedAt.Before(out[j].ChangedAt)
	})
	return out
}

func paginate[T any](items []T, offset, limit int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return nil
		}
		items = items[offset:]
	}
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}

// QueryRecords returns records matching the filter.
func (s *MemoryStore) QueryRecords(_ context.Context, filter RecordFilter) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return paginate(s.matchingRecords(&filter), filter.Offset, filter.Limit), nil
}

// CountRecords counts records matching the filter, ignoring pagination.
func (s *MemoryStore) CountRecords(_ context.Context, filter RecordFilter) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	for _, rec := range s.records {
		if matchesRecord(rec, &filter) {
			n++
		}
	}
	return n, nil
}

func recordField(rec *Record, f GroupField) string {
	switch f {
	case GroupByActor:
		return rec.ChangedBy
	case GroupByAction:
		return string(rec.Action)
	case GroupByIP:
		return rec.IPAddress
	default:
		return ""
	}
}

// CountRecordsGrouped aggregates records in r by the given fields.
func (s *MemoryStore) CountRecordsGrouped(_ context.Context, r TimeRange, fields ...GroupField) ([]GroupCount, error) {
	if len(fields) == 0 {
		return nil, Validationf("at least one group field is required")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[string]*GroupCount)
	for _, rec := range s.records {
		if !r.Contains(rec.ChangedAt) {
			continue
		}
		key := make([]string, len(fields))
		for i, f := range fields {
			key[i] = recordField(rec, f)
		}
		k := strings.Join(key, "\x00")
		if gc, ok := counts[k]; ok {
			gc.Count++
			continue
		}
		counts[k] = &GroupCount{Key: key, Count: 1}
	}

	out := make([]GroupCount, 0, len(counts))
	for _, gc := range counts {
		out = append(out, *gc)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count == out[j].Count {
			return strings.Join(out[i].Key, ",") < strings.Join(out[j].Key, ",")
		}
		return out[i].Count > out[j].Count
	})
	return out, nil
}

// DeleteRecords removes records by id and returns how many existed.
func (s *MemoryStore) DeleteRecords(_ context.Context, ids []string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for _, id := range ids {
		if _, ok := s.records[id]; ok {
			delete(s.records, id)
			n++
		}
	}
	return n, nil
}

// UpdateRecordForTesting mutates a stored record in place. Audit records are
// immutable in production; this exists so tests can simulate tampering.
func (s *MemoryStore) UpdateRecordForTesting(id string, fn func(*Record)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return false
	}
	fn(rec)
	return true
}

// --- audit_log_hashes ---

// InsertHash appends a hash record to the chain.
func (s *MemoryStore) InsertHash(_ context.Context, h *HashRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.hashByLog[h.AuditLogID]; exists {
		return &StoreError{Op: "insert hash", Err: fmt.Errorf("audit record %s already hashed", h.AuditLogID)}
	}
	c := *h
	c.CreatedAt = NormalizeTime(c.CreatedAt)
	s.hashes = append(s.hashes, c)
	s.hashByLog[h.AuditLogID] = len(s.hashes) - 1
	s.hashValues[h.HashValue] = struct{}{}
	return nil
}

// GetHashByRecordID returns the hash record of an audit record.
func (s *MemoryStore) GetHashByRecordID(_ context.Context, auditLogID string) (*HashRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx, ok := s.hashByLog[auditLogID]
	if !ok {
		return nil, NotFoundf("hash for audit record %s", auditLogID)
	}
	h := s.hashes[idx]
	return &h, nil
}

// LatestHash returns the chain head.
func (s *MemoryStore) LatestHash(_ context.Context) (*HashRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.hashes) == 0 {
		return nil, NotFoundf("chain head")
	}
	h := s.hashes[len(s.hashes)-1]
	return &h, nil
}

// HashValueExists reports whether any hash record carries hashValue.
func (s *MemoryStore) HashValueExists(_ context.Context, hashValue string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.hashValues[hashValue]
	return ok, nil
}

// SetHashVerified updates the verified flag of a hash record.
func (s *MemoryStore) SetHashVerified(_ context.Context, auditLogID string, verified bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, ok := s.hashByLog[auditLogID]
	if !ok {
		return NotFoundf("hash for audit record %s", auditLogID)
	}
	s.hashes[idx].Verified = verified
	return nil
}

// ListRecordsWithHashes returns up to limit of the most recent hashed records.
func (s *MemoryStore) ListRecordsWithHashes(_ context.Context, limit int) ([]RecordWithHash, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]RecordWithHash, 0, len(s.hashes))
	for _, h := range s.hashes {
		rec, ok := s.records[h.AuditLogID]
		if !ok {
			continue
		}
		out = append(out, RecordWithHash{Record: cloneRecord(rec), Hash: h})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Record.ChangedAt.Equal(out[j].Record.ChangedAt) {
			return out[i].Hash.Sequence > out[j].Hash.Sequence
		}
		return out[i].Record.ChangedAt.After(out[j].Record.ChangedAt)
	})
	return paginate(out, 0, limit), nil
}

// CountHashes returns the chain length.
func (s *MemoryStore) CountHashes(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.hashes)), nil
}

// CountRecordsWithoutHash counts audit records that were never hashed.
func (s *MemoryStore) CountRecordsWithoutHash(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	for id := range s.records {
		if _, ok := s.hashByLog[id]; !ok {
			n++
		}
	}
	return n, nil
}

// --- audit_security_events ---

func cloneEvent(ev *SecurityEvent) SecurityEvent {
	c := *ev
	c.AffectedRecords = slices.Clone(ev.AffectedRecords)
	c.Metadata = maps.Clone(ev.Metadata)
	if ev.ResolvedAt != nil {
		t := *ev.ResolvedAt
		c.ResolvedAt = &t
	}
	return c
}

// InsertSecurityEvent persists a security event.
func (s *MemoryStore) InsertSecurityEvent(_ context.Context, ev *SecurityEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.events[ev.ID]; exists {
		return &StoreError{Op: "insert security event", Err: fmt.Errorf("duplicate id %s", ev.ID)}
	}
	c := cloneEvent(ev)
	c.DetectedAt = NormalizeTime(c.DetectedAt)
	s.events[ev.ID] = &c
	return nil
}

// GetSecurityEvent retrieves a security event by ID.
func (s *MemoryStore) GetSecurityEvent(_ context.Context, id string) (*SecurityEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ev, ok := s.events[id]
	if !ok {
		return nil, NotFoundf("security event %s", id)
	}
	c := cloneEvent(ev)
	return &c, nil
}

func matchesEvent(ev *SecurityEvent, f *SecurityEventFilter) bool {
	if f.UnresolvedOnly && ev.Resolved {
		return false
	}
	if f.Severity != "" && ev.Severity != f.Severity {
		return false
	}
	if f.EventType != "" && ev.EventType != f.EventType {
		return false
	}
	return f.Range.Contains(ev.DetectedAt)
}

// QuerySecurityEvents returns events matching the filter, newest first.
func (s *MemoryStore) QuerySecurityEvents(_ context.Context, filter SecurityEventFilter) ([]SecurityEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []SecurityEvent
	for _, ev := range s.events {
		if matchesEvent(ev, &filter) {
			out = append(out, cloneEvent(ev))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DetectedAt.Equal(out[j].DetectedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].DetectedAt.After(out[j].DetectedAt)
	})
	return paginate(out, filter.Offset, filter.Limit), nil
}

// CountSecurityEvents counts events matching the filter.
func (s *MemoryStore) CountSecurityEvents(_ context.Context, filter SecurityEventFilter) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	for _, ev := range s.events {
		if matchesEvent(ev, &filter) {
			n++
		}
	}
	return n, nil
}

// ResolveSecurityEvent transitions an event to resolved.
func (s *MemoryStore) ResolveSecurityEvent(_ context.Context, id, resolvedBy string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ev, ok := s.events[id]
	if !ok {
		return false, NotFoundf("security event %s", id)
	}
	if ev.Resolved {
		return false, nil
	}
	at = NormalizeTime(at)
	ev.Resolved = true
	ev.ResolvedBy = resolvedBy
	ev.ResolvedAt = &at
	return true, nil
}

// --- audit_retention_policies ---

func clonePolicy(p *RetentionPolicy) RetentionPolicy {
	c := *p
	c.ApplicableTables = slices.Clone(p.ApplicableTables)
	return c
}

// InsertPolicy persists a retention policy.
func (s *MemoryStore) InsertPolicy(_ context.Context, p *RetentionPolicy) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.policies[p.ID]; exists {
		return &StoreError{Op: "insert policy", Err: fmt.Errorf("duplicate id %s", p.ID)}
	}
	c := clonePolicy(p)
	s.policies[p.ID] = &c
	return nil
}

// GetPolicy retrieves a retention policy by ID.
func (s *MemoryStore) GetPolicy(_ context.Context, id string) (*RetentionPolicy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.policies[id]
	if !ok {
		return nil, NotFoundf("retention policy %s", id)
	}
	c := clonePolicy(p)
	return &c, nil
}

// UpdatePolicy replaces a stored retention policy.
func (s *MemoryStore) UpdatePolicy(_ context.Context, p *RetentionPolicy) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.policies[p.ID]; !ok {
		return NotFoundf("retention policy %s", p.ID)
	}
	c := clonePolicy(p)
	s.policies[p.ID] = &c
	return nil
}

// DeletePolicy removes a retention policy.
func (s *MemoryStore) DeletePolicy(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.policies[id]; !ok {
		return NotFoundf("retention policy %s", id)
	}
	delete(s.policies, id)
	return nil
}

// ListPolicies returns policies ordered by name.
func (s *MemoryStore) ListPolicies(_ context.Context, filter PolicyFilter) ([]RetentionPolicy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]RetentionPolicy, 0, len(s.policies))
	for _, p := range s.policies {
		if filter.ActiveOnly && !p.IsActive {
			continue
		}
		out = append(out, clonePolicy(p))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name == out[j].Name {
			return out[i].ID < out[j].ID
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

// --- audit_archival_jobs ---

func cloneJob(j *ArchivalJob) ArchivalJob {
	c := *j
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		c.CompletedAt = &t
	}
	return c
}

// InsertJob persists an archival job.
func (s *MemoryStore) InsertJob(_ context.Context, job *ArchivalJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[job.ID]; exists {
		return &StoreError{Op: "insert archival job", Err: fmt.Errorf("duplicate id %s", job.ID)}
	}
	c := cloneJob(job)
	c.StartedAt = NormalizeTime(c.StartedAt)
	s.jobs[job.ID] = &c
	return nil
}

// UpdateJob replaces a stored archival job.
func (s *MemoryStore) UpdateJob(_ context.Context, job *ArchivalJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[job.ID]; !ok {
		return NotFoundf("archival job %s", job.ID)
	}
	c := cloneJob(job)
	c.StartedAt = NormalizeTime(c.StartedAt)
	s.jobs[job.ID] = &c
	return nil
}

// GetJob retrieves an archival job by ID.
func (s *MemoryStore) GetJob(_ context.Context, id string) (*ArchivalJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	j, ok := s.jobs[id]
	if !ok {
		return nil, NotFoundf("archival job %s", id)
	}
	c := cloneJob(j)
	return &c, nil
}

// ListJobs returns jobs matching the filter, newest first.
func (s *MemoryStore) ListJobs(_ context.Context, filter JobFilter) ([]ArchivalJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []ArchivalJob
	for _, j := range s.jobs {
		if filter.PolicyID != "" && j.PolicyID != filter.PolicyID {
			continue
		}
		if filter.Status != "" && j.Status != filter.Status {
			continue
		}
		if !filter.Started.Contains(j.StartedAt) {
			continue
		}
		out = append(out, cloneJob(j))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	return paginate(out, 0, filter.Limit), nil
}

// DeleteJobs removes jobs by id.
func (s *MemoryStore) DeleteJobs(_ context.Context, ids []string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for _, id := range ids {
		if _, ok := s.jobs[id]; ok {
			delete(s.jobs, id)
			n++
		}
	}
	return n, nil
}

// --- table-generic retention access ---

// RetainableTables lists the tables retention may act on.
func (s *MemoryStore) RetainableTables() []string {
	return RetainableTables()
}

// CountRows counts rows of table whose timestamp falls in r.
func (s *MemoryStore) CountRows(ctx context.Context, table string, r TimeRange) (int64, error) {
	return tableAccess{records: s, jobs: s}.count(ctx, table, r)
}

// FetchRows returns rows of table whose timestamp falls in r.
func (s *MemoryStore) FetchRows(ctx context.Context, table string, r TimeRange) ([]Row, error) {
	return tableAccess{records: s, jobs: s}.fetch(ctx, table, r)
}

// DeleteRows removes rows of table by id.
func (s *MemoryStore) DeleteRows(ctx context.Context, table string, ids []string) (int64, error) {
	return tableAccess{records: s, jobs: s}.delete(ctx, table, ids)
}

// InsertRows reinserts archived rows into table.
func (s *MemoryStore) InsertRows(ctx context.Context, table string, rows []Row) (int64, error) {
	return tableAccess{records: s, jobs: s}.insert(ctx, table, rows)
}
