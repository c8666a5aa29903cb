// Auditkeep - Audit Integrity and Retention Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/auditkeep

package hashchain

import (
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/auditkeep/internal/audit"
)

// CanonicalJSON renders the hashed fields of rec as JSON with sorted keys at
// every level. Value maps are round-tripped through JSON first so a record
// read back from storage (numbers as float64, nested maps untyped) renders
// byte-identical to the one originally written.
func CanonicalJSON(rec *audit.Record) ([]byte, error) {
	oldValues, err := normalizeValues(rec.OldValues)
	if err != nil {
		return nil, fmt.Errorf("normalize old_values: %w", err)
	}
	newValues, err := normalizeValues(rec.NewValues)
	if err != nil {
		return nil, fmt.Errorf("normalize new_values: %w", err)
	}

	// encoding a map sorts its keys
	doc := map[string]interface{}{
		"id":         rec.ID,
		"table_name": rec.TableName,
		"record_id":  rec.RecordID,
		"action":     string(rec.Action),
		"old_values": oldValues,
		"new_values": newValues,
		"changed_by": rec.ChangedBy,
		"ip_address": rec.IPAddress,
		"changed_at": audit.NormalizeTime(rec.ChangedAt).Format(time.RFC3339Nano),
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshal canonical record: %w", err)
	}
	return data, nil
}

func normalizeValues(v map[string]interface{}) (interface{}, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out map[string]interface{}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}
