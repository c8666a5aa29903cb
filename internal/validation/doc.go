// Auditkeep - Audit Integrity and Retention Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/auditkeep

// Package validation provides struct validation using go-playground/validator v10.
//
// This package wraps the go-playground/validator library to provide a thread-safe
// singleton validator instance with custom validators and human-readable error
// messages.
//
// # Overview
//
// The package provides:
//   - Thread-safe singleton validator (initialized once, cached struct info)
//   - Error translation to human-readable messages, including cross-field
//     rules such as ltefield
//   - A table_name validator for lower-case collection identifiers
//
// # Usage
//
//	type RetentionPolicy struct {
//	    RetentionPeriodDays int `validate:"min=1"`
//	    ArchivePeriodDays   int `validate:"min=0,ltefield=RetentionPeriodDays"`
//	}
//
//	if verr := validation.ValidateStruct(&policy); verr != nil {
//	    return fmt.Errorf("%w: %s", audit.ErrValidation, verr.Error())
//	}
//
// # Thread Safety
//
// GetValidator and ValidateStruct are safe for concurrent use.
package validation
