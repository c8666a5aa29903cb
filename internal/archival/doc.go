// Auditkeep - Audit Integrity and Retention Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/auditkeep

/*
Package archival executes retention policies.

# Execution

Runner.Execute runs one policy. For every applicable table it:

 1. fetches the archive band [deleteCutoff, archiveCutoff)
 2. streams a non-empty band to a dated archive file, gzip-compressed when
    the policy enables compression
 3. fetches every row older than deleteCutoff, whether or not it was
    archived in this run
 4. deletes those rows sequentially in batches of Options.BatchSize
    (default 1000), paced by Options.DeleteRate

Each execution is recorded as an ArchivalJob created running with a single
terminal transition:

	running -> completed
	running -> failed      (error message kept verbatim)
	running -> cancelled   (context cancelled or deadline exceeded)

Nothing is rolled back on failure. A retry may write the same band twice;
archival is safe to retry but not transactional.

Store calls go through a gobreaker circuit breaker so a failing database
does not receive a full delete loop.

# Restore

Runner.Restore reads a plain or .gz archive by file name from an archive
directory and reinserts its rows into the table named by the file name
prefix. Names containing path separators or ".." are rejected; content
that is not a JSON list fails with audit.ErrInvalidFormat.

# Scheduling

Runner.Schedule executes every active policy and tolerates individual
failures. Scheduler drives Schedule from a robfig/cron expression and
skips an activation while the previous pass is still running.
*/
package archival
