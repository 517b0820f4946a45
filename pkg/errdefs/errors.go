/*
 * SPDX-License-Identifier: Apache-2.0
 */

// Package errdefs defines the error kinds the trace-to-pack pipeline
// distinguishes between (§7 of the design): fatal errors that must
// abort the trace, and recoverable errors that are logged and absorbed
// at the boundary of the component that hit them.
package errdefs

import (
	"github.com/pkg/errors"
)

var (
	// ErrFatalSetup means the kernel trace transport could not be
	// brought up (events, buffer sizing, or the trace stream itself):
	// the caller must abort with a non-zero exit and unwind any
	// already-applied transport state.
	ErrFatalSetup = errors.New("fatal: trace transport setup failed")

	// ErrFatalInvariant means an allocation failure or an impossible
	// numeric overflow was hit; the process must abort.
	ErrFatalInvariant = errors.New("fatal: invariant violated")

	// ErrRecoverablePerFile means a single file's stat/open/mmap/mincore
	// or extent query failed; the caller logs a warning and skips the
	// file without aborting the trace.
	ErrRecoverablePerFile = errors.New("recoverable: per-file error")

	// ErrRecoverablePerRecord means a trace record was missing an
	// expected field; the caller logs a warning and drops the record.
	ErrRecoverablePerRecord = errors.New("recoverable: per-record error")

	// ErrSoftMissingEvents means an optional filemap trace event was
	// unavailable; the block reducer is disabled for the resulting
	// pack but tracing otherwise continues.
	ErrSoftMissingEvents = errors.New("soft: optional trace events unavailable")

	// ErrRangeOverflow is the specific fatal-invariant cause raised by
	// the interval index when last_page+1 would exceed the address
	// space; it is recoverable at the call site (the add is rejected,
	// not fatal to the whole trace).
	ErrRangeOverflow = errors.New("page range would overflow address space")
)

// IsFatal returns true for the two error kinds that must abort the
// trace rather than being absorbed at a component boundary.
func IsFatal(err error) bool {
	return errors.Is(err, ErrFatalSetup) || errors.Is(err, ErrFatalInvariant)
}

// IsRecoverable returns true for the per-file and per-record kinds that
// are logged and skipped without aborting.
func IsRecoverable(err error) bool {
	return errors.Is(err, ErrRecoverablePerFile) || errors.Is(err, ErrRecoverablePerRecord)
}

// IsSoft returns true when an optional capability (e.g. the filemap
// trace events) was unavailable.
func IsSoft(err error) bool {
	return errors.Is(err, ErrSoftMissingEvents)
}
