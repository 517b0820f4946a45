/*
 * SPDX-License-Identifier: Apache-2.0
 */

// Package constant holds the fixed sizes and thresholds the
// trace-to-pack pipeline is built around.
package constant

const (
	// PageShift is log2(PageSize); page indices throughout the pipeline
	// are expressed in units of this size.
	PageShift = 12
	// PageSize is the page size every PageRange, chunk, and extent
	// offset is quantized to.
	PageSize = 1 << PageShift

	// PackPathMax bounds a PackPath.PathString, matching Linux's
	// PATH_MAX since that's the longest absolute path the scanner will
	// ever be asked to normalise.
	PackPathMax = 4096

	// UnknownGroupHint is the PackPath.GroupHint sentinel meaning "no
	// block-group information available".
	UnknownGroupHint = -1

	// UnknownPhysicalOffset is the PackBlock.PhysicalOffset sentinel
	// used on non-rotational media, where seek cost doesn't depend on
	// placement.
	UnknownPhysicalOffset = -1

	// InodeGroupPreloadThreshold is the number of paths a block group
	// must exceed before that group is worth a dedicated preload hint.
	InodeGroupPreloadThreshold = 8

	// TraceBufferSizeKB is the per-CPU ftrace ring buffer size requested
	// while a trace is in progress.
	TraceBufferSizeKB = 8 * 1024

	// ScanNiceDelta is added to the scanning process's nice value
	// (lowering its priority) before the I/O-heavy file scan, so it
	// doesn't starve boot-critical tasks.
	ScanNiceDelta = 15
)

// IgnorePathPrefixes are virtual filesystem trees whose content must
// never be captured in a pack, per the non-goals.
var IgnorePathPrefixes = []string{
	"/proc/",
	"/sys/",
	"/dev/",
	"/tmp/",
	"/run/",
	"/var/run/",
	"/var/log/",
	"/var/lock/",
}
