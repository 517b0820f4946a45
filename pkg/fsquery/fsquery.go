/*
 * SPDX-License-Identifier: Apache-2.0
 */

// Package fsquery is the syscall boundary the scanner (C3) queries
// through: stat, page-cache residency, rotational-media detection,
// physical extent layout, and ext4 block-group membership. It is
// specified as an interface per §6 so the scanner can be exercised
// against a fake in tests without touching real block devices.
package fsquery

import "os"

// Stat is the subset of file metadata the scanner needs.
type Stat struct {
	DeviceID uint64
	InodeID  uint64
	Size     int64
}

// Extent is one physical byte range backing a logical byte range,
// as reported by FIEMAP.
type Extent struct {
	LogicalOffset  uint64
	PhysicalOffset uint64
	Length         uint64
}

// Querier is the syscall-level collaborator the scanner depends on.
type Querier interface {
	// Stat returns the device, inode, and size for path.
	Stat(path string) (Stat, error)

	// OpenNoAtime opens path for reading without updating its atime,
	// falling back to a normal open if O_NOATIME is refused (e.g. the
	// caller does not own the file).
	OpenNoAtime(path string) (*os.File, error)

	// Residency reports, for each page covering [0, size), whether that
	// page is currently resident in the page cache.
	Residency(f *os.File, size int64) ([]bool, error)

	// Rotational reports whether deviceID's backing media is rotational.
	Rotational(deviceID uint64) (bool, error)

	// Extents returns the physical layout of f's first size bytes.
	// Callers only invoke this for rotational devices per §4.6.
	Extents(f *os.File, size int64) ([]Extent, error)

	// GroupOf returns inodeID's ext4 block group, or
	// constant.UnknownGroupHint if devicePath is not ext4 or the group
	// could not be determined.
	GroupOf(devicePath string, inodeID uint64) (int32, error)
}

// DeviceID combines a major/minor pair the way the kernel trace events
// do: major<<20 | (minor & 0xff). Used both when decoding trace records (§9) and
// when deriving a device id from a stat(2) result, so the two sources
// agree on the same key space.
func DeviceID(major, minor uint32) uint64 {
	return uint64(major)<<20 | uint64(minor&0xff)
}
