/*
 * SPDX-License-Identifier: Apache-2.0
 */

// Package pageindex implements the interval index (component C1): a
// per-device, per-inode merge-on-insert set of touched page ranges.
package pageindex

import (
	"math"
	"sort"

	"github.com/bootwarm/bootwarm/pkg/errdefs"
)

// PageRange is a half-open [Start, End) range over 4096-byte-page
// indices. The invariant Start < End holds for every range stored in an
// InodeIndex.
type PageRange struct {
	Start uint64
	End   uint64
}

// touches reports whether a and b are touching or overlapping, i.e.
// !(a.End < b.Start || b.End < a.Start).
func (a PageRange) touches(b PageRange) bool {
	return !(a.End < b.Start || b.End < a.Start)
}

// InodeIndex holds the minimal set of non-touching, non-overlapping
// page ranges whose union equals the union of every range ever added
// for one inode.
type InodeIndex struct {
	InodeID     uint64
	Ranges      []PageRange
	DisplayName string
}

// add merges r into the index, preserving ascending-by-Start order and
// the non-touching invariant.
func (idx *InodeIndex) add(r PageRange) {
	ranges := idx.Ranges

	// Binary search for the first range that could touch or overlap r
	// from the left: the first range whose End is >= r.Start.
	lo := sort.Search(len(ranges), func(i int) bool { return ranges[i].End >= r.Start })

	if lo == len(ranges) || ranges[lo].Start > r.End {
		// No existing range touches r; insert at lo preserving order.
		idx.Ranges = append(ranges, PageRange{})
		copy(idx.Ranges[lo+1:], idx.Ranges[lo:])
		idx.Ranges[lo] = r
		return
	}

	// Walk outward from lo to find the highest-indexed range that also
	// touches-or-overlaps r. The expected span is <=2 by workload, but
	// we don't bound the walk: correctness must hold regardless.
	hi := lo
	for hi+1 < len(ranges) && ranges[hi+1].Start <= r.End {
		hi++
	}

	merged := PageRange{
		Start: minU64(ranges[lo].Start, r.Start),
		End:   maxU64(ranges[hi].End, r.End),
	}

	// Replace ranges[lo..hi] (inclusive) with the single merged range.
	idx.Ranges = append(idx.Ranges[:lo+1], idx.Ranges[hi+1:]...)
	idx.Ranges[lo] = merged
}

// DeviceIndex owns the ordered InodeIndex set for one device.
type DeviceIndex struct {
	DeviceID uint64

	byInode map[uint64]*InodeIndex
	order   []uint64
}

func newDeviceIndex(deviceID uint64) *DeviceIndex {
	return &DeviceIndex{
		DeviceID: deviceID,
		byInode:  make(map[uint64]*InodeIndex),
	}
}

// Find returns the InodeIndex for inodeID, if any range has been added
// for it.
func (d *DeviceIndex) Find(inodeID uint64) (*InodeIndex, bool) {
	idx, ok := d.byInode[inodeID]
	return idx, ok
}

func (d *DeviceIndex) getOrCreate(inodeID uint64) *InodeIndex {
	idx, ok := d.byInode[inodeID]
	if !ok {
		idx = &InodeIndex{InodeID: inodeID}
		d.byInode[inodeID] = idx
		d.order = append(d.order, inodeID)
	}
	return idx
}

// Inodes returns the InodeIndex set in first-touched order.
func (d *DeviceIndex) Inodes() []*InodeIndex {
	out := make([]*InodeIndex, 0, len(d.order))
	for _, inodeID := range d.order {
		out = append(out, d.byInode[inodeID])
	}
	return out
}

// DeviceTable maps a device id to its DeviceIndex, with O(1) amortised
// lookup. It is owned exclusively by the ingester for the duration of a
// trace; the reducer only reads it afterwards.
type DeviceTable struct {
	devices map[uint64]*DeviceIndex
}

// NewDeviceTable returns an empty table.
func NewDeviceTable() *DeviceTable {
	return &DeviceTable{devices: make(map[uint64]*DeviceIndex)}
}

// Device returns the DeviceIndex for deviceID, if it has ever been
// mentioned.
func (t *DeviceTable) Device(deviceID uint64) (*DeviceIndex, bool) {
	d, ok := t.devices[deviceID]
	return d, ok
}

// Find is a convenience wrapper combining device and inode lookup.
func (t *DeviceTable) Find(deviceID, inodeID uint64) (*InodeIndex, bool) {
	d, ok := t.devices[deviceID]
	if !ok {
		return nil, false
	}
	return d.Find(inodeID)
}

// Add records that the half-open range derived from
// [firstPage, lastPageInclusive] was touched on (deviceID, inodeID).
// It returns errdefs.ErrRangeOverflow, without mutating anything, if
// lastPageInclusive+1 would overflow the address space.
func (t *DeviceTable) Add(deviceID, inodeID, firstPage, lastPageInclusive uint64) error {
	if lastPageInclusive == math.MaxUint64 {
		return errdefs.ErrRangeOverflow
	}
	end := lastPageInclusive + 1
	if firstPage >= end {
		// A degenerate or already-overflowed range; reject defensively
		// rather than store an inverted interval.
		return errdefs.ErrRangeOverflow
	}

	d, ok := t.devices[deviceID]
	if !ok {
		d = newDeviceIndex(deviceID)
		t.devices[deviceID] = d
	}
	idx := d.getOrCreate(inodeID)
	idx.add(PageRange{Start: firstPage, End: end})
	return nil
}

func minU64(a, b uint64) uint64 {
	if a < b {
		return a
	}
	return b
}

func maxU64(a, b uint64) uint64 {
	if a > b {
		return a
	}
	return b
}
