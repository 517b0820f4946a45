/*
 * SPDX-License-Identifier: Apache-2.0
 */

// Package pack defines the on-disk-bound data model (§3): the per-device
// Path, Block, and File types that the pack assembler (component C7)
// builds and the pack writer (pkg/packio) serialises.
package pack

import (
	"github.com/pkg/errors"

	"github.com/bootwarm/bootwarm/internal/constant"
)

// Path is one entry in a File's path table: an inode replay must open
// to warm its dentry, optionally annotated with the filesystem
// block-group it lives in.
type Path struct {
	InodeID    uint64
	GroupHint  int32 // constant.UnknownGroupHint if not known
	PathString string
}

// Block is one logical-to-physical byte range replay should read.
type Block struct {
	PathIndex      int
	LogicalOffset  uint64
	Length         uint64
	PhysicalOffset int64 // constant.UnknownPhysicalOffset on non-rotational media
}

// Candidate is a byte range the scanner (C3) found resident in the page
// cache for one inode, not yet intersected against the ranges the trace
// actually observed being touched. The reducer (C5) consumes Candidate
// values and emits Block values.
type Candidate struct {
	PathIndex      int
	LogicalOffset  uint64
	Length         uint64
	PhysicalOffset int64 // constant.UnknownPhysicalOffset until resolved
}

// File is the per-device pack record: every path replay should open and
// every block it should read, for one device.
type File struct {
	DeviceID   uint64
	Rotational bool
	Paths      []Path
	Blocks     []Block
	Groups     []int32

	pathByInode map[uint64]int
}

// NewFile returns an empty per-device pack record.
func NewFile(deviceID uint64, rotational bool) *File {
	return &File{
		DeviceID:    deviceID,
		Rotational:  rotational,
		pathByInode: make(map[uint64]int),
	}
}

// AddPath returns the index of the Path for (inodeID, pathString) in
// f.Paths, appending one if that pair has not been recorded yet.
// Repeats of the same pair are eliminated; aliases (distinct path
// strings for the same inode) still get their own Path entry so replay
// warms every alias's dentry, per §4.3.
func (f *File) AddPath(inodeID uint64, pathString string, groupHint int32) int {
	if f.pathByInode == nil {
		f.pathByInode = make(map[uint64]int)
	}
	if _, ok := f.pathByInode[inodeID]; !ok {
		f.pathByInode[inodeID] = len(f.Paths)
	}
	// Aliases: same inode, different path string, both recorded.
	for i := range f.Paths {
		if f.Paths[i].InodeID == inodeID && f.Paths[i].PathString == pathString {
			return i
		}
	}
	idx := len(f.Paths)
	f.Paths = append(f.Paths, Path{InodeID: inodeID, PathString: pathString, GroupHint: groupHint})
	return idx
}

// PathIndexForInode returns the index recorded for inodeID's first
// alias, used by components that only need to look up the canonical
// entry for a path's inode (e.g. the reducer).
func (f *File) PathIndexForInode(inodeID uint64) (int, bool) {
	idx, ok := f.pathByInode[inodeID]
	return idx, ok
}

// AddBlock appends a block referencing pathIndex.
func (f *File) AddBlock(pathIndex int, logicalOffset, length uint64, physicalOffset int64) {
	f.Blocks = append(f.Blocks, Block{
		PathIndex:      pathIndex,
		LogicalOffset:  logicalOffset,
		Length:         length,
		PhysicalOffset: physicalOffset,
	})
}

// Validate checks invariant (1): every Block.PathIndex is in range.
func (f *File) Validate() error {
	for i, b := range f.Blocks {
		if b.PathIndex < 0 || b.PathIndex >= len(f.Paths) {
			return errors.Errorf("block %d: path index %d out of range [0,%d)", i, b.PathIndex, len(f.Paths))
		}
		if len(f.Paths[b.PathIndex].PathString) > constant.PackPathMax {
			return errors.Errorf("block %d: path %q exceeds PACK_PATH_MAX", i, f.Paths[b.PathIndex].PathString)
		}
	}
	return nil
}
