/*
 * SPDX-License-Identifier: Apache-2.0
 */

// Package ordering implements the ordering pass (component C6): it
// computes inode-group preload hints, sorts blocks by physical offset
// for rotational media, and sorts paths by (group, inode, path) so
// replay opens files in an order that favours sequential directory and
// disk access.
//
// The source tool this pipeline replaces sorted paths with a comparator
// that, for two paths in the same group, compared a path's inode field
// against itself instead of against the other path — making the
// "inode" tiebreak a no-op and leaving ties resolved by whatever the
// sort algorithm did with equal keys. This pass fixes that: ties are
// broken by inode, then by the path string itself, so the result is
// fully deterministic.
package ordering

import (
	"sort"

	"github.com/bootwarm/bootwarm/internal/constant"
	"github.com/bootwarm/bootwarm/pkg/pack"
)

// Order sorts file's paths and (for rotational media) blocks in place,
// and computes file.Groups.
func Order(file *pack.File) {
	computeGroupHints(file)
	permutation := sortPaths(file)
	rewriteBlockPathIndices(file, permutation)
	if file.Rotational {
		sortBlocksByPhysicalOffset(file)
	}
}

// computeGroupHints records, in ascending order, every block group
// referenced by more than constant.InodeGroupPreloadThreshold paths.
// Replay can use file.Groups to decide which groups are worth
// preloading wholesale instead of path by path.
func computeGroupHints(file *pack.File) {
	counts := make(map[int32]int)
	for _, p := range file.Paths {
		if p.GroupHint == constant.UnknownGroupHint {
			continue
		}
		counts[p.GroupHint]++
	}

	var groups []int32
	for g, n := range counts {
		if n > constant.InodeGroupPreloadThreshold {
			groups = append(groups, g)
		}
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i] < groups[j] })
	file.Groups = groups
}

// sortPaths reorders file.Paths by (GroupHint asc, InodeID asc,
// PathString asc) and returns the mapping from each path's original
// index to its new index.
func sortPaths(file *pack.File) []int {
	n := len(file.Paths)
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}

	sort.SliceStable(order, func(i, j int) bool {
		a, b := file.Paths[order[i]], file.Paths[order[j]]
		if a.GroupHint != b.GroupHint {
			return a.GroupHint < b.GroupHint
		}
		if a.InodeID != b.InodeID {
			return a.InodeID < b.InodeID
		}
		return a.PathString < b.PathString
	})

	sorted := make([]pack.Path, n)
	permutation := make([]int, n) // permutation[oldIndex] = newIndex
	for newIndex, oldIndex := range order {
		sorted[newIndex] = file.Paths[oldIndex]
		permutation[oldIndex] = newIndex
	}
	file.Paths = sorted
	return permutation
}

func rewriteBlockPathIndices(file *pack.File, permutation []int) {
	for i := range file.Blocks {
		file.Blocks[i].PathIndex = permutation[file.Blocks[i].PathIndex]
	}
}

// sortBlocksByPhysicalOffset stably sorts blocks by ascending physical
// offset, placing blocks with an unresolved offset
// (constant.UnknownPhysicalOffset) last: a sequential disk read order
// only makes sense for blocks that actually have a disk offset.
func sortBlocksByPhysicalOffset(file *pack.File) {
	sort.SliceStable(file.Blocks, func(i, j int) bool {
		a, b := file.Blocks[i].PhysicalOffset, file.Blocks[j].PhysicalOffset
		if a == constant.UnknownPhysicalOffset {
			return false
		}
		if b == constant.UnknownPhysicalOffset {
			return true
		}
		return a < b
	})
}
