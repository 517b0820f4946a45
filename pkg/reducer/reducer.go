/*
 * SPDX-License-Identifier: Apache-2.0
 */

// Package reducer implements the block reducer (component C5): it
// intersects the scanner's candidate byte ranges (derived from
// page-cache residency, a superset of what was actually touched) against
// the interval index's touched-page ranges (an exact record of what the
// trace observed being read), producing the minimal block set replay
// needs to read.
package reducer

import (
	"sort"

	"github.com/bootwarm/bootwarm/internal/constant"
	"github.com/bootwarm/bootwarm/pkg/pack"
	"github.com/bootwarm/bootwarm/pkg/pageindex"
	"github.com/bootwarm/bootwarm/pkg/session"
)

// RunSession reduces every device's accumulated candidates against its
// completed interval index and appends the resulting blocks to each
// pack.File in sess. It must run only after ingestion (C4) has finished
// reading the whole trace: a candidate recorded early may still need to
// be intersected against a touched range recorded much later.
//
// Per §4.5's sentinel path, an inode with candidates but no entry at
// all in the interval index was opened but never actually read (only
// dentry access was observed): its candidates are discarded and
// replaced with exactly one zero-length sentinel block. This is
// distinct from an inode that is in the index but whose ranges simply
// don't overlap any candidate, which Reduce handles by emitting
// nothing for that candidate.
func RunSession(sess *session.Session) {
	for _, file := range sess.Files() {
		for _, inodeID := range sess.InodesWithCandidates(file.DeviceID) {
			candidates := sess.CandidatesFor(file.DeviceID, inodeID)
			if len(candidates) == 0 {
				continue
			}
			sort.Slice(candidates, func(i, j int) bool {
				return candidates[i].LogicalOffset < candidates[j].LogicalOffset
			})

			idx, ok := sess.Index.Find(file.DeviceID, inodeID)
			if !ok {
				file.Blocks = append(file.Blocks, sentinelBlock(candidates[0].PathIndex))
				continue
			}

			file.Blocks = append(file.Blocks, Reduce(candidates, idx.Ranges)...)
		}
	}
}

// sentinelBlock is the §4.5 zero-length block recording that replay
// should still open pathIndex's file without issuing data I/O.
func sentinelBlock(pathIndex int) pack.Block {
	return pack.Block{
		PathIndex:      pathIndex,
		LogicalOffset:  0,
		Length:         0,
		PhysicalOffset: constant.UnknownPhysicalOffset,
	}
}

// Reduce intersects candidates (one inode's scanner output, sorted by
// LogicalOffset) against touched (that inode's entry in the interval
// index, already sorted and non-overlapping per C1's invariant) and
// returns the resulting pack.Block values. Callers only reach this for
// an inode the interval index actually has an entry for; the §4.5
// sentinel for an inode missing from the index entirely is RunSession's
// responsibility, not Reduce's.
//
// A candidate with zero length (the scanner's own "opened a zero-size
// file" case) is passed through unconditionally: there is nothing to
// intersect it against, and its presence is itself the signal replay
// needs.
func Reduce(candidates []pack.Candidate, touched []pageindex.PageRange) []pack.Block {
	var out []pack.Block

	for _, c := range candidates {
		if c.Length == 0 {
			out = append(out, pack.Block{
				PathIndex:      c.PathIndex,
				LogicalOffset:  0,
				Length:         0,
				PhysicalOffset: constant.UnknownPhysicalOffset,
			})
		}
	}

	i, j := 0, 0
	for i < len(candidates) && j < len(touched) {
		c := candidates[i]
		if c.Length == 0 {
			i++
			continue
		}
		cRange := toPageRange(c)
		t := touched[j]

		start := maxU64(cRange.Start, t.Start)
		end := minU64(cRange.End, t.End)
		if start < end {
			out = append(out, intersectionBlock(c, start, end))
		}

		if cRange.End <= t.End {
			i++
		} else {
			j++
		}
	}

	return out
}

func toPageRange(c pack.Candidate) pageindex.PageRange {
	startPage := c.LogicalOffset / constant.PageSize
	endPage := (c.LogicalOffset + c.Length + constant.PageSize - 1) / constant.PageSize
	return pageindex.PageRange{Start: startPage, End: endPage}
}

// intersectionBlock rebuilds the byte-level block covering
// [startPage, endPage) of c, carrying the physical offset forward by
// the same page delta when one was resolved.
func intersectionBlock(c pack.Candidate, startPage, endPage uint64) pack.Block {
	cStartPage := c.LogicalOffset / constant.PageSize
	deltaBytes := (startPage - cStartPage) * constant.PageSize
	lengthBytes := (endPage - startPage) * constant.PageSize

	physical := int64(constant.UnknownPhysicalOffset)
	if c.PhysicalOffset != constant.UnknownPhysicalOffset {
		physical = c.PhysicalOffset + int64(deltaBytes)
	}

	return pack.Block{
		PathIndex:      c.PathIndex,
		LogicalOffset:  c.LogicalOffset + deltaBytes,
		Length:         lengthBytes,
		PhysicalOffset: physical,
	}
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
