/*
 * SPDX-License-Identifier: Apache-2.0
 */

package reducer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bootwarm/bootwarm/internal/constant"
	"github.com/bootwarm/bootwarm/pkg/pack"
	"github.com/bootwarm/bootwarm/pkg/pageindex"
	"github.com/bootwarm/bootwarm/pkg/session"
	)

const ps = constant.PageSize

func TestReduceSingleCandidateMultipleTouchedRanges(t *testing.T) {
	candidates := []pack.Candidate{
		{PathIndex: 0, LogicalOffset: 0, Length: 10 * ps, PhysicalOffset: constant.UnknownPhysicalOffset},
	}
	touched := []pageindex.PageRange{{Start: 2, End: 5}, {Start: 7, End: 9}}

	got := Reduce(candidates, touched)
	want := []pack.Block{
		{PathIndex: 0, LogicalOffset: 2 * ps, Length: 3 * ps, PhysicalOffset: constant.UnknownPhysicalOffset},
		{PathIndex: 0, LogicalOffset: 7 * ps, Length: 2 * ps, PhysicalOffset: constant.UnknownPhysicalOffset},
	}
	assert.Equal(t, want, got)
}

func TestReduceTouchedRangeCrossesCandidateBoundary(t *testing.T) {
	candidates := []pack.Candidate{
		{PathIndex: 0, LogicalOffset: 0, Length: 5 * ps, PhysicalOffset: constant.UnknownPhysicalOffset},
		{PathIndex: 0, LogicalOffset: 5 * ps, Length: 5 * ps, PhysicalOffset: 100 * ps},
	}
	touched := []pageindex.PageRange{{Start: 3, End: 7}}

	got := Reduce(candidates, touched)
	want := []pack.Block{
		{PathIndex: 0, LogicalOffset: 3 * ps, Length: 2 * ps, PhysicalOffset: constant.UnknownPhysicalOffset},
		{PathIndex: 0, LogicalOffset: 5 * ps, Length: 2 * ps, PhysicalOffset: 100 * ps},
	}
	assert.Equal(t, want, got)
}

func TestReducePhysicalOffsetCarriesDelta(t *testing.T) {
	candidates := []pack.Candidate{
		{PathIndex: 0, LogicalOffset: 5 * ps, Length: 5 * ps, PhysicalOffset: 100 * ps},
	}
	touched := []pageindex.PageRange{{Start: 7, End: 9}}

	got := Reduce(candidates, touched)
	want := []pack.Block{
		{PathIndex: 0, LogicalOffset: 7 * ps, Length: 2 * ps, PhysicalOffset: 102 * ps},
	}
	assert.Equal(t, want, got)
}

func TestReduceSentinelPassesThroughUnconditionally(t *testing.T) {
	candidates := []pack.Candidate{
		{PathIndex: 3, LogicalOffset: 0, Length: 0, PhysicalOffset: constant.UnknownPhysicalOffset},
	}
	got := Reduce(candidates, nil)
	want := []pack.Block{
		{PathIndex: 3, LogicalOffset: 0, Length: 0, PhysicalOffset: constant.UnknownPhysicalOffset},
	}
	assert.Equal(t, want, got)
}

// TestRunSessionEmitsSentinelForInodeAbsentFromIndex covers §4.5's
// sentinel path: an inode with real (length>0) candidates from
// page-cache residency but no entry at all in the interval index was
// opened but never actually read. RunSession must discard its
// candidates and emit exactly one zero-length sentinel block, not run
// them through Reduce (which would otherwise silently drop them since
// there is nothing in an empty touched set to intersect against).
func TestRunSessionEmitsSentinelForInodeAbsentFromIndex(t *testing.T) {
	sess := session.New()
	const deviceID, inodeID = 0x800000, uint64(42)

	file := sess.FileFor(deviceID, true)
	pathIndex := file.AddPath(inodeID, "/bin/never-read", constant.UnknownGroupHint)

	sess.AddCandidates(deviceID, inodeID, []pack.Candidate{
		{PathIndex: pathIndex, LogicalOffset: 0, Length: 4 * ps, PhysicalOffset: constant.UnknownPhysicalOffset},
	})

	RunSession(sess)

	require.Len(t, file.Blocks, 1)
	assert.Equal(t, pack.Block{
		PathIndex:      pathIndex,
		LogicalOffset:  0,
		Length:         0,
		PhysicalOffset: constant.UnknownPhysicalOffset,
	}, file.Blocks[0])
}

// TestRunSessionReducesInodePresentInIndex is the non-sentinel
// counterpart: when the interval index does have an entry for the
// inode, RunSession intersects it via Reduce instead of emitting a
// sentinel, even when that entry doesn't overlap every candidate.
func TestRunSessionReducesInodePresentInIndex(t *testing.T) {
	sess := session.New()
	const deviceID, inodeID = 0x800000, uint64(7)

	file := sess.FileFor(deviceID, true)
	pathIndex := file.AddPath(inodeID, "/bin/partially-read", constant.UnknownGroupHint)

	sess.AddCandidates(deviceID, inodeID, []pack.Candidate{
		{PathIndex: pathIndex, LogicalOffset: 0, Length: 10 * ps, PhysicalOffset: constant.UnknownPhysicalOffset},
	})
	require.NoError(t, sess.Index.Add(deviceID, inodeID, 2, 4))

	RunSession(sess)

	require.Len(t, file.Blocks, 1)
	assert.Equal(t, pack.Block{
		PathIndex:      pathIndex,
		LogicalOffset:  2 * ps,
		Length:         3 * ps,
		PhysicalOffset: constant.UnknownPhysicalOffset,
	}, file.Blocks[0])
}

func TestReduceNoOverlapProducesNoBlocks(t *testing.T) {
	candidates := []pack.Candidate{
		{PathIndex: 0, LogicalOffset: 0, Length: 2 * ps, PhysicalOffset: constant.UnknownPhysicalOffset},
	}
	touched := []pageindex.PageRange{{Start: 5, End: 6}}
	got := Reduce(candidates, touched)
	assert.Empty(t, got)
}
