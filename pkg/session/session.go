/*
 * SPDX-License-Identifier: Apache-2.0
 */

// Package session bundles the mutable state one trace-to-pack run
// needs: the interval index being built by the ingester, the per-device
// pack accumulators the scanner and reducer fill in, and the seen-path
// filter. A Session is created fresh per capture run (runCapture in
// cmd/bootwarmd) so two runs (or two test cases) never share state, per §9's note that the
// original tool's seen-sets were process-global.
package session

import (
	"github.com/bootwarm/bootwarm/pkg/pack"
	"github.com/bootwarm/bootwarm/pkg/pageindex"
	"github.com/bootwarm/bootwarm/pkg/pathfilter"
)

// Session owns everything one trace run accumulates before the
// ordering pass and pack assembly run over it.
type Session struct {
	Index  *pageindex.DeviceTable
	Filter *pathfilter.Filter

	files        map[uint64]*pack.File
	deviceOrder  []uint64
	scannedInode map[uint64]map[uint64]bool

	// candidates holds the scanner's per-inode output, keyed by device
	// then inode, until the reducer runs over the completed interval
	// index at the end of the trace. Reduction cannot happen inline
	// with scanning: a file opened early in the trace may still gain
	// touched page ranges from filemap events recorded much later.
	candidates map[uint64]map[uint64][]pack.Candidate
}

// New returns an empty Session. opts configure the path filter.
func New(opts ...pathfilter.Option) *Session {
	return &Session{
		Index:        pageindex.NewDeviceTable(),
		Filter:       pathfilter.New(opts...),
		files:        make(map[uint64]*pack.File),
		scannedInode: make(map[uint64]map[uint64]bool),
		candidates:   make(map[uint64]map[uint64][]pack.Candidate),
	}
}

// AddCandidates records the scanner's findings for (deviceID, inodeID),
// to be intersected against the interval index once the trace is
// complete.
func (s *Session) AddCandidates(deviceID, inodeID uint64, candidates []pack.Candidate) {
	byInode, ok := s.candidates[deviceID]
	if !ok {
		byInode = make(map[uint64][]pack.Candidate)
		s.candidates[deviceID] = byInode
	}
	byInode[inodeID] = append(byInode[inodeID], candidates...)
}

// CandidatesFor returns the recorded candidates for (deviceID, inodeID).
func (s *Session) CandidatesFor(deviceID, inodeID uint64) []pack.Candidate {
	return s.candidates[deviceID][inodeID]
}

// InodesWithCandidates returns every inode ID that has recorded
// candidates for deviceID.
func (s *Session) InodesWithCandidates(deviceID uint64) []uint64 {
	byInode := s.candidates[deviceID]
	out := make([]uint64, 0, len(byInode))
	for inodeID := range byInode {
		out = append(out, inodeID)
	}
	return out
}

// MarkInodeScanned reports whether (deviceID, inodeID) has already been
// through the scanner's stat/mmap/mincore procedure, recording it as
// scanned if not. The scanner calls this to avoid redoing expensive
// per-inode work when a later open event names an alias path for an
// inode it has already visited.
func (s *Session) MarkInodeScanned(deviceID, inodeID uint64) (alreadyScanned bool) {
	byInode, ok := s.scannedInode[deviceID]
	if !ok {
		byInode = make(map[uint64]bool)
		s.scannedInode[deviceID] = byInode
	}
	if byInode[inodeID] {
		return true
	}
	byInode[inodeID] = true
	return false
}

// FileFor returns the pack.File accumulator for deviceID, creating one
// (with the given rotational flag) on first use. The rotational flag
// passed on later calls for an already-created device is ignored: the
// first caller (the scanner, which queries the device directly) wins.
func (s *Session) FileFor(deviceID uint64, rotational bool) *pack.File {
	f, ok := s.files[deviceID]
	if !ok {
		f = pack.NewFile(deviceID, rotational)
		s.files[deviceID] = f
		s.deviceOrder = append(s.deviceOrder, deviceID)
	}
	return f
}

// Files returns every accumulated pack.File in first-touched device
// order, ready for the ordering pass and pack assembly.
func (s *Session) Files() []*pack.File {
	out := make([]*pack.File, 0, len(s.deviceOrder))
	for _, id := range s.deviceOrder {
		out = append(out, s.files[id])
	}
	return out
}
