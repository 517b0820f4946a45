/*
 * SPDX-License-Identifier: Apache-2.0
 */

// Package scanner implements the file scanner (component C3): for each
// newly seen inode named by an open-family trace event, it stats the
// file, reads its current page-cache residency, coalesces resident
// pages into candidate byte ranges, and (on rotational media) resolves
// those ranges to physical offsets via FIEMAP. The result is a set of
// pack.Candidate values the reducer (C5) later intersects against the
// interval index to produce the blocks that actually get packed.
package scanner

import (
	"github.com/containerd/containerd/log"
	"github.com/pkg/errors"

	"github.com/bootwarm/bootwarm/internal/constant"
	"github.com/bootwarm/bootwarm/pkg/errdefs"
	"github.com/bootwarm/bootwarm/pkg/fsquery"
	"github.com/bootwarm/bootwarm/pkg/pack"
	"github.com/bootwarm/bootwarm/pkg/session"
)

// Scanner is the C3 file scanner. DevicePath resolves a device id to
// the block-device special file GroupOf needs; it may be nil or return
// "" if no such mapping is configured, in which case the group query is
// simply skipped. Extents works on the opened file itself and does not
// use DevicePath.
type Scanner struct {
	Query      fsquery.Querier
	DevicePath func(deviceID uint64) string
}

// New returns a Scanner using q for syscall-level queries.
func New(q fsquery.Querier, devicePath func(deviceID uint64) string) *Scanner {
	return &Scanner{Query: q, DevicePath: devicePath}
}

// Scan processes one accepted, normalised path: it stats the file,
// registers its path (and inode, deduplicating repeats) in sess's
// pack.File for the path's device, records the resulting candidates in
// sess keyed by (device, inode), and returns them. It returns
// errdefs.ErrRecoverablePerFile wrapped around the underlying cause on
// any syscall failure; callers log and continue rather than aborting
// the trace.
func (s *Scanner) Scan(sess *session.Session, path string) ([]pack.Candidate, error) {
	st, err := s.Query.Stat(path)
	if err != nil {
		return nil, errors.Wrap(errdefs.ErrRecoverablePerFile, err.Error())
	}

	rotational, err := s.Query.Rotational(st.DeviceID)
	if err != nil {
		log.L.WithError(err).WithField("device", st.DeviceID).Warn("rotational query failed, assuming non-rotational")
		rotational = false
	}

	file := sess.FileFor(st.DeviceID, rotational)
	groupHint := int32(constant.UnknownGroupHint)
	if s.DevicePath != nil {
		if devPath := s.DevicePath(st.DeviceID); devPath != "" {
			if g, err := s.Query.GroupOf(devPath, st.InodeID); err == nil {
				groupHint = g
			}
		}
	}
	pathIndex := file.AddPath(st.InodeID, path, groupHint)

	if sess.MarkInodeScanned(st.DeviceID, st.InodeID) {
		// Already scanned via an earlier alias path; the path entry
		// above still needed recording, but residency has already been
		// computed for this inode.
		return nil, nil
	}

	var candidates []pack.Candidate
	if st.Size == 0 {
		// Opened but never populated with data: a single zero-length
		// sentinel block records that replay should still open it.
		candidates = []pack.Candidate{{PathIndex: pathIndex, LogicalOffset: 0, Length: 0, PhysicalOffset: constant.UnknownPhysicalOffset}}
	} else {
		candidates, err = s.scanResident(path, pathIndex, st, rotational)
		if err != nil {
			return nil, err
		}
	}

	if len(candidates) > 0 {
		sess.AddCandidates(st.DeviceID, st.InodeID, candidates)
	}
	return candidates, nil
}

func (s *Scanner) scanResident(path string, pathIndex int, st fsquery.Stat, rotational bool) ([]pack.Candidate, error) {
	f, err := s.Query.OpenNoAtime(path)
	if err != nil {
		return nil, errors.Wrap(errdefs.ErrRecoverablePerFile, err.Error())
	}
	defer f.Close()

	resident, err := s.Query.Residency(f, st.Size)
	if err != nil {
		return nil, errors.Wrap(errdefs.ErrRecoverablePerFile, err.Error())
	}

	candidates := coalesce(pathIndex, resident)
	if len(candidates) == 0 {
		return nil, nil
	}

	if rotational {
		extents, err := s.Query.Extents(f, st.Size)
		if err != nil {
			log.L.WithError(err).WithField("path", path).Warn("FIEMAP query failed, leaving physical offsets unresolved")
		} else {
			resolvePhysical(candidates, extents)
		}
	}
	return candidates, nil
}

// coalesce turns a per-page residency bitmap into the minimal set of
// contiguous resident byte ranges.
func coalesce(pathIndex int, resident []bool) []pack.Candidate {
	var out []pack.Candidate
	inRun := false
	var runStartPage uint64

	flush := func(endPage uint64) {
		if !inRun {
			return
		}
		out = append(out, pack.Candidate{
			PathIndex:      pathIndex,
			LogicalOffset:  runStartPage * constant.PageSize,
			Length:         (endPage - runStartPage) * constant.PageSize,
			PhysicalOffset: constant.UnknownPhysicalOffset,
		})
		inRun = false
	}

	for i, r := range resident {
		page := uint64(i)
		if r && !inRun {
			inRun = true
			runStartPage = page
		} else if !r && inRun {
			flush(page)
		}
	}
	flush(uint64(len(resident)))
	return out
}

// resolvePhysical fills in each candidate's PhysicalOffset from the
// extents whose logical range fully contains it. A candidate whose
// logical range spans a fragmentation boundary (more than one extent)
// is left unresolved: the reducer still intersects it against the
// touched-page index on logical offsets, it simply won't carry a disk
// offset for §4.6's sort.
func resolvePhysical(candidates []pack.Candidate, extents []fsquery.Extent) {
	for i := range candidates {
		c := &candidates[i]
		for _, e := range extents {
			if c.LogicalOffset >= e.LogicalOffset && c.LogicalOffset+c.Length <= e.LogicalOffset+e.Length {
				delta := c.LogicalOffset - e.LogicalOffset
				c.PhysicalOffset = int64(e.PhysicalOffset + delta)
				break
			}
		}
	}
}
