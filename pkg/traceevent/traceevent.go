/*
 * SPDX-License-Identifier: Apache-2.0
 */

// Package traceevent implements the trace ingester (component C4): it
// walks the records a tracetransport.Transport reports, decodes the
// device id each carries with the kernel's own
// (raw>>20, raw&0xff) convention, and dispatches open-family events to
// the path filter and scanner and filemap events to the interval index.
package traceevent

import (
	"github.com/containerd/containerd/log"

	"github.com/bootwarm/bootwarm/pkg/errdefs"
	"github.com/bootwarm/bootwarm/pkg/fsquery"
	"github.com/bootwarm/bootwarm/pkg/scanner"
	"github.com/bootwarm/bootwarm/pkg/session"
	"github.com/bootwarm/bootwarm/pkg/tracetransport"
)

// openFamily is the set of tracepoints that name a file being opened.
// fs:open_exec and fs:uselib cover execve() and the dynamic loader's
// shared-library loads, which never go through do_sys_open.
var openFamily = map[string]bool{
	"do_sys_open": true,
	"open_exec":   true,
	"uselib":      true,
}

// filemapFamily is the set of tracepoints that report a page actually
// being faulted or mapped in, the signal the interval index records.
var filemapFamily = map[string]bool{
	"mm_filemap_fault":     true,
	"mm_filemap_get_pages": true,
	"mm_filemap_map_pages": true,
}

// decodeDevice extracts (major, minor) from a raw dev_t field using the
// kernel tracepoint's own encoding: major occupies the high bits above
// bit 20, minor the low byte. This differs from the standard MKDEV
// encoding and is intentionally preserved rather than "fixed", since it
// must match what the running kernel's trace events actually emit.
func decodeDevice(raw int64) (major, minor uint32) {
	u := uint64(raw)
	return uint32(u >> 20), uint32(u & 0xff)
}

// Result accumulates counts the caller can use for diagnostics after
// Ingest returns.
type Result struct {
	OpenEvents     int
	FilemapEvents  int
	DroppedRecords int
	ScannedFiles   int
	ScanErrors     int
}

// Ingest walks every record xport reports and dispatches it into sess.
// A missing expected field drops only that record
// (errdefs.ErrRecoverablePerRecord semantics); a per-file scan failure
// drops only that file. Ingest itself only returns an error for a
// transport-level failure reading the trace stream.
func Ingest(xport tracetransport.Transport, sc *scanner.Scanner, sess *session.Session) (Result, error) {
	var res Result
	var iterErr error

	err := xport.IterateEvents(func(rec tracetransport.Record) bool {
		switch {
		case openFamily[rec.Kind]:
			res.OpenEvents++
			if !handleOpen(rec, sc, sess, &res) {
				res.DroppedRecords++
			}
		case filemapFamily[rec.Kind]:
			res.FilemapEvents++
			if !handleFilemap(rec, sess) {
				res.DroppedRecords++
			}
		default:
			// Not a tracepoint this pipeline cares about; ignore.
		}
		return true
	})
	if err != nil {
		return res, err
	}
	return res, iterErr
}

func handleOpen(rec tracetransport.Record, sc *scanner.Scanner, sess *session.Session, res *Result) bool {
	if rec.Path == "" {
		return false
	}
	devRaw, ok := rec.Fields["dev"]
	if !ok {
		// Some kernels only carry the device on the filemap side;
		// the scanner re-derives it from stat(2) regardless.
		devRaw = 0
	}

	normalised, accepted := sess.Filter.Accept(deviceIDFromRaw(devRaw), rec.Path)
	if !accepted {
		return normalised != "" // a dup of an already-accepted path is not an error, just a no-op
	}

	res.ScannedFiles++
	// Scan records its findings directly into sess, keyed by device and
	// inode; reducer.RunSession intersects them against the interval
	// index once the whole trace has been ingested.
	if _, err := sc.Scan(sess, normalised); err != nil {
		res.ScanErrors++
		if errdefs.IsFatal(err) {
			log.L.WithError(err).Error("fatal error scanning file")
			return false
		}
		log.L.WithError(err).WithField("path", normalised).Warn("skipping file after scan error")
		return true
	}
	return true
}

func handleFilemap(rec tracetransport.Record, sess *session.Session) bool {
	devRaw, okDev := rec.Fields["dev"]
	inode, okIno := rec.Fields["ino"]
	first, okFirst := rec.Fields["first_page"] // index (not byte offset) of the first page touched
	last, okLast := rec.Fields["last_page"]    // inclusive last page index; absent on mm_filemap_fault
	if !okDev || !okIno || !okFirst {
		return false
	}
	if !okLast {
		// mm_filemap_fault reports a single faulted page with no range;
		// last_page_index defaults to page_index.
		last = first
	}

	major, minor := decodeDevice(devRaw)
	deviceID := fsquery.DeviceID(major, minor)

	if first < 0 || last < 0 || last < first {
		return false
	}
	if err := sess.Index.Add(deviceID, uint64(inode), uint64(first), uint64(last)); err != nil {
		log.L.WithError(err).WithField("inode", inode).Warn("dropping overflowing page range")
		return false
	}
	return true
}

func deviceIDFromRaw(raw int64) uint64 {
	major, minor := decodeDevice(raw)
	return fsquery.DeviceID(major, minor)
}
