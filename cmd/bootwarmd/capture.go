/*
 * SPDX-License-Identifier: Apache-2.0
 */

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/containerd/containerd/log"
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/bootwarm/bootwarm/config"
	"github.com/bootwarm/bootwarm/internal/constant"
	"github.com/bootwarm/bootwarm/pkg/errdefs"
	"github.com/bootwarm/bootwarm/pkg/fsquery"
	"github.com/bootwarm/bootwarm/pkg/ordering"
	"github.com/bootwarm/bootwarm/pkg/packio"
	"github.com/bootwarm/bootwarm/pkg/pathfilter"
	"github.com/bootwarm/bootwarm/pkg/reducer"
	"github.com/bootwarm/bootwarm/pkg/scanner"
	"github.com/bootwarm/bootwarm/pkg/session"
	"github.com/bootwarm/bootwarm/pkg/traceevent"
	"github.com/bootwarm/bootwarm/pkg/tracetransport"
)

// requiredEvents must be enabled for a trace to be worth anything at
// all; their absence is a fatal-setup error (§7).
var requiredEvents = []string{"fs/do_sys_open", "fs/open_exec"}

// optionalEvents carry the filemap signal the reducer needs; their
// absence disables the reducer for the resulting pack but does not
// abort the trace (§7, Soft).
var optionalEvents = []string{
	"fs/uselib",
	"filemap/mm_filemap_fault",
	"filemap/mm_filemap_get_pages",
	"filemap/mm_filemap_map_pages",
}

// forceSSD wraps a Querier so Rotational always reports false,
// implementing --force-ssd-mode without touching the real query path.
type forceSSD struct {
	fsquery.Querier
}

func (forceSSD) Rotational(uint64) (bool, error) { return false, nil }

// runCapture drives one full trace-to-pack run: it brings up the trace
// transport, waits for the signal-or-timeout suspension point (§5),
// ingests whatever was recorded, reduces and orders each device's
// blocks, and writes the resulting packs. It returns the process exit
// code to use.
func runCapture(cfg *config.Config, mountPath string, timeout time.Duration, useExisting bool, packFileOverride string) int {
	xport := tracetransport.NewFtrace("")

	teardown, err := setUpTransport(xport, cfg, useExisting)
	if err != nil {
		log.L.WithError(err).Error("failed to set up trace transport")
		return 5
	}
	defer teardown()

	waitForSignalOrTimeout(timeout)

	if err := xport.TraceOff(); err != nil {
		log.L.WithError(err).Warn("failed to stop tracing before ingestion")
	}

	var query fsquery.Querier = fsquery.NewLinux()
	if cfg.ForceSSDMode {
		query = forceSSD{query}
	}

	filterOpts := buildFilterOpts(cfg, mountPath)
	sess := session.New(filterOpts...)
	sc := scanner.New(query, devicePathResolver)

	restoreNiceness := niceForScan()
	result, err := traceevent.Ingest(xport, sc, sess)
	restoreNiceness()
	if err != nil {
		log.L.WithError(err).Error("trace ingestion failed")
		return 5
	}
	log.L.WithField("open_events", result.OpenEvents).
		WithField("filemap_events", result.FilemapEvents).
		WithField("dropped_records", result.DroppedRecords).
		WithField("scan_errors", result.ScanErrors).
		Info("trace ingestion complete")

	reducer.RunSession(sess)

	for _, file := range sess.Files() {
		ordering.Order(file)
	}

	return writePacks(cfg, sess, packFileOverride)
}

// devicePathResolver maps a device id to the conventional devtmpfs path
// for its major:minor special file, used for block-group queries. A
// device lacking this symlink simply yields failed group lookups, and
// its paths keep an unknown group hint.
func devicePathResolver(deviceID uint64) string {
	major, minor := uint32(deviceID>>20), uint32(deviceID&0xff)
	return fmt.Sprintf("/dev/block/%d:%d", major, minor)
}

// buildFilterOpts turns the config and --path-prefix/--path-prefix-filter
// flags into pathfilter.Options. The prefix rule's device id is derived
// from stat(2) of the prefix itself, as §6 specifies.
func buildFilterOpts(cfg *config.Config, mountPath string) []pathfilter.Option {
	opts := []pathfilter.Option{
		pathfilter.WithIgnorePrefixes(cfg.IgnorePrefixes),
		pathfilter.WithPrefixRules(toPathfilterRules(cfg.PrefixRules)),
	}
	if cfg.AllowPrefix != "" {
		opts = append(opts, pathfilter.WithAllowPrefix(cfg.AllowPrefix))
	} else if mountPath != "" && mountPath != "/" {
		opts = append(opts, pathfilter.WithAllowPrefix(mountPath))
	}
	return opts
}

func toPathfilterRules(rules []config.PrefixRule) []pathfilter.PrefixRule {
	out := make([]pathfilter.PrefixRule, len(rules))
	for i, r := range rules {
		out[i] = pathfilter.PrefixRule{DeviceID: r.DeviceID, From: r.From, To: r.To}
	}
	return out
}

// setUpTransport enables the required and optional trace events and
// sizes the ring buffer, returning a teardown func that restores prior
// state. When useExisting is true it skips every mutation and returns
// a no-op teardown, per the use_existing_trace_events policy escape
// hatch (§5).
func setUpTransport(xport tracetransport.Transport, cfg *config.Config, useExisting bool) (func(), error) {
	if useExisting {
		return func() {}, nil
	}

	for _, event := range requiredEvents {
		if err := xport.EventEnable(event); err != nil {
			return nil, errors.Wrapf(errdefs.ErrFatalSetup, "enabling required event %s: %v", event, err)
		}
	}

	enabledOptional := make([]string, 0, len(optionalEvents))
	for _, event := range optionalEvents {
		if err := xport.EventEnable(event); err != nil {
			log.L.WithError(err).WithField("event", event).Warn("optional trace event unavailable, reducer will be disabled for affected packs")
			continue
		}
		enabledOptional = append(enabledOptional, event)
	}

	priorBufferKB, err := xport.BufferSizeGet()
	if err != nil {
		priorBufferKB = 0
		log.L.WithError(err).Warn("could not read prior trace buffer size, will not restore it on exit")
	}

	bufferKB := cfg.TraceBufferSizeKB
	if bufferKB == 0 || bufferKB > constant.TraceBufferSizeKB {
		bufferKB = constant.TraceBufferSizeKB
	}
	if err := xport.BufferSizeSet(bufferKB); err != nil {
		teardownEvents(xport, requiredEvents, enabledOptional)
		return nil, errors.Wrap(errdefs.ErrFatalSetup, err.Error())
	}

	if err := xport.TraceOn(); err != nil {
		teardownEvents(xport, requiredEvents, enabledOptional)
		restoreBufferSize(xport, priorBufferKB)
		return nil, errors.Wrap(errdefs.ErrFatalSetup, err.Error())
	}

	teardown := func() {
		teardownEvents(xport, requiredEvents, enabledOptional)
		restoreBufferSize(xport, priorBufferKB)
	}
	return teardown, nil
}

func teardownEvents(xport tracetransport.Transport, required, optional []string) {
	for _, event := range append(append([]string{}, required...), optional...) {
		if err := xport.EventDisable(event); err != nil {
			log.L.WithError(err).WithField("event", event).Warn("failed to disable trace event on exit")
		}
	}
}

func restoreBufferSize(xport tracetransport.Transport, priorKB int) {
	if priorKB == 0 {
		return
	}
	if err := xport.BufferSizeSet(priorKB); err != nil {
		log.L.WithError(err).Warn("failed to restore trace buffer size on exit")
	}
}

// waitForSignalOrTimeout is the only suspension point in the capture
// pipeline (§5): it returns on SIGINT, SIGTERM, or timeout, whichever
// comes first.
func waitForSignalOrTimeout(timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigc)

	select {
	case <-sigc:
		log.L.Info("received termination signal, ending trace")
	case <-ctx.Done():
		log.L.Info("trace timeout elapsed")
	}
}

// niceForScan raises the process's nice value by constant.ScanNiceDelta
// (lowering its scheduling priority) before the I/O-heavy scan so it
// doesn't starve boot-critical tasks,
// restoring it afterwards. Failures are logged, not fatal: this is a
// scheduling courtesy, not a correctness requirement.
func niceForScan() func() {
	prio, err := unix.Getpriority(unix.PRIO_PROCESS, 0)
	if err != nil {
		log.L.WithError(err).Warn("could not read process priority, scan will run at default niceness")
		return func() {}
	}
	// Getpriority returns 20-nice; translate back before adjusting.
	current := 20 - prio
	if err := unix.Setpriority(unix.PRIO_PROCESS, 0, current+constant.ScanNiceDelta); err != nil {
		log.L.WithError(err).Warn("could not lower process niceness for scan")
		return func() {}
	}
	return func() {
		if err := unix.Setpriority(unix.PRIO_PROCESS, 0, current); err != nil {
			log.L.WithError(err).Warn("could not restore process niceness after scan")
		}
	}
}

func writePacks(cfg *config.Config, sess *session.Session, packFileOverride string) int {
	files := sess.Files()
	if packFileOverride == "" {
		if err := packio.WriteDir(cfg.PackDir, files); err != nil {
			log.L.WithError(err).Error("failed to write pack files")
			return 2
		}
		return 0
	}

	for _, file := range files {
		if packFileOverride != packio.FileName(file.DeviceID) && packFileOverride != filepath.Join(cfg.PackDir, packio.FileName(file.DeviceID)) {
			continue
		}
		f, err := os.Create(packFileOverride)
		if err != nil {
			log.L.WithError(err).WithField("path", packFileOverride).Error("failed to create pack file")
			return 2
		}
		defer f.Close()
		if err := packio.Write(f, file); err != nil {
			log.L.WithError(err).WithField("path", packFileOverride).Error("failed to write pack file")
			return 2
		}
		return 0
	}

	log.L.WithField("path", packFileOverride).Error("no captured device matches the requested pack file")
	return 2
}
