/*
 * SPDX-License-Identifier: Apache-2.0
 */

// Package tracetransport specifies the kernel trace transport contract
// the ingester (C4) is driven through: enabling/disabling individual
// trace events, sizing the trace ring buffer, starting and stopping
// tracing, and iterating the recorded events. Transport is an interface
// so the ingester can be exercised without a real kernel underneath it;
// Ftrace is the production implementation, talking to tracefs.
package tracetransport

// Field identifies one decoded value inside a trace record.
type Field struct {
	Name string
}

// Record is one decoded trace event: a kind tag, the device/inode raw
// fields the ingester decodes per event family, and a path string for
// open-family events.
type Record struct {
	Kind   string // bare event name, e.g. "do_sys_open", "mm_filemap_fault"
	Fields map[string]int64
	Path   string
}

// Transport is the collaborator the ingester depends on for everything
// kernel-facing.
type Transport interface {
	// EventEnable/EventDisable/EventIsEnabled control one trace event by
	// its "system/name" identifier (e.g. "fs/do_sys_open").
	EventEnable(event string) error
	EventDisable(event string) error
	EventIsEnabled(event string) (bool, error)

	// BufferSizeGet/BufferSizeSet report and set the global trace ring
	// buffer size, in kilobytes per CPU.
	BufferSizeGet() (int, error)
	BufferSizeSet(kb int) error

	// TraceOn/TraceOff/TraceIsOn start, stop, and report tracing state.
	TraceOn() error
	TraceOff() error
	TraceIsOn() (bool, error)

	// IterateEvents calls fn once per recorded trace record, in the
	// order they were recorded, until fn returns false or the trace
	// buffer is exhausted. It returns any error encountered reading the
	// underlying trace stream.
	IterateEvents(fn func(Record) bool) error

	// FindField reports whether event carries a field named name —
	// used to detect optional filemap events that may not exist on
	// every kernel build.
	FindField(event, name string) (Field, bool, error)
}
