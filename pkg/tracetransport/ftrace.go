/*
 * SPDX-License-Identifier: Apache-2.0
 */

package tracetransport

import (
	"bufio"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

const defaultTracefsRoot = "/sys/kernel/tracing"

// Ftrace is the production Transport, backed by a tracefs mount.
type Ftrace struct {
	root string
}

// NewFtrace returns an Ftrace transport rooted at the default tracefs
// mount point. root may be overridden in tests.
func NewFtrace(root string) *Ftrace {
	if root == "" {
		root = defaultTracefsRoot
	}
	return &Ftrace{root: root}
}

func (t *Ftrace) eventDir(event string) string {
	parts := strings.SplitN(event, "/", 2)
	if len(parts) != 2 {
		return filepath.Join(t.root, "events", event)
	}
	return filepath.Join(t.root, "events", parts[0], parts[1])
}

func (t *Ftrace) writeOne(path, value string) error {
	return errors.Wrapf(os.WriteFile(path, []byte(value), 0644), "writing %q to %s", value, path)
}

func (t *Ftrace) readOne(path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", errors.Wrapf(err, "reading %s", path)
	}
	return strings.TrimSpace(string(raw)), nil
}

func (t *Ftrace) EventEnable(event string) error {
	return t.writeOne(filepath.Join(t.eventDir(event), "enable"), "1")
}

func (t *Ftrace) EventDisable(event string) error {
	return t.writeOne(filepath.Join(t.eventDir(event), "enable"), "0")
}

func (t *Ftrace) EventIsEnabled(event string) (bool, error) {
	v, err := t.readOne(filepath.Join(t.eventDir(event), "enable"))
	if err != nil {
		return false, err
	}
	return v == "1", nil
}

func (t *Ftrace) BufferSizeGet() (int, error) {
	v, err := t.readOne(filepath.Join(t.root, "buffer_size_kb"))
	if err != nil {
		return 0, err
	}
	// Some kernels report "7 (expanded: 1408)" when per-CPU buffers
	// differ; only the leading number is the value callers can act on.
	fields := strings.Fields(v)
	return strconv.Atoi(fields[0])
}

func (t *Ftrace) BufferSizeSet(kb int) error {
	return t.writeOne(filepath.Join(t.root, "buffer_size_kb"), strconv.Itoa(kb))
}

func (t *Ftrace) TraceOn() error {
	return t.writeOne(filepath.Join(t.root, "tracing_on"), "1")
}

func (t *Ftrace) TraceOff() error {
	return t.writeOne(filepath.Join(t.root, "tracing_on"), "0")
}

func (t *Ftrace) TraceIsOn() (bool, error) {
	v, err := t.readOne(filepath.Join(t.root, "tracing_on"))
	if err != nil {
		return false, err
	}
	return v == "1", nil
}

func (t *Ftrace) FindField(event, name string) (Field, bool, error) {
	path := filepath.Join(t.eventDir(event), "format")
	f, err := os.Open(path)
	if err != nil {
		return Field{}, false, errors.Wrapf(err, "opening %s", path)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "field:") {
			continue
		}
		if fieldName, ok := parseFieldName(line); ok && fieldName == name {
			return Field{Name: name}, true, nil
		}
	}
	if err := scanner.Err(); err != nil {
		return Field{}, false, errors.Wrapf(err, "scanning %s", path)
	}
	return Field{}, false, nil
}

// parseFieldName extracts the identifier out of a format line like
// "field:unsigned short common_type;\toffset:0;\tsize:2;\tsigned:0;" or
// "field:int dfd;" — the last whitespace-or-"*"-separated token before
// the semicolon.
func parseFieldName(line string) (string, bool) {
	decl := strings.TrimPrefix(line, "field:")
	if idx := strings.Index(decl, ";"); idx >= 0 {
		decl = decl[:idx]
	}
	decl = strings.TrimSpace(decl)
	if decl == "" {
		return "", false
	}
	decl = strings.TrimRight(decl, "]0123456789[")
	fields := strings.FieldsFunc(decl, func(r rune) bool { return r == ' ' || r == '*' })
	if len(fields) == 0 {
		return "", false
	}
	return fields[len(fields)-1], true
}

// IterateEvents reads /sys/kernel/tracing/trace (the accumulated, static
// snapshot of the buffer, not the blocking trace_pipe) line by line and
// parses the common ftrace text format: "task-pid [cpu] timestamp:
// event: field=value field=value ...".
func (t *Ftrace) IterateEvents(fn func(Record) bool) error {
	path := filepath.Join(t.root, "trace")
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "opening %s", path)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		rec, ok := parseTraceLine(line)
		if !ok {
			continue
		}
		if !fn(rec) {
			return nil
		}
	}
	return errors.Wrapf(scanner.Err(), "scanning %s", path)
}

func parseTraceLine(line string) (Record, bool) {
	colon := strings.Index(line, ": ")
	if colon < 0 {
		return Record{}, false
	}
	rest := line[colon+2:]
	nameEnd := strings.Index(rest, ":")
	if nameEnd < 0 {
		return Record{}, false
	}
	kind := strings.TrimSpace(rest[:nameEnd])
	body := rest[nameEnd+1:]

	rec := Record{Kind: kind, Fields: make(map[string]int64)}
	for _, tok := range strings.Fields(body) {
		eq := strings.Index(tok, "=")
		if eq < 0 {
			continue
		}
		key, value := tok[:eq], tok[eq+1:]
		if key == "name" || key == "filename" || strings.HasSuffix(key, "path") {
			rec.Path = strings.Trim(value, "\"")
			continue
		}
		if n, err := strconv.ParseInt(value, 0, 64); err == nil {
			rec.Fields[key] = n
		}
	}
	return rec, true
}
