/*
 * SPDX-License-Identifier: Apache-2.0
 */

// Package pathfilter normalises and filters the paths that trace events
// carry (component C2): it collapses a raw path string to canonical
// form, rejects paths that must never reach the pack, and applies an
// optional device-scoped prefix rewrite.
package pathfilter

import (
	"strings"

	"github.com/bootwarm/bootwarm/internal/constant"
)

// Normalise collapses raw into canonical form: repeated slashes are
// squashed, "." segments are dropped, ".." segments pop the previous
// segment (or are dropped at the root), and any trailing slash is
// stripped. It does not use path.Clean: path.Clean rewrites a
// climbing ".." at the root into "/.." territory differently than the
// trace's own path walker does, and this pipeline must match the
// kernel's view of the path rather than Go's.
//
// The second return value is false if raw is not an absolute path;
// Normalise returns raw unchanged in that case.
func Normalise(raw string) (string, bool) {
	if !strings.HasPrefix(raw, "/") {
		return raw, false
	}

	segments := strings.Split(raw, "/")
	stack := make([]string, 0, len(segments))
	for _, seg := range segments {
		switch seg {
		case "", ".":
			continue
		case "..":
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		default:
			stack = append(stack, seg)
		}
	}

	if len(stack) == 0 {
		return "/", true
	}
	return "/" + strings.Join(stack, "/"), true
}

// PrefixRule rewrites every normalised path on DeviceID that starts
// with From to start with To instead, used when the trace was captured
// against a chroot or an overlay mount that differs from the replay
// root.
type PrefixRule struct {
	DeviceID uint64
	From     string
	To       string
}

// Apply rewrites p if rule applies to deviceID, returning p unchanged
// otherwise.
func (rule PrefixRule) Apply(deviceID uint64, p string) string {
	if rule.DeviceID != deviceID || rule.From == "" {
		return p
	}
	if p == rule.From {
		return rule.To
	}
	if strings.HasPrefix(p, rule.From+"/") {
		return rule.To + p[len(rule.From):]
	}
	return p
}

// Filter decides, per path, whether it belongs in a pack at all, and
// deduplicates repeats within one trace.
type Filter struct {
	ignorePrefixes []string
	allowPrefix    string // "" means no restriction
	rules          []PrefixRule
	seen           map[string]struct{}
}

// Option configures a Filter at construction.
type Option func(*Filter)

// WithIgnorePrefixes overrides the default ignore-prefix list
// (constant.IgnorePathPrefixes).
func WithIgnorePrefixes(prefixes []string) Option {
	return func(f *Filter) { f.ignorePrefixes = prefixes }
}

// WithAllowPrefix restricts Filter to paths under prefix only; an empty
// prefix disables the restriction (the default).
func WithAllowPrefix(prefix string) Option {
	return func(f *Filter) { f.allowPrefix = prefix }
}

// WithPrefixRules installs device-scoped rewrite rules, applied after
// normalisation and before the accept/reject decision.
func WithPrefixRules(rules []PrefixRule) Option {
	return func(f *Filter) { f.rules = rules }
}

// New returns a Filter using constant.IgnorePathPrefixes unless
// overridden by options.
func New(opts ...Option) *Filter {
	f := &Filter{
		ignorePrefixes: constant.IgnorePathPrefixes,
		seen:           make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Accept normalises raw, rewrites it per any matching PrefixRule, and
// reports whether it should be recorded for deviceID. A false result
// with no error means "silently drop" (relative path, ignore-prefix
// match, length overflow, outside the allow-prefix, or already seen on
// this device); Accept never returns an error, matching the per-record
// recoverable handling the caller already applies upstream.
func (f *Filter) Accept(deviceID uint64, raw string) (string, bool) {
	normalised, ok := Normalise(raw)
	if !ok {
		return "", false
	}

	for _, rule := range f.rules {
		normalised = rule.Apply(deviceID, normalised)
	}

	if len(normalised) > constant.PackPathMax {
		return "", false
	}
	for _, prefix := range f.ignorePrefixes {
		if strings.HasPrefix(normalised, prefix) {
			return "", false
		}
	}
	if f.allowPrefix != "" && !strings.HasPrefix(normalised, f.allowPrefix) {
		return "", false
	}

	key := deviceKey(deviceID, normalised)
	if _, dup := f.seen[key]; dup {
		return normalised, false
	}
	f.seen[key] = struct{}{}
	return normalised, true
}

func deviceKey(deviceID uint64, p string) string {
	var b strings.Builder
	b.Grow(len(p) + 20)
	b.WriteString(p)
	b.WriteByte(0)
	// A device id never contains a NUL byte once formatted, so the
	// separator above is enough to keep the key unambiguous without an
	// extra allocation for fmt.Sprintf.
	writeUint64(&b, deviceID)
	return b.String()
}

func writeUint64(b *strings.Builder, v uint64) {
	if v == 0 {
		b.WriteByte('0')
		return
	}
	var digits [20]byte
	i := len(digits)
	for v > 0 {
		i--
		digits[i] = byte('0' + v%10)
		v /= 10
	}
	b.Write(digits[i:])
}
