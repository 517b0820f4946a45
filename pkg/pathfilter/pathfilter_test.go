/*
 * SPDX-License-Identifier: Apache-2.0
 */

package pathfilter

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormaliseCollapsesAndResolves(t *testing.T) {
	cases := []struct {
		raw  string
		want string
	}{
		{"/a//b/./c/../d/", "/a/b/d"},
		{"/../x", "/x"},
		{"/", "/"},
		{"//", "/"},
		{"/a/./b", "/a/b"},
		{"/a/../../b", "/b"},
	}
	for _, c := range cases {
		got, ok := Normalise(c.raw)
		assert.True(t, ok, c.raw)
		assert.Equal(t, c.want, got, c.raw)
	}
}

func TestNormaliseRejectsRelative(t *testing.T) {
	_, ok := Normalise("a/b")
	assert.False(t, ok)
}

func TestNormaliseIsIdempotent(t *testing.T) {
	raws := []string{"/a//b/./c/../d/", "/x/y/z", "/../../..", "/a/b/../../../c"}
	for _, raw := range raws {
		once, ok := Normalise(raw)
		assert.True(t, ok)
		twice, ok := Normalise(once)
		assert.True(t, ok)
		assert.Equal(t, once, twice, raw)
	}
}

func TestFilterRejectsIgnoredPrefixes(t *testing.T) {
	f := New()
	_, ok := f.Accept(1, "/proc/self/status")
	assert.False(t, ok)
	_, ok = f.Accept(1, "/sys/class/block")
	assert.False(t, ok)
}

func TestFilterDeduplicatesPerDevice(t *testing.T) {
	f := New()
	p, ok := f.Accept(1, "/bin/sh")
	assert.True(t, ok)
	assert.Equal(t, "/bin/sh", p)

	_, ok = f.Accept(1, "/bin/sh")
	assert.False(t, ok, "second occurrence on the same device must be dropped")

	_, ok = f.Accept(2, "/bin/sh")
	assert.True(t, ok, "same path on a different device is a fresh entry")
}

func TestFilterRejectsOverlongPaths(t *testing.T) {
	f := New()
	long := "/" + strings.Repeat("a", 5000)
	_, ok := f.Accept(1, long)
	assert.False(t, ok)
}

func TestFilterAllowPrefixRestriction(t *testing.T) {
	f := New(WithAllowPrefix("/usr"))
	_, ok := f.Accept(1, "/usr/bin/ls")
	assert.True(t, ok)
	_, ok = f.Accept(1, "/home/x")
	assert.False(t, ok)
}

func TestPrefixRuleRewrite(t *testing.T) {
	f := New(WithPrefixRules([]PrefixRule{{DeviceID: 1, From: "/chroot", To: ""}}))
	p, ok := f.Accept(1, "/chroot/bin/sh")
	assert.True(t, ok)
	assert.Equal(t, "/bin/sh", p)

	// A different device is unaffected by the rule.
	p, ok = f.Accept(2, "/chroot/bin/sh")
	assert.True(t, ok)
	assert.Equal(t, "/chroot/bin/sh", p)
}
