/*
 * SPDX-License-Identifier: Apache-2.0
 */

package tracetransport

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseFieldName(t *testing.T) {
	cases := []struct {
		line string
		want string
	}{
		{"field:unsigned short common_type;\toffset:0;\tsize:2;\tsigned:0;", "common_type"},
		{"field:int dfd;\toffset:8;\tsize:4;\tsigned:1;", "dfd"},
		{"field:char filename[256];\toffset:16;\tsize:256;\tsigned:0;", "filename"},
		{"field:const char * name;\toffset:8;\tsize:8;\tsigned:0;", "name"},
	}
	for _, c := range cases {
		got, ok := parseFieldName(c.line)
		assert.True(t, ok, c.line)
		assert.Equal(t, c.want, got, c.line)
	}
}

func TestParseTraceLineExtractsKindAndFields(t *testing.T) {
	line := `          <...>-123   [002] d.h.  1234.5678: sys_open: dfd=0xffffff9c filename="/bin/sh" flags=0x0`
	rec, ok := parseTraceLine(line)
	assert.True(t, ok)
	assert.Equal(t, "sys_open", rec.Kind)
	assert.Equal(t, "/bin/sh", rec.Path)
	assert.Equal(t, int64(0xffffff9c), rec.Fields["dfd"])
}

func TestParseTraceLineSkipsComments(t *testing.T) {
	_, ok := parseTraceLine("# tracer: nop")
	assert.False(t, ok)
}
