/*
 * SPDX-License-Identifier: Apache-2.0
 */

package packio

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bootwarm/bootwarm/internal/constant"
	"github.com/bootwarm/bootwarm/pkg/pack"
)

func buildSample() *pack.File {
	f := pack.NewFile(0x800000, true)
	i1 := f.AddPath(10, "/bin/sh", 3)
	i2 := f.AddPath(11, "/bin/ls", constant.UnknownGroupHint)
	f.AddBlock(i1, 0, 4096, 1024)
	f.AddBlock(i2, 0, 0, constant.UnknownPhysicalOffset)
	f.Groups = []int32{3, 9}
	return f
}

func TestWriteReadRoundTrip(t *testing.T) {
	f := buildSample()

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, f))

	got, err := Read(&buf)
	require.NoError(t, err)

	assert.Equal(t, f.DeviceID, got.DeviceID)
	assert.Equal(t, f.Rotational, got.Rotational)
	assert.Equal(t, f.Paths, got.Paths)
	assert.Equal(t, f.Blocks, got.Blocks)
	assert.Equal(t, f.Groups, got.Groups)
}

func TestReadRejectsBadMagic(t *testing.T) {
	buf := bytes.NewBufferString("NOTAPACKFILE0000000000")
	_, err := Read(buf)
	require.Error(t, err)
}

func TestFileNameEncodesMajorMinor(t *testing.T) {
	assert.Equal(t, "8:0.pack", FileName(0x800000))
	assert.Equal(t, "8:1.pack", FileName(0x800001))
}

func TestWriteRejectsOutOfRangePathIndex(t *testing.T) {
	f := pack.NewFile(1, false)
	f.Blocks = []pack.Block{{PathIndex: 5}}
	var buf bytes.Buffer
	err := Write(&buf, f)
	require.Error(t, err)
}
