/*
 * SPDX-License-Identifier: Apache-2.0
 */

package traceevent

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bootwarm/bootwarm/internal/constant"
	"github.com/bootwarm/bootwarm/pkg/fsquery"
	"github.com/bootwarm/bootwarm/pkg/reducer"
	"github.com/bootwarm/bootwarm/pkg/scanner"
	"github.com/bootwarm/bootwarm/pkg/session"
	"github.com/bootwarm/bootwarm/pkg/tracetransport"
)

func TestDecodeDeviceMatchesKernelConvention(t *testing.T) {
	major, minor := decodeDevice(int64(8)<<20 | 3)
	assert.Equal(t, uint32(8), major)
	assert.Equal(t, uint32(3), minor)
}

func TestIngestDispatchesOpenAndFilemapEvents(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "trace-")
	require.NoError(t, err)
	defer f.Close()

	q := fsquery.NewFake()
	const deviceRaw = int64(8) << 20 // major 8, minor 0, in the kernel tracepoint's own encoding
	q.Stats["/bin/sh"] = fsquery.Stat{DeviceID: uint64(deviceRaw), InodeID: 42, Size: 3 * constant.PageSize}
	q.Resident[f.Name()] = []bool{true, true, true}
	q.OpenFile = func(path string) (*os.File, error) { return os.Open(f.Name()) }

	xport := tracetransport.NewFake(
		tracetransport.Record{Kind: "do_sys_open", Path: "/bin/sh", Fields: map[string]int64{"dev": deviceRaw}},
		tracetransport.Record{Kind: "mm_filemap_fault", Fields: map[string]int64{
			"dev": deviceRaw, "ino": 42, "first_page": 1, "last_page": 1,
		}},
	)

	sc := scanner.New(q, nil)
	sess := session.New()

	res, err := Ingest(xport, sc, sess)
	require.NoError(t, err)
	assert.Equal(t, 1, res.OpenEvents)
	assert.Equal(t, 1, res.FilemapEvents)
	assert.Equal(t, 0, res.DroppedRecords)

	reducer.RunSession(sess)

	files := sess.Files()
	require.Len(t, files, 1)
	require.Len(t, files[0].Blocks, 1)
	assert.Equal(t, uint64(1*constant.PageSize), files[0].Blocks[0].LogicalOffset)
	assert.Equal(t, uint64(constant.PageSize), files[0].Blocks[0].Length)
}

func TestIngestDefaultsLastPageToFirstPageOnFault(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "trace-")
	require.NoError(t, err)
	defer f.Close()

	q := fsquery.NewFake()
	const deviceRaw = int64(8) << 20
	q.Stats["/bin/sh"] = fsquery.Stat{DeviceID: uint64(deviceRaw), InodeID: 42, Size: 3 * constant.PageSize}
	q.Resident[f.Name()] = []bool{true, true, true}
	q.OpenFile = func(path string) (*os.File, error) { return os.Open(f.Name()) }

	xport := tracetransport.NewFake(
		tracetransport.Record{Kind: "do_sys_open", Path: "/bin/sh", Fields: map[string]int64{"dev": deviceRaw}},
		// mm_filemap_fault carries only page_index; last_page_index is
		// absent and must default to first_page rather than dropping
		// the record.
		tracetransport.Record{Kind: "mm_filemap_fault", Fields: map[string]int64{
			"dev": deviceRaw, "ino": 42, "first_page": 1,
		}},
	)

	sc := scanner.New(q, nil)
	sess := session.New()

	res, err := Ingest(xport, sc, sess)
	require.NoError(t, err)
	assert.Equal(t, 1, res.FilemapEvents)
	assert.Equal(t, 0, res.DroppedRecords)

	reducer.RunSession(sess)

	files := sess.Files()
	require.Len(t, files, 1)
	require.Len(t, files[0].Blocks, 1)
	assert.Equal(t, uint64(1*constant.PageSize), files[0].Blocks[0].LogicalOffset)
	assert.Equal(t, uint64(constant.PageSize), files[0].Blocks[0].Length)
}

func TestIngestDropsFilemapRecordMissingFields(t *testing.T) {
	xport := tracetransport.NewFake(
		tracetransport.Record{Kind: "mm_filemap_fault", Fields: map[string]int64{"dev": 0}},
	)
	sc := scanner.New(fsquery.NewFake(), nil)
	sess := session.New()

	res, err := Ingest(xport, sc, sess)
	require.NoError(t, err)
	assert.Equal(t, 1, res.DroppedRecords)
}

func TestIngestDropsOpenRecordMissingPath(t *testing.T) {
	xport := tracetransport.NewFake(tracetransport.Record{Kind: "do_sys_open"})
	sc := scanner.New(fsquery.NewFake(), nil)
	sess := session.New()

	res, err := Ingest(xport, sc, sess)
	require.NoError(t, err)
	assert.Equal(t, 1, res.DroppedRecords)
}
