/*
 * SPDX-License-Identifier: Apache-2.0
 */

package scanner

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bootwarm/bootwarm/internal/constant"
	"github.com/bootwarm/bootwarm/pkg/fsquery"
	"github.com/bootwarm/bootwarm/pkg/session"
)

func tempFile(t *testing.T) *os.File {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "scanner-")
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })
	return f
}

func TestScanCoalescesResidentPages(t *testing.T) {
	f := tempFile(t)
	q := fsquery.NewFake()
	q.Stats["/bin/sh"] = fsquery.Stat{DeviceID: 0x0800, InodeID: 42, Size: 5 * constant.PageSize}
	q.Resident[f.Name()] = []bool{true, true, false, true, false}
	q.OpenFile = func(path string) (*os.File, error) { return os.Open(f.Name()) }

	s := New(q, nil)
	sess := session.New()

	candidates, err := s.Scan(sess, "/bin/sh")
	require.NoError(t, err)
	require.Len(t, candidates, 2)
	assert.Equal(t, uint64(0), candidates[0].LogicalOffset)
	assert.Equal(t, uint64(2*constant.PageSize), candidates[0].Length)
	assert.Equal(t, uint64(3*constant.PageSize), candidates[1].LogicalOffset)
	assert.Equal(t, uint64(constant.PageSize), candidates[1].Length)

	file := sess.FileFor(0x0800, false)
	require.Len(t, file.Paths, 1)
	assert.Equal(t, uint64(42), file.Paths[0].InodeID)
}

func TestScanZeroLengthFileYieldsSentinel(t *testing.T) {
	q := fsquery.NewFake()
	q.Stats["/etc/empty"] = fsquery.Stat{DeviceID: 0x0800, InodeID: 7, Size: 0}

	s := New(q, nil)
	sess := session.New()

	candidates, err := s.Scan(sess, "/etc/empty")
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, uint64(0), candidates[0].Length)
	assert.Equal(t, int64(constant.UnknownPhysicalOffset), candidates[0].PhysicalOffset)
}

func TestScanSkipsResidencyForAlreadyScannedInode(t *testing.T) {
	f := tempFile(t)
	q := fsquery.NewFake()
	q.Stats["/bin/sh"] = fsquery.Stat{DeviceID: 0x0800, InodeID: 42, Size: constant.PageSize}
	q.Stats["/usr/bin/sh"] = fsquery.Stat{DeviceID: 0x0800, InodeID: 42, Size: constant.PageSize}
	q.Resident[f.Name()] = []bool{true}
	q.OpenFile = func(path string) (*os.File, error) { return os.Open(f.Name()) }

	s := New(q, nil)
	sess := session.New()

	first, err := s.Scan(sess, "/bin/sh")
	require.NoError(t, err)
	assert.Len(t, first, 1)

	second, err := s.Scan(sess, "/usr/bin/sh")
	require.NoError(t, err)
	assert.Nil(t, second, "residency work must not repeat for an already-scanned inode")

	file := sess.FileFor(0x0800, false)
	assert.Len(t, file.Paths, 2, "both aliases must still be recorded as paths")
}

func TestScanMissingFileIsRecoverable(t *testing.T) {
	q := fsquery.NewFake()
	s := New(q, nil)
	sess := session.New()

	_, err := s.Scan(sess, "/does/not/exist")
	require.Error(t, err)
}
