/*
 * SPDX-License-Identifier: Apache-2.0
 */

// Package packio serialises and deserialises pack.File records to the
// on-disk binary format (component C7's output): one file per device,
// named "<major>:<minor>.pack", containing a fixed-width header, path
// table, block table, and group-hint list.
package packio

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/bootwarm/bootwarm/pkg/errdefs"
	"github.com/bootwarm/bootwarm/pkg/pack"
)

// magic identifies the format; schemaVersion bumps on incompatible
// layout changes so a reader can refuse a pack it doesn't understand.
var magic = [4]byte{'B', 'W', 'P', 'K'}

const schemaVersion = 1

var order = binary.LittleEndian

// FileName returns the pack file name for a device id encoded the way
// the ingester decodes trace events: major = deviceID>>20, minor =
// deviceID&0xff.
func FileName(deviceID uint64) string {
	major := deviceID >> 20
	minor := deviceID & 0xff
	return fmt.Sprintf("%d:%d.pack", major, minor)
}

// WriteDir writes one pack file per device under dir, creating dir if
// it doesn't already exist.
func WriteDir(dir string, files []*pack.File) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrapf(err, "creating pack directory %s", dir)
	}
	for _, f := range files {
		path := filepath.Join(dir, FileName(f.DeviceID))
		if err := writeFile(path, f); err != nil {
			return errors.Wrapf(err, "writing pack file %s", path)
		}
	}
	return nil
}

func writeFile(path string, file *pack.File) error {
	out, err := os.Create(path)
	if err != nil {
		return err
	}
	defer out.Close()

	w := bufio.NewWriter(out)
	if err := Write(w, file); err != nil {
		return err
	}
	return w.Flush()
}

// Write serialises file to w in the on-disk format.
func Write(w io.Writer, file *pack.File) error {
	if err := file.Validate(); err != nil {
		return errors.Wrap(errdefs.ErrFatalInvariant, err.Error())
	}

	if err := binary.Write(w, order, magic); err != nil {
		return err
	}
	if err := binary.Write(w, order, uint8(schemaVersion)); err != nil {
		return err
	}
	if err := binary.Write(w, order, file.DeviceID); err != nil {
		return err
	}
	if err := binary.Write(w, order, boolToByte(file.Rotational)); err != nil {
		return err
	}

	if err := binary.Write(w, order, uint32(len(file.Paths))); err != nil {
		return err
	}
	for _, p := range file.Paths {
		if err := writePath(w, p); err != nil {
			return err
		}
	}

	if err := binary.Write(w, order, uint32(len(file.Blocks))); err != nil {
		return err
	}
	for _, b := range file.Blocks {
		if err := binary.Write(w, order, uint32(b.PathIndex)); err != nil {
			return err
		}
		if err := binary.Write(w, order, b.LogicalOffset); err != nil {
			return err
		}
		if err := binary.Write(w, order, b.Length); err != nil {
			return err
		}
		if err := binary.Write(w, order, b.PhysicalOffset); err != nil {
			return err
		}
	}

	if err := binary.Write(w, order, uint32(len(file.Groups))); err != nil {
		return err
	}
	for _, g := range file.Groups {
		if err := binary.Write(w, order, g); err != nil {
			return err
		}
	}
	return nil
}

func writePath(w io.Writer, p pack.Path) error {
	if err := binary.Write(w, order, p.InodeID); err != nil {
		return err
	}
	if err := binary.Write(w, order, p.GroupHint); err != nil {
		return err
	}
	raw := []byte(p.PathString)
	if err := binary.Write(w, order, uint16(len(raw))); err != nil {
		return err
	}
	_, err := w.Write(raw)
	return err
}

func boolToByte(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}

// Read deserialises one pack.File from r.
func Read(r io.Reader) (*pack.File, error) {
	var gotMagic [4]byte
	if err := binary.Read(r, order, &gotMagic); err != nil {
		return nil, errors.Wrap(errdefs.ErrFatalInvariant, "reading pack magic: "+err.Error())
	}
	if gotMagic != magic {
		return nil, errors.Wrap(errdefs.ErrFatalInvariant, "not a pack file: bad magic")
	}

	var version uint8
	if err := binary.Read(r, order, &version); err != nil {
		return nil, err
	}
	if version != schemaVersion {
		return nil, errors.Wrapf(errdefs.ErrFatalInvariant, "unsupported pack schema version %d", version)
	}

	var deviceID uint64
	if err := binary.Read(r, order, &deviceID); err != nil {
		return nil, err
	}
	var rotationalByte uint8
	if err := binary.Read(r, order, &rotationalByte); err != nil {
		return nil, err
	}

	file := pack.NewFile(deviceID, rotationalByte != 0)

	var pathCount uint32
	if err := binary.Read(r, order, &pathCount); err != nil {
		return nil, err
	}
	for i := uint32(0); i < pathCount; i++ {
		p, err := readPath(r)
		if err != nil {
			return nil, err
		}
		file.AddPath(p.InodeID, p.PathString, p.GroupHint)
	}

	var blockCount uint32
	if err := binary.Read(r, order, &blockCount); err != nil {
		return nil, err
	}
	for i := uint32(0); i < blockCount; i++ {
		var pathIndex uint32
		var logicalOffset, length uint64
		var physicalOffset int64
		if err := binary.Read(r, order, &pathIndex); err != nil {
			return nil, err
		}
		if err := binary.Read(r, order, &logicalOffset); err != nil {
			return nil, err
		}
		if err := binary.Read(r, order, &length); err != nil {
			return nil, err
		}
		if err := binary.Read(r, order, &physicalOffset); err != nil {
			return nil, err
		}
		file.AddBlock(int(pathIndex), logicalOffset, length, physicalOffset)
	}

	var groupCount uint32
	if err := binary.Read(r, order, &groupCount); err != nil {
		return nil, err
	}
	file.Groups = make([]int32, groupCount)
	for i := range file.Groups {
		if err := binary.Read(r, order, &file.Groups[i]); err != nil {
			return nil, err
		}
	}

	return file, file.Validate()
}

func readPath(r io.Reader) (pack.Path, error) {
	var p pack.Path
	if err := binary.Read(r, order, &p.InodeID); err != nil {
		return p, err
	}
	if err := binary.Read(r, order, &p.GroupHint); err != nil {
		return p, err
	}
	var length uint16
	if err := binary.Read(r, order, &length); err != nil {
		return p, err
	}
	raw := make([]byte, length)
	if _, err := io.ReadFull(r, raw); err != nil {
		return p, err
	}
	p.PathString = string(raw)
	return p, nil
}
