/*
 * SPDX-License-Identifier: Apache-2.0
 */

package fsquery

import (
	"os"
)

// Fake is an in-memory Querier for tests that never touch a real
// filesystem or block device.
type Fake struct {
	Stats         map[string]Stat
	Resident      map[string][]bool
	RotationalMap map[uint64]bool
	ExtentMap     map[string][]Extent
	Groups        map[string]int32
	OpenFile      func(path string) (*os.File, error)
}

// NewFake returns an empty Fake with its maps initialised.
func NewFake() *Fake {
	return &Fake{
		Stats:         make(map[string]Stat),
		Resident:      make(map[string][]bool),
		RotationalMap: make(map[uint64]bool),
		ExtentMap:     make(map[string][]Extent),
		Groups:        make(map[string]int32),
	}
}

func (f *Fake) Stat(path string) (Stat, error) {
	st, ok := f.Stats[path]
	if !ok {
		return Stat{}, os.ErrNotExist
	}
	return st, nil
}

func (f *Fake) OpenNoAtime(path string) (*os.File, error) {
	if f.OpenFile != nil {
		return f.OpenFile(path)
	}
	return os.Open(path)
}

func (f *Fake) Residency(file *os.File, size int64) ([]bool, error) {
	return f.Resident[file.Name()], nil
}

func (f *Fake) Rotational(deviceID uint64) (bool, error) {
	return f.RotationalMap[deviceID], nil
}

func (f *Fake) Extents(file *os.File, size int64) ([]Extent, error) {
	return f.ExtentMap[file.Name()], nil
}

func (f *Fake) GroupOf(devicePath string, inodeID uint64) (int32, error) {
	key := devicePath
	if g, ok := f.Groups[key]; ok {
		return g, nil
	}
	return -1, nil
}
