/*
 * SPDX-License-Identifier: Apache-2.0
 */

package tracetransport

// Fake is an in-memory Transport for ingester tests.
type Fake struct {
	Records      []Record
	Enabled      map[string]bool
	Fields       map[string]map[string]bool
	BufferSizeKB int
	On           bool
}

// NewFake returns a Fake with no events enabled and tracing off.
func NewFake(records ...Record) *Fake {
	return &Fake{
		Records: records,
		Enabled: make(map[string]bool),
		Fields:  make(map[string]map[string]bool),
	}
}

func (f *Fake) EventEnable(event string) error            { f.Enabled[event] = true; return nil }
func (f *Fake) EventDisable(event string) error           { f.Enabled[event] = false; return nil }
func (f *Fake) EventIsEnabled(event string) (bool, error) { return f.Enabled[event], nil }

func (f *Fake) BufferSizeGet() (int, error) { return f.BufferSizeKB, nil }
func (f *Fake) BufferSizeSet(kb int) error  { f.BufferSizeKB = kb; return nil }

func (f *Fake) TraceOn() error           { f.On = true; return nil }
func (f *Fake) TraceOff() error          { f.On = false; return nil }
func (f *Fake) TraceIsOn() (bool, error) { return f.On, nil }

func (f *Fake) IterateEvents(fn func(Record) bool) error {
	for _, r := range f.Records {
		if !fn(r) {
			break
		}
	}
	return nil
}

func (f *Fake) FindField(event, name string) (Field, bool, error) {
	names, ok := f.Fields[event]
	if !ok || !names[name] {
		return Field{}, false, nil
	}
	return Field{Name: name}, true, nil
}
