// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package hl7 provides a lazy field-path view over raw HL7 v2.x bytes.
//
// A Message wraps the raw ER7 bytes and parses them on first access: the
// MSH segment's positions 3..7 supply the field, component, repetition,
// escape, and subcomponent delimiters, and segments are indexed by their
// three-letter name with a repetition index. Field access is memoised.
// SetField is functional: it returns new raw bytes and never mutates the
// original.
//
// Path grammar (1-based indices):
//
//	path := SEG ['(' N ')'] '-' F ['(' N ')'] ['.' C ['.' S]]
//
// MSH is special-cased: MSH-1 is the field separator character, MSH-2 the
// encoding characters, and field numbering inside MSH is offset by one
// because the separator itself occupies field position 1.
package hl7

import (
	"bytes"
	"fmt"
	"strings"
	"sync"

	"github.com/teradata-labs/li/pkg/lierr"
)

// Delimiters holds the five MSH-declared separator characters.
type Delimiters struct {
	Field        byte
	Component    byte
	Repetition   byte
	Escape       byte
	Subcomponent byte
}

// DefaultDelimiters is the near-universal |^~\& set.
var DefaultDelimiters = Delimiters{
	Field:        '|',
	Component:    '^',
	Repetition:   '~',
	Escape:       '\\',
	Subcomponent: '&',
}

// Message is a lazy parsed view over raw HL7 bytes.
type Message struct {
	raw []byte

	mu       sync.Mutex
	parsed   bool
	parseErr error
	delims   Delimiters
	segments []string         // segment lines, in document order
	segIndex map[string][]int // segment name -> indexes into segments
	memo     map[string]string
}

// NewMessage wraps raw ER7 bytes. No parsing happens until first access.
func NewMessage(raw []byte) *Message {
	return &Message{raw: raw}
}

// Raw returns the underlying bytes. Callers must not modify them.
func (m *Message) Raw() []byte {
	return m.raw
}

// ensureParsed runs the one-time structural parse. Callers hold m.mu.
func (m *Message) ensureParsed() error {
	if m.parsed {
		return m.parseErr
	}
	m.parsed = true
	m.memo = make(map[string]string)
	m.segIndex = make(map[string][]int)

	if len(m.raw) < 8 || !bytes.HasPrefix(m.raw, []byte("MSH")) {
		m.parseErr = lierr.Validationf("HL7 message must start with MSH segment")
		return m.parseErr
	}

	m.delims = Delimiters{
		Field:        m.raw[3],
		Component:    '^',
		Repetition:   '~',
		Escape:       '\\',
		Subcomponent: '&',
	}
	// MSH-2 declares up to four encoding characters; missing trailing
	// positions keep their defaults.
	enc := m.raw[4:]
	if i := bytes.IndexByte(enc, m.delims.Field); i >= 0 {
		enc = enc[:i]
	}
	if len(enc) > 0 {
		m.delims.Component = enc[0]
	}
	if len(enc) > 1 {
		m.delims.Repetition = enc[1]
	}
	if len(enc) > 2 {
		m.delims.Escape = enc[2]
	}
	if len(enc) > 3 {
		m.delims.Subcomponent = enc[3]
	}

	// Segments terminate with \r on the wire; tolerate \n and \r\n from
	// file sources.
	normalized := strings.ReplaceAll(string(m.raw), "\r\n", "\r")
	normalized = strings.ReplaceAll(normalized, "\n", "\r")
	for _, line := range strings.Split(normalized, "\r") {
		if line == "" {
			continue
		}
		idx := len(m.segments)
		m.segments = append(m.segments, line)
		name := line
		if len(name) > 3 {
			name = name[:3]
		}
		m.segIndex[name] = append(m.segIndex[name], idx)
	}
	return nil
}

// Delimiters returns the message's separator set, parsing on demand.
func (m *Message) Delimiters() (Delimiters, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.ensureParsed(); err != nil {
		return Delimiters{}, err
	}
	return m.delims, nil
}

// GetSegment returns the rep-th occurrence (0-based) of the named
// segment, or "" when absent.
func (m *Message) GetSegment(name string, rep int) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.ensureParsed(); err != nil {
		return ""
	}
	idxs := m.segIndex[name]
	if rep < 0 || rep >= len(idxs) {
		return ""
	}
	return m.segments[idxs[rep]]
}

// GetSegments returns every occurrence of the named segment.
func (m *Message) GetSegments(name string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.ensureParsed(); err != nil {
		return nil
	}
	idxs := m.segIndex[name]
	out := make([]string, 0, len(idxs))
	for _, i := range idxs {
		out = append(out, m.segments[i])
	}
	return out
}

// GetField resolves path and returns its value, or def when the path is
// invalid or addresses nothing. Results are memoised per path.
func (m *Message) GetField(path, def string) string {
	v, err := m.Field(path)
	if err != nil || v == "" {
		return def
	}
	return v
}

// Field resolves path and returns its value. An empty result with a nil
// error means the addressed position exists but is empty or absent.
func (m *Message) Field(path string) (string, error) {
	spec, err := parsePath(path)
	if err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.ensureParsed(); err != nil {
		return "", err
	}

	key := spec.canonical()
	if v, ok := m.memo[key]; ok {
		return v, nil
	}
	v := m.resolve(spec)
	m.memo[key] = v
	return v, nil
}

// resolve walks a parsed path against the segment index. Callers hold
// m.mu with the parse complete.
func (m *Message) resolve(spec pathSpec) string {
	idxs := m.segIndex[spec.Segment]
	if spec.SegmentRep-1 >= len(idxs) {
		return ""
	}
	line := m.segments[idxs[spec.SegmentRep-1]]
	fields := strings.Split(line, string(m.delims.Field))

	var field string
	if spec.Segment == "MSH" {
		switch spec.Field {
		case 1:
			return string(m.delims.Field)
		case 2:
			if len(fields) > 1 {
				field = fields[1]
			}
			// Encoding characters are returned verbatim, never split.
			return field
		default:
			if spec.Field-1 < len(fields) {
				field = fields[spec.Field-1]
			}
		}
	} else {
		if spec.Field < len(fields) {
			field = fields[spec.Field]
		}
	}

	// An explicit repetition selects one; otherwise field-level access
	// returns the whole field and component access works on the first
	// repetition.
	if spec.FieldRep > 0 {
		reps := strings.Split(field, string(m.delims.Repetition))
		if spec.FieldRep-1 >= len(reps) {
			return ""
		}
		field = reps[spec.FieldRep-1]
	} else if spec.Component > 0 {
		if i := strings.IndexByte(field, m.delims.Repetition); i >= 0 {
			field = field[:i]
		}
	}

	if spec.Component == 0 {
		return field
	}
	comps := strings.Split(field, string(m.delims.Component))
	if spec.Component-1 >= len(comps) {
		return ""
	}
	comp := comps[spec.Component-1]

	if spec.Sub == 0 {
		return comp
	}
	subs := strings.Split(comp, string(m.delims.Subcomponent))
	if spec.Sub-1 >= len(subs) {
		return ""
	}
	return subs[spec.Sub-1]
}

// SetField returns new raw bytes with the addressed position replaced by
// value. The receiver is left untouched. Setting MSH-1 or MSH-2 is a
// structural change and fails with ValidationFailed.
func (m *Message) SetField(path, value string) ([]byte, error) {
	spec, err := parsePath(path)
	if err != nil {
		return nil, err
	}
	if spec.Segment == "MSH" && spec.Field <= 2 {
		return nil, lierr.Validationf("cannot set %s: MSH delimiters are structural", path)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.ensureParsed(); err != nil {
		return nil, err
	}

	idxs := m.segIndex[spec.Segment]
	if spec.SegmentRep-1 >= len(idxs) {
		return nil, lierr.Validationf("segment %s(%d) not present", spec.Segment, spec.SegmentRep)
	}
	segIdx := idxs[spec.SegmentRep-1]
	fields := strings.Split(m.segments[segIdx], string(m.delims.Field))

	fieldIdx := spec.Field
	if spec.Segment == "MSH" {
		fieldIdx = spec.Field - 1
	}
	for len(fields) <= fieldIdx {
		fields = append(fields, "")
	}

	rep := spec.FieldRep
	if rep == 0 {
		rep = 1
	}
	reps := strings.Split(fields[fieldIdx], string(m.delims.Repetition))
	for len(reps) < rep {
		reps = append(reps, "")
	}

	if spec.Component == 0 {
		if spec.FieldRep == 0 {
			// Whole-field write replaces every repetition.
			fields[fieldIdx] = value
		} else {
			reps[rep-1] = value
			fields[fieldIdx] = strings.Join(reps, string(m.delims.Repetition))
		}
	} else {
		comps := strings.Split(reps[rep-1], string(m.delims.Component))
		for len(comps) < spec.Component {
			comps = append(comps, "")
		}
		if spec.Sub == 0 {
			comps[spec.Component-1] = value
		} else {
			subs := strings.Split(comps[spec.Component-1], string(m.delims.Subcomponent))
			for len(subs) < spec.Sub {
				subs = append(subs, "")
			}
			subs[spec.Sub-1] = value
			comps[spec.Component-1] = strings.Join(subs, string(m.delims.Subcomponent))
		}
		reps[rep-1] = strings.Join(comps, string(m.delims.Component))
		fields[fieldIdx] = strings.Join(reps, string(m.delims.Repetition))
	}

	var out bytes.Buffer
	for i, seg := range m.segments {
		if i == segIdx {
			out.WriteString(strings.Join(fields, string(m.delims.Field)))
		} else {
			out.WriteString(seg)
		}
		out.WriteByte('\r')
	}
	return out.Bytes(), nil
}

// MessageType composes MSH-9.1 and MSH-9.2 as "TYPE_EVENT", or just
// MSH-9.1 when the trigger event is absent.
func (m *Message) MessageType() string {
	typ := m.GetField("MSH-9.1", "")
	event := m.GetField("MSH-9.2", "")
	if typ != "" && event != "" {
		return typ + "_" + event
	}
	return typ
}

// ControlID returns MSH-10.
func (m *Message) ControlID() string {
	return m.GetField("MSH-10", "")
}

// SendingApplication returns MSH-3.
func (m *Message) SendingApplication() string { return m.GetField("MSH-3", "") }

// SendingFacility returns MSH-4.
func (m *Message) SendingFacility() string { return m.GetField("MSH-4", "") }

// ReceivingApplication returns MSH-5.
func (m *Message) ReceivingApplication() string { return m.GetField("MSH-5", "") }

// ReceivingFacility returns MSH-6.
func (m *Message) ReceivingFacility() string { return m.GetField("MSH-6", "") }

// PatientID returns PID-3.1.
func (m *Message) PatientID() string { return m.GetField("PID-3.1", "") }

// PatientName returns PID-5.
func (m *Message) PatientName() string { return m.GetField("PID-5", "") }

// Validate runs the structural parse and reports its outcome without
// touching any field.
func (m *Message) Validate() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.ensureParsed(); err != nil {
		return err
	}
	if len(m.segments) == 0 {
		return lierr.Validationf("HL7 message has no segments")
	}
	return nil
}

func (s pathSpec) canonical() string {
	return fmt.Sprintf("%s(%d)-%d(%d).%d.%d", s.Segment, s.SegmentRep, s.Field, s.FieldRep, s.Component, s.Sub)
}
