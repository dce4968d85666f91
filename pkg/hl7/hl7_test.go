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
package hl7

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const adtA01 = "MSH|^~\\&|SRC|F1|DST|F2|20240115120000||ADT^A01|MSG001|P|2.4\r" +
	"PID|1||12345^^^MRN~67890^^^SSN||DOE^JOHN^Q\r" +
	"OBX|1|ST|CODE1|1|first\r" +
	"OBX|2|ST|CODE2|1|second\r"

func TestMSHSpecialFields(t *testing.T) {
	m := NewMessage([]byte(adtA01))

	assert.Equal(t, "|", m.GetField("MSH-1", ""))
	assert.Equal(t, "^~\\&", m.GetField("MSH-2", ""))
	assert.Equal(t, "SRC", m.GetField("MSH-3", ""))
	assert.Equal(t, "F1", m.GetField("MSH-4", ""))
	assert.Equal(t, "ADT^A01", m.GetField("MSH-9", ""))
	assert.Equal(t, "ADT", m.GetField("MSH-9.1", ""))
	assert.Equal(t, "A01", m.GetField("MSH-9.2", ""))
	assert.Equal(t, "MSG001", m.GetField("MSH-10", ""))
}

func TestConvenienceAccessors(t *testing.T) {
	m := NewMessage([]byte(adtA01))

	assert.Equal(t, "ADT_A01", m.MessageType())
	assert.Equal(t, "MSG001", m.ControlID())
	assert.Equal(t, "SRC", m.SendingApplication())
	assert.Equal(t, "F1", m.SendingFacility())
	assert.Equal(t, "DST", m.ReceivingApplication())
	assert.Equal(t, "F2", m.ReceivingFacility())
	assert.Equal(t, "12345", m.PatientID())
	assert.Equal(t, "DOE^JOHN^Q", m.PatientName())
}

func TestRepetitionsAndSubcomponents(t *testing.T) {
	m := NewMessage([]byte(adtA01))

	// Whole field includes all repetitions.
	assert.Equal(t, "12345^^^MRN~67890^^^SSN", m.GetField("PID-3", ""))
	// Explicit repetition selects one.
	assert.Equal(t, "67890^^^SSN", m.GetField("PID-3(2)", ""))
	assert.Equal(t, "67890", m.GetField("PID-3(2).1", ""))
	// Component access without a repetition works on the first.
	assert.Equal(t, "12345", m.GetField("PID-3.1", ""))
	assert.Equal(t, "MRN", m.GetField("PID-3.4", ""))
}

func TestSegmentRepetition(t *testing.T) {
	m := NewMessage([]byte(adtA01))

	assert.Equal(t, "first", m.GetField("OBX-5", ""))
	assert.Equal(t, "second", m.GetField("OBX(2)-5", ""))
	assert.Len(t, m.GetSegments("OBX"), 2)
	assert.Equal(t, "", m.GetSegment("ZZZ", 0))
}

func TestGetFieldDefault(t *testing.T) {
	m := NewMessage([]byte(adtA01))
	assert.Equal(t, "fallback", m.GetField("PID-99", "fallback"))
	assert.Equal(t, "fallback", m.GetField("ZZZ-1", "fallback"))
}

func TestMemoisedAccess(t *testing.T) {
	m := NewMessage([]byte(adtA01))
	first := m.GetField("PID-5.1", "")
	second := m.GetField("PID-5.1", "")
	assert.Equal(t, "DOE", first)
	assert.Equal(t, first, second)
}

func TestSetFieldIsFunctional(t *testing.T) {
	m := NewMessage([]byte(adtA01))

	updated, err := m.SetField("PID-5.1", "SMITH")
	require.NoError(t, err)

	// Original untouched.
	assert.Equal(t, "DOE", m.GetField("PID-5.1", ""))

	m2 := NewMessage(updated)
	assert.Equal(t, "SMITH", m2.GetField("PID-5.1", ""))
	// Sibling components survive.
	assert.Equal(t, "JOHN", m2.GetField("PID-5.2", ""))
	// Unrelated paths unchanged.
	assert.Equal(t, m.GetField("MSH-10", ""), m2.GetField("MSH-10", ""))
	assert.Equal(t, m.GetField("PID-3", ""), m2.GetField("PID-3", ""))
}

func TestSetFieldExtendsShortSegment(t *testing.T) {
	m := NewMessage([]byte("MSH|^~\\&|SRC|F1|DST|F2|20240115||ORM^O01|1|P|2.4\rORC|NW\r"))

	updated, err := m.SetField("ORC-5", "CM")
	require.NoError(t, err)
	assert.Equal(t, "CM", NewMessage(updated).GetField("ORC-5", ""))
}

func TestSetFieldSubcomponent(t *testing.T) {
	m := NewMessage([]byte(adtA01))
	updated, err := m.SetField("PID-3.4.2", "HOSP")
	require.NoError(t, err)
	m2 := NewMessage(updated)
	assert.Equal(t, "MRN&HOSP", m2.GetField("PID-3.4", ""))
	assert.Equal(t, "HOSP", m2.GetField("PID-3.4.2", ""))
}

func TestSetFieldRejectsMSHDelimiters(t *testing.T) {
	m := NewMessage([]byte(adtA01))
	_, err := m.SetField("MSH-1", "#")
	require.Error(t, err)
	_, err = m.SetField("MSH-2", "#@*+")
	require.Error(t, err)
}

func TestNonDefaultDelimiters(t *testing.T) {
	m := NewMessage([]byte("MSH#*@!$#SRC#F1#DST#F2#20240101##ADT*A01#77#P#2.4\r"))
	assert.Equal(t, "#", m.GetField("MSH-1", ""))
	assert.Equal(t, "ADT", m.GetField("MSH-9.1", ""))
	assert.Equal(t, "A01", m.GetField("MSH-9.2", ""))
}

func TestValidateRejectsNonHL7(t *testing.T) {
	require.Error(t, NewMessage([]byte("not an hl7 message")).Validate())
	require.Error(t, NewMessage(nil).Validate())
	require.NoError(t, NewMessage([]byte(adtA01)).Validate())
}

func TestBuildAck(t *testing.T) {
	m := NewMessage([]byte(adtA01))

	ackBytes, err := BuildAck(m, AckAccept, "Message accepted")
	require.NoError(t, err)

	ack := NewMessage(ackBytes)
	// Sender and receiver swap.
	assert.Equal(t, "DST", ack.GetField("MSH-3", ""))
	assert.Equal(t, "F2", ack.GetField("MSH-4", ""))
	assert.Equal(t, "SRC", ack.GetField("MSH-5", ""))
	assert.Equal(t, "F1", ack.GetField("MSH-6", ""))
	assert.Equal(t, "ACK", ack.GetField("MSH-9.1", ""))
	assert.Equal(t, "A01", ack.GetField("MSH-9.2", ""))
	assert.NotEqual(t, "MSG001", ack.GetField("MSH-10", ""))
	// MSA-2 echoes the original control id.
	assert.Equal(t, "AA", ack.GetField("MSA-1", ""))
	assert.Equal(t, "MSG001", ack.GetField("MSA-2", ""))
	assert.Equal(t, "Message accepted", ack.GetField("MSA-3", ""))
	assert.True(t, strings.HasSuffix(string(ackBytes), "\r"))
}

func TestBuildAckForUnparseableMessage(t *testing.T) {
	m := NewMessage([]byte("garbage"))
	ackBytes, err := BuildAck(m, AckReject, "bad message")
	require.NoError(t, err)
	assert.Equal(t, "AR", ParseAckCode(ackBytes))
}

func TestParseAckHelpers(t *testing.T) {
	ack := []byte("MSH|^~\\&|DST|F2|SRC|F1|20240115120500||ACK^A01|X1|P|2.4\rMSA|AE|MSG001|boom\r")
	assert.Equal(t, "AE", ParseAckCode(ack))
	assert.Equal(t, "MSG001", ParseAckControlID(ack))
	assert.Equal(t, "", ParseAckCode([]byte("MSH|^~\\&|A|B|C|D|1||ACK|1|P|2.4\r")))
}
