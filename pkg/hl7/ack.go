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
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ACK codes per the HL7 v2 MSA-1 table.
const (
	AckAccept       = "AA"
	AckError        = "AE"
	AckReject       = "AR"
	AckCommitAccept = "CA"
	AckCommitError  = "CE"
	AckCommitReject = "CR"
)

// BuildAck generates an ACK for the original message: sender and
// receiver swap, MSH-9 becomes ACK^<original trigger event>, a fresh
// control id is assigned, and MSA-2 echoes the original MSH-10.
func BuildAck(original *Message, code, text string) ([]byte, error) {
	if err := original.Validate(); err != nil {
		// A message too broken to parse still deserves a reject; build a
		// minimal ACK from defaults.
		ts := time.Now().Format("20060102150405")
		ack := fmt.Sprintf("MSH|^~\\&|||||%s||ACK|%s|P|2.4\rMSA|%s||%s\r",
			ts, newControlID(), code, text)
		return []byte(ack), nil
	}

	delims, err := original.Delimiters()
	if err != nil {
		return nil, err
	}
	fs := string(delims.Field)
	enc := original.GetField("MSH-2", "^~\\&")

	event := original.GetField("MSH-9.2", "")
	ackType := "ACK"
	if event != "" {
		ackType = "ACK" + string(delims.Component) + event
	}

	processingID := original.GetField("MSH-11", "P")
	version := original.GetField("MSH-12", "2.4")
	ts := time.Now().Format("20060102150405")

	msh := strings.Join([]string{
		"MSH",
		enc,
		original.ReceivingApplication(),
		original.ReceivingFacility(),
		original.SendingApplication(),
		original.SendingFacility(),
		ts,
		"",
		ackType,
		newControlID(),
		processingID,
		version,
	}, fs)

	msa := strings.Join([]string{"MSA", code, original.ControlID(), text}, fs)

	return []byte(msh + "\r" + msa + "\r"), nil
}

// ParseAckCode extracts MSA-1 from ACK bytes. Empty when the reply has
// no MSA segment.
func ParseAckCode(ack []byte) string {
	return NewMessage(ack).GetField("MSA-1", "")
}

// ParseAckControlID extracts MSA-2, the echoed original control id.
func ParseAckControlID(ack []byte) string {
	return NewMessage(ack).GetField("MSA-2", "")
}

func newControlID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
}
