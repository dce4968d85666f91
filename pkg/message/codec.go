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
package message

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
)

// binaryMagic identifies the compact wire format. The binary codec keeps
// the raw clinical payload out of base64: it frames the JSON envelope and
// the raw bytes as two big-endian length-prefixed sections.
var binaryMagic = []byte("LIM1")

// EncodeJSON serializes a Message as a single JSON document. The raw
// payload is base64-encoded by encoding/json.
func EncodeJSON(m Message) ([]byte, error) {
	return json.Marshal(m)
}

// DecodeJSON deserializes a Message produced by EncodeJSON.
func DecodeJSON(data []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return Message{}, fmt.Errorf("decode message: %w", err)
	}
	return m, nil
}

// binaryHeader is the envelope plus payload metadata, everything except
// the raw bytes.
type binaryHeader struct {
	Envelope    Envelope            `json:"envelope"`
	ContentType string              `json:"content_type,omitempty"`
	Encoding    string              `json:"encoding,omitempty"`
	Properties  map[string]Property `json:"properties,omitempty"`
}

// EncodeBinary serializes a Message in the compact framed format:
// magic, u32 header length, header JSON, u32 raw length, raw bytes.
func EncodeBinary(m Message) ([]byte, error) {
	header, err := json.Marshal(binaryHeader{
		Envelope:    m.Envelope,
		ContentType: m.Payload.ContentType,
		Encoding:    m.Payload.Encoding,
		Properties:  m.Payload.Properties,
	})
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	buf.Grow(len(binaryMagic) + 8 + len(header) + len(m.Payload.Raw))
	buf.Write(binaryMagic)
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(header)))
	buf.Write(lenBuf[:])
	buf.Write(header)
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(m.Payload.Raw)))
	buf.Write(lenBuf[:])
	buf.Write(m.Payload.Raw)
	return buf.Bytes(), nil
}

// DecodeBinary deserializes a Message produced by EncodeBinary.
func DecodeBinary(data []byte) (Message, error) {
	if len(data) < len(binaryMagic)+8 || !bytes.Equal(data[:len(binaryMagic)], binaryMagic) {
		return Message{}, fmt.Errorf("decode message: bad magic")
	}
	rest := data[len(binaryMagic):]

	// Widen before adding: headerLen+4 wraps in uint32 for lengths near
	// the maximum and would defeat the bounds check.
	headerLen := binary.BigEndian.Uint32(rest[:4])
	rest = rest[4:]
	if uint64(len(rest)) < uint64(headerLen)+4 {
		return Message{}, fmt.Errorf("decode message: truncated header")
	}
	var header binaryHeader
	if err := json.Unmarshal(rest[:headerLen], &header); err != nil {
		return Message{}, fmt.Errorf("decode message: %w", err)
	}
	rest = rest[headerLen:]

	rawLen := binary.BigEndian.Uint32(rest[:4])
	rest = rest[4:]
	if uint64(len(rest)) < uint64(rawLen) {
		return Message{}, fmt.Errorf("decode message: truncated payload")
	}

	var raw []byte
	if rawLen > 0 {
		raw = append([]byte(nil), rest[:rawLen]...)
	}
	return Message{
		Envelope: header.Envelope,
		Payload: Payload{
			Raw:         raw,
			ContentType: header.ContentType,
			Encoding:    header.Encoding,
			Properties:  header.Properties,
		},
	}, nil
}
