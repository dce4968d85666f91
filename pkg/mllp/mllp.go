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

// Package mllp implements Minimum Lower Layer Protocol framing for HL7
// v2.x messages: 0x0B start-of-block, payload, 0x1C 0x0D end-of-block.
//
// The framer is transport-agnostic: it reads from any io.Reader and is
// typically layered over a net.Conn whose read deadline the owning
// adapter manages.
package mllp

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"

	"github.com/teradata-labs/li/pkg/lierr"
)

const (
	// StartBlock opens an MLLP frame.
	StartBlock = 0x0B
	// EndBlock is the first trailer byte.
	EndBlock = 0x1C
	// CarriageReturn closes the trailer.
	CarriageReturn = 0x0D
)

var trailer = []byte{EndBlock, CarriageReturn}

// Wrap frames payload for the wire.
func Wrap(payload []byte) []byte {
	framed := make([]byte, 0, len(payload)+3)
	framed = append(framed, StartBlock)
	framed = append(framed, payload...)
	framed = append(framed, trailer...)
	return framed
}

// Unwrap strips the framing added by Wrap. It fails with FrameError when
// the start or end block bytes are missing.
func Unwrap(framed []byte) ([]byte, error) {
	if len(framed) < 3 || framed[0] != StartBlock {
		return nil, fmt.Errorf("%w: missing start block", lierr.ErrFrame)
	}
	if !bytes.Equal(framed[len(framed)-2:], trailer) {
		return nil, fmt.Errorf("%w: missing end block", lierr.ErrFrame)
	}
	return framed[1 : len(framed)-2], nil
}

// ReadFrame reads one MLLP frame from r and returns the payload bytes.
//
// Errors map to the adapter fault kinds: a clean EOF before any frame
// byte returns io.EOF so connection loops can terminate quietly; EOF
// mid-frame is a FrameError; an elapsed read deadline is a TimeoutError;
// any other transport fault is a ConnectionError.
func ReadFrame(r io.Reader) ([]byte, error) {
	var one [1]byte

	// Scan to the start block, tolerating inter-frame noise (some peers
	// send stray CR/LF between frames).
	for {
		if _, err := r.Read(one[:]); err != nil {
			if errors.Is(err, io.EOF) {
				return nil, io.EOF
			}
			return nil, classify(err)
		}
		if one[0] == StartBlock {
			break
		}
	}

	var payload bytes.Buffer
	sawEnd := false
	for {
		if _, err := r.Read(one[:]); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return nil, fmt.Errorf("%w: EOF mid-frame after %d bytes", lierr.ErrFrame, payload.Len())
			}
			return nil, classify(err)
		}
		b := one[0]
		switch {
		case sawEnd && b == CarriageReturn:
			return payload.Bytes(), nil
		case sawEnd:
			// A lone 0x1C inside the payload is not a trailer.
			payload.WriteByte(EndBlock)
			sawEnd = false
			if b == EndBlock {
				sawEnd = true
			} else {
				payload.WriteByte(b)
			}
		case b == EndBlock:
			sawEnd = true
		default:
			payload.WriteByte(b)
		}
	}
}

func classify(err error) error {
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return fmt.Errorf("%w: read deadline elapsed: %v", lierr.ErrTimeout, err)
	}
	return fmt.Errorf("%w: %v", lierr.ErrConnection, err)
}
