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
package mllp

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teradata-labs/li/pkg/lierr"
)

func TestWrapUnwrapRoundTrip(t *testing.T) {
	payloads := [][]byte{
		[]byte("MSH|^~\\&|A|B|C|D|20240101||ADT^A01|1|P|2.4\rPID|1\r"),
		[]byte(""),
		[]byte("x"),
		{0x1C}, // lone end-block byte inside payload
	}
	for _, p := range payloads {
		framed := Wrap(p)
		assert.Equal(t, byte(StartBlock), framed[0])
		assert.Equal(t, []byte{EndBlock, CarriageReturn}, framed[len(framed)-2:])

		got, err := Unwrap(framed)
		require.NoError(t, err)
		assert.Equal(t, p, got)
	}
}

func TestReadFrame(t *testing.T) {
	payload := []byte("MSH|^~\\&|A|B|C|D|20240101||ORU^R01|42|P|2.4\r")
	got, err := ReadFrame(bytes.NewReader(Wrap(payload)))
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestReadFrameSkipsInterFrameNoise(t *testing.T) {
	payload := []byte("MSH|1")
	stream := append([]byte("\r\n"), Wrap(payload)...)
	got, err := ReadFrame(bytes.NewReader(stream))
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestReadFrameLoneEndBlockInPayload(t *testing.T) {
	payload := []byte{'a', EndBlock, 'b'}
	got, err := ReadFrame(bytes.NewReader(Wrap(payload)))
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestReadFrameEOFBeforeFrame(t *testing.T) {
	_, err := ReadFrame(bytes.NewReader(nil))
	assert.Equal(t, io.EOF, err)
}

func TestReadFrameEOFMidFrame(t *testing.T) {
	framed := Wrap([]byte("partial message"))
	_, err := ReadFrame(bytes.NewReader(framed[:5]))
	require.Error(t, err)
	assert.True(t, errors.Is(err, lierr.ErrFrame))
}

func TestReadFrameSequentialFrames(t *testing.T) {
	var stream bytes.Buffer
	stream.Write(Wrap([]byte("first")))
	stream.Write(Wrap([]byte("second")))

	got, err := ReadFrame(&stream)
	require.NoError(t, err)
	assert.Equal(t, []byte("first"), got)

	got, err = ReadFrame(&stream)
	require.NoError(t, err)
	assert.Equal(t, []byte("second"), got)

	_, err = ReadFrame(&stream)
	assert.Equal(t, io.EOF, err)
}
