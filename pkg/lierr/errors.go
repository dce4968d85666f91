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

// Package lierr defines the error kinds the engine reports.
//
// Every failure that crosses a package boundary wraps one of these
// sentinels so callers can classify with errors.Is without string
// matching. The Kind helper extracts the short machine-readable name
// carried in structured logs.
package lierr

import (
	"errors"
	"fmt"
)

// Sentinel error kinds.
var (
	// ErrConfiguration indicates an unknown class, malformed rule, or
	// missing required setting. Fatal at startup.
	ErrConfiguration = errors.New("configuration error")

	// ErrValidationFailed indicates a property size violation, an HL7
	// structural error, or a schema mismatch.
	ErrValidationFailed = errors.New("validation failed")

	// ErrFrame indicates malformed or truncated MLLP framing.
	ErrFrame = errors.New("frame error")

	// ErrConnection indicates a transport fault on an adapter.
	ErrConnection = errors.New("connection error")

	// ErrTimeout indicates an elapsed deadline: adapter read, ACK wait,
	// sync request, or on_message execution.
	ErrTimeout = errors.New("timeout")

	// ErrSend indicates an outbound dispatch that failed after the
	// adapter's retry budget was exhausted.
	ErrSend = errors.New("send failed")

	// ErrNamespaceViolation indicates a registration into a protected
	// ClassRegistry namespace from outside the built-in set.
	ErrNamespaceViolation = errors.New("namespace violation")

	// ErrTypeMismatch indicates a resolved implementation that does not
	// satisfy the required base contract.
	ErrTypeMismatch = errors.New("type mismatch")

	// ErrNoMatch indicates a routing evaluation where no rule matched and
	// no default target exists.
	ErrNoMatch = errors.New("no matching rule")

	// ErrQueueFull indicates a rejected put under a non-blocking overflow
	// policy.
	ErrQueueFull = errors.New("queue full")

	// ErrClosed indicates an operation on a stopped component.
	ErrClosed = errors.New("closed")
)

// Kind returns the short machine-readable name for err, or "unknown" when
// err wraps none of the engine's sentinels.
func Kind(err error) string {
	switch {
	case errors.Is(err, ErrConfiguration):
		return "configuration"
	case errors.Is(err, ErrValidationFailed):
		return "validation_failed"
	case errors.Is(err, ErrFrame):
		return "frame_error"
	case errors.Is(err, ErrConnection):
		return "connection_error"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrSend):
		return "send_error"
	case errors.Is(err, ErrNamespaceViolation):
		return "namespace_violation"
	case errors.Is(err, ErrTypeMismatch):
		return "type_mismatch"
	case errors.Is(err, ErrNoMatch):
		return "no_match"
	case errors.Is(err, ErrQueueFull):
		return "queue_full"
	case errors.Is(err, ErrClosed):
		return "closed"
	default:
		return "unknown"
	}
}

// Configf wraps ErrConfiguration with a formatted detail message.
func Configf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrConfiguration}, args...)...)
}

// Validationf wraps ErrValidationFailed with a formatted detail message.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrValidationFailed}, args...)...)
}
