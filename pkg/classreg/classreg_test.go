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

package classreg

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teradata-labs/li/pkg/lierr"
)

type hostFactory func(name string) string

func TestBuiltinAndCustomNamespaces(t *testing.T) {
	r := NewRegistry()

	require.NoError(t, r.RegisterBuiltin("li.hosts.BusinessService", hostFactory(func(n string) string { return n })))
	require.NoError(t, r.Register("custom.MyService", hostFactory(func(n string) string { return n })))

	// Extensions cannot claim protected names.
	err := r.Register("li.hosts.Evil", hostFactory(func(n string) string { return n }))
	assert.True(t, errors.Is(err, lierr.ErrNamespaceViolation))

	// Extensions must live under custom.*.
	err = r.Register("acme.Service", hostFactory(func(n string) string { return n }))
	assert.True(t, errors.Is(err, lierr.ErrNamespaceViolation))

	// RegisterBuiltin only accepts protected names.
	err = r.RegisterBuiltin("custom.NotBuiltin", hostFactory(func(n string) string { return n }))
	assert.True(t, errors.Is(err, lierr.ErrNamespaceViolation))
}

func TestDuplicateRegistrationRejected(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.RegisterBuiltin("li.hosts.BusinessService", 1))
	err := r.RegisterBuiltin("li.hosts.BusinessService", 2)
	assert.True(t, errors.Is(err, lierr.ErrConfiguration))
}

func TestAliases(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.RegisterBuiltin("li.hosts.BusinessService", "impl"))

	require.NoError(t, r.Alias("legacy.TCPService", "li.hosts.BusinessService"))
	v, err := r.Lookup("legacy.TCPService")
	require.NoError(t, err)
	assert.Equal(t, "impl", v)

	// Chained aliases resolve.
	require.NoError(t, r.Alias("older.TCPService", "legacy.TCPService"))
	v, err = r.Lookup("older.TCPService")
	require.NoError(t, err)
	assert.Equal(t, "impl", v)

	// An alias must not shadow a protected name.
	err = r.Alias("li.hosts.Shadow", "li.hosts.BusinessService")
	assert.True(t, errors.Is(err, lierr.ErrNamespaceViolation))

	// Alias target must exist.
	err = r.Alias("x", "li.hosts.Missing")
	assert.True(t, errors.Is(err, lierr.ErrConfiguration))
}

func TestLookupUnknown(t *testing.T) {
	r := NewRegistry()
	_, err := r.Lookup("li.hosts.Nope")
	assert.True(t, errors.Is(err, lierr.ErrConfiguration))
}

func TestAsTypeMismatch(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.RegisterBuiltin("li.hosts.BusinessService", hostFactory(func(n string) string { return n })))
	require.NoError(t, r.RegisterBuiltin("li.adapters.NotAFactory", 42))

	f, err := As[hostFactory](r, "li.hosts.BusinessService")
	require.NoError(t, err)
	assert.Equal(t, "HL7.In", f("HL7.In"))

	_, err = As[hostFactory](r, "li.adapters.NotAFactory")
	assert.True(t, errors.Is(err, lierr.ErrTypeMismatch))
}
