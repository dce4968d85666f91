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
	"encoding/json"
	"fmt"
	"time"

	"github.com/teradata-labs/li/pkg/lierr"
)

// PropertyType enumerates the value types a payload property may carry.
type PropertyType string

const (
	TypeString   PropertyType = "string"
	TypeInt      PropertyType = "int"
	TypeFloat    PropertyType = "float"
	TypeBool     PropertyType = "bool"
	TypeDatetime PropertyType = "datetime"
	TypeBytes    PropertyType = "bytes"
	TypeList     PropertyType = "list"
	TypeDict     PropertyType = "dict"
)

// Property is a typed payload property. MaxSize, when positive, bounds
// the serialized size of the value and is enforced at construction.
type Property struct {
	Value   any          `json:"value"`
	Type    PropertyType `json:"type"`
	MaxSize int          `json:"max_size,omitempty"`
}

// NewProperty validates value against typ and maxSize (0 = unbounded).
// A value of the wrong Go type or one whose serialized form exceeds
// maxSize fails with ValidationFailed.
func NewProperty(value any, typ PropertyType, maxSize int) (Property, error) {
	if err := checkType(value, typ); err != nil {
		return Property{}, err
	}
	if maxSize > 0 {
		size, err := valueSize(value)
		if err != nil {
			return Property{}, lierr.Validationf("property not measurable: %v", err)
		}
		if size > maxSize {
			return Property{}, lierr.Validationf("property size %d exceeds max %d", size, maxSize)
		}
	}
	return Property{Value: value, Type: typ, MaxSize: maxSize}, nil
}

// MustProperty is NewProperty for values known valid at compile time.
// It panics on validation failure.
func MustProperty(value any, typ PropertyType, maxSize int) Property {
	p, err := NewProperty(value, typ, maxSize)
	if err != nil {
		panic(err)
	}
	return p
}

func checkType(value any, typ PropertyType) error {
	ok := false
	switch typ {
	case TypeString:
		_, ok = value.(string)
	case TypeInt:
		switch value.(type) {
		case int, int32, int64:
			ok = true
		}
	case TypeFloat:
		switch value.(type) {
		case float32, float64:
			ok = true
		}
	case TypeBool:
		_, ok = value.(bool)
	case TypeDatetime:
		_, ok = value.(time.Time)
	case TypeBytes:
		_, ok = value.([]byte)
	case TypeList:
		_, ok = value.([]any)
	case TypeDict:
		_, ok = value.(map[string]any)
	default:
		return lierr.Validationf("unknown property type %q", typ)
	}
	if !ok {
		return lierr.Validationf("value %T does not match property type %q", value, typ)
	}
	return nil
}

func valueSize(value any) (int, error) {
	switch v := value.(type) {
	case string:
		return len(v), nil
	case []byte:
		return len(v), nil
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return 0, fmt.Errorf("marshal: %w", err)
		}
		return len(b), nil
	}
}

// propertyWire is the serialized form of a Property. The value is kept
// raw so decoding can restore the declared Go type.
type propertyWire struct {
	Type    PropertyType    `json:"type"`
	Value   json.RawMessage `json:"value"`
	MaxSize int             `json:"max_size,omitempty"`
}

// MarshalJSON encodes the property with its declared type tag.
func (p Property) MarshalJSON() ([]byte, error) {
	raw, err := json.Marshal(p.Value)
	if err != nil {
		return nil, err
	}
	return json.Marshal(propertyWire{Type: p.Type, Value: raw, MaxSize: p.MaxSize})
}

// UnmarshalJSON decodes the property, restoring the Go type declared by
// the type tag (int64 for int, time.Time for datetime, []byte for bytes).
func (p *Property) UnmarshalJSON(data []byte) error {
	var w propertyWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	p.Type = w.Type
	p.MaxSize = w.MaxSize

	switch w.Type {
	case TypeString:
		var v string
		if err := json.Unmarshal(w.Value, &v); err != nil {
			return err
		}
		p.Value = v
	case TypeInt:
		var v int64
		if err := json.Unmarshal(w.Value, &v); err != nil {
			return err
		}
		p.Value = v
	case TypeFloat:
		var v float64
		if err := json.Unmarshal(w.Value, &v); err != nil {
			return err
		}
		p.Value = v
	case TypeBool:
		var v bool
		if err := json.Unmarshal(w.Value, &v); err != nil {
			return err
		}
		p.Value = v
	case TypeDatetime:
		var v time.Time
		if err := json.Unmarshal(w.Value, &v); err != nil {
			return err
		}
		p.Value = v
	case TypeBytes:
		var v []byte
		if err := json.Unmarshal(w.Value, &v); err != nil {
			return err
		}
		p.Value = v
	case TypeList:
		var v []any
		if err := json.Unmarshal(w.Value, &v); err != nil {
			return err
		}
		p.Value = v
	case TypeDict:
		var v map[string]any
		if err := json.Unmarshal(w.Value, &v); err != nil {
			return err
		}
		p.Value = v
	default:
		return lierr.Validationf("unknown property type %q", w.Type)
	}
	return nil
}
