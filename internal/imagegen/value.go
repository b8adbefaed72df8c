package imagegen

import (
	"errors"
	"fmt"
	"io"

	jsoniter "github.com/json-iterator/go"
)

// Kind tags the variant held by a Value.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindArray
	KindObject
)

// Member is one key of an object, in document order.
type Member struct {
	Key   string
	Value *Value
}

// Value is a parsed JSON document that keeps object members in the order
// they appear in the input.
type Value struct {
	Kind    Kind
	Bool    bool
	Number  string
	Str     string
	Items   []*Value
	Members []Member
}

// Field returns the first member named key.
func (v *Value) Field(key string) (*Value, bool) {
	if v == nil || v.Kind != KindObject {
		return nil, false
	}
	for _, m := range v.Members {
		if m.Key == key {
			return m.Value, true
		}
	}
	return nil, false
}

// Truthy reports whether v is neither null, false, zero, nor an empty string.
func (v *Value) Truthy() bool {
	if v == nil {
		return false
	}
	switch v.Kind {
	case KindNull:
		return false
	case KindBool:
		return v.Bool
	case KindNumber:
		return v.Number != "0" && v.Number != "-0" && v.Number != "0.0"
	case KindString:
		return v.Str != ""
	}
	return true
}

var errTrailingData = errors.New("imagegen: trailing data after json value")

// ParseValue parses a single JSON document.
func ParseValue(data []byte) (*Value, error) {
	iter := jsoniter.ParseBytes(jsoniter.ConfigDefault, data)
	v := readValue(iter)
	if iter.Error != nil && !errors.Is(iter.Error, io.EOF) {
		return nil, fmt.Errorf("imagegen: parse json: %w", iter.Error)
	}
	if v == nil {
		return nil, errors.New("imagegen: incomplete json document")
	}
	if next := iter.WhatIsNext(); next != jsoniter.InvalidValue || !errors.Is(iter.Error, io.EOF) {
		return nil, errTrailingData
	}
	return v, nil
}

func readValue(iter *jsoniter.Iterator) *Value {
	switch iter.WhatIsNext() {
	case jsoniter.StringValue:
		return &Value{Kind: KindString, Str: iter.ReadString()}
	case jsoniter.NumberValue:
		return &Value{Kind: KindNumber, Number: string(iter.ReadNumber())}
	case jsoniter.BoolValue:
		return &Value{Kind: KindBool, Bool: iter.ReadBool()}
	case jsoniter.NilValue:
		iter.ReadNil()
		return &Value{Kind: KindNull}
	case jsoniter.ArrayValue:
		v := &Value{Kind: KindArray}
		ok := iter.ReadArrayCB(func(it *jsoniter.Iterator) bool {
			item := readValue(it)
			if item == nil {
				return false
			}
			v.Items = append(v.Items, item)
			return true
		})
		if !ok {
			return nil
		}
		return v
	case jsoniter.ObjectValue:
		v := &Value{Kind: KindObject}
		ok := iter.ReadObjectCB(func(it *jsoniter.Iterator, key string) bool {
			member := readValue(it)
			if member == nil {
				return false
			}
			v.Members = append(v.Members, Member{Key: key, Value: member})
			return true
		})
		if !ok {
			return nil
		}
		return v
	}
	iter.ReportError("readValue", "unexpected token")
	return nil
}

// ExecutionID returns the engine execution id reported at the top level of
// a response, if any.
func ExecutionID(v *Value) string {
	for _, key := range []string{"execution_id", "executionId"} {
		if field, ok := v.Field(key); ok {
			switch field.Kind {
			case KindString:
				return field.Str
			case KindNumber:
				return field.Number
			}
		}
	}
	return ""
}
