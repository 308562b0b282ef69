package bytecode

import (
	"math"
	"strconv"
)

// ValueType tags the variants of a Value.
type ValueType byte

const (
	ValNil ValueType = iota
	ValBool
	ValNumber
	ValObj
)

// Value is the tagged union the VM computes with: a 64-bit number, a
// boolean, nil, or a reference to a heap object. Values are small and
// copied freely between stack slots, constants and table entries.
//
// Equality is structural for numbers, booleans and nil, and identity for
// heap references. Because strings are interned, identity equality is
// byte equality for them too.
type Value struct {
	Type    ValueType
	number  float64
	boolean bool
	obj     Object
}

// NilValue returns the nil value
func NilValue() Value {
	return Value{Type: ValNil}
}

// BoolValue wraps a boolean
func BoolValue(b bool) Value {
	return Value{Type: ValBool, boolean: b}
}

// NumberValue wraps a number
func NumberValue(n float64) Value {
	return Value{Type: ValNumber, number: n}
}

// ObjValue wraps a heap object reference
func ObjValue(o Object) Value {
	return Value{Type: ValObj, obj: o}
}

// IsNil reports whether the value is nil
func (v Value) IsNil() bool { return v.Type == ValNil }

// IsBool reports whether the value is a boolean
func (v Value) IsBool() bool { return v.Type == ValBool }

// IsNumber reports whether the value is a number
func (v Value) IsNumber() bool { return v.Type == ValNumber }

// IsObj reports whether the value is a heap reference
func (v Value) IsObj() bool { return v.Type == ValObj }

// AsBool returns the boolean payload
func (v Value) AsBool() bool { return v.boolean }

// AsNumber returns the number payload
func (v Value) AsNumber() float64 { return v.number }

// AsObj returns the heap object payload
func (v Value) AsObj() Object { return v.obj }

// AsString returns the payload as a string object, or nil if it is not one
func (v Value) AsString() *ObjString {
	if v.Type != ValObj {
		return nil
	}
	s, _ := v.obj.(*ObjString)
	return s
}

// IsFalsey reports Lox truthiness: nil and false are falsey, everything
// else (including 0 and "") is truthy.
func (v Value) IsFalsey() bool {
	return v.Type == ValNil || (v.Type == ValBool && !v.boolean)
}

// Equals implements Lox equality: structural for primitives, identity for
// heap references.
func (v Value) Equals(other Value) bool {
	if v.Type != other.Type {
		return false
	}
	switch v.Type {
	case ValNil:
		return true
	case ValBool:
		return v.boolean == other.boolean
	case ValNumber:
		return v.number == other.number
	case ValObj:
		return v.obj == other.obj
	default:
		return false
	}
}

// String renders the value the way the print statement shows it.
// Numbers use the shortest representation that round-trips, so integral
// values print without a decimal point.
func (v Value) String() string {
	switch v.Type {
	case ValNil:
		return "nil"
	case ValBool:
		if v.boolean {
			return "true"
		}
		return "false"
	case ValNumber:
		return strconv.FormatFloat(v.number, 'g', -1, 64)
	case ValObj:
		return v.obj.String()
	default:
		return "<invalid>"
	}
}

// HashString computes the 32-bit FNV-1a hash of a string. Every ObjString
// caches this at allocation; the table and the intern pool reuse it.
func HashString(s string) uint32 {
	var hash uint32 = 2166136261
	for i := 0; i < len(s); i++ {
		hash ^= uint32(s[i])
		hash *= 16777619
	}
	return hash
}

// hashValue hashes a value for use as a table key. Interned strings use
// their cached hash; other object kinds all land in one bucket, which is
// acceptable because in practice every key is an interned string.
func hashValue(v Value) uint32 {
	switch v.Type {
	case ValNil:
		return 7
	case ValBool:
		if v.boolean {
			return 3
		}
		return 5
	case ValNumber:
		bits := math.Float64bits(v.number)
		return uint32(bits) ^ uint32(bits>>32)
	case ValObj:
		if s, ok := v.obj.(*ObjString); ok {
			return s.Hash
		}
		return 0
	default:
		return 0
	}
}
