// Package document provides an order-preserving JSON tree used for action
// payloads. Unknown fields survive a parse/serialize round trip unchanged.
package document

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
)

// Kind identifies the variant held by a Node.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindArray
	KindObject
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	default:
		return "null"
	}
}

// Member is a single key/value pair of an object node.
type Member struct {
	Key   string
	Value *Node
}

// Node is one value in a JSON tree. Object members keep their source order.
// A nil *Node behaves like an absent value for every accessor.
type Node struct {
	kind    Kind
	boolean bool
	number  string
	text    string
	items   []*Node
	members []Member
}

// Null returns a null node.
func Null() *Node { return &Node{kind: KindNull} }

// Bool returns a boolean node.
func Bool(v bool) *Node { return &Node{kind: KindBool, boolean: v} }

// String returns a string node.
func String(v string) *Node { return &Node{kind: KindString, text: v} }

// Int returns a number node holding an integer.
func Int(v int) *Node { return &Node{kind: KindNumber, number: strconv.Itoa(v)} }

// Number returns a number node from a JSON number literal. The literal is
// kept verbatim so precision is never lost.
func Number(literal json.Number) *Node { return &Node{kind: KindNumber, number: literal.String()} }

// Array returns an array node holding items.
func Array(items ...*Node) *Node {
	return &Node{kind: KindArray, items: append([]*Node(nil), items...)}
}

// Object returns an empty object node.
func Object() *Node { return &Node{kind: KindObject} }

// Kind returns the node kind. A nil node reports KindNull.
func (n *Node) Kind() Kind {
	if n == nil {
		return KindNull
	}
	return n.kind
}

// IsObject reports whether n is an object.
func (n *Node) IsObject() bool { return n.Kind() == KindObject }

// IsArray reports whether n is an array.
func (n *Node) IsArray() bool { return n.Kind() == KindArray }

// AsString returns the string value when n is a string.
func (n *Node) AsString() (string, bool) {
	if n.Kind() != KindString {
		return "", false
	}
	return n.text, true
}

// StringValue returns the string value or "" when n is not a string.
func (n *Node) StringValue() string {
	s, _ := n.AsString()
	return s
}

// AsBool returns the boolean value when n is a bool.
func (n *Node) AsBool() (bool, bool) {
	if n.Kind() != KindBool {
		return false, false
	}
	return n.boolean, true
}

// AsInt returns the number truncated to an int when n is a number.
func (n *Node) AsInt() (int, bool) {
	if n.Kind() != KindNumber {
		return 0, false
	}
	if i, err := strconv.ParseInt(n.number, 10, 64); err == nil {
		return int(i), true
	}
	if f, err := strconv.ParseFloat(n.number, 64); err == nil {
		return int(f), true
	}
	return 0, false
}

// AsFloat returns the number as a float64 when n is a number.
func (n *Node) AsFloat() (float64, bool) {
	if n.Kind() != KindNumber {
		return 0, false
	}
	f, err := strconv.ParseFloat(n.number, 64)
	return f, err == nil
}

// Len returns the number of array items or object members.
func (n *Node) Len() int {
	switch n.Kind() {
	case KindArray:
		return len(n.items)
	case KindObject:
		return len(n.members)
	}
	return 0
}

// Index returns the i-th array item, or nil when out of range.
func (n *Node) Index(i int) *Node {
	if n.Kind() != KindArray || i < 0 || i >= len(n.items) {
		return nil
	}
	return n.items[i]
}

// Items returns the array items. The returned slice must not be modified.
func (n *Node) Items() []*Node {
	if n.Kind() != KindArray {
		return nil
	}
	return n.items
}

// Append adds items to an array node.
func (n *Node) Append(items ...*Node) {
	if n.Kind() != KindArray {
		return
	}
	n.items = append(n.items, items...)
}

// Members returns the object members in order. The returned slice must not be modified.
func (n *Node) Members() []Member {
	if n.Kind() != KindObject {
		return nil
	}
	return n.members
}

// Keys returns the object keys in order.
func (n *Node) Keys() []string {
	members := n.Members()
	keys := make([]string, 0, len(members))
	for _, m := range members {
		keys = append(keys, m.Key)
	}
	return keys
}

// Get returns the value stored under key, or nil. Keys are case-sensitive.
func (n *Node) Get(key string) *Node {
	for _, m := range n.Members() {
		if m.Key == key {
			return m.Value
		}
	}
	return nil
}

// Path walks nested objects by key.
func (n *Node) Path(keys ...string) *Node {
	current := n
	for _, key := range keys {
		current = current.Get(key)
		if current == nil {
			return nil
		}
	}
	return current
}

// Set stores value under key, replacing an existing member in place or
// appending a new one.
func (n *Node) Set(key string, value *Node) {
	if n.Kind() != KindObject {
		return
	}
	if value == nil {
		value = Null()
	}
	for i := range n.members {
		if n.members[i].Key == key {
			n.members[i].Value = value
			return
		}
	}
	n.members = append(n.members, Member{Key: key, Value: value})
}

// Delete removes key from an object node.
func (n *Node) Delete(key string) {
	if n.Kind() != KindObject {
		return
	}
	for i := range n.members {
		if n.members[i].Key == key {
			n.members = append(n.members[:i], n.members[i+1:]...)
			return
		}
	}
}

// Clone returns a deep copy of n.
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	out := &Node{kind: n.kind, boolean: n.boolean, number: n.number, text: n.text}
	if n.items != nil {
		out.items = make([]*Node, len(n.items))
		for i, item := range n.items {
			out.items[i] = item.Clone()
		}
	}
	if n.members != nil {
		out.members = make([]Member, len(n.members))
		for i, m := range n.members {
			out.members[i] = Member{Key: m.Key, Value: m.Value.Clone()}
		}
	}
	return out
}

// Equal reports whether a and b are structurally equal, including member order.
func Equal(a, b *Node) bool {
	if a.Kind() != b.Kind() {
		return false
	}
	switch a.Kind() {
	case KindNull:
		return true
	case KindBool:
		return a.boolean == b.boolean
	case KindNumber:
		return a.number == b.number
	case KindString:
		return a.text == b.text
	case KindArray:
		if len(a.items) != len(b.items) {
			return false
		}
		for i := range a.items {
			if !Equal(a.items[i], b.items[i]) {
				return false
			}
		}
		return true
	case KindObject:
		if len(a.members) != len(b.members) {
			return false
		}
		for i := range a.members {
			if a.members[i].Key != b.members[i].Key || !Equal(a.members[i].Value, b.members[i].Value) {
				return false
			}
		}
		return true
	}
	return false
}

// Parse decodes a JSON document into a tree.
func Parse(data []byte) (*Node, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	node, err := decodeValue(dec)
	if err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("document: trailing data after JSON value")
	}
	return node, nil
}

// MustParse is Parse for literals known to be valid. It panics on error.
func MustParse(data string) *Node {
	n, err := Parse([]byte(data))
	if err != nil {
		panic(err)
	}
	return n
}

func decodeValue(dec *json.Decoder) (*Node, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("document: %w", err)
	}

	switch v := tok.(type) {
	case nil:
		return Null(), nil
	case bool:
		return Bool(v), nil
	case json.Number:
		return Number(v), nil
	case string:
		return String(v), nil
	case json.Delim:
		switch v {
		case '[':
			arr := &Node{kind: KindArray, items: []*Node{}}
			for dec.More() {
				item, err := decodeValue(dec)
				if err != nil {
					return nil, err
				}
				arr.items = append(arr.items, item)
			}
			if _, err := dec.Token(); err != nil {
				return nil, fmt.Errorf("document: %w", err)
			}
			return arr, nil
		case '{':
			obj := &Node{kind: KindObject, members: []Member{}}
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return nil, fmt.Errorf("document: %w", err)
				}
				key, ok := keyTok.(string)
				if !ok {
					return nil, fmt.Errorf("document: unexpected object key %v", keyTok)
				}
				value, err := decodeValue(dec)
				if err != nil {
					return nil, err
				}
				obj.Set(key, value)
			}
			if _, err := dec.Token(); err != nil {
				return nil, fmt.Errorf("document: %w", err)
			}
			return obj, nil
		}
	}
	return nil, fmt.Errorf("document: unexpected token %v", tok)
}

// MarshalJSON writes the tree as compact JSON, keeping member order and
// leaving HTML characters unescaped.
func (n *Node) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := n.encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// UnmarshalJSON replaces n with the parsed tree.
func (n *Node) UnmarshalJSON(data []byte) error {
	parsed, err := Parse(data)
	if err != nil {
		return err
	}
	*n = *parsed
	return nil
}

// String returns the compact JSON form of n.
func (n *Node) String() string {
	data, err := n.MarshalJSON()
	if err != nil {
		return ""
	}
	return string(data)
}

func (n *Node) encode(buf *bytes.Buffer) error {
	switch n.Kind() {
	case KindNull:
		buf.WriteString("null")
	case KindBool:
		buf.WriteString(strconv.FormatBool(n.boolean))
	case KindNumber:
		buf.WriteString(n.number)
	case KindString:
		return encodeString(buf, n.text)
	case KindArray:
		buf.WriteByte('[')
		for i, item := range n.items {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := item.encode(buf); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case KindObject:
		buf.WriteByte('{')
		for i, m := range n.members {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := encodeString(buf, m.Key); err != nil {
				return err
			}
			buf.WriteByte(':')
			if err := m.Value.encode(buf); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	}
	return nil
}

func encodeString(buf *bytes.Buffer, s string) error {
	var tmp bytes.Buffer
	enc := json.NewEncoder(&tmp)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return err
	}
	buf.Write(bytes.TrimRight(tmp.Bytes(), "\n"))
	return nil
}
