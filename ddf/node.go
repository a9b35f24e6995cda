// Copyright 2024 The sealcore Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package ddf implements the Dynamic Dataflow value tree: a small
// self-describing tagged value used to carry ad hoc structured data between
// components that do not share a compiled schema, such as the custom object
// handed to a ScriptedKeyStrategy's script.
//
// A Node is not safe for concurrent use. Callers must externally serialize
// access to a given tree; distinct trees are independent.
package ddf

import (
	"strconv"
	"strings"

	"sealcore.io/errors"
)

// Kind is the tag identifying what a Node holds. The numeric values are the
// data-model type tags; Serialize writes each kind as a single ASCII letter
// rather than as this number.
type Kind uint8

// Kinds of node, with their type tag values.
const (
	Empty        Kind = 0
	String       Kind = 1 // safe, UTF-8
	Int          Kind = 2 // 32-bit signed
	Float        Kind = 3 // 64-bit IEEE double
	Struct       Kind = 4 // insertion-ordered name -> child mapping
	List         Kind = 5 // ordered sequence of children
	Pointer      Kind = 6 // opaque in-process reference, never serialized
	StringUnsafe Kind = 7 // byte string of unknown encoding

	// null is a distinguished non-wire state meaning "no type at all",
	// produced by Destroy and by a failed GetMember lookup. It is not one
	// of the eight wire tags.
	null Kind = 255
)

// maxNameBytes is the truncation limit for a node's name field.
const maxNameBytes = 255

// Node is a single value in a DDF tree: an optional name, an optional
// parent back-reference, a type tag, and a type-specific value.
type Node struct {
	name   string
	parent *Node
	kind   Kind

	str string      // String, StringUnsafe
	i   int32       // Int
	f   float64     // Float
	ptr interface{} // Pointer

	children []*Node        // Struct, List (insertion order)
	index    map[string]int // Struct only: name -> position in children
}

// New returns a fresh, unnamed Empty node.
func New() *Node {
	return &Node{}
}

// NewNamed returns a fresh Empty node whose name is set to name,
// truncated to maxNameBytes bytes if necessary.
func NewNamed(name string) *Node {
	n := &Node{}
	n.setName(name)
	return n
}

func (n *Node) setName(name string) {
	if len(name) > maxNameBytes {
		name = truncateUTF8(name, maxNameBytes)
	}
	n.name = name
}

// truncateUTF8 trims s to at most max bytes without splitting a multi-byte
// rune in half.
func truncateUTF8(s string, max int) string {
	if len(s) <= max {
		return s
	}
	b := s[:max]
	for len(b) > 0 && !isRuneStartByte(s, len(b)) {
		b = b[:len(b)-1]
	}
	return b
}

func isRuneStartByte(s string, i int) bool {
	if i == 0 || i == len(s) {
		return true
	}
	c := s[i]
	return c&0xC0 != 0x80
}

// Name returns the node's name, or "" if it has none.
func (n *Node) Name() string { return n.name }

// Parent returns the node's current container, or nil if the node is
// free-standing.
func (n *Node) Parent() *Node { return n.parent }

// Kind returns the node's type tag.
func (n *Node) Kind() Kind { return n.kind }

// IsEmpty reports whether n holds the Empty type.
func (n *Node) IsEmpty() bool { return n.kind == Empty }

// IsString reports whether n holds a safe (UTF-8) string.
func (n *Node) IsString() bool { return n.kind == String }

// IsUnsafeString reports whether n holds a byte string of unknown encoding.
func (n *Node) IsUnsafeString() bool { return n.kind == StringUnsafe }

// IsInt reports whether n holds a 32-bit integer.
func (n *Node) IsInt() bool { return n.kind == Int }

// IsFloat reports whether n holds a 64-bit float.
func (n *Node) IsFloat() bool { return n.kind == Float }

// IsStruct reports whether n is a struct container.
func (n *Node) IsStruct() bool { return n.kind == Struct }

// IsList reports whether n is a list container.
func (n *Node) IsList() bool { return n.kind == List }

// IsPointer reports whether n holds an opaque pointer value.
func (n *Node) IsPointer() bool { return n.kind == Pointer }

// IsNull reports whether n is the null sentinel: "no type at all",
// produced only by Destroy or returned by a failed GetMember lookup.
func (n *Node) IsNull() bool { return n.kind == null }

// releaseChildren detaches and destroys any children currently held by n,
// in preparation for n changing kind.
func (n *Node) releaseChildren() {
	for _, c := range n.children {
		c.parent = nil
		c.destroyInPlace()
	}
	n.children = nil
	n.index = nil
}

// SetString atomically replaces n's type and value with a safe UTF-8
// string. Any prior children are released.
func (n *Node) SetString(s string) *Node {
	n.releaseChildren()
	n.kind = String
	n.str = s
	return n
}

// SetUnsafeString atomically replaces n's type and value with a byte string
// of unspecified encoding. Any prior children are released.
func (n *Node) SetUnsafeString(b []byte) *Node {
	n.releaseChildren()
	n.kind = StringUnsafe
	n.str = string(b)
	return n
}

// SetInt atomically replaces n's type and value with a 32-bit integer. Any
// prior children are released.
func (n *Node) SetInt(v int32) *Node {
	n.releaseChildren()
	n.kind = Int
	n.i = v
	return n
}

// SetFloat atomically replaces n's type and value with a 64-bit float. Any
// prior children are released.
func (n *Node) SetFloat(v float64) *Node {
	n.releaseChildren()
	n.kind = Float
	n.f = v
	return n
}

// SetPointer atomically replaces n's type and value with an opaque
// in-process object reference. Pointer nodes are never serialized. Any
// prior children are released.
func (n *Node) SetPointer(v interface{}) *Node {
	n.releaseChildren()
	n.kind = Pointer
	n.ptr = v
	return n
}

// MakeStruct converts n to an empty struct container, releasing any prior
// children or scalar value.
func (n *Node) MakeStruct() *Node {
	n.releaseChildren()
	n.kind = Struct
	n.children = nil
	n.index = map[string]int{}
	return n
}

// MakeList converts n to an empty list container, releasing any prior
// children or scalar value.
func (n *Node) MakeList() *Node {
	n.releaseChildren()
	n.kind = List
	n.children = nil
	n.index = nil
	return n
}

// StringValue returns n's string value and true if n is String or
// StringUnsafe.
func (n *Node) StringValue() (string, bool) {
	if n.kind == String || n.kind == StringUnsafe {
		return n.str, true
	}
	return "", false
}

// IntValue returns n's value coerced to int32: direct if n is Int, parsed
// if n is a String, truncated if n is Float, or the element count if n is
// Struct or List. Returns false if no coercion applies.
func (n *Node) IntValue() (int32, bool) {
	switch n.kind {
	case Int:
		return n.i, true
	case Float:
		return int32(n.f), true
	case String, StringUnsafe:
		v, err := strconv.ParseInt(strings.TrimSpace(n.str), 10, 32)
		if err != nil {
			return 0, false
		}
		return int32(v), true
	case Struct, List:
		return int32(len(n.children)), true
	}
	return 0, false
}

// FloatValue returns n's value coerced to float64, with the same coercion
// rules as IntValue.
func (n *Node) FloatValue() (float64, bool) {
	switch n.kind {
	case Float:
		return n.f, true
	case Int:
		return float64(n.i), true
	case String, StringUnsafe:
		v, err := strconv.ParseFloat(strings.TrimSpace(n.str), 64)
		if err != nil {
			return 0, false
		}
		return v, true
	case Struct, List:
		return float64(len(n.children)), true
	}
	return 0, false
}

// PointerValue returns n's pointer value and true if n is Pointer.
func (n *Node) PointerValue() (interface{}, bool) {
	if n.kind == Pointer {
		return n.ptr, true
	}
	return nil, false
}

// Children returns a copy of n's direct children in order, or nil if n is
// not a Struct or List.
func (n *Node) Children() []*Node {
	if n.kind != Struct && n.kind != List {
		return nil
	}
	out := make([]*Node, len(n.children))
	copy(out, n.children)
	return out
}

// Len returns the number of direct children, or 0 if n is not a container.
func (n *Node) Len() int {
	if n.kind != Struct && n.kind != List {
		return 0
	}
	return len(n.children)
}

// isAncestorOf reports whether n is an ancestor of candidate (or the same
// node), walking candidate's parent chain.
func (n *Node) isAncestorOf(candidate *Node) bool {
	for c := candidate; c != nil; c = c.parent {
		if c == n {
			return true
		}
	}
	return false
}

// Add appends child on a List, or upserts child on a Struct keyed by the
// child's name (replacing and destroying any prior value under that name).
// It is a no-op if the receiver is not a Struct or List, if child is
// already the direct child of the receiver, or if child is an ancestor of
// the receiver (which would create a cycle).
func (n *Node) Add(child *Node) *Node {
	if child == nil || child.parent == n {
		return n
	}
	if n.kind != Struct && n.kind != List {
		return n
	}
	if child.isAncestorOf(n) {
		return n
	}
	child.Remove()
	switch n.kind {
	case List:
		child.parent = n
		n.children = append(n.children, child)
	case Struct:
		if i, ok := n.index[child.name]; ok {
			old := n.children[i]
			old.parent = nil
			old.destroyInPlace()
			child.parent = n
			n.children[i] = child
		} else {
			child.parent = n
			n.index[child.name] = len(n.children)
			n.children = append(n.children, child)
		}
	}
	return n
}

// AddBefore inserts child on a List immediately before ref, which must
// already be a direct child of n. It is a no-op if n is not a List or ref
// is not found among n's children.
func (n *Node) AddBefore(child, ref *Node) *Node {
	n.insertRelative(child, ref, 0)
	return n
}

// AddAfter inserts child on a List immediately after ref, which must
// already be a direct child of n. It is a no-op if n is not a List or ref
// is not found among n's children.
func (n *Node) AddAfter(child, ref *Node) *Node {
	n.insertRelative(child, ref, 1)
	return n
}

func (n *Node) insertRelative(child, ref *Node, offset int) {
	if n.kind != List || child == nil || ref == nil || ref.parent != n {
		return
	}
	if child.isAncestorOf(n) || child == ref {
		return
	}
	// Detach child first so ref's position reflects the list without it.
	child.Remove()
	pos := -1
	for i, c := range n.children {
		if c == ref {
			pos = i
			break
		}
	}
	if pos < 0 {
		return
	}
	at := pos + offset
	n.children = append(n.children, nil)
	copy(n.children[at+1:], n.children[at:])
	n.children[at] = child
	child.parent = n
}

// Remove detaches n from its current parent, if any, and returns n.
func (n *Node) Remove() *Node {
	p := n.parent
	if p == nil {
		return n
	}
	for i, c := range p.children {
		if c == n {
			p.children = append(p.children[:i], p.children[i+1:]...)
			break
		}
	}
	if p.kind == Struct {
		p.reindex()
	}
	n.parent = nil
	return n
}

func (p *Node) reindex() {
	if p.kind != Struct {
		return
	}
	p.index = make(map[string]int, len(p.children))
	for i, c := range p.children {
		p.index[c.name] = i
	}
}

// Destroy empties n, releasing any children, and transitions it to the
// null sentinel state. Destroy is idempotent. If n is currently a child of
// a container, it is removed first.
func (n *Node) Destroy() {
	n.Remove()
	n.destroyInPlace()
}

func (n *Node) destroyInPlace() {
	if n.kind == null {
		return
	}
	n.releaseChildren()
	n.kind = null
	n.str = ""
	n.i = 0
	n.f = 0
	n.ptr = nil
}

// Equal reports whether a and b are structurally equal: same name, same
// type, and recursively equal value. Parent pointers are not part of
// identity. A null node (see IsNull) never compares equal to anything,
// including another null node.
func Equal(a, b *Node) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.kind == null || b.kind == null {
		return false
	}
	if a.name != b.name || a.kind != b.kind {
		return false
	}
	switch a.kind {
	case Empty:
		return true
	case String, StringUnsafe:
		return a.str == b.str
	case Int:
		return a.i == b.i
	case Float:
		return a.f == b.f
	case Pointer:
		return a.ptr == b.ptr
	case Struct, List:
		if len(a.children) != len(b.children) {
			return false
		}
		for i := range a.children {
			if !Equal(a.children[i], b.children[i]) {
				return false
			}
		}
		return true
	}
	return false
}

// badArg wraps a constraint violation raised by the ddf package.
func badArg(op errors.Op, msg string) error {
	return errors.E("ddf", op, errors.ConstraintViolation, errors.Str(msg))
}
