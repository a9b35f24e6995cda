package ddf

import (
	"bytes"
	"strconv"

	"sealcore.io/errors"
)

// isSafeByte reports whether b may appear unescaped in a percent-encoded
// field: ASCII letters, digits, and the RFC 3986 "unreserved" punctuation
// set ('-', '_', '.', '~'). Every other byte, including all non-ASCII
// bytes, is replaced by its upper-case hex escape. This is an explicit
// design decision (see the Open Questions discussion in the design
// document): the source material only specifies "a small safe punctuation
// set" without naming it.
func isSafeByte(b byte) bool {
	switch {
	case b >= 'a' && b <= 'z', b >= 'A' && b <= 'Z', b >= '0' && b <= '9':
		return true
	case b == '-' || b == '_' || b == '.' || b == '~':
		return true
	}
	return false
}

const upperHex = "0123456789ABCDEF"

// EncodeBytes percent-encodes raw bytes for the wire: any byte outside the
// safe set becomes %HH (upper-case hex of the raw byte). Bytes are never
// reinterpreted as code points, so a multi-byte UTF-8 sequence yields one
// %HH triplet per byte.
func EncodeBytes(b []byte) string {
	var out bytes.Buffer
	out.Grow(len(b))
	for _, c := range b {
		if isSafeByte(c) {
			out.WriteByte(c)
			continue
		}
		out.WriteByte('%')
		out.WriteByte(upperHex[c>>4])
		out.WriteByte(upperHex[c&0x0f])
	}
	return out.String()
}

// DecodeBytes reverses EncodeBytes. It is the exact inverse on every
// well-formed input: decode(encode(b)) == b for every byte sequence b.
func DecodeBytes(s string) ([]byte, error) {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '%' {
			out = append(out, c)
			continue
		}
		if i+2 >= len(s) {
			return nil, errors.E("ddf", errors.Op("DecodeBytes"), errors.DataSealerFailure,
				errors.Str("truncated percent escape"))
		}
		hi, ok1 := hexVal(s[i+1])
		lo, ok2 := hexVal(s[i+2])
		if !ok1 || !ok2 {
			return nil, errors.E("ddf", errors.Op("DecodeBytes"), errors.DataSealerFailure,
				errors.Str("invalid percent escape"))
		}
		out = append(out, hi<<4|lo)
		i += 2
	}
	return out, nil
}

func hexVal(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}

// Serialize renders n and its descendants into the DDF binary wire format
// described in the design document: TYPE_BYTE NAME_FIELD VALUE_FIELD per
// node, with structs and lists recursively containing their children.
// Pointer nodes (and the null sentinel) are skipped, per PointerPolicy.
func Serialize(n *Node) []byte {
	var buf bytes.Buffer
	writeNode(&buf, n)
	return buf.Bytes()
}

func writeNode(buf *bytes.Buffer, n *Node) {
	if n == nil || n.kind == Pointer || n.kind == null {
		return
	}
	switch n.kind {
	case Empty:
		buf.WriteByte('e')
		writeNameField(buf, n.name)
	case String:
		buf.WriteByte('s')
		writeNameField(buf, n.name)
		writeQuoted(buf, n.str)
	case StringUnsafe:
		buf.WriteByte('u')
		writeNameField(buf, n.name)
		writeQuoted(buf, n.str)
	case Int:
		buf.WriteByte('i')
		writeNameField(buf, n.name)
		buf.WriteString(strconv.FormatInt(int64(n.i), 10))
	case Float:
		buf.WriteByte('f')
		writeNameField(buf, n.name)
		buf.WriteString(strconv.FormatFloat(n.f, 'g', -1, 64))
	case Struct:
		buf.WriteByte('{')
		writeNameField(buf, n.name)
		for _, c := range n.children {
			writeNode(buf, c)
		}
		buf.WriteByte('}')
	case List:
		buf.WriteByte('[')
		writeNameField(buf, n.name)
		for _, c := range n.children {
			writeNode(buf, c)
		}
		buf.WriteByte(']')
	}
}

// writeNameField renders NAME_FIELD: a quoted, percent-encoded name
// followed by a single space, or the literal "" followed by a space when
// the name is absent.
func writeNameField(buf *bytes.Buffer, name string) {
	buf.WriteByte('"')
	if name != "" {
		buf.WriteString(EncodeBytes([]byte(name)))
	}
	buf.WriteByte('"')
	buf.WriteByte(' ')
}

func writeQuoted(buf *bytes.Buffer, s string) {
	buf.WriteByte('"')
	buf.WriteString(EncodeBytes([]byte(s)))
	buf.WriteByte('"')
}
