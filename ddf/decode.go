package ddf

import (
	"strconv"

	"sealcore.io/errors"
)

// Deserialize parses the DDF binary wire format produced by Serialize. It
// is a single pass over data and is the exact inverse of Serialize on
// every well-formed, pointer-free input.
func Deserialize(data []byte) (*Node, error) {
	d := &decoder{data: data}
	n, err := d.parseNode()
	if err != nil {
		return nil, err
	}
	if d.pos != len(d.data) {
		return nil, d.errorf("trailing data after root node")
	}
	return n, nil
}

type decoder struct {
	data []byte
	pos  int
}

func (d *decoder) errorf(msg string) error {
	return errors.E("ddf", errors.Op("Deserialize"), errors.DataSealerFailure, errors.Str(msg))
}

func (d *decoder) parseNode() (*Node, error) {
	if d.pos >= len(d.data) {
		return nil, d.errorf("unexpected end of input")
	}
	typeByte := d.data[d.pos]
	d.pos++

	name, err := d.parseNameField()
	if err != nil {
		return nil, err
	}

	switch typeByte {
	case 'e':
		return &Node{kind: Empty, name: name}, nil
	case 's':
		raw, err := d.parseQuoted()
		if err != nil {
			return nil, err
		}
		return &Node{kind: String, name: name, str: string(raw)}, nil
	case 'u':
		raw, err := d.parseQuoted()
		if err != nil {
			return nil, err
		}
		return &Node{kind: StringUnsafe, name: name, str: string(raw)}, nil
	case 'i':
		v, err := d.scanInt()
		if err != nil {
			return nil, err
		}
		return &Node{kind: Int, name: name, i: v}, nil
	case 'f':
		v, err := d.scanFloat()
		if err != nil {
			return nil, err
		}
		return &Node{kind: Float, name: name, f: v}, nil
	case '{':
		return d.parseContainer(Struct, name, '}')
	case '[':
		return d.parseContainer(List, name, ']')
	}
	return nil, d.errorf("unrecognized type byte " + string(typeByte))
}

func (d *decoder) parseContainer(kind Kind, name string, closer byte) (*Node, error) {
	n := &Node{kind: kind, name: name}
	if kind == Struct {
		n.index = map[string]int{}
	}
	for {
		if d.pos >= len(d.data) {
			return nil, d.errorf("unterminated container")
		}
		if d.data[d.pos] == closer {
			d.pos++
			return n, nil
		}
		child, err := d.parseNode()
		if err != nil {
			return nil, err
		}
		child.parent = n
		if kind == Struct {
			n.index[child.name] = len(n.children)
		}
		n.children = append(n.children, child)
	}
}

// parseNameField consumes NAME_FIELD: a quoted, percent-encoded token
// followed by a single space.
func (d *decoder) parseNameField() (string, error) {
	raw, err := d.parseQuoted()
	if err != nil {
		return "", err
	}
	if d.pos >= len(d.data) || d.data[d.pos] != ' ' {
		return "", d.errorf("missing space after name field")
	}
	d.pos++
	return string(raw), nil
}

// parseQuoted consumes a "..." token, where the content is percent-encoded
// and therefore never itself contains a literal quote.
func (d *decoder) parseQuoted() ([]byte, error) {
	if d.pos >= len(d.data) || d.data[d.pos] != '"' {
		return nil, d.errorf("expected opening quote")
	}
	d.pos++
	start := d.pos
	for d.pos < len(d.data) && d.data[d.pos] != '"' {
		d.pos++
	}
	if d.pos >= len(d.data) {
		return nil, d.errorf("unterminated quoted field")
	}
	encoded := string(d.data[start:d.pos])
	d.pos++ // closing quote
	return DecodeBytes(encoded)
}

func isDigitByte(b byte) bool { return b >= '0' && b <= '9' }

func (d *decoder) scanInt() (int32, error) {
	start := d.pos
	if d.pos < len(d.data) && d.data[d.pos] == '-' {
		d.pos++
	}
	digitsStart := d.pos
	for d.pos < len(d.data) && isDigitByte(d.data[d.pos]) {
		d.pos++
	}
	if d.pos == digitsStart {
		return 0, d.errorf("malformed integer literal")
	}
	v, err := strconv.ParseInt(string(d.data[start:d.pos]), 10, 32)
	if err != nil {
		return 0, d.errorf("malformed integer literal: " + err.Error())
	}
	return int32(v), nil
}

func (d *decoder) scanFloat() (float64, error) {
	start := d.pos
	if d.pos < len(d.data) && d.data[d.pos] == '-' {
		d.pos++
	}
	digitsStart := d.pos
	for d.pos < len(d.data) && isDigitByte(d.data[d.pos]) {
		d.pos++
	}
	if d.pos == digitsStart {
		return 0, d.errorf("malformed float literal")
	}
	if d.pos < len(d.data) && d.data[d.pos] == '.' {
		d.pos++
		fracStart := d.pos
		for d.pos < len(d.data) && isDigitByte(d.data[d.pos]) {
			d.pos++
		}
		if d.pos == fracStart {
			return 0, d.errorf("malformed float literal")
		}
	}
	if d.pos < len(d.data) && (d.data[d.pos] == 'e' || d.data[d.pos] == 'E') {
		save := d.pos
		d.pos++
		if d.pos < len(d.data) && (d.data[d.pos] == '+' || d.data[d.pos] == '-') {
			d.pos++
		}
		expStart := d.pos
		for d.pos < len(d.data) && isDigitByte(d.data[d.pos]) {
			d.pos++
		}
		if d.pos == expStart {
			// Not a valid exponent after all; back off so the 'e'
			// belongs to whatever follows (e.g. the next node's
			// Empty type byte).
			d.pos = save
		}
	}
	v, err := strconv.ParseFloat(string(d.data[start:d.pos]), 64)
	if err != nil {
		return 0, d.errorf("malformed float literal: " + err.Error())
	}
	return v, nil
}
