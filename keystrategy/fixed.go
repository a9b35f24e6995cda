package keystrategy

import "sealcore.io/errors"

// Fixed returns the same key for every label: it has no rotation and no
// reload. The tests and the sealctl command use it.
type Fixed struct {
	label Label
	key   []byte
}

var _ KeyStrategy = (*Fixed)(nil)

// NewFixed returns a Fixed strategy that always reports label/key as both
// its default and its answer to any Key lookup.
func NewFixed(label Label, key []byte) (*Fixed, error) {
	const op = errors.Op("NewFixed")
	if err := validateLabel(op, label); err != nil {
		return nil, err
	}
	if len(key) == 0 {
		return nil, errors.E("keystrategy", op, errors.ConstraintViolation, errors.Str("empty key"))
	}
	return &Fixed{label: label, key: key}, nil
}

// DefaultKey returns the fixed label and key.
func (f *Fixed) DefaultKey() (Label, []byte, error) {
	return f.label, f.key, nil
}

// Key returns the fixed key, regardless of label: Fixed has no rotation.
func (f *Fixed) Key(label Label) ([]byte, error) {
	return f.key, nil
}
