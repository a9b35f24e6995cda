package idgen

import (
	"crypto/rand"
	"encoding/binary"

	"sealcore.io/errors"
)

// cons and vowel are the proquint consonant/vowel alphabets: a pronounceable
// five-letter encoding of a uint16, adapted from the teacher's key-naming
// helper.
var (
	cons  = []byte("bdfghjklmnprstvz")
	vowel = []byte("aiou")
)

func encodeProquint(x uint16) string {
	cons3 := x & 0x0f
	x >>= 4
	vow2 := x & 0x03
	x >>= 2
	cons2 := x & 0x0f
	x >>= 4
	vow1 := x & 0x03
	x >>= 2
	cons1 := x & 0x0f

	s := make([]byte, 5)
	s[0] = cons[cons1]
	s[1] = vowel[vow1]
	s[2] = cons[cons2]
	s[3] = vowel[vow2]
	s[4] = cons[cons3]
	return string(s)
}

// Random generates an identifier made of Words proquint blocks joined by
// '-', each drawn from a cryptographically secure RNG. Two blocks (10
// letters of entropy) is the default, giving roughly 32 bits.
type Random struct {
	Words int
}

var _ IdentifierGenerator = Random{}

const defaultWords = 2

// NextID returns a fresh pronounceable identifier.
func (r Random) NextID() (string, error) {
	words := r.Words
	if words <= 0 {
		words = defaultWords
	}
	id := make([]byte, 0, words*6)
	buf := make([]byte, 2)
	for i := 0; i < words; i++ {
		if _, err := rand.Read(buf); err != nil {
			return "", errors.E("idgen", errors.Op("Random.NextID"), errors.ComponentInitError, err)
		}
		if i > 0 {
			id = append(id, '-')
		}
		id = append(id, encodeProquint(binary.BigEndian.Uint16(buf))...)
	}
	return string(id), nil
}
