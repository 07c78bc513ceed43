// Package bitvec implements a packed bit vector backed by a []uint64
// word stream, addressed by a per-record (bitOffset, cardinality) pair
// — the layout spec §6 mandates for a forest's persisted factor-bit
// vector: a node's factor set occupies ceil(cardinality/64) consecutive
// words starting at bitOffset.
//
// Bit layout is LSB-first within each word, in the spirit of the packed,
// byte-region bitset layout in
// _examples/forestrie-go-merklelog/bloom/bloom4.go (header + per-filter
// bit regions addressed by an offset); unlike that bloom-filter codec,
// regions here are variable width (per node cardinality, not a fixed
// per-leaf filter size) and there is no domain reason to share its type.
package bitvec

import "encoding/binary"

const wordBits = 64

func wordCount(nBits int) int {
	return (nBits + wordBits - 1) / wordBits
}

// Jagged is a concatenated word stream holding many variable-width bit
// regions, one per tree node that carries a factor split, addressed by
// (bitOffset, cardinality) the way spec §6 describes the persisted
// factor-bit vector. bitOffset is a word index, not a bit index: a
// node's region occupies words[bitOffset : bitOffset+ceil(cardinality/64)).
type Jagged struct {
	words []uint64
}

// NewJagged returns an empty jagged bit-vector stream.
func NewJagged() *Jagged {
	return &Jagged{}
}

// Append reserves ceil(cardinality/64) fresh words, zeroed, and returns
// the word-index bitOffset at which the caller should address them via
// Set/Test.
func (j *Jagged) Append(cardinality int) (bitOffset int) {
	bitOffset = len(j.words)
	j.words = append(j.words, make([]uint64, wordCount(cardinality))...)
	return bitOffset
}

// AppendWords appends a foreign word stream verbatim (e.g. one fitted by
// an independent worker goroutine) and returns the word-index offset at
// which it now starts within j.
func (j *Jagged) AppendWords(words []uint64) (offset int) {
	offset = len(j.words)
	j.words = append(j.words, words...)
	return offset
}

// Set sets bit i (0-based within its node's region) of the region
// starting at word index bitOffset.
func (j *Jagged) Set(bitOffset, i int) {
	j.words[bitOffset+i/wordBits] |= 1 << uint(i%wordBits)
}

// Test reports whether bit i of the region at bitOffset is set.
func (j *Jagged) Test(bitOffset, i int) bool {
	return j.words[bitOffset+i/wordBits]&(1<<uint(i%wordBits)) != 0
}

// Words exposes the full concatenated word stream.
func (j *Jagged) Words() []uint64 { return j.words }

// AppendLE appends the entire word stream to dst as little-endian
// uint64s.
func (j *Jagged) AppendLE(dst []byte) []byte {
	buf := make([]byte, 8)
	for _, w := range j.words {
		binary.LittleEndian.PutUint64(buf, w)
		dst = append(dst, buf...)
	}
	return dst
}

// GobEncode/GobDecode export the otherwise-private word stream so a
// Jagged embedded in a gob-persisted Forest round-trips; encoding/gob
// silently drops unexported fields, so the zero-value shortcut the
// standard library offers for plain structs does not apply here.
func (j *Jagged) GobEncode() ([]byte, error) {
	return j.AppendLE(nil), nil
}

func (j *Jagged) GobDecode(data []byte) error {
	j.words = make([]uint64, len(data)/8)
	for i := range j.words {
		j.words[i] = binary.LittleEndian.Uint64(data[i*8 : i*8+8])
	}
	return nil
}
