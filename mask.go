// Copyright (c) 2024 the go-multex contributors.
//
// Permission is hereby granted, free of charge, to any person obtaining a copy of
// this software and associated documentation files (the "Software"), to deal in
// the Software without restriction, including without limitation the rights to
// use, copy, modify, merge, publish, distribute, sublicense, and/or sell copies
// of the Software, and to permit persons to whom the Software is furnished to do
// so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

package multex

import "fmt"

// ErrorKind distinguishes the two ways a Key's indices can fail to
// validate.
type ErrorKind int

const (
	// OutOfBounds means the index is not within [0, width) of the mask
	// domain it was validated against.
	OutOfBounds ErrorKind = iota
	// Duplicate means the index was already present earlier in the same
	// construction call.
	Duplicate
)

func (k ErrorKind) String() string {
	switch k {
	case OutOfBounds:
		return "OutOfBounds"
	case Duplicate:
		return "Duplicate"
	default:
		return "Unknown"
	}
}

// IndexError reports a rejected index at Key construction time. It is the
// only error kind this package produces; see spec §7.
type IndexError struct {
	Kind  ErrorKind
	Index int
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("multex: %s(%d)", e.Kind, e.Index)
}

// Mask is a finite set of distinct indices drawn from [0, wordBits*len(words)).
// It is the one representation backing every lock width (8/16/32/64/native)
// and every compound (multi-word) lock: a single atomic word is just a Mask
// with one element, and an N-word compound lock is a Mask with N elements.
// Collapsing the source's per-width types (u8/u16/u32/u64/usize) and its
// array/tuple-of-words types into one slice-backed representation is the
// generics-era analogue of the macro the Rust source uses to generate them.
type Mask struct {
	words    []uint64
	wordBits int
}

// NewMask returns the empty mask over wordCount words of wordBits logical
// bits each. wordBits must be one of 8, 16, 32, 64.
func NewMask(wordBits, wordCount int) Mask {
	if wordBits <= 0 || wordBits > 64 {
		panic("multex: wordBits must be in (0, 64]")
	}
	if wordCount <= 0 {
		panic("multex: wordCount must be positive")
	}
	return Mask{words: make([]uint64, wordCount), wordBits: wordBits}
}

// Width reports the total number of addressable indices in the mask's
// domain.
func (m Mask) Width() int { return m.wordBits * len(m.words) }

// WordBits reports the number of logical bits per backing word.
func (m Mask) WordBits() int { return m.wordBits }

// WordCount reports the number of backing words.
func (m Mask) WordCount() int { return len(m.words) }

func (m Mask) locate(index int) (word, bit int, ok bool) {
	if index < 0 || index >= m.Width() {
		return 0, 0, false
	}
	return index / m.wordBits, index % m.wordBits, true
}

// clone returns a deep copy so that callers can mutate without aliasing
// the receiver's backing array.
func (m Mask) clone() Mask {
	words := make([]uint64, len(m.words))
	copy(words, m.words)
	return Mask{words: words, wordBits: m.wordBits}
}

// Add sets index in the mask, returning the updated mask and whether the
// bit was newly set. An out-of-domain index is reported via IndexError
// rather than silently ignored or clamped (spec §9).
func (m Mask) Add(index int) (Mask, bool, error) {
	word, bit, ok := m.locate(index)
	if !ok {
		return m, false, &IndexError{Kind: OutOfBounds, Index: index}
	}
	next := m.clone()
	before := next.words[word]
	next.words[word] |= uint64(1) << uint(bit)
	return next, next.words[word] != before, nil
}

// Remove clears index in the mask, returning the updated mask and whether
// the bit had been set.
func (m Mask) Remove(index int) (Mask, bool) {
	word, bit, ok := m.locate(index)
	if !ok {
		return m, false
	}
	next := m.clone()
	before := next.words[word]
	next.words[word] &^= uint64(1) << uint(bit)
	return next, next.words[word] != before
}

// Contains reports whether index is set in the mask.
func (m Mask) Contains(index int) bool {
	word, bit, ok := m.locate(index)
	if !ok {
		return false
	}
	return m.words[word]&(uint64(1)<<uint(bit)) != 0
}

// IsEmpty reports whether the mask has no set bits.
func (m Mask) IsEmpty() bool {
	for _, w := range m.words {
		if w != 0 {
			return false
		}
	}
	return true
}

func (m Mask) zipWith(other Mask, op func(a, b uint64) uint64) Mask {
	if m.wordBits != other.wordBits || len(m.words) != len(other.words) {
		panic("multex: mask shape mismatch")
	}
	out := m.clone()
	for i := range out.words {
		out.words[i] = op(out.words[i], other.words[i])
	}
	return out
}

// Union returns the bitwise OR of two same-shaped masks.
func (m Mask) Union(other Mask) Mask {
	return m.zipWith(other, func(a, b uint64) uint64 { return a | b })
}

// Intersection returns the bitwise AND of two same-shaped masks.
func (m Mask) Intersection(other Mask) Mask {
	return m.zipWith(other, func(a, b uint64) uint64 { return a & b })
}

// Difference returns the bits of m that are not set in other.
func (m Mask) Difference(other Mask) Mask {
	return m.zipWith(other, func(a, b uint64) uint64 { return a &^ b })
}

// SymmetricDifference returns the bits set in exactly one of m or other.
func (m Mask) SymmetricDifference(other Mask) Mask {
	return m.zipWith(other, func(a, b uint64) uint64 { return a ^ b })
}
