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

// Key is an immutable, validated description of a subset of a value's
// logical slots: the Mask it will attempt to acquire, plus a "gather
// description" — project — that turns the value's address and a
// per-acquisition filter into the reference aggregate the caller sees
// (spec §3 "Key").
//
// R is the projection's result shape: *F for a single slot, []*F for many
// homogeneous slots, a Pair/Triple/[]R for an aggregate of several keys.
// Constructing a Key never touches the lock state; only Multex's Lock*/
// TryLock* methods do.
type Key[T, R any] struct {
	mask    Mask
	project func(value *T, owns func(index int) bool) R
}

// Mask returns the index set this key will attempt to acquire.
func (k *Key[T, R]) Mask() Mask { return k.mask }

// once returns a filter suitable for passing to project: it answers true
// the first time it is asked about an index that is set in owned, and
// false for every subsequent ask (including a repeat ask about an index
// not in owned at all). This is spec §4.3's "Filter contract" — it is how
// a key that names the same slot more than once degrades to at most one
// non-nil projection (spec §8 property 4), even though §3 already rejects
// such keys at construction.
func once(owned Mask) func(int) bool {
	consumed := owned.clone()
	for i := range consumed.words {
		consumed.words[i] = 0
	}
	return func(index int) bool {
		if !owned.Contains(index) {
			return false
		}
		if consumed.Contains(index) {
			return false
		}
		consumed, _, _ = consumed.Add(index)
		return true
	}
}

// validate folds indices into a mask over the given width, rejecting
// out-of-bounds or duplicate indices at construction (spec §3, §7).
func validate(wordBits, wordCount int, indices []int) (Mask, error) {
	mask := NewMask(wordBits, wordCount)
	for _, index := range indices {
		next, changed, err := mask.Add(index)
		if err != nil {
			return Mask{}, err
		}
		if !changed {
			return Mask{}, &IndexError{Kind: Duplicate, Index: index}
		}
		mask = next
	}
	return mask, nil
}

// Index builds a Key selecting a single slot of a homogeneous container
// (spec §4.3 "usize value" indexer over a slice). An i outside the mask's
// domain is rejected with an IndexError. The projection is nil if i is
// outside the slice's actual length, or was filtered out (not held by the
// guard, or already consumed by an earlier key sharing the same guard).
func Index[T any](wordBits, wordCount, i int) (*Key[[]T, *T], error) {
	mask, err := validate(wordBits, wordCount, []int{i})
	if err != nil {
		return nil, err
	}
	return &Key[[]T, *T]{
		mask: mask,
		project: func(value *[]T, owns func(int) bool) *T {
			slice := *value
			if i < 0 || i >= len(slice) || !owns(i) {
				return nil
			}
			return &slice[i]
		},
	}, nil
}

// Indices builds a Key selecting several slots of a homogeneous
// container. Entries of the result are nil wherever Index would have
// returned nil for that position.
func Indices[T any](wordBits, wordCount int, is ...int) (*Key[[]T, []*T], error) {
	mask, err := validate(wordBits, wordCount, is)
	if err != nil {
		return nil, err
	}
	ordered := append([]int(nil), is...)
	return &Key[[]T, []*T]{
		mask: mask,
		project: func(value *[]T, owns func(int) bool) []*T {
			slice := *value
			out := make([]*T, len(ordered))
			for pos, i := range ordered {
				if i < 0 || i >= len(slice) || !owns(i) {
					continue
				}
				out[pos] = &slice[i]
			}
			return out
		},
	}, nil
}

// Field builds a Key selecting one field of a product type T at bit
// position bit, via a caller-supplied accessor. This is the idiomatic Go
// substitute for the source's compile-time `At<const N>` indexer (spec
// §4.3): the closure is the compile-time-known field position, proven
// disjoint from every other field by the compiler, without resorting to
// unsafe layout reconstruction (see SPEC_FULL.md translation decision 2).
func Field[T, F any](wordBits, wordCount, bit int, get func(*T) *F) (*Key[T, *F], error) {
	mask, err := validate(wordBits, wordCount, []int{bit})
	if err != nil {
		return nil, err
	}
	return &Key[T, *F]{
		mask: mask,
		project: func(value *T, owns func(int) bool) *F {
			if !owns(bit) {
				return nil
			}
			return get(value)
		},
	}, nil
}

// Pair is the result of the two-key tuple aggregator built by
// PairKey.
type Pair[A, B any] struct {
	First  A
	Second B
}

// PairKey combines two keys over the same value into one aggregate key
// (spec §4.3 tuple aggregator `(K1, K2)`). The two masks must come from
// non-overlapping bit sets; overlapping bits between k1 and k2 are
// rejected the same as a duplicate index within a single key.
func PairKey[T, A, B any](k1 *Key[T, A], k2 *Key[T, B]) (*Key[T, Pair[A, B]], error) {
	combined, err := combine(k1.mask, k2.mask)
	if err != nil {
		return nil, err
	}
	return &Key[T, Pair[A, B]]{
		mask: combined,
		project: func(value *T, owns func(int) bool) Pair[A, B] {
			return Pair[A, B]{
				First:  k1.project(value, owns),
				Second: k2.project(value, owns),
			}
		},
	}, nil
}

// Triple is the result of the three-key tuple aggregator built by
// TripleKey.
type Triple[A, B, C any] struct {
	First  A
	Second B
	Third  C
}

// TripleKey combines three keys over the same value into one aggregate
// key, exactly as PairKey does for two.
func TripleKey[T, A, B, C any](k1 *Key[T, A], k2 *Key[T, B], k3 *Key[T, C]) (*Key[T, Triple[A, B, C]], error) {
	pair, err := PairKey(k1, k2)
	if err != nil {
		return nil, err
	}
	combined, err := combine(pair.mask, k3.mask)
	if err != nil {
		return nil, err
	}
	return &Key[T, Triple[A, B, C]]{
		mask: combined,
		project: func(value *T, owns func(int) bool) Triple[A, B, C] {
			return Triple[A, B, C]{
				First:  k1.project(value, owns),
				Second: k2.project(value, owns),
				Third:  k3.project(value, owns),
			}
		},
	}, nil
}

// Group builds the general N-ary tuple aggregator (spec §4.3): every
// sub-key projects against the same value and the results are collected
// in order. Array is its alias for the fixed-size-array aggregator
// `[K; N]`; Go has no const-generic array length, so both use a slice
// (SPEC_FULL.md translation decision 4).
func Group[T, R any](keys ...*Key[T, R]) (*Key[T, []R], error) {
	if len(keys) == 0 {
		panic("multex: Group requires at least one key")
	}
	combined := keys[0].mask
	var err error
	for _, k := range keys[1:] {
		combined, err = combine(combined, k.mask)
		if err != nil {
			return nil, err
		}
	}
	return &Key[T, []R]{
		mask: combined,
		project: func(value *T, owns func(int) bool) []R {
			out := make([]R, len(keys))
			for i, k := range keys {
				out[i] = k.project(value, owns)
			}
			return out
		},
	}, nil
}

// Array is Group's alias for the §4.3 `[K; N]` aggregator.
func Array[T, R any](keys ...*Key[T, R]) (*Key[T, []R], error) {
	return Group(keys...)
}

// combine unions two same-shaped masks, rejecting any bit set in both (an
// overlapping aggregate is the multi-key analogue of a duplicate index).
func combine(a, b Mask) (Mask, error) {
	overlap := a.Intersection(b)
	if !overlap.IsEmpty() {
		for i := 0; i < overlap.Width(); i++ {
			if overlap.Contains(i) {
				return Mask{}, &IndexError{Kind: Duplicate, Index: i}
			}
		}
	}
	return a.Union(b), nil
}
