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

import (
	"sync/atomic"

	"github.com/nbtaylor-labs/multex/internal/futex"
)

// waitBit is the low bit of the compound lock's version counter (§4.2):
// set by a waiter immediately before parking, cleared by the releaser
// that wakes it.
const waitBit = uint32(1)

// seqStep is the increment applied to the version's sequence on a release
// that found the wait bit set. Stepping by 2 leaves the wait bit (bit 0)
// untouched.
const seqStep = uint32(2)

// lockState is the atomic state backing a Mask's domain: one atomic word
// per Mask word, plus (when there is more than one word) a version
// counter coordinating blocking waiters across words. A single-word lock
// is simply a lockState with one element and no version traffic at all.
type lockState struct {
	words    []atomic.Uint64
	wordBits int
	version  atomic.Uint32
}

func newLockState(wordBits, wordCount int) *lockState {
	return &lockState{
		words:    make([]atomic.Uint64, wordCount),
		wordBits: wordBits,
	}
}

// acquireOnce attempts a single non-blocking, all-or-nothing reservation
// of sub against state. It reports success and, on failure, the state
// value observed at the point of contention (used as the futex wait's
// expected value).
func acquireOnce(state *atomic.Uint64, sub uint64) (ok bool, observed uint64) {
	for {
		old := state.Load()
		if old&sub != 0 {
			return false, old
		}
		if state.CompareAndSwap(old, old|sub) {
			return true, old
		}
	}
}

// acquireWord implements spec §4.2 "Acquire (single word)".
func acquireWord(state *atomic.Uint64, sub uint64, partial, wait bool) (uint64, bool) {
	if sub == 0 {
		return 0, true
	}
	if partial {
		old := state.Or(sub)
		return (old ^ sub) & sub, true
	}
	if !wait {
		ok, _ := acquireOnce(state, sub)
		if !ok {
			return 0, false
		}
		return sub, true
	}
	for {
		ok, observed := acquireOnce(state, sub)
		if ok {
			return sub, true
		}
		futex.Wait64(state, observed, sub)
	}
}

// releaseWord implements spec §4.2 "Release (single word)".
func releaseWord(state *atomic.Uint64, sub uint64, wake bool) bool {
	if sub == 0 {
		return false
	}
	old := state.And(^sub)
	changed := old&sub != 0
	if wake && changed {
		futex.Wake64(state, sub)
	}
	return changed
}

func isLockedWord(state *atomic.Uint64, sub uint64, partial bool) bool {
	if sub == 0 {
		return false
	}
	v := state.Load()
	if partial {
		return v&sub != 0
	}
	return v&sub == sub
}

// Acquire reserves mask against the state, per spec §4.2. For a
// single-word lock this is exactly acquireWord. For a compound lock it is
// all-or-nothing: on first contended word, bits already taken in earlier
// words are released, and (when wait is requested) the caller parks on
// the version counter before restarting the whole acquisition.
func (s *lockState) Acquire(mask Mask, partial, wait bool) (Mask, bool) {
	if len(s.words) == 1 {
		got, ok := acquireWord(&s.words[0], mask.words[0], partial, wait)
		if !ok {
			return Mask{}, false
		}
		result := mask.clone()
		result.words[0] = got
		return result, true
	}

	for {
		var snapshot uint32
		if wait {
			snapshot = s.version.Load()
		}

		acquired := mask.clone()
		failedAt := -1
		for i, sub := range mask.words {
			got, ok := acquireWord(&s.words[i], sub, partial, false)
			if !ok {
				failedAt = i
				break
			}
			acquired.words[i] = got
		}

		if failedAt == -1 {
			return acquired, true
		}

		// Roll back everything taken in words [0, failedAt) and wake any
		// waiter that might now be able to proceed.
		s.releaseTaken(acquired, failedAt)

		if !wait {
			return Mask{}, false
		}

		current := s.version.Load()
		if current&^waitBit == snapshot&^waitBit {
			// No release has happened since the snapshot: safe to park.
			s.version.Or(waitBit)
			futex.Wait32(&s.version, snapshot|waitBit, bitForWord(failedAt))
		}
		// Otherwise a concurrent release already invalidated the
		// snapshot; loop immediately and retry the whole acquisition.
	}
}

// releaseTaken clears the words of acquired with index < upTo (used to
// unwind a partially-successful compound acquisition) through Release, so
// that waiters parked on the version counter for a word that actually
// changed are woken.
func (s *lockState) releaseTaken(acquired Mask, upTo int) {
	taken := NewMask(acquired.wordBits, len(acquired.words))
	copy(taken.words[:upTo], acquired.words[:upTo])
	s.Release(taken, true)
}

// Release clears mask against the state, per spec §4.2 "Release
// (compound)". wake controls whether waiters are signalled; every caller
// in this package, including the rollback path inside Acquire, passes
// true.
func (s *lockState) Release(mask Mask, wake bool) {
	if len(s.words) == 1 {
		releaseWord(&s.words[0], mask.words[0], wake)
		return
	}

	var changedWords uint64
	for i, sub := range mask.words {
		if releaseWord(&s.words[i], sub, false) {
			changedWords |= bitForWord(i)
		}
	}

	if changedWords == 0 || !wake {
		return
	}

	old := s.version.And(^waitBit)
	if old&waitBit != 0 {
		s.version.Add(seqStep)
	}
	futex.Wake32(&s.version, changedWords)
}

// IsLocked is an observational, non-linearizable check (spec §4.4
// is_locked): with partial=false it reports whether every bit in mask is
// held; with partial=true, whether any is.
func (s *lockState) IsLocked(mask Mask, partial bool) bool {
	if len(s.words) == 1 {
		return isLockedWord(&s.words[0], mask.words[0], partial)
	}
	for i, sub := range mask.words {
		if sub == 0 {
			continue
		}
		held := isLockedWord(&s.words[i], sub, partial)
		if partial && held {
			return true
		}
		if !partial && !held {
			return false
		}
	}
	// partial: no word had any held bit -> false.
	// !partial: every word with requested bits had all of them held -> true
	// (an empty mask reports false, as in the single-word case).
	return !partial && !mask.IsEmpty()
}

// bitForWord derives the wake channel for word index i, modulo 32 so
// every word (even beyond the 32nd, for very wide compound locks) maps to
// a bit the version's futex wait/wake pair can use.
func bitForWord(i int) uint64 {
	return uint64(1) << uint(i%32)
}
