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

// Multex is the facade container: it owns both the lock state and the
// guarded value (spec §3 "Ownership"). The zero value is not usable; use
// New or one of the New8/New16/New32/New64 or New8N/New16N/New32N/New64N
// constructors.
type Multex[T any] struct {
	state     *lockState
	wordBits  int
	wordCount int
	value     T
}

// New constructs a Multex whose lock spans wordCount words of wordBits
// logical bits each (so Width() == wordBits*wordCount), guarding value.
func New[T any](wordBits, wordCount int, value T) *Multex[T] {
	return &Multex[T]{
		state:     newLockState(wordBits, wordCount),
		wordBits:  wordBits,
		wordCount: wordCount,
		value:     value,
	}
}

// New8 constructs a single-word, 8-bit-wide Multex (spec's Multex8).
func New8[T any](value T) *Multex[T] { return New[T](8, 1, value) }

// New16 constructs a single-word, 16-bit-wide Multex (spec's Multex16).
func New16[T any](value T) *Multex[T] { return New[T](16, 1, value) }

// New32 constructs a single-word, 32-bit-wide Multex (spec's Multex32).
func New32[T any](value T) *Multex[T] { return New[T](32, 1, value) }

// New64 constructs a single-word, 64-bit-wide Multex (spec's Multex64).
func New64[T any](value T) *Multex[T] { return New[T](64, 1, value) }

// New8N, New16N, New32N, New64N construct a wordCount-word compound
// Multex of the given per-word width (spec's Multex8N/Multex16N/
// Multex32N/Multex64N).
func New8N[T any](wordCount int, value T) *Multex[T]  { return New[T](8, wordCount, value) }
func New16N[T any](wordCount int, value T) *Multex[T] { return New[T](16, wordCount, value) }
func New32N[T any](wordCount int, value T) *Multex[T] { return New[T](32, wordCount, value) }
func New64N[T any](wordCount int, value T) *Multex[T] { return New[T](64, wordCount, value) }

// Width reports the total number of addressable slot indices.
func (m *Multex[T]) Width() int { return m.wordBits * m.wordCount }

func (m *Multex[T]) allMask() Mask {
	all := NewMask(m.wordBits, m.wordCount)
	full := uint64(1)<<uint(m.wordBits) - 1
	if m.wordBits == 64 {
		full = ^uint64(0)
	}
	for i := range all.words {
		all.words[i] = full
	}
	return all
}

// IntoInner consumes the Multex and returns the guarded value. It does
// not check whether the lock is currently held; callers are responsible
// for ensuring no guard is live, exactly as spec §4.4 describes.
func (m *Multex[T]) IntoInner() T { return m.value }

// GetMut returns a reference to the guarded value, bypassing the lock
// entirely. It neither checks nor takes the lock state, so the reference
// is unique only if no guard is live and no other goroutine uses m.
func (m *Multex[T]) GetMut() *T { return &m.value }

// GetMutWith projects key's slots out of the value without touching the
// lock state (spec's original_source Multex::get_mut_with, dropped by the
// spec.md distillation — see SPEC_FULL.md "Supplemented from
// original_source").
func GetMutWith[T, R any](m *Multex[T], key *Key[T, R]) R {
	return key.project(&m.value, once(key.mask))
}

// Lock blocks until every slot of m is free, then returns a guard holding
// a unique reference to the whole value.
func (m *Multex[T]) Lock() *Guard[*T] {
	acquired, ok := m.state.Acquire(m.allMask(), false, true)
	if !ok {
		panic("multex: blocking Lock reported failure")
	}
	return &Guard[*T]{Value: &m.value, mask: acquired, state: m.state}
}

// TryLock is Lock's non-blocking form: it returns ok == false if any slot
// was already held.
func (m *Multex[T]) TryLock() (guard *Guard[*T], ok bool) {
	acquired, ok := m.state.Acquire(m.allMask(), false, false)
	if !ok {
		return nil, false
	}
	return &Guard[*T]{Value: &m.value, mask: acquired, state: m.state}, true
}

// IsLocked is an observational, non-linearizable check (spec §4.4): with
// partial=false it reports whether every slot is held; with partial=true,
// whether any slot is held.
func (m *Multex[T]) IsLocked(partial bool) bool {
	return m.state.IsLocked(m.allMask(), partial)
}

// UnsafeUnlock force-clears every slot. Sound only after the caller has
// forgotten the corresponding guard without calling Unlock on it (spec's
// unsafe escape hatch, §4.4).
func (m *Multex[T]) UnsafeUnlock() {
	m.state.Release(m.allMask(), true)
}

// UnsafeUnlockWith force-clears exactly the slots in mask. Sound under
// the same conditions as UnsafeUnlock.
func (m *Multex[T]) UnsafeUnlockWith(mask Mask) {
	m.state.Release(mask, true)
}

// LockWith blocks until key's mask can be reserved (in full, unless
// partial is true, in which case whatever subset is free is taken
// immediately) and returns a guard holding key's projection.
func LockWith[T, R any](m *Multex[T], key *Key[T, R], partial bool) *Guard[R] {
	acquired, ok := m.state.Acquire(key.mask, partial, true)
	if !ok {
		panic("multex: blocking LockWith reported failure")
	}
	value := key.project(&m.value, once(acquired))
	return &Guard[R]{Value: value, mask: acquired, state: m.state}
}

// TryLockWith is LockWith's non-blocking form. With partial=false it
// returns ok==false if any requested bit was held; with partial=true it
// always succeeds, possibly with an empty acquisition (spec §9: "this
// spec mandates that partial=true always succeeds").
func TryLockWith[T, R any](m *Multex[T], key *Key[T, R], partial bool) (guard *Guard[R], ok bool) {
	acquired, ok := m.state.Acquire(key.mask, partial, false)
	if !ok {
		var zero *Guard[R]
		return zero, false
	}
	value := key.project(&m.value, once(acquired))
	return &Guard[R]{Value: value, mask: acquired, state: m.state}, true
}

// IsLockedWith reports whether key's mask is held, per the same
// partial/non-partial rule as IsLocked.
func IsLockedWith[T, R any](m *Multex[T], key *Key[T, R], partial bool) bool {
	return m.state.IsLocked(key.mask, partial)
}

// Guard is a scoped handle produced by a successful acquisition. Value
// holds the projected reference aggregate; Unlock releases the guard's
// recorded mask and must be called exactly once, conventionally via
// defer immediately after acquisition (spec §4.3 "Guard", translation
// decision 5 — Go has no destructor to do this automatically).
type Guard[R any] struct {
	Value R
	mask  Mask
	state *lockState
}

// Mask returns the exact sub-mask this guard is responsible for
// releasing. In partial mode this may be a strict subset of the mask the
// originating Key requested (spec §4.4 "Partial mode details"; carried
// over from original_source's Guard::mask, dropped by the spec.md
// distillation).
func (g *Guard[R]) Mask() Mask { return g.mask }

// Unlock releases the guard's mask and wakes any waiter blocked on one of
// its bits. Calling Unlock more than once releases bits the guard no
// longer owns and is a programmer error, exactly as using a value after
// it has been moved out from under it would be (spec's Drop-once
// contract has no Go equivalent to enforce this at compile time; see
// SPEC_FULL.md translation decision 5).
func (g *Guard[R]) Unlock() {
	g.state.Release(g.mask, true)
}

// MapGuard transforms a guard's projected value without re-acquiring or
// releasing anything: ownership of the underlying reservation moves from
// g to the returned guard, so g must not be used (including via Unlock)
// afterwards (original_source's Guard::map, dropped by the spec.md
// distillation — see SPEC_FULL.md "Supplemented from original_source").
func MapGuard[R, S any](g *Guard[R], f func(R) S) *Guard[S] {
	return &Guard[S]{Value: f(g.Value), mask: g.mask, state: g.state}
}
