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

// Package multex implements a multi-index lock: a synchronization
// primitive that protects one composite value by treating its logical
// slots — struct fields, array elements, whatever the caller's Key
// constructors describe — as independently lockable bits, so that several
// goroutines may each hold a disjoint subset of slots and obtain
// simultaneous exclusive references into the value.
//
// A classic motivating example is a fixed-size scoreboard shared by many
// worker goroutines, each of which only ever touches its own row: a single
// sync.Mutex around the whole scoreboard serializes every worker, while a
// per-row mutex array cannot express "give me rows 3 and 7 together,
// atomically, without deadlocking against someone who wants rows 7 and 3"
// without imposing a global lock order by hand. Multex gives the caller a
// bitmask-shaped lock over the composite value instead: any subset of
// slots can be requested as one atomic reservation, with blocking,
// non-blocking, and best-effort "partial" acquisition modes.
//
// # Overview
//
// Multex[T] owns exactly one value of type T and one lock state: a slice
// of atomic words whose set bits mirror which logical index each holds,
// plus (for locks spanning more than one word) a version counter used to
// park and wake blocked acquirers fairly. A Key[T, R] describes which
// indices a caller wants and how to turn the value's address into R, the
// reference aggregate the caller actually uses — a single pointer, a
// slice of pointers, or an aggregate of several sub-keys' projections.
//
// Acquiring a key reserves its mask against the lock state (see
// internal/futex for the wait/wake collaborator used when a blocking
// acquisition contends) and then projects the key's gather description
// against the value, yielding a Guard[R] whose Unlock releases exactly the
// bits this guard took — never more, even in partial mode, where fewer
// bits than requested may have been free.
//
// # Soundness
//
// Two live guards on the same Multex never alias: a guard only projects
// references for bits it was granted by Acquire, Acquire's compound
// protocol is strictly all-or-nothing outside of partial mode, and the
// lock state's bits are the only memory mutated outside of a guard's own
// projected references. Disjoint bit ownership therefore implies disjoint
// mutable references, which is the entire correctness argument this
// package rests on.
package multex
