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

// Package futex provides an address-based wait/wake primitive used by the
// compound lock protocol to park and resume goroutines without spurious
// wakeups.
//
// Go's runtime does not expose a portable futex syscall, so this
// transliterates the same emulated-futex approach as Folly's Futex (and, in
// this codebase's retrieval pack, twmb's experimental/futex package): a
// fixed table of hashed buckets, each guarding a doubly linked list of
// parked waiters keyed by address and wait-mask. Wake walks a bucket and
// signals any waiter whose mask overlaps the one given; Wait enqueues only
// if the observed value still matches what the caller expects, closing the
// race between checking state and going to sleep.
package futex

import (
	"sync"
	"sync/atomic"
	"unsafe"
)

const numBuckets = 4096

type node struct {
	next, prev *node

	addr      unsafe.Pointer
	mask      uint64
	signalled bool
	mu        sync.Mutex
	cond      *sync.Cond
}

type bucket struct {
	mu    sync.Mutex
	nodes *node // sentinel; nodes.next is the head
}

var buckets [numBuckets]bucket

func init() {
	for i := range buckets {
		sentinel := new(node)
		sentinel.next = sentinel
		sentinel.prev = sentinel
		buckets[i].nodes = sentinel
	}
}

// hash64 is the avalanche finalizer from MurmurHash3, used here only to
// spread addresses across buckets.
func hash64(v uint64) uint64 {
	v ^= v >> 33
	v *= 0xff51afd7ed558ccd
	v ^= v >> 33
	v *= 0xc4ceb9fe1a85ec53
	v ^= v >> 33
	return v
}

func bucketFor(addr unsafe.Pointer) *bucket {
	return &buckets[hash64(uint64(uintptr(addr)))%numBuckets]
}

// Wait32 returns at once if *addr no longer equals expected; otherwise it
// parks the calling goroutine until Wake32 is called on addr with a mask
// overlapping waitMask. The value is compared only before parking: a later
// store to *addr without a Wake32 does not release the waiter. waitMask
// must be non-zero.
func Wait32(addr *atomic.Uint32, expected uint32, waitMask uint64) {
	wait(unsafe.Pointer(addr), waitMask, func() bool {
		return addr.Load() != expected
	})
}

// Wake32 wakes every goroutine parked in Wait32 on addr whose wait mask
// overlaps waitMask.
func Wake32(addr *atomic.Uint32, waitMask uint64) {
	wake(unsafe.Pointer(addr), waitMask)
}

// Wait64 is Wait32's 64-bit-word analogue, used for every single-word
// lock, whose state is always an atomic.Uint64 whatever its logical width.
func Wait64(addr *atomic.Uint64, expected uint64, waitMask uint64) {
	wait(unsafe.Pointer(addr), waitMask, func() bool {
		return addr.Load() != expected
	})
}

// Wake64 is Wake32's 64-bit-word analogue.
func Wake64(addr *atomic.Uint64, waitMask uint64) {
	wake(unsafe.Pointer(addr), waitMask)
}

func wait(addr unsafe.Pointer, waitMask uint64, changed func() bool) {
	b := bucketFor(addr)

	// Lock the bucket before checking for a state change: either we
	// observe the change here and never enqueue, or we miss it and are
	// guaranteed to observe the subsequent Wake instead.
	b.mu.Lock()
	if changed() {
		b.mu.Unlock()
		return
	}

	n := &node{addr: addr, mask: waitMask}
	n.cond = sync.NewCond(&n.mu)
	n.prev = b.nodes.prev
	b.nodes.prev.next = n
	b.nodes.prev = n
	n.next = b.nodes
	b.mu.Unlock()

	n.mu.Lock()
	for !n.signalled {
		n.cond.Wait()
	}
	n.mu.Unlock()
}

func wake(addr unsafe.Pointer, waitMask uint64) {
	b := bucketFor(addr)

	b.mu.Lock()
	sentinel := b.nodes
	for n := sentinel.next; n != sentinel; {
		next := n.next
		if n.addr == addr && n.mask&waitMask != 0 {
			n.prev.next = n.next
			n.next.prev = n.prev

			n.mu.Lock()
			n.signalled = true
			n.cond.Signal()
			n.mu.Unlock()
		}
		n = next
	}
	b.mu.Unlock()
}
