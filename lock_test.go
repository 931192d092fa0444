package multex

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func maskWith(wordBits, wordCount int, indices ...int) Mask {
	m := NewMask(wordBits, wordCount)
	for _, i := range indices {
		var err error
		m, _, err = m.Add(i)
		if err != nil {
			panic(err)
		}
	}
	return m
}

func TestAcquireReleaseSingleWord(t *testing.T) {
	state := newLockState(8, 1)
	mask := maskWith(8, 1, 0, 1)

	acquired, ok := state.Acquire(mask, false, false)
	require.True(t, ok)
	assert.True(t, acquired.Contains(0))
	assert.True(t, acquired.Contains(1))
	assert.True(t, state.IsLocked(mask, false))

	state.Release(acquired, true)
	assert.False(t, state.IsLocked(mask, true))
}

func TestAcquireNonBlockingContention(t *testing.T) {
	state := newLockState(8, 1)
	mask := maskWith(8, 1, 0)

	_, ok := state.Acquire(mask, false, false)
	require.True(t, ok)

	_, ok = state.Acquire(mask, false, false)
	assert.False(t, ok, "a second non-blocking, non-partial acquisition of a held bit must fail")
}

func TestAcquirePartialAlwaysSucceeds(t *testing.T) {
	state := newLockState(8, 1)
	held := maskWith(8, 1, 0)
	_, ok := state.Acquire(held, false, false)
	require.True(t, ok)

	requested := maskWith(8, 1, 0, 1)
	acquired, ok := state.Acquire(requested, true, false)
	require.True(t, ok, "partial acquisition always succeeds (spec §9)")
	assert.False(t, acquired.Contains(0), "bit 0 was already held elsewhere")
	assert.True(t, acquired.Contains(1), "bit 1 was free and should have been taken")
}

func TestEmptyMaskNeverBlocks(t *testing.T) {
	state := newLockState(8, 1)
	empty := NewMask(8, 1)

	acquired, ok := state.Acquire(empty, false, true)
	require.True(t, ok)
	assert.True(t, acquired.IsEmpty())

	state.Release(acquired, true)
	assert.False(t, state.IsLocked(empty, true))
}

func TestAcquireBlocksUntilReleased(t *testing.T) {
	state := newLockState(8, 1)
	mask := maskWith(8, 1, 0)

	_, ok := state.Acquire(mask, false, false)
	require.True(t, ok)

	done := make(chan struct{})
	go func() {
		acquired, ok := state.Acquire(mask, false, true)
		require.True(t, ok)
		close(done)
		state.Release(acquired, true)
	}()

	select {
	case <-done:
		t.Fatal("blocking acquisition returned before the holder released")
	case <-time.After(50 * time.Millisecond):
	}

	state.Release(mask, true)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("blocking acquisition never woke up after release")
	}
}

func TestCompoundAcquireAllOrNothing(t *testing.T) {
	state := newLockState(8, 2)
	held := maskWith(8, 2, 9) // second word, bit 1
	_, ok := state.Acquire(held, false, false)
	require.True(t, ok)

	requested := maskWith(8, 2, 0, 9)
	_, ok = state.Acquire(requested, false, false)
	assert.False(t, ok, "compound acquisition must not partially succeed")
	assert.False(t, state.IsLocked(maskWith(8, 2, 0), true), "rolled-back bit 0 must not remain held")
}

func TestCompoundAcquireBlocksAndWakes(t *testing.T) {
	state := newLockState(8, 2)
	wordB := maskWith(8, 2, 9)
	_, ok := state.Acquire(wordB, false, false)
	require.True(t, ok)

	requested := maskWith(8, 2, 0, 9)
	done := make(chan Mask, 1)
	go func() {
		acquired, ok := state.Acquire(requested, false, true)
		require.True(t, ok)
		done <- acquired
	}()

	select {
	case <-done:
		t.Fatal("compound acquisition returned before the contended word was released")
	case <-time.After(50 * time.Millisecond):
	}

	state.Release(wordB, true)

	select {
	case acquired := <-done:
		assert.True(t, acquired.Contains(0))
		assert.True(t, acquired.Contains(9))
		state.Release(acquired, true)
	case <-time.After(time.Second):
		t.Fatal("compound acquisition never woke up after the contended word was released")
	}
}

func TestIsLockedObservational(t *testing.T) {
	state := newLockState(8, 1)
	mask := maskWith(8, 1, 0, 1)

	assert.False(t, state.IsLocked(mask, false))
	assert.False(t, state.IsLocked(mask, true))

	partial := maskWith(8, 1, 0)
	_, ok := state.Acquire(partial, false, false)
	require.True(t, ok)

	assert.False(t, state.IsLocked(mask, false), "not every requested bit is held")
	assert.True(t, state.IsLocked(mask, true), "at least one requested bit is held")
}

// TestConcurrentWritesToOneSlotAreSerialized has many goroutines each
// increment the same slot under a blocking LockWith on that slot's key;
// the final count must equal the number of goroutines, so no increment
// was lost.
func TestConcurrentWritesToOneSlotAreSerialized(t *testing.T) {
	const workers = 20
	m := New8N[[]int](1, make([]int, 1))

	key, err := Index[int](8, 1, 0)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			g := LockWith(m, key, false)
			defer g.Unlock()
			*g.Value++
		}()
	}
	wg.Wait()

	assert.Equal(t, workers, (*m.GetMut())[0])
}

var workloads = []struct {
	name        string
	concurrency int
}{
	{"Serial", 1},
	{"LowConcurrency", 2},
	{"MediumConcurrency", 10},
	{"HighConcurrency", 20},
}

func BenchmarkLockUnlock(b *testing.B) {
	for _, wl := range workloads {
		wl := wl
		b.Run(wl.name, func(b *testing.B) {
			m := New32[int](0)
			var wg sync.WaitGroup
			perGoroutine := b.N / wl.concurrency
			if perGoroutine == 0 {
				perGoroutine = 1
			}
			for g := 0; g < wl.concurrency; g++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					for i := 0; i < perGoroutine; i++ {
						guard := m.Lock()
						*guard.Value++
						guard.Unlock()
					}
				}()
			}
			wg.Wait()
		})
	}
}
