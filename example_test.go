package multex_test

import (
	"fmt"
	"sync"

	"github.com/nbtaylor-labs/multex"
)

// This example locks two disjoint rows of a shared scoreboard from two
// goroutines at once: neither goroutine blocks the other, because their
// keys never share a bit.
func Example() {
	scoreboard := multex.New8[[]int]([]int{0, 0, 0, 0})

	row0, err := multex.Index[int](8, 1, 0)
	if err != nil {
		panic(err)
	}
	row1, err := multex.Index[int](8, 1, 1)
	if err != nil {
		panic(err)
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		g := multex.LockWith(scoreboard, row0, false)
		defer g.Unlock()
		*g.Value += 10
	}()
	go func() {
		defer wg.Done()
		g := multex.LockWith(scoreboard, row1, false)
		defer g.Unlock()
		*g.Value += 20
	}()
	wg.Wait()

	fmt.Println(scoreboard.IntoInner())
	// Output: [10 20 0 0]
}
