package counter

import (
	"math/big"
	"sync"
	"testing"

	qt "github.com/frankban/quicktest"
)

func TestMemoryCounter(t *testing.T) {
	c := qt.New(t)
	_, err := NewMemoryCounter(0)
	c.Assert(err, qt.IsNotNil)

	mc, err := NewMemoryCounter(2)
	c.Assert(err, qt.IsNil)
	c.Assert(mc.MessageLimit(), qt.Equals, uint64(2))
	epoch := big.NewInt(7)

	next, err := mc.PeekNextMessageID(epoch)
	c.Assert(err, qt.IsNil)
	c.Assert(next, qt.Equals, uint64(0))

	id, err := mc.GetMessageIDAndIncrement(epoch)
	c.Assert(err, qt.IsNil)
	c.Assert(id, qt.Equals, uint64(0))
	id, err = mc.GetMessageIDAndIncrement(epoch)
	c.Assert(err, qt.IsNil)
	c.Assert(id, qt.Equals, uint64(1))
	_, err = mc.GetMessageIDAndIncrement(epoch)
	c.Assert(err, qt.ErrorIs, ErrMessageLimitExceeded)
	_, err = mc.PeekNextMessageID(epoch)
	c.Assert(err, qt.ErrorIs, ErrMessageLimitExceeded)

	// other epochs are independent
	id, err = mc.GetMessageIDAndIncrement(big.NewInt(8))
	c.Assert(err, qt.IsNil)
	c.Assert(id, qt.Equals, uint64(0))
}

func TestMemoryCounterConcurrent(t *testing.T) {
	c := qt.New(t)
	const limit = 10
	mc, err := NewMemoryCounter(limit)
	c.Assert(err, qt.IsNil)
	epoch := big.NewInt(1)

	var wg sync.WaitGroup
	ids := make(chan uint64, 50)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if id, err := mc.GetMessageIDAndIncrement(epoch); err == nil {
				ids <- id
			}
		}()
	}
	wg.Wait()
	close(ids)

	seen := map[uint64]bool{}
	for id := range ids {
		c.Assert(seen[id], qt.IsFalse)
		seen[id] = true
	}
	c.Assert(seen, qt.HasLen, limit)
}
