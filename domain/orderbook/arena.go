package orderbook

// levelArena stores price levels by integer index. Freed indices are
// queued and handed out oldest first before the arena grows.
type levelArena struct {
	levels []*PriceLevel
	free   []int
	live   int
}

func newLevelArena(capacity int) *levelArena {
	return &levelArena{
		levels: make([]*PriceLevel, 0, capacity),
		free:   make([]int, 0, capacity),
	}
}

func (a *levelArena) alloc(price Price, slotCapacity int) int {
	lvl := NewPriceLevel(price, slotCapacity)
	a.live++
	if len(a.free) > 0 {
		idx := a.free[0]
		a.free = a.free[1:]
		a.levels[idx] = lvl
		return idx
	}
	a.levels = append(a.levels, lvl)
	return len(a.levels) - 1
}

func (a *levelArena) get(idx int) *PriceLevel {
	if idx < 0 || idx >= len(a.levels) {
		return nil
	}
	return a.levels[idx]
}

func (a *levelArena) release(idx int) {
	if a.get(idx) == nil {
		return
	}
	a.levels[idx] = nil
	a.free = append(a.free, idx)
	a.live--
}

// size is the length of the backing slice, live and free slots included.
func (a *levelArena) size() int { return len(a.levels) }
