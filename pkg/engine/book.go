package engine

// book holds resting limit orders in insertion (ascending ID) order.
// A single backtest account rests few orders at a time, so a compact
// slice plus an ID set beats a price-level structure here.
type book struct {
	orders []Order
	ids    map[uint64]struct{}
}

func newBook() *book {
	return &book{ids: make(map[uint64]struct{})}
}

func (b *book) insert(o Order) {
	b.orders = append(b.orders, o)
	b.ids[o.ID] = struct{}{}
}

// cancel removes the order if it is resting. Returns false when the ID is
// unknown or already resolved.
func (b *book) cancel(id uint64) bool {
	if _, ok := b.ids[id]; !ok {
		return false
	}
	for i, o := range b.orders {
		if o.ID == id {
			b.orders = append(b.orders[:i], b.orders[i+1:]...)
			break
		}
	}
	delete(b.ids, id)
	return true
}

// crossed reports whether a resting order fills against a trade at
// tickPrice: buy limits fill at or below their price, sell limits at or
// above. Full fill or nothing.
func crossed(o Order, tickPrice int64) bool {
	if o.Side == Buy {
		return tickPrice <= o.PriceTick
	}
	return tickPrice >= o.PriceTick
}

// sweep removes every order matched by fn, preserving insertion order of
// the survivors. fn is invoked in ascending-ID order.
func (b *book) sweep(fn func(Order) bool) {
	w := 0
	for _, o := range b.orders {
		if fn(o) {
			delete(b.ids, o.ID)
			continue
		}
		b.orders[w] = o
		w++
	}
	b.orders = b.orders[:w]
}

func (b *book) len() int { return len(b.orders) }

// snapshot returns a copy of the resting set in insertion order.
func (b *book) snapshot() []Order {
	out := make([]Order, len(b.orders))
	copy(out, b.orders)
	return out
}

func (b *book) reset() {
	b.orders = b.orders[:0]
	b.ids = make(map[uint64]struct{})
}
