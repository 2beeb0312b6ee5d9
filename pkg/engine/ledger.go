package engine

// applyFill applies one fill (side, quantity, price, fee schedule) to
// cash, position, average entry price and realized PnL. Price is in quote
// units and may sit between ticks (market-order spread).
//
// Cash convention: a BUY pays notional, a SELL receives notional, and the
// fee is always debited, whether the fill opens, adds, reduces or flips.
// Realized PnL is gross of fees, so equity reconciles as
// initial cash + realized + unrealized - total fees.
func (e *Engine) applyFill(orderID uint64, side Side, qtyScaled int64, price float64, feeBps float64, maker bool) {
	qty := float64(qtyScaled) / QtyScale
	notional := qty * price
	fee := notional * feeBps / 10000

	if side == Buy {
		e.cash -= notional
	} else {
		e.cash += notional
	}
	e.cash -= fee

	delta := qtyScaled
	if side == Sell {
		delta = -qtyScaled
	}
	old := e.position
	increasing := old == 0 || (old > 0 && side == Buy) || (old < 0 && side == Sell)

	if increasing {
		if old == 0 {
			e.avgEntry = price
		} else {
			oldQty := abs64(old)
			// Volume-weighted average entry over the scaled sizes;
			// the 1e6 scale cancels out of the ratio.
			e.avgEntry = (float64(oldQty)*e.avgEntry + float64(qtyScaled)*price) / float64(oldQty+qtyScaled)
		}
		e.position = old + delta
	} else {
		closedScaled := qtyScaled
		if a := abs64(old); a < closedScaled {
			closedScaled = a
		}
		closed := float64(closedScaled) / QtyScale
		if old > 0 {
			e.realized += closed * (price - e.avgEntry)
		} else {
			e.realized += closed * (e.avgEntry - price)
		}

		e.position = old + delta
		switch {
		case e.position == 0:
			// Flat: average entry is undefined until the next opening fill.
			e.avgEntry = 0
		case (old > 0) != (e.position > 0):
			// Flipped through zero: the remainder opens at the fill price.
			e.avgEntry = price
		}
	}

	e.fills = append(e.fills, Fill{
		OrderID:   orderID,
		TsMs:      e.tsMs,
		Side:      side,
		QtyScaled: qtyScaled,
		Price:     price,
		Fee:       fee,
		Maker:     maker,
	})
}

func abs64(x int64) int64 {
	if x < 0 {
		return -x
	}
	return x
}
