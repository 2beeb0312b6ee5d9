package storage

import (
	"encoding/binary"
	"fmt"
)

// Key schema:
//
//   c:<symbol>:<8-byte BE ts_open> → 64-byte candle record
//   run:<run-id>                   → run result JSON
//
// Candle timestamps are big-endian so prefix scans walk bars in time
// order.

const (
	prefixCandle = "c:"
	prefixRun    = "run:"
)

func candleKey(symbol string, tsOpen int64) []byte {
	key := make([]byte, 0, len(prefixCandle)+len(symbol)+1+8)
	key = append(key, prefixCandle...)
	key = append(key, symbol...)
	key = append(key, ':')
	return binary.BigEndian.AppendUint64(key, uint64(tsOpen))
}

func candlePrefix(symbol string) []byte {
	return []byte(prefixCandle + symbol + ":")
}

func runKey(id string) []byte {
	return []byte(fmt.Sprintf("%s%s", prefixRun, id))
}

// keyUpperBound returns the exclusive upper bound for a prefix scan.
func keyUpperBound(prefix []byte) []byte {
	bound := make([]byte, len(prefix))
	copy(bound, prefix)
	bound[len(bound)-1]++
	return bound
}
