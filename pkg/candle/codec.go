package candle

import (
	"encoding/binary"
	"fmt"
)

// EncodedSize is the fixed on-disk size of one candle: eight int64
// fields, little-endian, no framing.
const EncodedSize = 64

// Encode serializes the candle into the fixed 64-byte layout. The layout
// is the storage interchange format of the replay cache; field order is
// part of the format and must not change.
func (c Candle) Encode() []byte {
	buf := make([]byte, EncodedSize)
	binary.LittleEndian.PutUint64(buf[0:], uint64(c.TsOpen))
	binary.LittleEndian.PutUint64(buf[8:], uint64(c.TsClose))
	binary.LittleEndian.PutUint64(buf[16:], uint64(c.OpenTick))
	binary.LittleEndian.PutUint64(buf[24:], uint64(c.HighTick))
	binary.LittleEndian.PutUint64(buf[32:], uint64(c.LowTick))
	binary.LittleEndian.PutUint64(buf[40:], uint64(c.CloseTick))
	binary.LittleEndian.PutUint64(buf[48:], uint64(c.VolumeScaled))
	binary.LittleEndian.PutUint64(buf[56:], uint64(c.TradeCount))
	return buf
}

// Decode parses a candle from the 64-byte layout.
func Decode(buf []byte) (Candle, error) {
	if len(buf) != EncodedSize {
		return Candle{}, fmt.Errorf("candle record must be %d bytes, got %d", EncodedSize, len(buf))
	}
	return Candle{
		TsOpen:       int64(binary.LittleEndian.Uint64(buf[0:])),
		TsClose:      int64(binary.LittleEndian.Uint64(buf[8:])),
		OpenTick:     int64(binary.LittleEndian.Uint64(buf[16:])),
		HighTick:     int64(binary.LittleEndian.Uint64(buf[24:])),
		LowTick:      int64(binary.LittleEndian.Uint64(buf[32:])),
		CloseTick:    int64(binary.LittleEndian.Uint64(buf[40:])),
		VolumeScaled: int64(binary.LittleEndian.Uint64(buf[48:])),
		TradeCount:   int64(binary.LittleEndian.Uint64(buf[56:])),
	}, nil
}
