package tek

import (
	"fmt"
	"strconv"
)

// Arbitrary waveform points are 14-bit codes, sent big-endian, two bytes
// each.
const (
	MaxPointValue = 16382
	MinPoints     = 2
	MaxPoints     = 131072
)

// PackBlock encodes points as an IEEE 488.2 definite length block,
// "#<n><length><data>".
func PackBlock(points []uint16) ([]byte, error) {
	if len(points) < MinPoints || len(points) > MaxPoints {
		return nil, fmt.Errorf("waveform has %d points, want %d to %d", len(points), MinPoints, MaxPoints)
	}
	size := strconv.Itoa(2 * len(points))
	b := make([]byte, 0, 2+len(size)+2*len(points))
	b = append(b, '#', byte('0'+len(size)))
	b = append(b, size...)
	for i, p := range points {
		if p > MaxPointValue {
			return nil, fmt.Errorf("point %d: %d exceeds %d", i, p, MaxPointValue)
		}
		b = append(b, byte(p>>8), byte(p))
	}
	return b, nil
}

// UnpackBlock decodes a definite length block of big-endian points.
// Anything after the block, such as a newline, is ignored.
func UnpackBlock(block []byte) ([]uint16, error) {
	if len(block) < 2 {
		return nil, fmt.Errorf("short block: %d bytes", len(block))
	}
	if block[0] != '#' {
		return nil, fmt.Errorf("invalid header: want # got %q", block[0])
	}
	n := int(block[1] - '0')
	if n < 1 || n > 9 || len(block) < 2+n {
		return nil, fmt.Errorf("invalid block length digit %q", block[1])
	}
	count, err := strconv.Atoi(string(block[2 : 2+n]))
	if err != nil {
		return nil, fmt.Errorf("invalid block length: %w", err)
	}
	data := block[2+n:]
	if len(data) < count {
		return nil, fmt.Errorf("invalid length: expect %d, got %d", count, len(data))
	}
	if count%2 != 0 {
		return nil, fmt.Errorf("odd block length %d", count)
	}
	data = data[:count]
	points := make([]uint16, 0, count/2)
	for len(data) > 1 {
		points = append(points, uint16(data[0])<<8|uint16(data[1]))
		data = data[2:]
	}
	return points, nil
}
