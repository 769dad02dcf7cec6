package core

import (
	"encoding/binary"
	"fmt"
	"math"
	"math/bits"
)

// PayloadType tags the payload carried by a sample.
type PayloadType byte

const (
	PayloadFloat PayloadType = 1
	PayloadTuple PayloadType = 2
	PayloadEvent PayloadType = 3
)

func (pt PayloadType) String() string {
	switch pt {
	case PayloadFloat:
		return "float"
	case PayloadTuple:
		return "tuple"
	case PayloadEvent:
		return "event"
	default:
		return "unknown"
	}
}

const (
	// HeaderSize is the fixed part of every encoded sample:
	// id (8) + timestamp (8) + size (2) + type (1) + padding (5) +
	// value slot (8).
	HeaderSize = 32

	// MaxEventBodySize bounds an event payload so the total encoded
	// sample size fits the 16-bit size field.
	MaxEventBodySize = math.MaxUint16 - HeaderSize
)

// Sample is one output record of the read path. The payload is a union
// selected by PayloadType: Value for floats, Bitmap+Tuple for join rows
// and tuple aggregates, Event for binary payloads.
type Sample struct {
	ID          Id
	Timestamp   Timestamp
	PayloadType PayloadType

	// Value is the float payload (PayloadFloat only).
	Value float64
	// Bitmap is the presence mask stored in the value slot
	// (PayloadTuple only). Bit i corresponds to tuple element i.
	Bitmap uint64
	// Tuple holds the present elements in declaration order
	// (PayloadTuple only); len(Tuple) == popcount(Bitmap).
	Tuple []float64
	// Event is the opaque payload (PayloadEvent only).
	Event []byte
}

// EncodedSize returns the total on-the-wire size of the sample in bytes.
func (s *Sample) EncodedSize() int {
	switch s.PayloadType {
	case PayloadTuple:
		return HeaderSize + 8*bits.OnesCount64(s.Bitmap)
	case PayloadEvent:
		return HeaderSize + len(s.Event)
	default:
		return HeaderSize
	}
}

// EncodeTo writes the sample into dest, which must hold EncodedSize()
// bytes. It returns the number of bytes written.
func (s *Sample) EncodeTo(dest []byte) (int, error) {
	size := s.EncodedSize()
	if size > math.MaxUint16 {
		return 0, fmt.Errorf("sample too large (%d bytes): %w", size, ErrBadValue)
	}
	if len(dest) < size {
		return 0, fmt.Errorf("destination too small (%d < %d): %w", len(dest), size, ErrBadArg)
	}
	binary.BigEndian.PutUint64(dest[0:8], s.ID)
	binary.BigEndian.PutUint64(dest[8:16], s.Timestamp)
	binary.BigEndian.PutUint16(dest[16:18], uint16(size))
	dest[18] = byte(s.PayloadType)
	dest[19] = 0
	dest[20] = 0
	dest[21] = 0
	dest[22] = 0
	dest[23] = 0
	switch s.PayloadType {
	case PayloadFloat:
		binary.BigEndian.PutUint64(dest[24:32], math.Float64bits(s.Value))
	case PayloadTuple:
		binary.BigEndian.PutUint64(dest[24:32], s.Bitmap)
		if len(s.Tuple) != bits.OnesCount64(s.Bitmap) {
			return 0, fmt.Errorf("tuple length %d does not match bitmap %#x: %w", len(s.Tuple), s.Bitmap, ErrBadValue)
		}
		off := HeaderSize
		for _, x := range s.Tuple {
			binary.BigEndian.PutUint64(dest[off:off+8], math.Float64bits(x))
			off += 8
		}
	case PayloadEvent:
		binary.BigEndian.PutUint64(dest[24:32], 0)
		copy(dest[HeaderSize:], s.Event)
	default:
		return 0, fmt.Errorf("unknown payload type %d: %w", s.PayloadType, ErrBadValue)
	}
	return size, nil
}

// DecodeSample parses one sample from the front of src and returns it
// together with its encoded size. Trailing bytes beyond the sample are
// left untouched.
func DecodeSample(src []byte) (Sample, int, error) {
	if len(src) < HeaderSize {
		return Sample{}, 0, fmt.Errorf("short sample header (%d bytes): %w", len(src), ErrBadArg)
	}
	size := int(binary.BigEndian.Uint16(src[16:18]))
	if size < HeaderSize || size > len(src) {
		return Sample{}, 0, fmt.Errorf("bad sample size %d: %w", size, ErrBadArg)
	}
	s := Sample{
		ID:          binary.BigEndian.Uint64(src[0:8]),
		Timestamp:   binary.BigEndian.Uint64(src[8:16]),
		PayloadType: PayloadType(src[18]),
	}
	slot := binary.BigEndian.Uint64(src[24:32])
	switch s.PayloadType {
	case PayloadFloat:
		s.Value = math.Float64frombits(slot)
	case PayloadTuple:
		s.Bitmap = slot
		n := bits.OnesCount64(s.Bitmap)
		if size != HeaderSize+8*n {
			return Sample{}, 0, fmt.Errorf("tuple size %d does not match bitmap %#x: %w", size, s.Bitmap, ErrBadArg)
		}
		s.Tuple = make([]float64, n)
		for i := 0; i < n; i++ {
			off := HeaderSize + 8*i
			s.Tuple[i] = math.Float64frombits(binary.BigEndian.Uint64(src[off : off+8]))
		}
	case PayloadEvent:
		s.Event = make([]byte, size-HeaderSize)
		copy(s.Event, src[HeaderSize:size])
	default:
		return Sample{}, 0, fmt.Errorf("unknown payload type %d: %w", src[18], ErrBadArg)
	}
	return s, size, nil
}

// DecodeSamples parses a buffer of back-to-back samples.
func DecodeSamples(src []byte) ([]Sample, error) {
	var out []Sample
	for len(src) > 0 {
		s, n, err := DecodeSample(src)
		if err != nil {
			return out, err
		}
		out = append(out, s)
		src = src[n:]
	}
	return out, nil
}
