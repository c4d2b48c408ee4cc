package wire

import (
	"encoding/binary"
	"errors"
	"hash/crc32"
)

const (
	// Magic opens every frame. Both sides drop datagrams that do not
	// start with it.
	Magic uint16 = 0x0000

	TypeRequest byte = 0
	TypeData    byte = 1
	TypeAck     byte = 2
	TypeError   byte = 3

	// HeaderLen is the fixed frame header:
	// magic:2 type:1 seq:4 payloadSize:2 totalSegments:4 flags:1 checksum:4.
	HeaderLen = 18

	// checksumOffset is where the CRC field starts; everything before it
	// is covered by the CRC together with the payload.
	checksumOffset = 14

	// MaxDatagram is the largest UDP payload deliverable over IPv4.
	MaxDatagram = 65507
	MaxPayload  = MaxDatagram - HeaderLen

	// DefaultSegmentSize keeps one DATA frame inside an ethernet MTU:
	// 1500 minus 20 (IPv4) minus 8 (UDP) minus the frame header.
	DefaultSegmentSize = 1500 - 20 - 8 - HeaderLen

	// FlagLast marks the DATA frame carrying the final segment.
	FlagLast byte = 1 << 0
)

var (
	ErrMalformedPacket  = errors.New("datagram shorter than frame header")
	ErrTruncatedPayload = errors.New("payload truncated")
	ErrInvalidMagic     = errors.New("unexpected magic value")
	ErrChecksumMismatch = errors.New("checksum mismatch")
	ErrUnknownType      = errors.New("unknown frame type")
	ErrPayloadTooLarge  = errors.New("payload exceeds frame capacity")
)

// Frame is one protocol datagram. The checksum field never appears here:
// Encode computes it and Decode verifies it, so a Frame in memory is
// always either unchecksummed (outbound) or already verified (inbound).
type Frame struct {
	Type          byte
	Seq           uint32
	TotalSegments uint32
	Flags         byte
	Payload       []byte
}

func (f *Frame) Last() bool { return f.Flags&FlagLast != 0 }

// EncodedLen reports the exact datagram size Encode will produce.
func (f *Frame) EncodedLen() int { return HeaderLen + len(f.Payload) }

func (f *Frame) Encode(dst []byte) (int, error) {
	if len(f.Payload) > MaxPayload {
		return 0, ErrPayloadTooLarge
	}
	need := HeaderLen + len(f.Payload)
	if len(dst) < need {
		return 0, errors.New("buffer too small")
	}
	binary.BigEndian.PutUint16(dst[0:2], Magic)
	dst[2] = f.Type
	binary.BigEndian.PutUint32(dst[3:7], f.Seq)
	binary.BigEndian.PutUint16(dst[7:9], uint16(len(f.Payload)))
	binary.BigEndian.PutUint32(dst[9:13], f.TotalSegments)
	dst[13] = f.Flags

	copy(dst[HeaderLen:], f.Payload)
	sum := crc32.ChecksumIEEE(dst[:checksumOffset])
	sum = crc32.Update(sum, crc32.IEEETable, f.Payload)
	binary.BigEndian.PutUint32(dst[checksumOffset:HeaderLen], sum)
	return need, nil
}

// Marshal allocates and encodes in one step. Session loops that care about
// allocation reuse a buffer and call Encode directly.
func (f *Frame) Marshal() ([]byte, error) {
	buf := make([]byte, f.EncodedLen())
	n, err := f.Encode(buf)
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}

// Decode parses and verifies one frame from src. The returned payload
// aliases src, so callers that reuse read buffers must copy first. Bytes
// past the declared payload are ignored; validation failures are reported
// in structural, magic, checksum, type order.
func (f *Frame) Decode(src []byte) (int, error) {
	if len(src) < HeaderLen {
		return 0, ErrMalformedPacket
	}
	payloadLen := int(binary.BigEndian.Uint16(src[7:9]))
	need := HeaderLen + payloadLen
	if len(src) < need {
		return 0, ErrTruncatedPayload
	}
	if binary.BigEndian.Uint16(src[0:2]) != Magic {
		return 0, ErrInvalidMagic
	}
	payload := src[HeaderLen:need]
	sum := crc32.ChecksumIEEE(src[:checksumOffset])
	sum = crc32.Update(sum, crc32.IEEETable, payload)
	if binary.BigEndian.Uint32(src[checksumOffset:HeaderLen]) != sum {
		return 0, ErrChecksumMismatch
	}
	typ := src[2]
	if typ > TypeError {
		return 0, ErrUnknownType
	}
	f.Type = typ
	f.Seq = binary.BigEndian.Uint32(src[3:7])
	f.TotalSegments = binary.BigEndian.Uint32(src[9:13])
	f.Flags = src[13]
	if payloadLen == 0 {
		f.Payload = nil
	} else {
		f.Payload = payload
	}
	return need, nil
}

func DataFrame(seq, total uint32, payload []byte, last bool) Frame {
	f := Frame{Type: TypeData, Seq: seq, TotalSegments: total, Payload: payload}
	if last {
		f.Flags |= FlagLast
	}
	return f
}

func AckFrame(seq uint32) Frame {
	return Frame{Type: TypeAck, Seq: seq}
}

func ErrorFrame(msg string) Frame {
	return Frame{Type: TypeError, Payload: []byte(msg)}
}
