package ws

import (
	"encoding/binary"
	"errors"
	"math"
)

// WebSocket opcodes.
const (
	OpcodeText  = 0x1
	OpcodeClose = 0x8
	OpcodePing  = 0x9
	OpcodePong  = 0xA
)

// Close codes used by the engine.
const (
	CloseNormal      = 1000
	CloseGoingAway   = 1001
	CloseUnsupported = 1003
	CloseInternal    = 1011
	CloseReplaced    = 1012
)

// ErrFragmented signals a frame with FIN=0. Fragmented messages are rejected
// and the caller must close the connection with code 1003.
var ErrFragmented = errors.New("ws: fragmented frames not supported")

// Frame is a single decoded WebSocket frame.
type Frame struct {
	Opcode  byte
	Payload []byte
}

// DecodeFrame extracts one frame from the front of buf. It returns the frame
// and the unconsumed remainder so the caller can keep extracting frames from a
// growing buffer in a loop. ok is false while buf does not yet hold a complete
// frame; the remainder is then buf itself.
func DecodeFrame(buf []byte) (frame Frame, remaining []byte, ok bool, err error) {
	if len(buf) < 2 {
		return Frame{}, buf, false, nil
	}

	fin := buf[0]&0x80 != 0
	opcode := buf[0] & 0x0F
	masked := buf[1]&0x80 != 0
	payloadLen := uint64(buf[1] & 0x7F)
	offset := 2

	switch payloadLen {
	case 126:
		if len(buf) < offset+2 {
			return Frame{}, buf, false, nil
		}
		payloadLen = uint64(binary.BigEndian.Uint16(buf[offset:]))
		offset += 2
	case 127:
		if len(buf) < offset+8 {
			return Frame{}, buf, false, nil
		}
		payloadLen = binary.BigEndian.Uint64(buf[offset:])
		offset += 8
	}

	if payloadLen > math.MaxInt32 {
		return Frame{}, buf, false, errors.New("ws: payload too large")
	}

	var mask []byte
	if masked {
		if len(buf) < offset+4 {
			return Frame{}, buf, false, nil
		}
		mask = buf[offset : offset+4]
		offset += 4
	}

	end := offset + int(payloadLen)
	if len(buf) < end {
		return Frame{}, buf, false, nil
	}

	payload := make([]byte, payloadLen)
	copy(payload, buf[offset:end])
	if masked {
		for i := range payload {
			payload[i] ^= mask[i%4]
		}
	}

	if !fin {
		return Frame{}, buf[end:], false, ErrFragmented
	}

	return Frame{Opcode: opcode, Payload: payload}, buf[end:], true, nil
}

// EncodeFrame builds a server-to-client frame. Server frames are never masked.
func EncodeFrame(opcode byte, payload []byte) []byte {
	length := len(payload)
	headerLen := 2
	if length >= 126 && length < 65536 {
		headerLen += 2
	} else if length >= 65536 {
		headerLen += 8
	}

	frame := make([]byte, headerLen+length)
	frame[0] = 0x80 | opcode

	switch {
	case length < 126:
		frame[1] = byte(length)
	case length < 65536:
		frame[1] = 126
		binary.BigEndian.PutUint16(frame[2:], uint16(length))
	default:
		frame[1] = 127
		binary.BigEndian.PutUint64(frame[2:], uint64(length))
	}

	copy(frame[headerLen:], payload)
	return frame
}

// EncodeClose builds a close frame carrying the given status code and reason.
func EncodeClose(code int, reason string) []byte {
	payload := make([]byte, 2+len(reason))
	binary.BigEndian.PutUint16(payload, uint16(code))
	copy(payload[2:], reason)
	return EncodeFrame(OpcodeClose, payload)
}
