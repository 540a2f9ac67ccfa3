package ws

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"
)

func maskFrame(t *testing.T, frame []byte) []byte {
	t.Helper()

	if len(frame) < 2 {
		t.Fatalf("frame too short to mask: %d bytes", len(frame))
	}

	header := 2
	length := int(frame[1] & 0x7F)
	switch length {
	case 126:
		header += 2
	case 127:
		header += 8
	}
	payload := frame[header:]

	mask := []byte{0x11, 0x22, 0x33, 0x44}
	masked := make([]byte, 0, len(frame)+4)
	masked = append(masked, frame[0], frame[1]|0x80)
	masked = append(masked, frame[2:header]...)
	masked = append(masked, mask...)
	for i, b := range payload {
		masked = append(masked, b^mask[i%4])
	}
	return masked
}

func TestDecodeFrameRoundTrip(t *testing.T) {
	sizes := []int{0, 1, 125, 126, 1000, 65535, 65536, 70000}

	for _, size := range sizes {
		payload := make([]byte, size)
		for i := range payload {
			payload[i] = byte(i % 251)
		}

		buf := maskFrame(t, EncodeFrame(OpcodeText, payload))
		frame, remaining, ok, err := DecodeFrame(buf)
		if err != nil {
			t.Fatalf("size %d: decode failed: %v", size, err)
		}
		if !ok {
			t.Fatalf("size %d: expected a complete frame", size)
		}
		if frame.Opcode != OpcodeText {
			t.Fatalf("size %d: expected text opcode, got %#x", size, frame.Opcode)
		}
		if !bytes.Equal(frame.Payload, payload) {
			t.Fatalf("size %d: payload mismatch after unmasking", size)
		}
		if len(remaining) != 0 {
			t.Fatalf("size %d: expected empty remainder, got %d bytes", size, len(remaining))
		}
	}
}

func TestEncodeFrameLengthEncoding(t *testing.T) {
	small := EncodeFrame(OpcodeText, make([]byte, 125))
	if small[1] != 125 {
		t.Fatalf("expected 7-bit length 125, got %d", small[1])
	}

	medium := EncodeFrame(OpcodeText, make([]byte, 126))
	if medium[1] != 126 {
		t.Fatalf("expected length marker 126, got %d", medium[1])
	}
	if got := binary.BigEndian.Uint16(medium[2:4]); got != 126 {
		t.Fatalf("expected extended length 126, got %d", got)
	}

	large := EncodeFrame(OpcodeText, make([]byte, 65536))
	if large[1] != 127 {
		t.Fatalf("expected length marker 127, got %d", large[1])
	}
	if got := binary.BigEndian.Uint64(large[2:10]); got != 65536 {
		t.Fatalf("expected extended length 65536, got %d", got)
	}
}

func TestDecodeFrameIncomplete(t *testing.T) {
	full := maskFrame(t, EncodeFrame(OpcodeText, []byte(`[2,"1","Heartbeat",{}]`)))

	for cut := 1; cut < len(full); cut++ {
		partial := full[:cut]
		_, remaining, ok, err := DecodeFrame(partial)
		if err != nil {
			t.Fatalf("cut %d: unexpected error: %v", cut, err)
		}
		if ok {
			t.Fatalf("cut %d: incomplete frame reported as complete", cut)
		}
		if !bytes.Equal(remaining, partial) {
			t.Fatalf("cut %d: incomplete input must be preserved", cut)
		}
	}
}

func TestDecodeFrameTwoFramesBuffered(t *testing.T) {
	first := maskFrame(t, EncodeFrame(OpcodeText, []byte("one")))
	second := maskFrame(t, EncodeFrame(OpcodeText, []byte("two")))
	buf := append(append([]byte{}, first...), second...)

	frame, remaining, ok, err := DecodeFrame(buf)
	if err != nil || !ok {
		t.Fatalf("first decode failed: ok=%v err=%v", ok, err)
	}
	if string(frame.Payload) != "one" {
		t.Fatalf("expected payload one, got %q", frame.Payload)
	}

	frame, remaining, ok, err = DecodeFrame(remaining)
	if err != nil || !ok {
		t.Fatalf("second decode failed: ok=%v err=%v", ok, err)
	}
	if string(frame.Payload) != "two" {
		t.Fatalf("expected payload two, got %q", frame.Payload)
	}
	if len(remaining) != 0 {
		t.Fatalf("expected empty remainder, got %d bytes", len(remaining))
	}
}

func TestDecodeFrameFragmentedRejected(t *testing.T) {
	frame := maskFrame(t, EncodeFrame(OpcodeText, []byte("partial")))
	frame[0] &^= 0x80 // clear FIN

	_, _, _, err := DecodeFrame(frame)
	if !errors.Is(err, ErrFragmented) {
		t.Fatalf("expected ErrFragmented, got %v", err)
	}
}

func TestDecodeFrameControlOpcodes(t *testing.T) {
	ping := maskFrame(t, EncodeFrame(OpcodePing, []byte("ka")))
	frame, _, ok, err := DecodeFrame(ping)
	if err != nil || !ok {
		t.Fatalf("ping decode failed: ok=%v err=%v", ok, err)
	}
	if frame.Opcode != OpcodePing || string(frame.Payload) != "ka" {
		t.Fatalf("unexpected ping frame: opcode=%#x payload=%q", frame.Opcode, frame.Payload)
	}

	closeFrame := maskFrame(t, EncodeFrame(OpcodeClose, []byte{0x03, 0xE8}))
	frame, _, ok, err = DecodeFrame(closeFrame)
	if err != nil || !ok {
		t.Fatalf("close decode failed: ok=%v err=%v", ok, err)
	}
	if frame.Opcode != OpcodeClose {
		t.Fatalf("expected close opcode, got %#x", frame.Opcode)
	}
}

func TestEncodeClose(t *testing.T) {
	frame := EncodeClose(CloseUnsupported, "Fragmentation not supported")
	if frame[0] != 0x80|OpcodeClose {
		t.Fatalf("expected FIN close header, got %#x", frame[0])
	}

	payload := frame[2:]
	if got := binary.BigEndian.Uint16(payload[:2]); got != CloseUnsupported {
		t.Fatalf("expected close code 1003, got %d", got)
	}
	if string(payload[2:]) != "Fragmentation not supported" {
		t.Fatalf("unexpected close reason: %q", payload[2:])
	}
}
