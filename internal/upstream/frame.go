package upstream

import (
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"fmt"
	"io"
)

// Wire frame: | 1 flag byte | 4-byte big-endian payload length | payload |.
// Flag bit 0 marks a gzip-compressed payload, bit 1 an error frame whose
// payload is UTF-8 JSON.
const (
	frameHeaderLen = 5

	flagCompressed byte = 0b01
	flagError      byte = 0b10
)

// EncodeFrame wraps a payload in the wire framing, optionally gzipping
// it first.
func EncodeFrame(payload []byte, compress bool) ([]byte, error) {
	flags := byte(0)
	if compress {
		var buf bytes.Buffer
		zw := gzip.NewWriter(&buf)
		if _, err := zw.Write(payload); err != nil {
			return nil, err
		}
		if err := zw.Close(); err != nil {
			return nil, err
		}
		payload = buf.Bytes()
		flags |= flagCompressed
	}

	out := make([]byte, frameHeaderLen+len(payload))
	out[0] = flags
	binary.BigEndian.PutUint32(out[1:5], uint32(len(payload)))
	copy(out[frameHeaderLen:], payload)
	return out, nil
}

// RawFrame is one de-framed unit before payload interpretation.
type RawFrame struct {
	Flags   byte
	Payload []byte
}

func (f *RawFrame) IsError() bool { return f.Flags&flagError != 0 }

// decompressed returns the payload with the compression flag honored.
func (f *RawFrame) decompressed() ([]byte, error) {
	if f.Flags&flagCompressed == 0 {
		return f.Payload, nil
	}
	zr, err := gzip.NewReader(bytes.NewReader(f.Payload))
	if err != nil {
		return nil, fmt.Errorf("upstream: gzip frame: %w", err)
	}
	defer zr.Close()
	out, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("upstream: gzip frame: %w", err)
	}
	return out, nil
}

type framerState int

const (
	readingHeader framerState = iota
	readingBody
)

// Framer is the byte-level state machine. Feed it arbitrary chunk
// splits; it emits frames exactly as they complete.
type Framer struct {
	state  framerState
	buf    []byte
	flags  byte
	length int
}

// Push consumes one chunk and returns the frames completed by it.
func (f *Framer) Push(chunk []byte) []RawFrame {
	f.buf = append(f.buf, chunk...)

	var frames []RawFrame
	for {
		switch f.state {
		case readingHeader:
			if len(f.buf) < frameHeaderLen {
				return frames
			}
			f.flags = f.buf[0]
			f.length = int(binary.BigEndian.Uint32(f.buf[1:5]))
			f.buf = f.buf[frameHeaderLen:]
			f.state = readingBody
		case readingBody:
			if len(f.buf) < f.length {
				return frames
			}
			payload := make([]byte, f.length)
			copy(payload, f.buf[:f.length])
			f.buf = f.buf[f.length:]
			f.state = readingHeader
			frames = append(frames, RawFrame{Flags: f.flags, Payload: payload})
		}
	}
}

// Buffered reports how many undecoded bytes the framer holds.
func (f *Framer) Buffered() int { return len(f.buf) }
