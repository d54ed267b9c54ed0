package transport

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// Wired bridge framing: 2-byte magic, big-endian uint16 length, payload.
var bridgeMagic = [2]byte{0xF7, 0x4C}

const bridgeHeaderLen = 4

// MaxBridgePayload is the largest payload a single bridge frame can carry.
const MaxBridgePayload = math.MaxUint16

type readFullFunc func(buf []byte) error

func encodeBridgeFrame(payload []byte) ([]byte, error) {
	if len(payload) == 0 {
		return nil, fmt.Errorf("empty payload")
	}
	if len(payload) > MaxBridgePayload {
		return nil, fmt.Errorf("payload too large: %d", len(payload))
	}

	frame := make([]byte, bridgeHeaderLen+len(payload))
	copy(frame, bridgeMagic[:])
	// #nosec G115 -- length is bounded by MaxBridgePayload above.
	binary.BigEndian.PutUint16(frame[2:bridgeHeaderLen], uint16(len(payload)))
	copy(frame[bridgeHeaderLen:], payload)

	return frame, nil
}

func decodeBridgeFrame(readFull readFullFunc) ([]byte, error) {
	if err := syncToMagic(readFull); err != nil {
		return nil, err
	}

	var lenBuf [2]byte
	if err := readFull(lenBuf[:]); err != nil {
		return nil, fmt.Errorf("read frame length: %w", err)
	}
	ln := int(binary.BigEndian.Uint16(lenBuf[:]))
	if ln == 0 {
		return nil, fmt.Errorf("invalid frame length: %d", ln)
	}

	payload := make([]byte, ln)
	if err := readFull(payload); err != nil {
		return nil, fmt.Errorf("read frame payload: %w", err)
	}

	return payload, nil
}

// syncToMagic discards bytes until the magic pair is seen, so line noise
// from the bridge's boot output does not wedge the reader.
func syncToMagic(readFull readFullFunc) error {
	var b [1]byte
	matched := 0
	for matched < len(bridgeMagic) {
		if err := readFull(b[:]); err != nil {
			return fmt.Errorf("read frame magic: %w", err)
		}
		switch {
		case b[0] == bridgeMagic[matched]:
			matched++
		case b[0] == bridgeMagic[0]:
			matched = 1
		default:
			matched = 0
		}
	}

	return nil
}

func readerFullFunc(r io.Reader) readFullFunc {
	return func(buf []byte) error {
		_, err := io.ReadFull(r, buf)

		return err
	}
}
