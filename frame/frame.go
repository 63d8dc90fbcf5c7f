// Package frame implements the length-prefixed binary frame exchanged between
// the coordinator and ASR workers.
//
// Layout (all lengths are big-endian uint32):
//
//	[4: session id length][session id, UTF-8][4: pcm length][pcm bytes]
//
// Each transport message carries exactly one frame. Bytes after the declared
// payload are ignored by Decode.
package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"unicode/utf8"
)

// LengthPrefixSize is the size of each length prefix in bytes
const LengthPrefixSize = 4

// HeaderOverhead is the number of non-payload bytes in every frame
const HeaderOverhead = 2 * LengthPrefixSize

var (
	// ErrTruncatedFrame is returned when the buffer is shorter than a declared length requires
	ErrTruncatedFrame = errors.New("truncated frame")
	// ErrInvalidEncoding is returned when the session id is not valid UTF-8
	ErrInvalidEncoding = errors.New("session id is not valid UTF-8")
	// ErrPayloadTooLarge is returned when a field does not fit a uint32 length prefix
	ErrPayloadTooLarge = errors.New("frame field too large")
)

// Frame is one session-tagged chunk of PCM audio
type Frame struct {
	SessionID string
	PCM       []byte
}

// Decode parses a single frame from data
func Decode(data []byte) (*Frame, error) {
	// uint64 offsets keep the bounds checks exact on 32-bit platforms
	total := uint64(len(data))

	if total < LengthPrefixSize {
		return nil, fmt.Errorf("%w: need %d bytes for session id length, got %d",
			ErrTruncatedFrame, LengthPrefixSize, total)
	}
	idLen := uint64(binary.BigEndian.Uint32(data[0:LengthPrefixSize]))

	idEnd := LengthPrefixSize + idLen
	if total < idEnd {
		return nil, fmt.Errorf("%w: session id declares %d bytes, only %d available",
			ErrTruncatedFrame, idLen, total-LengthPrefixSize)
	}
	idBytes := data[LengthPrefixSize:idEnd]
	if !utf8.Valid(idBytes) {
		return nil, ErrInvalidEncoding
	}

	pcmStart := idEnd + LengthPrefixSize
	if total < pcmStart {
		return nil, fmt.Errorf("%w: need %d bytes for pcm length, got %d",
			ErrTruncatedFrame, LengthPrefixSize, total-idEnd)
	}
	pcmLen := uint64(binary.BigEndian.Uint32(data[idEnd:pcmStart]))

	pcmEnd := pcmStart + pcmLen
	if total < pcmEnd {
		return nil, fmt.Errorf("%w: pcm declares %d bytes, only %d available",
			ErrTruncatedFrame, pcmLen, total-pcmStart)
	}

	pcm := make([]byte, pcmLen)
	copy(pcm, data[pcmStart:pcmEnd])

	return &Frame{
		SessionID: string(idBytes),
		PCM:       pcm,
	}, nil
}

// Encode serializes f into its wire layout
func Encode(f *Frame) ([]byte, error) {
	if uint64(len(f.SessionID)) > math.MaxUint32 {
		return nil, fmt.Errorf("%w: session id is %d bytes", ErrPayloadTooLarge, len(f.SessionID))
	}
	if uint64(len(f.PCM)) > math.MaxUint32 {
		return nil, fmt.Errorf("%w: pcm is %d bytes", ErrPayloadTooLarge, len(f.PCM))
	}
	if !utf8.ValidString(f.SessionID) {
		return nil, ErrInvalidEncoding
	}

	buf := make([]byte, 0, f.Size())
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(f.SessionID)))
	buf = append(buf, f.SessionID...)
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(f.PCM)))
	buf = append(buf, f.PCM...)

	return buf, nil
}

// Size returns the exact number of bytes Encode produces for f
func (f *Frame) Size() int {
	return HeaderOverhead + len(f.SessionID) + len(f.PCM)
}

// String returns a human-readable representation of the frame
func (f *Frame) String() string {
	return fmt.Sprintf("Frame{SessionID:%q, PCMLen:%d}", f.SessionID, len(f.PCM))
}
