// Package wav reads and writes RIFF/WAVE containers holding 16-bit PCM,
// the payload format the voice verification service consumes.
package wav

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/trigate/trigate/pkg/media/pcm"
)

// ErrUnsupported is returned when a WAV file is not 16-bit mono PCM at one
// of the supported sample rates.
var ErrUnsupported = errors.New("wav: unsupported format")

const headerSize = 44

// Encode writes data (raw PCM16 samples in the given format) to w as a
// canonical 44-byte-header WAV file.
func Encode(w io.Writer, format pcm.Format, data []byte) error {
	var hdr [headerSize]byte
	copy(hdr[0:4], "RIFF")
	binary.LittleEndian.PutUint32(hdr[4:8], uint32(36+len(data)))
	copy(hdr[8:12], "WAVE")
	copy(hdr[12:16], "fmt ")
	binary.LittleEndian.PutUint32(hdr[16:20], 16) // PCM fmt chunk size
	binary.LittleEndian.PutUint16(hdr[20:22], 1)  // PCM
	binary.LittleEndian.PutUint16(hdr[22:24], uint16(format.Channels()))
	binary.LittleEndian.PutUint32(hdr[24:28], uint32(format.SampleRate()))
	binary.LittleEndian.PutUint32(hdr[28:32], uint32(format.BytesRate()))
	binary.LittleEndian.PutUint16(hdr[32:34], uint16(format.Channels()*format.Depth()/8))
	binary.LittleEndian.PutUint16(hdr[34:36], uint16(format.Depth()))
	copy(hdr[36:40], "data")
	binary.LittleEndian.PutUint32(hdr[40:44], uint32(len(data)))

	if _, err := w.Write(hdr[:]); err != nil {
		return fmt.Errorf("wav: write header: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("wav: write data: %w", err)
	}
	return nil
}

// Decode parses a WAV file and returns its PCM format and raw sample data.
// Only 16-bit mono PCM at 16, 24 or 48 kHz is supported.
func Decode(r io.Reader) (pcm.Format, []byte, error) {
	var riff [12]byte
	if _, err := io.ReadFull(r, riff[:]); err != nil {
		return 0, nil, fmt.Errorf("wav: read header: %w", err)
	}
	if string(riff[0:4]) != "RIFF" || string(riff[8:12]) != "WAVE" {
		return 0, nil, fmt.Errorf("%w: not a RIFF/WAVE file", ErrUnsupported)
	}

	var (
		format    pcm.Format
		sawFmt    bool
		chunkHead [8]byte
	)
	for {
		if _, err := io.ReadFull(r, chunkHead[:]); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return 0, nil, fmt.Errorf("%w: missing data chunk", ErrUnsupported)
			}
			return 0, nil, fmt.Errorf("wav: read chunk: %w", err)
		}
		id := string(chunkHead[0:4])
		size := binary.LittleEndian.Uint32(chunkHead[4:8])

		switch id {
		case "fmt ":
			body := make([]byte, size)
			if _, err := io.ReadFull(r, body); err != nil {
				return 0, nil, fmt.Errorf("wav: read fmt chunk: %w", err)
			}
			if len(body) < 16 {
				return 0, nil, fmt.Errorf("%w: short fmt chunk", ErrUnsupported)
			}
			audioFmt := binary.LittleEndian.Uint16(body[0:2])
			channels := binary.LittleEndian.Uint16(body[2:4])
			rate := binary.LittleEndian.Uint32(body[4:8])
			depth := binary.LittleEndian.Uint16(body[14:16])
			if audioFmt != 1 || channels != 1 || depth != 16 {
				return 0, nil, fmt.Errorf("%w: fmt=%d channels=%d depth=%d",
					ErrUnsupported, audioFmt, channels, depth)
			}
			switch rate {
			case 16000:
				format = pcm.L16Mono16K
			case 24000:
				format = pcm.L16Mono24K
			case 48000:
				format = pcm.L16Mono48K
			default:
				return 0, nil, fmt.Errorf("%w: sample rate %d", ErrUnsupported, rate)
			}
			sawFmt = true

		case "data":
			if !sawFmt {
				return 0, nil, fmt.Errorf("%w: data chunk before fmt", ErrUnsupported)
			}
			data := make([]byte, size)
			if _, err := io.ReadFull(r, data); err != nil {
				return 0, nil, fmt.Errorf("wav: read data chunk: %w", err)
			}
			return format, data, nil

		default:
			// Skip unknown chunks (LIST, fact, ...). Chunks are word-aligned.
			skip := int64(size)
			if skip%2 == 1 {
				skip++
			}
			if _, err := io.CopyN(io.Discard, r, skip); err != nil {
				return 0, nil, fmt.Errorf("wav: skip %s chunk: %w", id, err)
			}
		}
	}
}
