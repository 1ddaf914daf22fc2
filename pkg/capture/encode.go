package capture

import (
	"bytes"
	"fmt"

	resampling "github.com/tphakala/go-audio-resampling"
	"github.com/trigate/trigate/pkg/media/pcm"
	"github.com/trigate/trigate/pkg/media/wav"
)

// encodeWAV resamples raw PCM16 from the track format to the verification
// format and wraps it in a WAV container.
func encodeWAV(data []byte, src, dst pcm.Format) ([]byte, error) {
	out, err := resamplePCM(data, src, dst)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncodingFailed, err)
	}
	var buf bytes.Buffer
	if err := wav.Encode(&buf, dst, out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncodingFailed, err)
	}
	return buf.Bytes(), nil
}

// resamplePCM converts 16-bit mono PCM between sample rates. Formats with
// equal rates pass through unchanged.
func resamplePCM(data []byte, src, dst pcm.Format) ([]byte, error) {
	if src.SampleRate() == dst.SampleRate() {
		return data, nil
	}

	rs, err := resampling.New(&resampling.Config{
		InputRate:  float64(src.SampleRate()),
		OutputRate: float64(dst.SampleRate()),
		Channels:   1,
		Quality:    resampling.QualitySpec{Preset: resampling.QualityHigh},
	})
	if err != nil {
		return nil, fmt.Errorf("create resampler: %w", err)
	}

	// int16 LE bytes -> normalized float64 samples.
	frames := len(data) / 2
	input := make([]float64, frames)
	for i := range frames {
		sample := int16(data[i*2]) | int16(data[i*2+1])<<8
		input[i] = float64(sample) / 32768.0
	}

	output, err := rs.Process(input)
	if err != nil {
		return nil, fmt.Errorf("resample: %w", err)
	}

	out := make([]byte, len(output)*2)
	for i, s := range output {
		v := int16(s * 32767.0)
		if s > 1.0 {
			v = 32767
		} else if s < -1.0 {
			v = -32768
		}
		out[i*2] = byte(v)
		out[i*2+1] = byte(v >> 8)
	}
	return out, nil
}

// encodeMJPEG concatenates JPEG frames into an MJPEG stream. Each frame is
// a complete JPEG image; players and the lip-sync service split on SOI/EOI
// markers.
func encodeMJPEG(frames [][]byte) []byte {
	n := 0
	for _, f := range frames {
		n += len(f)
	}
	out := make([]byte, 0, n)
	for _, f := range frames {
		out = append(out, f...)
	}
	return out
}
