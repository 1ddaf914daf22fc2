package wav_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/trigate/trigate/pkg/media/pcm"
	"github.com/trigate/trigate/pkg/media/wav"
)

func TestEncodeDecode(t *testing.T) {
	samples := make([]byte, 3200) // 100ms at 16kHz
	for i := range samples {
		samples[i] = byte(i * 7)
	}

	var buf bytes.Buffer
	if err := wav.Encode(&buf, pcm.L16Mono16K, samples); err != nil {
		t.Fatalf("Encode: %v", err)
	}

	format, data, err := wav.Decode(&buf)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if format != pcm.L16Mono16K {
		t.Errorf("format = %v, want L16Mono16K", format)
	}
	if !bytes.Equal(data, samples) {
		t.Errorf("data mismatch: got %d bytes, want %d", len(data), len(samples))
	}
}

func TestDecodeRejectsStereo(t *testing.T) {
	// Build a header claiming 2 channels.
	var buf bytes.Buffer
	if err := wav.Encode(&buf, pcm.L16Mono16K, make([]byte, 32)); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	b := buf.Bytes()
	b[22] = 2 // channels

	_, _, err := wav.Decode(bytes.NewReader(b))
	if !errors.Is(err, wav.ErrUnsupported) {
		t.Fatalf("Decode = %v, want ErrUnsupported", err)
	}
}

func TestDecodeNotWave(t *testing.T) {
	_, _, err := wav.Decode(bytes.NewReader([]byte("OggS this is not a wav file")))
	if !errors.Is(err, wav.ErrUnsupported) {
		t.Fatalf("Decode = %v, want ErrUnsupported", err)
	}
}
