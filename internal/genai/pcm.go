package genai

import (
	"encoding/base64"
	"fmt"
)

// DecodePCM16 converts a base64-encoded 16-bit little-endian PCM
// payload into normalized float32 samples per channel. Interleaved
// frames are de-interleaved into one slice per channel.
func DecodePCM16(encoded string, channels int) ([][]float32, error) {
	if channels < 1 {
		return nil, fmt.Errorf("invalid channel count %d", channels)
	}

	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("base64 decode: %w", err)
	}

	frameBytes := 2 * channels
	if len(raw)%frameBytes != 0 {
		return nil, fmt.Errorf("payload length %d not aligned to %d-byte frames", len(raw), frameBytes)
	}

	frames := len(raw) / frameBytes
	out := make([][]float32, channels)
	for ch := range out {
		out[ch] = make([]float32, frames)
	}

	for frame := 0; frame < frames; frame++ {
		base := frame * frameBytes
		for ch := 0; ch < channels; ch++ {
			offset := base + 2*ch
			sample := int16(uint16(raw[offset]) | uint16(raw[offset+1])<<8)
			out[ch][frame] = float32(sample) / 32768.0
		}
	}

	return out, nil
}
