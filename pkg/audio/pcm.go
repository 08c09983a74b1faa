// Package audio provides raw-PCM helpers shared by the transport, the ASR
// providers, and the emotion analyzer: frame validation, a time-bounded ring
// buffer, WAV encoding for batch uploads, and basic signal measurements.
//
// All functions operate on 16-bit signed little-endian PCM, the only format
// the wire contract admits.
package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

const (
	// SampleRate is the fixed pipeline sample rate in Hz.
	SampleRate = 16000

	// Channels is the fixed channel count (mono).
	Channels = 1

	// bytesPerSample for 16-bit PCM.
	bytesPerSample = 2

	// MaxFrameBytes is the largest accepted inbound frame: 250 ms at
	// 16 kHz mono 16-bit. Clients nominally send ~100 ms (~3200 bytes); the
	// guard leaves headroom for clients that batch slightly larger chunks.
	MaxFrameBytes = SampleRate * bytesPerSample / 4
)

// ErrOddLength is returned for frames whose byte length is not a multiple of
// the 16-bit sample size.
var ErrOddLength = errors.New("audio: frame length is not a multiple of 2")

// ErrFrameTooLarge is returned for frames exceeding MaxFrameBytes.
var ErrFrameTooLarge = errors.New("audio: frame exceeds maximum size")

// ValidateFrame checks an inbound PCM frame against the wire contract.
// Non-conforming frames are dropped by the transport with a warning.
func ValidateFrame(data []byte) error {
	if len(data)%bytesPerSample != 0 {
		return ErrOddLength
	}
	if len(data) > MaxFrameBytes {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(data))
	}
	return nil
}

// DurationMs returns the duration of a PCM buffer in milliseconds at the
// pipeline sample rate. Returns 0 for empty buffers.
func DurationMs(data []byte) int {
	return len(data) * 1000 / (SampleRate * Channels * bytesPerSample)
}

// RMS returns the root-mean-square energy of a 16-bit signed little-endian
// PCM buffer, expressed in PCM sample units (0–32767). Returns 0 for buffers
// shorter than one sample.
func RMS(data []byte) float64 {
	n := len(data) / bytesPerSample
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		v := float64(int16(binary.LittleEndian.Uint16(data[i*2 : i*2+2])))
		sum += v * v
	}
	return math.Sqrt(sum / float64(n))
}

// ZeroCrossingRate returns the fraction of adjacent sample pairs whose signs
// differ, in [0,1]. High rates correlate with fricatives and noise; for
// voiced speech the rate tracks fundamental frequency.
func ZeroCrossingRate(data []byte) float64 {
	n := len(data) / bytesPerSample
	if n < 2 {
		return 0
	}
	crossings := 0
	prev := int16(binary.LittleEndian.Uint16(data[0:2]))
	for i := 1; i < n; i++ {
		s := int16(binary.LittleEndian.Uint16(data[i*2 : i*2+2]))
		if (prev < 0) != (s < 0) {
			crossings++
		}
		prev = s
	}
	return float64(crossings) / float64(n-1)
}

// Samples decodes a PCM buffer into int16 samples. The transport guarantees
// even-length frames, so a trailing odd byte is ignored.
func Samples(data []byte) []int16 {
	n := len(data) / bytesPerSample
	out := make([]int16, n)
	for i := 0; i < n; i++ {
		out[i] = int16(binary.LittleEndian.Uint16(data[i*2 : i*2+2]))
	}
	return out
}
