// Package pcm converts between float sample buffers and 16-bit PCM.
package pcm

import (
	"encoding/binary"
	"math"
)

// Gain is the amplitude boost applied before quantization.
const Gain = 1.5

// ConvertAudioData amplifies samples by Gain, clamps to [-1, 1] and encodes
// them as signed 16-bit little-endian PCM. Negative values scale by 0x8000,
// positive by 0x7FFF, so the output always fits int16.
func ConvertAudioData(samples []float32) []byte {
	out := make([]byte, 2*len(samples))
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[2*i:], uint16(Quantize(s)))
	}
	return out
}

// Quantize maps one float sample to int16 using the ConvertAudioData rules.
func Quantize(s float32) int16 {
	v := float64(s) * Gain
	if math.IsNaN(v) {
		return 0
	}
	v = math.Max(-1, math.Min(1, v))
	if v < 0 {
		return int16(v * 0x8000)
	}
	return int16(v * 0x7FFF)
}

// Int16ToFloat decodes little-endian 16-bit PCM into floats in [-1, 1).
func Int16ToFloat(data []byte) []float32 {
	n := len(data) / 2
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		v := int16(binary.LittleEndian.Uint16(data[2*i:]))
		out[i] = float32(v) / 32768
	}
	return out
}
