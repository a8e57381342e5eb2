package audio

import (
	"encoding/binary"
	"math"
)

// Quantize converts a float sample to signed 16-bit PCM. The sample is
// clamped to [-1, 1], negative values scale by 32768 and non-negative values
// by 32767, and the result is truncated toward zero.
func Quantize(x float32) int16 {
	v := float64(x)
	if math.IsNaN(v) {
		return 0
	}
	if v < -1 {
		v = -1
	} else if v > 1 {
		v = 1
	}
	if v < 0 {
		return int16(v * 32768)
	}
	return int16(v * 32767)
}

// QuantizeInterleaved converts planar float channels into interleaved int16
// samples, writing into dst when it has room.
func QuantizeInterleaved(dst []int16, channels [][]float32) []int16 {
	if len(channels) == 0 {
		return dst[:0]
	}
	frames := len(channels[0])
	n := frames * len(channels)
	if cap(dst) < n {
		dst = make([]int16, n)
	}
	dst = dst[:n]
	idx := 0
	for i := 0; i < frames; i++ {
		for _, ch := range channels {
			dst[idx] = Quantize(ch[i])
			idx++
		}
	}
	return dst
}

// SamplesToBytes converts int16 samples to little-endian bytes.
func SamplesToBytes(samples []int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}
