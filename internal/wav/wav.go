// Package wav writes canonical 16-bit PCM RIFF/WAVE files.
package wav

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/satindergrewal/aura/internal/audio"
)

// HeaderSize is the size of the canonical header in bytes.
const HeaderSize = 44

const bitsPerSample = 16

// streamDataSize is the data size written into headers of unbounded streams.
const streamDataSize = math.MaxUint32 - 36

var errShortHeader = errors.New("wav: header shorter than 44 bytes")

// Header is the canonical 44-byte PCM header.
type Header struct {
	SampleRate int
	Channels   int
	DataSize   uint32
}

// ChunkSize is the RIFF chunk size: 36 + DataSize.
func (h Header) ChunkSize() uint32 { return 36 + h.DataSize }

// ByteRate is SampleRate * Channels * 2.
func (h Header) ByteRate() uint32 { return uint32(h.SampleRate * h.Channels * bitsPerSample / 8) }

// BlockAlign is Channels * 2.
func (h Header) BlockAlign() uint16 { return uint16(h.Channels * bitsPerSample / 8) }

// MarshalBinary returns the header bytes.
func (h Header) MarshalBinary() ([]byte, error) {
	if h.SampleRate <= 0 || h.Channels <= 0 || h.Channels > math.MaxUint16 {
		return nil, fmt.Errorf("wav: invalid format %d Hz, %d channels", h.SampleRate, h.Channels)
	}
	b := make([]byte, HeaderSize)
	le := binary.LittleEndian
	copy(b[0:4], "RIFF")
	le.PutUint32(b[4:8], h.ChunkSize())
	copy(b[8:12], "WAVE")
	copy(b[12:16], "fmt ")
	le.PutUint32(b[16:20], 16) // PCM fmt chunk size
	le.PutUint16(b[20:22], 1)  // PCM
	le.PutUint16(b[22:24], uint16(h.Channels))
	le.PutUint32(b[24:28], uint32(h.SampleRate))
	le.PutUint32(b[28:32], h.ByteRate())
	le.PutUint16(b[32:34], h.BlockAlign())
	le.PutUint16(b[34:36], bitsPerSample)
	copy(b[36:40], "data")
	le.PutUint32(b[40:44], h.DataSize)
	return b, nil
}

// ParseHeader reads a canonical header written by this package.
func ParseHeader(b []byte) (Header, error) {
	if len(b) < HeaderSize {
		return Header{}, errShortHeader
	}
	if string(b[0:4]) != "RIFF" || string(b[8:12]) != "WAVE" || string(b[12:16]) != "fmt " || string(b[36:40]) != "data" {
		return Header{}, errors.New("wav: not a canonical RIFF/WAVE header")
	}
	le := binary.LittleEndian
	if le.Uint16(b[20:22]) != 1 || le.Uint16(b[34:36]) != bitsPerSample {
		return Header{}, errors.New("wav: not 16-bit PCM")
	}
	return Header{
		SampleRate: int(le.Uint32(b[24:28])),
		Channels:   int(le.Uint16(b[22:24])),
		DataSize:   le.Uint32(b[40:44]),
	}, nil
}

// StreamHeader returns a header for a live stream of unknown length.
func StreamHeader(sampleRate, channels int) ([]byte, error) {
	return Header{SampleRate: sampleRate, Channels: channels, DataSize: streamDataSize}.MarshalBinary()
}

// Encode returns buf as a WAV file. Output is a pure function of the buffer.
func Encode(buf *audio.Buffer) ([]byte, error) {
	var out bytes.Buffer
	if buf != nil {
		out.Grow(HeaderSize + buf.Len()*buf.NumChannels()*2)
	}
	if _, err := Write(&out, buf); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

// writeFrames is how many frames Write quantizes per chunk.
const writeFrames = 4096

// Write encodes buf to w, returning the number of bytes written.
func Write(w io.Writer, buf *audio.Buffer) (int64, error) {
	if buf == nil {
		return 0, errors.New("wav: nil buffer")
	}
	size := uint64(buf.Len()) * uint64(buf.NumChannels()) * 2
	if size > streamDataSize {
		return 0, fmt.Errorf("wav: %d bytes of audio exceeds the RIFF size limit", size)
	}
	hdr, err := Header{SampleRate: buf.SampleRate, Channels: buf.NumChannels(), DataSize: uint32(size)}.MarshalBinary()
	if err != nil {
		return 0, err
	}
	n, err := w.Write(hdr)
	total := int64(n)
	if err != nil {
		return total, err
	}

	var samples []int16
	chunk := make([][]float32, buf.NumChannels())
	for pos := 0; pos < buf.Len(); pos += writeFrames {
		end := min(pos+writeFrames, buf.Len())
		for ch := range chunk {
			chunk[ch] = buf.Data[ch][pos:end]
		}
		samples = audio.QuantizeInterleaved(samples, chunk)
		n, err := w.Write(audio.SamplesToBytes(samples))
		total += int64(n)
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
