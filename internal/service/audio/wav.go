// Package audio opens recordings and strips container framing so the raw
// samples can be streamed to a speech provider.
package audio

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
)

// WAV audio format tags.
const (
	FormatPCM        uint16 = 1
	FormatIEEEFloat  uint16 = 3
	FormatALaw       uint16 = 6
	FormatMuLaw      uint16 = 7
	FormatExtensible uint16 = 0xFFFE
)

// ErrMalformedWAV is returned when a RIFF/WAVE file has no usable fmt or data chunk.
var ErrMalformedWAV = errors.New("malformed WAV file")

// Format describes the sample layout from a WAV fmt chunk.
type Format struct {
	AudioFormat   uint16
	Channels      uint16
	SampleRate    uint32
	BitsPerSample uint16
}

// Encoding maps the format to a provider encoding name, or "" when the
// samples need a format the provider cannot take as-is.
func (f Format) Encoding() string {
	switch {
	case (f.AudioFormat == FormatPCM || f.AudioFormat == FormatExtensible) && f.BitsPerSample == 16:
		return "LINEAR16"
	case f.AudioFormat == FormatMuLaw:
		return "MULAW"
	default:
		return ""
	}
}

// Name returns a readable name for the sample format.
func (f Format) Name() string {
	switch f.AudioFormat {
	case FormatPCM:
		return "PCM"
	case FormatIEEEFloat:
		return "IEEE float"
	case FormatALaw:
		return "A-law"
	case FormatMuLaw:
		return "mu-law"
	case FormatExtensible:
		return "extensible"
	default:
		return fmt.Sprintf("format 0x%04x", f.AudioFormat)
	}
}

// BytesPerSecond returns the data rate, zero if the header is incomplete.
func (f Format) BytesPerSecond() int {
	return int(f.SampleRate) * f.FrameSize()
}

// FrameSize returns the bytes per sample frame across all channels.
func (f Format) FrameSize() int {
	return int(f.Channels) * int(f.BitsPerSample) / 8
}

// Source is an audio payload with the container header already consumed.
type Source struct {
	// Format is zero when the input is not a WAV file.
	Format Format
	// IsWAV reports whether a RIFF/WAVE header was parsed.
	IsWAV bool
	// DataSize is the declared data chunk size, -1 when unknown.
	DataSize int64

	r      io.Reader
	closer io.Closer
}

// Open opens path and parses its header.
func Open(path string) (*Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open audio: %w", err)
	}

	src, err := NewSource(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	src.closer = f
	return src, nil
}

// NewSource reads the container header from r, if any. Input that does not
// start with a RIFF/WAVE header is passed through unchanged.
func NewSource(r io.Reader) (*Source, error) {
	br := bufio.NewReader(r)

	head, err := br.Peek(12)
	if err != nil || string(head[0:4]) != "RIFF" || string(head[8:12]) != "WAVE" {
		// Short or non-RIFF input is streamed raw.
		return &Source{DataSize: -1, r: br}, nil
	}
	if _, err := br.Discard(12); err != nil {
		return nil, err
	}

	src := &Source{IsWAV: true, DataSize: -1}
	haveFmt := false
	chunk := make([]byte, 8)
	for {
		if _, err := io.ReadFull(br, chunk); err != nil {
			return nil, fmt.Errorf("%w: no data chunk", ErrMalformedWAV)
		}
		id := string(chunk[0:4])
		size := binary.LittleEndian.Uint32(chunk[4:8])

		switch id {
		case "fmt ":
			if size < 16 {
				return nil, fmt.Errorf("%w: fmt chunk is %d bytes", ErrMalformedWAV, size)
			}
			body := make([]byte, size)
			if _, err := io.ReadFull(br, body); err != nil {
				return nil, fmt.Errorf("%w: truncated fmt chunk", ErrMalformedWAV)
			}
			src.Format = Format{
				AudioFormat:   binary.LittleEndian.Uint16(body[0:2]),
				Channels:      binary.LittleEndian.Uint16(body[2:4]),
				SampleRate:    binary.LittleEndian.Uint32(body[4:8]),
				BitsPerSample: binary.LittleEndian.Uint16(body[14:16]),
			}
			haveFmt = true
			if err := skipPad(br, size); err != nil {
				return nil, err
			}
		case "data":
			if !haveFmt {
				return nil, fmt.Errorf("%w: data chunk before fmt chunk", ErrMalformedWAV)
			}
			// Streaming writers leave the size at 0xFFFFFFFF.
			if size == 0xFFFFFFFF {
				src.r = br
			} else {
				src.DataSize = int64(size)
				src.r = io.LimitReader(br, int64(size))
			}
			return src, nil
		default:
			if _, err := br.Discard(int(size)); err != nil {
				return nil, fmt.Errorf("%w: truncated %q chunk", ErrMalformedWAV, id)
			}
			if err := skipPad(br, size); err != nil {
				return nil, err
			}
		}
	}
}

// RIFF chunks are word aligned.
func skipPad(br *bufio.Reader, size uint32) error {
	if size%2 == 0 {
		return nil
	}
	if _, err := br.Discard(1); err != nil {
		return fmt.Errorf("%w: truncated chunk padding", ErrMalformedWAV)
	}
	return nil
}

// Read reads audio payload bytes.
func (s *Source) Read(p []byte) (int, error) {
	return s.r.Read(p)
}

// Close closes the underlying file, if Open created one.
func (s *Source) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}
