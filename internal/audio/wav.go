package audio

import (
	"errors"
	"fmt"
	"io"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// PCM is a decoded mono sample stream.
type PCM struct {
	Samples    []int
	SampleRate int
	BitDepth   int
}

// Duration in seconds.
func (p PCM) Duration() float64 {
	if p.SampleRate <= 0 {
		return 0
	}
	return float64(len(p.Samples)) / float64(p.SampleRate)
}

// WAVDecoder loads PCM WAV files produced by Preprocess.
type WAVDecoder struct{}

func (WAVDecoder) Decode(path string) (PCM, error) {
	f, err := os.Open(path)
	if err != nil {
		return PCM{}, err
	}
	defer f.Close()
	return DecodeWAV(f)
}

func DecodeWAV(r io.ReadSeeker) (PCM, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return PCM{}, errors.New("decode wav: not a valid PCM wav file")
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return PCM{}, fmt.Errorf("decode wav: %w", err)
	}
	channels := int(dec.NumChans)
	samples := buf.Data
	if channels > 1 {
		samples = downmix(samples, channels)
	}
	return PCM{Samples: samples, SampleRate: int(dec.SampleRate), BitDepth: int(dec.BitDepth)}, nil
}

// EncodeWAV writes mono samples as PCM WAV to w.
func EncodeWAV(w io.WriteSeeker, samples []int, sampleRate, bitDepth int) error {
	if bitDepth == 0 {
		bitDepth = 16
	}
	enc := wav.NewEncoder(w, sampleRate, bitDepth, 1, 1)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: sampleRate},
		Data:           samples,
		SourceBitDepth: bitDepth,
	}
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("encode wav: %w", err)
	}
	return enc.Close()
}

func downmix(interleaved []int, channels int) []int {
	out := make([]int, len(interleaved)/channels)
	for i := range out {
		sum := 0
		for c := 0; c < channels; c++ {
			sum += interleaved[i*channels+c]
		}
		out[i] = sum / channels
	}
	return out
}
