package recognizer

import (
	"encoding/binary"
	"fmt"

	"github.com/spf13/afero"
	"github.com/zenwerk/go-wave"
)

const wavFileName = "payload.wav"

// WAVFormat describes the raw PCM carried in frames
type WAVFormat struct {
	SampleRate    int
	Channels      int
	BitsPerSample int
}

// DefaultWAVFormat is 16 kHz mono signed 16-bit little-endian PCM
var DefaultWAVFormat = WAVFormat{
	SampleRate:    16000,
	Channels:      1,
	BitsPerSample: 16,
}

// EncodeWAV wraps 16-bit little-endian PCM in a WAV container.
// A trailing odd byte is dropped.
func EncodeWAV(pcm []byte, format WAVFormat) ([]byte, error) {
	if format.BitsPerSample != 16 {
		return nil, fmt.Errorf("unsupported bits per sample: %d", format.BitsPerSample)
	}

	fs := afero.NewMemMapFs()
	out, err := fs.Create(wavFileName)
	if err != nil {
		return nil, fmt.Errorf("failed to create wav buffer: %w", err)
	}

	writer, err := wave.NewWriter(wave.WriterParam{
		Out:           out,
		Channel:       format.Channels,
		SampleRate:    format.SampleRate,
		BitsPerSample: format.BitsPerSample,
	})
	if err != nil {
		out.Close()
		return nil, fmt.Errorf("failed to create wav writer: %w", err)
	}

	samples := pcmToSamples(pcm)
	if len(samples) > 0 {
		if _, err := writer.WriteSample16(samples); err != nil {
			writer.Close()
			return nil, fmt.Errorf("failed to write samples: %w", err)
		}
	}

	// Close writes the header sizes and closes out
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish wav: %w", err)
	}

	return afero.ReadFile(fs, wavFileName)
}

func pcmToSamples(pcm []byte) []int16 {
	samples := make([]int16, len(pcm)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(pcm[i*2 : i*2+2]))
	}
	return samples
}

// ReadPCM loads raw PCM from path. WAV files are reduced to their data chunk.
func ReadPCM(fs afero.Fs, path string) ([]byte, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read audio file: %w", err)
	}

	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return data, nil
	}

	pcm, ok := dataChunk(data[12:])
	if !ok {
		return nil, fmt.Errorf("wav file %s has no data chunk", path)
	}
	return pcm, nil
}

// dataChunk walks RIFF chunk headers and returns the body of the "data" chunk.
// A declared size past the end of the file is clamped, as streaming writers leave it unset.
func dataChunk(chunks []byte) ([]byte, bool) {
	pos := 0
	for pos+8 <= len(chunks) {
		id := string(chunks[pos : pos+4])
		size := int(binary.LittleEndian.Uint32(chunks[pos+4 : pos+8]))
		start := pos + 8
		if size < 0 || size > len(chunks)-start {
			size = len(chunks) - start
		}

		if id == "data" {
			return chunks[start : start+size], true
		}

		// chunk bodies are padded to an even length
		pos = start + size + size&1
	}
	return nil, false
}
