package recognizer

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/spf13/afero"
	"go.uber.org/zap"
	"google.golang.org/genai"
)

func TestPlaceholder(t *testing.T) {
	p := NewPlaceholder("Hello, this is a test message.")

	text, err := p.Recognize(context.Background(), []byte{0xAA, 0xBB})
	if err != nil {
		t.Fatalf("Recognize failed: %v", err)
	}
	if text != "Hello, this is a test message." {
		t.Errorf("Recognize = %q", text)
	}
}

func TestPlaceholderCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := NewPlaceholder("x").Recognize(ctx, nil); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestFunc(t *testing.T) {
	var r Recognizer = Func(func(_ context.Context, pcm []byte) (string, error) {
		if len(pcm) == 0 {
			return "", errors.New("no audio")
		}
		return "got audio", nil
	})

	if text, err := r.Recognize(context.Background(), []byte{1}); err != nil || text != "got audio" {
		t.Errorf("Recognize = %q, %v", text, err)
	}
	if _, err := r.Recognize(context.Background(), nil); err == nil {
		t.Error("Expected error for empty payload")
	}
}

func TestEncodeWAV(t *testing.T) {
	pcm := []byte{0x01, 0x00, 0xFF, 0x7F, 0x00, 0x80, 0x09}

	data, err := EncodeWAV(pcm, DefaultWAVFormat)
	if err != nil {
		t.Fatalf("EncodeWAV failed: %v", err)
	}

	if !bytes.HasPrefix(data, []byte("RIFF")) {
		t.Errorf("missing RIFF header: % x", data[:min(len(data), 12)])
	}
	if len(data) < 12 || string(data[8:12]) != "WAVE" {
		t.Errorf("missing WAVE format tag")
	}
	// odd trailing byte dropped
	if !bytes.HasSuffix(data, pcm[:6]) {
		t.Errorf("samples not at end of file: % x", data)
	}
}

func TestEncodeWAVUnsupportedDepth(t *testing.T) {
	_, err := EncodeWAV([]byte{1, 2}, WAVFormat{SampleRate: 16000, Channels: 1, BitsPerSample: 8})
	if err == nil {
		t.Error("Expected error for 8-bit format")
	}
}

func TestReadPCM(t *testing.T) {
	fs := afero.NewMemMapFs()
	pcm := []byte{0x01, 0x00, 0xFF, 0x7F, 0x00, 0x80}

	wav, err := EncodeWAV(pcm, DefaultWAVFormat)
	if err != nil {
		t.Fatalf("EncodeWAV failed: %v", err)
	}
	if err := afero.WriteFile(fs, "speech.wav", wav, 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	if err := afero.WriteFile(fs, "speech.pcm", pcm, 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	tests := []struct {
		name string
		path string
	}{
		{"wav header stripped", "speech.wav"},
		{"raw pcm", "speech.pcm"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ReadPCM(fs, tt.path)
			if err != nil {
				t.Fatalf("ReadPCM failed: %v", err)
			}
			if !bytes.Equal(got, pcm) {
				t.Errorf("ReadPCM = % x, want % x", got, pcm)
			}
		})
	}

	if _, err := ReadPCM(fs, "missing.pcm"); err == nil {
		t.Error("Expected error for missing file")
	}
}

// riffChunk encodes one RIFF chunk, padding odd bodies
func riffChunk(id string, body []byte) []byte {
	out := make([]byte, 8, 8+len(body)+1)
	copy(out, id)
	binary.LittleEndian.PutUint32(out[4:], uint32(len(body)))
	out = append(out, body...)
	if len(body)%2 == 1 {
		out = append(out, 0)
	}
	return out
}

func TestReadPCMHonorsChunkSizes(t *testing.T) {
	pcm := []byte{0x01, 0x00, 0x02, 0x00, 0x03, 0x00}

	var chunks []byte
	chunks = append(chunks, riffChunk("fmt ", make([]byte, 16))...)
	// an odd-sized chunk whose body contains the bytes "data"
	chunks = append(chunks, riffChunk("note", []byte("data!"))...)
	chunks = append(chunks, riffChunk("data", pcm)...)
	chunks = append(chunks, riffChunk("LIST", []byte("INFOISFT"))...)

	file := make([]byte, 12, 12+len(chunks))
	copy(file, "RIFF")
	binary.LittleEndian.PutUint32(file[4:], uint32(4+len(chunks)))
	copy(file[8:], "WAVE")
	file = append(file, chunks...)

	fs := afero.NewMemMapFs()
	if err := afero.WriteFile(fs, "tagged.wav", file, 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	got, err := ReadPCM(fs, "tagged.wav")
	if err != nil {
		t.Fatalf("ReadPCM failed: %v", err)
	}
	if !bytes.Equal(got, pcm) {
		t.Errorf("ReadPCM = % x, want % x", got, pcm)
	}

	noData := append([]byte(nil), file[:12]...)
	noData = append(noData, riffChunk("fmt ", make([]byte, 16))...)
	if err := afero.WriteFile(fs, "empty.wav", noData, 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	if _, err := ReadPCM(fs, "empty.wav"); err == nil {
		t.Error("Expected error for wav without data chunk")
	}
}

type fakeGenerator struct {
	model    string
	contents []*genai.Content
	config   *genai.GenerateContentConfig
	resp     *genai.GenerateContentResponse
	err      error
}

func (f *fakeGenerator) GenerateContent(_ context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.model = model
	f.contents = contents
	f.config = config
	return f.resp, f.err
}

func textResponse(text string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{
			{Content: &genai.Content{Parts: []*genai.Part{{Text: text}}}},
		},
	}
}

func TestGeminiRecognize(t *testing.T) {
	gen := &fakeGenerator{resp: textResponse("  hello world \n")}
	g := newGemini(gen, "", DefaultWAVFormat, zap.NewNop())

	text, err := g.Recognize(context.Background(), []byte{0x10, 0x00, 0x20, 0x00})
	if err != nil {
		t.Fatalf("Recognize failed: %v", err)
	}
	if text != "hello world" {
		t.Errorf("Recognize = %q, want %q", text, "hello world")
	}

	if gen.model != DefaultGeminiModel {
		t.Errorf("model = %q, want %q", gen.model, DefaultGeminiModel)
	}
	if len(gen.contents) != 1 || len(gen.contents[0].Parts) != 2 {
		t.Fatalf("unexpected request contents: %+v", gen.contents)
	}
	audio := gen.contents[0].Parts[1].InlineData
	if audio == nil || audio.MIMEType != "audio/wav" {
		t.Fatalf("audio part = %+v, want audio/wav inline data", audio)
	}
	if !bytes.HasPrefix(audio.Data, []byte("RIFF")) {
		t.Error("audio part is not a WAV file")
	}
	if gen.config == nil || gen.config.SystemInstruction == nil {
		t.Error("missing system instruction")
	}
}

func TestGeminiRecognizeError(t *testing.T) {
	gen := &fakeGenerator{err: errors.New("quota exceeded")}
	g := newGemini(gen, "gemini-test", DefaultWAVFormat, zap.NewNop())

	_, err := g.Recognize(context.Background(), []byte{0x10, 0x00})
	if err == nil || !errors.Is(err, gen.err) {
		t.Errorf("Expected wrapped generator error, got %v", err)
	}
	if gen.model != "gemini-test" {
		t.Errorf("model = %q, want gemini-test", gen.model)
	}
}

func TestGeminiRecognizeEmptyAudio(t *testing.T) {
	gen := &fakeGenerator{resp: textResponse("never")}
	g := newGemini(gen, "", DefaultWAVFormat, zap.NewNop())

	if _, err := g.Recognize(context.Background(), []byte{0x01}); !errors.Is(err, ErrEmptyAudio) {
		t.Errorf("Expected ErrEmptyAudio, got %v", err)
	}
	if gen.contents != nil {
		t.Error("generator called for empty audio")
	}
}
