package main

import (
	"context"
	"flag"
	"log"
	"time"

	"github.com/room4-2/asr-worker/config"
	"github.com/room4-2/asr-worker/logging"
	"github.com/room4-2/asr-worker/recognizer"

	"github.com/spf13/afero"
)

func main() {
	audioFile := flag.String("file", "examples/user.pcm", "Audio file to transcribe (PCM or WAV)")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if !cfg.RecognizerEnabled() {
		log.Fatal("GEMINI_API_KEY not set")
	}

	logger, err := logging.New("debug", "console")
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	pcm, err := recognizer.ReadPCM(afero.NewOsFs(), *audioFile)
	if err != nil {
		log.Fatalf("Failed to load audio: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.RecognizeTimeout)
	defer cancel()

	format := recognizer.DefaultWAVFormat
	format.SampleRate = cfg.SampleRate
	rec, err := recognizer.NewGemini(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, format, logger)
	if err != nil {
		log.Fatalf("Failed to create recognizer: %v", err)
	}

	log.Printf("📤 Transcribing %s (%d bytes)...", *audioFile, len(pcm))
	start := time.Now()

	text, err := rec.Recognize(ctx, pcm)
	if err != nil {
		log.Fatalf("❌ Recognition failed: %v", err)
	}

	log.Printf("✅ Done in %s", time.Since(start).Round(time.Millisecond))
	log.Printf("💬 %s", text)
}
