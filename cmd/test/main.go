package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"time"

	"github.com/room4-2/asr-worker/messages"
	"github.com/room4-2/asr-worker/recognizer"

	"github.com/gorilla/websocket"
	"github.com/spf13/afero"
)

func main() {
	// Flags
	serverURL := flag.String("server", "ws://localhost:8082/ws", "device endpoint of the coordinator")
	audioFile := flag.String("file", "examples/user.pcm", "Audio file to send (PCM or WAV)")
	chunkSize := flag.Int("chunk", 3200, "bytes per frame (3200 = 100ms at 16kHz)")
	flag.Parse()

	log.Printf("🔌 Connecting to %s...", *serverURL)

	conn, _, err := websocket.DefaultDialer.Dial(*serverURL, nil)
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer conn.Close()

	log.Println("✅ Connected!")

	// Handle interrupt
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

	done := make(chan struct{})
	texts := make(chan string, 16)

	// Read recognized text from the coordinator
	go func() {
		defer close(done)
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				log.Println("Read error:", err)
				return
			}

			msg, err := messages.ParseDeviceMessage(data)
			if err != nil {
				log.Println("Parse error:", err)
				continue
			}

			switch msg.Type {
			case messages.TypeText:
				fmt.Printf("📝 %s\n", msg.Content)
				texts <- msg.Content
			default:
				log.Printf("❓ Unknown message: %s", data)
			}
		}
	}()

	listen := &messages.Control{Type: messages.TypeListen, Data: "start listening"}
	payload, err := listen.Marshal()
	if err != nil {
		log.Fatalf("Failed to encode listen message: %v", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		log.Fatalf("Failed to send listen message: %v", err)
	}

	log.Printf("📤 Sending audio file: %s", *audioFile)

	audioData, err := recognizer.ReadPCM(afero.NewOsFs(), *audioFile)
	if err != nil {
		log.Fatalf("Failed to load audio: %v", err)
	}

	// Send audio in chunks (simulating real-time streaming)
	size := *chunkSize
	chunks := (len(audioData) + size - 1) / size
	for i := 0; i < len(audioData); i += size {
		end := min(i+size, len(audioData))

		if err := conn.WriteMessage(websocket.BinaryMessage, audioData[i:end]); err != nil {
			log.Printf("Send error: %v", err)
			break
		}
		log.Printf("📤 Sent chunk %d/%d (%d bytes)", i/size+1, chunks, end-i)

		time.Sleep(100 * time.Millisecond)
	}

	log.Println("✅ Audio sent, waiting for responses...")

	received := 0
	timeout := time.After(30 * time.Second)
	for received < chunks {
		select {
		case <-texts:
			received++
		case <-done:
			log.Println("Connection closed")
			return
		case <-interrupt:
			log.Println("👋 Interrupted, closing...")
			conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case <-timeout:
			log.Printf("⏰ Timeout: %d/%d responses received", received, chunks)
			return
		}
	}

	log.Printf("✅ Received %d responses", received)
	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}
