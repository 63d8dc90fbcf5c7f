// Package recognizer defines the speech recognition step of the worker loop
// and its implementations.
package recognizer

import "context"

// Recognizer turns one PCM payload into text
type Recognizer interface {
	Recognize(ctx context.Context, pcm []byte) (string, error)
}

// Func adapts a plain function to the Recognizer interface
type Func func(ctx context.Context, pcm []byte) (string, error)

// Recognize implements Recognizer
func (f Func) Recognize(ctx context.Context, pcm []byte) (string, error) {
	return f(ctx, pcm)
}

// Placeholder returns the same text for every payload
type Placeholder struct {
	Text string
}

// NewPlaceholder creates a recognizer that always answers text
func NewPlaceholder(text string) *Placeholder {
	return &Placeholder{Text: text}
}

// Recognize implements Recognizer
func (p *Placeholder) Recognize(ctx context.Context, _ []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return p.Text, nil
}
