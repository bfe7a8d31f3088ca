// Package transcribe turns voice notes into text for the dashboard.
//
// Only a stub is provided: it waits and answers with one of a fixed set of
// towing-service phrases.
package transcribe

import (
	"context"
	"math/rand/v2"
	"time"
)

// DefaultDelay is how long the stub pretends to work.
const DefaultDelay = 2 * time.Second

var cannedTexts = []string{
	"Preciso de um guincho para meu carro quebrado na avenida principal.",
	"Meu carro quebrou na rua das flores, preciso de socorro.",
	"Qual o valor do guincho para um carro médio?",
	"Estou com o carro avariado na marginal, preciso de ajuda.",
	"O guincho está a caminho? Já faz meia hora que solicitei.",
}

// Texts returns the phrases the stub answers with.
func Texts() []string {
	out := make([]string, len(cannedTexts))
	copy(out, cannedTexts)
	return out
}

// Stub is a fake transcriber.
type Stub struct {
	delay time.Duration
	pick  func(n int) int
}

// Option configures a Stub.
type Option func(*Stub)

// WithPicker replaces the random phrase picker.
func WithPicker(pick func(n int) int) Option {
	return func(s *Stub) { s.pick = pick }
}

// NewStub creates a stub that answers after delay. A negative delay means
// DefaultDelay.
func NewStub(delay time.Duration, opts ...Option) *Stub {
	if delay < 0 {
		delay = DefaultDelay
	}
	s := &Stub{delay: delay, pick: rand.IntN}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Transcribe ignores the audio and returns a canned phrase.
func (s *Stub) Transcribe(ctx context.Context, _ []byte) (string, error) {
	if s.delay > 0 {
		t := time.NewTimer(s.delay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-t.C:
		}
	}
	return cannedTexts[s.pick(len(cannedTexts))], nil
}
