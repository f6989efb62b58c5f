// ChefMate - AI recipe recommendation agent
// License: MIT
//
// Copyright (c) 2026 ChefMate contributors

package providers

import (
	"context"
	"errors"
)

// ErrTimeout marks a text-generation call that exceeded its deadline.
// The engine degrades gracefully on it instead of failing the request.
var ErrTimeout = errors.New("text generation timed out")

// TextGenerator is the black-box conversational model collaborator.
// Calls must respect ctx deadlines; a caller-supplied timeout bounds
// every invocation so no user lock is held indefinitely.
type TextGenerator interface {
	// Generate returns the full completion for prompt.
	Generate(ctx context.Context, prompt string) (string, error)
	// GenerateStream invokes onFragment for each text fragment as it
	// arrives and returns once the stream ends.
	GenerateStream(ctx context.Context, prompt string, onFragment func(string)) error
}
