// ChefMate - AI recipe recommendation agent
// License: MIT
//
// Copyright (c) 2026 ChefMate contributors

package providers

import (
	"context"
	"strings"
)

// MockGenerator is a canned-response generator for tests and offline runs.
type MockGenerator struct {
	Reply string
	Err   error
	// Prompts records everything sent through the mock.
	Prompts []string
}

func (m *MockGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.Prompts = append(m.Prompts, prompt)
	if m.Err != nil {
		return "", m.Err
	}
	if m.Reply != "" {
		return m.Reply, nil
	}
	return "（模拟回复）", nil
}

func (m *MockGenerator) GenerateStream(ctx context.Context, prompt string, onFragment func(string)) error {
	reply, err := m.Generate(ctx, prompt)
	if err != nil {
		return err
	}
	for _, word := range strings.Fields(reply) {
		onFragment(word)
	}
	return nil
}
