package session

import (
	"context"
	"fmt"
)

// Parser converts document files into a structured extraction payload.
// Implemented by extract.OpenAIParser.
type Parser interface {
	Parse(ctx context.Context, filePaths []string, instruction string) (map[string]any, error)
}

// Creator is the slice of the session store the factory needs.
type Creator interface {
	Create(sess Session) (string, error)
}

// Factory creates new sessions from uploaded documents.
type Factory struct {
	parser      Parser
	store       Creator
	instruction string // optional extraction instruction override
}

// NewFactory creates a Factory with its collaborators injected.
func NewFactory(parser Parser, store Creator, instruction string) *Factory {
	return &Factory{parser: parser, store: store, instruction: instruction}
}

// CreateSession extracts structured data from the uploaded file and persists
// a new session with status "new". On extraction failure nothing is
// persisted and the error is propagated to the caller.
func (f *Factory) CreateSession(ctx context.Context, filePath string) (string, error) {
	data, err := f.parser.Parse(ctx, []string{filePath}, f.instruction)
	if err != nil {
		return "", fmt.Errorf("session: extract %s: %w", filePath, err)
	}

	id, err := f.store.Create(Session{
		FilePath:  filePath,
		Data:      data,
		Status:    StatusNew,
		Reminders: []Reminder{},
	})
	if err != nil {
		return "", fmt.Errorf("session: create: %w", err)
	}
	return id, nil
}
