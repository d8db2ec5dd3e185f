package ai

import (
	"context"
	"errors"
)

var (
	ErrEmptyResponse = errors.New("generation backend returned no text")
	ErrBackend       = errors.New("generation backend request failed")
)

// Turn is one prior message of a conversation in internal role vocabulary (user, assistant).
type Turn struct {
	Role    string
	Content string
}

type Generator interface {
	Generate(ctx context.Context, prompt string, history []Turn) (string, error)
	Provider() string
}
