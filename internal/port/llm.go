package port

import "context"

// Generator produces an answer for a fully rendered prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)

	// ModelName returns the name of the model.
	ModelName() string
}
