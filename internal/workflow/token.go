package workflow

import (
	"fmt"

	nanoid "github.com/matoous/go-nanoid/v2"
)

// tokenPrefix marks workflow prompt tokens.
const tokenPrefix = "wf-"

const tokenAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

const tokenLength = 12

// newToken returns a new URL-safe prompt token.
func newToken() (string, error) {
	id, err := nanoid.Generate(tokenAlphabet, tokenLength)
	if err != nil {
		return "", fmt.Errorf("generating token: %w", err)
	}
	return tokenPrefix + id, nil
}
