package domain

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
)

const correlationIDBytes = 8

// GenerateCorrelationID returns 16 uppercase hex characters read from src.
// A nil src means crypto/rand.
func GenerateCorrelationID(src io.Reader) (string, error) {
	if src == nil {
		src = rand.Reader
	}

	randomBytes := make([]byte, correlationIDBytes)
	_, err := io.ReadFull(src, randomBytes)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrEntropySourceUnavailable, err)
	}

	return strings.ToUpper(hex.EncodeToString(randomBytes)), nil
}
