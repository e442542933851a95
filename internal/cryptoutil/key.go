package cryptoutil

import (
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// KeySize is the length of a mirror encryption key.
const KeySize = 32

// ParseKey decodes a 32-byte key written as "base64:...", "hex:..." or bare
// base64 falling back to bare hex.
func ParseKey(key string) ([]byte, error) {
	trimmed := strings.TrimSpace(key)
	if trimmed == "" {
		return nil, errors.New("encryption key is empty")
	}
	data, err := decodeKey(trimmed)
	if err != nil {
		return nil, fmt.Errorf("decode key: %w", err)
	}
	if len(data) != KeySize {
		return nil, fmt.Errorf("invalid key length: %d (expected %d bytes)", len(data), KeySize)
	}
	return data, nil
}

func decodeKey(key string) ([]byte, error) {
	if rest, ok := strings.CutPrefix(key, "base64:"); ok {
		return base64.StdEncoding.DecodeString(rest)
	}
	if rest, ok := strings.CutPrefix(key, "hex:"); ok {
		return hex.DecodeString(rest)
	}
	if data, err := base64.StdEncoding.DecodeString(key); err == nil {
		return data, nil
	}
	return hex.DecodeString(key)
}
