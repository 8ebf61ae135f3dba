package store

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"

	"filippo.io/age"
)

// Sealer encrypts values before they are written to the database
type Sealer interface {
	Seal(plaintext string) (string, error)
	Unseal(ciphertext string) (string, error)
}

type ageSealer struct {
	identity  *age.X25519Identity
	recipient *age.X25519Recipient
}

// NewAgeSealer builds a sealer from an AGE-SECRET-KEY-1... identity
func NewAgeSealer(identity string) (Sealer, error) {
	parsed, err := age.ParseX25519Identity(identity)
	if err != nil {
		return nil, fmt.Errorf("failed to parse sealing key: %w", err)
	}

	return &ageSealer{
		identity:  parsed,
		recipient: parsed.Recipient(),
	}, nil
}

// GenerateSealingKey returns a new age identity in its string form
func GenerateSealingKey() (string, error) {
	identity, err := age.GenerateX25519Identity()
	if err != nil {
		return "", fmt.Errorf("failed to generate sealing key: %w", err)
	}

	return identity.String(), nil
}

func (s *ageSealer) Seal(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}

	var ciphertext bytes.Buffer

	writer, err := age.Encrypt(&ciphertext, s.recipient)
	if err != nil {
		return "", fmt.Errorf("failed to create encryptor: %w", err)
	}

	if _, err := io.WriteString(writer, plaintext); err != nil {
		return "", fmt.Errorf("failed to write plaintext: %w", err)
	}

	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("failed to finalize encryption: %w", err)
	}

	return base64.StdEncoding.EncodeToString(ciphertext.Bytes()), nil
}

func (s *ageSealer) Unseal(ciphertext string) (string, error) {
	if ciphertext == "" {
		return "", nil
	}

	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("failed to decode sealed value: %w", err)
	}

	reader, err := age.Decrypt(bytes.NewReader(raw), s.identity)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt sealed value: %w", err)
	}

	plaintext, err := io.ReadAll(reader)
	if err != nil {
		return "", fmt.Errorf("failed to read decrypted value: %w", err)
	}

	return string(plaintext), nil
}
