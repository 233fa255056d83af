package objectkey

import (
	"io"
	"time"
)

// Generator defines the interface for storage key generation strategies
type Generator interface {
	// GenerateKey mints a fresh, unique storage key for displayName
	GenerateKey(displayName string) (string, error)
}

// SaltedGenerator mints keys with Encode and a fresh Salt per call.
// It holds no mutable state and is safe for concurrent use.
type SaltedGenerator struct {
	// Now returns the salt timestamp (default: time.Now)
	Now func() time.Time

	// Rand supplies the salt's random bytes (default: crypto/rand)
	Rand io.Reader
}

func NewSaltedGenerator() *SaltedGenerator {
	return &SaltedGenerator{}
}

func (g *SaltedGenerator) GenerateKey(displayName string) (string, error) {
	if err := ValidateDisplayName(displayName); err != nil {
		return "", err
	}
	now := time.Now
	if g.Now != nil {
		now = g.Now
	}
	salt, err := NewSalt(now(), g.Rand)
	if err != nil {
		return "", err
	}
	return Encode(displayName, salt)
}

// CustomFuncGenerator allows users to provide their own key generation function.
// Keys it returns must still decode with Decode for downloads to recover the name.
type CustomFuncGenerator struct {
	GenerateFunc func(displayName string) (string, error)
}

func NewCustomFuncGenerator(fn func(displayName string) (string, error)) *CustomFuncGenerator {
	return &CustomFuncGenerator{
		GenerateFunc: fn,
	}
}

func (g *CustomFuncGenerator) GenerateKey(displayName string) (string, error) {
	return g.GenerateFunc(displayName)
}

// NewRecommendedGenerator returns the generator used by the service by default
func NewRecommendedGenerator() Generator {
	return NewSaltedGenerator()
}
