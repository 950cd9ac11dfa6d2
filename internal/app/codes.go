package app

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"

	"github.com/Sixtor24/Spanish-Blitz-sub000/internal/domain"
)

// codeAlphabet leaves out 0/O and 1/I so codes survive being read aloud.
const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// CodeGenerator produces join codes that are not used by any session.
type CodeGenerator struct {
	store   SessionStore
	retries int
	random  func() (string, error)
}

func NewCodeGenerator(store SessionStore, retries int) *CodeGenerator {
	if retries <= 0 {
		retries = 8
	}
	return &CodeGenerator{store: store, retries: retries, random: randomCode}
}

// Generate returns a code unused at the time of the check. The store's unique
// constraint still guards the insert; callers retry on domain.ErrCodeTaken.
func (g *CodeGenerator) Generate(ctx context.Context) (string, error) {
	for i := 0; i < g.retries; i++ {
		code, err := g.random()
		if err != nil {
			return "", err
		}
		inUse, err := g.store.CodeInUse(ctx, code)
		if err != nil {
			return "", fmt.Errorf("check join code: %w", err)
		}
		if !inUse {
			return code, nil
		}
	}
	return "", domain.ErrCodeSpaceExhausted
}

// NormalizeCode canonicalizes user input. ok is false when it cannot be a code.
func NormalizeCode(raw string) (string, bool) {
	code := strings.ToUpper(strings.TrimSpace(raw))
	if len(code) != domain.CodeLength {
		return "", false
	}
	for _, r := range code {
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return "", false
		}
	}
	return code, true
}

func randomCode() (string, error) {
	size := big.NewInt(int64(len(codeAlphabet)))
	b := make([]byte, domain.CodeLength)
	for i := range b {
		n, err := rand.Int(rand.Reader, size)
		if err != nil {
			return "", fmt.Errorf("generate join code: %w", err)
		}
		b[i] = codeAlphabet[n.Int64()]
	}
	return string(b), nil
}
