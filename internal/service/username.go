package service

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
)

const (
	maxUsernameBase    = 24
	usernameAttempts   = 10
	fallbackUsername   = "user"
	usernameSuffixSpan = 10000
)

// usernameBase derives the local part of an email as a username candidate.
func usernameBase(email string) string {
	local, _, _ := strings.Cut(email, "@")
	var b strings.Builder
	for _, r := range strings.ToLower(local) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '.', r == '_':
			b.WriteRune(r)
		}
		if b.Len() >= maxUsernameBase {
			break
		}
	}
	base := strings.Trim(b.String(), "._")
	if base == "" {
		return fallbackUsername
	}
	return base
}

func randomSuffix() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(usernameSuffixSpan))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%04d", n.Int64()), nil
}

// uniqueUsername returns base if it is free, else base plus a short random
// suffix.
func (h *AuthService) uniqueUsername(ctx context.Context, email string) (string, error) {
	base := usernameBase(email)

	taken, err := h.Repo.UsernameTaken(ctx, base)
	if err != nil {
		return "", err
	}
	if !taken {
		return base, nil
	}

	for i := 0; i < usernameAttempts; i++ {
		suffix, err := randomSuffix()
		if err != nil {
			return "", err
		}
		candidate := base + suffix
		taken, err := h.Repo.UsernameTaken(ctx, candidate)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("no free username for %q after %d attempts", base, usernameAttempts)
}
