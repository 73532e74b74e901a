// Package oauth exchanges authorization codes with external identity
// providers and returns the profile fields sign-in needs.
package oauth

import (
	"context"
	"errors"
	"strings"
)

var (
	ErrUnsupportedProvider = errors.New("unsupported oauth provider")
	ErrExchange            = errors.New("oauth exchange failed")
	ErrNoEmail             = errors.New("provider returned no email")
)

type Profile struct {
	Email     string
	Name      string
	AvatarURL string
}

type Provider interface {
	Name() string
	Exchange(ctx context.Context, code string) (*Profile, error)
}

type Registry map[string]Provider

func NewRegistry(providers ...Provider) Registry {
	r := make(Registry, len(providers))
	for _, p := range providers {
		r[strings.ToLower(p.Name())] = p
	}
	return r
}

func (r Registry) Get(name string) (Provider, error) {
	p, ok := r[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, ErrUnsupportedProvider
	}
	return p, nil
}
