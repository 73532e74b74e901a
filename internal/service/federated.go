package service

import (
	"context"
	"errors"
	"strings"

	"github.com/Skotchmaster/campus_events/internal/events"
	"github.com/Skotchmaster/campus_events/internal/logging"
	"github.com/Skotchmaster/campus_events/internal/models"
	"github.com/Skotchmaster/campus_events/internal/oauth"
	"github.com/Skotchmaster/campus_events/internal/repo"
)

// FederatedSignIn exchanges an authorization code, finds or creates the
// account by email and starts a fresh session. Unlike Login it revokes every
// earlier session of the account first.
func (h *AuthService) FederatedSignIn(ctx context.Context, providerName, code string) (*AuthResult, error) {
	l := logging.FromContext(ctx).With("svc", "auth.federated", "provider", providerName)

	providerName = strings.TrimSpace(providerName)
	code = strings.TrimSpace(code)
	if providerName == "" || code == "" {
		return nil, validationf("provider and code are required")
	}

	provider, err := h.Providers.Get(providerName)
	if err != nil {
		return nil, validationf("unsupported provider %q", providerName)
	}

	profile, err := provider.Exchange(ctx, code)
	if err != nil {
		h.Metrics.Login("oauth", "provider_error")
		l.Warn("oauth_exchange_failed", "error", err)
		if errors.Is(err, oauth.ErrNoEmail) {
			return nil, validationf("provider account has no usable email")
		}
		return nil, ErrProviderUnavailable
	}

	email, err := normalizeEmail(profile.Email)
	if err != nil {
		h.Metrics.Login("oauth", "provider_error")
		l.Warn("oauth_exchange_failed", "reason", "malformed email from provider")
		return nil, err
	}

	user, created, err := h.findOrCreateFederated(ctx, email, profile)
	if err != nil {
		l.Error("oauth_signin_failed", "error", err)
		return nil, err
	}

	if err := h.checkBan(ctx, user); err != nil {
		h.Metrics.Login("oauth", "banned")
		return nil, err
	}

	if err := h.revokeAll(ctx, user.ID, ReasonFederated); err != nil {
		return nil, err
	}

	res, err := h.issueSession(ctx, user)
	if err != nil {
		l.Error("oauth_signin_failed", "reason", "cannot issue tokens", "error", err)
		return nil, err
	}

	if created {
		h.publish(ctx, events.Event{Type: events.TypeUserRegistered, UserID: user.ID.String(), Provider: provider.Name()})
	}
	h.publish(ctx, events.Event{Type: events.TypeUserLoggedIn, UserID: user.ID.String(), Provider: provider.Name()})
	h.Metrics.Login("oauth", "ok")
	l.Info("oauth_signin_successful", "user_id", user.ID, "created", created)
	return res, nil
}

func (h *AuthService) findOrCreateFederated(ctx context.Context, email string, profile *oauth.Profile) (*models.User, bool, error) {
	user, err := h.Repo.GetUserByEmail(ctx, email)
	if err == nil {
		if err := h.Repo.FillProfileGaps(ctx, user, profile.Name, profile.AvatarURL); err != nil {
			return nil, false, err
		}
		return user, false, nil
	}
	if !errors.Is(err, repo.ErrUserNotFound) {
		return nil, false, err
	}

	username, err := h.uniqueUsername(ctx, email)
	if err != nil {
		return nil, false, err
	}
	name := strings.TrimSpace(profile.Name)
	if name == "" {
		name = username
	}

	user = &models.User{
		Email:        email,
		Username:     username,
		Name:         name,
		ProfileImage: profile.AvatarURL,
		Role:         models.RoleUser,
	}
	if err := h.Repo.CreateUserIfNotExists(ctx, user); err != nil {
		if errors.Is(err, repo.ErrUserAlreadyExist) {
			// Lost a race with a concurrent sign-in for the same email.
			existing, getErr := h.Repo.GetUserByEmail(ctx, email)
			if getErr != nil {
				return nil, false, getErr
			}
			return existing, false, nil
		}
		return nil, false, err
	}
	return user, true, nil
}
