package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Skotchmaster/campus_events/internal/events"
	pkg_hash "github.com/Skotchmaster/campus_events/internal/hash"
	"github.com/Skotchmaster/campus_events/internal/logging"
	"github.com/Skotchmaster/campus_events/internal/metrics"
	"github.com/Skotchmaster/campus_events/internal/models"
	"github.com/Skotchmaster/campus_events/internal/oauth"
	"github.com/Skotchmaster/campus_events/internal/repo"
	"github.com/Skotchmaster/campus_events/internal/tokens"
)

const (
	minPasswordLen = 8
	// bcrypt ignores everything past 72 bytes.
	maxPasswordLen = 72
)

// Revocation reasons, used for events and metrics.
const (
	ReasonLogout         = "logout"
	ReasonLogoutAll      = "logout_all"
	ReasonRotation       = "rotation"
	ReasonBan            = "ban"
	ReasonPasswordChange = "password_change"
	ReasonFederated      = "federated_sign_in"
)

type AuthService struct {
	Repo       *repo.GormRepo
	Tokens     *tokens.Codec
	Providers  oauth.Registry
	Events     events.Publisher
	Metrics    *metrics.Metrics
	BcryptCost int
	Now        func() time.Time

	dummyOnce sync.Once
	dummyHash string
}

type AuthResult struct {
	User         models.Identity
	AccessToken  string
	AccessExp    time.Time
	RefreshToken string
	RefreshExp   time.Time
}

type RefreshResult struct {
	AccessToken  string
	AccessExp    time.Time
	RefreshToken string
	RefreshExp   time.Time
}

func (h *AuthService) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

// dummyPasswordHash is compared against on login misses so an unknown email
// costs the same bcrypt work as a wrong password.
func (h *AuthService) dummyPasswordHash() string {
	h.dummyOnce.Do(func() {
		hash, err := pkg_hash.HashPassword("campus-events-dummy-password", h.BcryptCost)
		if err == nil {
			h.dummyHash = hash
		}
	})
	return h.dummyHash
}

func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return "", validationf("email is required")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", validationf("email is malformed")
	}
	return email, nil
}

func validatePassword(password string) error {
	if password == "" {
		return validationf("password is required")
	}
	if len(password) < minPasswordLen {
		return validationf("password must be at least %d characters", minPasswordLen)
	}
	if len(password) > maxPasswordLen {
		return validationf("password must be at most %d bytes", maxPasswordLen)
	}
	return nil
}

func (h *AuthService) Register(ctx context.Context, email, password string) (*AuthResult, error) {
	l := logging.FromContext(ctx).With("svc", "auth.register")

	email, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}
	if err := validatePassword(password); err != nil {
		return nil, err
	}

	username, err := h.uniqueUsername(ctx, email)
	if err != nil {
		l.Error("register_error", "reason", "cannot pick username", "error", err)
		return nil, err
	}

	pwHash, err := pkg_hash.HashPassword(password, h.BcryptCost)
	if err != nil {
		l.Error("register_error", "reason", "cannot hash the password", "error", err)
		return nil, err
	}

	user := models.User{
		Email:        email,
		Username:     username,
		Name:         username,
		PasswordHash: &pwHash,
		Role:         models.RoleUser,
	}
	if err := h.Repo.CreateUserIfNotExists(ctx, &user); err != nil {
		if errors.Is(err, repo.ErrUserAlreadyExist) {
			l.Warn("register_error", "status", 409, "reason", "email already registered")
			return nil, ErrConflict
		}
		l.Error("register_error", "status", 500, "error", err)
		return nil, err
	}

	res, err := h.issueSession(ctx, &user)
	if err != nil {
		l.Error("register_error", "reason", "cannot issue tokens", "error", err)
		return nil, err
	}

	h.publish(ctx, events.Event{Type: events.TypeUserRegistered, UserID: user.ID.String()})
	l.Info("user_registered", "user_id", user.ID, "username", user.Username)
	return res, nil
}

// Login checks credentials and the ban gate. Existing sessions on other
// devices are left alone.
func (h *AuthService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	l := logging.FromContext(ctx).With("svc", "auth.login")

	email, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}
	if password == "" {
		return nil, validationf("password is required")
	}

	user, err := h.Repo.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repo.ErrUserNotFound) {
			pkg_hash.CheckPassword(h.dummyPasswordHash(), password)
			h.Metrics.Login("password", "invalid_credentials")
			l.Warn("login_failed", "reason", "unknown email")
			return nil, ErrInvalidCredentials
		}
		l.Error("login_failed", "status", 500, "error", err)
		return nil, err
	}

	storedHash := h.dummyPasswordHash()
	if user.HasPassword() {
		storedHash = *user.PasswordHash
	}
	if !pkg_hash.CheckPassword(storedHash, password) || !user.HasPassword() {
		h.Metrics.Login("password", "invalid_credentials")
		l.Warn("login_failed", "reason", "password mismatch or oauth-only account", "user_id", user.ID)
		return nil, ErrInvalidCredentials
	}

	if err := h.checkBan(ctx, user); err != nil {
		h.Metrics.Login("password", "banned")
		return nil, err
	}

	res, err := h.issueSession(ctx, user)
	if err != nil {
		l.Error("login_failed", "reason", "cannot issue tokens", "error", err)
		return nil, err
	}

	h.Metrics.Login("password", "ok")
	h.publish(ctx, events.Event{Type: events.TypeUserLoggedIn, UserID: user.ID.String()})
	active, err := h.Repo.CountActiveForUser(ctx, user.ID, h.now())
	if err != nil {
		l.Warn("active_sessions_unknown", "user_id", user.ID, "error", err)
	}
	l.Info("login_successful", "user_id", user.ID, "active_sessions", active)
	return res, nil
}

// checkBan returns a BanError for an active ban and lifts an expired one.
func (h *AuthService) checkBan(ctx context.Context, user *models.User) error {
	if !user.IsBanned {
		return nil
	}
	l := logging.FromContext(ctx).With("svc", "auth.ban_gate", "user_id", user.ID)

	if user.BannedUntil != nil && user.BannedUntil.Before(h.now()) {
		if err := h.Repo.ClearBan(ctx, user.ID); err != nil {
			l.Error("ban_lift_failed", "error", err)
			return err
		}
		user.IsBanned = false
		user.BanReason = nil
		user.BannedUntil = nil
		l.Info("ban_expired_lifted")
		return nil
	}

	reason := ""
	if user.BanReason != nil {
		reason = *user.BanReason
	}
	l.Warn("login_blocked", "reason", "account banned")
	return &BanError{Reason: reason, Until: user.BannedUntil}
}

// Refresh rotates a refresh token. The successor is recorded before the
// presented jti is revoked, so a crash in between leaves two live entries
// rather than none.
func (h *AuthService) Refresh(ctx context.Context, refreshToken string) (*RefreshResult, error) {
	l := logging.FromContext(ctx).With("svc", "auth.refresh")

	claims, err := h.Tokens.VerifyRefreshToken(refreshToken)
	if err != nil {
		h.Metrics.Refresh("invalid")
		l.Warn("refresh_rejected", "reason", "token verification failed", "error", err)
		return nil, ErrUnauthorized
	}

	entry, err := h.Repo.FindRefreshByJTI(ctx, claims.ID)
	if err != nil {
		if errors.Is(err, repo.ErrRefreshNotFound) {
			h.Metrics.Refresh("unknown")
			l.Warn("refresh_rejected", "reason", "jti not in ledger", "jti", claims.ID)
			return nil, ErrUnauthorized
		}
		l.Error("refresh_failed", "error", err)
		return nil, err
	}
	if entry.Revoked {
		h.Metrics.Refresh("replayed")
		l.Warn("refresh_rejected", "reason", "jti revoked", "jti", claims.ID, "user_id", entry.UserID)
		return nil, ErrUnauthorized
	}
	if !entry.ExpiresAt.After(h.now()) || entry.UserID.String() != claims.Subject {
		h.Metrics.Refresh("invalid")
		l.Warn("refresh_rejected", "reason", "ledger entry expired or owner mismatch", "jti", claims.ID)
		return nil, ErrUnauthorized
	}

	user, err := h.Repo.GetUserByID(ctx, entry.UserID)
	if err != nil {
		if errors.Is(err, repo.ErrUserNotFound) {
			h.Metrics.Refresh("invalid")
			l.Warn("refresh_rejected", "reason", "account gone", "user_id", entry.UserID)
			return nil, ErrUnauthorized
		}
		return nil, err
	}

	accessToken, accessExp, err := h.Tokens.IssueAccessToken(user.ID.String(), user.Role)
	if err != nil {
		return nil, err
	}
	newRefresh, refreshExp, err := h.issueRefresh(ctx, user.ID)
	if err != nil {
		l.Error("refresh_failed", "reason", "cannot record successor", "error", err)
		return nil, err
	}

	flipped, err := h.Repo.RevokeByJTI(ctx, claims.ID)
	if err != nil {
		// The successor is already recorded; the old entry stays live until
		// it expires or the user logs out everywhere.
		l.Error("refresh_revoke_failed", "jti", claims.ID, "error", err)
	} else if !flipped {
		h.Metrics.Refresh("raced")
		l.Warn("refresh_race", "reason", "jti revoked concurrently", "jti", claims.ID, "user_id", user.ID)
	} else {
		h.Metrics.Revoked(ReasonRotation, 1)
	}

	h.Metrics.Refresh("ok")
	l.Info("refresh_rotated", "user_id", user.ID)
	return &RefreshResult{
		AccessToken:  accessToken,
		AccessExp:    accessExp,
		RefreshToken: newRefresh,
		RefreshExp:   refreshExp,
	}, nil
}

// LogOut revokes the presented refresh token when it belongs to userID. A
// missing, unverifiable or foreign token still counts as logged out; only
// storage errors are returned.
func (h *AuthService) LogOut(ctx context.Context, userID uuid.UUID, refreshToken string) error {
	l := logging.FromContext(ctx).With("svc", "auth.logout", "user_id", userID)

	if refreshToken == "" {
		return nil
	}
	claims, err := h.Tokens.VerifyRefreshToken(refreshToken)
	if err != nil {
		l.Info("logout_token_ignored", "reason", "token verification failed", "error", err)
		return nil
	}
	if claims.Subject != userID.String() {
		l.Warn("logout_token_ignored", "reason", "token belongs to another account", "jti", claims.ID)
		return nil
	}

	flipped, err := h.Repo.RevokeByJTI(ctx, claims.ID)
	if err != nil {
		l.Error("logout_failed", "reason", "cannot revoke refreshToken", "error", err)
		return err
	}
	if flipped {
		h.Metrics.Revoked(ReasonLogout, 1)
	}
	return nil
}

func (h *AuthService) LogOutAll(ctx context.Context, userID uuid.UUID) error {
	return h.revokeAll(ctx, userID, ReasonLogoutAll)
}

// RevokeAllSessions is the hook account-state flows (ban, password change)
// call to kill every refresh lineage of a user.
func (h *AuthService) RevokeAllSessions(ctx context.Context, userID uuid.UUID, reason string) error {
	return h.revokeAll(ctx, userID, reason)
}

func (h *AuthService) revokeAll(ctx context.Context, userID uuid.UUID, reason string) error {
	l := logging.FromContext(ctx).With("svc", "auth.revoke_all", "user_id", userID, "reason", reason)

	n, err := h.Repo.RevokeAllForUser(ctx, userID)
	if err != nil {
		l.Error("revoke_all_failed", "error", err)
		return err
	}
	h.Metrics.Revoked(reason, n)
	h.publish(ctx, events.Event{Type: events.TypeSessionsRevoked, UserID: userID.String(), Reason: reason})
	l.Info("sessions_revoked", "count", n)
	return nil
}

func (h *AuthService) issueSession(ctx context.Context, user *models.User) (*AuthResult, error) {
	accessToken, accessExp, err := h.Tokens.IssueAccessToken(user.ID.String(), user.Role)
	if err != nil {
		return nil, err
	}
	refreshToken, refreshExp, err := h.issueRefresh(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	return &AuthResult{
		User:         user.Identity(),
		AccessToken:  accessToken,
		AccessExp:    accessExp,
		RefreshToken: refreshToken,
		RefreshExp:   refreshExp,
	}, nil
}

func (h *AuthService) issueRefresh(ctx context.Context, userID uuid.UUID) (string, time.Time, error) {
	token, jti, exp, err := h.Tokens.IssueRefreshToken(userID.String())
	if err != nil {
		return "", time.Time{}, err
	}
	if err := h.Repo.RecordRefresh(ctx, jti, userID, exp); err != nil {
		return "", time.Time{}, fmt.Errorf("record refresh token: %w", err)
	}
	return token, exp, nil
}

func (h *AuthService) publish(ctx context.Context, ev events.Event) {
	if h.Events == nil {
		return
	}
	if ev.At.IsZero() {
		ev.At = h.now().UTC()
	}
	if err := h.Events.Publish(ctx, ev); err != nil {
		logging.FromContext(ctx).Error("event_publish_failed", "type", ev.Type, "error", err)
	}
}
