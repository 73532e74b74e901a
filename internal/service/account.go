package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	pkg_hash "github.com/Skotchmaster/campus_events/internal/hash"
	"github.com/Skotchmaster/campus_events/internal/logging"
	"github.com/Skotchmaster/campus_events/internal/models"
	"github.com/Skotchmaster/campus_events/internal/repo"
)

type SessionRevoker interface {
	RevokeAllSessions(ctx context.Context, userID uuid.UUID, reason string) error
}

// AccountService holds the account-state changes that touch sessions. Ban
// and password change revoke every session; unban and role change do not.
type AccountService struct {
	Repo       *repo.GormRepo
	Sessions   SessionRevoker
	BcryptCost int
	Now        func() time.Time
}

func (s *AccountService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *AccountService) target(ctx context.Context, id uuid.UUID) (*models.User, error) {
	u, err := s.Repo.GetUserByID(ctx, id)
	if err != nil {
		if errors.Is(err, repo.ErrUserNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return u, nil
}

func (s *AccountService) Ban(ctx context.Context, actor models.Identity, targetID uuid.UUID, reason string, until *time.Time) error {
	l := logging.FromContext(ctx).With("svc", "account.ban", "actor_id", actor.ID, "target_id", targetID)

	if actor.ID == targetID {
		return ErrForbidden
	}
	if until != nil && !until.After(s.now()) {
		return validationf("ban expiry must be in the future")
	}
	target, err := s.target(ctx, targetID)
	if err != nil {
		return err
	}
	if target.Role == models.RoleSuperAdmin {
		l.Warn("ban_refused", "reason", "target is super admin")
		return ErrForbidden
	}
	if target.Role == models.RoleAdmin && actor.Role != models.RoleSuperAdmin {
		l.Warn("ban_refused", "reason", "only super admins ban admins")
		return ErrForbidden
	}

	if err := s.Repo.SetBan(ctx, targetID, strings.TrimSpace(reason), until); err != nil {
		return err
	}
	if err := s.Sessions.RevokeAllSessions(ctx, targetID, ReasonBan); err != nil {
		return err
	}
	l.Info("user_banned")
	return nil
}

func (s *AccountService) Unban(ctx context.Context, targetID uuid.UUID) error {
	if _, err := s.target(ctx, targetID); err != nil {
		return err
	}
	if err := s.Repo.ClearBan(ctx, targetID); err != nil {
		return err
	}
	logging.FromContext(ctx).Info("user_unbanned", "svc", "account.unban", "target_id", targetID)
	return nil
}

func (s *AccountService) ChangePassword(ctx context.Context, userID uuid.UUID, current, next string) error {
	l := logging.FromContext(ctx).With("svc", "account.change_password", "user_id", userID)

	if err := validatePassword(next); err != nil {
		return err
	}
	user, err := s.target(ctx, userID)
	if err != nil {
		return err
	}
	if !user.HasPassword() {
		l.Warn("password_change_refused", "reason", "oauth-only account")
		return ErrForbidden
	}
	if !pkg_hash.CheckPassword(*user.PasswordHash, current) {
		l.Warn("password_change_refused", "reason", "current password mismatch")
		return ErrInvalidCredentials
	}

	pwHash, err := pkg_hash.HashPassword(next, s.BcryptCost)
	if err != nil {
		return err
	}
	if err := s.Repo.UpdatePasswordHash(ctx, userID, pwHash); err != nil {
		return err
	}
	if err := s.Sessions.RevokeAllSessions(ctx, userID, ReasonPasswordChange); err != nil {
		return err
	}
	l.Info("password_changed")
	return nil
}

// ChangeRole takes effect on the user's next access token; existing
// sessions stay valid.
func (s *AccountService) ChangeRole(ctx context.Context, actor models.Identity, targetID uuid.UUID, role string) error {
	if !models.ValidRole(role) {
		return validationf("unknown role %q", role)
	}
	if actor.ID == targetID {
		return ErrForbidden
	}
	if _, err := s.target(ctx, targetID); err != nil {
		return err
	}
	if err := s.Repo.UpdateRole(ctx, targetID, role); err != nil {
		return err
	}
	logging.FromContext(ctx).Info("role_changed", "svc", "account.change_role", "actor_id", actor.ID, "target_id", targetID, "role", role)
	return nil
}
