package app

import (
	"fmt"
	"strings"

	"leafreader/internal/util"
	"leafreader/pkg/auth"
	"leafreader/pkg/domain"
)

// CheckSetup reports whether the admin account exists yet.
func (a *App) CheckSetup() (bool, error) {
	_, ok, err := a.store.GetAdmin()
	return ok, err
}

// CreateInviteCode mints a new invite code. limit <= 0 means unlimited use.
func (a *App) CreateInviteCode(limit int64, description string) (domain.InviteCode, error) {
	code := domain.InviteCode{
		ID:          util.NewID(),
		Code:        newInviteCode(),
		LimitTimes:  limit,
		Description: strings.TrimSpace(description),
		CreatedAt:   a.now(),
	}
	if err := a.store.CreateInviteCode(code); err != nil {
		return domain.InviteCode{}, fmt.Errorf("save invite code: %w", err)
	}
	return code, nil
}

// ListInviteCodes returns all invite codes, newest first.
func (a *App) ListInviteCodes() ([]domain.InviteCode, error) {
	return a.store.ListInviteCodes()
}

// GetSettings returns the system settings.
func (a *App) GetSettings() (domain.Settings, error) {
	return a.store.GetSettings()
}

// UpdateSettings replaces the system settings.
func (a *App) UpdateSettings(settings domain.Settings) (domain.Settings, error) {
	if err := a.store.SaveSettings(settings); err != nil {
		return domain.Settings{}, err
	}
	return settings, nil
}

// ListUsers returns every registered user.
func (a *App) ListUsers() ([]domain.User, error) {
	return a.store.ListUsers()
}

// ResetUserPassword sets a new password for any user, admin-only.
func (a *App) ResetUserPassword(userID, newPassword string) error {
	_, ok, err := a.store.GetUserByID(userID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrUserNotFound
	}
	if len(newPassword) < 6 {
		return NewError(CodeAuthFailed, "password must be at least 6 characters")
	}
	hash, err := auth.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	return a.store.SetUserPassword(userID, hash)
}
