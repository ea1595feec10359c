package app

import (
	"crypto/rand"
	"fmt"
	"strings"

	"leafreader/internal/util"
	"leafreader/pkg/auth"
	"leafreader/pkg/domain"
)

// UserInfo is the authenticated account summary.
type UserInfo struct {
	domain.User
	BookCount int64 `json:"book_count"`
}

// Register creates a user account. When invite codes are required, the
// supplied code must exist and still have uses left; the use is consumed
// only after the account is created.
func (a *App) Register(username, password, inviteCode string) (domain.User, string, error) {
	username = strings.TrimSpace(username)
	if len(username) < 2 || len(username) > 32 {
		return domain.User{}, "", NewError(CodeAuthFailed, "username must be 2-32 characters")
	}
	if len(password) < 6 {
		return domain.User{}, "", NewError(CodeAuthFailed, "password must be at least 6 characters")
	}

	settings, err := a.store.GetSettings()
	if err != nil {
		return domain.User{}, "", err
	}
	var code *domain.InviteCode
	if settings.InviteCodeRequired {
		c, ok, err := a.store.GetInviteCode(strings.TrimSpace(inviteCode))
		if err != nil {
			return domain.User{}, "", err
		}
		if !ok || (c.LimitTimes > 0 && c.UsedTimes >= c.LimitTimes) {
			return domain.User{}, "", ErrInviteCodeInvalid
		}
		code = &c
	}

	taken, err := a.store.HasUsername(username)
	if err != nil {
		return domain.User{}, "", err
	}
	if taken {
		return domain.User{}, "", ErrUsernameTaken
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("hash password: %w", err)
	}
	user := domain.User{
		ID:           util.NewID(),
		Username:     username,
		PasswordHash: hash,
		CreatedAt:    a.now(),
	}
	if err := a.store.SaveUser(user); err != nil {
		return domain.User{}, "", fmt.Errorf("save user: %w", err)
	}
	if code != nil {
		if err := a.store.ConsumeInviteCode(code.Code); err != nil {
			return domain.User{}, "", err
		}
	}
	token, err := a.tokens.IssueUser(user.ID)
	if err != nil {
		return domain.User{}, "", err
	}
	return user, token, nil
}

// Login verifies credentials and returns a user token.
func (a *App) Login(username, password string) (domain.User, string, error) {
	user, ok, err := a.store.GetUserByUsername(strings.TrimSpace(username))
	if err != nil {
		return domain.User{}, "", err
	}
	if !ok || !auth.CheckPassword(password, user.PasswordHash) {
		return domain.User{}, "", ErrAuthFailed
	}
	token, err := a.tokens.IssueUser(user.ID)
	if err != nil {
		return domain.User{}, "", err
	}
	return user, token, nil
}

// GetUserInfo returns the caller's account summary.
func (a *App) GetUserInfo(userID string) (UserInfo, error) {
	user, ok, err := a.store.GetUserByID(userID)
	if err != nil {
		return UserInfo{}, err
	}
	if !ok {
		return UserInfo{}, ErrUserNotFound
	}
	count, err := a.store.CountBooksByOwner(userID)
	if err != nil {
		return UserInfo{}, err
	}
	return UserInfo{User: user, BookCount: count}, nil
}

// ChangePassword rotates the caller's password after verifying the old one.
func (a *App) ChangePassword(userID, oldPassword, newPassword string) error {
	user, ok, err := a.store.GetUserByID(userID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrUserNotFound
	}
	if !auth.CheckPassword(oldPassword, user.PasswordHash) {
		return ErrOldPasswordWrong
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

// AdminSetup creates the single admin account on first run, turns invite
// gating on, and seeds one invite code so the first readers can register.
func (a *App) AdminSetup(password string) (string, error) {
	if _, ok, err := a.store.GetAdmin(); err != nil {
		return "", err
	} else if ok {
		return "", ErrAdminAlreadySetup
	}
	if len(password) < 8 {
		return "", NewError(CodeAuthFailed, "admin password must be at least 8 characters")
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	admin := domain.Admin{ID: util.NewID(), PasswordHash: hash, CreatedAt: a.now()}
	if err := a.store.SaveAdmin(admin); err != nil {
		return "", fmt.Errorf("save admin: %w", err)
	}
	if err := a.store.SaveSettings(domain.Settings{InviteCodeRequired: true}); err != nil {
		return "", err
	}
	if _, err := a.CreateInviteCode(10, "initial invite code"); err != nil {
		return "", err
	}
	return a.tokens.IssueAdmin(admin.ID)
}

// AdminLogin verifies the admin password and returns an admin token.
func (a *App) AdminLogin(password string) (string, error) {
	admin, ok, err := a.store.GetAdmin()
	if err != nil {
		return "", err
	}
	if !ok || !auth.CheckPassword(password, admin.PasswordHash) {
		return "", ErrAuthFailed
	}
	return a.tokens.IssueAdmin(admin.ID)
}

const inviteCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

func newInviteCode() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	for i := range b {
		b[i] = inviteCodeAlphabet[int(b[i])%len(inviteCodeAlphabet)]
	}
	return string(b)
}
