package app

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"mockinterview/internal/util"
	"mockinterview/pkg/auth"
	"mockinterview/pkg/domain"
	"mockinterview/pkg/events"
)

// SignUp registers a user with a default profile, issues an access token and
// announces the signup on the event bus.
func (a *App) SignUp(ctx context.Context, email, username, password string) (domain.User, string, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return domain.User{}, "", ErrEmailAndPasswordRequired
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return domain.User{}, "", ErrInvalidEmail
	}
	if err := auth.ValidatePassword(password); err != nil {
		return domain.User{}, "", fmt.Errorf("%w: %v", ErrWeakPassword, err)
	}
	passwordHash, err := auth.HashPassword(password)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("hash password: %w", err)
	}

	a.signupMu.Lock()
	_, exists, err := a.platform.Store.GetUserByEmail(email)
	if err != nil {
		a.signupMu.Unlock()
		return domain.User{}, "", fmt.Errorf("check email: %w", err)
	}
	if exists {
		a.signupMu.Unlock()
		return domain.User{}, "", ErrEmailAlreadyExists
	}
	now := a.now().UTC()
	user := domain.User{
		ID:           util.NewID(),
		Email:        email,
		Username:     strings.TrimSpace(username),
		PasswordHash: passwordHash,
		Role:         domain.RoleUser,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if user.Username == "" {
		user.Username = strings.SplitN(email, "@", 2)[0]
	}
	err = a.platform.Store.SaveUser(user)
	a.signupMu.Unlock()
	if err != nil {
		return domain.User{}, "", fmt.Errorf("save user: %w", err)
	}
	if err := a.platform.Store.SaveProfile(domain.DefaultProfile(user.ID)); err != nil {
		return domain.User{}, "", fmt.Errorf("save profile: %w", err)
	}

	ev := events.Event{
		ID:         util.NewID(),
		Kind:       events.KindUserSignedUp,
		Key:        events.KindUserSignedUp + ":" + user.ID,
		UserID:     user.ID,
		OccurredAt: now,
	}
	if err := a.platform.Bus.Publish(ctx, ev); err != nil {
		util.LoggerFromContext(ctx).Error("publish signup event failed", "user_id", user.ID, "err", err)
	}

	token, err := a.tokens.Issue(user.ID, string(user.Role))
	if err != nil {
		return domain.User{}, "", fmt.Errorf("issue token: %w", err)
	}
	return user, token, nil
}

// Login validates credentials and issues an access token.
func (a *App) Login(_ context.Context, email, password string) (domain.User, string, error) {
	email = normalizeEmail(email)
	user, ok, err := a.platform.Store.GetUserByEmail(email)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("fetch user: %w", err)
	}
	if !ok || !auth.CheckPassword(password, user.PasswordHash) {
		return domain.User{}, "", ErrInvalidCredentials
	}
	token, err := a.tokens.Issue(user.ID, string(user.Role))
	if err != nil {
		return domain.User{}, "", fmt.Errorf("issue token: %w", err)
	}
	return user, token, nil
}

// Authenticate resolves the user behind an access token.
func (a *App) Authenticate(_ context.Context, token string) (domain.User, error) {
	claims, err := a.tokens.Verify(token)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidToken) || errors.Is(err, auth.ErrTokenRevoked) {
			return domain.User{}, ErrUnauthorized
		}
		return domain.User{}, fmt.Errorf("verify token: %w", err)
	}
	user, ok, err := a.platform.Store.GetUserByID(claims.UserID)
	if err != nil {
		return domain.User{}, fmt.Errorf("fetch user: %w", err)
	}
	if !ok {
		return domain.User{}, ErrUnauthorized
	}
	return user, nil
}

// Logout revokes a single access token.
func (a *App) Logout(_ context.Context, token string) error {
	return a.tokens.Revoke(token)
}

// LogoutAll revokes every token issued to the user so far.
func (a *App) LogoutAll(_ context.Context, userID string) error {
	return a.tokens.RevokeUser(userID)
}

// Profile returns the user's profile, falling back to the defaults.
func (a *App) Profile(_ context.Context, userID string) (domain.Profile, error) {
	profile, ok, err := a.platform.Store.GetProfile(userID)
	if err != nil {
		return domain.Profile{}, fmt.Errorf("fetch profile: %w", err)
	}
	if !ok {
		return domain.DefaultProfile(userID), nil
	}
	return profile, nil
}

// ProfileUpdate carries the fields to change; nil fields are kept.
type ProfileUpdate struct {
	PreferredRole *domain.JobRole
	Difficulty    *domain.Difficulty
	Category      *domain.Category
}

func (a *App) UpdateProfile(ctx context.Context, userID string, update ProfileUpdate) (domain.Profile, error) {
	profile, err := a.Profile(ctx, userID)
	if err != nil {
		return domain.Profile{}, err
	}
	if update.PreferredRole != nil {
		if !update.PreferredRole.Valid() {
			return domain.Profile{}, fmt.Errorf("%w: unknown role %q", ErrInvalidProfile, *update.PreferredRole)
		}
		profile.PreferredRole = *update.PreferredRole
	}
	if update.Difficulty != nil {
		switch *update.Difficulty {
		case domain.DifficultyEasy, domain.DifficultyMedium, domain.DifficultyHard:
			profile.Difficulty = *update.Difficulty
		default:
			return domain.Profile{}, fmt.Errorf("%w: unknown difficulty %q", ErrInvalidProfile, *update.Difficulty)
		}
	}
	if update.Category != nil {
		switch *update.Category {
		case domain.CategoryTechnical, domain.CategoryBehavioral, domain.CategoryScenario:
			profile.Category = *update.Category
		default:
			return domain.Profile{}, fmt.Errorf("%w: unknown category %q", ErrInvalidProfile, *update.Category)
		}
	}
	profile.UpdatedAt = a.now().UTC().Truncate(time.Microsecond)
	if err := a.platform.Store.SaveProfile(profile); err != nil {
		return domain.Profile{}, fmt.Errorf("save profile: %w", err)
	}
	return profile, nil
}

func normalizeEmail(email string) string {
	return strings.TrimSpace(strings.ToLower(email))
}
