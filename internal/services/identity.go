package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/AnshRaj112/karuna-backend/internal/metrics"
	"github.com/AnshRaj112/karuna-backend/internal/models"
	"github.com/AnshRaj112/karuna-backend/internal/store"
	"github.com/AnshRaj112/karuna-backend/pkg/utils"
)

// RegisterInput is what a new member provides.
type RegisterInput struct {
	Name     string
	Email    string
	Password string
	City     string
}

// ProfileUpdate carries the fields to change; nil fields are left alone.
type ProfileUpdate struct {
	Name      *string
	City      *string
	Tags      *[]string
	AvatarURL *string
}

// IdentityService handles registration, login and profiles.
type IdentityService struct {
	users    *store.Collection[models.User]
	creds    *store.Collection[models.Credential]
	sessions SessionRegistry
	avatars  AvatarUploader
	now      func() time.Time
	log      *logrus.Entry
}

// Register creates a member and its credential and signs the member in.
func (s *IdentityService) Register(ctx context.Context, in RegisterInput) (user models.User, sess Session, err error) {
	defer func() { metrics.RecordOperation("register", err) }()

	if err := utils.ValidateName(in.Name); err != nil {
		return models.User{}, Session{}, invalidErr(err)
	}
	if err := utils.ValidateEmail(in.Email); err != nil {
		return models.User{}, Session{}, invalidErr(err)
	}
	if err := utils.ValidatePassword(in.Password); err != nil {
		return models.User{}, Session{}, invalidErr(err)
	}
	if err := checkText("name", in.Name); err != nil {
		return models.User{}, Session{}, err
	}
	if err := checkText("email", in.Email); err != nil {
		return models.User{}, Session{}, err
	}
	if err := checkText("city", in.City); err != nil {
		return models.User{}, Session{}, err
	}

	hash, err := utils.HashPassword(in.Password)
	if err != nil {
		return models.User{}, Session{}, fmt.Errorf("hash password: %w", err)
	}

	now := s.now()
	email := utils.NormalizeEmail(in.Email)
	user = models.User{
		ID:        newID(),
		Name:      strings.TrimSpace(in.Name),
		City:      strings.TrimSpace(in.City),
		Tags:      []string{},
		Role:      models.RoleUser,
		CreatedAt: now,
		UpdatedAt: now,
	}

	// The credentials lock is held while the user is written, so two
	// registrations for one email cannot both succeed. The user goes in
	// first: a credential must never point at a missing user.
	userWritten := false
	_, err = s.creds.Update(ctx, func(creds []models.Credential) ([]models.Credential, error) {
		for _, c := range creds {
			if c.Email == email {
				return nil, ErrDuplicateIdentity
			}
		}
		if !userWritten {
			if _, err := s.users.Update(ctx, func(users []models.User) ([]models.User, error) {
				return append(users, user), nil
			}); err != nil {
				return nil, err
			}
			userWritten = true
		}
		return append(creds, models.Credential{Email: email, UserID: user.ID, PasswordHash: hash}), nil
	})
	if err != nil {
		if userWritten {
			s.removeUser(ctx, user.ID)
		}
		return models.User{}, Session{}, err
	}

	sess, err = s.startSession(ctx, user.ID)
	if err != nil {
		return models.User{}, Session{}, err
	}

	s.log.WithField("user_id", user.ID).Info("registered user")
	return user, sess, nil
}

// Login checks the password for email and starts a session.
func (s *IdentityService) Login(ctx context.Context, email, password string) (user models.User, sess Session, err error) {
	defer func() { metrics.RecordOperation("login", err) }()

	creds, err := s.creds.All(ctx)
	if err != nil {
		return models.User{}, Session{}, err
	}

	key := utils.NormalizeEmail(email)
	var cred *models.Credential
	for i := range creds {
		if creds[i].Email == key {
			cred = &creds[i]
			break
		}
	}
	if cred == nil {
		return models.User{}, Session{}, ErrInvalidCredentials
	}

	ok, err := utils.VerifyPassword(password, cred.PasswordHash)
	if err != nil {
		s.log.WithError(err).WithField("user_id", cred.UserID).Warn("unreadable password hash")
		return models.User{}, Session{}, ErrInvalidCredentials
	}
	if !ok {
		return models.User{}, Session{}, ErrInvalidCredentials
	}

	found, err := s.GetUserByID(ctx, cred.UserID)
	if err != nil {
		return models.User{}, Session{}, err
	}
	if found == nil {
		return models.User{}, Session{}, fmt.Errorf("credential user %s: %w", cred.UserID, ErrNotFound)
	}

	sess, err = s.startSession(ctx, found.ID)
	if err != nil {
		return models.User{}, Session{}, err
	}
	return *found, sess, nil
}

// Logout ends sess. Calling it again, or with a zero Session, is fine.
func (s *IdentityService) Logout(ctx context.Context, sess Session) error {
	if sess.Token == "" {
		return nil
	}
	return s.sessions.Revoke(ctx, sess.Token)
}

// CurrentUser returns the live record behind sess, or nil when sess is
// signed out, expired, or its user no longer exists.
func (s *IdentityService) CurrentUser(ctx context.Context, sess Session) (*models.User, error) {
	user, err := s.RequireUser(ctx, sess)
	if errors.Is(err, ErrUnauthenticated) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// RequireUser resolves sess or fails with ErrUnauthenticated. When the token
// is live but its user is gone the error also matches ErrNotFound.
func (s *IdentityService) RequireUser(ctx context.Context, sess Session) (models.User, error) {
	if !sess.Authenticated() {
		return models.User{}, ErrUnauthenticated
	}

	userID, ok, err := s.sessions.Resolve(ctx, sess.Token)
	if err != nil {
		return models.User{}, fmt.Errorf("resolve session: %w", err)
	}
	if !ok || userID != sess.UserID {
		return models.User{}, ErrUnauthenticated
	}

	user, err := s.GetUserByID(ctx, userID)
	if err != nil {
		return models.User{}, err
	}
	if user == nil {
		return models.User{}, fmt.Errorf("%w: %w", ErrUnauthenticated, ErrNotFound)
	}
	return *user, nil
}

// RequireAdmin is RequireUser plus a role check.
func (s *IdentityService) RequireAdmin(ctx context.Context, sess Session) (models.User, error) {
	user, err := s.RequireUser(ctx, sess)
	if err != nil {
		return models.User{}, err
	}
	if !user.IsAdmin() {
		return models.User{}, ErrForbidden
	}
	return user, nil
}

// UpdateProfile merges the provided fields into the signed-in member.
func (s *IdentityService) UpdateProfile(ctx context.Context, sess Session, upd ProfileUpdate) (models.User, error) {
	me, err := s.RequireUser(ctx, sess)
	if err != nil {
		return models.User{}, err
	}
	if upd.Name != nil {
		if err := utils.ValidateName(*upd.Name); err != nil {
			return models.User{}, invalidErr(err)
		}
		if err := checkText("name", *upd.Name); err != nil {
			return models.User{}, err
		}
	}
	if upd.City != nil {
		if err := checkText("city", *upd.City); err != nil {
			return models.User{}, err
		}
	}
	if upd.Tags != nil {
		if err := checkText("tags", *upd.Tags...); err != nil {
			return models.User{}, err
		}
	}
	if upd.AvatarURL != nil {
		if err := checkText("avatar_url", *upd.AvatarURL); err != nil {
			return models.User{}, err
		}
	}

	var updated models.User
	_, err = s.users.Update(ctx, func(users []models.User) ([]models.User, error) {
		for i := range users {
			if users[i].ID != me.ID {
				continue
			}
			u := &users[i]
			if upd.Name != nil {
				u.Name = strings.TrimSpace(*upd.Name)
			}
			if upd.City != nil {
				u.City = strings.TrimSpace(*upd.City)
			}
			if upd.Tags != nil {
				u.Tags = utils.CleanTags(*upd.Tags)
			}
			if upd.AvatarURL != nil {
				u.AvatarURL = strings.TrimSpace(*upd.AvatarURL)
			}
			u.UpdatedAt = s.now()
			updated = *u
			return users, nil
		}
		return nil, fmt.Errorf("%w: %w", ErrUnauthenticated, ErrNotFound)
	})
	if err != nil {
		return models.User{}, err
	}
	return updated, nil
}

// UploadAvatar stores an image for the signed-in member and points the
// profile at it.
func (s *IdentityService) UploadAvatar(ctx context.Context, sess Session, file io.Reader) (models.User, error) {
	me, err := s.RequireUser(ctx, sess)
	if err != nil {
		return models.User{}, err
	}
	if s.avatars == nil {
		return models.User{}, fmt.Errorf("avatar uploads: %w", ErrUnavailable)
	}

	url, err := s.avatars.UploadAvatar(ctx, me.ID, file)
	if err != nil {
		return models.User{}, fmt.Errorf("upload avatar: %w", err)
	}
	return s.UpdateProfile(ctx, sess, ProfileUpdate{AvatarURL: &url})
}

// GetUserByID is a public lookup; it returns nil when id is unknown.
func (s *IdentityService) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	users, err := s.users.All(ctx)
	if err != nil {
		return nil, err
	}
	for i := range users {
		if users[i].ID == id {
			return &users[i], nil
		}
	}
	return nil, nil
}

func (s *IdentityService) startSession(ctx context.Context, userID string) (Session, error) {
	token, err := s.sessions.Create(ctx, userID)
	if err != nil {
		return Session{}, fmt.Errorf("create session: %w", err)
	}
	return Session{Token: token, UserID: userID}, nil
}

func (s *IdentityService) removeUser(ctx context.Context, id string) {
	_, err := s.users.Update(ctx, func(users []models.User) ([]models.User, error) {
		out := users[:0]
		for _, u := range users {
			if u.ID != id {
				out = append(out, u)
			}
		}
		return out, nil
	})
	if err != nil {
		s.log.WithError(err).WithField("user_id", id).Error("failed to remove user after aborted registration")
	}
}
