package services

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AnshRaj112/karuna-backend/internal/models"
	"github.com/AnshRaj112/karuna-backend/internal/store"
)

func TestRegister(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	user, sess, err := h.Identity.Register(ctx, RegisterInput{
		Name:     "  Dana ",
		Email:    " Dana@Example.com ",
		Password: "password",
		City:     "Ottawa",
	})
	require.NoError(t, err)

	assert.Equal(t, "Dana", user.Name)
	assert.Equal(t, "Ottawa", user.City)
	assert.Equal(t, models.RoleUser, user.Role)
	assert.NotNil(t, user.Tags)
	assert.Empty(t, user.Tags)
	assert.Equal(t, user.ID, sess.UserID)

	current, err := h.Identity.CurrentUser(ctx, sess)
	require.NoError(t, err)
	require.NotNil(t, current)
	assert.Equal(t, user.ID, current.ID)

	creds, err := store.For[models.Credential](h.repo, store.Credentials).All(ctx)
	require.NoError(t, err)
	require.Len(t, creds, 1)
	assert.Equal(t, "dana@example.com", creds[0].Email)
	assert.NotEqual(t, "password", creds[0].PasswordHash)
}

func TestRegister_Validation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	cases := map[string]RegisterInput{
		"missing name":     {Email: "a@example.com", Password: "password"},
		"bad email":        {Name: "A", Email: "not-an-email", Password: "password"},
		"missing password": {Name: "A", Email: "a@example.com"},
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, _, err := h.Identity.Register(ctx, in)
			assert.ErrorIs(t, err, ErrInvalidInput)
		})
	}

	users, err := store.For[models.User](h.repo, store.Users).All(ctx)
	require.NoError(t, err)
	assert.Empty(t, users)
}

func TestRegister_DuplicateEmail(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.register(t, "Dana")

	_, _, err := h.Identity.Register(ctx, RegisterInput{
		Name:     "Other Dana",
		Email:    "DANA@example.com",
		Password: "password",
	})
	assert.ErrorIs(t, err, ErrDuplicateIdentity)

	users, err := store.For[models.User](h.repo, store.Users).All(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 1)
}

func TestRegister_ConcurrentDuplicates(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	const n = 10
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, errs[i] = h.Identity.Register(ctx, RegisterInput{
				Name:     "Racer",
				Email:    "racer@example.com",
				Password: "password",
			})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, ErrDuplicateIdentity)
	}
	assert.Equal(t, 1, succeeded)

	users, err := store.For[models.User](h.repo, store.Users).All(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 1)
	creds, err := store.For[models.Credential](h.repo, store.Credentials).All(ctx)
	require.NoError(t, err)
	assert.Len(t, creds, 1)
}

func TestLogin(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	first := h.register(t, "Dana")

	user, sess, err := h.Identity.Login(ctx, "  DANA@example.com", "password")
	require.NoError(t, err)
	assert.Equal(t, first.UserID, user.ID)
	assert.NotEqual(t, first.Token, sess.Token)

	// A new login replaces the earlier session.
	_, err = h.Identity.RequireUser(ctx, first)
	assert.ErrorIs(t, err, ErrUnauthenticated)
	_, err = h.Identity.RequireUser(ctx, sess)
	assert.NoError(t, err)
}

func TestLogin_InvalidCredentials(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.register(t, "Dana")

	_, _, err := h.Identity.Login(ctx, "nobody@example.com", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, _, err = h.Identity.Login(ctx, "dana@example.com", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLogout(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	sess := h.register(t, "Dana")

	require.NoError(t, h.Identity.Logout(ctx, sess))
	require.NoError(t, h.Identity.Logout(ctx, sess))
	require.NoError(t, h.Identity.Logout(ctx, Session{}))

	current, err := h.Identity.CurrentUser(ctx, sess)
	require.NoError(t, err)
	assert.Nil(t, current)
}

func TestCurrentUser_RemovedUser(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	sess := h.register(t, "Dana")

	_, err := store.For[models.User](h.repo, store.Users).Update(ctx, func([]models.User) ([]models.User, error) {
		return nil, nil
	})
	require.NoError(t, err)

	current, err := h.Identity.CurrentUser(ctx, sess)
	require.NoError(t, err)
	assert.Nil(t, current)

	_, err = h.Identity.RequireUser(ctx, sess)
	assert.ErrorIs(t, err, ErrUnauthenticated)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRequireUser_ForgedSession(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	dana := h.register(t, "Dana")
	eli := h.register(t, "Eli")

	_, err := h.Identity.RequireUser(ctx, Session{Token: dana.Token, UserID: eli.UserID})
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestUpdateProfile(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	sess := h.register(t, "Dana")

	name := "Dana K"
	tags := []string{"guitar", " guitar", "", "cooking"}
	updated, err := h.Identity.UpdateProfile(ctx, sess, ProfileUpdate{Name: &name, Tags: &tags})
	require.NoError(t, err)
	assert.Equal(t, "Dana K", updated.Name)
	assert.Equal(t, "Toronto", updated.City)
	assert.Equal(t, []string{"guitar", "cooking"}, updated.Tags)
	assert.Equal(t, models.RoleUser, updated.Role)

	// Profile edits show up through the session immediately.
	current, err := h.Identity.CurrentUser(ctx, sess)
	require.NoError(t, err)
	require.NotNil(t, current)
	assert.Equal(t, "Dana K", current.Name)
	assert.True(t, current.UpdatedAt.After(current.CreatedAt))
}

func TestUpdateProfile_Unauthenticated(t *testing.T) {
	h := newHarness(t)
	city := "Ottawa"
	_, err := h.Identity.UpdateProfile(context.Background(), Session{}, ProfileUpdate{City: &city})
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

type fakeUploader struct {
	userID string
	body   []byte
	err    error
}

func (f *fakeUploader) UploadAvatar(_ context.Context, userID string, file io.Reader) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.userID = userID
	f.body, _ = io.ReadAll(file)
	return "https://images.example.com/" + userID + ".png", nil
}

func TestUploadAvatar(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	sess := h.register(t, "Dana")

	_, err := h.Identity.UploadAvatar(ctx, sess, bytes.NewReader([]byte("png")))
	assert.ErrorIs(t, err, ErrUnavailable)

	up := &fakeUploader{}
	h.Identity.avatars = up
	user, err := h.Identity.UploadAvatar(ctx, sess, bytes.NewReader([]byte("png")))
	require.NoError(t, err)
	assert.Equal(t, sess.UserID, up.userID)
	assert.Equal(t, []byte("png"), up.body)
	assert.Equal(t, "https://images.example.com/"+sess.UserID+".png", user.AvatarURL)

	up.err = errors.New("cloud down")
	_, err = h.Identity.UploadAvatar(ctx, sess, bytes.NewReader(nil))
	assert.ErrorContains(t, err, "cloud down")
}

func TestGetUserByID(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	sess := h.register(t, "Dana")

	user, err := h.Identity.GetUserByID(ctx, sess.UserID)
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, "Dana", user.Name)

	user, err = h.Identity.GetUserByID(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, user)
}

func TestIdentity_RejectsInvalidUTF8(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, _, err := h.Identity.Register(ctx, RegisterInput{Name: "Dana \xff", Email: "dana@example.com", Password: "password"})
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, _, err = h.Identity.Register(ctx, RegisterInput{Name: "Dana", Email: "dana@example.com", Password: "password", City: "Tor\xffonto"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	users, err := store.For[models.User](h.repo, store.Users).All(ctx)
	require.NoError(t, err)
	assert.Empty(t, users)

	sess := h.register(t, "Dana")
	bad := "Ott\xfe"
	tags := []string{"ok", "bad\xff"}
	for name, upd := range map[string]ProfileUpdate{
		"name":   {Name: &bad},
		"city":   {City: &bad},
		"tags":   {Tags: &tags},
		"avatar": {AvatarURL: &bad},
	} {
		_, err := h.Identity.UpdateProfile(ctx, sess, upd)
		assert.ErrorIs(t, err, ErrInvalidInput, name)
	}

	// What a caller gets back is what a later read returns.
	city := "Montréal"
	updated, err := h.Identity.UpdateProfile(ctx, sess, ProfileUpdate{City: &city})
	require.NoError(t, err)
	stored, err := h.Identity.GetUserByID(ctx, sess.UserID)
	require.NoError(t, err)
	assert.Equal(t, updated.City, stored.City)
	assert.Equal(t, "Montréal", stored.City)
}

func TestLogin_MalformedStoredHash(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.register(t, "Dana")

	_, err := store.For[models.Credential](h.repo, store.Credentials).Update(ctx, func(creds []models.Credential) ([]models.Credential, error) {
		creds[0].PasswordHash = "$argon2id$v=19$m=64,t=1,p=0$c2FsdHNhbHQ$aGFzaGhhc2hoYXNoaGFzaA"
		return creds, nil
	})
	require.NoError(t, err)

	require.NotPanics(t, func() {
		_, _, err = h.Identity.Login(ctx, "dana@example.com", "password")
	})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}
