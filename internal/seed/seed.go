// Package seed fills empty collections with demo fixtures so a fresh
// install has members and posts to look at.
package seed

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/AnshRaj112/karuna-backend/internal/models"
	"github.com/AnshRaj112/karuna-backend/internal/store"
	"github.com/AnshRaj112/karuna-backend/pkg/utils"
)

// DemoPassword is the password of every fixture account.
const DemoPassword = "password"

// Users returns the fixture members.
func Users(now time.Time) []models.User {
	user := func(id, name, city string, role models.Role, tags ...string) models.User {
		return models.User{
			ID:        id,
			Name:      name,
			City:      city,
			Tags:      utils.CleanTags(tags),
			Role:      role,
			CreatedAt: now,
			UpdatedAt: now,
		}
	}
	return []models.User{
		user("u1", "Aisha", "Toronto", models.RoleUser, "guitar", "listening"),
		user("u2", "Brian", "Mississauga", models.RoleUser, "coding"),
		user("admin1", "Admin", "Toronto", models.RoleAdmin, "moderation"),
		user("me", "You", "Toronto", models.RoleUser, "coding", "guitar"),
	}
}

// Posts returns the fixture posts, newest first.
func Posts(now time.Time) []models.ServicePost {
	return []models.ServicePost{
		{
			ID:          "p1",
			OwnerID:     "u1",
			Type:        models.PostTypeOffer,
			Title:       "Guitar basics for beginners",
			Description: "Chords & strumming in 3 sessions.",
			Tags:        []string{"guitar", "music", "teaching"},
			City:        "Toronto",
			CreatedAt:   now,
			UpdatedAt:   now,
		},
		{
			ID:          "p2",
			OwnerID:     "u2",
			Type:        models.PostTypeOffer,
			Title:       "JS Pair Programming",
			Description: "Stuck on React? Let's pair for an hour.",
			Tags:        []string{"coding", "mentorship"},
			City:        "Mississauga",
			CreatedAt:   now.Add(-time.Hour),
			UpdatedAt:   now.Add(-time.Hour),
		},
	}
}

// Credentials returns a login for every fixture member:
// <lowercased name>@example.com with DemoPassword.
func Credentials(users []models.User) ([]models.Credential, error) {
	creds := make([]models.Credential, 0, len(users))
	for _, u := range users {
		hash, err := utils.HashPassword(DemoPassword)
		if err != nil {
			return nil, fmt.Errorf("hash fixture password: %w", err)
		}
		creds = append(creds, models.Credential{
			Email:        utils.NormalizeEmail(strings.ToLower(u.Name) + "@example.com"),
			UserID:       u.ID,
			PasswordHash: hash,
		})
	}
	return creds, nil
}

// Run seeds every collection that has never been saved. Existing
// collections, even empty ones, are left alone. It returns the names of the
// collections it wrote.
func Run(ctx context.Context, repo *store.Repository, now time.Time, log *logrus.Entry) ([]string, error) {
	users := Users(now)

	var seeded []string
	track := func(name string, wrote bool, err error) error {
		if err != nil {
			return fmt.Errorf("seed %s: %w", name, err)
		}
		if wrote {
			seeded = append(seeded, name)
			log.WithField("collection", name).Info("seeded collection")
		}
		return nil
	}

	wrote, err := store.For[models.User](repo, store.Users).Seed(ctx, users)
	if err := track(store.Users, wrote, err); err != nil {
		return seeded, err
	}

	creds := store.For[models.Credential](repo, store.Credentials)
	// Fixture hashes are only computed for a fresh credentials collection.
	exists, err := creds.Exists(ctx)
	if err != nil {
		return seeded, err
	}
	if !exists {
		fixtures, err := Credentials(users)
		if err != nil {
			return seeded, err
		}
		wrote, err := creds.Seed(ctx, fixtures)
		if err := track(store.Credentials, wrote, err); err != nil {
			return seeded, err
		}
	}

	wrote, err = store.For[models.ServicePost](repo, store.Posts).Seed(ctx, Posts(now))
	if err := track(store.Posts, wrote, err); err != nil {
		return seeded, err
	}
	wrote, err = store.For[models.Connection](repo, store.Connections).Seed(ctx, nil)
	if err := track(store.Connections, wrote, err); err != nil {
		return seeded, err
	}
	wrote, err = store.For[models.Message](repo, store.Messages).Seed(ctx, nil)
	if err := track(store.Messages, wrote, err); err != nil {
		return seeded, err
	}
	wrote, err = store.For[models.GratitudeNote](repo, store.Gratitude).Seed(ctx, nil)
	if err := track(store.Gratitude, wrote, err); err != nil {
		return seeded, err
	}
	wrote, err = store.For[models.Report](repo, store.Reports).Seed(ctx, nil)
	if err := track(store.Reports, wrote, err); err != nil {
		return seeded, err
	}

	return seeded, nil
}

// Validate decodes every collection and fails on the first corrupt one.
func Validate(ctx context.Context, repo *store.Repository) error {
	checks := []func() error{
		func() error { _, err := store.For[models.User](repo, store.Users).All(ctx); return err },
		func() error { _, err := store.For[models.Credential](repo, store.Credentials).All(ctx); return err },
		func() error { _, err := store.For[models.ServicePost](repo, store.Posts).All(ctx); return err },
		func() error { _, err := store.For[models.Connection](repo, store.Connections).All(ctx); return err },
		func() error { _, err := store.For[models.Message](repo, store.Messages).All(ctx); return err },
		func() error { _, err := store.For[models.GratitudeNote](repo, store.Gratitude).All(ctx); return err },
		func() error { _, err := store.For[models.Report](repo, store.Reports).All(ctx); return err },
	}
	for _, check := range checks {
		if err := check(); err != nil {
			return err
		}
	}
	return nil
}
