// Package services implements the community exchange core: identity,
// catalog, connections with their message threads, gratitude notes and
// report moderation.
//
// Every authenticated operation takes an explicit Session. All state lives
// in store collections; each mutation is a single serialized
// read-modify-write of one collection, so a failed call writes nothing.
package services

import (
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/AnshRaj112/karuna-backend/internal/logger"
	"github.com/AnshRaj112/karuna-backend/internal/models"
	"github.com/AnshRaj112/karuna-backend/internal/store"
)

// Options configures New. Zero values fall back to in-memory sessions, the
// wall clock, no avatar uploads and a discarding logger.
type Options struct {
	Sessions SessionRegistry
	Avatars  AvatarUploader
	Clock    func() time.Time
	Logger   *logrus.Logger
}

// Services bundles the core services over one repository.
type Services struct {
	Identity    *IdentityService
	Catalog     *CatalogService
	Connections *ConnectionService
	Gratitude   *GratitudeService
	Moderation  *ModerationService
}

// New wires every service to repo.
func New(repo *store.Repository, opts Options) *Services {
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	now := func() time.Time { return clock().UTC() }

	sessions := opts.Sessions
	if sessions == nil {
		sessions = NewMemorySessions(now)
	}

	entry := func(component string) *logrus.Entry {
		if opts.Logger == nil {
			return logger.Discard()
		}
		return logger.Component(opts.Logger, component)
	}

	identity := &IdentityService{
		users:    store.For[models.User](repo, store.Users),
		creds:    store.For[models.Credential](repo, store.Credentials),
		sessions: sessions,
		avatars:  opts.Avatars,
		now:      now,
		log:      entry("identity"),
	}
	connections := &ConnectionService{
		identity:    identity,
		connections: store.For[models.Connection](repo, store.Connections),
		messages:    store.For[models.Message](repo, store.Messages),
		now:         now,
		log:         entry("connections"),
	}

	return &Services{
		Identity: identity,
		Catalog: &CatalogService{
			identity: identity,
			posts:    store.For[models.ServicePost](repo, store.Posts),
			now:      now,
			log:      entry("catalog"),
		},
		Connections: connections,
		Gratitude: &GratitudeService{
			identity:    identity,
			connections: connections,
			notes:       store.For[models.GratitudeNote](repo, store.Gratitude),
			now:         now,
			log:         entry("gratitude"),
		},
		Moderation: &ModerationService{
			identity: identity,
			reports:  store.For[models.Report](repo, store.Reports),
			now:      now,
			log:      entry("moderation"),
		},
	}
}

func newID() string {
	return uuid.NewString()
}
