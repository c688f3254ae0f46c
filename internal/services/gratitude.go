package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/AnshRaj112/karuna-backend/internal/metrics"
	"github.com/AnshRaj112/karuna-backend/internal/models"
	"github.com/AnshRaj112/karuna-backend/internal/store"
)

// GratitudeService records thank-you notes on finished connections.
type GratitudeService struct {
	identity    *IdentityService
	connections *ConnectionService
	notes       *store.Collection[models.GratitudeNote]
	now         func() time.Time
	log         *logrus.Entry
}

// CreateGratitude thanks the other participant of a completed connection.
func (s *GratitudeService) CreateGratitude(ctx context.Context, sess Session, connectionID, text string) (note models.GratitudeNote, err error) {
	defer func() { metrics.RecordOperation("create_gratitude", err) }()

	me, conn, err := s.connections.participant(ctx, sess, connectionID)
	if err != nil {
		return models.GratitudeNote{}, err
	}
	if conn.Status != models.ConnectionCompleted {
		return models.GratitudeNote{}, fmt.Errorf("%w: gratitude needs a completed connection, this one is %s",
			ErrInvalidTransition, conn.Status)
	}
	to, ok := conn.Counterpart(me.ID)
	if !ok {
		return models.GratitudeNote{}, ErrForbidden
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return models.GratitudeNote{}, invalid("text", "Note cannot be empty")
	}
	if err := checkText("text", text); err != nil {
		return models.GratitudeNote{}, err
	}

	note = models.GratitudeNote{
		ID:           newID(),
		ConnectionID: conn.ID,
		FromUserID:   me.ID,
		ToUserID:     to,
		Text:         text,
		CreatedAt:    s.now(),
	}
	_, err = s.notes.Update(ctx, func(notes []models.GratitudeNote) ([]models.GratitudeNote, error) {
		return append([]models.GratitudeNote{note}, notes...), nil
	})
	if err != nil {
		return models.GratitudeNote{}, err
	}

	s.log.WithFields(logrus.Fields{
		"note_id":       note.ID,
		"connection_id": conn.ID,
		"from":          me.ID,
		"to":            to,
	}).Info("gratitude sent")
	return note, nil
}

// ListMyGratitude returns notes the signed-in member sent or received, most
// recent first. A signed-out caller gets an empty list.
func (s *GratitudeService) ListMyGratitude(ctx context.Context, sess Session) ([]models.GratitudeNote, error) {
	me, err := s.identity.RequireUser(ctx, sess)
	if errors.Is(err, ErrUnauthenticated) {
		return []models.GratitudeNote{}, nil
	}
	if err != nil {
		return nil, err
	}

	notes, err := s.notes.All(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]models.GratitudeNote, 0)
	for _, n := range notes {
		if n.FromUserID == me.ID || n.ToUserID == me.ID {
			out = append(out, n)
		}
	}
	return out, nil
}
