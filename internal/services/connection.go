package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/AnshRaj112/karuna-backend/internal/metrics"
	"github.com/AnshRaj112/karuna-backend/internal/models"
	"github.com/AnshRaj112/karuna-backend/internal/store"
)

// messageTick separates messages that would otherwise share a timestamp.
const messageTick = time.Microsecond

// ConnectionService owns the connection lifecycle and message threads.
//
// A connection starts active and may move once, to completed or cancelled.
// Only its two participants can read or change it.
type ConnectionService struct {
	identity    *IdentityService
	connections *store.Collection[models.Connection]
	messages    *store.Collection[models.Message]
	now         func() time.Time
	log         *logrus.Entry
}

// EnsureConnection returns the connection between the signed-in member and
// partnerID about postID, creating it on first contact. Either side calling
// it, any number of times, yields the same connection.
func (s *ConnectionService) EnsureConnection(ctx context.Context, sess Session, postID, partnerID string) (conn models.Connection, err error) {
	defer func() { metrics.RecordOperation("ensure_connection", err) }()

	me, err := s.identity.RequireUser(ctx, sess)
	if err != nil {
		return models.Connection{}, err
	}

	postID = strings.TrimSpace(postID)
	partnerID = strings.TrimSpace(partnerID)
	if postID == "" {
		return models.Connection{}, invalid("post_id", "Post is required")
	}
	if partnerID == "" {
		return models.Connection{}, invalid("partner_id", "Partner is required")
	}
	if err := checkText("post_id", postID); err != nil {
		return models.Connection{}, err
	}
	if partnerID == me.ID {
		return models.Connection{}, invalid("partner_id", "Cannot connect with yourself")
	}

	partner, err := s.identity.GetUserByID(ctx, partnerID)
	if err != nil {
		return models.Connection{}, err
	}
	if partner == nil {
		return models.Connection{}, fmt.Errorf("partner %s: %w", partnerID, ErrNotFound)
	}

	var created bool
	_, err = s.connections.Update(ctx, func(cons []models.Connection) ([]models.Connection, error) {
		now := s.now()
		for i := range cons {
			if cons[i].Joins(postID, me.ID, partnerID) {
				cons[i].UpdatedAt = now
				conn = cons[i]
				created = false
				return cons, nil
			}
		}

		conn = models.Connection{
			ID:        newID(),
			PostID:    postID,
			StarterID: me.ID,
			PartnerID: partnerID,
			Status:    models.ConnectionActive,
			CreatedAt: now,
			UpdatedAt: now,
		}
		created = true
		return append([]models.Connection{conn}, cons...), nil
	})
	if err != nil {
		return models.Connection{}, err
	}

	metrics.RecordConnection(created)
	if created {
		s.log.WithFields(logrus.Fields{
			"connection_id": conn.ID,
			"post_id":       postID,
			"starter_id":    me.ID,
			"partner_id":    partnerID,
		}).Info("connection created")
	}
	return conn, nil
}

// ListConnections returns the signed-in member's connections, most recent
// first. A signed-out caller gets an empty list.
func (s *ConnectionService) ListConnections(ctx context.Context, sess Session) ([]models.Connection, error) {
	me, err := s.identity.RequireUser(ctx, sess)
	if errors.Is(err, ErrUnauthenticated) {
		return []models.Connection{}, nil
	}
	if err != nil {
		return nil, err
	}

	cons, err := s.connections.All(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]models.Connection, 0)
	for _, c := range cons {
		if c.HasParticipant(me.ID) {
			out = append(out, c)
		}
	}
	return out, nil
}

// GetConnection returns nil when id is unknown and ErrForbidden when the
// caller is not one of its participants.
func (s *ConnectionService) GetConnection(ctx context.Context, sess Session, id string) (*models.Connection, error) {
	me, err := s.identity.RequireUser(ctx, sess)
	if err != nil {
		return nil, err
	}

	conn, err := s.find(ctx, id)
	if err != nil || conn == nil {
		return nil, err
	}
	if !conn.HasParticipant(me.ID) {
		return nil, ErrForbidden
	}
	return conn, nil
}

// SetStatus moves an active connection to completed or cancelled. Setting
// the status a connection already has is a no-op.
func (s *ConnectionService) SetStatus(ctx context.Context, sess Session, id string, status models.ConnectionStatus) (conn models.Connection, err error) {
	defer func() { metrics.RecordOperation("set_connection_status", err) }()

	me, err := s.identity.RequireUser(ctx, sess)
	if err != nil {
		return models.Connection{}, err
	}
	if !status.Valid() {
		return models.Connection{}, invalid("status", "Unknown connection status")
	}

	var from models.ConnectionStatus
	_, err = s.connections.Update(ctx, func(cons []models.Connection) ([]models.Connection, error) {
		for i := range cons {
			if cons[i].ID != id {
				continue
			}
			c := &cons[i]
			if !c.HasParticipant(me.ID) {
				return nil, ErrForbidden
			}
			conn = *c
			if c.Status == status {
				return nil, errNoChange
			}
			if c.Status.Terminal() || status == models.ConnectionActive {
				return nil, fmt.Errorf("%w: %s to %s", ErrInvalidTransition, c.Status, status)
			}
			from = c.Status
			c.Status = status
			c.UpdatedAt = s.now()
			conn = *c
			return cons, nil
		}
		return nil, fmt.Errorf("connection %s: %w", id, ErrNotFound)
	})
	if errors.Is(err, errNoChange) {
		return conn, nil
	}
	if err != nil {
		return models.Connection{}, err
	}

	s.log.WithFields(logrus.Fields{
		"connection_id": conn.ID,
		"from":          from,
		"to":            status,
		"by":            me.ID,
	}).Info("connection status changed")
	return conn, nil
}

// ListMessages returns a connection's thread, oldest first.
func (s *ConnectionService) ListMessages(ctx context.Context, sess Session, connectionID string) ([]models.Message, error) {
	if _, _, err := s.participant(ctx, sess, connectionID); err != nil {
		return nil, err
	}

	msgs, err := s.messages.All(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]models.Message, 0)
	for _, m := range msgs {
		if m.ConnectionID == connectionID {
			out = append(out, m)
		}
	}
	// Stable: equal timestamps keep insertion order.
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// SendMessage appends body to a connection's thread as the signed-in
// member. Timestamps are assigned under the messages lock and never go
// backwards within a thread, so thread order is send order.
func (s *ConnectionService) SendMessage(ctx context.Context, sess Session, connectionID, body string) (msg models.Message, err error) {
	defer func() { metrics.RecordOperation("send_message", err) }()

	me, _, err := s.participant(ctx, sess, connectionID)
	if err != nil {
		return models.Message{}, err
	}
	body = strings.TrimSpace(body)
	if body == "" {
		return models.Message{}, invalid("body", "Message cannot be empty")
	}
	if err := checkText("body", body); err != nil {
		return models.Message{}, err
	}

	_, err = s.messages.Update(ctx, func(msgs []models.Message) ([]models.Message, error) {
		createdAt := s.now()
		for _, m := range msgs {
			if m.ConnectionID == connectionID && !createdAt.After(m.CreatedAt) {
				createdAt = m.CreatedAt.Add(messageTick)
			}
		}
		msg = models.Message{
			ID:           newID(),
			ConnectionID: connectionID,
			SenderID:     me.ID,
			Body:         body,
			CreatedAt:    createdAt,
		}
		return append(msgs, msg), nil
	})
	if err != nil {
		return models.Message{}, err
	}

	metrics.RecordMessageSent()
	return msg, nil
}

// participant resolves the caller and the connection, failing unless the
// caller takes part in it.
func (s *ConnectionService) participant(ctx context.Context, sess Session, connectionID string) (models.User, models.Connection, error) {
	me, err := s.identity.RequireUser(ctx, sess)
	if err != nil {
		return models.User{}, models.Connection{}, err
	}
	conn, err := s.find(ctx, connectionID)
	if err != nil {
		return models.User{}, models.Connection{}, err
	}
	if conn == nil {
		return models.User{}, models.Connection{}, fmt.Errorf("connection %s: %w", connectionID, ErrNotFound)
	}
	if !conn.HasParticipant(me.ID) {
		return models.User{}, models.Connection{}, ErrForbidden
	}
	return me, *conn, nil
}

func (s *ConnectionService) find(ctx context.Context, id string) (*models.Connection, error) {
	cons, err := s.connections.All(ctx)
	if err != nil {
		return nil, err
	}
	for i := range cons {
		if cons[i].ID == id {
			return &cons[i], nil
		}
	}
	return nil, nil
}
