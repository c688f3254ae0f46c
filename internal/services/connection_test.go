package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AnshRaj112/karuna-backend/internal/models"
)

func TestEnsureConnection_Idempotent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	aisha := h.register(t, "Aisha")
	brian := h.register(t, "Brian")

	first, err := h.Connections.EnsureConnection(ctx, aisha, "p1", brian.UserID)
	require.NoError(t, err)
	assert.Equal(t, models.ConnectionActive, first.Status)
	assert.Equal(t, aisha.UserID, first.StarterID)
	assert.Equal(t, brian.UserID, first.PartnerID)

	again, err := h.Connections.EnsureConnection(ctx, aisha, "p1", brian.UserID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)
	assert.True(t, again.UpdatedAt.After(first.UpdatedAt))

	// Symmetry: the partner reaching back lands on the same connection.
	back, err := h.Connections.EnsureConnection(ctx, brian, "p1", aisha.UserID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, back.ID)
	assert.Equal(t, aisha.UserID, back.StarterID)

	other, err := h.Connections.EnsureConnection(ctx, aisha, "p2", brian.UserID)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, other.ID)

	cons, err := h.Connections.ListConnections(ctx, aisha)
	require.NoError(t, err)
	require.Len(t, cons, 2)
	assert.Equal(t, other.ID, cons[0].ID)
}

func TestEnsureConnection_KeepsStatus(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	aisha := h.register(t, "Aisha")
	brian := h.register(t, "Brian")

	conn, err := h.Connections.EnsureConnection(ctx, aisha, "p1", brian.UserID)
	require.NoError(t, err)
	_, err = h.Connections.SetStatus(ctx, brian, conn.ID, models.ConnectionCompleted)
	require.NoError(t, err)

	again, err := h.Connections.EnsureConnection(ctx, brian, "p1", aisha.UserID)
	require.NoError(t, err)
	assert.Equal(t, conn.ID, again.ID)
	assert.Equal(t, models.ConnectionCompleted, again.Status)
}

func TestEnsureConnection_ConcurrentFromBothSides(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	aisha := h.register(t, "Aisha")
	brian := h.register(t, "Brian")

	const n = 20
	ids := make([]string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sess, partner := aisha, brian.UserID
			if i%2 == 1 {
				sess, partner = brian, aisha.UserID
			}
			conn, err := h.Connections.EnsureConnection(ctx, sess, "p1", partner)
			assert.NoError(t, err)
			ids[i] = conn.ID
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
	cons, err := h.Connections.ListConnections(ctx, aisha)
	require.NoError(t, err)
	assert.Len(t, cons, 1)
}

func TestEnsureConnection_Errors(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.Connections.EnsureConnection(ctx, Session{}, "p1", "u2")
	assert.ErrorIs(t, err, ErrUnauthenticated)

	aisha := h.register(t, "Aisha")
	_, err = h.Connections.EnsureConnection(ctx, aisha, "p1", aisha.UserID)
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = h.Connections.EnsureConnection(ctx, aisha, "", "u2")
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = h.Connections.EnsureConnection(ctx, aisha, "p1", "ghost")
	assert.ErrorIs(t, err, ErrNotFound)

	cons, err := h.Connections.ListConnections(ctx, aisha)
	require.NoError(t, err)
	assert.Empty(t, cons)
}

func TestListConnections_Scoped(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	aisha := h.register(t, "Aisha")
	brian := h.register(t, "Brian")
	carol := h.register(t, "Carol")

	ab, err := h.Connections.EnsureConnection(ctx, aisha, "p1", brian.UserID)
	require.NoError(t, err)
	_, err = h.Connections.EnsureConnection(ctx, brian, "p2", carol.UserID)
	require.NoError(t, err)

	cons, err := h.Connections.ListConnections(ctx, aisha)
	require.NoError(t, err)
	require.Len(t, cons, 1)
	assert.Equal(t, ab.ID, cons[0].ID)
	for _, c := range cons {
		assert.True(t, c.HasParticipant(aisha.UserID))
	}

	cons, err = h.Connections.ListConnections(ctx, brian)
	require.NoError(t, err)
	assert.Len(t, cons, 2)

	cons, err = h.Connections.ListConnections(ctx, Session{})
	require.NoError(t, err)
	assert.NotNil(t, cons)
	assert.Empty(t, cons)
}

func TestGetConnection(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	aisha := h.register(t, "Aisha")
	brian := h.register(t, "Brian")
	carol := h.register(t, "Carol")

	conn, err := h.Connections.EnsureConnection(ctx, aisha, "p1", brian.UserID)
	require.NoError(t, err)

	got, err := h.Connections.GetConnection(ctx, brian, conn.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, conn.ID, got.ID)

	_, err = h.Connections.GetConnection(ctx, carol, conn.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	got, err = h.Connections.GetConnection(ctx, aisha, "missing")
	require.NoError(t, err)
	assert.Nil(t, got)

	_, err = h.Connections.GetConnection(ctx, Session{}, conn.ID)
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestSetStatus_Transitions(t *testing.T) {
	terminals := []models.ConnectionStatus{models.ConnectionCompleted, models.ConnectionCancelled}
	for _, terminal := range terminals {
		t.Run(string(terminal), func(t *testing.T) {
			h := newHarness(t)
			ctx := context.Background()
			aisha := h.register(t, "Aisha")
			brian := h.register(t, "Brian")

			conn, err := h.Connections.EnsureConnection(ctx, aisha, "p1", brian.UserID)
			require.NoError(t, err)

			done, err := h.Connections.SetStatus(ctx, brian, conn.ID, terminal)
			require.NoError(t, err)
			assert.Equal(t, terminal, done.Status)
			assert.True(t, done.UpdatedAt.After(conn.UpdatedAt))

			// Same status again is a no-op.
			same, err := h.Connections.SetStatus(ctx, aisha, conn.ID, terminal)
			require.NoError(t, err)
			assert.Equal(t, done, same)

			for _, next := range []models.ConnectionStatus{models.ConnectionActive, models.ConnectionCompleted, models.ConnectionCancelled} {
				if next == terminal {
					continue
				}
				_, err := h.Connections.SetStatus(ctx, aisha, conn.ID, next)
				assert.ErrorIs(t, err, ErrInvalidTransition, "to %s", next)
			}

			got, err := h.Connections.GetConnection(ctx, aisha, conn.ID)
			require.NoError(t, err)
			assert.Equal(t, terminal, got.Status)
		})
	}
}

func TestSetStatus_Errors(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	aisha := h.register(t, "Aisha")
	brian := h.register(t, "Brian")
	carol := h.register(t, "Carol")

	conn, err := h.Connections.EnsureConnection(ctx, aisha, "p1", brian.UserID)
	require.NoError(t, err)

	_, err = h.Connections.SetStatus(ctx, aisha, "missing", models.ConnectionCompleted)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = h.Connections.SetStatus(ctx, carol, conn.ID, models.ConnectionCompleted)
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = h.Connections.SetStatus(ctx, aisha, conn.ID, "paused")
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = h.Connections.SetStatus(ctx, Session{}, conn.ID, models.ConnectionCompleted)
	assert.ErrorIs(t, err, ErrUnauthenticated)

	// Active to active is a no-op, not a transition error.
	same, err := h.Connections.SetStatus(ctx, aisha, conn.ID, models.ConnectionActive)
	require.NoError(t, err)
	assert.Equal(t, models.ConnectionActive, same.Status)
}

func TestMessages_Ordering(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	aisha := h.register(t, "Aisha")
	brian := h.register(t, "Brian")

	conn, err := h.Connections.EnsureConnection(ctx, aisha, "p1", brian.UserID)
	require.NoError(t, err)

	for i, sess := range []Session{aisha, brian, aisha} {
		msg, err := h.Connections.SendMessage(ctx, sess, conn.ID, fmt.Sprintf(" m%d ", i+1))
		require.NoError(t, err)
		assert.Equal(t, sess.UserID, msg.SenderID)
	}

	msgs, err := h.Connections.ListMessages(ctx, brian, conn.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, "m1", msgs[0].Body)
	assert.Equal(t, "m2", msgs[1].Body)
	assert.Equal(t, "m3", msgs[2].Body)
	assert.Equal(t, brian.UserID, msgs[1].SenderID)
}

func TestMessages_FrozenClockStillOrdered(t *testing.T) {
	h := newHarnessWithClock(t, newTestClock(0))
	ctx := context.Background()
	aisha := h.register(t, "Aisha")
	brian := h.register(t, "Brian")

	conn, err := h.Connections.EnsureConnection(ctx, aisha, "p1", brian.UserID)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		_, err := h.Connections.SendMessage(ctx, aisha, conn.ID, fmt.Sprintf("m%d", i))
		require.NoError(t, err)
	}

	msgs, err := h.Connections.ListMessages(ctx, aisha, conn.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 5)
	for i := range msgs {
		assert.Equal(t, fmt.Sprintf("m%d", i), msgs[i].Body)
		if i > 0 {
			assert.True(t, msgs[i].CreatedAt.After(msgs[i-1].CreatedAt))
		}
	}
}

func TestMessages_ConcurrentSenders(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	aisha := h.register(t, "Aisha")
	brian := h.register(t, "Brian")

	conn, err := h.Connections.EnsureConnection(ctx, aisha, "p1", brian.UserID)
	require.NoError(t, err)

	const perSender = 15
	var wg sync.WaitGroup
	for _, sess := range []Session{aisha, brian} {
		wg.Add(1)
		go func(sess Session) {
			defer wg.Done()
			for i := 0; i < perSender; i++ {
				_, err := h.Connections.SendMessage(ctx, sess, conn.ID, fmt.Sprintf("%s-%02d", sess.UserID, i))
				assert.NoError(t, err)
			}
		}(sess)
	}
	wg.Wait()

	msgs, err := h.Connections.ListMessages(ctx, aisha, conn.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 2*perSender)

	last := map[string]string{}
	var prev time.Time
	for _, m := range msgs {
		assert.True(t, m.CreatedAt.After(prev))
		prev = m.CreatedAt
		// Each sender's own messages keep their send order.
		assert.Greater(t, m.Body, last[m.SenderID])
		last[m.SenderID] = m.Body
	}
}

func TestMessages_ScopedAndValidated(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	aisha := h.register(t, "Aisha")
	brian := h.register(t, "Brian")
	carol := h.register(t, "Carol")

	ab, err := h.Connections.EnsureConnection(ctx, aisha, "p1", brian.UserID)
	require.NoError(t, err)
	bc, err := h.Connections.EnsureConnection(ctx, brian, "p1", carol.UserID)
	require.NoError(t, err)

	_, err = h.Connections.SendMessage(ctx, aisha, ab.ID, "hello")
	require.NoError(t, err)
	_, err = h.Connections.SendMessage(ctx, carol, bc.ID, "hi brian")
	require.NoError(t, err)

	_, err = h.Connections.SendMessage(ctx, carol, ab.ID, "let me in")
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = h.Connections.ListMessages(ctx, carol, ab.ID)
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = h.Connections.SendMessage(ctx, aisha, ab.ID, "   ")
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = h.Connections.SendMessage(ctx, aisha, "missing", "hello")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = h.Connections.SendMessage(ctx, Session{}, ab.ID, "hello")
	assert.ErrorIs(t, err, ErrUnauthenticated)

	msgs, err := h.Connections.ListMessages(ctx, brian, ab.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "hello", msgs[0].Body)
}

func TestConnections_RejectInvalidUTF8(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	aisha := h.register(t, "Aisha")
	brian := h.register(t, "Brian")

	_, err := h.Connections.EnsureConnection(ctx, aisha, "p\xff1", brian.UserID)
	assert.ErrorIs(t, err, ErrInvalidInput)

	conn, err := h.Connections.EnsureConnection(ctx, aisha, "p1", brian.UserID)
	require.NoError(t, err)

	_, err = h.Connections.SendMessage(ctx, aisha, conn.ID, "hi \xff there")
	assert.ErrorIs(t, err, ErrInvalidInput)

	sent, err := h.Connections.SendMessage(ctx, aisha, conn.ID, "héllo ✓")
	require.NoError(t, err)
	msgs, err := h.Connections.ListMessages(ctx, brian, conn.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, sent, msgs[0])
}
