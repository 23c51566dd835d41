package workflow

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/macrofleet/fieldops/internal/models"
	"github.com/macrofleet/fieldops/internal/session"
	"github.com/macrofleet/fieldops/internal/transport"
)

func TestLinkingHappyPath(t *testing.T) {
	d, st := testDeps(t)
	seedFixture(t, st)
	ctx := context.Background()

	sess := newSession("chat-1", "")
	msgs := StartLinking(sess)
	require.Len(t, msgs, 1)
	assert.Equal(t, session.FlowLinking, sess.Flow)

	msgs, err := HandleLinking(ctx, d, sess, transport.Event{ChatID: "chat-1", Text: "12345678"})
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0].Text, "last two digits")
	assert.Equal(t, stepLinkChallenge, sess.Step)

	msgs, err = HandleLinking(ctx, d, sess, transport.Event{ChatID: "chat-1", Text: "45", Handle: "@tania"})
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0].Text, "linked")
	assert.Equal(t, techID, sess.ActorID)
	assert.Equal(t, session.FlowNone, sess.Flow)

	a := getActor(t, st, techID)
	assert.Equal(t, "chat-1", a.ChatID)
	assert.Equal(t, "@tania", a.ChatHandle)
	assert.Empty(t, a.LinkCode)
}

func TestLinkingCodeIsSingleUse(t *testing.T) {
	d, st := testDeps(t)
	seedFixture(t, st)
	ctx := context.Background()

	sess := newSession("chat-1", "")
	StartLinking(sess)
	_, err := HandleLinking(ctx, d, sess, transport.Event{ChatID: "chat-1", Text: "12345678"})
	require.NoError(t, err)
	_, err = HandleLinking(ctx, d, sess, transport.Event{ChatID: "chat-1", Text: "45"})
	require.NoError(t, err)

	other := newSession("chat-2", "")
	StartLinking(other)
	msgs, err := HandleLinking(ctx, d, other, transport.Event{ChatID: "chat-2", Text: "12345678"})
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0].Text, "invalid or has expired")
	assert.Equal(t, stepLinkCode, other.Step)
}

func TestLinkingRejectsMalformedCode(t *testing.T) {
	d, st := testDeps(t)
	seedFixture(t, st)

	sess := newSession("chat-1", "")
	StartLinking(sess)
	msgs, err := HandleLinking(context.Background(), d, sess, transport.Event{ChatID: "chat-1", Text: "12-45-67"})
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0].Text, "exactly 8 digits")
	assert.Equal(t, stepLinkCode, sess.Step)
}

func TestLinkingExpiredCode(t *testing.T) {
	d, st := testDeps(t)
	seedFixture(t, st)
	ctx := context.Background()

	stale := &models.Actor{
		ID:             "TEC-2",
		Kind:           models.ActorTechnician,
		Name:           "Leo",
		Document:       "55555577",
		LinkCode:       "87654321",
		LinkCodeExpiry: time.Now().UTC().Add(-time.Minute),
	}
	require.NoError(t, st.SaveActor(ctx, stale))

	sess := newSession("chat-9", "")
	StartLinking(sess)
	msgs, err := HandleLinking(ctx, d, sess, transport.Event{ChatID: "chat-9", Text: "87654321"})
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0].Text, "invalid or has expired")
	assert.Equal(t, stepLinkCode, sess.Step)
}

func TestLinkingChallengeMismatchKeepsStep(t *testing.T) {
	d, st := testDeps(t)
	seedFixture(t, st)
	ctx := context.Background()

	sess := newSession("chat-1", "")
	StartLinking(sess)
	_, err := HandleLinking(ctx, d, sess, transport.Event{ChatID: "chat-1", Text: "12345678"})
	require.NoError(t, err)

	msgs, err := HandleLinking(ctx, d, sess, transport.Event{ChatID: "chat-1", Text: "99"})
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0].Text, "don't match")
	assert.Equal(t, stepLinkChallenge, sess.Step)
	assert.Equal(t, techID, sess.LinkActorID)

	// identity must not have been set by the failed attempt
	a := getActor(t, st, techID)
	assert.Empty(t, a.ChatID)
}

func TestUnlink(t *testing.T) {
	d, st := testDeps(t)
	seedFixture(t, st)
	ctx := context.Background()

	op := getActor(t, st, operatorID)
	require.Equal(t, "chat-op", op.ChatID)

	sess := newSession("chat-op", operatorID)
	msgs, err := Unlink(ctx, d, sess)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0].Text, "no longer linked")
	assert.Empty(t, sess.ActorID)

	op = getActor(t, st, operatorID)
	assert.Empty(t, op.ChatID)
}
