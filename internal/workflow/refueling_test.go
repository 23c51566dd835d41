package workflow

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/macrofleet/fieldops/internal/session"
)

func TestRefuelingHappyPath(t *testing.T) {
	d, st := testDeps(t)
	seedFixture(t, st)
	ctx := context.Background()

	actor := getActor(t, st, techID)
	sess := newSession("chat-1", techID)
	StartRefueling(sess)

	msgs, err := HandleRefueling(ctx, d, sess, actor, equipCode)
	require.NoError(t, err)
	assert.Contains(t, msgs[0].Text, "meter reading")

	msgs, err = HandleRefueling(ctx, d, sess, actor, "130,5")
	require.NoError(t, err)
	assert.Contains(t, msgs[0].Text, "liters")

	msgs, err = HandleRefueling(ctx, d, sess, actor, "80")
	require.NoError(t, err)
	assert.Contains(t, msgs[0].Text, "cost")

	msgs, err = HandleRefueling(ctx, d, sess, actor, "480")
	require.NoError(t, err)
	assert.Contains(t, msgs[0].Text, "fuel")
	require.NotEmpty(t, msgs[0].Menu)

	msgs, err = HandleRefueling(ctx, d, sess, actor, "diesel")
	require.NoError(t, err)
	assert.Contains(t, msgs[0].Text, "Refueling recorded")
	assert.Equal(t, session.FlowNone, sess.Flow)

	recs, err := st.ListRefuelings(ctx, equipID)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, 130.5, recs[0].Reading)
	assert.Equal(t, 80.0, recs[0].Volume)
	assert.Equal(t, 480.0, recs[0].TotalCost)
	assert.Equal(t, 6.0, recs[0].UnitPrice)
	assert.Equal(t, "diesel", recs[0].FuelType)

	eq, err := st.GetEquipment(ctx, equipID)
	require.NoError(t, err)
	assert.Equal(t, 130.5, eq.CurrentReading)
}

func TestRefuelingRejectsBadNumbers(t *testing.T) {
	d, st := testDeps(t)
	seedFixture(t, st)
	ctx := context.Background()

	actor := getActor(t, st, techID)
	sess := newSession("chat-1", techID)
	StartRefueling(sess)
	_, err := HandleRefueling(ctx, d, sess, actor, equipCode)
	require.NoError(t, err)

	msgs, err := HandleRefueling(ctx, d, sess, actor, "-5")
	require.NoError(t, err)
	assert.Contains(t, msgs[0].Text, "non-negative")
	assert.Equal(t, refuelStepReading, sess.Step)

	// non-finite floats parse but are not meter values; they must re-prompt
	// instead of poisoning the captured fields
	for _, in := range []string{"nan", "inf"} {
		msgs, err = HandleRefueling(ctx, d, sess, actor, in)
		require.NoError(t, err)
		assert.Contains(t, msgs[0].Text, "non-negative")
		assert.Equal(t, refuelStepReading, sess.Step)
		assert.Empty(t, sess.Fields[fieldReading])
	}

	_, err = HandleRefueling(ctx, d, sess, actor, "130")
	require.NoError(t, err)

	msgs, err = HandleRefueling(ctx, d, sess, actor, "0")
	require.NoError(t, err)
	assert.Contains(t, msgs[0].Text, "positive number")
	assert.Equal(t, refuelStepVolume, sess.Step)
}

func TestRefuelingRegressionRecapturesOnlyReading(t *testing.T) {
	d, st := testDeps(t)
	seedFixture(t, st)
	ctx := context.Background()

	actor := getActor(t, st, techID)
	sess := newSession("chat-1", techID)
	StartRefueling(sess)

	_, err := HandleRefueling(ctx, d, sess, actor, equipCode)
	require.NoError(t, err)
	_, err = HandleRefueling(ctx, d, sess, actor, "50") // below the stored 100
	require.NoError(t, err)
	_, err = HandleRefueling(ctx, d, sess, actor, "80")
	require.NoError(t, err)
	_, err = HandleRefueling(ctx, d, sess, actor, "480")
	require.NoError(t, err)

	msgs, err := HandleRefueling(ctx, d, sess, actor, "diesel")
	require.NoError(t, err)
	assert.Contains(t, msgs[0].Text, "never goes backwards")
	assert.Equal(t, refuelStepReading, sess.Step)
	assert.Equal(t, session.FlowRefueling, sess.Flow)

	// nothing was written by the rejected attempt
	recs, err := st.ListRefuelings(ctx, equipID)
	require.NoError(t, err)
	assert.Empty(t, recs)

	// corrected reading reuses the already-captured fields
	msgs, err = HandleRefueling(ctx, d, sess, actor, "150")
	require.NoError(t, err)
	assert.Contains(t, msgs[0].Text, "Refueling recorded")

	recs, err = st.ListRefuelings(ctx, equipID)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, 150.0, recs[0].Reading)
	assert.Equal(t, "diesel", recs[0].FuelType)
}

func TestRefuelingUnknownFuelReprompts(t *testing.T) {
	d, st := testDeps(t)
	seedFixture(t, st)
	ctx := context.Background()

	actor := getActor(t, st, techID)
	sess := newSession("chat-1", techID)
	StartRefueling(sess)
	_, err := HandleRefueling(ctx, d, sess, actor, equipCode)
	require.NoError(t, err)
	_, err = HandleRefueling(ctx, d, sess, actor, "130")
	require.NoError(t, err)
	_, err = HandleRefueling(ctx, d, sess, actor, "80")
	require.NoError(t, err)
	_, err = HandleRefueling(ctx, d, sess, actor, "480")
	require.NoError(t, err)

	msgs, err := HandleRefueling(ctx, d, sess, actor, "kerosene")
	require.NoError(t, err)
	assert.Contains(t, msgs[0].Text, "Pick one")
	assert.Equal(t, refuelStepFuelType, sess.Step)
}
