package workflow

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/macrofleet/fieldops/internal/models"
	"github.com/macrofleet/fieldops/internal/session"
	"github.com/macrofleet/fieldops/internal/storage"
	"github.com/macrofleet/fieldops/internal/transport"
)

const (
	refuelStepEquipment = iota
	refuelStepReading
	refuelStepVolume
	refuelStepCost
	refuelStepFuelType
)

const (
	fieldReading  = "reading"
	fieldVolume   = "volume"
	fieldCost     = "cost"
	fieldFuelType = "fuel_type"
)

var fuelMenu = [][]transport.Button{{
	{Label: "Diesel", Data: "diesel"},
	{Label: "Gasoline", Data: "gasoline"},
	{Label: "Ethanol", Data: "ethanol"},
}}

// StartRefueling begins a refueling entry and asks for the equipment code.
func StartRefueling(sess *session.Session) []transport.Message {
	sess.Reset()
	sess.Flow = session.FlowRefueling
	sess.Step = refuelStepEquipment
	return one(reply(sess, "Refueling entry started. Send the equipment code."))
}

// HandleRefueling advances the refueling flow by one message.
func HandleRefueling(ctx context.Context, d *Deps, sess *session.Session, actor *models.Actor, input string) ([]transport.Message, error) {
	switch sess.Step {
	case refuelStepEquipment:
		eq, msgs, err := resolveEquipment(ctx, d, sess, actor, input)
		if err != nil || eq == nil {
			return msgs, err
		}
		sess.Step = refuelStepReading
		return one(reply(sess, fmt.Sprintf("Working on %s. Send the meter reading at the pump.", eq.Name))), nil

	case refuelStepReading:
		v, ok := parseReading(input)
		if !ok {
			return one(reply(sess, "Send the meter reading as a non-negative number.")), nil
		}
		sess.Fields[fieldReading] = strconv.FormatFloat(v, 'f', -1, 64)
		// after a rejected finalize only the reading is re-captured;
		// everything else is already on file
		if sess.Fields[fieldVolume] != "" && sess.Fields[fieldCost] != "" && sess.Fields[fieldFuelType] != "" {
			return finalizeRefueling(ctx, d, sess, actor)
		}
		sess.Step = refuelStepVolume
		return one(reply(sess, "How many liters went in?")), nil

	case refuelStepVolume:
		v, ok := parsePositive(input)
		if !ok {
			return one(reply(sess, "Send the volume in liters as a positive number.")), nil
		}
		sess.Fields[fieldVolume] = strconv.FormatFloat(v, 'f', -1, 64)
		sess.Step = refuelStepCost
		return one(reply(sess, "Total cost of this fill-up?")), nil

	case refuelStepCost:
		v, ok := parsePositive(input)
		if !ok {
			return one(reply(sess, "Send the total cost as a positive number.")), nil
		}
		sess.Fields[fieldCost] = strconv.FormatFloat(v, 'f', -1, 64)
		sess.Step = refuelStepFuelType
		return one(menuReply(sess, "What fuel was used?", fuelMenu)), nil

	case refuelStepFuelType:
		fuel := strings.ToLower(strings.TrimSpace(input))
		switch fuel {
		case "diesel", "gasoline", "ethanol":
		default:
			return one(menuReply(sess, "Pick one of the fuel types.", fuelMenu)), nil
		}
		sess.Fields[fieldFuelType] = fuel
		return finalizeRefueling(ctx, d, sess, actor)

	default:
		sess.Reset()
		return one(reply(sess, "Refueling entry got out of step; it was discarded. Start again from the menu.")), nil
	}
}

func finalizeRefueling(ctx context.Context, d *Deps, sess *session.Session, actor *models.Actor) ([]transport.Message, error) {
	reading, _ := strconv.ParseFloat(sess.Fields[fieldReading], 64)
	volume, _ := strconv.ParseFloat(sess.Fields[fieldVolume], 64)
	cost, _ := strconv.ParseFloat(sess.Fields[fieldCost], 64)

	rec := &models.RefuelingRecord{
		ID:          uuid.NewString(),
		ActorID:     actor.ID,
		EquipmentID: sess.EquipmentID,
		Reading:     reading,
		Volume:      volume,
		TotalCost:   cost,
		UnitPrice:   cost / volume,
		FuelType:    sess.Fields[fieldFuelType],
		CreatedAt:   d.now(),
	}

	if err := d.Records.CommitRefueling(ctx, rec); err != nil {
		var regress *storage.ReadingRegressionError
		if errors.As(err, &regress) {
			d.obs().ReadingRejected()
			delete(sess.Fields, fieldReading)
			sess.Step = refuelStepReading
			return one(reply(sess, fmt.Sprintf(
				"That reading is below the current value %.1f; the meter never goes backwards. Send a corrected reading.",
				regress.Current))), nil
		}
		return nil, err
	}

	d.obs().FlowCompleted(session.FlowRefueling)
	d.Log.Info("refueling committed",
		zap.String("record", rec.ID),
		zap.String("equipment", rec.EquipmentID),
		zap.Float64("volume", rec.Volume))

	text := fmt.Sprintf("Refueling recorded: %.1f L of %s at %.2f/L.", rec.Volume, rec.FuelType, rec.UnitPrice)
	sess.Reset()
	return one(reply(sess, text)), nil
}
