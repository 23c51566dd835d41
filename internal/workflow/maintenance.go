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
	maintStepEquipment = iota
	maintStepKind
	maintStepReading
	maintStepDescription
	maintStepNotes
)

const (
	fieldKind        = "kind"
	fieldDescription = "description"
)

var maintKindMenu = [][]transport.Button{{
	{Label: "Preventive", Data: string(models.MaintenancePreventive)},
	{Label: "Corrective", Data: string(models.MaintenanceCorrective)},
}}

// StartMaintenance begins a maintenance entry and asks for the equipment code.
func StartMaintenance(sess *session.Session) []transport.Message {
	sess.Reset()
	sess.Flow = session.FlowMaintenance
	sess.Step = maintStepEquipment
	return one(reply(sess, "Maintenance entry started. Send the equipment code."))
}

// HandleMaintenance advances the maintenance flow by one message.
func HandleMaintenance(ctx context.Context, d *Deps, sess *session.Session, actor *models.Actor, input string) ([]transport.Message, error) {
	switch sess.Step {
	case maintStepEquipment:
		eq, msgs, err := resolveEquipment(ctx, d, sess, actor, input)
		if err != nil || eq == nil {
			return msgs, err
		}
		sess.Step = maintStepKind
		return one(menuReply(sess, fmt.Sprintf("Working on %s. What kind of maintenance?", eq.Name), maintKindMenu)), nil

	case maintStepKind:
		kind := strings.ToLower(strings.TrimSpace(input))
		if kind != string(models.MaintenancePreventive) && kind != string(models.MaintenanceCorrective) {
			return one(menuReply(sess, "Pick preventive or corrective.", maintKindMenu)), nil
		}
		sess.Fields[fieldKind] = kind
		sess.Step = maintStepReading
		return one(reply(sess, "Send the meter reading at the time of the work.")), nil

	case maintStepReading:
		v, ok := parseReading(input)
		if !ok {
			return one(reply(sess, "Send the meter reading as a non-negative number.")), nil
		}
		sess.Fields[fieldReading] = strconv.FormatFloat(v, 'f', -1, 64)
		if sess.Fields[fieldDescription] != "" {
			// re-capture after a rejected finalize; the rest is on file
			return finalizeMaintenance(ctx, d, sess, actor)
		}
		sess.Step = maintStepDescription
		return one(reply(sess, "Describe the work that was done.")), nil

	case maintStepDescription:
		desc := strings.TrimSpace(input)
		if desc == "" {
			return one(reply(sess, "The description can't be empty.")), nil
		}
		sess.Fields[fieldDescription] = desc
		sess.Step = maintStepNotes
		return one(reply(sess, "Any extra notes? Send them now, or \"skip\".")), nil

	case maintStepNotes:
		if !strings.EqualFold(strings.TrimSpace(input), "skip") {
			sess.Fields["notes"] = strings.TrimSpace(input)
		}
		return finalizeMaintenance(ctx, d, sess, actor)

	default:
		sess.Reset()
		return one(reply(sess, "Maintenance entry got out of step; it was discarded. Start again from the menu.")), nil
	}
}

func finalizeMaintenance(ctx context.Context, d *Deps, sess *session.Session, actor *models.Actor) ([]transport.Message, error) {
	reading, _ := strconv.ParseFloat(sess.Fields[fieldReading], 64)

	rec := &models.MaintenanceRecord{
		ID:          uuid.NewString(),
		ActorID:     actor.ID,
		EquipmentID: sess.EquipmentID,
		Kind:        models.MaintenanceKind(sess.Fields[fieldKind]),
		Reading:     reading,
		Description: sess.Fields[fieldDescription],
		Notes:       sess.Fields["notes"],
		CreatedAt:   d.now(),
	}

	if err := d.Records.CommitMaintenance(ctx, rec); err != nil {
		var regress *storage.ReadingRegressionError
		if errors.As(err, &regress) {
			d.obs().ReadingRejected()
			delete(sess.Fields, fieldReading)
			sess.Step = maintStepReading
			return one(reply(sess, fmt.Sprintf(
				"That reading is below the current value %.1f; the meter never goes backwards. Send a corrected reading.",
				regress.Current))), nil
		}
		return nil, err
	}

	d.obs().FlowCompleted(session.FlowMaintenance)
	d.Log.Info("maintenance committed",
		zap.String("record", rec.ID),
		zap.String("equipment", rec.EquipmentID),
		zap.String("kind", string(rec.Kind)))

	sess.Reset()
	return one(reply(sess, "Maintenance recorded. Thanks.")), nil
}
