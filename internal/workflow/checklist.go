package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/macrofleet/fieldops/internal/models"
	"github.com/macrofleet/fieldops/internal/session"
	"github.com/macrofleet/fieldops/internal/storage"
	"github.com/macrofleet/fieldops/internal/transport"
)

// Checklist step layout: step 0 selects the equipment, steps 1..N walk the
// category template's questions (a flagged non-conformity inserts a note
// sub-step without advancing), the last step captures an optional closing
// meter reading before finalize.
const checklistStepEquipment = 0

func checklistReadingStep(cs *session.ChecklistState) int {
	return 1 + len(cs.Questions)
}

var answerMenu = [][]transport.Button{{
	{Label: "Conforms", Data: string(models.AnswerConforms)},
	{Label: "Does not conform", Data: string(models.AnswerDoesNotConform)},
	{Label: "N/A", Data: string(models.AnswerNotApplicable)},
}}

// StartChecklist begins an inspection and asks for the equipment code.
func StartChecklist(sess *session.Session) []transport.Message {
	sess.Reset()
	sess.Flow = session.FlowChecklist
	sess.Step = checklistStepEquipment
	return one(reply(sess, "Inspection started. Send the equipment code (or scan its QR tag)."))
}

// HandleChecklist advances the checklist flow by one message.
func HandleChecklist(ctx context.Context, d *Deps, sess *session.Session, actor *models.Actor, input string) ([]transport.Message, error) {
	cs := sess.Checklist

	switch {
	case sess.Step == checklistStepEquipment:
		eq, msgs, err := resolveEquipment(ctx, d, sess, actor, input)
		if err != nil || eq == nil {
			return msgs, err
		}
		tpl, err := d.Registry.GetTemplate(ctx, eq.Category)
		if errors.Is(err, storage.ErrNotFound) || (err == nil && len(tpl.Questions) == 0) {
			sess.Reset()
			d.obs().FlowAborted(session.FlowChecklist)
			return one(reply(sess, "There is no inspection checklist for this equipment category yet.")), nil
		}
		if err != nil {
			return nil, err
		}
		sess.Checklist = &session.ChecklistState{Questions: tpl.Questions}
		sess.Step = 1
		return one(askQuestion(sess, 0)), nil

	case cs != nil && cs.AwaitingNote:
		note := strings.TrimSpace(input)
		if note == "" {
			return one(reply(sess, "Describe the problem in a short message; the note is required for this item.")), nil
		}
		cs.Items[len(cs.Items)-1].Note = note
		cs.AwaitingNote = false
		sess.Step++
		return one(nextChecklistPrompt(sess)), nil

	case cs != nil && sess.Step >= 1 && sess.Step <= len(cs.Questions):
		answer, ok := parseAnswer(input)
		if !ok {
			return one(menuReply(sess, "Pick one of the three answers.", answerMenu)), nil
		}
		q := cs.Questions[sess.Step-1]
		cs.Items = append(cs.Items, models.InspectionItem{
			QuestionID: q.ID,
			Question:   q.Text,
			Answer:     answer,
		})
		if answer == models.AnswerDoesNotConform && q.RequiresNote {
			cs.AwaitingNote = true
			return one(reply(sess, "Noted as non-conforming. Describe the problem before we move on.")), nil
		}
		sess.Step++
		return one(nextChecklistPrompt(sess)), nil

	case cs != nil && sess.Step == checklistReadingStep(cs):
		var readingPtr *float64
		if !strings.EqualFold(strings.TrimSpace(input), "skip") {
			v, ok := parseReading(input)
			if !ok {
				return one(reply(sess, "Send the meter reading as a number, or \"skip\" if you can't read it.")), nil
			}
			readingPtr = &v
		}
		return finalizeChecklist(ctx, d, sess, actor, readingPtr)

	default:
		sess.Reset()
		return one(reply(sess, "Inspection got out of step; it was discarded. Start again from the menu.")), nil
	}
}

func parseAnswer(input string) (models.ChecklistAnswer, bool) {
	switch models.ChecklistAnswer(strings.TrimSpace(strings.ToLower(input))) {
	case models.AnswerConforms:
		return models.AnswerConforms, true
	case models.AnswerDoesNotConform:
		return models.AnswerDoesNotConform, true
	case models.AnswerNotApplicable:
		return models.AnswerNotApplicable, true
	}
	return "", false
}

func askQuestion(sess *session.Session, idx int) transport.Message {
	cs := sess.Checklist
	text := fmt.Sprintf("Item %d of %d: %s", idx+1, len(cs.Questions), cs.Questions[idx].Text)
	return menuReply(sess, text, answerMenu)
}

func nextChecklistPrompt(sess *session.Session) transport.Message {
	cs := sess.Checklist
	if sess.Step <= len(cs.Questions) {
		return askQuestion(sess, sess.Step-1)
	}
	return reply(sess, "Checklist done. Send the current meter reading, or \"skip\".")
}

func finalizeChecklist(ctx context.Context, d *Deps, sess *session.Session, actor *models.Actor, reading *float64) ([]transport.Message, error) {
	cs := sess.Checklist
	rec := &models.InspectionRecord{
		ID:          uuid.NewString(),
		ActorID:     actor.ID,
		EquipmentID: sess.EquipmentID,
		Items:       cs.Items,
		Outcome:     models.ClassifyInspection(cs.Items),
		Reading:     reading,
		CreatedAt:   d.now(),
	}

	if err := d.Records.CommitInspection(ctx, rec); err != nil {
		var regress *storage.ReadingRegressionError
		if errors.As(err, &regress) {
			d.obs().ReadingRejected()
			return one(reply(sess, fmt.Sprintf(
				"That reading is below the current value %.1f; the meter never goes backwards. Send a corrected reading, or \"skip\".",
				regress.Current))), nil
		}
		return nil, err
	}

	d.obs().FlowCompleted(session.FlowChecklist)
	d.Log.Info("inspection committed",
		zap.String("record", rec.ID),
		zap.String("equipment", rec.EquipmentID),
		zap.String("outcome", string(rec.Outcome)))

	var text string
	switch rec.Outcome {
	case models.OutcomeApproved:
		text = "Inspection complete: equipment approved for operation."
	case models.OutcomeApprovedLimited:
		text = "Inspection complete: approved with restriction. Address the non-conforming items soon."
	default:
		text = "Inspection complete: equipment rejected. Do not operate it until the issues are fixed."
	}
	sess.Reset()
	return one(reply(sess, text)), nil
}
