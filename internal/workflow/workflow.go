// Package workflow implements the guided data-capture flows: linking,
// checklist, refueling and maintenance. Each handler is a step function over
// the session: it validates the current input, mutates the session, and
// returns the replies to send. Invalid input re-prompts the same step and
// leaves captured data untouched. Errors returned to the caller are upstream
// I/O failures only; domain failures (bad code, not authorized, reading
// regression) are handled in place.
package workflow

import (
	"context"
	"errors"
	"math"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/macrofleet/fieldops/internal/authz"
	"github.com/macrofleet/fieldops/internal/models"
	"github.com/macrofleet/fieldops/internal/session"
	"github.com/macrofleet/fieldops/internal/storage"
	"github.com/macrofleet/fieldops/internal/transport"
)

// Observer receives workflow lifecycle signals, typically for metrics.
type Observer interface {
	FlowCompleted(flow session.FlowKind)
	FlowAborted(flow session.FlowKind)
	ReadingRejected()
}

// NopObserver ignores all signals.
type NopObserver struct{}

func (NopObserver) FlowCompleted(session.FlowKind) {}
func (NopObserver) FlowAborted(session.FlowKind)   {}
func (NopObserver) ReadingRejected()               {}

// Deps bundles the collaborators every handler needs.
type Deps struct {
	Directory storage.ActorDirectory
	Registry  storage.EquipmentRegistry
	Records   storage.RecordStore
	Obs       Observer
	Log       *zap.Logger
	// Now is the clock; tests pin it.
	Now func() time.Time
}

func (d *Deps) now() time.Time {
	if d.Now != nil {
		return d.Now().UTC()
	}
	return time.Now().UTC()
}

func (d *Deps) obs() Observer {
	if d.Obs != nil {
		return d.Obs
	}
	return NopObserver{}
}

func reply(sess *session.Session, text string) transport.Message {
	return transport.Message{ChatID: sess.ChatID, Text: text}
}

func menuReply(sess *session.Session, text string, menu [][]transport.Button) transport.Message {
	return transport.Message{ChatID: sess.ChatID, Text: text, Menu: menu}
}

func one(msg transport.Message) []transport.Message {
	return []transport.Message{msg}
}

// parseReading accepts a non-negative finite decimal meter value.
// ParseFloat also accepts "nan" and "inf"; neither is a meter value and
// NaN would slip past the < 0 guard, so non-finite input is rejected here.
func parseReading(input string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(strings.ReplaceAll(input, ",", ".")), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0, false
	}
	return v, true
}

// parsePositive accepts a strictly positive decimal value.
func parsePositive(input string) (float64, bool) {
	v, ok := parseReading(input)
	if !ok || v <= 0 {
		return 0, false
	}
	return v, true
}

// resolveEquipment runs step 0 of every capture workflow: look the equipment
// up by code and pass it through the authorization gate. A failed gate check
// aborts the whole workflow; an unknown code just re-prompts.
func resolveEquipment(ctx context.Context, d *Deps, sess *session.Session, actor *models.Actor, code string) (*models.Equipment, []transport.Message, error) {
	eq, err := d.Registry.FindEquipmentByCode(ctx, strings.TrimSpace(code))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, one(reply(sess, "I don't know that equipment code. Check the plate or QR tag and send it again.")), nil
	}
	if err != nil {
		return nil, nil, err
	}

	var site *models.Site
	if eq.SiteID != "" {
		site, err = d.Registry.GetSite(ctx, eq.SiteID)
		if errors.Is(err, storage.ErrNotFound) {
			site = nil
		} else if err != nil {
			return nil, nil, err
		}
	}

	if !authz.CanAct(actor, eq, site) {
		flow := sess.Flow
		sess.Reset()
		d.obs().FlowAborted(flow)
		d.Log.Info("authorization denied",
			zap.String("actor", actor.ID),
			zap.String("equipment", eq.ID))
		return nil, one(reply(sess, "You are not authorized to work on "+eq.Name+". Ask your supervisor to grant access.")), nil
	}

	sess.EquipmentID = eq.ID
	return eq, nil, nil
}
