// Package engine is the dispatcher: it takes inbound chat events, resolves
// the sender to an actor (or runs the linking handshake), routes the message
// to the session's active workflow, and sends the replies. One instance is
// constructed at wiring time and shared by all transports.
package engine

import (
	"context"
	"errors"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/macrofleet/fieldops/internal/models"
	"github.com/macrofleet/fieldops/internal/session"
	"github.com/macrofleet/fieldops/internal/storage"
	"github.com/macrofleet/fieldops/internal/transport"
	"github.com/macrofleet/fieldops/internal/workflow"
)

type Engine struct {
	store    storage.Store
	sessions *session.Manager
	sender   transport.Sender
	log      *zap.Logger
	metrics  *Metrics
	tracer   trace.Tracer
	deps     workflow.Deps
}

func New(store storage.Store, sessions *session.Manager, sender transport.Sender, log *zap.Logger, metrics *Metrics) *Engine {
	e := &Engine{
		store:    store,
		sessions: sessions,
		sender:   sender,
		log:      log,
		metrics:  metrics,
		tracer:   otel.Tracer("fieldops/engine"),
	}
	e.deps = workflow.Deps{
		Directory: store,
		Registry:  store,
		Records:   store,
		Log:       log,
	}
	if metrics != nil {
		e.deps.Obs = metrics
	}
	return e
}

var mainMenu = [][]transport.Button{
	{
		{Label: "Inspection checklist", Data: "checklist"},
		{Label: "Refueling", Data: "refueling"},
	},
	{
		{Label: "Maintenance", Data: "maintenance"},
		{Label: "Unlink account", Data: "unlink"},
	},
}

// HandleEvent processes one inbound event end to end. It is safe to call
// concurrently; events for the same chat id are serialized by the session
// manager and applied in arrival order.
func (e *Engine) HandleEvent(ctx context.Context, ev transport.Event) {
	ctx, span := e.tracer.Start(ctx, "engine.handle_event",
		trace.WithAttributes(attribute.String("chat.id", ev.ChatID)))
	defer span.End()

	if e.metrics != nil {
		e.metrics.eventsTotal.Inc()
	}

	sess, release := e.sessions.Acquire(ev.ChatID)
	defer release()

	msgs, err := e.route(ctx, sess, ev)
	if err != nil {
		// upstream failure: keep the session where it is so a retry does
		// not re-enter already-captured steps
		if e.metrics != nil {
			e.metrics.upstreamFailures.Inc()
		}
		e.log.Error("event processing failed",
			zap.String("chat_id", ev.ChatID),
			zap.String("flow", string(sess.Flow)),
			zap.Error(err))
		msgs = []transport.Message{{ChatID: sess.ChatID, Text: "Something went wrong on our side. Please send that again in a moment."}}
	}

	for _, msg := range msgs {
		if err := e.sender.Send(ctx, msg); err != nil {
			e.log.Error("outbound send failed", zap.String("chat_id", msg.ChatID), zap.Error(err))
		}
	}
}

func (e *Engine) route(ctx context.Context, sess *session.Session, ev transport.Event) ([]transport.Message, error) {
	input := strings.TrimSpace(ev.Input())

	if isCancel(input) {
		if !sess.Active() {
			return []transport.Message{{ChatID: sess.ChatID, Text: "Nothing to cancel."}}, nil
		}
		flow := sess.Flow
		sess.Reset()
		if e.metrics != nil {
			e.metrics.FlowAborted(flow)
		}
		return []transport.Message{{ChatID: sess.ChatID, Text: "Cancelled. Nothing was saved."}}, nil
	}

	// identity resolution: an unlinked chat can only run the linking flow
	if sess.ActorID == "" {
		actor, err := e.store.FindByChatID(ctx, sess.ChatID)
		switch {
		case err == nil:
			sess.ActorID = actor.ID
		case errors.Is(err, storage.ErrNotFound):
			if sess.Flow == session.FlowLinking {
				return workflow.HandleLinking(ctx, &e.deps, sess, ev)
			}
			return workflow.StartLinking(sess), nil
		default:
			return nil, err
		}
	}

	actor, err := e.store.GetActor(ctx, sess.ActorID)
	if errors.Is(err, storage.ErrNotFound) {
		// actor was deleted out from under the session: drop the link
		sess.Reset()
		sess.ActorID = ""
		return workflow.StartLinking(sess), nil
	}
	if err != nil {
		return nil, err
	}

	switch sess.Flow {
	case session.FlowLinking:
		// linked mid-flow through another path; fall back to the menu
		sess.Reset()
	case session.FlowChecklist:
		return workflow.HandleChecklist(ctx, &e.deps, sess, actor, input)
	case session.FlowRefueling:
		return workflow.HandleRefueling(ctx, &e.deps, sess, actor, input)
	case session.FlowMaintenance:
		return workflow.HandleMaintenance(ctx, &e.deps, sess, actor, input)
	}

	return e.routeIdle(ctx, sess, actor, input)
}

// routeIdle handles commands and menu selections outside any workflow.
func (e *Engine) routeIdle(ctx context.Context, sess *session.Session, actor *models.Actor, input string) ([]transport.Message, error) {
	switch strings.ToLower(input) {
	case "/start", "/menu", "menu", "help", "/help":
		return []transport.Message{{
			ChatID: sess.ChatID,
			Text:   "Hi " + actor.Name + ". What do you want to record?",
			Menu:   mainMenu,
		}}, nil
	case "checklist":
		return workflow.StartChecklist(sess), nil
	case "refueling":
		return workflow.StartRefueling(sess), nil
	case "maintenance":
		return workflow.StartMaintenance(sess), nil
	case "unlink":
		return workflow.Unlink(ctx, &e.deps, sess)
	}

	// an equipment code sent from Idle starts an inspection on that
	// equipment directly (the QR-scan path)
	if _, err := e.store.FindEquipmentByCode(ctx, input); err == nil {
		workflow.StartChecklist(sess)
		return workflow.HandleChecklist(ctx, &e.deps, sess, actor, input)
	} else if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}

	return []transport.Message{{
		ChatID: sess.ChatID,
		Text:   "I didn't catch that. Pick an option below or send an equipment code.",
		Menu:   mainMenu,
	}}, nil
}

func isCancel(input string) bool {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "/cancel", "cancel":
		return true
	}
	return false
}
