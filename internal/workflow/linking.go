package workflow

import (
	"context"
	"errors"
	"regexp"

	"go.uber.org/zap"

	"github.com/macrofleet/fieldops/internal/session"
	"github.com/macrofleet/fieldops/internal/storage"
	"github.com/macrofleet/fieldops/internal/transport"
)

// Linking is a two-step handshake: an 8-digit single-use code proves the
// user was handed something by a supervisor, the last two digits of the
// matched actor's document prove they are who the code was issued to. A
// leaked code alone is not enough to take over an account.
const (
	stepLinkCode = iota
	stepLinkChallenge
)

var (
	linkCodeRe  = regexp.MustCompile(`^\d{8}$`)
	challengeRe = regexp.MustCompile(`^\d{2}$`)
)

// StartLinking puts the session into the linking flow and asks for the code.
func StartLinking(sess *session.Session) []transport.Message {
	sess.Reset()
	sess.Flow = session.FlowLinking
	sess.Step = stepLinkCode
	return one(reply(sess, "This chat isn't linked to an account yet. Send your 8-digit linking code to get started."))
}

// HandleLinking advances the linking flow by one message.
func HandleLinking(ctx context.Context, d *Deps, sess *session.Session, ev transport.Event) ([]transport.Message, error) {
	input := ev.Input()
	switch sess.Step {
	case stepLinkCode:
		if !linkCodeRe.MatchString(input) {
			return one(reply(sess, "A linking code is exactly 8 digits. Try again.")), nil
		}
		actor, err := d.Directory.FindByLinkCode(ctx, input)
		if errors.Is(err, storage.ErrNotFound) {
			return one(reply(sess, "That code is invalid or has expired. Ask your supervisor for a new one and send it here.")), nil
		}
		if err != nil {
			return nil, err
		}
		if !actor.HasActiveLinkCode(d.now()) {
			return one(reply(sess, "That code is invalid or has expired. Ask your supervisor for a new one and send it here.")), nil
		}
		sess.LinkActorID = actor.ID
		sess.Step = stepLinkChallenge
		return one(reply(sess, "Code accepted. Now confirm it's you: reply with the last two digits of your document.")), nil

	case stepLinkChallenge:
		if !challengeRe.MatchString(input) {
			return one(reply(sess, "Reply with exactly two digits, the last two of your document.")), nil
		}
		actor, err := d.Directory.GetActor(ctx, sess.LinkActorID)
		if err != nil {
			return nil, err
		}
		doc := actor.Document
		if len(doc) < 2 || doc[len(doc)-2:] != input {
			return one(reply(sess, "Those digits don't match our records. Try again.")), nil
		}
		if err := d.Directory.SetChatIdentity(ctx, actor.ID, sess.ChatID, ev.Handle); err != nil {
			if errors.Is(err, storage.ErrChatIdentityTaken) {
				sess.Reset()
				return one(reply(sess, "This chat is already linked to another account. Unlink it first.")), nil
			}
			return nil, err
		}
		sess.Reset()
		sess.ActorID = actor.ID
		d.obs().FlowCompleted(session.FlowLinking)
		d.Log.Info("chat identity linked",
			zap.String("actor", actor.ID),
			zap.String("kind", string(actor.Kind)))
		return one(reply(sess, "All set, "+actor.Name+". You're linked as "+string(actor.Kind)+". Send \"menu\" to see what you can do.")), nil

	default:
		sess.Reset()
		return one(reply(sess, "Let's start over. Send your 8-digit linking code.")), nil
	}
}

// Unlink clears the chat association for an already-resolved actor.
func Unlink(ctx context.Context, d *Deps, sess *session.Session) ([]transport.Message, error) {
	if sess.ActorID == "" {
		return one(reply(sess, "This chat isn't linked to any account.")), nil
	}
	if err := d.Directory.ClearChatIdentity(ctx, sess.ActorID); err != nil {
		return nil, err
	}
	sess.Reset()
	sess.ActorID = ""
	return one(reply(sess, "Done. This chat is no longer linked. Send a new linking code whenever you want to reconnect.")), nil
}
