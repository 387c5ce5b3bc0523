// Package responder glues the platform event stream to the response
// registry: for each inbound message it asks the config store for a matching
// response and renders exactly one outbound decision (or none).
package responder

import (
	"context"
	"fmt"
	"math/rand/v2"
	"slices"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kingfisher-im/kingfisher/feishu"
	"github.com/kingfisher-im/kingfisher/internal/config"
)

// Sender delivers the rendered response back to the chat platform.
type Sender interface {
	Reply(ctx context.Context, msgID, text string) error
	ReplyImage(ctx context.Context, msgID, path string) error
}

// TriggerLog records fired responses. Recording is best effort; failures
// never block a reply.
type TriggerLog interface {
	Record(ctx context.Context, response, chatID, msgID string, at time.Time) error
}

// Asker answers free-form questions, typically an LLM behind a queue.
type Asker interface {
	Ask(ctx context.Context, prompt string) (string, error)
}

// seenTTL bounds the size of the dedup cache. Feishu redelivers events for a
// few minutes at most.
const seenTTL = 5 * time.Minute

// Responder handles inbound messages. Safe for concurrent use; the platform
// client may invoke HandleMessage from any number of goroutines.
type Responder struct {
	store  *config.Store
	sender Sender
	log    TriggerLog
	logger *zap.Logger
	asker  Asker

	pick func(n int) int // uniform draw for random-text responses

	seenMu sync.Mutex
	seen   map[string]time.Time // msgID -> first seen
}

// New creates a responder. log may be nil to disable trigger recording.
func New(store *config.Store, sender Sender, log TriggerLog, logger *zap.Logger) *Responder {
	return &Responder{
		store:  store,
		sender: sender,
		log:    log,
		logger: logger,
		pick:   rand.IntN,
		seen:   make(map[string]time.Time),
	}
}

// SetAsker enables the /ask command. Call before the message stream starts.
func (r *Responder) SetAsker(asker Asker) {
	r.asker = asker
}

// HandleMessage evaluates one inbound message and sends at most one
// response. Returns the render error, if any; evaluation itself cannot fail.
func (r *Responder) HandleMessage(ctx context.Context, msg *feishu.Message) error {
	if msg.SenderIsBot {
		return nil
	}
	if r.isSeen(msg.MsgID) {
		r.logger.Debug("duplicate message ignored", zap.String("ref", msg.Ref()))
		return nil
	}

	snapshot := r.store.Snapshot()
	if len(snapshot.Chats) > 0 && !slices.Contains(snapshot.Chats, msg.ChatID) {
		return nil
	}

	if handled, err := r.handleCommand(ctx, msg, snapshot); handled {
		return err
	}

	// Evaluate against the snapshot read above so the chat check, the
	// evaluation, and the name lookup all see one config generation.
	kind := snapshot.FindResponse(msg.Content, msg.Ref(), msg.CreateTime, rand.Float64, r.logger)
	if kind == nil {
		return nil
	}

	if err := r.render(ctx, msg, kind); err != nil {
		r.logger.Error("failed to send response",
			zap.String("ref", msg.Ref()),
			zap.Error(err))
		return err
	}

	if r.log != nil {
		name := responseName(snapshot, kind)
		if err := r.log.Record(ctx, name, msg.ChatID, msg.MsgID, msg.CreateTime); err != nil {
			r.logger.Warn("failed to record trigger", zap.Error(err))
		}
	}

	return nil
}

// handleCommand intercepts slash commands before rule evaluation. Commands
// bypass cooldowns and hit rates.
func (r *Responder) handleCommand(ctx context.Context, msg *feishu.Message, cfg *config.Config) (bool, error) {
	text := strings.TrimSpace(msg.Content)

	switch {
	case text == "/help":
		if cfg.HelpText == "" {
			return true, nil
		}
		return true, r.sender.Reply(ctx, msg.MsgID, cfg.HelpText)

	case strings.HasPrefix(text, "/ask "):
		if r.asker == nil {
			return true, nil
		}
		prompt := strings.TrimSpace(strings.TrimPrefix(text, "/ask "))
		if prompt == "" {
			return true, nil
		}
		answer, err := r.asker.Ask(ctx, prompt)
		if err != nil {
			r.logger.Error("ask failed", zap.String("ref", msg.Ref()), zap.Error(err))
			return true, err
		}
		return true, r.sender.Reply(ctx, msg.MsgID, answer)
	}

	return false, nil
}

func (r *Responder) render(ctx context.Context, msg *feishu.Message, kind *config.ResponseKind) error {
	switch kind.Type {
	case config.KindNone:
		return nil

	case config.KindText:
		return r.sender.Reply(ctx, msg.MsgID, kind.Content)

	case config.KindRandomText:
		choice := kind.Choices[r.pick(len(kind.Choices))]
		return r.sender.Reply(ctx, msg.MsgID, choice)

	case config.KindImage:
		return r.sender.ReplyImage(ctx, msg.MsgID, kind.Path)

	case config.KindTextAndImage:
		if err := r.sender.Reply(ctx, msg.MsgID, kind.Content); err != nil {
			return err
		}
		return r.sender.ReplyImage(ctx, msg.MsgID, kind.Path)

	default:
		return fmt.Errorf("unknown response type %d", kind.Type)
	}
}

// responseName resolves the diagnostic name of the selected kind. The kind
// pointer identifies the response within its snapshot.
func responseName(cfg *config.Config, kind *config.ResponseKind) string {
	for _, resp := range cfg.Responses {
		if &resp.Kind == kind {
			return resp.Name
		}
	}
	return "unknown"
}

// isSeen reports whether the message was already handled and marks it seen.
// Expired entries are swept on each call to bound the map.
func (r *Responder) isSeen(msgID string) bool {
	r.seenMu.Lock()
	defer r.seenMu.Unlock()

	if _, ok := r.seen[msgID]; ok {
		return true
	}
	r.seen[msgID] = time.Now()

	cutoff := time.Now().Add(-seenTTL)
	for id, ts := range r.seen {
		if ts.Before(cutoff) {
			delete(r.seen, id)
		}
	}
	return false
}
