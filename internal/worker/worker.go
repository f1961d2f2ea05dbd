// Package worker provides a NATS worker that delivers host events to the
// speech policy and replies with the resulting message chains.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/book-expert/events"
	"github.com/book-expert/logger"
	"github.com/book-expert/tts-bridge/internal/core"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"golang.org/x/sync/errgroup"
)

const (
	handleMessageTimeout = 2 * time.Minute
	// maxInFlightEvents bounds concurrently handled events across both
	// subjects. Delivery blocks once the bound is reached.
	maxInFlightEvents = 64
	drainPollInterval = 10 * time.Millisecond
	drainTimeout      = 30 * time.Second
)

var (
	// ErrReplySubjectEmpty indicates that the reply subject is empty.
	ErrReplySubjectEmpty = errors.New("reply subject cannot be empty")
	// ErrCommandSubjectEmpty indicates that the command subject is empty.
	ErrCommandSubjectEmpty = errors.New("command subject cannot be empty")
	// ErrHandlerNil indicates that no event handler was supplied.
	ErrHandlerNil = errors.New("event handler cannot be nil")
)

// NatsWorker listens for host events on two NATS subjects and answers each
// request with a core.ChainResult.
type NatsWorker struct {
	natsConnection *nats.Conn
	replySubject   string
	commandSubject string
	handler        core.EventHandler
	mirror         core.ObjectStore
	log            *logger.Logger
}

// NewNatsWorker creates a new instance of a NATS worker. mirror may be nil,
// in which case audio is only referenced by local path.
func NewNatsWorker(
	natsConnection *nats.Conn,
	replySubject string,
	commandSubject string,
	handler core.EventHandler,
	mirror core.ObjectStore,
	log *logger.Logger,
) (*NatsWorker, error) {
	if replySubject == "" {
		return nil, ErrReplySubjectEmpty
	}

	if commandSubject == "" {
		return nil, ErrCommandSubjectEmpty
	}

	if handler == nil {
		return nil, ErrHandlerNil
	}

	return &NatsWorker{
		natsConnection: natsConnection,
		replySubject:   replySubject,
		commandSubject: commandSubject,
		handler:        handler,
		mirror:         mirror,
		log:            log,
	}, nil
}

// Run subscribes to both subjects and blocks until ctx is cancelled. Each
// event is handled on its own goroutine, so a slow synthesis only delays the
// event that started it. In-flight events finish before Run returns.
func (w *NatsWorker) Run(ctx context.Context) error {
	var inFlight errgroup.Group

	inFlight.SetLimit(maxInFlightEvents)

	dispatch := func(handle func(context.Context, *nats.Msg)) nats.MsgHandler {
		return func(msg *nats.Msg) {
			inFlight.Go(func() error {
				handle(ctx, msg)

				return nil
			})
		}
	}

	replySub, err := w.natsConnection.Subscribe(w.replySubject, dispatch(w.handleReply))
	if err != nil {
		return fmt.Errorf("failed to subscribe to subject %s: %w", w.replySubject, err)
	}

	commandSub, err := w.natsConnection.Subscribe(w.commandSubject, dispatch(w.handleCommand))
	if err != nil {
		_ = replySub.Unsubscribe()

		return fmt.Errorf("failed to subscribe to subject %s: %w", w.commandSubject, err)
	}

	<-ctx.Done()

	replyDrainErr := replySub.Drain()
	commandDrainErr := commandSub.Drain()

	drainErr := errors.Join(replyDrainErr, commandDrainErr)
	if drainErr == nil {
		waitDrained(replySub, commandSub)
	}

	_ = inFlight.Wait()

	if drainErr != nil {
		return fmt.Errorf("failed to drain subscription: %w", drainErr)
	}

	return nil
}

func (w *NatsWorker) handleReply(runCtx context.Context, msg *nats.Msg) {
	ctx, cancel := context.WithTimeout(runCtx, handleMessageTimeout)
	defer cancel()

	var event core.ReplyEvent

	err := json.Unmarshal(msg.Data, &event)
	if err != nil {
		w.log.Error("Failed to parse reply event: %v", err)
		w.respond(msg, &core.ChainResult{Header: newHeader(events.EventHeader{}), Chain: nil, Modified: false})

		return
	}

	modified := w.handler.OnReply(ctx, &event)
	if modified {
		w.mirrorAudio(ctx, event.Chain)
	}

	w.respond(msg, &core.ChainResult{
		Header:   newHeader(event.Header),
		Chain:    event.Chain,
		Modified: modified,
	})
}

func (w *NatsWorker) handleCommand(runCtx context.Context, msg *nats.Msg) {
	ctx, cancel := context.WithTimeout(runCtx, handleMessageTimeout)
	defer cancel()

	var event core.CommandEvent

	err := json.Unmarshal(msg.Data, &event)
	if err != nil {
		w.log.Error("Failed to parse command event: %v", err)
		w.respond(msg, &core.ChainResult{Header: newHeader(events.EventHeader{}), Chain: nil, Modified: false})

		return
	}

	chain := w.handler.OnSay(ctx, &event)
	w.mirrorAudio(ctx, chain)

	w.respond(msg, &core.ChainResult{
		Header:   newHeader(event.Header),
		Chain:    chain,
		Modified: true,
	})
}

// mirrorAudio uploads audio segments to the object store and records the
// object key on the segment. Upload failures leave the local path usable.
func (w *NatsWorker) mirrorAudio(ctx context.Context, chain core.Chain) {
	if w.mirror == nil {
		return
	}

	for i := range chain {
		if chain[i].Kind != core.SegmentAudio || chain[i].Path == "" {
			continue
		}

		key := filepath.Base(chain[i].Path)

		audioData, err := os.ReadFile(chain[i].Path)
		if err != nil {
			w.log.Warn("Failed to read audio file '%s' for mirroring: %v", chain[i].Path, err)

			continue
		}

		err = w.mirror.Upload(ctx, key, audioData)
		if err != nil {
			w.log.Warn("Failed to mirror audio '%s': %v", key, err)

			continue
		}

		chain[i].AudioKey = key
	}
}

// respond marshals and publishes the result when the host asked for a reply.
func (w *NatsWorker) respond(msg *nats.Msg, result *core.ChainResult) {
	if msg.Reply == "" {
		return
	}

	replyData, err := json.Marshal(result)
	if err != nil {
		w.log.Error("Failed to marshal chain result: %v", err)

		return
	}

	err = msg.Respond(replyData)
	if err != nil {
		w.log.Error("Failed to publish chain result for workflow %s: %v", result.Header.WorkflowID, err)
	}
}

// newHeader keeps the workflow identity of the request and stamps a new event.
func newHeader(request events.EventHeader) events.EventHeader {
	header := request
	header.EventID = uuid.NewString()
	header.Timestamp = time.Now()

	return header
}

// waitDrained blocks until the subscriptions have delivered their pending
// messages and closed, or drainTimeout passes.
func waitDrained(subs ...*nats.Subscription) {
	deadline := time.Now().Add(drainTimeout)

	for _, sub := range subs {
		for sub.IsValid() && time.Now().Before(deadline) {
			time.Sleep(drainPollInterval)
		}
	}
}
