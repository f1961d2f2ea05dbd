// Package policy decides when replies are turned into speech and builds the
// resulting message chains.
package policy

import (
	"context"
	"math/rand/v2"
	"unicode/utf8"

	"github.com/book-expert/logger"
	"github.com/book-expert/tts-bridge/internal/config"
	"github.com/book-expert/tts-bridge/internal/core"
	"github.com/book-expert/tts-bridge/internal/metrics"
	"github.com/book-expert/tts-bridge/internal/tts/text"
)

// User-facing replies for the speech command.
const (
	MsgUsage            = "Please enter the text to speak after the command."
	MsgSynthesisFailed  = "Speech synthesis failed, please check the service logs."
	MsgPermissionDenied = "This command is restricted to administrators."
)

// Log messages.
const (
	logAutoSpoken    = "Auto speech succeeded, sending voice: %s"
	logAutoFailed    = "Auto speech failed for %s, keeping the original text."
	logCommandFailed = "Speech command failed for %s."
	logCommandDenied = "Speech command from %s in %s rejected: not an administrator."
)

// Handler implements auto-speech-on-reply and the explicit speech command on
// top of a shared Speaker.
type Handler struct {
	speaker      core.Speaker
	probability  float64
	maxTextLen   int
	strip        bool
	replyMode    string
	preprocessor *text.Preprocessor
	random       func() float64
	log          *logger.Logger
}

// Option customizes a Handler.
type Option func(*Handler)

// WithRandom replaces the uniform [0,1) source used by the probability gate.
func WithRandom(random func() float64) Option {
	return func(h *Handler) {
		h.random = random
	}
}

// NewHandler creates a Handler from the auto_config section.
func NewHandler(cfg *config.Config, speaker core.Speaker, log *logger.Logger, opts ...Option) *Handler {
	handler := &Handler{
		speaker:      speaker,
		probability:  cfg.AutoConfig.SendRecordProbability,
		maxTextLen:   cfg.AutoConfig.MaxRespTextLen,
		strip:        cfg.AutoConfig.StripAnnotations,
		replyMode:    cfg.AutoConfig.ReplyMode,
		preprocessor: text.NewPreprocessor(),
		random:       rand.Float64,
		log:          log,
	}

	for _, opt := range opts {
		opt(handler)
	}

	return handler
}

// OnReply may swap the reply for synthesized speech. It reports whether the
// chain was modified; on any failure the chain is left exactly as it was.
func (h *Handler) OnReply(ctx context.Context, event *core.ReplyEvent) bool {
	if h.random() >= h.probability {
		metrics.RecordAutoSpeech(metrics.DecisionSkipped)

		return false
	}

	source, eligible := h.replyText(event)
	if !eligible {
		metrics.RecordAutoSpeech(metrics.DecisionIneligible)

		return false
	}

	speech := source
	if h.strip {
		speech = h.preprocessor.StripAnnotations(speech)
	}

	if speech == "" {
		metrics.RecordAutoSpeech(metrics.DecisionEmpty)

		return false
	}

	if utf8.RuneCountInString(speech) > h.maxTextLen {
		metrics.RecordAutoSpeech(metrics.DecisionTooLong)

		return false
	}

	fileName := h.speaker.FileName(event.ScopeID, event.SenderID, speech)

	path, ok := h.speaker.Synthesize(ctx, speech, fileName)
	if !ok {
		h.log.Error(logAutoFailed, fileName)
		metrics.RecordAutoSpeech(metrics.DecisionFailed)

		return false
	}

	h.log.Info(logAutoSpoken, fileName)
	metrics.RecordAutoSpeech(metrics.DecisionSpoken)

	if h.replyMode == config.ReplyModeAppend {
		if len(event.Chain) == 0 {
			event.Chain = core.Chain{core.Plain(source)}
		}

		event.Chain = append(event.Chain, core.Audio(path))

		return true
	}

	event.Chain = core.Chain{core.Audio(path)}

	return true
}

// replyText picks the text to speak. The raw LLM completion wins when the
// host supplied one; otherwise the chain is rendered. A chain holding
// anything but plain text is never touched.
func (h *Handler) replyText(event *core.ReplyEvent) (string, bool) {
	chainText, plainOnly := event.Chain.PlainText()
	if len(event.Chain) > 0 && !plainOnly {
		return "", false
	}

	if event.Completion != "" {
		return event.Completion, true
	}

	return chainText, plainOnly
}

// OnSay synthesizes the command argument without any gate and returns the
// chain to send back.
func (h *Handler) OnSay(ctx context.Context, event *core.CommandEvent) core.Chain {
	if !event.Admin {
		h.log.Warn(logCommandDenied, event.SenderID, event.ScopeID)
		metrics.RecordCommand(metrics.CommandDenied)

		return core.Chain{core.Plain(MsgPermissionDenied)}
	}

	if event.Argument == "" {
		metrics.RecordCommand(metrics.CommandUsage)

		return core.Chain{core.Plain(MsgUsage)}
	}

	fileName := h.speaker.FileName(event.ScopeID, event.SenderID, event.Argument)

	path, ok := h.speaker.Synthesize(ctx, event.Argument, fileName)
	if !ok {
		h.log.Error(logCommandFailed, fileName)
		metrics.RecordCommand(metrics.CommandFailed)

		return core.Chain{core.Plain(MsgSynthesisFailed)}
	}

	metrics.RecordCommand(metrics.CommandSpoken)

	return core.Chain{core.Audio(path)}
}
