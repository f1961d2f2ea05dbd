package policy_test

import (
	"context"
	"math"
	"math/rand/v2"
	"strings"
	"sync"
	"testing"

	"github.com/book-expert/logger"
	"github.com/book-expert/tts-bridge/internal/config"
	"github.com/book-expert/tts-bridge/internal/core"
	"github.com/book-expert/tts-bridge/internal/policy"
	"github.com/book-expert/tts-bridge/internal/tts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockSpeaker records synthesis requests.
type mockSpeaker struct {
	mu         sync.Mutex
	shouldFail bool
	texts      []string
	fileNames  []string
}

func (m *mockSpeaker) FileName(scopeID, senderID, speech string) string {
	return tts.GenerateFileName(scopeID, senderID, speech, "wav")
}

func (m *mockSpeaker) Synthesize(_ context.Context, speech, fileName string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.texts = append(m.texts, speech)
	m.fileNames = append(m.fileNames, fileName)

	if m.shouldFail {
		return "", false
	}

	return "/scratch/" + fileName, true
}

func (m *mockSpeaker) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.texts)
}

func newTestLogger(t *testing.T) *logger.Logger {
	t.Helper()

	testLogger, err := logger.New(t.TempDir(), "test-log.log")
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = testLogger.Close()
	})

	return testLogger
}

func always() float64 { return 0 }

func never() float64 { return 0.999999 }

func newHandler(t *testing.T, speaker core.Speaker, mutate func(*config.Config), random func() float64) *policy.Handler {
	t.Helper()

	cfg := config.Default()
	cfg.AutoConfig.SendRecordProbability = 0.5

	if mutate != nil {
		mutate(cfg)
	}

	return policy.NewHandler(cfg, speaker, newTestLogger(t), policy.WithRandom(random))
}

func replyEvent(chain ...core.Segment) *core.ReplyEvent {
	return &core.ReplyEvent{ScopeID: "1001", SenderID: "42", Chain: chain}
}

func TestOnReply_ProbabilityGateSkips(t *testing.T) {
	t.Parallel()

	speaker := &mockSpeaker{}
	handler := newHandler(t, speaker, nil, never)

	event := replyEvent(core.Plain("hello"))

	assert.False(t, handler.OnReply(context.Background(), event))
	assert.Equal(t, core.Chain{core.Plain("hello")}, event.Chain)
	assert.Zero(t, speaker.calls())
}

func TestOnReply_ReplacesChain(t *testing.T) {
	t.Parallel()

	speaker := &mockSpeaker{}
	handler := newHandler(t, speaker, nil, always)

	event := replyEvent(core.Plain("（笑）你好【开心】"))

	require.True(t, handler.OnReply(context.Background(), event))
	require.Len(t, event.Chain, 1)
	assert.Equal(t, core.SegmentAudio, event.Chain[0].Kind)
	assert.Equal(t, "/scratch/1001_42_你好.wav", event.Chain[0].Path)
	assert.Equal(t, []string{"你好"}, speaker.texts)
}

func TestOnReply_AppendMode(t *testing.T) {
	t.Parallel()

	speaker := &mockSpeaker{}
	handler := newHandler(t, speaker, func(cfg *config.Config) {
		cfg.AutoConfig.ReplyMode = config.ReplyModeAppend
	}, always)

	event := replyEvent(core.Plain("(waves) Good morning"))

	require.True(t, handler.OnReply(context.Background(), event))
	require.Len(t, event.Chain, 2)
	assert.Equal(t, core.Plain("(waves) Good morning"), event.Chain[0])
	assert.Equal(t, core.SegmentAudio, event.Chain[1].Kind)
	assert.Equal(t, []string{"Good morning"}, speaker.texts)
}

func TestOnReply_AppendModeFromCompletionOnly(t *testing.T) {
	t.Parallel()

	speaker := &mockSpeaker{}
	handler := newHandler(t, speaker, func(cfg *config.Config) {
		cfg.AutoConfig.ReplyMode = config.ReplyModeAppend
	}, always)

	event := &core.ReplyEvent{ScopeID: "", SenderID: "7", Completion: "Sure thing"}

	require.True(t, handler.OnReply(context.Background(), event))
	require.Len(t, event.Chain, 2)
	assert.Equal(t, core.Plain("Sure thing"), event.Chain[0])
	assert.Equal(t, "/scratch/0_7_Sure thing.wav", event.Chain[1].Path)
}

func TestOnReply_CompletionPreferredOverChain(t *testing.T) {
	t.Parallel()

	speaker := &mockSpeaker{}
	handler := newHandler(t, speaker, nil, always)

	event := replyEvent(core.Plain("decorated: hi!"))
	event.Completion = "hi"

	require.True(t, handler.OnReply(context.Background(), event))
	assert.Equal(t, []string{"hi"}, speaker.texts)
}

func TestOnReply_StripDisabled(t *testing.T) {
	t.Parallel()

	speaker := &mockSpeaker{}
	handler := newHandler(t, speaker, func(cfg *config.Config) {
		cfg.AutoConfig.StripAnnotations = false
	}, always)

	require.True(t, handler.OnReply(context.Background(), replyEvent(core.Plain("（笑）你好"))))
	assert.Equal(t, []string{"（笑）你好"}, speaker.texts)
}

func TestOnReply_RejectsIneligible(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		event *core.ReplyEvent
	}{
		{"empty chain", replyEvent()},
		{"non plain segment", replyEvent(core.Plain("look"), core.Segment{Kind: "image", Path: "/x.png"})},
		{"audio already", replyEvent(core.Audio("/a.wav"))},
		{"only annotations", replyEvent(core.Plain("【思考】（沉默）"))},
		{"whitespace", replyEvent(core.Plain("   "))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			speaker := &mockSpeaker{}
			handler := newHandler(t, speaker, nil, always)

			before := append(core.Chain(nil), tt.event.Chain...)

			assert.False(t, handler.OnReply(context.Background(), tt.event))
			assert.Equal(t, before, tt.event.Chain)
			assert.Zero(t, speaker.calls())
		})
	}
}

func TestOnReply_LengthGate(t *testing.T) {
	t.Parallel()

	speaker := &mockSpeaker{}
	handler := newHandler(t, speaker, func(cfg *config.Config) {
		cfg.AutoConfig.MaxRespTextLen = 5
	}, always)

	// Five CJK runes are within the limit even though they are 15 bytes.
	require.True(t, handler.OnReply(context.Background(), replyEvent(core.Plain("一二三四五"))))

	for _, tooLong := range []string{"一二三四五六", "abcdef", strings.Repeat("x", 500)} {
		event := replyEvent(core.Plain(tooLong))
		assert.False(t, handler.OnReply(context.Background(), event))
		assert.Equal(t, core.Chain{core.Plain(tooLong)}, event.Chain)
	}

	assert.Equal(t, 1, speaker.calls())
}

func TestOnReply_FailureKeepsOriginal(t *testing.T) {
	t.Parallel()

	speaker := &mockSpeaker{shouldFail: true}
	handler := newHandler(t, speaker, nil, always)

	event := replyEvent(core.Plain("hello"), core.Plain(" world"))

	assert.False(t, handler.OnReply(context.Background(), event))
	assert.Equal(t, core.Chain{core.Plain("hello"), core.Plain(" world")}, event.Chain)
	assert.Equal(t, []string{"hello world"}, speaker.texts)
}

func TestOnReply_ProbabilityIsRespected(t *testing.T) {
	t.Parallel()

	for _, probability := range []float64{0, 0.1, 0.3, 0.75, 1} {
		speaker := &mockSpeaker{}
		rng := rand.New(rand.NewPCG(42, uint64(probability*1000)))

		handler := newHandler(t, speaker, func(cfg *config.Config) {
			cfg.AutoConfig.SendRecordProbability = probability
		}, rng.Float64)

		const trials = 4000

		for range trials {
			handler.OnReply(context.Background(), replyEvent(core.Plain("hi")))
		}

		fraction := float64(speaker.calls()) / trials
		assert.LessOrEqual(t, math.Abs(fraction-probability), 0.03, "p=%v got %v", probability, fraction)

		if probability == 0 {
			assert.Zero(t, speaker.calls())
		}

		if probability == 1 {
			assert.Equal(t, trials, speaker.calls())
		}
	}
}

func TestOnSay(t *testing.T) {
	t.Parallel()

	speaker := &mockSpeaker{}
	handler := newHandler(t, speaker, func(cfg *config.Config) {
		cfg.AutoConfig.MaxRespTextLen = 1
		cfg.AutoConfig.SendRecordProbability = 0
	}, never)

	chain := handler.OnSay(context.Background(), &core.CommandEvent{
		ScopeID: "9", SenderID: "1", Argument: "No gates apply here", Admin: true,
	})

	require.Len(t, chain, 1)
	assert.Equal(t, core.SegmentAudio, chain[0].Kind)
	assert.Equal(t, "/scratch/9_1_No gates apply here.wav", chain[0].Path)
}

func TestOnSay_Usage(t *testing.T) {
	t.Parallel()

	speaker := &mockSpeaker{}
	handler := newHandler(t, speaker, nil, always)

	chain := handler.OnSay(context.Background(), &core.CommandEvent{Admin: true})

	assert.Equal(t, core.Chain{core.Plain(policy.MsgUsage)}, chain)
	assert.Zero(t, speaker.calls())
}

func TestOnSay_Failure(t *testing.T) {
	t.Parallel()

	speaker := &mockSpeaker{shouldFail: true}
	handler := newHandler(t, speaker, nil, always)

	chain := handler.OnSay(context.Background(), &core.CommandEvent{Argument: "hi", Admin: true})

	assert.Equal(t, core.Chain{core.Plain(policy.MsgSynthesisFailed)}, chain)
}

func TestOnSay_NonAdmin(t *testing.T) {
	t.Parallel()

	speaker := &mockSpeaker{}
	handler := newHandler(t, speaker, nil, always)

	chain := handler.OnSay(context.Background(), &core.CommandEvent{Argument: "hi", Admin: false})

	assert.Equal(t, core.Chain{core.Plain(policy.MsgPermissionDenied)}, chain)
	assert.Zero(t, speaker.calls())
}
