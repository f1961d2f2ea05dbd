package tts

import (
	"context"
	"errors"
	"maps"
	"net/http"
	"strings"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/tts-bridge/internal/config"
	"github.com/book-expert/tts-bridge/internal/metrics"
	"github.com/book-expert/tts-bridge/internal/tts/ttsutils"
)

// API endpoints and paths.
const (
	apiAudioSpeech = "/v1/audio/speech"
)

// Log messages.
const (
	logEndpointMissing  = "TTS base_url is not configured; speech synthesis is disabled."
	logGeneratedAudio   = "Generated speech file: %s (%s)"
	logEmptyAudio       = "TTS service returned an empty body for %s"
	logWriteFailed      = "Failed to save speech file %s: %v"
	logSynthesisSkipped = "Speech synthesis skipped for %s: %v"
)

var (
	// ErrEndpointMissing indicates that no TTS endpoint is configured.
	ErrEndpointMissing = errors.New("tts endpoint not configured")
	// ErrEmptyAudio indicates that the TTS service answered with no audio.
	ErrEmptyAudio = errors.New("received empty audio data")
)

// Requester sends one JSON request and returns the raw response body.
type Requester interface {
	Request(ctx context.Context, method, endpoint string, body any) ([]byte, error)
}

// SpeechRequest is the JSON body posted to the speech endpoint.
type SpeechRequest struct {
	Model          string         `json:"model"`
	Input          string         `json:"input"`
	Voice          string         `json:"voice"`
	ResponseFormat string         `json:"response_format"`
	Speed          float64        `json:"speed"`
	OtherParams    map[string]any `json:"other_params"`
}

// Synthesizer turns text into an audio file in the scratch directory. It
// holds only configuration captured at construction and is safe for
// concurrent use.
type Synthesizer struct {
	endpoint    string
	params      config.TTSParams
	otherParams map[string]any
	client      Requester
	store       AudioStore
	log         *logger.Logger
}

// NewSynthesizer captures the configuration snapshot. A missing base URL is
// logged once here and disables synthesis for the lifetime of the value.
func NewSynthesizer(cfg *config.Config, client Requester, store AudioStore, log *logger.Logger) *Synthesizer {
	endpoint := ""

	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseSetting.BaseURL), "/")
	if baseURL == "" {
		log.Error(logEndpointMissing)
	} else {
		endpoint = baseURL + apiAudioSpeech
	}

	return &Synthesizer{
		endpoint:    endpoint,
		params:      cfg.TTSParams,
		otherParams: maps.Clone(cfg.OtherParams),
		client:      client,
		store:       store,
		log:         log,
	}
}

// Enabled reports whether an endpoint is configured.
func (s *Synthesizer) Enabled() bool {
	return s.endpoint != ""
}

// FileName derives the artifact name using the configured response format.
func (s *Synthesizer) FileName(scopeID, senderID, speech string) string {
	return GenerateFileName(scopeID, senderID, speech, s.format())
}

// Synthesize performs one request and at most one file write. All failures
// are logged and reported as false.
func (s *Synthesizer) Synthesize(ctx context.Context, speech, fileName string) (string, bool) {
	start := time.Now()

	path, err := s.synthesize(ctx, speech, fileName)
	metrics.RecordSynthesis(synthesisStatus(err), time.Since(start))

	if err != nil {
		if errors.Is(err, ErrEndpointMissing) {
			return "", false
		}

		s.log.Warn(logSynthesisSkipped, fileName, err)

		return "", false
	}

	return path, true
}

func (s *Synthesizer) synthesize(ctx context.Context, speech, fileName string) (string, error) {
	if !s.Enabled() {
		return "", ErrEndpointMissing
	}

	audioData, err := s.client.Request(ctx, http.MethodPost, s.endpoint, s.buildRequest(speech))
	if err != nil {
		return "", err
	}

	if len(audioData) == 0 {
		s.log.Error(logEmptyAudio, fileName)

		return "", ErrEmptyAudio
	}

	path, err := s.store.Save(fileName, audioData)
	if err != nil {
		s.log.Error(logWriteFailed, fileName, err)

		return "", err
	}

	s.log.Info(logGeneratedAudio, path, ttsutils.FormatFileSize(int64(len(audioData))))

	return path, nil
}

func (s *Synthesizer) buildRequest(speech string) SpeechRequest {
	model := s.params.Model
	if model == "" {
		model = config.DefaultModel
	}

	speed := s.params.Speed
	if speed == 0 {
		speed = config.DefaultSpeed
	}

	otherParams := maps.Clone(s.otherParams)
	if otherParams == nil {
		otherParams = map[string]any{}
	}

	return SpeechRequest{
		Model:          model,
		Input:          speech,
		Voice:          s.params.Voice,
		ResponseFormat: s.format(),
		Speed:          speed,
		OtherParams:    otherParams,
	}
}

func (s *Synthesizer) format() string {
	if s.params.ResponseFormat == "" {
		return config.DefaultResponseFormat
	}

	return s.params.ResponseFormat
}

func synthesisStatus(err error) string {
	var upstreamErr *UpstreamError

	switch {
	case err == nil:
		return metrics.StatusSuccess
	case errors.Is(err, ErrEndpointMissing):
		return metrics.StatusDisabled
	case errors.As(err, &upstreamErr):
		return metrics.StatusUpstream
	case errors.Is(err, ErrTransport):
		return metrics.StatusTransport
	case errors.Is(err, ErrRequest):
		return metrics.StatusInvalidBody
	case errors.Is(err, ErrEmptyAudio):
		return metrics.StatusEmptyAudio
	default:
		return metrics.StatusFilesystem
	}
}
