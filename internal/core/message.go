package core

import (
	"strings"

	"github.com/book-expert/events"
)

// SegmentKind tags the variant held by a Segment.
type SegmentKind string

const (
	// SegmentPlain is a plain-text segment.
	SegmentPlain SegmentKind = "plain"
	// SegmentAudio is a voice attachment backed by a local file.
	SegmentAudio SegmentKind = "audio"
)

// Segment is one element of a reply chain. Only plain text and audio are
// constructed by the bridge; any other kind coming from the host is carried
// through untouched.
type Segment struct {
	Kind     SegmentKind `json:"kind"`
	Text     string      `json:"text,omitempty"`
	Path     string      `json:"path,omitempty"`
	AudioKey string      `json:"audio_key,omitempty"`
}

// Plain builds a plain-text segment.
func Plain(text string) Segment {
	return Segment{Kind: SegmentPlain, Text: text, Path: "", AudioKey: ""}
}

// Audio builds a voice segment from a local file path.
func Audio(path string) Segment {
	return Segment{Kind: SegmentAudio, Text: "", Path: path, AudioKey: ""}
}

// Chain is the ordered list of segments making up one outgoing message.
type Chain []Segment

// PlainText concatenates the chain's text segments. The second result is
// false when the chain is empty or contains anything other than plain text.
func (c Chain) PlainText() (string, bool) {
	if len(c) == 0 {
		return "", false
	}

	var builder strings.Builder

	for _, seg := range c {
		if seg.Kind != SegmentPlain {
			return "", false
		}

		builder.WriteString(seg.Text)
	}

	return builder.String(), true
}

// ReplyEvent is published by the host after the bot produced a reply and
// before it is sent. Completion, when set, is the raw LLM response text.
type ReplyEvent struct {
	Header     events.EventHeader `json:"header"`
	ScopeID    string             `json:"scope_id"`
	SenderID   string             `json:"sender_id"`
	Completion string             `json:"completion,omitempty"`
	Chain      Chain              `json:"chain"`
}

// CommandEvent is published by the host for the explicit speech command.
// Admin reports the outcome of the host's permission check.
type CommandEvent struct {
	Header   events.EventHeader `json:"header"`
	ScopeID  string             `json:"scope_id"`
	SenderID string             `json:"sender_id"`
	Argument string             `json:"argument"`
	Admin    bool               `json:"admin"`
}

// ChainResult is the bridge's answer to a host event.
type ChainResult struct {
	Header   events.EventHeader `json:"header"`
	Chain    Chain              `json:"chain"`
	Modified bool               `json:"modified"`
}
