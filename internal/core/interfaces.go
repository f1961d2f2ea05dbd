// Package core defines the core types and interfaces shared by the TTS bridge.
package core

import "context"

// ObjectStore receives copies of produced audio for hosts that cannot read
// the scratch directory.
type ObjectStore interface {
	Upload(ctx context.Context, key string, data []byte) error
}

// Speaker turns text into an audio file on local scratch storage.
// A false result means no audio was produced; the reason has already been logged.
type Speaker interface {
	Synthesize(ctx context.Context, text, fileName string) (string, bool)
	FileName(scopeID, senderID, text string) string
}

// EventHandler reacts to host events. OnReply may rewrite event.Chain and
// reports whether it did.
type EventHandler interface {
	OnReply(ctx context.Context, event *ReplyEvent) bool
	OnSay(ctx context.Context, event *CommandEvent) Chain
}
