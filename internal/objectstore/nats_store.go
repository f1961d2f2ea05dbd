// Package objectstore mirrors synthesized audio into a NATS JetStream object
// store so hosts that do not share the bridge's filesystem can fetch it.
package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

const (
	contentTypeHeader  = "Content-Type"
	defaultContentType = "application/octet-stream"
)

// ErrKeyEmpty indicates an upload without an object name.
var ErrKeyEmpty = errors.New("object key cannot be empty")

// audioContentTypes maps response_format extensions to MIME types.
var audioContentTypes = map[string]string{
	"wav":  "audio/wav",
	"mp3":  "audio/mpeg",
	"ogg":  "audio/ogg",
	"opus": "audio/opus",
	"flac": "audio/flac",
	"aac":  "audio/aac",
	"pcm":  "audio/L16",
}

// NatsObjectStore implements core.ObjectStore on a JetStream object bucket.
type NatsObjectStore struct {
	bucket string
	store  nats.ObjectStore
}

// New creates the bucket, or binds to it when it already exists. A positive
// ttl makes mirrored audio expire on the same schedule as the local purge.
func New(jetstreamContext nats.JetStreamContext, bucketName string, ttl time.Duration) (*NatsObjectStore, error) {
	store, err := jetstreamContext.CreateObjectStore(bucketConfig(bucketName, ttl))
	if err != nil {
		if !errors.Is(err, jetstream.ErrBucketExists) && !errors.Is(err, nats.ErrStreamNameAlreadyInUse) {
			return nil, fmt.Errorf("failed to create audio bucket '%s': %w", bucketName, err)
		}

		store, err = jetstreamContext.ObjectStore(bucketName)
		if err != nil {
			return nil, fmt.Errorf("failed to bind audio bucket '%s': %w", bucketName, err)
		}
	}

	return &NatsObjectStore{bucket: bucketName, store: store}, nil
}

func bucketConfig(bucketName string, ttl time.Duration) *nats.ObjectStoreConfig {
	return &nats.ObjectStoreConfig{
		Bucket:      bucketName,
		Description: "Mirrored speech audio from tts-bridge.",
		TTL:         max(ttl, 0),
		MaxBytes:    0,
		Storage:     nats.FileStorage,
		Replicas:    1,
		Placement:   nil,
		Metadata:    nil,
		Compression: false,
	}
}

// contentType guesses the MIME type of an audio object from its extension.
func contentType(key string) string {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(key), "."))

	mimeType, ok := audioContentTypes[ext]
	if !ok {
		return defaultContentType
	}

	return mimeType
}

// Upload stores audio under key, replacing an earlier object of that name.
func (n *NatsObjectStore) Upload(ctx context.Context, key string, data []byte) error {
	if key == "" {
		return ErrKeyEmpty
	}

	meta := &nats.ObjectMeta{
		Name:        key,
		Description: "synthesized speech",
		Headers:     nats.Header{contentTypeHeader: []string{contentType(key)}},
		Metadata:    nil,
		Opts:        nil,
	}

	_, err := n.store.Put(meta, bytes.NewReader(data), nats.Context(ctx))
	if err != nil {
		return fmt.Errorf("failed to put audio '%s' to bucket '%s': %w", key, n.bucket, err)
	}

	return nil
}

