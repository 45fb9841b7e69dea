// Package swarm implements the agent-to-agent ingress pipeline: a
// strict JSON envelope codec, an append-only inbox queue file, and a
// poller that tails the queue and turns trigger records into synthetic
// incoming messages for the bridge.
package swarm

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
)

// SourceID marks messages manufactured by this pipeline.
const SourceID = "swarm"

// EnvelopeVersion is the current queue record schema revision.
const EnvelopeVersion = 1

// Intent selects the plane a queued envelope belongs to. Control
// envelopes are consumed out of band; only triggers become messages.
type Intent string

const (
	IntentControl Intent = "control"
	IntentTrigger Intent = "trigger"
)

func (i Intent) valid() bool {
	return i == IntentControl || i == IntentTrigger
}

// Envelope is one record of the swarm inbox queue file.
type Envelope struct {
	Version     int    `json:"version"`
	EventID     string `json:"event_id"`
	Intent      Intent `json:"intent"`
	ChatID      int64  `json:"chat_id"`
	ThreadID    *int64 `json:"thread_id,omitempty"`
	Text        string `json:"text"`
	OriginAgent string `json:"origin_agent,omitempty"`
	CreatedAt   string `json:"created_at,omitempty"`
}

// NewEnvelope builds an envelope with a fresh event id and a UTC
// creation timestamp. It fails only on an intent outside the known set.
func NewEnvelope(intent Intent, chatID int64, threadID *int64, text, originAgent string) (*Envelope, error) {
	if !intent.valid() {
		return nil, fmt.Errorf("invalid swarm intent %q", intent)
	}
	id := uuid.New()
	return &Envelope{
		Version:     EnvelopeVersion,
		EventID:     hex.EncodeToString(id[:]),
		Intent:      intent,
		ChatID:      chatID,
		ThreadID:    threadID,
		Text:        text,
		OriginAgent: originAgent,
		CreatedAt:   time.Now().UTC().Format(time.RFC3339),
	}, nil
}

// EncodeEnvelope renders a single queue record without the trailing
// newline. Text passes through unescaped so envelopes stay readable in
// the queue file.
func EncodeEnvelope(e *Envelope) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(e); err != nil {
		return nil, fmt.Errorf("encode envelope: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// envelopeWire distinguishes absent fields from zero values during
// decoding so required fields can be enforced.
type envelopeWire struct {
	Version     *int    `json:"version"`
	EventID     *string `json:"event_id"`
	Intent      *string `json:"intent"`
	ChatID      *int64  `json:"chat_id"`
	ThreadID    *int64  `json:"thread_id"`
	Text        *string `json:"text"`
	OriginAgent *string `json:"origin_agent"`
	CreatedAt   *string `json:"created_at"`
}

// DecodeEnvelope parses one queue record strictly: unknown fields,
// missing required fields, and trailing bytes are all rejected rather
// than ignored, so producer drift surfaces as decode failures instead
// of silently mangled triggers.
func DecodeEnvelope(data []byte) (*Envelope, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	var w envelopeWire
	if err := dec.Decode(&w); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	if err := dec.Decode(new(json.RawMessage)); !errors.Is(err, io.EOF) {
		return nil, errors.New("decode envelope: trailing data after record")
	}
	switch {
	case w.EventID == nil:
		return nil, errors.New("decode envelope: missing event_id")
	case w.Intent == nil:
		return nil, errors.New("decode envelope: missing intent")
	case w.ChatID == nil:
		return nil, errors.New("decode envelope: missing chat_id")
	case w.Text == nil:
		return nil, errors.New("decode envelope: missing text")
	}
	intent := Intent(*w.Intent)
	if !intent.valid() {
		return nil, fmt.Errorf("decode envelope: invalid intent %q", *w.Intent)
	}
	e := &Envelope{
		Version:  EnvelopeVersion,
		EventID:  *w.EventID,
		Intent:   intent,
		ChatID:   *w.ChatID,
		ThreadID: w.ThreadID,
		Text:     *w.Text,
	}
	if w.Version != nil {
		e.Version = *w.Version
	}
	if w.OriginAgent != nil {
		e.OriginAgent = *w.OriginAgent
	}
	if w.CreatedAt != nil {
		e.CreatedAt = *w.CreatedAt
	}
	return e, nil
}
