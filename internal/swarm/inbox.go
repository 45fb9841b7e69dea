package swarm

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/andthezhang/takopi-swarm/internal/config"
	"github.com/andthezhang/takopi-swarm/internal/telegram"
)

// AppendEnvelope appends one record to the inbox queue file, creating
// the file and its parent directories on first use. Records are a
// single JSON document per line, written with one Write call and
// synced before close so a queued trigger survives the producer
// exiting right after.
func AppendEnvelope(path string, e *Envelope) error {
	data, err := EncodeEnvelope(e)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return err
	}
	if _, err := f.Write(append(data, '\n')); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Poller tails the inbox queue file and emits synthetic incoming
// messages for trigger records. It remembers the byte offset already
// consumed and carries partially written trailing lines across poll
// cycles, so producers can append at any time without coordination.
//
// A Poller is single-use and not safe for concurrent callers.
type Poller struct {
	path     string
	interval time.Duration
	log      *slog.Logger

	offset   int64
	fragment []byte
	nextID   int64
}

// NewPoller builds a poller from resolved ingress settings.
func NewPoller(cfg config.SwarmIngress, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{
		path:     cfg.InboxPath,
		interval: cfg.PollInterval,
		log:      logger,
		nextID:   -1,
	}
}

// Run tails the inbox until ctx is cancelled, sending each synthetic
// message to out. A missing inbox file is not an error: the poller
// resets its position and keeps waiting for the file to appear. Other
// read failures stop the loop.
func (p *Poller) Run(ctx context.Context, out chan<- telegram.IncomingMessage) error {
	for {
		chunk, err := p.readChunk()
		if err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return err
			}
			p.offset = 0
			p.fragment = nil
			if err := sleepCtx(ctx, p.interval); err != nil {
				return err
			}
			continue
		}
		if len(chunk) > 0 {
			payload := make([]byte, 0, len(p.fragment)+len(chunk))
			payload = append(payload, p.fragment...)
			payload = append(payload, chunk...)
			lines := bytes.Split(payload, []byte{'\n'})
			p.fragment = append([]byte(nil), lines[len(lines)-1]...)
			for _, line := range lines[:len(lines)-1] {
				raw := bytes.TrimSpace(line)
				if len(raw) == 0 {
					continue
				}
				e, err := DecodeEnvelope(raw)
				if err != nil {
					p.log.Warn("swarm inbox record rejected", "path", p.path, "error", err)
					continue
				}
				msg := p.syntheticMessage(e, p.nextID)
				if msg == nil {
					continue
				}
				select {
				case out <- *msg:
				case <-ctx.Done():
					return ctx.Err()
				}
				p.nextID--
			}
		}
		if err := sleepCtx(ctx, p.interval); err != nil {
			return err
		}
	}
}

// Messages starts Run in a goroutine and returns its output channel.
// The channel closes once the poller stops, normally on ctx
// cancellation.
func (p *Poller) Messages(ctx context.Context) <-chan telegram.IncomingMessage {
	out := make(chan telegram.IncomingMessage)
	go func() {
		defer close(out)
		if err := p.Run(ctx, out); err != nil && ctx.Err() == nil {
			p.log.Warn("swarm inbox poller stopped", "path", p.path, "error", err)
		}
	}()
	return out
}

// readChunk reads everything appended since the previous cycle and
// advances the consumed offset. A file shorter than the offset means
// the queue was replaced; the poller starts over from the beginning.
func (p *Poller) readChunk() ([]byte, error) {
	f, err := os.Open(p.path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	size, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, err
	}
	if size < p.offset {
		p.offset = 0
	}
	if _, err := f.Seek(p.offset, io.SeekStart); err != nil {
		return nil, err
	}
	chunk, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	p.offset += int64(len(chunk))
	return chunk, nil
}

// syntheticMessage turns a trigger envelope into an incoming message.
// Control envelopes and triggers without usable text yield nil. The
// text passes through verbatim; trimming is only a drop criterion.
func (p *Poller) syntheticMessage(e *Envelope, messageID int64) *telegram.IncomingMessage {
	if e.Intent != IntentTrigger {
		return nil
	}
	if strings.TrimSpace(e.Text) == "" {
		p.log.Debug("dropping swarm trigger without text",
			"event_id", e.EventID, "chat_id", e.ChatID, "thread_id", e.ThreadID)
		return nil
	}
	return &telegram.IncomingMessage{
		Transport:     telegram.TransportID,
		ChatID:        e.ChatID,
		MessageID:     messageID,
		Text:          e.Text,
		ThreadID:      e.ThreadID,
		Raw:           map[string]any{"swarm": e},
		IngressSource: SourceID,
		IngressIntent: string(e.Intent),
		OriginAgent:   e.OriginAgent,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
