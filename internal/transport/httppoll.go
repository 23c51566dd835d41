package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"
)

// Poller pulls inbound events from a chat gateway over HTTP
// (GET {base}/events?offset=N returning a JSON array). The pull and push
// delivery modes are interchangeable from the engine's perspective.
type Poller struct {
	base     string
	client   *http.Client
	interval time.Duration
	log      *zap.Logger

	offset int64
}

func NewPoller(base string, interval time.Duration, log *zap.Logger) *Poller {
	return &Poller{
		base:     base,
		client:   &http.Client{Timeout: 30 * time.Second},
		interval: interval,
		log:      log,
	}
}

type polledEvent struct {
	Offset int64 `json:"offset"`
	Event
}

// Run polls until the context is cancelled. Fetch failures back off for one
// interval and are logged, never fatal.
func (p *Poller) Run(ctx context.Context, h Handler) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		events, err := p.fetch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.log.Warn("poll failed", zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(p.interval):
			}
			continue
		}

		for _, pe := range events {
			if pe.Offset >= p.offset {
				p.offset = pe.Offset + 1
			}
			if pe.ChatID == "" {
				continue
			}
			h(ctx, pe.Event)
		}

		if len(events) == 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(p.interval):
			}
		}
	}
}

func (p *Poller) fetch(ctx context.Context) ([]polledEvent, error) {
	u := fmt.Sprintf("%s/events?offset=%s", p.base, url.QueryEscape(strconv.FormatInt(p.offset, 10)))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("gateway returned %d", resp.StatusCode)
	}
	var events []polledEvent
	if err := json.NewDecoder(resp.Body).Decode(&events); err != nil {
		return nil, fmt.Errorf("decode events: %w", err)
	}
	return events, nil
}

// HTTPSender posts outbound messages to the chat gateway.
type HTTPSender struct {
	base   string
	client *http.Client
}

func NewHTTPSender(base string) *HTTPSender {
	return &HTTPSender{base: base, client: &http.Client{Timeout: 10 * time.Second}}
}

func (s *HTTPSender) Send(ctx context.Context, msg Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal outbound message: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.base+"/send", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("gateway returned %d", resp.StatusCode)
	}
	return nil
}

var _ Sender = (*HTTPSender)(nil)
