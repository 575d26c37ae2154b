package tui

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/mattjoyce/jarscout/internal/events"
)

// ErrStreamClosed is returned by SSESource when the server ends the stream.
var ErrStreamClosed = errors.New("event stream closed")

// Source feeds events with an ID greater than since into ch until ctx is
// done or the stream breaks.
type Source interface {
	Stream(ctx context.Context, since int64, ch chan<- events.Event) error
}

// Health is the subset of GET /healthz the monitor shows.
type Health struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	Subscribers   int    `json:"event_subscribers"`
}

// HealthChecker is implemented by sources that can report server health.
type HealthChecker interface {
	Health(ctx context.Context) (Health, error)
}

// HubSource reads from an in-process hub.
type HubSource struct {
	Hub *events.Hub
}

func (s HubSource) Stream(ctx context.Context, since int64, ch chan<- events.Event) error {
	sub, cancel := s.Hub.Subscribe()
	defer cancel()

	lastID := since
	for _, ev := range s.Hub.SnapshotSince(since) {
		if !send(ctx, ch, ev) {
			return nil
		}
		lastID = ev.ID
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-sub:
			if !ok {
				return nil
			}
			if ev.ID <= lastID {
				continue
			}
			lastID = ev.ID
			if !send(ctx, ch, ev) {
				return nil
			}
		}
	}
}

// SSESource reads the /events stream of a jarscout server.
type SSESource struct {
	URL    string
	APIKey string
	Client *http.Client
}

func (s SSESource) client() *http.Client {
	if s.Client != nil {
		return s.Client
	}
	return http.DefaultClient
}

func (s SSESource) request(ctx context.Context, path string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(s.URL, "/")+path, nil)
	if err != nil {
		return nil, err
	}
	if s.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.APIKey)
	}
	return req, nil
}

func (s SSESource) Stream(ctx context.Context, since int64, ch chan<- events.Event) error {
	req, err := s.request(ctx, "/events")
	if err != nil {
		return err
	}
	if since > 0 {
		req.Header.Set("Last-Event-ID", strconv.FormatInt(since, 10))
	}

	resp, err := s.client().Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("connect to %s: %w", req.URL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("connect to %s: %s", req.URL, resp.Status)
	}

	err = readSSE(resp.Body, func(ev events.Event) bool { return send(ctx, ch, ev) })
	if ctx.Err() != nil {
		return nil
	}
	if err != nil {
		return err
	}
	return ErrStreamClosed
}

func (s SSESource) Health(ctx context.Context) (Health, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	req, err := s.request(ctx, "/healthz")
	if err != nil {
		return Health{}, err
	}
	resp, err := s.client().Do(req)
	if err != nil {
		return Health{}, err
	}
	defer resp.Body.Close()

	var h Health
	if err := json.NewDecoder(resp.Body).Decode(&h); err != nil {
		return Health{}, fmt.Errorf("decode health: %w", err)
	}
	return h, nil
}

// readSSE parses SSE frames and hands each complete event to emit until
// emit returns false or the body ends.
func readSSE(body io.Reader, emit func(events.Event) bool) error {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var (
		current events.Event
		data    []string
	)
	for scanner.Scan() {
		line := scanner.Text()

		if line == "" {
			if len(data) > 0 {
				current.Data = json.RawMessage(strings.Join(data, "\n"))
				current.At = time.Now().UTC()
				if !emit(current) {
					return nil
				}
			}
			current, data = events.Event{}, nil
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "id":
			if id, err := strconv.ParseInt(value, 10, 64); err == nil {
				current.ID = id
			}
		case "event":
			current.Type = value
		case "data":
			data = append(data, value)
		}
	}
	return scanner.Err()
}

func send(ctx context.Context, ch chan<- events.Event, ev events.Event) bool {
	select {
	case ch <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
