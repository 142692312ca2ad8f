package viewer

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"liyu1981.xyz/crib-monitor-service/pkg/models"
)

type ConnState int

const (
	StateIdle ConnState = iota
	StateConnecting
	StateConnected
	StateDisconnected
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	default:
		return "idle"
	}
}

// Reconnect policy for the live stream.
const (
	DefaultInitialInterval = time.Second
	DefaultMaxInterval     = 5 * time.Second
)

// StateMsg reports a connection state change; Err is the cause of a disconnect.
type StateMsg struct {
	State   ConnState
	Err     error
	RetryIn time.Duration
}

type ReadingMsg struct {
	Reading models.Reading
}

type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Stream keeps a WebSocket subscription open, reconnecting with exponential backoff
// and no attempt limit.
type Stream struct {
	URL             string
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Dialer          *websocket.Dialer

	requests chan struct{}
}

func NewStream(url string) *Stream {
	return &Stream{
		URL:             url,
		InitialInterval: DefaultInitialInterval,
		MaxInterval:     DefaultMaxInterval,
		Dialer:          websocket.DefaultDialer,
		requests:        make(chan struct{}, 1),
	}
}

func (s *Stream) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.InitialInterval
	b.MaxInterval = s.MaxInterval
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// RequestLatest asks the server to resend the latest reading. Requests made while
// disconnected are coalesced into one.
func (s *Stream) RequestLatest() {
	select {
	case s.requests <- struct{}{}:
	default:
	}
}

// Run delivers StateMsg and ReadingMsg values to out until ctx is done.
func (s *Stream) Run(ctx context.Context, out chan<- any) {
	b := s.newBackOff()
	for {
		emit(ctx, out, StateMsg{State: StateConnecting})
		conn, _, err := s.Dialer.DialContext(ctx, s.URL, nil)
		if err == nil {
			b.Reset()
			emit(ctx, out, StateMsg{State: StateConnected})
			err = s.serve(ctx, conn, out)
		}
		if ctx.Err() != nil {
			return
		}

		wait := b.NextBackOff()
		emit(ctx, out, StateMsg{State: StateDisconnected, Err: err, RetryIn: wait})
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

func (s *Stream) serve(ctx context.Context, conn *websocket.Conn, out chan<- any) error {
	defer conn.Close()

	done := make(chan struct{})
	defer close(done)
	go func() {
		for {
			select {
			case <-ctx.Done():
				_ = conn.Close()
				return
			case <-done:
				return
			case <-s.requests:
				_ = conn.WriteJSON(frame{Event: "requestLatestData"})
			}
		}
	}()

	for {
		var f frame
		if err := conn.ReadJSON(&f); err != nil {
			return err
		}
		if f.Event != "sensorData" || len(f.Data) == 0 {
			continue
		}
		var reading models.Reading
		if err := json.Unmarshal(f.Data, &reading); err != nil {
			continue
		}
		emit(ctx, out, ReadingMsg{Reading: reading})
	}
}

func emit(ctx context.Context, out chan<- any, msg any) {
	select {
	case out <- msg:
	case <-ctx.Done():
	}
}
