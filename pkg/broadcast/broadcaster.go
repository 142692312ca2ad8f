package broadcast

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"liyu1981.xyz/crib-monitor-service/pkg/common"
	"liyu1981.xyz/crib-monitor-service/pkg/iot"
	"liyu1981.xyz/crib-monitor-service/pkg/models"
	"liyu1981.xyz/crib-monitor-service/pkg/observability"
)

var ErrClosed = errors.New("broadcaster closed")

// LatestSource answers the latest stored reading when nothing has been published yet.
type LatestSource interface {
	Latest(ctx context.Context, deviceID string) (*models.Reading, error)
}

type Subscription struct {
	// DeviceID filters delivered readings; empty means every device.
	DeviceID string
	// C is closed when the subscription ends, whether by Unsubscribe, Close or a full buffer.
	C <-chan models.Reading

	ch chan models.Reading
}

// Broadcaster fans readings out to subscribers. Sends never block: a subscriber whose
// buffer is full is dropped so one stalled viewer cannot hold back the rest.
type Broadcaster struct {
	source LatestSource
	buffer int

	mu           sync.Mutex
	subs         map[*Subscription]struct{}
	last         *models.Reading
	lastByDevice map[string]models.Reading
	closed       bool
}

func New(source LatestSource, buffer int) *Broadcaster {
	if buffer < 1 {
		buffer = common.DefaultBroadcastBuffer
	}
	return &Broadcaster{
		source:       source,
		buffer:       buffer,
		subs:         map[*Subscription]struct{}{},
		lastByDevice: map[string]models.Reading{},
	}
}

func logger() *zap.Logger {
	return common.GetLoggerWith(common.LoggerNameBroadcaster)
}

func (b *Broadcaster) Publish(reading models.Reading) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}

	if b.last == nil || !reading.Timestamp.Before(b.last.Timestamp) {
		r := reading
		b.last = &r
	}
	if prev, ok := b.lastByDevice[reading.DeviceID]; !ok || !reading.Timestamp.Before(prev.Timestamp) {
		b.lastByDevice[reading.DeviceID] = reading
	}

	for sub := range b.subs {
		if sub.DeviceID != "" && sub.DeviceID != reading.DeviceID {
			continue
		}
		b.sendLocked(sub, reading)
	}
}

// Subscribe registers a subscriber and queues the current latest reading as its first
// message, ahead of anything published afterwards.
func (b *Broadcaster) Subscribe(ctx context.Context, deviceID string) (*Subscription, error) {
	stored := b.fetchIfUnknown(ctx, deviceID)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}

	ch := make(chan models.Reading, b.buffer)
	sub := &Subscription{DeviceID: deviceID, C: ch, ch: ch}
	b.subs[sub] = struct{}{}
	observability.BroadcastSubscribers.Inc()

	if latest := b.latestLocked(deviceID); latest != nil {
		ch <- *latest
	} else if stored != nil {
		ch <- *stored
	}
	return sub, nil
}

// RequestLatest queues the current latest reading for sub alone.
func (b *Broadcaster) RequestLatest(ctx context.Context, sub *Subscription) error {
	stored := b.fetchIfUnknown(ctx, sub.DeviceID)

	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[sub]; !ok {
		return ErrClosed
	}

	if latest := b.latestLocked(sub.DeviceID); latest != nil {
		b.sendLocked(sub, *latest)
	} else if stored != nil {
		b.sendLocked(sub, *stored)
	}
	return nil
}

// Unsubscribe may be called any number of times.
func (b *Broadcaster) Unsubscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.removeLocked(sub)
}

func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	for sub := range b.subs {
		b.removeLocked(sub)
	}
}

func (b *Broadcaster) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

func (b *Broadcaster) fetchIfUnknown(ctx context.Context, deviceID string) *models.Reading {
	b.mu.Lock()
	known := b.latestLocked(deviceID) != nil
	b.mu.Unlock()
	if known || b.source == nil {
		return nil
	}

	r, err := b.source.Latest(ctx, deviceID)
	if err != nil {
		if !errors.Is(err, iot.ErrNotFound) {
			logger().Warn("Failed to load latest reading", zap.String("device_id", deviceID), zap.Error(err))
		}
		return nil
	}
	return r
}

// latestLocked returns the last published reading still inside the retention window.
func (b *Broadcaster) latestLocked(deviceID string) *models.Reading {
	var latest *models.Reading
	if deviceID == "" {
		latest = b.last
	} else if r, ok := b.lastByDevice[deviceID]; ok {
		latest = &r
	}
	if latest == nil || latest.Timestamp.Before(time.Now().Add(-models.RetentionWindow)) {
		return nil
	}
	return latest
}

func (b *Broadcaster) sendLocked(sub *Subscription, reading models.Reading) {
	select {
	case sub.ch <- reading:
	default:
		logger().Warn("Dropping slow subscriber", zap.String("device_id", sub.DeviceID))
		observability.BroadcastDropped.Inc()
		b.removeLocked(sub)
	}
}

func (b *Broadcaster) removeLocked(sub *Subscription) {
	if _, ok := b.subs[sub]; !ok {
		return
	}
	delete(b.subs, sub)
	close(sub.ch)
	observability.BroadcastSubscribers.Dec()
}
