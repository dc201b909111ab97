package events

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

type Kind string

const (
	KindCreated   = Kind("created")
	KindConfirmed = Kind("confirmed")
	KindRetracted = Kind("retracted")
)

// Event is a timeline change published for downstream notifiers.
type Event struct {
	Kind      Kind      `json:"kind"`
	ItemID    uint      `json:"item_id"`
	TxRef     string    `json:"tx_ref,omitempty"`
	Author    string    `json:"author"`
	Community string    `json:"community"`
	Variant   string    `json:"variant"`
	Reason    string    `json:"reason,omitempty"`
	At        time.Time `json:"at"`
}

// Values flattens the event into stream fields.
func (e Event) Values() map[string]any {
	out := map[string]any{
		"kind":      string(e.Kind),
		"item_id":   strconv.FormatUint(uint64(e.ItemID), 10),
		"author":    e.Author,
		"community": e.Community,
		"variant":   e.Variant,
		"at":        strconv.FormatInt(e.At.Unix(), 10),
	}
	if len(e.TxRef) > 0 {
		out["tx_ref"] = e.TxRef
	}
	if len(e.Reason) > 0 {
		out["reason"] = e.Reason
	}
	return out
}

type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

type Nop struct{}

func (Nop) Publish(context.Context, Event) error {
	return nil
}

// Fanout publishes every event to all of its publishers.
type Fanout []Publisher

func (f Fanout) Publish(ctx context.Context, event Event) error {
	var errs []error
	for _, publisher := range f {
		if err := publisher.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

const DefaultStream = "chronicle.timeline"

// StreamPublisher appends events to a capped redis stream.
type StreamPublisher struct {
	client *redis.Client
	stream string
	maxLen int64
}

func NewStreamPublisher(url string, stream string, maxLen int64) (*StreamPublisher, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	if len(stream) == 0 {
		stream = DefaultStream
	}
	return &StreamPublisher{
		client: redis.NewClient(opt),
		stream: stream,
		maxLen: maxLen,
	}, nil
}

func (p *StreamPublisher) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

func (p *StreamPublisher) Publish(ctx context.Context, event Event) error {
	args := &redis.XAddArgs{
		Stream: p.stream,
		Values: event.Values(),
	}
	if p.maxLen > 0 {
		args.MaxLen = p.maxLen
		args.Approx = true
	}
	return p.client.XAdd(ctx, args).Err()
}

func (p *StreamPublisher) Close() error {
	return p.client.Close()
}
