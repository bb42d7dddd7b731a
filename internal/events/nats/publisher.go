package nats

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"

	"drone-dispatch/internal/events"
)

type Publisher struct {
	nc      *nats.Conn
	subject string
}

func New(url, subject string) (*Publisher, error) {
	nc, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	if subject == "" {
		subject = "dispatch.events"
	}
	return &Publisher{nc: nc, subject: subject}, nil
}

func (p *Publisher) Publish(ctx context.Context, event events.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	// Events fan out on a per-type subject so consumers can subscribe to
	// just the transitions they care about.
	return p.nc.Publish(p.subject+"."+event.Type, data)
}

func (p *Publisher) Close() error {
	if p.nc != nil {
		p.nc.Drain()
	}
	return nil
}

var _ events.Publisher = (*Publisher)(nil)
