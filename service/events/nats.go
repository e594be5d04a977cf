package events

import (
	"context"
	"strings"
	"time"

	"DMChat/tools/errs"

	"github.com/nats-io/nats.go"
)

// NatsPublisher publishes core NATS messages on <prefix>.<type>.
type NatsPublisher struct {
	nc     *nats.Conn
	prefix string
}

func NewNatsPublisher(servers []string, prefix string) (*NatsPublisher, error) {
	nc, err := nats.Connect(strings.Join(servers, ","),
		nats.Name("dmchat"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.ReconnectJitter(100*time.Millisecond, 500*time.Millisecond),
		nats.Timeout(5*time.Second),
	)
	if err != nil {
		return nil, errs.WrapMsg(err, "nats connect failed", "servers", servers)
	}
	return &NatsPublisher{nc: nc, prefix: prefix}, nil
}

func (p *NatsPublisher) Subject(typ string) string {
	return p.prefix + "." + typ
}

func (p *NatsPublisher) Publish(_ context.Context, e Event) error {
	data, err := e.Encode()
	if err != nil {
		return err
	}
	msg := nats.NewMsg(p.Subject(e.Type))
	msg.Data = data
	msg.Header.Set("Nats-Msg-Id", e.ID)
	msg.Header.Set("Content-Type", "application/json")
	if e.Key != "" {
		msg.Header.Set("Key", e.Key)
	}
	if err := p.nc.PublishMsg(msg); err != nil {
		return errs.WrapMsg(err, "nats publish failed", "subject", msg.Subject)
	}
	return nil
}

func (p *NatsPublisher) Close() error {
	if err := p.nc.Drain(); err != nil {
		p.nc.Close()
		return err
	}
	return nil
}
