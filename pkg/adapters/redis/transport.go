package redis

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/aretw0/strata/pkg/domain"
	backend "github.com/redis/go-redis/v9"
)

// DeliverFunc hands a received signal to the local router.
type DeliverFunc func(ctx context.Context, sig *domain.Signal) error

// Transport implements ports.Transport over Redis pub/sub.
// A remote handle names the channel of the process hosting the neuron.
type Transport struct {
	client *backend.Client
	prefix string
	logger *slog.Logger
}

// TransportOption configures a Transport.
type TransportOption func(*Transport)

// WithTransportPrefix sets the channel prefix.
func WithTransportPrefix(prefix string) TransportOption {
	return func(t *Transport) { t.prefix = prefix }
}

// WithTransportLogger sets the logger.
func WithTransportLogger(logger *slog.Logger) TransportOption {
	return func(t *Transport) { t.logger = logger }
}

// NewTransport creates a pub/sub transport.
func NewTransport(client *backend.Client, opts ...TransportOption) *Transport {
	t := &Transport{
		client: client,
		prefix: DefaultPrefix,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Channel returns the pub/sub channel for a remote handle.
func (t *Transport) Channel(remote string) string {
	return t.prefix + "neuron:" + remote
}

// Send publishes the wire encoded signal. Pub/sub is fire and forget: a
// handle with no subscriber is reported as domain.ErrRouteUnavailable.
func (t *Transport) Send(ctx context.Context, remote string, sig *domain.Signal) error {
	data, err := domain.EncodeSignal(sig)
	if err != nil {
		return err
	}
	receivers, err := t.client.Publish(ctx, t.Channel(remote), data).Result()
	if err != nil {
		return fmt.Errorf("%w: publish to %s: %v", domain.ErrRouteUnavailable, remote, err)
	}
	if receivers == 0 {
		return fmt.Errorf("%w: no subscriber for %s", domain.ErrRouteUnavailable, remote)
	}
	return nil
}

// Subscribe listens on the channels of the given handles and delivers every
// decoded signal until ctx is cancelled. Undecodable messages are logged and skipped.
func (t *Transport) Subscribe(ctx context.Context, remotes []string, deliver DeliverFunc) error {
	channels := make([]string, len(remotes))
	for i, r := range remotes {
		channels[i] = t.Channel(r)
	}

	sub := t.client.Subscribe(ctx, channels...)
	defer sub.Close()

	// Wait for the subscription to be confirmed so publishers see us.
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			sig, err := domain.DecodeSignal([]byte(msg.Payload))
			if err != nil {
				t.logger.Warn("Dropping undecodable signal", "channel", msg.Channel, "err", err)
				continue
			}
			if err := deliver(ctx, sig); err != nil {
				t.logger.Warn("Delivery rejected", "channel", msg.Channel, "signal_id", sig.ID(), "err", err)
			}
		}
	}
}
