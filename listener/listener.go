package listener

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/Ethernal-Tech/chronicle/actor"
	"github.com/Ethernal-Tech/chronicle/ledger"
	"github.com/Ethernal-Tech/chronicle/upstream"
	"github.com/hashicorp/go-hclog"
)

// ErrMissingBroker is returned when a record could not be forwarded because the broker is gone.
var ErrMissingBroker = errors.New("missing broker")

type (
	streamEnded  struct{}
	streamFailed struct {
		err error
	}
)

// Listener streams records from the upstream node and forwards them to the broker.
type Listener struct {
	client upstream.Client
	config upstream.Config
	broker actor.Sender

	forwarded uint64
}

var _ actor.Actor = (*Listener)(nil)

func New(client upstream.Client, config upstream.Config, broker actor.Sender) *Listener {
	return &Listener{
		client: client,
		config: config,
		broker: broker,
	}
}

func (l *Listener) Name() string {
	return "listener"
}

// Config the listener was started with.
func (l *Listener) Config() upstream.Config {
	return l.config
}

// Forwarded returns the number of records handed to the broker.
func (l *Listener) Forwarded() uint64 {
	return l.forwarded
}

func (l *Listener) RegisterHandlers(h *actor.Handlers) {
	actor.On(h, func(cx *actor.Context, block *ledger.BlockRecord) error {
		return l.forward(cx, block)
	})
	actor.On(h, func(cx *actor.Context, milestone *ledger.MilestoneRecord) error {
		return l.forward(cx, milestone)
	})
	actor.On(h, l.handleEnded)
	actor.On(h, l.handleFailed)
}

func (l *Listener) Init(cx *actor.Context) error {
	if err := l.config.ValidateAddress(); err != nil {
		return err
	}

	cx.Logger().Info("Connecting to node", "address", l.config.NodeAddress,
		"magic", l.config.NetworkMagic, "slot", l.config.StartSlot)

	stream, err := l.client.Dial(cx.Context(), l.config)
	if err != nil {
		var uerr *upstream.Error
		if errors.As(err, &uerr) {
			return err
		}

		return &upstream.Error{Kind: upstream.ConnectionError, Address: l.config.NodeAddress, Err: err}
	}

	if err := cx.Go(func(ctx context.Context) {
		defer stream.Close()

		l.read(ctx, cx, cx.Logger(), stream)
	}); err != nil {
		_ = stream.Close()

		return err
	}

	return nil
}

// read runs in the background and hands every stream item to the actor.
func (l *Listener) read(ctx context.Context, self actor.Sender, logger hclog.Logger, stream upstream.Stream) {
	for {
		record, err := stream.Recv(ctx)

		switch {
		case err == nil:
			if err := self.Send(record); err != nil {
				if errors.Is(err, actor.ErrUnhandledEvent) {
					logger.Warn("Skipping unknown record", "err", err)

					continue
				}

				return
			}
		case errors.Is(err, io.EOF):
			_ = self.Send(streamEnded{})

			return
		case ctx.Err() != nil:
			return
		default:
			_ = self.Send(streamFailed{err: err})

			return
		}
	}
}

func (l *Listener) forward(cx *actor.Context, record any) error {
	if err := l.broker.Send(record); err != nil {
		if errors.Is(err, actor.ErrMissingReceiver) {
			return fmt.Errorf("%w: %w", ErrMissingBroker, err)
		}

		return err
	}

	l.forwarded++

	if cx.Logger().IsTrace() {
		cx.Logger().Trace("Record forwarded", "record", fmt.Sprintf("%T", record), "total", l.forwarded)
	}

	return nil
}

func (l *Listener) handleEnded(cx *actor.Context, _ streamEnded) error {
	cx.Logger().Info("Upstream stream ended", "forwarded", l.forwarded)

	cx.Stop()

	return nil
}

func (l *Listener) handleFailed(_ *actor.Context, ev streamFailed) error {
	var uerr *upstream.Error
	if errors.As(ev.err, &uerr) {
		return ev.err
	}

	return &upstream.Error{Kind: upstream.TransportFailed, Address: l.config.NodeAddress, Err: ev.err}
}
