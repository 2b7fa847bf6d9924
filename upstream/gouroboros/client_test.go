package gouroboros

import (
	"context"
	"errors"
	"io"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/Ethernal-Tech/chronicle/ledger"
	"github.com/Ethernal-Tech/chronicle/upstream"
	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/require"
)

func newTestStream(confirmationCount, milestoneInterval int) *stream {
	return &stream{
		address:   "test:1",
		logger:    hclog.NewNullLogger(),
		tracker:   newTracker(confirmationCount, milestoneInterval, 0),
		recordsCh: make(chan any, recordsChannelSize),
		failedCh:  make(chan struct{}),
		closeCh:   make(chan struct{}),
	}
}

func TestClient_Dial(t *testing.T) {
	client := NewClient(hclog.NewNullLogger())

	t.Run("invalid address", func(t *testing.T) {
		_, err := client.Dial(context.Background(), upstream.Config{NodeAddress: "no-port"})

		var upErr *upstream.Error

		require.ErrorAs(t, err, &upErr)
		require.Equal(t, upstream.ParsingAddressFailed, upErr.Kind)
	})

	t.Run("invalid start point", func(t *testing.T) {
		_, err := client.Dial(context.Background(), upstream.Config{NodeAddress: "localhost:3001", StartSlot: 5})

		var upErr *upstream.Error

		require.ErrorAs(t, err, &upErr)
		require.Equal(t, upstream.InvalidConfig, upErr.Kind)
	})

	t.Run("connection refused", func(t *testing.T) {
		listener, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)

		address := listener.Addr().String()
		require.NoError(t, listener.Close())

		_, err = client.Dial(context.Background(), upstream.Config{NodeAddress: address})

		var upErr *upstream.Error

		require.ErrorAs(t, err, &upErr)
		require.Equal(t, upstream.ConnectionError, upErr.Kind)
		require.False(t, upErr.IsTransient())
	})

	t.Run("peer closes during handshake", func(t *testing.T) {
		listener, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)

		defer listener.Close()

		go func() {
			conn, err := listener.Accept()
			if err == nil {
				_ = conn.Close()
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		_, err = client.Dial(ctx, upstream.Config{NodeAddress: listener.Addr().String()})

		var upErr *upstream.Error

		require.ErrorAs(t, err, &upErr)
		require.Equal(t, upstream.ConnectionError, upErr.Kind)
	})

	t.Run("missing unix socket", func(t *testing.T) {
		_, err := client.Dial(context.Background(), upstream.Config{NodeAddress: filepath.Join(t.TempDir(), "node.socket")})

		var upErr *upstream.Error

		require.ErrorAs(t, err, &upErr)
		require.Equal(t, upstream.ConnectionError, upErr.Kind)
	})
}

func TestStream_Recv(t *testing.T) {
	ctx := context.Background()

	t.Run("records in chain order", func(t *testing.T) {
		s := newTestStream(1, 2)
		defer s.Close()

		for i := byte(1); i <= 4; i++ {
			require.NoError(t, s.rollForward(block(i, uint64(i))))
		}

		var kinds []string

		for i := 0; i < 4; i++ {
			record, err := s.Recv(ctx)
			require.NoError(t, err)

			switch record.(type) {
			case *ledger.BlockRecord:
				kinds = append(kinds, "block")
			case *ledger.MilestoneRecord:
				kinds = append(kinds, "milestone")
			}
		}

		require.Equal(t, []string{"block", "block", "milestone", "block"}, kinds)
	})

	t.Run("failure after pending records", func(t *testing.T) {
		s := newTestStream(0, 100)
		defer s.Close()

		require.NoError(t, s.rollForward(block(1, 1)))

		errTransport := errors.New("mux failure")
		s.fail(&upstream.Error{Kind: upstream.TransportFailed, Err: errTransport})
		s.fail(io.EOF)

		record, err := s.Recv(ctx)
		require.NoError(t, err)
		require.IsType(t, &ledger.BlockRecord{}, record)

		_, err = s.Recv(ctx)
		require.ErrorIs(t, err, errTransport)

		_, err = s.Recv(ctx)
		require.ErrorIs(t, err, errTransport)
	})

	t.Run("closed", func(t *testing.T) {
		s := newTestStream(0, 100)

		require.NoError(t, s.Close())
		require.NoError(t, s.Close())

		_, err := s.Recv(ctx)
		require.ErrorIs(t, err, io.EOF)

		// a blocked chain sync callback is released
		for i := 0; i < recordsChannelSize; i++ {
			s.recordsCh <- struct{}{}
		}

		require.ErrorIs(t, s.rollForward(block(1, 1)), errStreamClosed)
	})

	t.Run("cancelled", func(t *testing.T) {
		s := newTestStream(0, 100)
		defer s.Close()

		cancelCtx, cancel := context.WithCancel(ctx)
		cancel()

		_, err := s.Recv(cancelCtx)
		require.ErrorIs(t, err, context.Canceled)
	})

	t.Run("rollback too deep", func(t *testing.T) {
		s := newTestStream(0, 100)
		defer s.Close()

		require.NoError(t, s.rollForward(block(1, 10)))
		require.ErrorIs(t, s.tracker.rollBackward(5), ErrRollbackTooDeep)
	})
}
