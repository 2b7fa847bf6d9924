package upstream

import (
	"context"
	"io"
	"sync"

	"github.com/stretchr/testify/mock"
)

type ClientMock struct {
	mock.Mock
	DialFn func(ctx context.Context, config Config) (Stream, error)
}

var _ Client = (*ClientMock)(nil)

// Dial implements Client.
func (m *ClientMock) Dial(ctx context.Context, config Config) (Stream, error) {
	args := m.Called(ctx, config)

	if m.DialFn != nil {
		return m.DialFn(ctx, config)
	}

	result, _ := args.Get(0).(Stream)

	return result, args.Error(1)
}

// ChanStream is a Stream fed through its channels. Closing Records ends the stream with io.EOF.
type ChanStream struct {
	Records chan any
	Errors  chan error

	closeOnce sync.Once
	closed    chan struct{}
}

var _ Stream = (*ChanStream)(nil)

func NewChanStream(size int) *ChanStream {
	return &ChanStream{
		Records: make(chan any, size),
		Errors:  make(chan error, 1),
		closed:  make(chan struct{}),
	}
}

// Recv implements Stream.
func (s *ChanStream) Recv(ctx context.Context) (any, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.closed:
		return nil, io.EOF
	case err := <-s.Errors:
		return nil, err
	case record, ok := <-s.Records:
		if !ok {
			return nil, io.EOF
		}

		return record, nil
	}
}

// Close implements Stream.
func (s *ChanStream) Close() error {
	s.closeOnce.Do(func() {
		close(s.closed)
	})

	return nil
}

// IsClosed reports whether Close was called.
func (s *ChanStream) IsClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}
