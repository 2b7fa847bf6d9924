package gouroboros

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/Ethernal-Tech/chronicle/ledger"
	"github.com/Ethernal-Tech/chronicle/upstream"
	ouroboros "github.com/blinklabs-io/gouroboros"
	gledger "github.com/blinklabs-io/gouroboros/ledger"
	"github.com/blinklabs-io/gouroboros/protocol/chainsync"
	ocommon "github.com/blinklabs-io/gouroboros/protocol/common"
	"github.com/hashicorp/go-hclog"
)

const (
	recordsChannelSize = 256

	defaultConfirmationCount = 10
	defaultMilestoneInterval = 20
)

var errStreamClosed = errors.New("stream closed")

// Client follows the chain of a Cardano node over the node-to-node chain sync protocol.
type Client struct {
	logger hclog.Logger
}

var _ upstream.Client = (*Client)(nil)

func NewClient(logger hclog.Logger) *Client {
	return &Client{logger: logger}
}

func (c *Client) Dial(ctx context.Context, config upstream.Config) (upstream.Stream, error) {
	if err := config.ValidateAddress(); err != nil {
		return nil, err
	}

	slot, hash, fromPoint, err := config.StartPoint()
	if err != nil {
		return nil, &upstream.Error{Kind: upstream.InvalidConfig, Address: config.NodeAddress, Err: err}
	}

	confirmationCount := config.ConfirmationCount
	if confirmationCount <= 0 {
		confirmationCount = defaultConfirmationCount
	}

	milestoneInterval := config.MilestoneInterval
	if milestoneInterval <= 0 {
		milestoneInterval = defaultMilestoneInterval
	}

	s := &stream{
		address:   config.NodeAddress,
		logger:    c.logger,
		tracker:   newTracker(confirmationCount, milestoneInterval, config.MilestoneIndex),
		recordsCh: make(chan any, recordsChannelSize),
		failedCh:  make(chan struct{}),
		closeCh:   make(chan struct{}),
	}

	c.logger.Debug("Dialing node", "addr", config.NodeAddress, "magic", config.NetworkMagic)

	var dialer net.Dialer

	conn, err := dialer.DialContext(ctx, config.Protocol(), config.NodeAddress)
	if err != nil {
		return nil, connectionError(config, err)
	}

	// the handshake runs on the already established connection
	connection, err := ouroboros.NewConnection(
		ouroboros.WithConnection(conn),
		ouroboros.WithNetworkMagic(config.NetworkMagic),
		ouroboros.WithNodeToNode(true),
		ouroboros.WithKeepAlive(config.KeepAlive),
		ouroboros.WithChainSyncConfig(chainsync.NewConfig(
			chainsync.WithRollBackwardFunc(s.rollBackwardCallback),
			chainsync.WithRollForwardFunc(s.rollForwardCallback),
		)),
	)
	if err != nil {
		_ = conn.Close()

		return nil, connectionError(config, err)
	}

	s.connection = connection

	point := ocommon.NewPointOrigin()
	if fromPoint {
		point = ocommon.NewPoint(slot, hash[:])
	}

	if err := connection.ChainSync().Client.Sync([]ocommon.Point{point}); err != nil {
		_ = s.Close()

		return nil, connectionError(config, err)
	}

	c.logger.Debug("Syncing started", "addr", config.NodeAddress, "slot", point.Slot)

	go s.errorHandler(connection.ErrorChan())

	return s, nil
}

func connectionError(config upstream.Config, err error) error {
	return &upstream.Error{Kind: upstream.ConnectionError, Address: config.NodeAddress, Err: err}
}

type stream struct {
	address    string
	connection *ouroboros.Connection
	tracker    *tracker
	logger     hclog.Logger

	recordsCh chan any

	failOnce sync.Once
	failErr  error
	failedCh chan struct{}

	lock     sync.Mutex
	closeCh  chan struct{}
	isClosed bool
}

var _ upstream.Stream = (*stream)(nil)

func (s *stream) Recv(ctx context.Context) (any, error) {
	// records received before a failure are delivered first
	select {
	case record := <-s.recordsCh:
		return record, nil
	default:
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case record := <-s.recordsCh:
		return record, nil
	case <-s.failedCh:
		return nil, s.failErr
	case <-s.closeCh:
		return nil, io.EOF
	}
}

func (s *stream) Close() error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.isClosed {
		return nil
	}

	s.isClosed = true

	close(s.closeCh)

	if s.connection == nil {
		return nil
	}

	if err := s.connection.Close(); err != nil {
		return err
	}

	<-s.connection.ErrorChan() // error channel will be closed after connection closing is done!

	return nil
}

func (s *stream) fail(err error) {
	s.failOnce.Do(func() {
		s.failErr = err
		close(s.failedCh)
	})
}

func (s *stream) rollBackwardCallback(
	ctx chainsync.CallbackContext, point ocommon.Point, tip chainsync.Tip,
) error {
	s.logger.Debug("Roll backward",
		"hash", hex.EncodeToString(point.Hash), "slot", point.Slot,
		"tip_slot", tip.Point.Slot, "tip_hash", hex.EncodeToString(tip.Point.Hash))

	return s.tracker.rollBackward(point.Slot)
}

func (s *stream) rollForwardCallback(
	ctx chainsync.CallbackContext, blockType uint, blockInfo interface{}, tip chainsync.Tip,
) error {
	blockHeader, ok := blockInfo.(gledger.BlockHeader)
	if !ok {
		return errors.New("failed to get block header with gouroboros")
	}

	s.logger.Debug("Roll forward",
		"hash", blockHeader.Hash(), "slot", blockHeader.SlotNumber(), "number", blockHeader.BlockNumber(),
		"tip_slot", tip.Point.Slot, "tip_hash", hex.EncodeToString(tip.Point.Hash))

	id, err := ledger.NewHashFromHexString(blockHeader.Hash())
	if err != nil {
		return fmt.Errorf("invalid block hash: %w", err)
	}

	return s.rollForward(&ledger.BlockRecord{
		ID:     id,
		Slot:   blockHeader.SlotNumber(),
		Number: blockHeader.BlockNumber(),
		EraID:  blockHeader.Era().Id,
	})
}

// rollForward blocks the chain sync while the reader is behind.
func (s *stream) rollForward(block *ledger.BlockRecord) error {
	records, err := s.tracker.rollForward(block)
	if err != nil {
		return err
	}

	for _, record := range records {
		select {
		case s.recordsCh <- record:
		case <-s.closeCh:
			return errStreamClosed
		}
	}

	return nil
}

func (s *stream) errorHandler(errorCh <-chan error) {
	select {
	case <-s.closeCh:
		return
	case err, ok := <-errorCh:
		if !ok {
			s.fail(io.EOF)

			return
		}

		s.logger.Warn("Error happened during synchronization", "err", err)
		s.fail(&upstream.Error{Kind: upstream.TransportFailed, Address: s.address, Err: err})
	}
}
