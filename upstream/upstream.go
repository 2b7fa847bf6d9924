package upstream

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/Ethernal-Tech/chronicle/ledger"
)

const (
	ProtocolTCP  = "tcp"
	ProtocolUnix = "unix"

	defaultConfirmationCount = 10
	defaultMilestoneInterval = 20
)

type Config struct {
	NodeAddress  string `json:"nodeAddress"`
	NetworkMagic uint32 `json:"networkMagic"`
	KeepAlive    bool   `json:"keepAlive"`
	// ConfirmationCount is the depth at which a block is treated as final.
	ConfirmationCount int `json:"confirmationCount"`
	// MilestoneInterval is the number of confirmed blocks covered by one milestone.
	MilestoneInterval int `json:"milestoneInterval"`
	// StartSlot and StartHash select the point to sync from, the chain origin when StartSlot is zero.
	StartSlot uint64 `json:"startSlot"`
	StartHash string `json:"startHash"`
	// MilestoneIndex is the index of the first milestone the stream emits, 1 when zero.
	MilestoneIndex uint32 `json:"-"`
}

func DefaultConfig() Config {
	return Config{
		NodeAddress:       "localhost:3001",
		NetworkMagic:      764824073,
		KeepAlive:         true,
		ConfirmationCount: defaultConfirmationCount,
		MilestoneInterval: defaultMilestoneInterval,
	}
}

func (c Config) Protocol() string {
	if strings.HasPrefix(c.NodeAddress, "/") {
		return ProtocolUnix
	}

	return ProtocolTCP
}

// ResumeFrom continues the stream after the latest stored milestone: syncing restarts at the
// last block the milestone confirmed and milestone indexes continue where they stopped.
func (c Config) ResumeFrom(latest *ledger.MilestoneRecord) Config {
	if latest == nil || len(latest.BlockIDs) == 0 {
		return c
	}

	c.StartSlot = latest.Slot
	c.StartHash = latest.BlockIDs[len(latest.BlockIDs)-1].String()
	c.MilestoneIndex = latest.Index + 1

	return c
}

// ValidateAddress rejects addresses no connection attempt can succeed with.
func (c Config) ValidateAddress() error {
	address := strings.TrimSpace(c.NodeAddress)
	if address == "" {
		return &Error{Kind: InvalidAddress, Address: c.NodeAddress, Err: ErrEmptyAddress}
	} else if address != c.NodeAddress {
		return &Error{Kind: InvalidAddress, Address: c.NodeAddress, Err: ErrSurroundingSpace}
	}

	if c.Protocol() == ProtocolUnix {
		return nil
	}

	host, port, err := net.SplitHostPort(address)
	if err != nil {
		return &Error{Kind: ParsingAddressFailed, Address: c.NodeAddress, Err: err}
	}

	if host == "" {
		return &Error{Kind: InvalidAddress, Address: c.NodeAddress, Err: ErrMissingHost}
	}

	if portNum, err := strconv.ParseUint(port, 10, 16); err != nil || portNum == 0 {
		return &Error{Kind: InvalidAddress, Address: c.NodeAddress, Err: fmt.Errorf("%w: %q", ErrInvalidPort, port)}
	}

	return nil
}

// StartPoint returns the configured sync start. ok is false when syncing from the origin.
func (c Config) StartPoint() (slot uint64, hash ledger.Hash, ok bool, err error) {
	if c.StartSlot == 0 {
		return 0, hash, false, nil
	}

	hash, err = ledger.NewHashFromHexString(c.StartHash)
	if err != nil {
		return 0, hash, false, fmt.Errorf("invalid start point: %w", err)
	}

	return c.StartSlot, hash, true, nil
}

func (c Config) Validate() error {
	if err := c.ValidateAddress(); err != nil {
		return err
	}

	if c.ConfirmationCount < 0 || c.MilestoneInterval < 0 {
		return fmt.Errorf("confirmation count and milestone interval must not be negative")
	}

	_, _, _, err := c.StartPoint()

	return err
}

// Client connects to an upstream node.
type Client interface {
	// Dial connects and starts streaming from the configured start point.
	// Failures are returned as *Error.
	Dial(ctx context.Context, config Config) (Stream, error)
}

// Stream yields *ledger.BlockRecord and *ledger.MilestoneRecord values in chain order.
type Stream interface {
	// Recv blocks until the next record is available. It returns io.EOF once the stream ended,
	// a *Error for transport failures and ctx.Err() when ctx is done.
	Recv(ctx context.Context) (any, error)
	Close() error
}
