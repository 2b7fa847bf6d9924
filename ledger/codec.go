package ledger

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

var encMode cbor.EncMode

func init() {
	mode, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}

	encMode = mode
}

// EncodeRecord serializes a record into deterministic CBOR for the key-value stores.
func EncodeRecord(record any) ([]byte, error) {
	bytes, err := encMode.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRecord, err)
	}

	return bytes, nil
}

func DecodeRecord[T any](data []byte) (*T, error) {
	var result T

	if err := cbor.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("could not decode %T: %w", result, err)
	}

	return &result, nil
}
