package common

import (
	"encoding/json"
	"fmt"
	"time"
)

// Duration is a time.Duration read from and written to JSON as a Go duration string ("5s", "1m30s").
// Plain numbers are accepted as nanoseconds.
type Duration time.Duration

func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

func (d Duration) String() string {
	return time.Duration(d).String()
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	switch value := raw.(type) {
	case float64:
		*d = Duration(time.Duration(value))
	case string:
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", value, err)
		}

		*d = Duration(parsed)
	default:
		return fmt.Errorf("invalid duration: %s", string(data))
	}

	return nil
}
