package common

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDuration_JSON(t *testing.T) {
	type holder struct {
		Delay Duration `json:"delay"`
	}

	t.Run("string", func(t *testing.T) {
		var h holder

		require.NoError(t, json.Unmarshal([]byte(`{"delay":"1m30s"}`), &h))
		require.Equal(t, 90*time.Second, h.Delay.Duration())

		bytes, err := json.Marshal(h)
		require.NoError(t, err)
		require.JSONEq(t, `{"delay":"1m30s"}`, string(bytes))
	})

	t.Run("nanoseconds", func(t *testing.T) {
		var h holder

		require.NoError(t, json.Unmarshal([]byte(`{"delay":2000000000}`), &h))
		require.Equal(t, 2*time.Second, h.Delay.Duration())
	})

	t.Run("invalid", func(t *testing.T) {
		var h holder

		require.Error(t, json.Unmarshal([]byte(`{"delay":"soon"}`), &h))
		require.Error(t, json.Unmarshal([]byte(`{"delay":true}`), &h))
	})
}
