package models_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saferoute/saferoute/internal/api/models"
)

func TestTimestamp_JSON(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 30, 0, 0, time.FixedZone("IST", 5*3600+1800))

	data, err := json.Marshal(models.Timestamp(at))
	require.NoError(t, err)
	assert.JSONEq(t, `"2026-03-01T07:00:00Z"`, string(data))

	var got models.Timestamp
	require.NoError(t, json.Unmarshal(data, &got))
	assert.True(t, at.Equal(time.Time(got)))

	require.NoError(t, json.Unmarshal([]byte(`null`), &got))
	assert.True(t, at.Equal(time.Time(got)), "null leaves the value unchanged")

	for _, bad := range []string{`1`, `"yesterday"`, `true`} {
		assert.Error(t, json.Unmarshal([]byte(bad), &got), bad)
	}
}
