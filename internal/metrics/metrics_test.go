package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterIsIdempotent(t *testing.T) {
	reg := prometheus.NewRegistry()
	require.NoError(t, Register(reg))
	require.NoError(t, Register(reg))
}

func TestCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	require.NoError(t, Register(reg))

	before := testutil.ToFloat64(updateFailures.WithLabelValues("digest_mismatch"))
	IncUpdateFailure("digest_mismatch")
	assert.Equal(t, before+1, testutil.ToFloat64(updateFailures.WithLabelValues("digest_mismatch")))

	SetTemperature(23.4)
	assert.InDelta(t, 23.4, testutil.ToFloat64(temperature), 0.001)

	SetSlotState("slot_a", "pending_verify", []string{"empty", "pending_verify"})
	assert.Equal(t, 1.0, testutil.ToFloat64(slotState.WithLabelValues("slot_a", "pending_verify")))
	assert.Equal(t, 0.0, testutil.ToFloat64(slotState.WithLabelValues("slot_a", "empty")))
}
