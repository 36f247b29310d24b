package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVariantSnapshotRoundTrip(t *testing.T) {
	v, err := VariantSnapshot{Color: "red", Size: "M"}.Value()
	require.NoError(t, err)
	assert.JSONEq(t, `{"color":"red","size":"M"}`, string(v.([]byte)))

	var s VariantSnapshot
	require.NoError(t, s.Scan(v))
	assert.Equal(t, VariantSnapshot{Color: "red", Size: "M"}, s)

	require.NoError(t, s.Scan(`{"size":"L"}`))
	assert.Equal(t, VariantSnapshot{Size: "L"}, s)

	require.NoError(t, s.Scan(nil))
	assert.Equal(t, VariantSnapshot{}, s)

	assert.Error(t, s.Scan(42))
}

func TestOrderIsPending(t *testing.T) {
	assert.True(t, (&Order{Status: OrderStatus_Pending}).IsPending())
	assert.False(t, (&Order{Status: OrderStatus_Paid}).IsPending())
}
