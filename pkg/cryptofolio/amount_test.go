package cryptofolio

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAmountMarshalsAsJSONNumber(t *testing.T) {
	data, err := json.Marshal(NewAmount(1.5))
	require.NoError(t, err)
	require.Equal(t, "1.5", string(data))

	data, err = json.Marshal(NewAmount(0))
	require.NoError(t, err)
	require.Equal(t, "0", string(data))

	// Small crypto quantities survive without scientific notation.
	data, err = json.Marshal(NewAmount(0.00000001))
	require.NoError(t, err)
	require.Equal(t, "0.00000001", string(data))
}

func TestAmountUnmarshalAcceptsNumberAndString(t *testing.T) {
	var a Amount
	require.NoError(t, json.Unmarshal([]byte(`1.5`), &a))
	require.True(t, a.Equal(NewAmount(1.5).Decimal))

	require.NoError(t, json.Unmarshal([]byte(`"2.25"`), &a))
	require.True(t, a.Equal(NewAmount(2.25).Decimal))

	require.Error(t, json.Unmarshal([]byte(`"abc"`), &a))
}

func TestAmountScan(t *testing.T) {
	var a Amount
	require.NoError(t, a.Scan(float64(1.5)))
	require.True(t, a.Equal(NewAmount(1.5).Decimal))

	require.NoError(t, a.Scan(int64(3)))
	require.True(t, a.Equal(NewAmountFromInt(3).Decimal))

	require.NoError(t, a.Scan("4.5"))
	require.True(t, a.Equal(NewAmount(4.5).Decimal))

	require.NoError(t, a.Scan(nil))
	require.True(t, a.IsZero())
}
