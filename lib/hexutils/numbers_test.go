package hexutils_test

import (
	"testing"

	"github.com/chainpulse/blockwatch/lib/hexutils"
	"github.com/stretchr/testify/require"
)

func TestIntFromHex(t *testing.T) {
	n, err := hexutils.IntFromHex("0x7a549b")
	require.NoError(t, err)
	require.Equal(t, int64(8017051), n)

	n, err = hexutils.IntFromHex("0x0")
	require.NoError(t, err)
	require.Equal(t, int64(0), n)
}

func TestIntFromHexRejectsBadInput(t *testing.T) {
	for _, input := range []string{"", "0x", "123", "0xzz"} {
		_, err := hexutils.IntFromHex(input)
		require.Error(t, err, "input %q", input)
	}
}
