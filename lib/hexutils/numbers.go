package hexutils

import (
	"strconv"

	"github.com/go-errors/errors"
)

// IntFromHex parses a 0x-prefixed quantity as returned by EVM JSON-RPC
// (block numbers, timestamps) into an int64.
func IntFromHex(hexNumber string) (int64, error) {
	if len(hexNumber) < 3 || hexNumber[:2] != "0x" {
		return 0, errors.Errorf("couldn't parse '%s' as number, must start with '0x'", hexNumber)
	}
	n, err := strconv.ParseInt(hexNumber[2:], 16, 64)
	if err != nil {
		return 0, errors.Errorf("failed to parse '%s' as int: %w", hexNumber, err)
	}
	return n, nil
}
