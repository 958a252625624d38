package flags

import (
	"crypto/sha1"
	"encoding/hex"
	"strconv"
)

// hashDivisor is the 15-hex-digit all-F constant the server divides by.
// It must never change: bucketing parity with server-side evaluation depends
// on the exact digest, substring length, and divisor.
const hashDivisor = float64(0xFFFFFFFFFFFFFFF)

// flagHash maps (flagKey, distinctID, salt) onto a stable float in [0, 1).
// The server performs the identical computation, so the same inputs bucket
// identically on both sides.
func flagHash(flagKey, distinctID, salt string) float64 {
	sum := sha1.Sum([]byte(flagKey + "." + distinctID + salt))
	digest := hex.EncodeToString(sum[:])[:15]
	value, err := strconv.ParseUint(digest, 16, 64)
	if err != nil {
		// Unreachable: the input is always 15 hex characters.
		return 0
	}
	return float64(value) / hashDivisor
}
