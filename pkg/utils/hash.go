package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"meshnode/pkg/models"
)

// ErrUnsupportedHashType is returned for digests outside the registered set.
var ErrUnsupportedHashType = fmt.Errorf("unsupported hash type")

// DigestHex computes the hex digest of b under the named algorithm.
func DigestHex(ht models.HashType, b []byte) (string, error) {
	switch ht {
	case models.HashSHA256, "":
		sum := sha256.Sum256(b)
		return hex.EncodeToString(sum[:]), nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedHashType, ht)
	}
}
