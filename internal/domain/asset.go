package domain

import (
	"encoding/hex"

	"golang.org/x/crypto/blake2b"
)

// AssetDigest fingerprints asset bytes. The digest is part of the object key so
// re-uploading the same image after a lost ack overwrites instead of duplicating.
func AssetDigest(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:])
}
