// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package cache

import (
	"encoding/hex"

	"golang.org/x/crypto/blake2b"
)

// hashURL returns a short, filesystem-safe fingerprint of rawURL, used by
// deriveFilename when the literal url-encoded form would overflow
// maxFilenameBytes. blake2b-256 is already a module dependency for nothing
// else; it is fast and its 128-bit truncation here (the first 16 bytes, 32
// hex characters) is only ever used as a cache key, never for integrity.
func hashURL(rawURL string) string {
	sum := blake2b.Sum256([]byte(rawURL))
	return hex.EncodeToString(sum[:16])
}
