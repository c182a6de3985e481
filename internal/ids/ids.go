package ids

import (
	"crypto/rand"
	"encoding/hex"
	"strings"

	"github.com/google/uuid"
)

const handlePrefix = "Patient-"

// New returns an opaque 32-char hex id for events and deliveries.
func New() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		panic(err)
	}
	return hex.EncodeToString(buf)
}

// AnonymousHandle returns the public handle for a new requester, e.g. "Patient-3f2a9c1d".
// Uniqueness is enforced by the requesters table; callers retry on collision.
func AnonymousHandle() string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return handlePrefix + id[:8]
}
