package queue

import (
	"fmt"
	"strconv"
)

// indexKey encodes an ordered secondary-index key as pad(availableAt, padLen) + "-" + id.
// Lexicographic order over this encoding is identical to (availableAt, id)
// numeric order, so the store's natural key ordering is the claim order.
func indexKey(availableAt int64, id string, padLen int) string {
	return fmt.Sprintf("%0*d-%s", padLen, availableAt, id)
}

// parseIndexKey splits an index key back into its availableAt and id parts.
// The timestamp occupies the fixed-width prefix; everything after the
// separating hyphen is the id, which may itself contain hyphens.
func parseIndexKey(key string, padLen int) (availableAt int64, id string, err error) {
	if len(key) < padLen+1 {
		return 0, "", fmt.Errorf("queue: malformed index key %q", key)
	}
	availableAt, err = strconv.ParseInt(key[:padLen], 10, 64)
	if err != nil {
		return 0, "", fmt.Errorf("queue: malformed index key %q: %w", key, err)
	}
	return availableAt, key[padLen+1:], nil
}
