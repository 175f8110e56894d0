package cache

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned by Get when the key is absent or expired.
var ErrNotFound = errors.New("cache: key not found")

// Store is the shared key-value cache the pipeline coordinates through.
// SetIfAbsent is the only exclusivity primitive in the system: it must be
// atomic across processes. Any other error than ErrNotFound means the cache
// is unreachable; callers decide per call-site whether to degrade open or
// closed.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// SetIfAbsent writes key=value with ttl only when the key does not exist.
	// Returns true when this call created the key.
	SetIfAbsent(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
}

// Key builders. Everything the pipeline stores is keyed per message, per
// conversation or per (agent, counterparty), so cross-conversation contention
// does not happen.

func DedupKey(providerMessageID string) string {
	return "msg:dedup:" + providerMessageID
}

func DebounceKey(conversationID int64) string {
	return fmt.Sprintf("conv:debounce:%d", conversationID)
}

func OutOfHoursKey(agentID int64, remoteID string) string {
	return fmt.Sprintf("ooh:%d:%s", agentID, remoteID)
}
