package groupid

import (
	"strconv"
	"sync"
	"time"
)

// Receipt group id prefixes.
const (
	PrefixSale     = "S"
	PrefixRefund   = "R"
	PrefixExchange = "E"
	PrefixTransfer = "T"
)

var (
	mu     sync.Mutex
	lastMS int64
)

// New returns prefix + unix-millisecond timestamp. The millisecond clock
// is forced monotonic so two receipts created in the same millisecond
// still get distinct ids.
func New(prefix string) string {
	mu.Lock()
	ms := time.Now().UnixMilli()
	if ms <= lastMS {
		ms = lastMS + 1
	}
	lastMS = ms
	mu.Unlock()
	return prefix + strconv.FormatInt(ms, 10)
}

// Kind reports the prefix letter of a group id, or "" for an empty id.
func Kind(id string) string {
	if id == "" {
		return ""
	}
	return id[:1]
}
