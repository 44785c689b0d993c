package chatid

import (
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	entropyOnce sync.Once
	entropyMu   sync.Mutex
	entropy     *ulid.MonotonicEntropy
)

func newEntropy() *ulid.MonotonicEntropy {
	entropyOnce.Do(func() {
		source := rand.NewSource(time.Now().UnixNano())
		entropy = ulid.Monotonic(rand.New(source), 0)
	})
	return entropy
}

func newID(prefix string) string {
	// MonotonicEntropy is not safe for concurrent use.
	entropyMu.Lock()
	id := ulid.MustNew(ulid.Timestamp(time.Now()), newEntropy())
	entropyMu.Unlock()
	return prefix + strings.ToLower(id.String())
}

// NewConversation returns a conv_* ULID string.
func NewConversation() string {
	return newID("conv_")
}

// NewMessage returns a msg_* ULID string.
func NewMessage() string {
	return newID("msg_")
}

// IsValid reports whether the string carries the prefix and parses as a ULID.
func IsValid(prefix, value string) bool {
	if !strings.HasPrefix(value, prefix) {
		return false
	}
	_, err := ulid.Parse(strings.ToUpper(strings.TrimPrefix(value, prefix)))
	return err == nil
}
