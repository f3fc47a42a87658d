package agent

import (
	"crypto/rand"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	idOnce sync.Once
	ids    *idGenerator
)

// idGenerator hands out ULIDs from a monotonic source so ids made within the
// same millisecond still sort in creation order.
type idGenerator struct {
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

func (g *idGenerator) at(t time.Time) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return strings.ToLower(ulid.MustNew(ulid.Timestamp(t), g.entropy).String())
}

// NewFlowID returns a fresh lowercase ULID for use as a flow id.
func NewFlowID() string {
	return NewFlowIDAt(time.Now().UTC())
}

// NewFlowIDAt returns a flow id carrying the timestamp t.
func NewFlowIDAt(t time.Time) string {
	idOnce.Do(func() {
		ids = &idGenerator{entropy: ulid.Monotonic(rand.Reader, 0)}
	})
	return ids.at(t)
}

// FlowIDTime extracts the timestamp of a flow id made by NewFlowID. Ids from
// elsewhere report false.
func FlowIDTime(id string) (time.Time, bool) {
	u, err := ulid.ParseStrict(strings.ToUpper(id))
	if err != nil {
		return time.Time{}, false
	}
	return ulid.Time(u.Time()), true
}
