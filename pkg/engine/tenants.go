package engine

import (
	"sort"
	"sync"

	"github.com/linqiu/chefmate/pkg/session"
)

// tenant is one user's slice of engine state: the serialization lock
// and the session window it guards. All read-modify-write sequences on
// a user's memory run with tenant.mu held.
type tenant struct {
	mu      sync.Mutex
	session *session.Window
}

// tenants maps user ids to tenant records. Creation on first access is
// a single insert-if-absent under the table lock, so two concurrent
// first calls for the same user always converge on one record. There
// is no check-then-insert window.
type tenants struct {
	mu         sync.Mutex
	byUser     map[string]*tenant
	windowSize int
	summarized bool
}

// summarized controls whether new windows retain evicted turns; only
// set when a summary tier exists to drain them.
func newTenants(windowSize int, summarized bool) *tenants {
	return &tenants{
		byUser:     make(map[string]*tenant),
		windowSize: windowSize,
		summarized: summarized,
	}
}

func (t *tenants) get(userID string) *tenant {
	t.mu.Lock()
	defer t.mu.Unlock()
	tn, ok := t.byUser[userID]
	if !ok {
		window := session.NewWindow(t.windowSize)
		if t.summarized {
			window = session.NewSummarizedWindow(t.windowSize)
		}
		tn = &tenant{session: window}
		t.byUser[userID] = tn
	}
	return tn
}

func (t *tenants) remove(userID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.byUser, userID)
}

func (t *tenants) userIDs() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	ids := make([]string, 0, len(t.byUser))
	for id := range t.byUser {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
