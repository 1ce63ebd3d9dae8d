package draw

import (
	"sync"

	"lottery-server-go/models"
)

// Exclusion is the session-scoped set of identifiers already picked by backup
// or replacement draws. A nil *Exclusion excludes nothing.
type Exclusion struct {
	mu  sync.RWMutex
	ids map[models.StudentID]struct{}
}

func NewExclusion() *Exclusion {
	return &Exclusion{ids: make(map[models.StudentID]struct{})}
}

func (x *Exclusion) Has(id models.StudentID) bool {
	if x == nil {
		return false
	}
	x.mu.RLock()
	defer x.mu.RUnlock()
	_, ok := x.ids[id]
	return ok
}

func (x *Exclusion) Add(ids ...models.StudentID) {
	if x == nil {
		return
	}
	x.mu.Lock()
	for _, id := range ids {
		x.ids[id] = struct{}{}
	}
	x.mu.Unlock()
}

func (x *Exclusion) Len() int {
	if x == nil {
		return 0
	}
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.ids)
}

// Reset forgets every picked identifier.
func (x *Exclusion) Reset() {
	if x == nil {
		return
	}
	x.mu.Lock()
	x.ids = make(map[models.StudentID]struct{})
	x.mu.Unlock()
}
