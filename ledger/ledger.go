// Package ledger records who has won and under which stage.
package ledger

import (
	"sync"

	"lottery-server-go/models"
)

// Kind names the mutation that produced a Change.
type Kind string

const (
	Recorded Kind = "recorded"
	Removed  Kind = "removed"
	Cleared  Kind = "cleared"
	Replaced Kind = "replaced"
)

// Origin tells listeners where a mutation came from.
type Origin int

const (
	// Local mutations come from draws and edits on this process.
	Local Origin = iota
	// Remote mutations mirror a snapshot received from the shared store.
	Remote
	// Restore loads persisted state at startup.
	Restore
)

// Change is delivered to listeners after every mutation.
type Change struct {
	Kind     Kind
	Origin   Origin
	IDs      []models.StudentID
	Snapshot models.Snapshot
}

// Listener observes ledger mutations. It is called synchronously, after the
// in-memory state has changed, and must not mutate the ledger.
type Listener func(Change)

// Ledger is the single source of truth about winners.
type Ledger struct {
	// emit serializes mutations together with their notifications.
	emit sync.Mutex

	mu        sync.RWMutex
	order     []models.StudentID
	stageOf   map[models.StudentID]models.StageID
	listeners []Listener
}

func New() *Ledger {
	return &Ledger{stageOf: make(map[models.StudentID]models.StageID)}
}

// Subscribe registers a listener for all later mutations.
func (l *Ledger) Subscribe(fn Listener) {
	l.mu.Lock()
	l.listeners = append(l.listeners, fn)
	l.mu.Unlock()
}

func (l *Ledger) Has(id models.StudentID) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.stageOf[id]
	return ok
}

func (l *Ledger) StageOf(id models.StudentID) (models.StageID, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	s, ok := l.stageOf[id]
	return s, ok
}

func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.order)
}

// Record adds id under stage. Recording an id that is already present
// overwrites its stage and keeps its position.
func (l *Ledger) Record(id models.StudentID, stage models.StageID) {
	l.RecordAll(stage, id)
}

// RecordAll records several winners as one mutation.
func (l *Ledger) RecordAll(stage models.StageID, ids ...models.StudentID) {
	if len(ids) == 0 {
		return
	}
	l.emit.Lock()
	defer l.emit.Unlock()

	l.mu.Lock()
	for _, id := range ids {
		if _, ok := l.stageOf[id]; !ok {
			l.order = append(l.order, id)
		}
		l.stageOf[id] = stage
	}
	change := l.changeLocked(Recorded, Local, ids)
	l.mu.Unlock()

	l.notify(change)
}

// Remove deletes id. It is a no-op, without notification, if id is absent.
func (l *Ledger) Remove(id models.StudentID) bool {
	l.emit.Lock()
	defer l.emit.Unlock()

	l.mu.Lock()
	if _, ok := l.stageOf[id]; !ok {
		l.mu.Unlock()
		return false
	}
	delete(l.stageOf, id)
	for i, v := range l.order {
		if v == id {
			l.order = append(l.order[:i:i], l.order[i+1:]...)
			break
		}
	}
	change := l.changeLocked(Removed, Local, []models.StudentID{id})
	l.mu.Unlock()

	l.notify(change)
	return true
}

// Clear removes every winner.
func (l *Ledger) Clear() {
	l.emit.Lock()
	defer l.emit.Unlock()

	l.mu.Lock()
	l.order = nil
	l.stageOf = make(map[models.StudentID]models.StageID)
	change := l.changeLocked(Cleared, Local, nil)
	l.mu.Unlock()

	l.notify(change)
}

// Replace swaps the whole state for snap.
func (l *Ledger) Replace(snap models.Snapshot, origin Origin) {
	snap = snap.Normalize()

	l.emit.Lock()
	defer l.emit.Unlock()

	l.mu.Lock()
	l.order = snap.List
	l.stageOf = snap.Stages
	change := l.changeLocked(Replaced, origin, nil)
	l.mu.Unlock()

	l.notify(change)
}

// Snapshot returns a copy of the current state in record order.
func (l *Ledger) Snapshot() models.Snapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.snapshotLocked()
}

func (l *Ledger) snapshotLocked() models.Snapshot {
	snap := models.Snapshot{
		List:   make([]models.StudentID, len(l.order)),
		Stages: make(map[models.StudentID]models.StageID, len(l.stageOf)),
	}
	copy(snap.List, l.order)
	for id, s := range l.stageOf {
		snap.Stages[id] = s
	}
	return snap
}

func (l *Ledger) changeLocked(kind Kind, origin Origin, ids []models.StudentID) Change {
	return Change{
		Kind:     kind,
		Origin:   origin,
		IDs:      append([]models.StudentID(nil), ids...),
		Snapshot: l.snapshotLocked(),
	}
}

func (l *Ledger) notify(c Change) {
	l.mu.RLock()
	listeners := append([]Listener(nil), l.listeners...)
	l.mu.RUnlock()
	for _, fn := range listeners {
		fn(c)
	}
}
