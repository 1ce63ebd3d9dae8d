// Package roster supplies the eligible student identifiers of each grade.
package roster

import (
	"sync/atomic"

	"lottery-server-go/models"
)

// Provider is the read-only source of identifiers the draw engine pools from.
type Provider interface {
	// PoolFor returns the identifiers of one grade in a deterministic order.
	// It returns an empty slice for grades without entries.
	PoolFor(grade int) []models.StudentID
	// NameOf returns the display name of id, if known.
	NameOf(id models.StudentID) (string, bool)
}

// Table is an imported name table. Order is import order.
type Table struct {
	entries []models.Student
	index   map[models.StudentID]int
}

// NewTable builds a table from roster entries. Later duplicates replace the
// name of earlier ones but keep their position.
func NewTable(entries []models.Student) *Table {
	t := &Table{index: make(map[models.StudentID]int, len(entries))}
	for _, e := range entries {
		e.ClassID = e.ID.ClassLabel()
		if i, ok := t.index[e.ID]; ok {
			t.entries[i].Name = e.Name
			continue
		}
		t.index[e.ID] = len(t.entries)
		t.entries = append(t.entries, e)
	}
	return t
}

func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.entries)
}

// Entries returns a copy of every entry in import order.
func (t *Table) Entries() []models.Student {
	if t == nil {
		return nil
	}
	return append([]models.Student(nil), t.entries...)
}

// HasGrade reports whether any imported entry belongs to grade.
func (t *Table) HasGrade(grade int) bool {
	if t == nil {
		return false
	}
	for _, e := range t.entries {
		if e.ID.Grade == grade {
			return true
		}
	}
	return false
}

func (t *Table) PoolFor(grade int) []models.StudentID {
	pool := make([]models.StudentID, 0)
	if t == nil {
		return pool
	}
	for _, e := range t.entries {
		if e.ID.Grade == grade {
			pool = append(pool, e.ID)
		}
	}
	return pool
}

func (t *Table) NameOf(id models.StudentID) (string, bool) {
	if t == nil {
		return "", false
	}
	i, ok := t.index[id]
	if !ok || t.entries[i].Name == "" {
		return "", false
	}
	return t.entries[i].Name, true
}

// Classes summarizes the table per class.
func (t *Table) Classes() []models.Clazz {
	counts := make(map[string]int)
	order := make([]string, 0)
	for _, e := range t.Entries() {
		if _, ok := counts[e.ClassID]; !ok {
			order = append(order, e.ClassID)
		}
		counts[e.ClassID]++
	}
	out := make([]models.Clazz, 0, len(order))
	for _, id := range order {
		out = append(out, models.Clazz{ID: id, Headcount: counts[id]})
	}
	return out
}

// Headcount derives identifiers from a fixed number of students per class.
// It has no display names.
type Headcount map[string]int

// DefaultHeadcount is the built-in class size table.
func DefaultHeadcount() Headcount {
	return Headcount{
		"1A": 27, "1B": 28, "1C": 29, "1D": 29,
		"2A": 33, "2B": 33, "2C": 33, "2D": 33,
		"3A": 33, "3B": 34, "3C": 33, "3D": 32,
		"4A": 26, "4B": 30, "4C": 23, "4D": 23,
		"5A": 28, "5B": 26, "5C": 17, "5D": 17,
		"6A": 28, "6B": 26, "6C": 22, "6D": 14,
	}
}

func (h Headcount) PoolFor(grade int) []models.StudentID {
	pool := make([]models.StudentID, 0)
	if !models.ValidGrade(grade) {
		return pool
	}
	for _, class := range models.Classes {
		size := h[models.ClassLabel(grade, class)]
		for seq := 1; seq <= size; seq++ {
			pool = append(pool, models.StudentID{Grade: grade, Class: class, Seq: seq})
		}
	}
	return pool
}

func (h Headcount) NameOf(models.StudentID) (string, bool) {
	return "", false
}

// Selector picks, per grade, either the imported table or the headcount
// fallback, never a mix of both. The imported table is replaced atomically.
type Selector struct {
	imported atomic.Pointer[Table]
	fallback Provider
}

func NewSelector(fallback Provider) *Selector {
	if fallback == nil {
		fallback = Headcount{}
	}
	return &Selector{fallback: fallback}
}

// Use installs a new imported table. A nil table clears the import.
func (s *Selector) Use(t *Table) {
	s.imported.Store(t)
}

// Imported returns the active imported table, or nil.
func (s *Selector) Imported() *Table {
	return s.imported.Load()
}

func (s *Selector) PoolFor(grade int) []models.StudentID {
	if t := s.imported.Load(); t.HasGrade(grade) {
		return t.PoolFor(grade)
	}
	return s.fallback.PoolFor(grade)
}

func (s *Selector) NameOf(id models.StudentID) (string, bool) {
	if t := s.imported.Load(); t.HasGrade(id.Grade) {
		return t.NameOf(id)
	}
	return s.fallback.NameOf(id)
}
