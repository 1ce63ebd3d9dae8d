package models

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
)

const (
	MinGrade = 1
	MaxGrade = 6
)

// Classes lists the class letters of every grade, in display order.
var Classes = []byte{'A', 'B', 'C', 'D'}

var studentIDPattern = regexp.MustCompile(`^([1-6])([A-D])-(\d{2,})$`)

// StudentID identifies one student by grade, class letter and seat number.
// Its canonical form is "<grade><class>-<seq:2-digit>", e.g. "1A-07".
type StudentID struct {
	Grade int
	Class byte
	Seq   int
}

// NewStudentID builds an identifier, validating every component.
func NewStudentID(grade int, class byte, seq int) (StudentID, error) {
	if !ValidGrade(grade) {
		return StudentID{}, fmt.Errorf("invalid grade %d", grade)
	}
	if !ValidClass(class) {
		return StudentID{}, fmt.Errorf("invalid class %q", class)
	}
	if seq < 1 {
		return StudentID{}, fmt.Errorf("invalid seat number %d", seq)
	}
	return StudentID{Grade: grade, Class: class, Seq: seq}, nil
}

// ParseStudentID parses the canonical string form.
func ParseStudentID(s string) (StudentID, error) {
	m := studentIDPattern.FindStringSubmatch(s)
	if m == nil {
		return StudentID{}, fmt.Errorf("invalid student id %q", s)
	}
	grade, _ := strconv.Atoi(m[1])
	seq, err := strconv.Atoi(m[3])
	if err != nil {
		return StudentID{}, fmt.Errorf("invalid student id %q: %w", s, err)
	}
	return NewStudentID(grade, m[2][0], seq)
}

func (id StudentID) String() string {
	return fmt.Sprintf("%d%c-%02d", id.Grade, id.Class, id.Seq)
}

// ClassLabel returns the grade and class part, e.g. "1A".
func (id StudentID) ClassLabel() string {
	return ClassLabel(id.Grade, id.Class)
}

func (id StudentID) IsZero() bool {
	return id == StudentID{}
}

func (id StudentID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

func (id *StudentID) UnmarshalText(b []byte) error {
	parsed, err := ParseStudentID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// ClassLabel formats a grade and class letter, e.g. "3B".
func ClassLabel(grade int, class byte) string {
	return fmt.Sprintf("%d%c", grade, class)
}

func ValidGrade(grade int) bool {
	return grade >= MinGrade && grade <= MaxGrade
}

func ValidClass(class byte) bool {
	for _, c := range Classes {
		if c == class {
			return true
		}
	}
	return false
}

// Clazz represents a class
type Clazz struct {
	ID        string `json:"id"`        // Class label, e.g. "1A"
	Headcount int    `json:"headcount"` // Number of students on the roster
}

// Student represents a student
type Student struct {
	ID      StudentID `json:"id"`             // Canonical student id
	Name    string    `json:"name,omitempty"` // Display name, empty when unknown
	ClassID string    `json:"classId"`        // Class label the student belongs to
}

// StageID identifies a prize stage.
type StageID int

// Snapshot is the full ledger state exchanged with the shared store.
type Snapshot struct {
	List   []StudentID           `json:"list"`
	Stages map[StudentID]StageID `json:"stages"`
}

// Contains reports whether id is part of the snapshot.
func (s Snapshot) Contains(id StudentID) bool {
	_, ok := s.Stages[id]
	return ok
}

// Normalize returns a copy where list and stage keys describe the same set.
// Listed ids without a stage get stage 0; staged ids missing from the list are
// appended.
func (s Snapshot) Normalize() Snapshot {
	out := Snapshot{
		List:   make([]StudentID, 0, len(s.List)),
		Stages: make(map[StudentID]StageID, len(s.List)),
	}
	for _, id := range s.List {
		if _, dup := out.Stages[id]; dup {
			continue
		}
		out.List = append(out.List, id)
		out.Stages[id] = s.Stages[id]
	}
	extra := make([]StudentID, 0)
	for id := range s.Stages {
		if _, ok := out.Stages[id]; !ok {
			extra = append(extra, id)
		}
	}
	SortStudentIDs(extra)
	for _, id := range extra {
		out.List = append(out.List, id)
		out.Stages[id] = s.Stages[id]
	}
	return out
}

// StagePair is one (identifier, stage) entry of the persisted state. It is
// encoded as a two element JSON array.
type StagePair struct {
	ID    StudentID
	Stage StageID
}

func (p StagePair) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]any{p.ID.String(), int(p.Stage)})
}

func (p *StagePair) UnmarshalJSON(b []byte) error {
	var raw [2]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return fmt.Errorf("stage pair: %w", err)
	}
	var id StudentID
	if err := json.Unmarshal(raw[0], &id); err != nil {
		return fmt.Errorf("stage pair id: %w", err)
	}
	var stage int
	if err := json.Unmarshal(raw[1], &stage); err != nil {
		return fmt.Errorf("stage pair stage: %w", err)
	}
	p.ID = id
	p.Stage = StageID(stage)
	return nil
}

// PersistedState is the locally saved lottery state.
type PersistedState struct {
	Winners      []StudentID `json:"winners"`
	WinnerStages []StagePair `json:"winnerStages"`
	CurrentStage StageID     `json:"currentStage"`
}

// NewPersistedState captures a ledger snapshot and the active stage.
func NewPersistedState(snap Snapshot, current StageID) PersistedState {
	st := PersistedState{
		Winners:      make([]StudentID, 0, len(snap.List)),
		WinnerStages: make([]StagePair, 0, len(snap.List)),
		CurrentStage: current,
	}
	for _, id := range snap.List {
		st.Winners = append(st.Winners, id)
		st.WinnerStages = append(st.WinnerStages, StagePair{ID: id, Stage: snap.Stages[id]})
	}
	return st
}

// Snapshot rebuilds the ledger snapshot described by the state.
func (st PersistedState) Snapshot() Snapshot {
	snap := Snapshot{
		List:   append([]StudentID(nil), st.Winners...),
		Stages: make(map[StudentID]StageID, len(st.WinnerStages)),
	}
	for _, p := range st.WinnerStages {
		snap.Stages[p.ID] = p.Stage
	}
	return snap.Normalize()
}
