package lottery

import (
	"errors"

	"lottery-server-go/draw"
	"lottery-server-go/models"
	"lottery-server-go/roster"
)

// Winner is a recorded or freshly drawn winner with display details.
type Winner struct {
	ID        models.StudentID `json:"id"`
	ClassID   string           `json:"classId"`
	Seq       int              `json:"seq"`
	Name      string           `json:"name,omitempty"`
	Stage     models.StageID   `json:"stage"`
	StageName string           `json:"stageName"`
}

// ClassResult is one class of a per-class draw.
type ClassResult struct {
	Class  string  `json:"class"`
	Winner *Winner `json:"winner,omitempty"`
	Code   string  `json:"code,omitempty"`
	Error  string  `json:"error,omitempty"`
}

// DrawResult is returned by every single-grade trigger.
type DrawResult struct {
	ID      string         `json:"id"`
	Trigger Trigger        `json:"trigger"`
	Stage   models.StageID `json:"stage"`
	Grade   int            `json:"grade"`
	Step    int            `json:"step,omitempty"`
	Class   string         `json:"class,omitempty"`
	Winners []Winner       `json:"winners"`
	Classes []ClassResult  `json:"classes,omitempty"`
}

// BackupGrade is one grade of a backup batch.
type BackupGrade struct {
	Grade   int           `json:"grade"`
	Winners []Winner      `json:"winners"`
	Classes []ClassResult `json:"classes,omitempty"`
	Code    string        `json:"code,omitempty"`
	Error   string        `json:"error,omitempty"`
}

// BackupResult lists the backup picks of all grades.
type BackupResult struct {
	ID       string         `json:"id"`
	Stage    models.StageID `json:"stage"`
	Recorded bool           `json:"recorded"`
	Grades   []BackupGrade  `json:"grades"`
}

// Error codes shared with API clients.
const (
	CodeMissingSelection = "missing_selection"
	CodeInsufficientPool = "insufficient_pool"
	CodeNoDistinctClass  = "no_distinct_class"
	CodeImportFormat     = "import_format"
	CodeDrawInProgress   = "draw_in_progress"
	CodeUnknownStage     = "unknown_stage"
	CodeInvalidGrade     = "invalid_grade"
	CodeInvalidStep      = "invalid_step"
	CodeUnknownWinner    = "unknown_winner"
	CodeInternal         = "internal"
)

// Classify maps an error from this package or its collaborators to a stable
// code and a message.
func Classify(err error) (code, msg string) {
	if err == nil {
		return "", ""
	}
	msg = err.Error()
	switch {
	case errors.Is(err, ErrMissingSelection):
		code = CodeMissingSelection
	case errors.Is(err, ErrDrawInProgress):
		code = CodeDrawInProgress
	case errors.Is(err, ErrUnknownStage):
		code = CodeUnknownStage
	case errors.Is(err, ErrInvalidGrade):
		code = CodeInvalidGrade
	case errors.Is(err, ErrInvalidStep):
		code = CodeInvalidStep
	case errors.Is(err, ErrUnknownWinner):
		code = CodeUnknownWinner
	case roster.IsImportFormat(err):
		code = CodeImportFormat
	default:
		if _, ok := draw.IsInsufficientPool(err); ok {
			code = CodeInsufficientPool
		} else if _, ok := draw.IsNoDistinctClass(err); ok {
			code = CodeNoDistinctClass
		} else {
			code = CodeInternal
		}
	}
	return code, msg
}

func (l *Lottery) winner(id models.StudentID, stageID models.StageID) Winner {
	name, _ := l.roster.NameOf(id)
	return Winner{
		ID:        id,
		ClassID:   id.ClassLabel(),
		Seq:       id.Seq,
		Name:      name,
		Stage:     stageID,
		StageName: l.policy.NameOf(stageID),
	}
}

func (l *Lottery) winners(stageID models.StageID, ids []models.StudentID) []Winner {
	out := make([]Winner, 0, len(ids))
	for _, id := range ids {
		out = append(out, l.winner(id, stageID))
	}
	return out
}

func (l *Lottery) classResults(stageID models.StageID, outcomes []draw.ClassOutcome) []ClassResult {
	out := make([]ClassResult, 0, len(outcomes))
	for _, o := range outcomes {
		cr := ClassResult{Class: string(o.Class)}
		if o.Err != nil {
			cr.Code, cr.Error = Classify(o.Err)
		} else {
			w := l.winner(o.Winner, stageID)
			cr.Winner = &w
		}
		out = append(out, cr)
	}
	return out
}

// Winners lists recorded winners, newest first.
func (l *Lottery) Winners() []Winner {
	return l.winnerList(l.ledger.Snapshot())
}

func (l *Lottery) winnerList(snap models.Snapshot) []Winner {
	out := make([]Winner, 0, len(snap.List))
	for i := len(snap.List) - 1; i >= 0; i-- {
		id := snap.List[i]
		out = append(out, l.winner(id, snap.Stages[id]))
	}
	return out
}

// PoolView describes the current pool of a grade.
type PoolView struct {
	Grade    int                `json:"grade"`
	Imported bool               `json:"imported"`
	Total    int                `json:"total"`
	Eligible []models.StudentID `json:"eligible"`
}

// Pool reports the roster size and the eligible identifiers of grade.
func (l *Lottery) Pool(grade int) (PoolView, error) {
	if !models.ValidGrade(grade) {
		return PoolView{}, ErrInvalidGrade
	}
	return PoolView{
		Grade:    grade,
		Imported: l.roster.Imported().HasGrade(grade),
		Total:    len(l.roster.PoolFor(grade)),
		Eligible: l.engine.EligiblePool(grade, nil),
	}, nil
}

// StateView summarizes the session for clients.
type StateView struct {
	Policy       string         `json:"policy"`
	CurrentStage models.StageID `json:"currentStage"`
	Grade        int            `json:"grade,omitempty"`
	PendingClass string         `json:"pendingClass,omitempty"`
	Running      Trigger        `json:"running,omitempty"`
	Winners      int            `json:"winners"`
	Excluded     int            `json:"excluded"`
	Imported     int            `json:"imported"`
}

func (l *Lottery) State() StateView {
	l.mu.Lock()
	v := StateView{
		Policy:       l.policy.Name(),
		CurrentStage: l.CurrentStage(),
		Grade:        l.grade,
		Running:      l.running,
	}
	if l.pendingClass != 0 {
		v.PendingClass = models.ClassLabel(l.grade, l.pendingClass)
	}
	l.mu.Unlock()
	v.Winners = l.ledger.Len()
	v.Excluded = l.exclusion.Len()
	v.Imported = l.roster.Imported().Len()
	return v
}

// Classes lists the classes of the imported roster with their headcounts.
// Grades served by the fallback table are not listed.
func (l *Lottery) Classes() []models.Clazz {
	return l.roster.Imported().Classes()
}
