// Package lottery runs a draw session: it holds the selected stage and grade,
// exposes the draw triggers, paces reveals and keeps local and shared copies
// of the winner ledger up to date.
package lottery

import (
	"context"
	"fmt"
	"log"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"lottery-server-go/draw"
	"lottery-server-go/ledger"
	"lottery-server-go/models"
	"lottery-server-go/roster"
	"lottery-server-go/stage"
)

// Trigger names a user-facing action that starts a draw.
type Trigger string

const (
	TriggerDraw            Trigger = "draw"
	TriggerClassThenNumber Trigger = "classThenNumber"
	TriggerReplacement     Trigger = "replacement"
	TriggerBackup          Trigger = "backup"
	TriggerReset           Trigger = "reset"
)

// StateStore persists the ledger and roster locally.
type StateStore interface {
	SaveState(ctx context.Context, st models.PersistedState) error
	LoadState(ctx context.Context) (models.PersistedState, bool, error)
	ClearState(ctx context.Context) error
	SaveRoster(ctx context.Context, students []models.Student) error
	LoadRoster(ctx context.Context) ([]models.Student, error)
}

// Syncer mirrors state to the shared store.
type Syncer interface {
	PushSnapshot(snap models.Snapshot) error
	FetchSnapshot() (models.Snapshot, bool, error)
	RemoveSnapshot() error
	SaveRoster(students []models.Student) error
}

// Options configures a Lottery. Zero values disable the matching feature.
type Options struct {
	Policy    stage.Policy
	Fallback  roster.Provider
	Store     StateStore
	Sync      Syncer
	Presenter Presenter
	Rand      *rand.Rand

	RevealInterval            time.Duration
	RevealDuration            time.Duration
	ReplacementRevealDuration time.Duration
	BackupRevealDuration      time.Duration

	// RecordBackups writes backup batch picks into the ledger.
	RecordBackups bool
}

// Lottery is the explicit session context shared by every trigger.
type Lottery struct {
	opts      Options
	policy    stage.Policy
	roster    *roster.Selector
	ledger    *ledger.Ledger
	engine    *draw.Engine
	exclusion *draw.Exclusion
	pacer     *Pacer

	current atomic.Int64

	mu           sync.Mutex
	grade        int
	pendingClass byte
	running      Trigger
}

// New builds a session with an empty ledger.
func New(opts Options) *Lottery {
	if opts.Policy.Name() == "" {
		opts.Policy = stage.Classic()
	}
	if opts.Fallback == nil {
		opts.Fallback = roster.DefaultHeadcount()
	}
	l := &Lottery{
		opts:      opts,
		policy:    opts.Policy,
		roster:    roster.NewSelector(opts.Fallback),
		ledger:    ledger.New(),
		exclusion: draw.NewExclusion(),
		pacer:     &Pacer{Interval: opts.RevealInterval, Presenter: opts.Presenter},
	}
	var engineOpts []draw.Option
	if opts.Rand != nil {
		engineOpts = append(engineOpts, draw.WithRand(opts.Rand))
	}
	l.engine = draw.NewEngine(l.roster, l.ledger, engineOpts...)
	l.current.Store(int64(l.policy.Default()))
	l.ledger.Subscribe(l.onLedgerChange)
	return l
}

func (l *Lottery) Ledger() *ledger.Ledger { return l.ledger }

func (l *Lottery) Policy() stage.Policy { return l.policy }

func (l *Lottery) CurrentStage() models.StageID {
	return models.StageID(l.current.Load())
}

// --- Selection ---

// SelectStage changes the active stage. Recorded winners keep their stage.
func (l *Lottery) SelectStage(ctx context.Context, id models.StageID) (stage.Descriptor, error) {
	d, ok := l.policy.Lookup(id)
	if !ok {
		return stage.Descriptor{}, fmt.Errorf("%w: %d", ErrUnknownStage, id)
	}
	l.current.Store(int64(id))
	l.persist(ctx, l.ledger.Snapshot())
	return d, nil
}

// SelectGrade chooses the grade later draws use. Changing grade forgets a
// class chosen by step 1 of a class-then-number draw.
func (l *Lottery) SelectGrade(grade int) error {
	if !models.ValidGrade(grade) {
		return fmt.Errorf("%w: %d", ErrInvalidGrade, grade)
	}
	l.mu.Lock()
	if l.grade != grade {
		l.pendingClass = 0
	}
	l.grade = grade
	l.mu.Unlock()
	return nil
}

func (l *Lottery) selection() (stage.Descriptor, int, error) {
	l.mu.Lock()
	grade := l.grade
	l.mu.Unlock()
	if grade == 0 {
		return stage.Descriptor{}, 0, &MissingSelectionError{What: "grade"}
	}
	d, ok := l.policy.Lookup(l.CurrentStage())
	if !ok {
		return stage.Descriptor{}, 0, &MissingSelectionError{What: "stage"}
	}
	return d, grade, nil
}

// --- Single flight ---

func (l *Lottery) begin(t Trigger) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.running != "" {
		return &BusyError{Running: l.running}
	}
	l.running = t
	return nil
}

func (l *Lottery) end() {
	l.mu.Lock()
	l.running = ""
	l.mu.Unlock()
}

// --- Draw triggers ---

// Draw runs one draw of the active stage for the selected grade.
func (l *Lottery) Draw(ctx context.Context) (DrawResult, error) {
	d, _, err := l.selection()
	if err != nil {
		return DrawResult{}, err
	}
	switch d.Constraint {
	case stage.DistinctClassPairs:
		return l.DrawPaired(ctx)
	case stage.PerClass:
		return l.DrawPerClass(ctx)
	}

	if err := l.begin(TriggerDraw); err != nil {
		return DrawResult{}, err
	}
	defer l.end()

	d, grade, err := l.selection()
	if err != nil {
		return DrawResult{}, err
	}
	winners, err := l.engine.Single(grade, d.Required(), nil)
	if err != nil {
		return DrawResult{}, err
	}
	res := l.newResult(TriggerDraw, d.ID, grade, winners)
	l.play(ctx, res, l.opts.RevealDuration, l.gradeDecoy(grade))
	l.engine.Commit(d.ID, winners...)
	return res, nil
}

// DrawPaired draws two winners from different classes of the selected grade
// under the active stage.
func (l *Lottery) DrawPaired(ctx context.Context) (DrawResult, error) {
	if err := l.begin(TriggerDraw); err != nil {
		return DrawResult{}, err
	}
	defer l.end()

	d, grade, err := l.selection()
	if err != nil {
		return DrawResult{}, err
	}
	pair, err := l.engine.Paired(grade, nil)
	if err != nil {
		return DrawResult{}, err
	}
	res := l.newResult(TriggerDraw, d.ID, grade, pair[:])
	l.play(ctx, res, l.opts.RevealDuration, l.gradeDecoy(grade))
	l.engine.Commit(d.ID, pair[:]...)
	return res, nil
}

// DrawPerClass draws one winner in every class of the selected grade. Classes
// without eligible students are reported in the result and do not stop the
// other classes.
func (l *Lottery) DrawPerClass(ctx context.Context) (DrawResult, error) {
	if err := l.begin(TriggerDraw); err != nil {
		return DrawResult{}, err
	}
	defer l.end()

	d, grade, err := l.selection()
	if err != nil {
		return DrawResult{}, err
	}
	outcomes := l.engine.PerClass(grade, nil)
	winners := make([]models.StudentID, 0, len(outcomes))
	for _, o := range outcomes {
		if o.Err == nil {
			winners = append(winners, o.Winner)
		}
	}
	if len(winners) == 0 {
		return DrawResult{}, &draw.InsufficientPoolError{Grade: grade, Available: 0, Required: 1}
	}

	res := l.newResult(TriggerDraw, d.ID, grade, winners)
	res.Classes = l.classResults(d.ID, outcomes)
	l.play(ctx, res, l.opts.RevealDuration, l.gradeDecoy(grade))
	for _, w := range winners {
		l.engine.Commit(d.ID, w)
	}
	return res, nil
}

// DrawClassThenNumber runs one step of the two step draw. Step 1 picks a
// class of the selected grade uniformly; step 2 draws a winner from that
// class and fails if nobody in it is eligible.
func (l *Lottery) DrawClassThenNumber(ctx context.Context, step int) (DrawResult, error) {
	if step != 1 && step != 2 {
		return DrawResult{}, fmt.Errorf("%w: %d", ErrInvalidStep, step)
	}
	if err := l.begin(TriggerClassThenNumber); err != nil {
		return DrawResult{}, err
	}
	defer l.end()

	d, grade, err := l.selection()
	if err != nil {
		return DrawResult{}, err
	}

	if step == 1 {
		class := l.engine.PickClass()
		l.mu.Lock()
		l.pendingClass = class
		l.mu.Unlock()

		label := models.ClassLabel(grade, class)
		res := DrawResult{
			ID:      uuid.NewString(),
			Trigger: TriggerClassThenNumber,
			Stage:   d.ID,
			Grade:   grade,
			Step:    1,
			Class:   label,
			Winners: []Winner{},
		}
		_ = l.pacer.Play(context.WithoutCancel(ctx), reveal{
			drawID:  res.ID,
			trigger: res.Trigger,
			grade:   grade,
			final:   []Slot{{Value: label}},
			decoy:   func() string { return models.ClassLabel(grade, l.engine.PickClass()) },
		}, l.opts.RevealDuration)
		return res, nil
	}

	l.mu.Lock()
	class := l.pendingClass
	l.mu.Unlock()
	if class == 0 {
		return DrawResult{}, &MissingSelectionError{What: "class"}
	}
	winner, err := l.engine.SingleInClass(grade, class, nil)
	if err != nil {
		return DrawResult{}, err
	}
	res := l.newResult(TriggerClassThenNumber, d.ID, grade, []models.StudentID{winner})
	res.Step = 2
	res.Class = models.ClassLabel(grade, class)
	l.play(ctx, res, l.opts.RevealDuration, func() string {
		return models.StudentID{Grade: grade, Class: class, Seq: l.engine.Decoy(grade).Seq}.String()
	})
	l.engine.Commit(d.ID, winner)

	l.mu.Lock()
	l.pendingClass = 0
	l.mu.Unlock()
	return res, nil
}

// DrawReplacement draws one extra winner of grade for the given stage,
// skipping identifiers already picked by backup or replacement draws this
// session.
func (l *Lottery) DrawReplacement(ctx context.Context, stageID models.StageID, grade int) (DrawResult, error) {
	if stageID == 0 {
		return DrawResult{}, &MissingSelectionError{What: "stage"}
	}
	if grade == 0 {
		return DrawResult{}, &MissingSelectionError{What: "grade"}
	}
	if _, ok := l.policy.Lookup(stageID); !ok {
		return DrawResult{}, fmt.Errorf("%w: %d", ErrUnknownStage, stageID)
	}
	if !models.ValidGrade(grade) {
		return DrawResult{}, fmt.Errorf("%w: %d", ErrInvalidGrade, grade)
	}
	if err := l.begin(TriggerReplacement); err != nil {
		return DrawResult{}, err
	}
	defer l.end()

	winners, err := l.engine.Single(grade, 1, l.exclusion)
	if err != nil {
		return DrawResult{}, err
	}
	l.exclusion.Add(winners...)
	res := l.newResult(TriggerReplacement, stageID, grade, winners)
	l.play(ctx, res, l.opts.ReplacementRevealDuration, l.gradeDecoy(grade))
	l.engine.Commit(stageID, winners...)
	return res, nil
}

// RunBackupBatch draws backup winners of a stage for every grade. Picks are
// excluded from later backup and replacement draws in this session.
func (l *Lottery) RunBackupBatch(ctx context.Context, stageID models.StageID) (BackupResult, error) {
	if stageID == 0 {
		return BackupResult{}, &MissingSelectionError{What: "stage"}
	}
	d, ok := l.policy.Lookup(stageID)
	if !ok {
		return BackupResult{}, fmt.Errorf("%w: %d", ErrUnknownStage, stageID)
	}
	if err := l.begin(TriggerBackup); err != nil {
		return BackupResult{}, err
	}
	defer l.end()

	outcomes := l.engine.Backup(d, l.exclusion)
	res := BackupResult{
		ID:       uuid.NewString(),
		Stage:    d.ID,
		Recorded: l.opts.RecordBackups,
		Grades:   make([]BackupGrade, 0, len(outcomes)),
	}
	all := make([]models.StudentID, 0)
	final := make([]Slot, 0)
	for _, o := range outcomes {
		g := BackupGrade{Grade: o.Grade, Winners: l.winners(d.ID, o.Winners)}
		if o.Classes != nil {
			g.Classes = l.classResults(d.ID, o.Classes)
		}
		if o.Err != nil {
			g.Code, g.Error = Classify(o.Err)
		}
		for _, w := range g.Winners {
			final = append(final, Slot{Value: w.ID.String(), Name: w.Name})
		}
		all = append(all, o.Winners...)
		res.Grades = append(res.Grades, g)
	}

	_ = l.pacer.Play(context.WithoutCancel(ctx), reveal{
		drawID:  res.ID,
		trigger: TriggerBackup,
		final:   final,
		decoy:   func() string { return l.engine.Decoy(rand.IntN(models.MaxGrade) + 1).String() },
	}, l.opts.BackupRevealDuration)

	if l.opts.RecordBackups && len(all) > 0 {
		l.engine.Commit(d.ID, all...)
	}
	log.Printf("Backup batch %s for stage %d picked %d students", res.ID, d.ID, len(all))
	return res, nil
}

// --- Ledger edits ---

// DeleteWinner removes a recorded winner; the student becomes eligible again.
func (l *Lottery) DeleteWinner(id models.StudentID) error {
	if !l.ledger.Remove(id) {
		return fmt.Errorf("%w: %s", ErrUnknownWinner, id)
	}
	return nil
}

// ResetAll clears every winner and the session exclusion set. The roster
// stays loaded.
func (l *Lottery) ResetAll(ctx context.Context) error {
	if err := l.begin(TriggerReset); err != nil {
		return err
	}
	defer l.end()

	l.mu.Lock()
	l.pendingClass = 0
	l.mu.Unlock()
	l.exclusion.Reset()

	if l.opts.Store != nil {
		if err := l.opts.Store.ClearState(ctx); err != nil {
			log.Printf("Error clearing local state: %v", err)
		}
	}
	l.ledger.Clear()
	return nil
}

// --- Helpers ---

func (l *Lottery) newResult(t Trigger, stageID models.StageID, grade int, ids []models.StudentID) DrawResult {
	return DrawResult{
		ID:      uuid.NewString(),
		Trigger: t,
		Stage:   stageID,
		Grade:   grade,
		Winners: l.winners(stageID, ids),
	}
}

// play reveals res; the reveal runs to completion even if ctx is canceled so
// the result is always recorded afterwards.
func (l *Lottery) play(ctx context.Context, res DrawResult, duration time.Duration, decoy func() string) {
	final := make([]Slot, 0, len(res.Winners))
	for _, w := range res.Winners {
		final = append(final, Slot{Value: w.ID.String(), Name: w.Name})
	}
	_ = l.pacer.Play(context.WithoutCancel(ctx), reveal{
		drawID:  res.ID,
		trigger: res.Trigger,
		grade:   res.Grade,
		final:   final,
		decoy:   decoy,
	}, duration)
}

func (l *Lottery) gradeDecoy(grade int) func() string {
	return func() string { return l.engine.Decoy(grade).String() }
}
