// Package draw selects winners from the eligible pool of a grade.
//
// Every selection function only computes a result. Recording it is a
// separate step (Commit) so a caller can reveal the outcome first.
package draw

import (
	"math/rand/v2"
	"sync"
	"time"

	"lottery-server-go/models"
	"lottery-server-go/roster"
	"lottery-server-go/stage"
)

// Ledger is the part of the winner ledger the engine needs.
type Ledger interface {
	Has(id models.StudentID) bool
	RecordAll(stage models.StageID, ids ...models.StudentID)
}

// ClassOutcome is the result of one class in a per-class draw.
type ClassOutcome struct {
	Class  byte
	Winner models.StudentID
	Err    error
}

// Outcome is the computed result of one draw for a grade.
type Outcome struct {
	Grade   int
	Stage   stage.Descriptor
	Winners []models.StudentID
	// Classes is only set for per-class draws.
	Classes []ClassOutcome
}

// GradeOutcome is one grade of a backup batch.
type GradeOutcome struct {
	Grade   int
	Winners []models.StudentID
	Classes []ClassOutcome
	Err     error
}

// Engine computes eligible pools and draws uniformly from them.
type Engine struct {
	roster roster.Provider
	ledger Ledger

	mu  sync.Mutex
	rng *rand.Rand
}

type Option func(*Engine)

// WithRand replaces the random source, e.g. with a seeded one in tests.
func WithRand(r *rand.Rand) Option {
	return func(e *Engine) {
		e.rng = r
	}
}

func NewEngine(p roster.Provider, l Ledger, opts ...Option) *Engine {
	seed := uint64(time.Now().UnixNano())
	e := &Engine{
		roster: p,
		ledger: l,
		rng:    rand.New(rand.NewPCG(seed, rand.Uint64())),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// EligiblePool returns the roster of grade without recorded winners and
// without excluded identifiers, in roster order.
func (e *Engine) EligiblePool(grade int, excl *Exclusion) []models.StudentID {
	return e.filter(e.roster.PoolFor(grade), func(models.StudentID) bool { return true }, excl)
}

// ClassPool is EligiblePool restricted to one class.
func (e *Engine) ClassPool(grade int, class byte, excl *Exclusion) []models.StudentID {
	return e.filter(e.roster.PoolFor(grade), func(id models.StudentID) bool { return id.Class == class }, excl)
}

func (e *Engine) filter(all []models.StudentID, keep func(models.StudentID) bool, excl *Exclusion) []models.StudentID {
	pool := make([]models.StudentID, 0, len(all))
	for _, id := range all {
		if !keep(id) || e.ledger.Has(id) || excl.Has(id) {
			continue
		}
		pool = append(pool, id)
	}
	return pool
}

// shuffled returns a uniformly permuted copy of pool.
func (e *Engine) shuffled(pool []models.StudentID) []models.StudentID {
	out := append([]models.StudentID(nil), pool...)
	e.mu.Lock()
	e.rng.Shuffle(len(out), func(i, j int) {
		out[i], out[j] = out[j], out[i]
	})
	e.mu.Unlock()
	return out
}

func (e *Engine) intN(n int) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rng.IntN(n)
}

// Single draws n distinct winners from the whole grade.
func (e *Engine) Single(grade, n int, excl *Exclusion) ([]models.StudentID, error) {
	if n < 1 {
		n = 1
	}
	pool := e.EligiblePool(grade, excl)
	if len(pool) < n {
		return nil, &InsufficientPoolError{Grade: grade, Available: len(pool), Required: n}
	}
	return e.shuffled(pool)[:n], nil
}

// Paired draws two winners from different classes. It fails as a whole when
// no candidate outside the first winner's class remains.
func (e *Engine) Paired(grade int, excl *Exclusion) ([2]models.StudentID, error) {
	var pair [2]models.StudentID
	pool := e.EligiblePool(grade, excl)
	if len(pool) < 2 {
		return pair, &InsufficientPoolError{Grade: grade, Available: len(pool), Required: 2}
	}
	pool = e.shuffled(pool)
	first := pool[0]

	candidates := make([]models.StudentID, 0, len(pool))
	for _, id := range pool {
		if id.Class != first.Class {
			candidates = append(candidates, id)
		}
	}
	if len(candidates) == 0 {
		return pair, &NoDistinctClassError{Class: first.ClassLabel()}
	}
	pair[0] = first
	pair[1] = candidates[e.intN(len(candidates))]
	return pair, nil
}

// SingleInClass draws one winner from a single class. It never falls back to
// another class.
func (e *Engine) SingleInClass(grade int, class byte, excl *Exclusion) (models.StudentID, error) {
	pool := e.ClassPool(grade, class, excl)
	if len(pool) == 0 {
		return models.StudentID{}, &InsufficientPoolError{Grade: grade, Class: class, Available: 0, Required: 1}
	}
	return pool[e.intN(len(pool))], nil
}

// PerClass runs an independent single-winner draw for every class of grade.
// A class without eligible students fails on its own.
func (e *Engine) PerClass(grade int, excl *Exclusion) []ClassOutcome {
	out := make([]ClassOutcome, 0, len(models.Classes))
	for _, class := range models.Classes {
		winner, err := e.SingleInClass(grade, class, excl)
		out = append(out, ClassOutcome{Class: class, Winner: winner, Err: err})
	}
	return out
}

// PickClass selects a class letter uniformly, regardless of who is left.
func (e *Engine) PickClass() byte {
	return models.Classes[e.intN(len(models.Classes))]
}

// Draw applies the stage's constraint to grade.
func (e *Engine) Draw(grade int, d stage.Descriptor, excl *Exclusion) (Outcome, error) {
	out := Outcome{Grade: grade, Stage: d}
	switch d.Constraint {
	case stage.DistinctClassPairs:
		pair, err := e.Paired(grade, excl)
		if err != nil {
			return out, err
		}
		out.Winners = pair[:]
	case stage.PerClass:
		out.Classes = e.PerClass(grade, excl)
		for _, c := range out.Classes {
			if c.Err == nil {
				out.Winners = append(out.Winners, c.Winner)
			}
		}
		if len(out.Winners) == 0 {
			return out, &InsufficientPoolError{Grade: grade, Available: 0, Required: 1}
		}
	default:
		winners, err := e.Single(grade, d.Required(), excl)
		if err != nil {
			return out, err
		}
		out.Winners = winners
	}
	return out, nil
}

// Backup draws the stage's winners for every grade, skipping identifiers in
// excl, and adds every pick to excl. A shortage in one grade is reported in
// that grade's outcome and does not stop the batch.
func (e *Engine) Backup(d stage.Descriptor, excl *Exclusion) []GradeOutcome {
	results := make([]GradeOutcome, 0, models.MaxGrade)
	for g := models.MinGrade; g <= models.MaxGrade; g++ {
		o, err := e.Draw(g, d, excl)
		results = append(results, GradeOutcome{Grade: g, Winners: o.Winners, Classes: o.Classes, Err: err})
		if err == nil {
			excl.Add(o.Winners...)
		}
	}
	return results
}

// Commit records winners under stageID.
func (e *Engine) Commit(stageID models.StageID, winners ...models.StudentID) {
	e.ledger.RecordAll(stageID, winners...)
}

// Decoy returns a random identifier of grade for cosmetic reveal frames.
func (e *Engine) Decoy(grade int) models.StudentID {
	pool := e.roster.PoolFor(grade)
	if len(pool) > 0 {
		return pool[e.intN(len(pool))]
	}
	if !models.ValidGrade(grade) {
		grade = models.MinGrade
	}
	return models.StudentID{Grade: grade, Class: e.PickClass(), Seq: e.intN(30) + 1}
}
