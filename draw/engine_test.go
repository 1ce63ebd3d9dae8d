package draw

import (
	"math/rand/v2"
	"testing"

	"lottery-server-go/ledger"
	"lottery-server-go/models"
	"lottery-server-go/roster"
	"lottery-server-go/stage"
)

func mustID(t *testing.T, s string) models.StudentID {
	t.Helper()
	id, err := models.ParseStudentID(s)
	if err != nil {
		t.Fatalf("parse %q: %v", s, err)
	}
	return id
}

func newEngine(h roster.Headcount, seed uint64) (*Engine, *ledger.Ledger) {
	l := ledger.New()
	e := NewEngine(h, l, WithRand(rand.New(rand.NewPCG(seed, seed+1))))
	return e, l
}

func TestNoDuplicateWinnersUntilExhausted(t *testing.T) {
	e, l := newEngine(roster.Headcount{"2A": 5, "2B": 4, "2C": 3}, 7)
	seen := make(map[models.StudentID]bool)
	sizes := []int{len(e.EligiblePool(2, nil))}
	for {
		winners, err := e.Single(2, 1, nil)
		if err != nil {
			ip, ok := IsInsufficientPool(err)
			if !ok || ip.Available != 0 || ip.Grade != 2 {
				t.Fatalf("unexpected error %v", err)
			}
			break
		}
		w := winners[0]
		if seen[w] {
			t.Fatalf("%s drawn twice", w)
		}
		seen[w] = true
		e.Commit(stage.Grand, w)
		sizes = append(sizes, len(e.EligiblePool(2, nil)))
	}
	if len(seen) != 12 || l.Len() != 12 {
		t.Fatalf("drew %d winners, ledger has %d", len(seen), l.Len())
	}
	for i := 1; i < len(sizes); i++ {
		if sizes[i] > sizes[i-1] {
			t.Fatalf("pool grew from %d to %d", sizes[i-1], sizes[i])
		}
	}
}

func TestSingleWinnerScenario(t *testing.T) {
	e, _ := newEngine(roster.Headcount{"3A": 1}, 1)
	winners, err := e.Single(3, 1, nil)
	if err != nil {
		t.Fatalf("Single: %v", err)
	}
	if winners[0] != mustID(t, "3A-01") {
		t.Fatalf("winner = %s", winners[0])
	}
	e.Commit(stage.Grand, winners...)

	_, err = e.Single(3, 1, nil)
	ip, ok := IsInsufficientPool(err)
	if !ok {
		t.Fatalf("expected InsufficientPool, got %v", err)
	}
	if ip.Grade != 3 || ip.Available != 0 {
		t.Fatalf("error = %+v", ip)
	}
}

func TestPairedDrawsNeverShareClass(t *testing.T) {
	for seed := uint64(0); seed < 200; seed++ {
		e, _ := newEngine(roster.Headcount{"1A": 3, "1B": 2}, seed)
		pair, err := e.Paired(1, nil)
		if err != nil {
			t.Fatalf("seed %d: %v", seed, err)
		}
		if pair[0].Class == pair[1].Class {
			t.Fatalf("seed %d: paired %s and %s", seed, pair[0], pair[1])
		}
		if pair[0].Grade != 1 || pair[1].Grade != 1 {
			t.Fatalf("seed %d: wrong grade %v", seed, pair)
		}
	}
}

func TestPairedUntilExhaustion(t *testing.T) {
	e, l := newEngine(roster.Headcount{"4A": 4, "4B": 1, "4C": 1}, 3)
	for {
		pair, err := e.Paired(4, nil)
		if err != nil {
			if _, ok := IsNoDistinctClass(err); ok {
				break
			}
			if _, ok := IsInsufficientPool(err); ok {
				break
			}
			t.Fatalf("unexpected error %v", err)
		}
		if pair[0].Class == pair[1].Class {
			t.Fatalf("paired %v", pair)
		}
		e.Commit(stage.Second, pair[:]...)
	}
	snap := l.Snapshot()
	if len(snap.List)%2 != 0 {
		t.Fatalf("partial pair recorded: %v", snap.List)
	}
}

func TestPairedFailsAtomicallyWithSingleClass(t *testing.T) {
	e, l := newEngine(roster.Headcount{"5C": 3}, 9)
	_, err := e.Paired(5, nil)
	nd, ok := IsNoDistinctClass(err)
	if !ok {
		t.Fatalf("expected NoDistinctClass, got %v", err)
	}
	if nd.Class != "5C" {
		t.Fatalf("class = %s", nd.Class)
	}
	if l.Len() != 0 {
		t.Fatal("failed paired draw mutated the ledger")
	}

	e2, _ := newEngine(roster.Headcount{"5C": 1}, 9)
	_, err = e2.Paired(5, nil)
	if ip, ok := IsInsufficientPool(err); !ok || ip.Available != 1 || ip.Required != 2 {
		t.Fatalf("expected InsufficientPool(available=1), got %v", err)
	}
}

func TestDeletedWinnerBecomesEligibleAgain(t *testing.T) {
	e, l := newEngine(roster.Headcount{"2B": 4}, 5)
	target := mustID(t, "2B-04")
	l.RecordAll(stage.Grand, mustID(t, "2B-01"), mustID(t, "2B-02"), mustID(t, "2B-03"), target)
	if len(e.EligiblePool(2, nil)) != 0 {
		t.Fatal("pool should be empty")
	}
	l.Remove(target)
	winners, err := e.Single(2, 1, nil)
	if err != nil {
		t.Fatalf("Single: %v", err)
	}
	if winners[0] != target {
		t.Fatalf("winner = %s, want %s", winners[0], target)
	}
}

func TestSingleIsUniform(t *testing.T) {
	e, _ := newEngine(roster.Headcount{"6A": 2, "6B": 2}, 11)
	counts := make(map[models.StudentID]int)
	const rounds = 8000
	for i := 0; i < rounds; i++ {
		w, err := e.Single(6, 1, nil)
		if err != nil {
			t.Fatal(err)
		}
		counts[w[0]]++
	}
	if len(counts) != 4 {
		t.Fatalf("only %d distinct winners", len(counts))
	}
	for id, n := range counts {
		if n < rounds/4-300 || n > rounds/4+300 {
			t.Fatalf("%s drawn %d times out of %d", id, n, rounds)
		}
	}
}

func TestPerClassIsolatesEmptyClass(t *testing.T) {
	e, l := newEngine(roster.Headcount{"1A": 2, "1B": 1, "1D": 3}, 2)
	l.Record(mustID(t, "1B-01"), stage.Third)

	outcomes := e.PerClass(1, nil)
	if len(outcomes) != 4 {
		t.Fatalf("outcomes = %d", len(outcomes))
	}
	for _, o := range outcomes {
		switch o.Class {
		case 'A', 'D':
			if o.Err != nil || o.Winner.Class != o.Class {
				t.Fatalf("class %c: %+v", o.Class, o)
			}
		case 'B', 'C':
			ip, ok := IsInsufficientPool(o.Err)
			if !ok || ip.Class != o.Class || ip.Available != 0 {
				t.Fatalf("class %c: expected insufficient pool, got %v", o.Class, o.Err)
			}
		}
	}
}

func TestDrawPerClassStage(t *testing.T) {
	e, _ := newEngine(roster.Headcount{"2A": 1, "2C": 1}, 4)
	third, _ := stage.Extended().Lookup(stage.Third)
	out, err := e.Draw(2, third, nil)
	if err != nil {
		t.Fatalf("Draw: %v", err)
	}
	if len(out.Winners) != 2 || len(out.Classes) != 4 {
		t.Fatalf("outcome = %+v", out)
	}

	empty, _ := newEngine(roster.Headcount{}, 4)
	if _, err := empty.Draw(2, third, nil); err == nil {
		t.Fatal("expected an error when every class is empty")
	}
}

func TestSingleInClassDoesNotFallBack(t *testing.T) {
	e, _ := newEngine(roster.Headcount{"3A": 2}, 8)
	if _, err := e.SingleInClass(3, 'B', nil); err == nil {
		t.Fatal("expected failure for empty class")
	}
	w, err := e.SingleInClass(3, 'A', nil)
	if err != nil || w.Class != 'A' {
		t.Fatalf("winner %s, err %v", w, err)
	}
}

func TestPickClassCoversAllClasses(t *testing.T) {
	e, _ := newEngine(roster.Headcount{}, 21)
	seen := make(map[byte]bool)
	for i := 0; i < 200; i++ {
		seen[e.PickClass()] = true
	}
	for _, c := range models.Classes {
		if !seen[c] {
			t.Fatalf("class %c never picked", c)
		}
	}
}

func TestBackupBatchUsesExclusion(t *testing.T) {
	h := roster.Headcount{
		"1A": 1, "1B": 1,
		"2A": 3,
		"3A": 2, "3B": 2,
		"4A": 1, "4C": 1,
		"5A": 1, "5D": 1,
		"6B": 2, "6C": 2,
	}
	e, l := newEngine(h, 13)
	second, _ := stage.Classic().Lookup(stage.Second)
	excl := NewExclusion()

	first := e.Backup(second, excl)
	if len(first) != 6 {
		t.Fatalf("grades = %d", len(first))
	}
	for _, g := range first {
		switch g.Grade {
		case 2:
			if _, ok := IsNoDistinctClass(g.Err); !ok {
				t.Fatalf("grade 2: expected NoDistinctClass, got %v", g.Err)
			}
		default:
			if g.Err != nil || len(g.Winners) != 2 || g.Winners[0].Class == g.Winners[1].Class {
				t.Fatalf("grade %d: %+v", g.Grade, g)
			}
		}
	}
	if excl.Len() != 10 {
		t.Fatalf("exclusion has %d ids", excl.Len())
	}
	if l.Len() != 0 {
		t.Fatal("backup must not record by itself")
	}

	again := e.Backup(second, excl)
	for _, g := range again {
		switch g.Grade {
		case 3, 6:
			if g.Err != nil {
				t.Fatalf("grade %d second batch: %v", g.Grade, g.Err)
			}
			for _, w := range g.Winners {
				for _, prev := range first[g.Grade-1].Winners {
					if w == prev {
						t.Fatalf("grade %d repeated backup %s", g.Grade, w)
					}
				}
			}
		case 1, 4, 5:
			if ip, ok := IsInsufficientPool(g.Err); !ok || ip.Available != 0 {
				t.Fatalf("grade %d: expected empty pool, got %v", g.Grade, g.Err)
			}
		}
	}
}

func TestDecoyStaysInGrade(t *testing.T) {
	e, _ := newEngine(roster.Headcount{"2A": 3}, 1)
	for i := 0; i < 50; i++ {
		if d := e.Decoy(2); d.Grade != 2 {
			t.Fatalf("decoy %s", d)
		}
		if d := e.Decoy(5); d.Grade != 5 || d.Seq < 1 || d.Seq > 30 {
			t.Fatalf("synthesized decoy %s", d)
		}
	}
}
