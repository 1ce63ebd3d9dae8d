package ledger

import (
	"reflect"
	"sync"
	"testing"

	"lottery-server-go/models"
)

var (
	a = models.StudentID{Grade: 1, Class: 'A', Seq: 1}
	b = models.StudentID{Grade: 1, Class: 'B', Seq: 2}
	c = models.StudentID{Grade: 2, Class: 'C', Seq: 3}
)

func assertInvariant(t *testing.T, snap models.Snapshot) {
	t.Helper()
	if len(snap.List) != len(snap.Stages) {
		t.Fatalf("list has %d ids, stages has %d", len(snap.List), len(snap.Stages))
	}
	for _, id := range snap.List {
		if _, ok := snap.Stages[id]; !ok {
			t.Fatalf("%s listed without stage", id)
		}
	}
}

func TestRecordAndRemove(t *testing.T) {
	l := New()
	l.Record(a, 2)
	l.RecordAll(3, b, c)

	if !l.Has(a) || !l.Has(b) || !l.Has(c) {
		t.Fatal("recorded ids missing")
	}
	if s, _ := l.StageOf(b); s != 3 {
		t.Fatalf("stage of b = %d", s)
	}
	if !reflect.DeepEqual(l.Snapshot().List, []models.StudentID{a, b, c}) {
		t.Fatalf("order = %v", l.Snapshot().List)
	}

	if !l.Remove(b) {
		t.Fatal("Remove(b) reported absent")
	}
	if l.Has(b) {
		t.Fatal("b still present")
	}
	if l.Remove(b) {
		t.Fatal("second Remove(b) should be a no-op")
	}
	assertInvariant(t, l.Snapshot())
	if l.Len() != 2 {
		t.Fatalf("Len = %d", l.Len())
	}
}

func TestRecordOverwritesStageInPlace(t *testing.T) {
	l := New()
	l.Record(a, 2)
	l.Record(b, 2)
	l.Record(a, 5)
	snap := l.Snapshot()
	if !reflect.DeepEqual(snap.List, []models.StudentID{a, b}) {
		t.Fatalf("order = %v", snap.List)
	}
	if snap.Stages[a] != 5 {
		t.Fatalf("stage = %d", snap.Stages[a])
	}
}

func TestClear(t *testing.T) {
	l := New()
	l.RecordAll(1, a, b)
	l.Clear()
	if l.Len() != 0 || l.Has(a) {
		t.Fatal("ledger not empty after Clear")
	}
	assertInvariant(t, l.Snapshot())
}

func TestListenersSeeStateAfterMutation(t *testing.T) {
	l := New()
	var changes []Change
	l.Subscribe(func(ch Change) {
		if ch.Kind == Recorded && !l.Has(ch.IDs[0]) {
			t.Errorf("listener ran before mutation")
		}
		changes = append(changes, ch)
	})

	l.Record(a, 2)
	l.Remove(c)
	l.Remove(a)
	l.Clear()
	l.Replace(models.Snapshot{List: []models.StudentID{b}, Stages: map[models.StudentID]models.StageID{b: 3}}, Remote)

	kinds := make([]Kind, 0, len(changes))
	for _, ch := range changes {
		kinds = append(kinds, ch.Kind)
	}
	want := []Kind{Recorded, Removed, Cleared, Replaced}
	if !reflect.DeepEqual(kinds, want) {
		t.Fatalf("kinds = %v, want %v", kinds, want)
	}
	last := changes[len(changes)-1]
	if last.Origin != Remote || !last.Snapshot.Contains(b) {
		t.Fatalf("replace change = %+v", last)
	}
	if changes[0].Origin != Local {
		t.Fatalf("record origin = %v", changes[0].Origin)
	}
}

func TestReplaceNormalizes(t *testing.T) {
	l := New()
	l.Record(a, 1)
	l.Replace(models.Snapshot{
		List:   []models.StudentID{b, b},
		Stages: map[models.StudentID]models.StageID{c: 2},
	}, Restore)
	snap := l.Snapshot()
	assertInvariant(t, snap)
	if l.Has(a) || !l.Has(b) || !l.Has(c) {
		t.Fatalf("unexpected state %v", snap.List)
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	l := New()
	l.Record(a, 1)
	snap := l.Snapshot()
	snap.Stages[b] = 2
	snap.List[0] = c
	if l.Has(b) || !l.Has(a) {
		t.Fatal("snapshot aliases ledger state")
	}
}

func TestConcurrentRecordsKeepInvariant(t *testing.T) {
	l := New()
	var wg sync.WaitGroup
	for g := 1; g <= 6; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for seq := 1; seq <= 50; seq++ {
				l.Record(models.StudentID{Grade: g, Class: 'A', Seq: seq}, 1)
				_ = l.Snapshot()
			}
		}(g)
	}
	wg.Wait()
	if l.Len() != 300 {
		t.Fatalf("Len = %d", l.Len())
	}
	assertInvariant(t, l.Snapshot())
}
