package db

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"lottery-server-go/models"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client, err := InitializeRedisClient(RedisOptions{Addr: mr.Addr()})
	if err != nil {
		t.Fatalf("InitializeRedisClient: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestInitializeRedisClientUnavailable(t *testing.T) {
	if _, err := InitializeRedisClient(RedisOptions{}); !errors.Is(err, ErrSyncUnavailable) {
		t.Fatalf("empty addr: %v", err)
	}
	if _, err := InitializeRedisClient(RedisOptions{Addr: "127.0.0.1:1"}); !errors.Is(err, ErrSyncUnavailable) {
		t.Fatalf("closed server: %v", err)
	}
}

func TestSnapshotPushFetchRemove(t *testing.T) {
	_, client := newTestRedis(t)
	s := NewRedisService(client, "")

	if _, ok, err := s.FetchSnapshot(); err != nil || ok {
		t.Fatalf("empty fetch ok=%v err=%v", ok, err)
	}

	a, b := sid(t, "1A-01"), sid(t, "1C-09")
	snap := models.Snapshot{
		List:   []models.StudentID{a, b},
		Stages: map[models.StudentID]models.StageID{a: 2, b: 2},
	}
	if err := s.PushSnapshot(snap); err != nil {
		t.Fatalf("PushSnapshot: %v", err)
	}
	got, ok, err := s.FetchSnapshot()
	if err != nil || !ok {
		t.Fatalf("FetchSnapshot ok=%v err=%v", ok, err)
	}
	if !reflect.DeepEqual(got, snap) {
		t.Fatalf("fetched %+v", got)
	}

	if err := s.RemoveSnapshot(); err != nil {
		t.Fatalf("RemoveSnapshot: %v", err)
	}
	if _, ok, _ := s.FetchSnapshot(); ok {
		t.Fatal("snapshot survived RemoveSnapshot")
	}
}

func TestSubscriptionIgnoresOwnPushes(t *testing.T) {
	_, client := newTestRedis(t)
	local := NewRedisService(client, "event:winners")
	remote := NewRedisService(client, "event:winners")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sub, err := local.Subscribe(ctx)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer sub.Close()

	got := make(chan models.Snapshot, 4)
	go func() { _ = sub.Run(ctx, func(s models.Snapshot) { got <- s }) }()

	a := sid(t, "3B-02")
	if err := local.PushSnapshot(models.Snapshot{
		List:   []models.StudentID{sid(t, "4A-01")},
		Stages: map[models.StudentID]models.StageID{sid(t, "4A-01"): 3},
	}); err != nil {
		t.Fatal(err)
	}
	if err := remote.PushSnapshot(models.Snapshot{
		List:   []models.StudentID{a},
		Stages: map[models.StudentID]models.StageID{a: 2},
	}); err != nil {
		t.Fatal(err)
	}

	select {
	case s := <-got:
		if !reflect.DeepEqual(s.List, []models.StudentID{a}) {
			t.Fatalf("received %v, want only the remote push", s.List)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no remote snapshot received")
	}

	if err := remote.RemoveSnapshot(); err != nil {
		t.Fatal(err)
	}
	select {
	case s := <-got:
		if len(s.List) != 0 {
			t.Fatalf("expected empty snapshot, got %v", s.List)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no removal event received")
	}
}

func TestRosterMirror(t *testing.T) {
	_, client := newTestRedis(t)
	s := NewRedisService(client, "")

	first := []models.Student{
		{ID: sid(t, "1B-02"), Name: "Bea"},
		{ID: sid(t, "1A-01"), Name: "Ann"},
		{ID: sid(t, "2A-01"), Name: "Cal"},
	}
	if err := s.SaveRoster(first); err != nil {
		t.Fatalf("SaveRoster: %v", err)
	}
	got, err := s.LoadRoster()
	if err != nil {
		t.Fatalf("LoadRoster: %v", err)
	}
	want := []models.Student{
		{ID: sid(t, "1A-01"), Name: "Ann", ClassID: "1A"},
		{ID: sid(t, "1B-02"), Name: "Bea", ClassID: "1B"},
		{ID: sid(t, "2A-01"), Name: "Cal", ClassID: "2A"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("roster = %+v", got)
	}

	if err := s.SaveRoster([]models.Student{{ID: sid(t, "6D-01"), Name: "Dee"}}); err != nil {
		t.Fatal(err)
	}
	got, _ = s.LoadRoster()
	if len(got) != 1 || got[0].Name != "Dee" {
		t.Fatalf("replacement roster = %+v", got)
	}
	classes, err := s.GetAllClasses()
	if err != nil || len(classes) != 1 || classes[0] != (models.Clazz{ID: "6D", Headcount: 1}) {
		t.Fatalf("classes = %+v err=%v", classes, err)
	}
}
