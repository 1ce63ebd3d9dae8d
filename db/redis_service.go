package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strconv"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"lottery-server-go/models"
)

const (
	classesKey          = "lottery:classes"  // Set: Stores all class labels
	classInfoPrefix     = "lottery:class:"   // Hash prefix: lottery:class:{id} -> class details
	classStudentsPrefix = "lottery:class:"   // Set prefix: lottery:class:{id}:students -> student ids of a class
	studentInfoPrefix   = "lottery:student:" // Hash prefix: lottery:student:{id} -> student details

	DefaultWinnersKey = "lottery:winners" // String: JSON models.Snapshot
)

// ErrSyncUnavailable means the shared store is not configured or unreachable.
// Callers fall back to local-only persistence.
var ErrSyncUnavailable = errors.New("shared sync unavailable")

// RedisOptions configures the shared store connection.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
}

// InitializeRedisClient creates and tests a Redis client connection.
func InitializeRedisClient(opts RedisOptions) (*redis.Client, error) {
	if opts.Addr == "" {
		return nil, fmt.Errorf("%w: no redis address configured", ErrSyncUnavailable)
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	if _, err := rdb.Ping(context.Background()).Result(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("%w: could not connect to redis at %s: %v", ErrSyncUnavailable, opts.Addr, err)
	}

	log.Printf("Successfully connected to Redis %s DB %d", opts.Addr, opts.DB)
	return rdb, nil
}

// RedisService mirrors the ledger and roster to Redis for other devices.
type RedisService struct {
	Client *redis.Client
	Ctx    context.Context // Base context

	key      string
	channel  string
	instance string
}

// envelope is published on every snapshot push so subscribers can ignore
// their own writes.
type envelope struct {
	Origin   string          `json:"origin"`
	Snapshot models.Snapshot `json:"snapshot"`
}

// NewRedisService creates a new RedisService instance. An empty key selects
// DefaultWinnersKey.
func NewRedisService(client *redis.Client, key string) *RedisService {
	if key == "" {
		key = DefaultWinnersKey
	}
	return &RedisService{
		Client:   client,
		Ctx:      context.Background(),
		key:      key,
		channel:  key + ":events",
		instance: uuid.NewString(),
	}
}

// Instance is the origin id attached to this process's pushes.
func (s *RedisService) Instance() string { return s.instance }

// Helper to generate class info key
func getClassInfoKey(classID string) string {
	return classInfoPrefix + classID
}

// Helper to generate class students set key
func getClassStudentsKey(classID string) string {
	return classStudentsPrefix + classID + ":students"
}

// Helper to generate student info key
func getStudentInfoKey(studentID string) string {
	return studentInfoPrefix + studentID
}

// --- Winner snapshot ---

// PushSnapshot stores the full ledger snapshot and notifies subscribers.
func (s *RedisService) PushSnapshot(snap models.Snapshot) error {
	if snap.List == nil {
		snap.List = []models.StudentID{}
	}
	if snap.Stages == nil {
		snap.Stages = map[models.StudentID]models.StageID{}
	}
	raw, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	msg, err := json.Marshal(envelope{Origin: s.instance, Snapshot: snap})
	if err != nil {
		return fmt.Errorf("failed to encode snapshot event: %w", err)
	}

	pipe := s.Client.Pipeline()
	pipe.Set(s.Ctx, s.key, raw, 0)
	pipe.Publish(s.Ctx, s.channel, msg)
	if _, err := pipe.Exec(s.Ctx); err != nil {
		log.Printf("Error pushing winners snapshot: %v", err)
		return fmt.Errorf("failed to push snapshot to Redis: %w", err)
	}
	return nil
}

// FetchSnapshot reads the stored snapshot; ok is false when none exists.
func (s *RedisService) FetchSnapshot() (snap models.Snapshot, ok bool, err error) {
	raw, err := s.Client.Get(s.Ctx, s.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return models.Snapshot{}, false, nil
		}
		log.Printf("Error getting winners snapshot: %v", err)
		return models.Snapshot{}, false, fmt.Errorf("failed to get snapshot from Redis: %w", err)
	}
	if err := json.Unmarshal(raw, &snap); err != nil {
		return models.Snapshot{}, false, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return snap.Normalize(), true, nil
}

// RemoveSnapshot deletes the stored snapshot and tells subscribers the
// ledger is empty.
func (s *RedisService) RemoveSnapshot() error {
	msg, err := json.Marshal(envelope{
		Origin:   s.instance,
		Snapshot: models.Snapshot{List: []models.StudentID{}, Stages: map[models.StudentID]models.StageID{}},
	})
	if err != nil {
		return fmt.Errorf("failed to encode snapshot event: %w", err)
	}
	pipe := s.Client.Pipeline()
	pipe.Del(s.Ctx, s.key)
	pipe.Publish(s.Ctx, s.channel, msg)
	if _, err := pipe.Exec(s.Ctx); err != nil {
		return fmt.Errorf("failed to remove snapshot from Redis: %w", err)
	}
	return nil
}

// Subscription delivers snapshots pushed by other instances.
type Subscription struct {
	pubsub   *redis.PubSub
	instance string
}

// Subscribe starts listening for snapshot events. It returns once Redis has
// confirmed the subscription.
func (s *RedisService) Subscribe(ctx context.Context) (*Subscription, error) {
	pubsub := s.Client.Subscribe(ctx, s.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", s.channel, err)
	}
	return &Subscription{pubsub: pubsub, instance: s.instance}, nil
}

// Run calls fn for every remote snapshot until ctx is done or the
// subscription is closed.
func (sub *Subscription) Run(ctx context.Context, fn func(models.Snapshot)) error {
	ch := sub.pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var env envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				log.Printf("Skipping malformed snapshot event: %v", err)
				continue
			}
			if env.Origin == sub.instance {
				continue
			}
			fn(env.Snapshot.Normalize())
		}
	}
}

func (sub *Subscription) Close() error {
	return sub.pubsub.Close()
}

// --- Roster mirror ---

// SaveRoster replaces the mirrored roster with students.
func (s *RedisService) SaveRoster(students []models.Student) error {
	oldClasses, err := s.Client.SMembers(s.Ctx, classesKey).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("failed to get class IDs from Redis: %w", err)
	}

	pipe := s.Client.Pipeline()
	for _, classID := range oldClasses {
		ids, err := s.Client.SMembers(s.Ctx, getClassStudentsKey(classID)).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return fmt.Errorf("failed to get student IDs for class %s: %w", classID, err)
		}
		for _, id := range ids {
			pipe.Del(s.Ctx, getStudentInfoKey(id))
		}
		pipe.Del(s.Ctx, getClassStudentsKey(classID), getClassInfoKey(classID))
	}
	pipe.Del(s.Ctx, classesKey)

	counts := make(map[string]int)
	for _, st := range students {
		classID := st.ID.ClassLabel()
		counts[classID]++
		pipe.SAdd(s.Ctx, getClassStudentsKey(classID), st.ID.String())
		pipe.HSet(s.Ctx, getStudentInfoKey(st.ID.String()), map[string]interface{}{
			"id":      st.ID.String(),
			"name":    st.Name,
			"classId": classID,
		})
	}
	for classID, n := range counts {
		pipe.SAdd(s.Ctx, classesKey, classID)
		pipe.HSet(s.Ctx, getClassInfoKey(classID), map[string]interface{}{
			"id":        classID,
			"headcount": n,
		})
	}

	if _, err := pipe.Exec(s.Ctx); err != nil {
		log.Printf("Error mirroring roster: %v", err)
		return fmt.Errorf("failed to save roster to Redis: %w", err)
	}
	log.Printf("Mirrored %d students in %d classes to Redis", len(students), len(counts))
	return nil
}

// GetAllClasses retrieves all mirrored classes
func (s *RedisService) GetAllClasses() ([]models.Clazz, error) {
	classIDs, err := s.Client.SMembers(s.Ctx, classesKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []models.Clazz{}, nil
		}
		return nil, fmt.Errorf("failed to get class IDs from Redis: %w", err)
	}

	classes := make([]models.Clazz, 0, len(classIDs))
	for _, id := range classIDs {
		data, err := s.Client.HGetAll(s.Ctx, getClassInfoKey(id)).Result()
		if err != nil {
			log.Printf("Error fetching details for class %s: %v", id, err)
			continue
		}
		if len(data) == 0 {
			continue
		}
		n, _ := strconv.Atoi(data["headcount"])
		classes = append(classes, models.Clazz{ID: data["id"], Headcount: n})
	}
	return classes, nil
}

// LoadRoster reads the mirrored roster, ordered by class and seat number.
func (s *RedisService) LoadRoster() ([]models.Student, error) {
	classes, err := s.GetAllClasses()
	if err != nil {
		return nil, err
	}

	students := make([]models.Student, 0)
	for _, clazz := range classes {
		ids, err := s.Client.SMembers(s.Ctx, getClassStudentsKey(clazz.ID)).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("failed to get student IDs from Redis for class %s: %w", clazz.ID, err)
		}
		for _, raw := range ids {
			id, err := models.ParseStudentID(raw)
			if err != nil {
				log.Printf("Skipping mirrored student %q: %v", raw, err)
				continue
			}
			data, err := s.Client.HGetAll(s.Ctx, getStudentInfoKey(raw)).Result()
			if err != nil {
				log.Printf("Error fetching details for student %s in class %s: %v", raw, clazz.ID, err)
				continue
			}
			students = append(students, models.Student{ID: id, Name: data["name"], ClassID: clazz.ID})
		}
	}

	byID := make(map[models.StudentID]models.Student, len(students))
	ids := make([]models.StudentID, 0, len(students))
	for _, st := range students {
		byID[st.ID] = st
		ids = append(ids, st.ID)
	}
	models.SortStudentIDs(ids)
	out := make([]models.Student, 0, len(ids))
	for _, id := range ids {
		out = append(out, byID[id])
	}
	return out, nil
}
