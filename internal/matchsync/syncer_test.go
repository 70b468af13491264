package matchsync

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"

	"tfttracker/internal/data"
	"tfttracker/internal/events"
	"tfttracker/internal/riot"
)

func matchJSON(matchID, puuid string, placement int) string {
	return fmt.Sprintf(`{
		"metadata": {"match_id": %q, "participants": [%q]},
		"info": {
			"game_datetime": 1735732800000,
			"participants": [{
				"puuid": %q,
				"placement": %d,
				"level": 8,
				"traits": [{"name": "TFT13_Sniper", "tier_current": 2, "num_units": 4}],
				"units": [{"character_id": "TFT13_Jinx", "tier": 2, "itemNames": []}]
			}]
		}
	}`, matchID, puuid, puuid, placement)
}

type fakeSource struct {
	mu        sync.Mutex
	ids       []string
	payloads  map[string]string
	idCalls   int
	gets      map[string]int
	failMatch string
}

func (f *fakeSource) GetMatchIDs(_ context.Context, _, _ string, count int) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.idCalls++
	if count < len(f.ids) {
		return f.ids[:count], nil
	}
	return f.ids, nil
}

func (f *fakeSource) GetMatch(_ context.Context, _, matchID string) (*riot.Match, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.gets == nil {
		f.gets = map[string]int{}
	}
	f.gets[matchID]++
	if matchID == f.failMatch {
		return nil, &riot.APIError{StatusCode: 500, Body: "boom"}
	}
	return riot.ParseMatch([]byte(f.payloads[matchID]))
}

type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) Publish(_ int64, ev events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func quietLogger() logrus.FieldLogger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func setup(t *testing.T) (*data.Store, *data.User) {
	t.Helper()
	ctx := context.Background()
	store, err := data.Open(ctx, filepath.Join(t.TempDir(), "sync.db"), "", quietLogger())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	u, err := store.CreateUser(ctx, data.NewUser{Email: "a@example.com", Username: "alice", HashedPassword: "x"})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	u, err = store.LinkRiotAccount(ctx, u.ID, "puuid-a", "Alice", "EUW", "europe")
	if err != nil {
		t.Fatalf("LinkRiotAccount: %v", err)
	}
	return store, u
}

func TestSyncUser_StoresNewMatches(t *testing.T) {
	store, u := setup(t)
	ctx := context.Background()

	source := &fakeSource{
		ids: []string{"EUW1_1", "EUW1_2"},
		payloads: map[string]string{
			"EUW1_1": matchJSON("EUW1_1", "puuid-a", 1),
			"EUW1_2": matchJSON("EUW1_2", "puuid-a", 6),
		},
	}
	cache := data.NewQueryCache(0)
	cache.Set(ctx, u.ID, 0, data.StatsKey(u.ID, "units"), []int{1})
	rec := &recorder{}

	syncer := New(source, store, quietLogger(), WithCache(cache), WithPublisher(rec))
	res, err := syncer.SyncUser(ctx, u)
	if err != nil {
		t.Fatalf("SyncUser: %v", err)
	}

	if res.Fetched != 2 || res.Stored != 2 || res.Skipped != 0 || res.Failed != 0 {
		t.Errorf("Unexpected result: %+v", res)
	}
	if cache.Len() != 0 {
		t.Error("Expected stats cache to be invalidated")
	}

	if len(rec.events) != 3 {
		t.Fatalf("Expected 2 match events and 1 done event, got %+v", rec.events)
	}
	if rec.events[0].Type != events.EventMatchStored || rec.events[0].Placement != 1 {
		t.Errorf("Unexpected first event %+v", rec.events[0])
	}
	if rec.events[2].Type != events.EventSyncDone || rec.events[2].Stored != 2 {
		t.Errorf("Unexpected final event %+v", rec.events[2])
	}

	stored, err := store.ListMatches(ctx, u.ID, u.PUUID, 0)
	if err != nil || len(stored) != 2 {
		t.Fatalf("Expected 2 stored matches, got %d (%v)", len(stored), err)
	}
}

// failingStore errors on the nth MatchExists call
type failingStore struct {
	*data.Store
	failOn int
	calls  int
}

func (f *failingStore) MatchExists(ctx context.Context, matchID, puuid string) (bool, error) {
	f.calls++
	if f.calls == f.failOn {
		return false, errors.New("database is locked")
	}
	return f.Store.MatchExists(ctx, matchID, puuid)
}

// TestSyncUser_InvalidatesCacheOnPartialRun checks that matches stored before a failure still clear the cache
func TestSyncUser_InvalidatesCacheOnPartialRun(t *testing.T) {
	store, u := setup(t)
	ctx := context.Background()

	source := &fakeSource{
		ids: []string{"EUW1_1", "EUW1_2"},
		payloads: map[string]string{
			"EUW1_1": matchJSON("EUW1_1", "puuid-a", 1),
			"EUW1_2": matchJSON("EUW1_2", "puuid-a", 5),
		},
	}
	cache := data.NewQueryCache(0)
	cache.Set(ctx, u.ID, 0, data.StatsKey(u.ID, "units"), []int{1})

	syncer := New(source, &failingStore{Store: store, failOn: 2}, quietLogger(), WithCache(cache))
	res, err := syncer.SyncUser(ctx, u)
	if err == nil {
		t.Fatal("Expected the store error to surface")
	}
	if res == nil || res.Stored != 1 {
		t.Fatalf("Expected 1 stored match before the failure, got %+v", res)
	}
	if cache.Len() != 0 {
		t.Errorf("Expected stats cache to be invalidated, %d entries left", cache.Len())
	}
}

func TestSyncUser_SkipsStoredMatches(t *testing.T) {
	store, u := setup(t)
	ctx := context.Background()

	source := &fakeSource{
		ids:      []string{"EUW1_1"},
		payloads: map[string]string{"EUW1_1": matchJSON("EUW1_1", "puuid-a", 3)},
	}
	syncer := New(source, store, quietLogger())

	if _, err := syncer.SyncUser(ctx, u); err != nil {
		t.Fatalf("first SyncUser: %v", err)
	}
	res, err := syncer.SyncUser(ctx, u)
	if err != nil {
		t.Fatalf("second SyncUser: %v", err)
	}
	if res.Stored != 0 || res.Skipped != 1 {
		t.Errorf("Expected the repeat sync to skip, got %+v", res)
	}
	if source.gets["EUW1_1"] != 1 {
		t.Errorf("Expected match detail to be fetched once, got %d", source.gets["EUW1_1"])
	}

	// A fresh syncer has an empty filter and falls back to the store
	res, err = New(source, store, quietLogger()).SyncUser(ctx, u)
	if err != nil || res.Skipped != 1 || source.gets["EUW1_1"] != 1 {
		t.Errorf("Expected store lookup to skip the match, got %+v (%v)", res, err)
	}
}

func TestSyncUser_FailedMatchDoesNotAbort(t *testing.T) {
	store, u := setup(t)

	source := &fakeSource{
		ids:       []string{"EUW1_bad", "EUW1_other", "EUW1_ok"},
		failMatch: "EUW1_bad",
		payloads: map[string]string{
			"EUW1_other": matchJSON("EUW1_other", "puuid-someone-else", 2),
			"EUW1_ok":    matchJSON("EUW1_ok", "puuid-a", 4),
		},
	}

	res, err := New(source, store, quietLogger()).SyncUser(context.Background(), u)
	if err != nil {
		t.Fatalf("SyncUser: %v", err)
	}
	if res.Stored != 1 || res.Failed != 2 {
		t.Errorf("Expected 1 stored and 2 failed, got %+v", res)
	}
}

func TestSyncUser_NotLinked(t *testing.T) {
	store, _ := setup(t)
	ctx := context.Background()
	bob, _ := store.CreateUser(ctx, data.NewUser{Email: "b@example.com", Username: "bob", HashedPassword: "x"})

	_, err := New(&fakeSource{}, store, quietLogger()).SyncUser(ctx, bob)
	if !errors.Is(err, ErrNotLinked) {
		t.Errorf("Expected ErrNotLinked, got %v", err)
	}
}

func TestSyncUser_FetchCount(t *testing.T) {
	store, u := setup(t)
	source := &fakeSource{
		ids: []string{"EUW1_1", "EUW1_2", "EUW1_3"},
		payloads: map[string]string{
			"EUW1_1": matchJSON("EUW1_1", "puuid-a", 1),
			"EUW1_2": matchJSON("EUW1_2", "puuid-a", 2),
			"EUW1_3": matchJSON("EUW1_3", "puuid-a", 3),
		},
	}

	res, err := New(source, store, quietLogger(), WithFetchCount(2)).SyncUser(context.Background(), u)
	if err != nil || res.Fetched != 2 || res.Stored != 2 {
		t.Errorf("Expected count to cap fetched ids, got %+v (%v)", res, err)
	}
}

func TestSyncAll(t *testing.T) {
	store, _ := setup(t)
	ctx := context.Background()
	store.CreateUser(ctx, data.NewUser{Email: "b@example.com", Username: "bob", HashedPassword: "x"})

	source := &fakeSource{
		ids:      []string{"EUW1_1"},
		payloads: map[string]string{"EUW1_1": matchJSON("EUW1_1", "puuid-a", 2)},
	}

	results, err := New(source, store, quietLogger()).SyncAll(ctx)
	if err != nil {
		t.Fatalf("SyncAll: %v", err)
	}
	if len(results) != 1 || results[0].Stored != 1 {
		t.Errorf("Expected only the linked user to sync, got %+v", results)
	}
}

func TestSyncUser_Cancelled(t *testing.T) {
	store, u := setup(t)
	source := &fakeSource{
		ids:      []string{"EUW1_1"},
		payloads: map[string]string{"EUW1_1": matchJSON("EUW1_1", "puuid-a", 2)},
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := New(source, store, quietLogger()).SyncUser(ctx, u); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}
