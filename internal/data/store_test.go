package data

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"tfttracker/internal/stats"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "test.db"), "", logger)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func createTestUser(t *testing.T, s *Store, name string) *User {
	t.Helper()
	u, err := s.CreateUser(context.Background(), NewUser{
		Email:          name + "@example.com",
		Username:       name,
		HashedPassword: "hash",
	})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	return u
}

func TestOpen_SeedsRoles(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	admin, err := s.GetRoleByName(ctx, "admin")
	if err != nil || admin.ID != 1 {
		t.Errorf("Expected admin role with id 1, got %+v (%v)", admin, err)
	}
	user, err := s.GetRoleByName(ctx, "USER")
	if err != nil || user.ID != 2 {
		t.Errorf("Expected user role with id 2, got %+v (%v)", user, err)
	}
	if _, err := s.GetRoleByName(ctx, "moderator"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "twice.db")
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	for i := 0; i < 2; i++ {
		s, err := Open(context.Background(), path, "", logger)
		if err != nil {
			t.Fatalf("Open #%d: %v", i+1, err)
		}
		s.Close()
	}
}

func TestResolveDSN(t *testing.T) {
	tests := []struct {
		url     string
		driver  string
		dialect dialect
	}{
		{"postgres://u:p@localhost/db", "pgx", dialectPostgres},
		{"libsql://tracker.turso.io", "libsql", dialectSQLite},
		{"file:tracker.db", "sqlite", dialectSQLite},
		{"tracker.db", "sqlite", dialectSQLite},
	}
	for _, tt := range tests {
		driver, _, d, err := resolveDSN(tt.url, "")
		if err != nil {
			t.Errorf("resolveDSN(%q): %v", tt.url, err)
			continue
		}
		if driver != tt.driver || d != tt.dialect {
			t.Errorf("resolveDSN(%q) = %s/%d, expected %s/%d", tt.url, driver, d, tt.driver, tt.dialect)
		}
	}

	_, dsn, _, _ := resolveDSN("libsql://tracker.turso.io", "tok")
	if dsn != "libsql://tracker.turso.io?authToken=tok" {
		t.Errorf("Expected auth token in dsn, got %s", dsn)
	}
	if _, _, _, err := resolveDSN("  ", ""); err == nil {
		t.Error("Expected error for empty url")
	}
}

func TestRebind(t *testing.T) {
	pg := &Store{dialect: dialectPostgres}
	if got := pg.rebind("SELECT * FROM t WHERE a = ? AND b = ?"); got != "SELECT * FROM t WHERE a = $1 AND b = $2" {
		t.Errorf("Unexpected postgres rebind: %s", got)
	}
	lite := &Store{dialect: dialectSQLite}
	if got := lite.rebind("a = ?"); got != "a = ?" {
		t.Errorf("SQLite query must not change, got %s", got)
	}
}

func TestUsers(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	alice := createTestUser(t, s, "alice")
	if alice.RoleName != RoleUser || alice.IsAdmin() {
		t.Errorf("Expected default role user, got %s", alice.RoleName)
	}
	if alice.CreatedAt.IsZero() {
		t.Error("Expected created_at to be set")
	}

	byEmail, err := s.GetUserByIdentifier(ctx, "ALICE@example.com")
	if err != nil || byEmail.ID != alice.ID {
		t.Errorf("Expected lookup by email, got %+v (%v)", byEmail, err)
	}
	byName, err := s.GetUserByIdentifier(ctx, "alice")
	if err != nil || byName.ID != alice.ID {
		t.Errorf("Expected lookup by username, got %+v (%v)", byName, err)
	}
	if _, err := s.GetUserByUsername(ctx, "nobody"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}

	if _, err := s.CreateUser(ctx, NewUser{Email: "alice@example.com", Username: "other", HashedPassword: "x"}); err == nil {
		t.Error("Expected duplicate email to fail")
	}

	promoted, err := s.SetUserRole(ctx, alice.ID, "admin")
	if err != nil || !promoted.IsAdmin() {
		t.Errorf("Expected admin after SetUserRole, got %+v (%v)", promoted, err)
	}
	if _, err := s.SetUserRole(ctx, alice.ID, "wizard"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound for unknown role, got %v", err)
	}
	if _, err := s.SetUserRole(ctx, 9999, "user"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound for unknown user, got %v", err)
	}

	createTestUser(t, s, "bob")
	users, err := s.ListUsers(ctx)
	if err != nil || len(users) != 2 {
		t.Fatalf("Expected 2 users, got %d (%v)", len(users), err)
	}

	if err := s.DeleteUser(ctx, users[1].ID); err != nil {
		t.Fatalf("DeleteUser: %v", err)
	}
	if err := s.DeleteUser(ctx, users[1].ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound on second delete, got %v", err)
	}
}

func TestLinkRiotAccount(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	alice := createTestUser(t, s, "alice")
	createTestUser(t, s, "bob")

	linked, err := s.LinkRiotAccount(ctx, alice.ID, "puuid-1", "Alice", "EUW", "Europe")
	if err != nil {
		t.Fatalf("LinkRiotAccount: %v", err)
	}
	if linked.GameName != "alice" || linked.TagLine != "euw" || linked.Region != "europe" || !linked.RiotLinked() {
		t.Errorf("Expected lower-cased link, got %+v", linked)
	}

	users, err := s.ListLinkedUsers(ctx)
	if err != nil || len(users) != 1 || users[0].ID != alice.ID {
		t.Errorf("Expected only alice to be linked, got %+v (%v)", users, err)
	}
}

func TestGames(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	alice := createTestUser(t, s, "alice")
	bob := createTestUser(t, s, "bob")

	first, err := s.CreateGame(ctx, alice.ID, "sniper", true)
	if err != nil {
		t.Fatalf("CreateGame: %v", err)
	}
	time.Sleep(2 * time.Millisecond)
	if _, err := s.CreateGame(ctx, alice.ID, "sniper", false); err != nil {
		t.Fatalf("CreateGame: %v", err)
	}
	time.Sleep(2 * time.Millisecond)
	last, _ := s.CreateGame(ctx, alice.ID, "rebel", true)

	games, err := s.ListGames(ctx, alice.ID)
	if err != nil || len(games) != 3 {
		t.Fatalf("Expected 3 games, got %d (%v)", len(games), err)
	}
	if games[0].ID != last.ID {
		t.Errorf("Expected newest game first, got id %d", games[0].ID)
	}

	gameStats, err := s.GameStatsByComposition(ctx, alice.ID)
	if err != nil {
		t.Fatalf("GameStatsByComposition: %v", err)
	}
	want := []GameStats{
		{Composition: "rebel", GamesPlayed: 1, Wins: 1, WinRate: 100},
		{Composition: "sniper", GamesPlayed: 2, Wins: 1, WinRate: 50},
	}
	if len(gameStats) != 2 || gameStats[0] != want[0] || gameStats[1] != want[1] {
		t.Errorf("Expected %+v, got %+v", want, gameStats)
	}

	// Other users can neither see nor change the game
	if _, err := s.GetGame(ctx, bob.ID, first.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound for foreign game, got %v", err)
	}
	if _, err := s.UpdateGame(ctx, bob.ID, first.ID, "x", false); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound updating foreign game, got %v", err)
	}
	if err := s.DeleteGame(ctx, bob.ID, first.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound deleting foreign game, got %v", err)
	}

	updated, err := s.UpdateGame(ctx, alice.ID, first.ID, "bruiser", false)
	if err != nil || updated.Composition != "bruiser" || updated.Victory {
		t.Errorf("Unexpected update result %+v (%v)", updated, err)
	}
	if err := s.DeleteGame(ctx, alice.ID, first.ID); err != nil {
		t.Errorf("DeleteGame: %v", err)
	}
}

func TestMatches(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	alice := createTestUser(t, s, "alice")

	base := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	m := &Match{
		MatchID:   "EUW1_1",
		PUUID:     "puuid-1",
		UserID:    alice.ID,
		Placement: 2,
		Traits:    []stats.Trait{{Name: "TFT13_Sniper", TierCurrent: 2, NumUnits: 4}},
		Units:     []stats.Unit{{CharacterID: "TFT13_Jinx", Tier: 3, Items: []string{"IE"}}},
		PlayedAt:  base,
	}

	inserted, err := s.InsertMatch(ctx, m)
	if err != nil || !inserted {
		t.Fatalf("Expected first insert to write, got %v (%v)", inserted, err)
	}
	inserted, err = s.InsertMatch(ctx, m)
	if err != nil || inserted {
		t.Errorf("Expected duplicate insert to be skipped, got %v (%v)", inserted, err)
	}

	exists, err := s.MatchExists(ctx, "EUW1_1", "puuid-1")
	if err != nil || !exists {
		t.Errorf("Expected match to exist, got %v (%v)", exists, err)
	}
	exists, _ = s.MatchExists(ctx, "EUW1_1", "puuid-2")
	if exists {
		t.Error("Expected match to be keyed by puuid too")
	}

	s.InsertMatch(ctx, &Match{MatchID: "EUW1_2", PUUID: "puuid-1", UserID: alice.ID, Placement: 7, PlayedAt: base.Add(time.Hour)})
	s.InsertMatch(ctx, &Match{MatchID: "EUW1_0", PUUID: "puuid-1", UserID: alice.ID, Placement: 0, PlayedAt: base.Add(-time.Hour)})

	matches, err := s.ListMatches(ctx, alice.ID, "puuid-1", 2)
	if err != nil || len(matches) != 2 {
		t.Fatalf("Expected 2 matches with limit, got %d (%v)", len(matches), err)
	}
	if matches[0].MatchID != "EUW1_2" || matches[1].MatchID != "EUW1_1" {
		t.Errorf("Expected newest first, got %s, %s", matches[0].MatchID, matches[1].MatchID)
	}
	if matches[0].Traits == nil || matches[0].Units == nil {
		t.Error("Expected empty lists rather than nil")
	}

	got, err := s.GetMatch(ctx, alice.ID, "puuid-1", "EUW1_1")
	if err != nil {
		t.Fatalf("GetMatch: %v", err)
	}
	if !got.PlayedAt.Equal(base) || len(got.Units) != 1 || got.Units[0].Items[0] != "IE" {
		t.Errorf("Unexpected stored match %+v", got)
	}
	if _, err := s.GetMatch(ctx, alice.ID, "puuid-1", "EUW1_404"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}

	records, err := s.MatchRecords(ctx, alice.ID, "puuid-1")
	if err != nil {
		t.Fatalf("MatchRecords: %v", err)
	}
	if len(records) != 2 {
		t.Errorf("Expected invalid placement to be dropped, got %d records", len(records))
	}

	if err := s.DeleteUser(ctx, alice.ID); err != nil {
		t.Fatalf("DeleteUser: %v", err)
	}
	if exists, _ := s.MatchExists(ctx, "EUW1_1", "puuid-1"); exists {
		t.Error("Expected matches to be removed with their user")
	}
}

// TestMatches_ScopedToLinkedAccount checks that relinking hides the old account's history
func TestMatches_ScopedToLinkedAccount(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	alice := createTestUser(t, s, "alice")

	alice, err := s.LinkRiotAccount(ctx, alice.ID, "puuid-old", "Alice", "EUW", "europe")
	if err != nil {
		t.Fatalf("LinkRiotAccount: %v", err)
	}
	s.InsertMatch(ctx, &Match{MatchID: "EUW1_1", PUUID: alice.PUUID, UserID: alice.ID, Placement: 1})

	alice, err = s.LinkRiotAccount(ctx, alice.ID, "puuid-new", "Alt", "EUW", "europe")
	if err != nil {
		t.Fatalf("LinkRiotAccount: %v", err)
	}

	records, err := s.MatchRecords(ctx, alice.ID, alice.PUUID)
	if err != nil || len(records) != 0 {
		t.Errorf("Expected no records after relink, got %d (%v)", len(records), err)
	}
	if _, err := s.GetMatch(ctx, alice.ID, alice.PUUID, "EUW1_1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected old account's match to be hidden, got %v", err)
	}

	// Linking back restores the rows
	records, _ = s.MatchRecords(ctx, alice.ID, "puuid-old")
	if len(records) != 1 {
		t.Errorf("Expected old rows to be kept, got %d", len(records))
	}
}

// TestMatches_CorruptBoardExcluded checks that an undecodable column is defaulted, logged and left out of stats
func TestMatches_CorruptBoardExcluded(t *testing.T) {
	logger, hook := test.NewNullLogger()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "corrupt.db"), "", logger)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()
	ctx := context.Background()
	alice := createTestUser(t, s, "alice")

	s.InsertMatch(ctx, &Match{
		MatchID: "EUW1_1", PUUID: "puuid-1", UserID: alice.ID, Placement: 1,
		Traits: []stats.Trait{{Name: "TFT13_Sniper", TierCurrent: 2}},
	})
	s.InsertMatch(ctx, &Match{MatchID: "EUW1_2", PUUID: "puuid-1", UserID: alice.ID, Placement: 5})
	if _, err := s.exec(ctx, `UPDATE matches SET traits = ? WHERE match_id = ?`, `[{"name": "TFT13_Sniper", "tier_current": "x`, "EUW1_1"); err != nil {
		t.Fatalf("corrupting row: %v", err)
	}
	hook.Reset()

	got, err := s.GetMatch(ctx, alice.ID, "puuid-1", "EUW1_1")
	if err != nil {
		t.Fatalf("GetMatch: %v", err)
	}
	if got.Traits == nil || len(got.Traits) != 0 {
		t.Errorf("Expected corrupt traits to reset to an empty list, got %+v", got.Traits)
	}
	if _, ok := got.Record(); ok {
		t.Error("Expected corrupt row to be rejected by Record")
	}

	records, err := s.MatchRecords(ctx, alice.ID, "puuid-1")
	if err != nil || len(records) != 1 || records[0].Placement != 5 {
		t.Errorf("Expected only the intact match, got %+v (%v)", records, err)
	}

	warned := false
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.WarnLevel && e.Data["match_id"] == "EUW1_1" {
			warned = true
		}
	}
	if !warned {
		t.Error("Expected a warning naming the corrupt match")
	}
}
