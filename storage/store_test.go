package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"pingpong-ladder/models"
)

// newStoreFunc создает пустое хранилище для одного теста
type newStoreFunc func(t *testing.T) Store

func seedPlayer(t *testing.T, s Store, id string, rating int) *models.Player {
	t.Helper()
	p := models.NewPlayer("name-"+id, false)
	p.ID = id
	p.Rating = rating
	if err := s.CreatePlayer(context.Background(), p); err != nil {
		t.Fatalf("create player %s: %v", id, err)
	}
	return p
}

func seedMatch(t *testing.T, s Store, a, b string, scoreA, scoreB int, at time.Time) *models.Match {
	t.Helper()
	m := models.NewMatch(a, b, scoreA, scoreB)
	m.CreatedAt = at
	if err := s.CreateMatch(context.Background(), m, models.NewConfirmationRequest(m)); err != nil {
		t.Fatalf("create match: %v", err)
	}
	return m
}

func confirmation(m *models.Match, at time.Time, oldA, newA, oldB, newB int) models.Finalization {
	return models.Finalization{
		MatchID: m.ID,
		Status:  models.StatusConfirmed,
		At:      at,
		Deltas: []models.RatingDelta{
			{PlayerID: m.PlayerAID, OldRating: oldA, NewRating: newA, Change: newA - oldA},
			{PlayerID: m.PlayerBID, OldRating: oldB, NewRating: newB, Change: newB - oldB},
		},
	}
}

func playerRating(t *testing.T, s Store, id string) int {
	t.Helper()
	p, err := s.GetPlayer(context.Background(), id)
	if err != nil {
		t.Fatalf("get player %s: %v", id, err)
	}
	return p.Rating
}

// runStoreTests проверяет общий контракт Store на конкретной реализации
func runStoreTests(t *testing.T, newStore newStoreFunc) {
	t.Run("players", func(t *testing.T) { testPlayers(t, newStore(t)) })
	t.Run("create and read match", func(t *testing.T) { testCreateMatch(t, newStore(t)) })
	t.Run("pending order", func(t *testing.T) { testPendingOrder(t, newStore(t)) })
	t.Run("confirm", func(t *testing.T) { testConfirm(t, newStore(t)) })
	t.Run("deny", func(t *testing.T) { testDeny(t, newStore(t)) })
	t.Run("stale rating", func(t *testing.T) { testStaleRating(t, newStore(t)) })
	t.Run("delete", func(t *testing.T) { testDelete(t, newStore(t)) })
}

func testPlayers(t *testing.T, s Store) {
	ctx := context.Background()
	seedPlayer(t, s, "p1", 1200)
	seedPlayer(t, s, "p2", 1300)

	dup := models.NewPlayer("name-p1", false)
	if err := s.CreatePlayer(ctx, dup); !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("duplicate name: got %v, want ErrAlreadyExists", err)
	}
	if _, err := s.GetPlayer(ctx, "ghost"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing player: got %v, want ErrNotFound", err)
	}

	players, err := s.ListPlayers(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(players) != 2 {
		t.Fatalf("got %d players, want 2", len(players))
	}
	if got := playerRating(t, s, "p2"); got != 1300 {
		t.Fatalf("rating = %d, want 1300", got)
	}
}

func testCreateMatch(t *testing.T, s Store) {
	ctx := context.Background()
	seedPlayer(t, s, "p1", 1200)
	seedPlayer(t, s, "p2", 1200)
	m := seedMatch(t, s, "p1", "p2", 11, 7, time.Now().UTC())

	got, err := s.GetMatch(ctx, m.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != models.StatusPending || got.WinnerID != "p1" || got.ScoreB != 7 || got.RatingA != nil {
		t.Fatalf("unexpected match: %+v", got)
	}
	req, err := s.GetRequest(ctx, m.ID)
	if err != nil {
		t.Fatal(err)
	}
	if req.RequestingPlayerID != "p1" || req.ConfirmingPlayerID != "p2" || req.Status != models.StatusPending {
		t.Fatalf("unexpected request: %+v", req)
	}

	if _, err := s.GetMatch(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing match: got %v, want ErrNotFound", err)
	}
	if _, err := s.GetRequest(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing request: got %v, want ErrNotFound", err)
	}

	pending, err := s.ListMatches(ctx, models.StatusPending)
	if err != nil || len(pending) != 1 {
		t.Fatalf("pending matches: %v, %v", pending, err)
	}
	confirmed, err := s.ListMatches(ctx, models.StatusConfirmed)
	if err != nil || len(confirmed) != 0 {
		t.Fatalf("confirmed matches: %v, %v", confirmed, err)
	}
}

func testPendingOrder(t *testing.T, s Store) {
	ctx := context.Background()
	seedPlayer(t, s, "p1", 1200)
	seedPlayer(t, s, "p2", 1200)
	seedPlayer(t, s, "p3", 1200)

	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	old := seedMatch(t, s, "p1", "p2", 11, 5, base)
	newer := seedMatch(t, s, "p3", "p2", 11, 9, base.Add(time.Minute))
	seedMatch(t, s, "p2", "p1", 11, 3, base.Add(2*time.Minute))

	pending, err := s.ListPendingFor(ctx, "p2")
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 2 {
		t.Fatalf("got %d pending, want 2", len(pending))
	}
	if pending[0].Match.ID != newer.ID || pending[1].Match.ID != old.ID {
		t.Fatalf("wrong order: %s, %s", pending[0].Match.ID, pending[1].Match.ID)
	}
	if pending[0].Request.ConfirmingPlayerID != "p2" {
		t.Fatalf("unexpected request: %+v", pending[0].Request)
	}

	none, err := s.ListPendingFor(ctx, "p3")
	if err != nil || len(none) != 0 {
		t.Fatalf("reporter sees own match as pending: %v, %v", none, err)
	}
}

func testConfirm(t *testing.T, s Store) {
	ctx := context.Background()
	seedPlayer(t, s, "p1", 1200)
	seedPlayer(t, s, "p2", 1200)
	m := seedMatch(t, s, "p1", "p2", 21, 15, time.Now().UTC())

	at := time.Now().UTC()
	if err := s.FinalizeMatch(ctx, confirmation(m, at, 1200, 1216, 1200, 1184)); err != nil {
		t.Fatalf("finalize: %v", err)
	}

	if playerRating(t, s, "p1") != 1216 || playerRating(t, s, "p2") != 1184 {
		t.Fatal("ratings not updated")
	}
	got, err := s.GetMatch(ctx, m.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != models.StatusConfirmed || got.ConfirmedAt == nil {
		t.Fatalf("match not confirmed: %+v", got)
	}
	if got.RatingA == nil || got.RatingA.NewRating != 1216 || got.RatingB == nil || got.RatingB.Change != -16 {
		t.Fatalf("rating snapshot missing: %+v %+v", got.RatingA, got.RatingB)
	}
	req, err := s.GetRequest(ctx, m.ID)
	if err != nil {
		t.Fatal(err)
	}
	if req.Status != models.StatusConfirmed || req.RespondedAt == nil {
		t.Fatalf("request not confirmed: %+v", req)
	}

	if n, err := s.CountConfirmed(ctx, "p2"); err != nil || n != 1 {
		t.Fatalf("CountConfirmed = %d, %v", n, err)
	}
	pending, err := s.ListPendingFor(ctx, "p2")
	if err != nil || len(pending) != 0 {
		t.Fatalf("confirmed match still pending: %v, %v", pending, err)
	}

	again := confirmation(m, at, 1216, 1230, 1184, 1170)
	if err := s.FinalizeMatch(ctx, again); !errors.Is(err, ErrNotPending) {
		t.Fatalf("second finalize: got %v, want ErrNotPending", err)
	}
	if playerRating(t, s, "p1") != 1216 {
		t.Fatal("second finalize changed rating")
	}

	missing := models.Finalization{MatchID: "missing", Status: models.StatusDenied, At: at}
	if err := s.FinalizeMatch(ctx, missing); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing match: got %v, want ErrNotFound", err)
	}
}

func testDeny(t *testing.T, s Store) {
	ctx := context.Background()
	seedPlayer(t, s, "p1", 1200)
	seedPlayer(t, s, "p2", 1200)
	m := seedMatch(t, s, "p1", "p2", 11, 2, time.Now().UTC())

	f := models.Finalization{MatchID: m.ID, Status: models.StatusDenied, At: time.Now().UTC()}
	if err := s.FinalizeMatch(ctx, f); err != nil {
		t.Fatalf("deny: %v", err)
	}
	got, err := s.GetMatch(ctx, m.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != models.StatusDenied || got.ConfirmedAt != nil || got.RatingA != nil {
		t.Fatalf("unexpected denied match: %+v", got)
	}
	if playerRating(t, s, "p1") != 1200 {
		t.Fatal("deny changed rating")
	}
	if n, _ := s.CountConfirmed(ctx, "p1"); n != 0 {
		t.Fatalf("denied match counted: %d", n)
	}
}

func testStaleRating(t *testing.T, s Store) {
	ctx := context.Background()
	seedPlayer(t, s, "p1", 1200)
	seedPlayer(t, s, "p2", 1250)
	m := seedMatch(t, s, "p1", "p2", 11, 4, time.Now().UTC())

	// рейтинг p2 уже не 1200
	err := s.FinalizeMatch(ctx, confirmation(m, time.Now().UTC(), 1200, 1216, 1200, 1184))
	if !errors.Is(err, ErrStaleRating) {
		t.Fatalf("got %v, want ErrStaleRating", err)
	}

	if playerRating(t, s, "p1") != 1200 || playerRating(t, s, "p2") != 1250 {
		t.Fatal("partial write after stale rating")
	}
	got, err := s.GetMatch(ctx, m.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != models.StatusPending {
		t.Fatalf("match left in %s", got.Status)
	}
	req, err := s.GetRequest(ctx, m.ID)
	if err != nil || req.Status != models.StatusPending {
		t.Fatalf("request not pending: %+v, %v", req, err)
	}
}

func testDelete(t *testing.T, s Store) {
	ctx := context.Background()
	seedPlayer(t, s, "p1", 1200)
	seedPlayer(t, s, "p2", 1200)
	pending := seedMatch(t, s, "p1", "p2", 11, 6, time.Now().UTC())
	done := seedMatch(t, s, "p1", "p2", 11, 8, time.Now().UTC())

	if err := s.DeleteMatch(ctx, pending.ID); err != nil {
		t.Fatalf("delete pending: %v", err)
	}
	if _, err := s.GetMatch(ctx, pending.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("deleted match: got %v, want ErrNotFound", err)
	}
	if _, err := s.GetRequest(ctx, pending.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("deleted request: got %v, want ErrNotFound", err)
	}

	if err := s.FinalizeMatch(ctx, confirmation(done, time.Now().UTC(), 1200, 1216, 1200, 1184)); err != nil {
		t.Fatal(err)
	}
	if err := s.DeleteMatch(ctx, done.ID); !errors.Is(err, ErrNotPending) {
		t.Fatalf("delete confirmed: got %v, want ErrNotPending", err)
	}
	if err := s.DeleteMatch(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("delete missing: got %v, want ErrNotFound", err)
	}
}
