package storage

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"
	"pingpong-ladder/models"
	"go.uber.org/zap"
)

func newSQLiteStore(t *testing.T) Store {
	t.Helper()
	s, err := NewSQLStorage(context.Background(), DialectSQLite, ":memory:", zap.NewNop())
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteStorage(t *testing.T) {
	runStoreTests(t, newSQLiteStore)
}

func TestSQLiteRejectsSelfMatch(t *testing.T) {
	s := newSQLiteStore(t)
	seedPlayer(t, s, "p1", 1200)

	m := models.NewMatch("p1", "p1", 11, 3)
	if err := s.CreateMatch(context.Background(), m, models.NewConfirmationRequest(m)); err == nil {
		t.Fatal("self match stored")
	}
}

func TestPostgresPlaceholders(t *testing.T) {
	s := &SQLStorage{dialect: DialectPostgres}
	got := s.q(`UPDATE players SET rating = ? WHERE id = ? AND rating = ?`)
	want := `UPDATE players SET rating = $1 WHERE id = $2 AND rating = $3`
	if got != want {
		t.Fatalf("q() = %q, want %q", got, want)
	}

	lite := &SQLStorage{dialect: DialectSQLite}
	if q := lite.q(`SELECT ? `); q != `SELECT ? ` {
		t.Fatalf("sqlite query rewritten: %q", q)
	}
}

func TestSQLiteTimestampsRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newSQLiteStore(t)
	seedPlayer(t, s, "p1", 1200)
	seedPlayer(t, s, "p2", 1200)

	at := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)
	m := seedMatch(t, s, "p1", "p2", 11, 2, at)
	got, err := s.GetMatch(ctx, m.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !got.CreatedAt.Equal(at) {
		t.Fatalf("created_at = %v, want %v", got.CreatedAt, at)
	}
}

func TestSQLiteDSNEnablesForeignKeys(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{":memory:", ":memory:?_foreign_keys=on"},
		{"pingpong.db", "pingpong.db?_foreign_keys=on"},
		{"file:test.db?cache=shared", "file:test.db?cache=shared&_foreign_keys=on"},
		{"test.db?_foreign_keys=off", "test.db?_foreign_keys=off"},
	}
	for _, c := range cases {
		if got := sqliteDSN(c.in); got != c.want {
			t.Errorf("sqliteDSN(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestSQLiteEnforcesForeignKeysOnEveryConnection(t *testing.T) {
	ctx := context.Background()
	dsn := "file:" + t.TempDir() + "/fk.db"
	store, err := NewSQLStorage(ctx, DialectSQLite, dsn, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	seedPlayer(t, store, "p1", 1200)

	// новое соединение вместо исходного
	store.db.SetConnMaxLifetime(time.Nanosecond)
	time.Sleep(time.Millisecond)

	m := models.NewMatch("p1", "ghost", 11, 3)
	if err := store.CreateMatch(ctx, m, models.NewConfirmationRequest(m)); err == nil {
		t.Fatal("match with unknown player stored")
	}
}

func TestSQLiteDuplicatePlayerIsAlreadyExists(t *testing.T) {
	ctx := context.Background()
	s := newSQLiteStore(t)
	seedPlayer(t, s, "p1", 1200)

	sameID := models.NewPlayer("someone-else", false)
	sameID.ID = "p1"
	if err := s.CreatePlayer(ctx, sameID); !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("duplicate id: got %v, want ErrAlreadyExists", err)
	}
	sameName := models.NewPlayer("name-p1", false)
	if err := s.CreatePlayer(ctx, sameName); !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("duplicate name: got %v, want ErrAlreadyExists", err)
	}
}

func TestIsUniqueViolation(t *testing.T) {
	pgDup := fmt.Errorf("insert: %w", &pgconn.PgError{Code: uniqueViolationCode})
	pgOther := &pgconn.PgError{Code: "23503"}
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain", errors.New("boom"), false},
		{"postgres unique", pgDup, true},
		{"postgres foreign key", pgOther, false},
		{"sqlite unique", sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintUnique}, true},
		{"sqlite foreign key", sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintForeignKey}, false},
	}
	for _, c := range cases {
		if got := isUniqueViolation(c.err); got != c.want {
			t.Errorf("%s: isUniqueViolation = %v, want %v", c.name, got, c.want)
		}
	}
}
