package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/mattn/go-sqlite3"
	"pingpong-ladder/models"
	"go.uber.org/zap"
)

// uniqueViolationCode SQLSTATE нарушения уникальности в PostgreSQL
const uniqueViolationCode = "23505"

// Dialect тип SQL базы
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// SQLStorage хранилище на database/sql (SQLite или PostgreSQL)
type SQLStorage struct {
	db      *sql.DB
	dialect Dialect
	logger  *zap.Logger
}

const matchColumns = `m.id, m.player_a_id, m.player_b_id, m.score_a, m.score_b, m.winner_id, m.status,
	m.created_at, m.confirmed_at, m.rating_a_old, m.rating_a_new, m.rating_b_old, m.rating_b_new`

const requestColumns = `r.match_id, r.requesting_player_id, r.confirming_player_id, r.status, r.created_at, r.responded_at`

var schema = []string{
	`CREATE TABLE IF NOT EXISTS players (
		id TEXT NOT NULL PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		rating INTEGER NOT NULL DEFAULT 1200,
		is_admin BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS matches (
		id TEXT NOT NULL PRIMARY KEY,
		player_a_id TEXT NOT NULL REFERENCES players (id),
		player_b_id TEXT NOT NULL REFERENCES players (id),
		score_a INTEGER NOT NULL,
		score_b INTEGER NOT NULL,
		winner_id TEXT NOT NULL REFERENCES players (id),
		status TEXT NOT NULL DEFAULT 'pending',
		created_at TIMESTAMP NOT NULL,
		confirmed_at TIMESTAMP,
		rating_a_old INTEGER,
		rating_a_new INTEGER,
		rating_b_old INTEGER,
		rating_b_new INTEGER,
		CHECK (player_a_id <> player_b_id)
	)`,
	`CREATE TABLE IF NOT EXISTS match_requests (
		match_id TEXT NOT NULL PRIMARY KEY REFERENCES matches (id) ON DELETE CASCADE,
		requesting_player_id TEXT NOT NULL REFERENCES players (id),
		confirming_player_id TEXT NOT NULL REFERENCES players (id),
		status TEXT NOT NULL DEFAULT 'pending',
		created_at TIMESTAMP NOT NULL,
		responded_at TIMESTAMP
	)`,
	`CREATE INDEX IF NOT EXISTS idx_matches_status ON matches (status)`,
	`CREATE INDEX IF NOT EXISTS idx_matches_players ON matches (player_a_id, player_b_id)`,
	`CREATE INDEX IF NOT EXISTS idx_match_requests_confirming ON match_requests (confirming_player_id, status)`,
}

// NewSQLStorage открывает базу и создает таблицы
func NewSQLStorage(ctx context.Context, dialect Dialect, dsn string, logger *zap.Logger) (*SQLStorage, error) {
	driver := "sqlite3"
	if dialect == DialectPostgres {
		driver = "pgx"
	} else {
		dsn = sqliteDSN(dsn)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dialect == DialectSQLite {
		// SQLite допускает одного писателя
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	s := &SQLStorage{db: db, dialect: dialect, logger: logger}
	if err := s.createTables(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close закрывает соединение с базой
func (s *SQLStorage) Close() error {
	return s.db.Close()
}

// sqliteDSN включает внешние ключи на каждом соединении пула
func sqliteDSN(dsn string) string {
	if strings.Contains(dsn, "_foreign_keys=") || strings.Contains(dsn, "_fk=") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_foreign_keys=on"
}

func (s *SQLStorage) createTables(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}

// CreatePlayer добавляет игрока, повтор ID или имени дает ErrAlreadyExists
func (s *SQLStorage) CreatePlayer(ctx context.Context, player *models.Player) error {
	_, err := s.db.ExecContext(ctx, s.q(`INSERT INTO players (id, name, rating, is_admin, created_at) VALUES (?, ?, ?, ?, ?)`),
		player.ID, player.Name, player.Rating, player.IsAdmin, player.CreatedAt.UTC())
	if isUniqueViolation(err) {
		return fmt.Errorf("player %q: %w", player.Name, ErrAlreadyExists)
	}
	if err != nil {
		return fmt.Errorf("failed to insert player: %w", err)
	}
	return nil
}

// isUniqueViolation распознает нарушение уникальности в обоих драйверах
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			liteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == uniqueViolationCode
	}
	return false
}

// GetPlayer возвращает игрока по ID
func (s *SQLStorage) GetPlayer(ctx context.Context, playerID string) (*models.Player, error) {
	row := s.db.QueryRowContext(ctx, s.q(`SELECT id, name, rating, is_admin, created_at FROM players WHERE id = ?`), playerID)
	player, err := scanPlayer(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("player %s: %w", playerID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get player: %w", err)
	}
	return player, nil
}

// ListPlayers возвращает всех игроков в порядке ID
func (s *SQLStorage) ListPlayers(ctx context.Context) ([]*models.Player, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, rating, is_admin, created_at FROM players ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list players: %w", err)
	}
	defer rows.Close()

	var players []*models.Player
	for rows.Next() {
		player, err := scanPlayer(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan player: %w", err)
		}
		players = append(players, player)
	}
	return players, rows.Err()
}

// CreateMatch сохраняет матч и запрос в одной транзакции
func (s *SQLStorage) CreateMatch(ctx context.Context, match *models.Match, req *models.ConfirmationRequest) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, s.q(`INSERT INTO matches (id, player_a_id, player_b_id, score_a, score_b, winner_id, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
		match.ID, match.PlayerAID, match.PlayerBID, match.ScoreA, match.ScoreB, match.WinnerID, string(match.Status), match.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert match: %w", err)
	}

	_, err = tx.ExecContext(ctx, s.q(`INSERT INTO match_requests (match_id, requesting_player_id, confirming_player_id, status, created_at)
		VALUES (?, ?, ?, ?, ?)`),
		req.MatchID, req.RequestingPlayerID, req.ConfirmingPlayerID, string(req.Status), req.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert match request: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit match: %w", err)
	}
	return nil
}

// GetMatch возвращает матч по ID
func (s *SQLStorage) GetMatch(ctx context.Context, matchID string) (*models.Match, error) {
	row := s.db.QueryRowContext(ctx, s.q(`SELECT `+matchColumns+` FROM matches m WHERE m.id = ?`), matchID)
	match, err := scanMatch(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("match %s: %w", matchID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get match: %w", err)
	}
	return match, nil
}

// GetRequest возвращает запрос на подтверждение матча
func (s *SQLStorage) GetRequest(ctx context.Context, matchID string) (*models.ConfirmationRequest, error) {
	row := s.db.QueryRowContext(ctx, s.q(`SELECT `+requestColumns+` FROM match_requests r WHERE r.match_id = ?`), matchID)
	req, err := scanRequest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("request for match %s: %w", matchID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get match request: %w", err)
	}
	return req, nil
}

// ListPendingFor возвращает матчи, ожидающие ответа игрока, новые первыми
func (s *SQLStorage) ListPendingFor(ctx context.Context, playerID string) ([]models.PendingConfirmation, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`SELECT `+matchColumns+`, `+requestColumns+`
		FROM match_requests r
		JOIN matches m ON m.id = r.match_id
		WHERE r.confirming_player_id = ? AND r.status = 'pending'
		ORDER BY r.created_at DESC, r.match_id ASC`), playerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending matches: %w", err)
	}
	defer rows.Close()

	var pending []models.PendingConfirmation
	for rows.Next() {
		var mr matchRow
		var rr requestRow
		if err := rows.Scan(append(mr.dest(), rr.dest()...)...); err != nil {
			return nil, fmt.Errorf("failed to scan pending match: %w", err)
		}
		pending = append(pending, models.PendingConfirmation{Match: mr.model(), Request: rr.model()})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sortPending(pending)
	return pending, nil
}

// ListMatches возвращает матчи в статусе status, новые первыми
func (s *SQLStorage) ListMatches(ctx context.Context, status models.MatchStatus) ([]*models.Match, error) {
	query := `SELECT ` + matchColumns + ` FROM matches m`
	var args []interface{}
	if status != "" {
		query += ` WHERE m.status = ?`
		args = append(args, string(status))
	}

	rows, err := s.db.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list matches: %w", err)
	}
	defer rows.Close()

	var matches []*models.Match
	for rows.Next() {
		match, err := scanMatch(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan match: %w", err)
		}
		matches = append(matches, match)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sortByActivity(matches)
	return matches, nil
}

// CountConfirmed возвращает число подтвержденных матчей игрока
func (s *SQLStorage) CountConfirmed(ctx context.Context, playerID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, s.q(`SELECT COUNT(*) FROM matches
		WHERE status = 'confirmed' AND (player_a_id = ? OR player_b_id = ?)`), playerID, playerID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count matches: %w", err)
	}
	return count, nil
}

// FinalizeMatch завершает матч в одной транзакции с условными UPDATE
func (s *SQLStorage) FinalizeMatch(ctx context.Context, f models.Finalization) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	at := f.At.UTC()
	var confirmedAt interface{}
	ratings := make([]interface{}, 4)
	if f.Status == models.StatusConfirmed {
		confirmedAt = at
		match, err := s.getMatchTx(ctx, tx, f.MatchID)
		if err != nil {
			return err
		}
		for _, d := range f.Deltas {
			switch d.PlayerID {
			case match.PlayerAID:
				ratings[0], ratings[1] = d.OldRating, d.NewRating
			case match.PlayerBID:
				ratings[2], ratings[3] = d.OldRating, d.NewRating
			}
		}
	}

	res, err := tx.ExecContext(ctx, s.q(`UPDATE matches
		SET status = ?, confirmed_at = ?, rating_a_old = ?, rating_a_new = ?, rating_b_old = ?, rating_b_new = ?
		WHERE id = ? AND status = 'pending'`),
		string(f.Status), confirmedAt, ratings[0], ratings[1], ratings[2], ratings[3], f.MatchID)
	if err != nil {
		return fmt.Errorf("failed to update match: %w", err)
	}
	if err := s.expectOne(ctx, tx, res, f.MatchID); err != nil {
		return err
	}

	res, err = tx.ExecContext(ctx, s.q(`UPDATE match_requests SET status = ?, responded_at = ?
		WHERE match_id = ? AND status = 'pending'`), string(f.Status), at, f.MatchID)
	if err != nil {
		return fmt.Errorf("failed to update match request: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil || n != 1 {
		return fmt.Errorf("request for match %s: %w", f.MatchID, ErrNotPending)
	}

	for _, d := range f.Deltas {
		res, err := tx.ExecContext(ctx, s.q(`UPDATE players SET rating = ? WHERE id = ? AND rating = ?`),
			d.NewRating, d.PlayerID, d.OldRating)
		if err != nil {
			return fmt.Errorf("failed to update player rating: %w", err)
		}
		if n, err := res.RowsAffected(); err != nil || n != 1 {
			return fmt.Errorf("player %s: %w", d.PlayerID, ErrStaleRating)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit finalization: %w", err)
	}

	s.logger.Info("Match finalized",
		zap.String("match_id", f.MatchID),
		zap.String("status", string(f.Status)),
	)
	return nil
}

// DeleteMatch удаляет ожидающий матч вместе с запросом
func (s *SQLStorage) DeleteMatch(ctx context.Context, matchID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, s.q(`DELETE FROM match_requests WHERE match_id = ?
		AND EXISTS (SELECT 1 FROM matches WHERE id = ? AND status = 'pending')`), matchID, matchID); err != nil {
		return fmt.Errorf("failed to delete match request: %w", err)
	}
	res, err := tx.ExecContext(ctx, s.q(`DELETE FROM matches WHERE id = ? AND status = 'pending'`), matchID)
	if err != nil {
		return fmt.Errorf("failed to delete match: %w", err)
	}
	if err := s.expectOne(ctx, tx, res, matchID); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit delete: %w", err)
	}
	return nil
}

// expectOne проверяет, что условный запрос затронул матч, иначе выясняет причину
func (s *SQLStorage) expectOne(ctx context.Context, tx *sql.Tx, res sql.Result, matchID string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 1 {
		return nil
	}
	if _, err := s.getMatchTx(ctx, tx, matchID); err != nil {
		return err
	}
	return fmt.Errorf("match %s: %w", matchID, ErrNotPending)
}

func (s *SQLStorage) getMatchTx(ctx context.Context, tx *sql.Tx, matchID string) (*models.Match, error) {
	row := tx.QueryRowContext(ctx, s.q(`SELECT `+matchColumns+` FROM matches m WHERE m.id = ?`), matchID)
	match, err := scanMatch(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("match %s: %w", matchID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get match: %w", err)
	}
	return match, nil
}

// q переводит плейсхолдеры ? в $N для PostgreSQL
func (s *SQLStorage) q(query string) string {
	if s.dialect != DialectPostgres {
		return query
	}

	var b strings.Builder
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			fmt.Fprintf(&b, "$%d", n)
			n++
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanPlayer(row scanner) (*models.Player, error) {
	var p models.Player
	if err := row.Scan(&p.ID, &p.Name, &p.Rating, &p.IsAdmin, &p.CreatedAt); err != nil {
		return nil, err
	}
	p.CreatedAt = p.CreatedAt.UTC()
	return &p, nil
}

type matchRow struct {
	m           models.Match
	status      string
	confirmedAt sql.NullTime
	ratings     [4]sql.NullInt64
}

func (r *matchRow) dest() []interface{} {
	return []interface{}{
		&r.m.ID, &r.m.PlayerAID, &r.m.PlayerBID, &r.m.ScoreA, &r.m.ScoreB, &r.m.WinnerID, &r.status,
		&r.m.CreatedAt, &r.confirmedAt, &r.ratings[0], &r.ratings[1], &r.ratings[2], &r.ratings[3],
	}
}

func (r *matchRow) model() *models.Match {
	m := r.m
	m.Status = models.MatchStatus(r.status)
	m.CreatedAt = m.CreatedAt.UTC()
	if r.confirmedAt.Valid {
		t := r.confirmedAt.Time.UTC()
		m.ConfirmedAt = &t
	}
	m.RatingA = nullDelta(m.PlayerAID, r.ratings[0], r.ratings[1])
	m.RatingB = nullDelta(m.PlayerBID, r.ratings[2], r.ratings[3])
	return &m
}

func nullDelta(playerID string, oldRating, newRating sql.NullInt64) *models.RatingDelta {
	if !oldRating.Valid || !newRating.Valid {
		return nil
	}
	return &models.RatingDelta{
		PlayerID:  playerID,
		OldRating: int(oldRating.Int64),
		NewRating: int(newRating.Int64),
		Change:    int(newRating.Int64 - oldRating.Int64),
	}
}

func scanMatch(row scanner) (*models.Match, error) {
	var r matchRow
	if err := row.Scan(r.dest()...); err != nil {
		return nil, err
	}
	return r.model(), nil
}

type requestRow struct {
	r           models.ConfirmationRequest
	status      string
	respondedAt sql.NullTime
}

func (r *requestRow) dest() []interface{} {
	return []interface{}{
		&r.r.MatchID, &r.r.RequestingPlayerID, &r.r.ConfirmingPlayerID, &r.status, &r.r.CreatedAt, &r.respondedAt,
	}
}

func (r *requestRow) model() *models.ConfirmationRequest {
	req := r.r
	req.Status = models.MatchStatus(r.status)
	req.CreatedAt = req.CreatedAt.UTC()
	if r.respondedAt.Valid {
		t := r.respondedAt.Time.UTC()
		req.RespondedAt = &t
	}
	return &req
}

func scanRequest(row scanner) (*models.ConfirmationRequest, error) {
	var r requestRow
	if err := row.Scan(r.dest()...); err != nil {
		return nil, err
	}
	return r.model(), nil
}
