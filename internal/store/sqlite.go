package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/siteselect/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// One connection keeps the pragmas below in force for every statement.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS areas (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	name       TEXT NOT NULL UNIQUE,
	city       TEXT NOT NULL DEFAULT '',
	county     TEXT NOT NULL DEFAULT '',
	latitude   REAL NOT NULL,
	longitude  REAL NOT NULL,
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS area_metrics (
	id                 INTEGER PRIMARY KEY AUTOINCREMENT,
	area_id            INTEGER NOT NULL REFERENCES areas(id) ON DELETE CASCADE,
	population_density INTEGER NOT NULL DEFAULT 0,
	business_density   INTEGER NOT NULL DEFAULT 0,
	transport_score    REAL NOT NULL DEFAULT 0,
	apartment_count    INTEGER,
	updated_at         DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS users (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	email           TEXT NOT NULL UNIQUE,
	username        TEXT UNIQUE,
	full_name       TEXT NOT NULL DEFAULT '',
	hashed_password TEXT,
	is_active       BOOLEAN NOT NULL DEFAULT 1,
	is_verified     BOOLEAN NOT NULL DEFAULT 0,
	role            TEXT NOT NULL DEFAULT 'business_user',
	auth_provider   TEXT NOT NULL DEFAULT 'email',
	provider_id     TEXT,
	profile_picture TEXT,
	created_at      DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at      DATETIME NOT NULL DEFAULT (datetime('now')),
	last_login      DATETIME
);

CREATE TABLE IF NOT EXISTS user_sessions (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id       INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	session_token TEXT NOT NULL UNIQUE,
	refresh_token TEXT NOT NULL UNIQUE,
	expires_at    DATETIME NOT NULL,
	is_active     BOOLEAN NOT NULL DEFAULT 1,
	created_at    DATETIME NOT NULL DEFAULT (datetime('now')),
	last_activity DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS password_reset_tokens (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id    INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	token      TEXT NOT NULL UNIQUE,
	expires_at DATETIME NOT NULL,
	is_used    BOOLEAN NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS search_history (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id          INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	query            TEXT NOT NULL,
	business_type    TEXT NOT NULL DEFAULT '',
	filters_used     TEXT,
	results_count    INTEGER NOT NULL DEFAULT 0,
	search_timestamp DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_area_metrics_area_id ON area_metrics(area_id, id);
CREATE INDEX IF NOT EXISTS idx_user_sessions_user ON user_sessions(user_id, session_token);
CREATE INDEX IF NOT EXISTS idx_reset_tokens_user ON password_reset_tokens(user_id);
CREATE INDEX IF NOT EXISTS idx_search_history_user ON search_history(user_id, search_timestamp);
`

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func sqliteNotFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func checkRowsAffected(res sql.Result, entity string, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "sqlite: %s %d", entity, id)
	}
	return nil
}

// --- Areas and metrics ---

func (s *SQLiteStore) ListAreas(ctx context.Context) ([]model.AreaWithMetric, error) {
	rows, err := s.db.QueryContext(ctx, listAreasSQL)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list areas")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.AreaWithMetric
	for rows.Next() {
		var r areaRow
		if err := rows.Scan(r.dest()...); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan area")
		}
		out = append(out, r.result())
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list areas iterate")
}

func (s *SQLiteStore) GetArea(ctx context.Context, name string) (*model.ReferenceArea, error) {
	var a model.ReferenceArea
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, city, county, latitude, longitude FROM areas WHERE name = ?`,
		name,
	).Scan(&a.ID, &a.Name, &a.City, &a.County, &a.Latitude, &a.Longitude)
	if err != nil {
		return nil, eris.Wrapf(sqliteNotFound(err), "sqlite: get area %s", name)
	}
	return &a, nil
}

func (s *SQLiteStore) GetAreaMetric(ctx context.Context, areaName string) (*model.AreaMetric, error) {
	var m model.AreaMetric
	err := s.db.QueryRowContext(ctx,
		`SELECT m.id, a.name, m.population_density, m.business_density, m.transport_score, m.apartment_count, m.updated_at
		 FROM area_metrics m JOIN areas a ON a.id = m.area_id
		 WHERE a.name = ? ORDER BY m.id DESC LIMIT 1`,
		areaName,
	).Scan(&m.ID, &m.AreaName, &m.PopulationDensity, &m.BusinessDensity, &m.TransportScore, &m.ApartmentCount, &m.UpdatedAt)
	if err != nil {
		return nil, eris.Wrapf(sqliteNotFound(err), "sqlite: get area metric %s", areaName)
	}
	return &m, nil
}

func (s *SQLiteStore) UpsertAreas(ctx context.Context, areas []model.ReferenceArea) (int64, error) {
	if len(areas) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: upsert areas: begin tx")
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO areas (name, city, county, latitude, longitude) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET city = excluded.city, county = excluded.county,
		 latitude = excluded.latitude, longitude = excluded.longitude`,
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: upsert areas: prepare")
	}
	defer stmt.Close() //nolint:errcheck

	var n int64
	for _, a := range areas {
		if _, err := stmt.ExecContext(ctx, a.Name, a.City, a.County, a.Latitude, a.Longitude); err != nil {
			return 0, eris.Wrapf(err, "sqlite: upsert area %s", a.Name)
		}
		n++
	}
	return n, eris.Wrap(tx.Commit(), "sqlite: upsert areas: commit tx")
}

func (s *SQLiteStore) UpsertMetric(ctx context.Context, m *model.AreaMetric) error {
	var areaID int64
	err := s.db.QueryRowContext(ctx, `SELECT id FROM areas WHERE name = ?`, m.AreaName).Scan(&areaID)
	if err != nil {
		return eris.Wrapf(sqliteNotFound(err), "sqlite: upsert metric: area %s", m.AreaName)
	}

	now := time.Now().UTC()
	var metricID int64
	err = s.db.QueryRowContext(ctx,
		`SELECT id FROM area_metrics WHERE area_id = ? ORDER BY id DESC LIMIT 1`, areaID,
	).Scan(&metricID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		res, err := s.db.ExecContext(ctx,
			`INSERT INTO area_metrics (area_id, population_density, business_density, transport_score, apartment_count, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			areaID, m.PopulationDensity, m.BusinessDensity, m.TransportScore, intOrNil(m.ApartmentCount), now,
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: insert metric %s", m.AreaName)
		}
		if metricID, err = res.LastInsertId(); err != nil {
			return eris.Wrap(err, "sqlite: metric id")
		}
	case err != nil:
		return eris.Wrapf(err, "sqlite: latest metric %s", m.AreaName)
	default:
		if _, err := s.db.ExecContext(ctx,
			`UPDATE area_metrics SET population_density = ?, business_density = ?, transport_score = ?,
			 apartment_count = ?, updated_at = ? WHERE id = ?`,
			m.PopulationDensity, m.BusinessDensity, m.TransportScore, intOrNil(m.ApartmentCount), now, metricID,
		); err != nil {
			return eris.Wrapf(err, "sqlite: update metric %s", m.AreaName)
		}
	}

	m.ID = metricID
	m.UpdatedAt = now
	return nil
}

func (s *SQLiteStore) AppendMetrics(ctx context.Context, metrics []model.AreaMetric) (int64, error) {
	if len(metrics) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: append metrics: begin tx")
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	var n int64
	for _, m := range metrics {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO area_metrics (area_id, population_density, business_density, transport_score, apartment_count, updated_at)
			 SELECT id, ?, ?, ?, ?, ? FROM areas WHERE name = ?`,
			m.PopulationDensity, m.BusinessDensity, m.TransportScore, intOrNil(m.ApartmentCount), now, m.AreaName,
		)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: append metric %s", m.AreaName)
		}
		if affected, _ := res.RowsAffected(); affected == 0 {
			return 0, eris.Wrapf(ErrNotFound, "sqlite: append metrics: area %s", m.AreaName)
		}
		n++
	}
	return n, eris.Wrap(tx.Commit(), "sqlite: append metrics: commit tx")
}

func (s *SQLiteStore) ResetAreas(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: reset areas: begin tx")
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range []string{
		`DELETE FROM area_metrics`,
		`DELETE FROM areas`,
		`DELETE FROM sqlite_sequence WHERE name IN ('areas', 'area_metrics')`,
	} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return eris.Wrapf(err, "sqlite: reset areas: %s", stmt)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: reset areas: commit tx")
}

// --- Users ---

func (s *SQLiteStore) CreateUser(ctx context.Context, u *model.User) error {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO users (email, username, full_name, hashed_password, is_active, is_verified, role,
		 auth_provider, provider_id, profile_picture, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.Email, nullableString(u.Username), u.FullName, emptyToNil(u.HashedPassword), u.IsActive, u.IsVerified,
		string(u.Role), string(u.AuthProvider), emptyToNil(u.ProviderID), emptyToNil(u.ProfilePicture), now, now,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: create user %s", u.Email)
	}
	if u.ID, err = res.LastInsertId(); err != nil {
		return eris.Wrap(err, "sqlite: user id")
	}
	u.CreatedAt = now
	u.UpdatedAt = now
	return nil
}

func (s *SQLiteStore) GetUserByID(ctx context.Context, id int64) (*model.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id))
	if err != nil {
		return nil, eris.Wrapf(sqliteNotFound(err), "sqlite: get user %d", id)
	}
	return u, nil
}

func (s *SQLiteStore) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = ?`, email))
	if err != nil {
		return nil, eris.Wrap(sqliteNotFound(err), "sqlite: get user by email")
	}
	return u, nil
}

func (s *SQLiteStore) UsernameExists(ctx context.Context, username string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE username = ?)`, username).Scan(&exists)
	return exists, eris.Wrap(err, "sqlite: username exists")
}

func (s *SQLiteStore) UpdateUser(ctx context.Context, u *model.User) error {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET username = ?, full_name = ?, hashed_password = ?, is_active = ?, is_verified = ?,
		 role = ?, auth_provider = ?, provider_id = ?, profile_picture = ?, last_login = ?, updated_at = ?
		 WHERE id = ?`,
		nullableString(u.Username), u.FullName, emptyToNil(u.HashedPassword), u.IsActive, u.IsVerified,
		string(u.Role), string(u.AuthProvider), emptyToNil(u.ProviderID), emptyToNil(u.ProfilePicture), timeOrNil(u.LastLogin), now,
		u.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update user %d", u.ID)
	}
	if err := checkRowsAffected(res, "user", u.ID); err != nil {
		return err
	}
	u.UpdatedAt = now
	return nil
}

// --- Sessions ---

func (s *SQLiteStore) CreateSession(ctx context.Context, sess *model.Session) error {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO user_sessions (user_id, session_token, refresh_token, expires_at, is_active, created_at, last_activity)
		 VALUES (?, ?, ?, ?, 1, ?, ?)`,
		sess.UserID, sess.SessionToken, sess.RefreshToken, sess.ExpiresAt.UTC(), now, now,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: create session for user %d", sess.UserID)
	}
	if sess.ID, err = res.LastInsertId(); err != nil {
		return eris.Wrap(err, "sqlite: session id")
	}
	sess.IsActive = true
	sess.CreatedAt = now
	sess.LastActivity = now
	return nil
}

// GetActiveSession compares expiry in Go; SQLite stores timestamps as text.
func (s *SQLiteStore) GetActiveSession(ctx context.Context, userID int64, sessionToken string, now time.Time) (*model.Session, error) {
	var sess model.Session
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, session_token, refresh_token, expires_at, is_active, created_at, last_activity
		 FROM user_sessions WHERE user_id = ? AND session_token = ? AND is_active = 1 LIMIT 1`,
		userID, sessionToken,
	).Scan(&sess.ID, &sess.UserID, &sess.SessionToken, &sess.RefreshToken, &sess.ExpiresAt,
		&sess.IsActive, &sess.CreatedAt, &sess.LastActivity)
	if err != nil {
		return nil, eris.Wrapf(sqliteNotFound(err), "sqlite: get session for user %d", userID)
	}
	if !sess.ExpiresAt.After(now) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: session for user %d expired", userID)
	}
	return &sess, nil
}

func (s *SQLiteStore) TouchSession(ctx context.Context, id int64, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `UPDATE user_sessions SET last_activity = ? WHERE id = ?`, at.UTC(), id)
	return eris.Wrapf(err, "sqlite: touch session %d", id)
}

func (s *SQLiteStore) DeactivateSessions(ctx context.Context, userID int64, sessionToken string) (int64, error) {
	query := `UPDATE user_sessions SET is_active = 0 WHERE user_id = ? AND is_active = 1`
	args := []any{userID}
	if sessionToken != "" {
		query += ` AND session_token = ?`
		args = append(args, sessionToken)
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: deactivate sessions for user %d", userID)
	}
	n, err := res.RowsAffected()
	return n, eris.Wrap(err, "sqlite: rows affected")
}

// --- Password reset ---

func (s *SQLiteStore) CreateResetToken(ctx context.Context, t *model.PasswordResetToken) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: reset token: begin tx")
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`UPDATE password_reset_tokens SET is_used = 1 WHERE user_id = ? AND is_used = 0`, t.UserID,
	); err != nil {
		return eris.Wrapf(err, "sqlite: retire reset tokens for user %d", t.UserID)
	}

	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx,
		`INSERT INTO password_reset_tokens (user_id, token, expires_at, is_used, created_at) VALUES (?, ?, ?, 0, ?)`,
		t.UserID, t.Token, t.ExpiresAt.UTC(), now,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: insert reset token for user %d", t.UserID)
	}
	if t.ID, err = res.LastInsertId(); err != nil {
		return eris.Wrap(err, "sqlite: reset token id")
	}
	if err := tx.Commit(); err != nil {
		return eris.Wrap(err, "sqlite: reset token: commit tx")
	}
	t.CreatedAt = now
	t.Used = false
	return nil
}

func (s *SQLiteStore) GetValidResetToken(ctx context.Context, token string, now time.Time) (*model.PasswordResetToken, error) {
	var t model.PasswordResetToken
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, token, expires_at, is_used, created_at FROM password_reset_tokens
		 WHERE token = ? AND is_used = 0`,
		token,
	).Scan(&t.ID, &t.UserID, &t.Token, &t.ExpiresAt, &t.Used, &t.CreatedAt)
	if err != nil {
		return nil, eris.Wrap(sqliteNotFound(err), "sqlite: get reset token")
	}
	if !t.ExpiresAt.After(now) {
		return nil, eris.Wrap(ErrNotFound, "sqlite: reset token expired")
	}
	return &t, nil
}

func (s *SQLiteStore) ConsumeResetToken(ctx context.Context, tokenID, userID int64, hashedPassword string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: consume reset token: begin tx")
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`UPDATE password_reset_tokens SET is_used = 1 WHERE id = ? AND user_id = ? AND is_used = 0`,
		tokenID, userID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: mark reset token %d used", tokenID)
	}
	if err := checkRowsAffected(res, "reset token", tokenID); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE users SET hashed_password = ?, updated_at = ? WHERE id = ?`,
		hashedPassword, time.Now().UTC(), userID,
	); err != nil {
		return eris.Wrapf(err, "sqlite: set password for user %d", userID)
	}
	return eris.Wrap(tx.Commit(), "sqlite: consume reset token: commit tx")
}

// --- Search history ---

func (s *SQLiteStore) AddSearchHistory(ctx context.Context, h *model.SearchHistory) error {
	if h.Timestamp.IsZero() {
		h.Timestamp = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO search_history (user_id, query, business_type, filters_used, results_count, search_timestamp)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		h.UserID, h.Query, h.BusinessType, rawOrNil(h.FiltersUsed), h.ResultsCount, h.Timestamp.UTC(),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: add search history for user %d", h.UserID)
	}
	h.ID, err = res.LastInsertId()
	return eris.Wrap(err, "sqlite: search history id")
}

func (s *SQLiteStore) ListSearchHistory(ctx context.Context, userID int64, limit int) ([]model.SearchHistory, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, query, business_type, filters_used, results_count, search_timestamp
		 FROM search_history WHERE user_id = ? ORDER BY search_timestamp DESC, id DESC LIMIT ?`,
		userID, historyLimit(limit),
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list search history for user %d", userID)
	}
	defer rows.Close() //nolint:errcheck

	var out []model.SearchHistory
	for rows.Next() {
		h, err := scanHistory(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan search history")
		}
		out = append(out, h)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list search history iterate")
}
