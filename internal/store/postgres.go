package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/siteselect/internal/db"
	"github.com/sells-group/siteselect/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

const (
	pgGetAreaMetricSQL = `SELECT m.id, a.name, m.population_density, m.business_density, m.transport_score, m.apartment_count, m.updated_at
FROM area_metrics m JOIN areas a ON a.id = m.area_id
WHERE a.name = $1 ORDER BY m.id DESC LIMIT 1`
	pgGetActiveSessionSQL = `SELECT id, user_id, session_token, refresh_token, expires_at, is_active, created_at, last_activity
FROM user_sessions
WHERE user_id = $1 AND session_token = $2 AND is_active AND expires_at > $3
LIMIT 1`
	pgTouchSessionSQL = `UPDATE user_sessions SET last_activity = $1 WHERE id = $2`
	pgGetUserByIDSQL  = `SELECT ` + userColumns + ` FROM users WHERE id = $1`
)

// preparedStatements lists queries to prepare on each new connection. These
// run on every search or authenticated request.
var preparedStatements = map[string]string{
	"list_areas":         listAreasSQL,
	"get_area_metric":    pgGetAreaMetricSQL,
	"get_active_session": pgGetActiveSessionSQL,
	"touch_session":      pgTouchSessionSQL,
	"get_user_by_id":     pgGetUserByIDSQL,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// Pool returns the underlying database pool.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS areas (
	id         BIGSERIAL PRIMARY KEY,
	name       TEXT NOT NULL UNIQUE,
	city       TEXT NOT NULL DEFAULT '',
	county     TEXT NOT NULL DEFAULT '',
	latitude   DOUBLE PRECISION NOT NULL,
	longitude  DOUBLE PRECISION NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS area_metrics (
	id                 BIGSERIAL PRIMARY KEY,
	area_id            BIGINT NOT NULL REFERENCES areas(id) ON DELETE CASCADE,
	population_density INTEGER NOT NULL DEFAULT 0,
	business_density   INTEGER NOT NULL DEFAULT 0,
	transport_score    DOUBLE PRECISION NOT NULL DEFAULT 0,
	apartment_count    INTEGER,
	updated_at         TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS users (
	id              BIGSERIAL PRIMARY KEY,
	email           TEXT NOT NULL UNIQUE,
	username        TEXT UNIQUE,
	full_name       TEXT NOT NULL DEFAULT '',
	hashed_password TEXT,
	is_active       BOOLEAN NOT NULL DEFAULT true,
	is_verified     BOOLEAN NOT NULL DEFAULT false,
	role            TEXT NOT NULL DEFAULT 'business_user',
	auth_provider   TEXT NOT NULL DEFAULT 'email',
	provider_id     TEXT,
	profile_picture TEXT,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	last_login      TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS user_sessions (
	id            BIGSERIAL PRIMARY KEY,
	user_id       BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	session_token TEXT NOT NULL UNIQUE,
	refresh_token TEXT NOT NULL UNIQUE,
	expires_at    TIMESTAMPTZ NOT NULL,
	is_active     BOOLEAN NOT NULL DEFAULT true,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	last_activity TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS password_reset_tokens (
	id         BIGSERIAL PRIMARY KEY,
	user_id    BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	token      TEXT NOT NULL UNIQUE,
	expires_at TIMESTAMPTZ NOT NULL,
	is_used    BOOLEAN NOT NULL DEFAULT false,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS search_history (
	id               BIGSERIAL PRIMARY KEY,
	user_id          BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	query            TEXT NOT NULL,
	business_type    TEXT NOT NULL DEFAULT '',
	filters_used     JSONB,
	results_count    INTEGER NOT NULL DEFAULT 0,
	search_timestamp TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_area_metrics_area_id ON area_metrics(area_id, id DESC);
CREATE INDEX IF NOT EXISTS idx_user_sessions_user ON user_sessions(user_id, session_token);
CREATE INDEX IF NOT EXISTS idx_reset_tokens_user ON password_reset_tokens(user_id);
CREATE INDEX IF NOT EXISTS idx_search_history_user ON search_history(user_id, search_timestamp DESC);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func pgNotFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

// --- Areas and metrics ---

func (s *PostgresStore) ListAreas(ctx context.Context) ([]model.AreaWithMetric, error) {
	rows, err := s.pool.Query(ctx, listAreasSQL)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list areas")
	}
	defer rows.Close()

	var out []model.AreaWithMetric
	for rows.Next() {
		var r areaRow
		if err := rows.Scan(r.dest()...); err != nil {
			return nil, eris.Wrap(err, "postgres: scan area")
		}
		out = append(out, r.result())
	}
	return out, eris.Wrap(rows.Err(), "postgres: list areas iterate")
}

func (s *PostgresStore) GetArea(ctx context.Context, name string) (*model.ReferenceArea, error) {
	var a model.ReferenceArea
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, city, county, latitude, longitude FROM areas WHERE name = $1`,
		name,
	).Scan(&a.ID, &a.Name, &a.City, &a.County, &a.Latitude, &a.Longitude)
	if err != nil {
		return nil, eris.Wrapf(pgNotFound(err), "postgres: get area %s", name)
	}
	return &a, nil
}

func (s *PostgresStore) GetAreaMetric(ctx context.Context, areaName string) (*model.AreaMetric, error) {
	var m model.AreaMetric
	err := s.pool.QueryRow(ctx, pgGetAreaMetricSQL, areaName).Scan(
		&m.ID, &m.AreaName, &m.PopulationDensity, &m.BusinessDensity, &m.TransportScore, &m.ApartmentCount, &m.UpdatedAt,
	)
	if err != nil {
		return nil, eris.Wrapf(pgNotFound(err), "postgres: get area metric %s", areaName)
	}
	return &m, nil
}

// UpsertAreas inserts areas or updates the location of existing ones, keyed
// by name.
func (s *PostgresStore) UpsertAreas(ctx context.Context, areas []model.ReferenceArea) (int64, error) {
	rows := make([][]any, 0, len(areas))
	for _, a := range areas {
		rows = append(rows, []any{a.Name, a.City, a.County, a.Latitude, a.Longitude})
	}
	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "areas",
		Columns:      []string{"name", "city", "county", "latitude", "longitude"},
		ConflictKeys: []string{"name"},
	}, rows)
	return n, eris.Wrap(err, "postgres: upsert areas")
}

// UpsertMetric overwrites the latest metric row of the area, or inserts the
// first one.
func (s *PostgresStore) UpsertMetric(ctx context.Context, m *model.AreaMetric) error {
	var areaID int64
	err := s.pool.QueryRow(ctx, `SELECT id FROM areas WHERE name = $1`, m.AreaName).Scan(&areaID)
	if err != nil {
		return eris.Wrapf(pgNotFound(err), "postgres: upsert metric: area %s", m.AreaName)
	}

	now := time.Now().UTC()
	var metricID int64
	err = s.pool.QueryRow(ctx,
		`SELECT id FROM area_metrics WHERE area_id = $1 ORDER BY id DESC LIMIT 1`,
		areaID,
	).Scan(&metricID)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		err = s.pool.QueryRow(ctx,
			`INSERT INTO area_metrics (area_id, population_density, business_density, transport_score, apartment_count, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
			areaID, m.PopulationDensity, m.BusinessDensity, m.TransportScore, intOrNil(m.ApartmentCount), now,
		).Scan(&metricID)
		if err != nil {
			return eris.Wrapf(err, "postgres: insert metric %s", m.AreaName)
		}
	case err != nil:
		return eris.Wrapf(err, "postgres: latest metric %s", m.AreaName)
	default:
		_, err = s.pool.Exec(ctx,
			`UPDATE area_metrics SET population_density = $1, business_density = $2, transport_score = $3,
			 apartment_count = $4, updated_at = $5 WHERE id = $6`,
			m.PopulationDensity, m.BusinessDensity, m.TransportScore, intOrNil(m.ApartmentCount), now, metricID,
		)
		if err != nil {
			return eris.Wrapf(err, "postgres: update metric %s", m.AreaName)
		}
	}

	m.ID = metricID
	m.UpdatedAt = now
	return nil
}

// AppendMetrics adds one history row per metric with COPY. Every AreaName
// must name an existing area.
func (s *PostgresStore) AppendMetrics(ctx context.Context, metrics []model.AreaMetric) (int64, error) {
	if len(metrics) == 0 {
		return 0, nil
	}
	ids, err := s.areaIDs(ctx)
	if err != nil {
		return 0, err
	}

	now := time.Now().UTC()
	rows := make([][]any, 0, len(metrics))
	for _, m := range metrics {
		id, ok := ids[m.AreaName]
		if !ok {
			return 0, eris.Wrapf(ErrNotFound, "postgres: append metrics: area %s", m.AreaName)
		}
		rows = append(rows, []any{id, m.PopulationDensity, m.BusinessDensity, m.TransportScore, intOrNil(m.ApartmentCount), now})
	}
	n, err := db.CopyFrom(ctx, s.pool, "area_metrics",
		[]string{"area_id", "population_density", "business_density", "transport_score", "apartment_count", "updated_at"},
		rows,
	)
	return n, eris.Wrap(err, "postgres: append metrics")
}

func (s *PostgresStore) areaIDs(ctx context.Context) (map[string]int64, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, name FROM areas`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: area ids")
	}
	defer rows.Close()

	ids := make(map[string]int64)
	for rows.Next() {
		var id int64
		var name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, eris.Wrap(err, "postgres: scan area id")
		}
		ids[name] = id
	}
	return ids, eris.Wrap(rows.Err(), "postgres: area ids iterate")
}

// ResetAreas removes every area and metric and restarts their ids so a
// reseed reproduces the reference order.
func (s *PostgresStore) ResetAreas(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `TRUNCATE area_metrics, areas RESTART IDENTITY`)
	return eris.Wrap(err, "postgres: reset areas")
}

// --- Users ---

func (s *PostgresStore) CreateUser(ctx context.Context, u *model.User) error {
	now := time.Now().UTC()
	err := s.pool.QueryRow(ctx,
		`INSERT INTO users (email, username, full_name, hashed_password, is_active, is_verified, role,
		 auth_provider, provider_id, profile_picture, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $11) RETURNING id`,
		u.Email, nullableString(u.Username), u.FullName, emptyToNil(u.HashedPassword), u.IsActive, u.IsVerified,
		string(u.Role), string(u.AuthProvider), emptyToNil(u.ProviderID), emptyToNil(u.ProfilePicture), now,
	).Scan(&u.ID)
	if err != nil {
		return eris.Wrapf(err, "postgres: create user %s", u.Email)
	}
	u.CreatedAt = now
	u.UpdatedAt = now
	return nil
}

func (s *PostgresStore) GetUserByID(ctx context.Context, id int64) (*model.User, error) {
	u, err := scanUser(s.pool.QueryRow(ctx, pgGetUserByIDSQL, id))
	if err != nil {
		return nil, eris.Wrapf(pgNotFound(err), "postgres: get user %d", id)
	}
	return u, nil
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	u, err := scanUser(s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email))
	if err != nil {
		return nil, eris.Wrapf(pgNotFound(err), "postgres: get user by email")
	}
	return u, nil
}

func (s *PostgresStore) UsernameExists(ctx context.Context, username string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE username = $1)`, username).Scan(&exists)
	return exists, eris.Wrap(err, "postgres: username exists")
}

func (s *PostgresStore) UpdateUser(ctx context.Context, u *model.User) error {
	now := time.Now().UTC()
	tag, err := s.pool.Exec(ctx,
		`UPDATE users SET username = $1, full_name = $2, hashed_password = $3, is_active = $4, is_verified = $5,
		 role = $6, auth_provider = $7, provider_id = $8, profile_picture = $9, last_login = $10, updated_at = $11
		 WHERE id = $12`,
		nullableString(u.Username), u.FullName, emptyToNil(u.HashedPassword), u.IsActive, u.IsVerified,
		string(u.Role), string(u.AuthProvider), emptyToNil(u.ProviderID), emptyToNil(u.ProfilePicture), timeOrNil(u.LastLogin), now,
		u.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update user %d", u.ID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: update user %d", u.ID)
	}
	u.UpdatedAt = now
	return nil
}

// --- Sessions ---

func (s *PostgresStore) CreateSession(ctx context.Context, sess *model.Session) error {
	now := time.Now().UTC()
	err := s.pool.QueryRow(ctx,
		`INSERT INTO user_sessions (user_id, session_token, refresh_token, expires_at, is_active, created_at, last_activity)
		 VALUES ($1, $2, $3, $4, true, $5, $5) RETURNING id`,
		sess.UserID, sess.SessionToken, sess.RefreshToken, sess.ExpiresAt, now,
	).Scan(&sess.ID)
	if err != nil {
		return eris.Wrapf(err, "postgres: create session for user %d", sess.UserID)
	}
	sess.IsActive = true
	sess.CreatedAt = now
	sess.LastActivity = now
	return nil
}

func (s *PostgresStore) GetActiveSession(ctx context.Context, userID int64, sessionToken string, now time.Time) (*model.Session, error) {
	var sess model.Session
	err := s.pool.QueryRow(ctx, pgGetActiveSessionSQL, userID, sessionToken, now).Scan(
		&sess.ID, &sess.UserID, &sess.SessionToken, &sess.RefreshToken, &sess.ExpiresAt,
		&sess.IsActive, &sess.CreatedAt, &sess.LastActivity,
	)
	if err != nil {
		return nil, eris.Wrapf(pgNotFound(err), "postgres: get session for user %d", userID)
	}
	return &sess, nil
}

func (s *PostgresStore) TouchSession(ctx context.Context, id int64, at time.Time) error {
	_, err := s.pool.Exec(ctx, pgTouchSessionSQL, at, id)
	return eris.Wrapf(err, "postgres: touch session %d", id)
}

// DeactivateSessions ends one session, or all of the user's active sessions
// when sessionToken is empty.
func (s *PostgresStore) DeactivateSessions(ctx context.Context, userID int64, sessionToken string) (int64, error) {
	query := `UPDATE user_sessions SET is_active = false WHERE user_id = $1 AND is_active`
	args := []any{userID}
	if sessionToken != "" {
		query += ` AND session_token = $2`
		args = append(args, sessionToken)
	}
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return 0, eris.Wrapf(err, "postgres: deactivate sessions for user %d", userID)
	}
	return tag.RowsAffected(), nil
}

// --- Password reset ---

// CreateResetToken retires the user's outstanding tokens and stores a new one.
func (s *PostgresStore) CreateResetToken(ctx context.Context, t *model.PasswordResetToken) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: reset token: begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx,
		`UPDATE password_reset_tokens SET is_used = true WHERE user_id = $1 AND NOT is_used`,
		t.UserID,
	); err != nil {
		return eris.Wrapf(err, "postgres: retire reset tokens for user %d", t.UserID)
	}

	now := time.Now().UTC()
	if err := tx.QueryRow(ctx,
		`INSERT INTO password_reset_tokens (user_id, token, expires_at, is_used, created_at)
		 VALUES ($1, $2, $3, false, $4) RETURNING id`,
		t.UserID, t.Token, t.ExpiresAt, now,
	).Scan(&t.ID); err != nil {
		return eris.Wrapf(err, "postgres: insert reset token for user %d", t.UserID)
	}

	if err := tx.Commit(ctx); err != nil {
		return eris.Wrap(err, "postgres: reset token: commit tx")
	}
	t.CreatedAt = now
	t.Used = false
	return nil
}

func (s *PostgresStore) GetValidResetToken(ctx context.Context, token string, now time.Time) (*model.PasswordResetToken, error) {
	var t model.PasswordResetToken
	err := s.pool.QueryRow(ctx,
		`SELECT id, user_id, token, expires_at, is_used, created_at FROM password_reset_tokens
		 WHERE token = $1 AND NOT is_used AND expires_at > $2`,
		token, now,
	).Scan(&t.ID, &t.UserID, &t.Token, &t.ExpiresAt, &t.Used, &t.CreatedAt)
	if err != nil {
		return nil, eris.Wrap(pgNotFound(err), "postgres: get reset token")
	}
	return &t, nil
}

// ConsumeResetToken sets the new password hash and marks the token used in
// one transaction.
func (s *PostgresStore) ConsumeResetToken(ctx context.Context, tokenID, userID int64, hashedPassword string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: consume reset token: begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx,
		`UPDATE password_reset_tokens SET is_used = true WHERE id = $1 AND user_id = $2 AND NOT is_used`,
		tokenID, userID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: mark reset token %d used", tokenID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: reset token %d", tokenID)
	}

	if _, err := tx.Exec(ctx,
		`UPDATE users SET hashed_password = $1, updated_at = $2 WHERE id = $3`,
		hashedPassword, time.Now().UTC(), userID,
	); err != nil {
		return eris.Wrapf(err, "postgres: set password for user %d", userID)
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: consume reset token: commit tx")
}

// --- Search history ---

func (s *PostgresStore) AddSearchHistory(ctx context.Context, h *model.SearchHistory) error {
	if h.Timestamp.IsZero() {
		h.Timestamp = time.Now().UTC()
	}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO search_history (user_id, query, business_type, filters_used, results_count, search_timestamp)
		 VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		h.UserID, h.Query, h.BusinessType, rawOrNil(h.FiltersUsed), h.ResultsCount, h.Timestamp,
	).Scan(&h.ID)
	return eris.Wrapf(err, "postgres: add search history for user %d", h.UserID)
}

func (s *PostgresStore) ListSearchHistory(ctx context.Context, userID int64, limit int) ([]model.SearchHistory, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, query, business_type, filters_used, results_count, search_timestamp
		 FROM search_history WHERE user_id = $1 ORDER BY search_timestamp DESC, id DESC LIMIT $2`,
		userID, historyLimit(limit),
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list search history for user %d", userID)
	}
	defer rows.Close()

	var out []model.SearchHistory
	for rows.Next() {
		h, err := scanHistory(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan search history")
		}
		out = append(out, h)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list search history iterate")
}
