package store

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/siteselect/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

var areaCols = []string{
	"id", "name", "city", "county", "latitude", "longitude",
	"id", "population_density", "business_density", "transport_score", "apartment_count", "updated_at",
}

func TestPostgresStore_ListAreas(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := time.Now().UTC()
	metricID := int64(7)
	pop, biz := 12000, 95
	transport := 9.2

	mock.ExpectQuery(`(?s)FROM areas a\s+LEFT JOIN area_metrics m.*ORDER BY a.id`).
		WillReturnRows(pgxmock.NewRows(areaCols).
			AddRow(int64(1), "Downtown LA", "Los Angeles", "Los Angeles", 34.0522, -118.2437,
				&metricID, &pop, &biz, &transport, model.IntPtr(45000), &now).
			AddRow(int64(2), "Irvine", "Irvine", "Orange", 33.6846, -117.8265,
				nil, nil, nil, nil, nil, nil))

	areas, err := s.ListAreas(context.Background())
	require.NoError(t, err)
	require.Len(t, areas, 2)

	require.NotNil(t, areas[0].Metric)
	assert.Equal(t, int64(7), areas[0].Metric.ID)
	assert.Equal(t, "Downtown LA", areas[0].Metric.AreaName)
	assert.Equal(t, 12000, areas[0].Metric.PopulationDensity)
	require.NotNil(t, areas[0].Metric.ApartmentCount)
	assert.Equal(t, 45000, *areas[0].Metric.ApartmentCount)

	assert.Nil(t, areas[1].Metric)
	assert.Equal(t, model.DefaultPopulationDensity, areas[1].MetricOrDefault().PopulationDensity)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetAreaMetric_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM area_metrics m JOIN areas a`).
		WithArgs("Atlantis").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetAreaMetric(context.Background(), "Atlantis")
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrNotFound))
	assert.Contains(t, err.Error(), "get area metric")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpsertMetric_InsertsFirstRow(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT id FROM areas WHERE name = \$1`).
		WithArgs("Irvine").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(3)))
	mock.ExpectQuery(`SELECT id FROM area_metrics WHERE area_id = \$1`).
		WithArgs(int64(3)).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery(`(?s)INSERT INTO area_metrics .* RETURNING id`).
		WithArgs(int64(3), 4000, 40, 7.5, nil, pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(11)))

	m := &model.AreaMetric{AreaName: "Irvine", PopulationDensity: 4000, BusinessDensity: 40, TransportScore: 7.5}
	require.NoError(t, s.UpsertMetric(context.Background(), m))
	assert.Equal(t, int64(11), m.ID)
	assert.False(t, m.UpdatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpsertMetric_UpdatesLatestRow(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT id FROM areas WHERE name = \$1`).
		WithArgs("Irvine").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(3)))
	mock.ExpectQuery(`SELECT id FROM area_metrics WHERE area_id = \$1 ORDER BY id DESC LIMIT 1`).
		WithArgs(int64(3)).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(9)))
	mock.ExpectExec(`(?s)UPDATE area_metrics SET .* WHERE id = \$6`).
		WithArgs(4000, 40, 5.2, int64(18000), pgxmock.AnyArg(), int64(9)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	m := &model.AreaMetric{
		AreaName: "Irvine", PopulationDensity: 4000, BusinessDensity: 40, TransportScore: 5.2,
		ApartmentCount: model.IntPtr(18000),
	}
	require.NoError(t, s.UpsertMetric(context.Background(), m))
	assert.Equal(t, int64(9), m.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpsertMetric_UnknownArea(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT id FROM areas WHERE name = \$1`).
		WithArgs("Atlantis").
		WillReturnError(pgx.ErrNoRows)

	err := s.UpsertMetric(context.Background(), &model.AreaMetric{AreaName: "Atlantis"})
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpsertAreas_UsesBulkUpsert(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	cols := []string{"name", "city", "county", "latitude", "longitude"}

	mock.ExpectBegin()
	mock.ExpectExec("CREATE TEMP TABLE").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_stage_areas"}, cols).WillReturnResult(2)
	mock.ExpectExec(`INSERT INTO "areas" .* ON CONFLICT \("name"\) DO UPDATE`).
		WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectCommit()

	n, err := s.UpsertAreas(context.Background(), []model.ReferenceArea{
		{Name: "Irvine", City: "Irvine", County: "Orange", Latitude: 33.68, Longitude: -117.82},
		{Name: "Anaheim", City: "Anaheim", County: "Orange", Latitude: 33.83, Longitude: -117.91},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_AppendMetrics_Copy(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT id, name FROM areas`).
		WillReturnRows(pgxmock.NewRows([]string{"id", "name"}).
			AddRow(int64(1), "Downtown LA").
			AddRow(int64(2), "Irvine"))
	mock.ExpectCopyFrom(pgx.Identifier{"area_metrics"},
		[]string{"area_id", "population_density", "business_density", "transport_score", "apartment_count", "updated_at"}).
		WillReturnResult(2)

	n, err := s.AppendMetrics(context.Background(), []model.AreaMetric{
		{AreaName: "Downtown LA", PopulationDensity: 12000},
		{AreaName: "Irvine", PopulationDensity: 4000, ApartmentCount: model.IntPtr(18000)},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_AppendMetrics_UnknownArea(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT id, name FROM areas`).
		WillReturnRows(pgxmock.NewRows([]string{"id", "name"}).AddRow(int64(1), "Downtown LA"))

	_, err := s.AppendMetrics(context.Background(), []model.AreaMetric{{AreaName: "Atlantis"}})
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ResetAreas(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`TRUNCATE area_metrics, areas RESTART IDENTITY`).
		WillReturnResult(pgxmock.NewResult("TRUNCATE", 0))

	require.NoError(t, s.ResetAreas(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetUserByEmail_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM users WHERE email = \$1`).
		WithArgs("nobody@example.com").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetUserByEmail(context.Background(), "nobody@example.com")
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetUserByID(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := time.Now().UTC()
	hashed := "hash"

	mock.ExpectQuery(`FROM users WHERE id = \$1`).
		WithArgs(int64(5)).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "email", "username", "full_name", "hashed_password", "is_active", "is_verified",
			"role", "auth_provider", "provider_id", "profile_picture", "created_at", "updated_at", "last_login",
		}).AddRow(int64(5), "a@example.com", model.StringPtr("alice"), "Alice", &hashed, true, false,
			"admin", "email", nil, nil, now, now, nil))

	u, err := s.GetUserByID(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, "a@example.com", u.Email)
	assert.Equal(t, model.RoleAdmin, u.Role)
	assert.Equal(t, "hash", u.HashedPassword)
	assert.Empty(t, u.ProviderID)
	assert.Nil(t, u.LastLogin)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CreateUser(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`(?s)INSERT INTO users .* RETURNING id`).
		WithArgs("g@example.com", "g", "G", nil, true, true, "business_user", "google", "sub-1", nil,
			pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(42)))

	u := &model.User{
		Email: "g@example.com", Username: model.StringPtr("g"), FullName: "G", IsActive: true, IsVerified: true,
		Role: model.RoleBusinessUser, AuthProvider: model.ProviderGoogle, ProviderID: "sub-1",
	}
	require.NoError(t, s.CreateUser(context.Background(), u))
	assert.Equal(t, int64(42), u.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateUser_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE users SET`).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.UpdateUser(context.Background(), &model.User{ID: 77})
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_DeactivateSessions(t *testing.T) {
	tests := []struct {
		name  string
		token string
		re    string
		args  []any
	}{
		{"single", "sess-1", `AND is_active AND session_token = \$2`, []any{int64(1), "sess-1"}},
		{"all", "", `WHERE user_id = \$1 AND is_active$`, []any{int64(1)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, mock := newMockPostgresStore(t)
			mock.ExpectExec(tt.re).WithArgs(tt.args...).WillReturnResult(pgxmock.NewResult("UPDATE", 2))

			n, err := s.DeactivateSessions(context.Background(), 1, tt.token)
			require.NoError(t, err)
			assert.Equal(t, int64(2), n)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestPostgresStore_GetActiveSession_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery(`FROM user_sessions`).
		WithArgs(int64(1), "gone", now).
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetActiveSession(context.Background(), 1, "gone", now)
	assert.True(t, eris.Is(err, ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CreateResetToken_RetiresOutstanding(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	expires := time.Now().Add(time.Hour)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE password_reset_tokens SET is_used = true WHERE user_id = \$1 AND NOT is_used`).
		WithArgs(int64(1)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectQuery(`(?s)INSERT INTO password_reset_tokens .* RETURNING id`).
		WithArgs(int64(1), "tok", expires, pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(3)))
	mock.ExpectCommit()

	tok := &model.PasswordResetToken{UserID: 1, Token: "tok", ExpiresAt: expires}
	require.NoError(t, s.CreateResetToken(context.Background(), tok))
	assert.Equal(t, int64(3), tok.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ConsumeResetToken_AlreadyUsed(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE password_reset_tokens SET is_used = true WHERE id = \$1`).
		WithArgs(int64(3), int64(1)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectRollback()

	err := s.ConsumeResetToken(context.Background(), 3, 1, "hash")
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ConsumeResetToken(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE password_reset_tokens SET is_used = true`).
		WithArgs(int64(3), int64(1)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`UPDATE users SET hashed_password = \$1`).
		WithArgs("hash", pgxmock.AnyArg(), int64(1)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	require.NoError(t, s.ConsumeResetToken(context.Background(), 3, 1, "hash"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListSearchHistory_DefaultLimit(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	ts := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`FROM search_history WHERE user_id = \$1 ORDER BY search_timestamp DESC`).
		WithArgs(int64(1), DefaultHistoryLimit).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "user_id", "query", "business_type", "filters_used", "results_count", "search_timestamp",
		}).AddRow(int64(9), int64(1), "pizza", "restaurant", []byte(`{"counties":["Orange"]}`), 4, ts))

	got, err := s.ListSearchHistory(context.Background(), 1, 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "pizza", got[0].Query)
	assert.JSONEq(t, `{"counties":["Orange"]}`, string(got[0].FiltersUsed))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_MigrateAndPing(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS areas`).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec(`SELECT 1`).WillReturnResult(pgxmock.NewResult("SELECT", 1))

	require.NoError(t, s.Migrate(context.Background()))
	require.NoError(t, s.Ping(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
