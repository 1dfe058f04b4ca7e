package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/siteselect/internal/model"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = eris.New("store: not found")

// DefaultHistoryLimit caps ListSearchHistory when no limit is given.
const DefaultHistoryLimit = 20

// Store defines the persistence interface for areas, metrics and accounts.
type Store interface {
	// Areas and metrics. ListAreas returns areas in insertion (id) order,
	// each paired with its latest metric row.
	ListAreas(ctx context.Context) ([]model.AreaWithMetric, error)
	GetArea(ctx context.Context, name string) (*model.ReferenceArea, error)
	GetAreaMetric(ctx context.Context, areaName string) (*model.AreaMetric, error)
	UpsertAreas(ctx context.Context, areas []model.ReferenceArea) (int64, error)
	UpsertMetric(ctx context.Context, m *model.AreaMetric) error
	AppendMetrics(ctx context.Context, metrics []model.AreaMetric) (int64, error)
	ResetAreas(ctx context.Context) error

	// Users
	CreateUser(ctx context.Context, u *model.User) error
	GetUserByID(ctx context.Context, id int64) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	UsernameExists(ctx context.Context, username string) (bool, error)
	UpdateUser(ctx context.Context, u *model.User) error

	// Sessions
	CreateSession(ctx context.Context, s *model.Session) error
	GetActiveSession(ctx context.Context, userID int64, sessionToken string, now time.Time) (*model.Session, error)
	TouchSession(ctx context.Context, id int64, at time.Time) error
	DeactivateSessions(ctx context.Context, userID int64, sessionToken string) (int64, error)

	// Password reset
	CreateResetToken(ctx context.Context, t *model.PasswordResetToken) error
	GetValidResetToken(ctx context.Context, token string, now time.Time) (*model.PasswordResetToken, error)
	ConsumeResetToken(ctx context.Context, tokenID, userID int64, hashedPassword string) error

	// Search history
	AddSearchHistory(ctx context.Context, h *model.SearchHistory) error
	ListSearchHistory(ctx context.Context, userID int64, limit int) ([]model.SearchHistory, error)

	// Lifecycle
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}

// Open connects to the configured backend. driver is "postgres" or "sqlite".
func Open(ctx context.Context, driver, dsn string, poolCfg *PoolConfig) (Store, error) {
	switch driver {
	case "postgres":
		return NewPostgres(ctx, dsn, poolCfg)
	case "sqlite":
		return NewSQLite(dsn)
	default:
		return nil, eris.Errorf("store: unknown driver %q", driver)
	}
}

func historyLimit(limit int) int {
	if limit <= 0 {
		return DefaultHistoryLimit
	}
	return limit
}

func nullableString(s *string) any {
	if s == nil || *s == "" {
		return nil
	}
	return *s
}

func emptyToNil(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func intOrNil(p *int) any {
	if p == nil {
		return nil
	}
	return int64(*p)
}

func timeOrNil(p *time.Time) any {
	if p == nil {
		return nil
	}
	return p.UTC()
}
