package store

import (
	"time"

	"github.com/sells-group/siteselect/internal/model"
)

type scannable interface {
	Scan(dest ...any) error
}

const userColumns = `id, email, username, full_name, hashed_password, is_active, is_verified,
	role, auth_provider, provider_id, profile_picture, created_at, updated_at, last_login`

func scanUser(row scannable) (*model.User, error) {
	var (
		u                           model.User
		hashed, providerID, picture *string
		role, provider              string
	)
	if err := row.Scan(
		&u.ID, &u.Email, &u.Username, &u.FullName, &hashed, &u.IsActive, &u.IsVerified,
		&role, &provider, &providerID, &picture, &u.CreatedAt, &u.UpdatedAt, &u.LastLogin,
	); err != nil {
		return nil, err
	}
	u.Role = model.Role(role)
	u.AuthProvider = model.AuthProvider(provider)
	if hashed != nil {
		u.HashedPassword = *hashed
	}
	if providerID != nil {
		u.ProviderID = *providerID
	}
	if picture != nil {
		u.ProfilePicture = *picture
	}
	return &u, nil
}

// areaRow carries the LEFT JOIN of an area with its latest metric.
type areaRow struct {
	area      model.ReferenceArea
	metricID  *int64
	pop, biz  *int
	transport *float64
	apartment *int
	updated   *time.Time
}

func (r *areaRow) dest() []any {
	return []any{
		&r.area.ID, &r.area.Name, &r.area.City, &r.area.County, &r.area.Latitude, &r.area.Longitude,
		&r.metricID, &r.pop, &r.biz, &r.transport, &r.apartment, &r.updated,
	}
}

func (r *areaRow) result() model.AreaWithMetric {
	out := model.AreaWithMetric{Area: r.area}
	if r.metricID == nil {
		return out
	}
	m := model.AreaMetric{
		ID:             *r.metricID,
		AreaName:       r.area.Name,
		ApartmentCount: r.apartment,
	}
	if r.pop != nil {
		m.PopulationDensity = *r.pop
	}
	if r.biz != nil {
		m.BusinessDensity = *r.biz
	}
	if r.transport != nil {
		m.TransportScore = *r.transport
	}
	if r.updated != nil {
		m.UpdatedAt = *r.updated
	}
	out.Metric = &m
	return out
}

// listAreasSQL has no placeholders so both backends share it.
const listAreasSQL = `SELECT a.id, a.name, a.city, a.county, a.latitude, a.longitude,
	m.id, m.population_density, m.business_density, m.transport_score, m.apartment_count, m.updated_at
FROM areas a
LEFT JOIN area_metrics m ON m.id = (SELECT MAX(id) FROM area_metrics WHERE area_id = a.id)
ORDER BY a.id`

func scanHistory(row scannable) (model.SearchHistory, error) {
	var (
		h       model.SearchHistory
		filters []byte
	)
	if err := row.Scan(&h.ID, &h.UserID, &h.Query, &h.BusinessType, &filters, &h.ResultsCount, &h.Timestamp); err != nil {
		return h, err
	}
	if len(filters) > 0 {
		h.FiltersUsed = filters
	}
	return h, nil
}

func rawOrNil(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
