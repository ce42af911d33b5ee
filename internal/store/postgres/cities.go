package postgres

import (
	"context"
	"fmt"
	"time"
)

// City is one searchable city offered by the search form.
type City struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

// CityStore reads and writes cities.
type CityStore struct {
	pool Pool
}

// NewCityStore wraps a pool.
func NewCityStore(pool Pool) *CityStore {
	return &CityStore{pool: pool}
}

// List returns all cities sorted by name.
func (s *CityStore) List(ctx context.Context) ([]City, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, name, created_at FROM cities ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list cities: %w", err)
	}
	defer rows.Close()

	var cities []City
	for rows.Next() {
		var city City
		if err := rows.Scan(&city.ID, &city.Name, &city.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan city: %w", err)
		}
		cities = append(cities, city)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cities: %w", err)
	}
	return cities, nil
}

// Create inserts a city. Names are unique; a duplicate yields
// ErrDuplicate.
func (s *CityStore) Create(ctx context.Context, name string) (City, error) {
	city := City{Name: name}
	err := s.pool.QueryRow(ctx, `
INSERT INTO cities (name)
VALUES ($1)
RETURNING id, created_at`, name).
		Scan(&city.ID, &city.CreatedAt)
	if isUnique(err) {
		return City{}, ErrDuplicate
	}
	if err != nil {
		return City{}, fmt.Errorf("insert city: %w", err)
	}
	return city, nil
}

// Delete removes a city.
func (s *CityStore) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM cities WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete city: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
