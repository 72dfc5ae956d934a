package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/relabs-tech/garage/core/csql"
)

// InsertCar inserts a single car with a new identifier
func (s *Store) InsertCar(ctx context.Context, nc NewCar) (*Car, error) {
	car := Car{ID: uuid.New(), Model: nc.Model, ReleaseYear: nc.ReleaseYear}
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO car (id, model, release_year) VALUES ($1, $2, $3)`,
		car.ID, car.Model, car.ReleaseYear)
	if err != nil {
		return nil, fmt.Errorf("insert car: %w", csql.Classify(err))
	}
	return &car, nil
}

// SelectCars returns all cars, newest release year first
func (s *Store) SelectCars(ctx context.Context) ([]Car, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT id, model, release_year FROM car ORDER BY release_year DESC, model, id`)
	if err != nil {
		return nil, fmt.Errorf("select cars: %w", err)
	}
	defer rows.Close()

	cars := []Car{}
	for rows.Next() {
		var c Car
		if err := rows.Scan(&c.ID, &c.Model, &c.ReleaseYear); err != nil {
			return nil, fmt.Errorf("scan car: %w", err)
		}
		cars = append(cars, c)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("select cars: %w", err)
	}
	return cars, nil
}

// InsertCars inserts all cars with one statement. The columns are passed as
// arrays, so the number of bind parameters does not grow with the number of cars.
// The identifiers must be set.
func (s *Store) InsertCars(ctx context.Context, cars []Car) error {
	if len(cars) == 0 {
		return nil
	}
	ids := make([]string, len(cars))
	models := make([]string, len(cars))
	years := make([]int64, len(cars))
	for i, c := range cars {
		ids[i] = c.ID.String()
		models[i] = c.Model
		years[i] = int64(c.ReleaseYear)
	}
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO car (id, model, release_year)
		SELECT * FROM unnest($1::uuid[], $2::varchar[], $3::int[])`,
		pq.Array(ids), pq.Array(models), pq.Array(years))
	if err != nil {
		return fmt.Errorf("insert cars: %w", csql.Classify(err))
	}
	return nil
}

// InsertUserCars inserts all links with one statement, see InsertCars
func (s *Store) InsertUserCars(ctx context.Context, links []UserCarLink) error {
	if len(links) == 0 {
		return nil
	}
	ids := make([]string, len(links))
	userIDs := make([]string, len(links))
	carIDs := make([]string, len(links))
	for i, l := range links {
		ids[i] = l.ID.String()
		userIDs[i] = l.UserID.String()
		carIDs[i] = l.CarID.String()
	}
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO users_car (id, user_id, car_id)
		SELECT * FROM unnest($1::uuid[], $2::uuid[], $3::uuid[])`,
		pq.Array(ids), pq.Array(userIDs), pq.Array(carIDs))
	if err != nil {
		return fmt.Errorf("insert user cars: %w", csql.Classify(err))
	}
	return nil
}
