package store

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

const relationColumns = `u.id, u.username, u.email, u.first_name, u.age, u.created_at,
	a.id, a.user_id, a.city, a.build, a.apartment`

// correlated subquery producing the cars of u as json array, never null
const carsSubquery = `COALESCE((
	SELECT json_agg(json_build_object('id', c.id, 'model', c.model, 'release_year', c.release_year)
		ORDER BY c.model, c.release_year, c.id)
	FROM car c JOIN users_car uc ON uc.car_id = c.id
	WHERE uc.user_id = u.id), '[]')`

// relationsQuery describes the primary rows of an aggregated view
type relationsQuery struct {
	where string
	args  []any
	page  *Page
}

func (rq relationsQuery) sql(withCars bool) (string, []any) {
	columns := relationColumns
	if withCars {
		columns += ",\n\t" + carsSubquery
	}
	query := `SELECT ` + columns + `
	FROM users u LEFT OUTER JOIN address a ON a.user_id = u.id`
	args := append([]any{}, rq.args...)
	if rq.where != "" {
		query += `
	WHERE ` + rq.where
	}
	query += `
	ORDER BY u.created_at DESC, u.id DESC`
	if rq.page != nil {
		args = append(args, rq.page.Size, rq.page.Offset())
		query += ` LIMIT $` + strconv.Itoa(len(args)-1) + ` OFFSET $` + strconv.Itoa(len(args))
	}
	return query, args
}

// UsersWithRelations returns one page of aggregated views, newest user first
func (s *Store) UsersWithRelations(ctx context.Context, page Page) ([]UserWithRelations, error) {
	return s.selectRelations(ctx, relationsQuery{page: &page})
}

// SearchUsersWithRelations returns one page of aggregated views of users whose
// username contains substring, case insensitive
func (s *Store) SearchUsersWithRelations(ctx context.Context, substring string, page Page) ([]UserWithRelations, error) {
	return s.selectRelations(ctx, relationsQuery{
		where: `u.username ILIKE '%' || $1 || '%'`,
		args:  []any{escapeLike(substring)},
		page:  &page,
	})
}

// UserWithRelationsByUsername returns the aggregated view of the user with username.
// It fails with ErrNotFound if there is no such user.
func (s *Store) UserWithRelationsByUsername(ctx context.Context, username string) (*UserWithRelations, error) {
	views, err := s.selectRelations(ctx, relationsQuery{
		where: `u.username = $1`,
		args:  []any{username},
	})
	if err != nil {
		return nil, err
	}
	switch len(views) {
	case 0:
		return nil, fmt.Errorf("user with username %s: %w", username, ErrNotFound)
	case 1:
		return &views[0], nil
	}
	return nil, fmt.Errorf("user with username %s: %w", username, ErrMultipleRows)
}

func (s *Store) selectRelations(ctx context.Context, rq relationsQuery) ([]UserWithRelations, error) {
	if s.mode == AggregationPortable {
		return s.selectRelationsPortable(ctx, rq)
	}

	query, args := rq.sql(true)
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select users with relations: %w", err)
	}
	defer rows.Close()

	views := []UserWithRelations{}
	for rows.Next() {
		var (
			v    UserWithRelations
			cars []byte
		)
		err := rows.Scan(&v.User.ID, &v.User.Username, &v.User.Email, &v.User.FirstName, &v.User.Age, &v.User.CreatedAt,
			&v.Address.ID, &v.Address.UserID, &v.Address.City, &v.Address.Build, &v.Address.Apartment,
			&cars)
		if err != nil {
			return nil, fmt.Errorf("scan user with relations: %w", err)
		}
		v.Cars = []Car{}
		if len(cars) > 0 {
			if err := json.Unmarshal(cars, &v.Cars); err != nil {
				return nil, fmt.Errorf("decode cars of user %s: %w", v.User.ID, err)
			}
		}
		views = append(views, v)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("select users with relations: %w", err)
	}
	return views, nil
}

// selectRelationsPortable reads the primary rows first and then all cars of
// those rows with a single second query
func (s *Store) selectRelationsPortable(ctx context.Context, rq relationsQuery) ([]UserWithRelations, error) {
	query, args := rq.sql(false)
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select users with relations: %w", err)
	}
	defer rows.Close()

	views := []UserWithRelations{}
	for rows.Next() {
		var v UserWithRelations
		err := rows.Scan(&v.User.ID, &v.User.Username, &v.User.Email, &v.User.FirstName, &v.User.Age, &v.User.CreatedAt,
			&v.Address.ID, &v.Address.UserID, &v.Address.City, &v.Address.Build, &v.Address.Apartment)
		if err != nil {
			return nil, fmt.Errorf("scan user with relations: %w", err)
		}
		v.Cars = []Car{}
		views = append(views, v)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("select users with relations: %w", err)
	}
	rows.Close()

	if len(views) == 0 {
		return views, nil
	}

	ids := make([]string, len(views))
	index := make(map[uuid.UUID]int, len(views))
	for i, v := range views {
		ids[i] = v.User.ID.String()
		index[v.User.ID] = i
	}

	carRows, err := s.q.QueryContext(ctx,
		`SELECT uc.user_id, c.id, c.model, c.release_year
		FROM users_car uc JOIN car c ON c.id = uc.car_id
		WHERE uc.user_id = ANY($1::uuid[])
		ORDER BY c.model, c.release_year, c.id`,
		pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("select cars of users: %w", err)
	}
	defer carRows.Close()

	for carRows.Next() {
		var (
			userID uuid.UUID
			c      Car
		)
		if err := carRows.Scan(&userID, &c.ID, &c.Model, &c.ReleaseYear); err != nil {
			return nil, fmt.Errorf("scan car: %w", err)
		}
		if i, ok := index[userID]; ok {
			views[i].Cars = append(views[i].Cars, c)
		}
	}
	if err = carRows.Err(); err != nil {
		return nil, fmt.Errorf("select cars of users: %w", err)
	}
	return views, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// escapeLike escapes the wildcards of a LIKE pattern
func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
