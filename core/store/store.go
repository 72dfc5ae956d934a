// Package store is the persistence gateway of the garage service.
//
// All statements run against a csql.Querier, which is either the database pool
// or a transaction. Tables are addressed unqualified, the connection's search
// path selects the schema.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/relabs-tech/garage/core/csql"
)

// AggregationMode selects how aggregated views are queried
type AggregationMode string

const (
	// AggregationJSON builds the car collection with a correlated json_agg subquery
	AggregationJSON AggregationMode = "json"
	// AggregationPortable reads users and cars with two plain queries
	AggregationPortable AggregationMode = "portable"
)

// ParseAggregationMode parses s. The empty string selects AggregationJSON.
func ParseAggregationMode(s string) (AggregationMode, error) {
	switch AggregationMode(strings.ToLower(s)) {
	case "", AggregationJSON:
		return AggregationJSON, nil
	case AggregationPortable:
		return AggregationPortable, nil
	}
	return "", fmt.Errorf("unknown aggregation mode '%s'", s)
}

// Store issues the statements of the service
type Store struct {
	q    csql.Querier
	mode AggregationMode
}

// Option configures a Store
type Option func(*Store)

// WithAggregationMode selects the query strategy for aggregated views
func WithAggregationMode(mode AggregationMode) Option {
	return func(s *Store) {
		s.mode = mode
	}
}

// New returns a store on q
func New(q csql.Querier, opts ...Option) *Store {
	s := &Store{q: q, mode: AggregationJSON}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

const userColumns = `id, username, email, first_name, age, created_at`

// columns of users which can be changed with UpdateUser
var updatableUserColumns = map[string]bool{
	"username":   true,
	"email":      true,
	"first_name": true,
	"age":        true,
}

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(row scanner) (*User, error) {
	u := &User{}
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.FirstName, &u.Age, &u.CreatedAt)
	if err != nil {
		return nil, err
	}
	return u, nil
}

// InsertUser inserts a user with a new identifier
func (s *Store) InsertUser(ctx context.Context, nu NewUser) (*User, error) {
	return s.insertUser(ctx, uuid.New(), nu)
}

func (s *Store) insertUser(ctx context.Context, id uuid.UUID, nu NewUser) (*User, error) {
	row := s.q.QueryRowContext(ctx,
		`INSERT INTO users (id, username, email, first_name, age)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+userColumns,
		id, nu.Username, nu.Email, nu.FirstName, nu.Age)
	u, err := scanUser(row)
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", csql.Classify(err))
	}
	return u, nil
}

// SelectUser returns the user with id, or nil if there is none
func (s *Store) SelectUser(ctx context.Context, id uuid.UUID) (*User, error) {
	return s.selectOneUser(ctx, `id = $1`, id)
}

// SelectUserByUsername returns the user with username, or nil if there is none
func (s *Store) SelectUserByUsername(ctx context.Context, username string) (*User, error) {
	return s.selectOneUser(ctx, `username = $1`, username)
}

func (s *Store) selectOneUser(ctx context.Context, where string, args ...any) (*User, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT `+userColumns+` FROM users WHERE `+where+` LIMIT 2`, args...)
	if err != nil {
		return nil, fmt.Errorf("select user: %w", err)
	}
	defer rows.Close()

	var user *User
	for rows.Next() {
		if user != nil {
			return nil, ErrMultipleRows
		}
		user, err = scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("select user: %w", err)
	}
	return user, nil
}

// SelectUsers returns one page of users, newest first
func (s *Store) SelectUsers(ctx context.Context, page Page) ([]User, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users
		ORDER BY created_at DESC, id DESC
		LIMIT $1 OFFSET $2`,
		page.Size, page.Offset())
	if err != nil {
		return nil, fmt.Errorf("select users: %w", err)
	}
	defer rows.Close()

	users := []User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, *u)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("select users: %w", err)
	}
	return users, nil
}

// UserExists returns true if a user with id exists
func (s *Store) UserExists(ctx context.Context, id uuid.UUID) (bool, error) {
	var exists bool
	err := s.q.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("user exists: %w", err)
	}
	return exists, nil
}

// UpdateUser applies the assignments to the user with id and returns the number of
// affected rows. Without assignments nothing is written and 0 is returned.
func (s *Store) UpdateUser(ctx context.Context, id uuid.UUID, assignments []Assignment) (int64, error) {
	if len(assignments) == 0 {
		return 0, nil
	}
	setClauses := make([]string, 0, len(assignments))
	args := make([]any, 0, len(assignments)+1)
	for i, a := range assignments {
		if !updatableUserColumns[a.Column] {
			return 0, fmt.Errorf("update user: column '%s' cannot be updated", a.Column)
		}
		setClauses = append(setClauses, a.Column+" = $"+strconv.Itoa(i+1))
		args = append(args, a.Value)
	}
	args = append(args, id)

	query := `UPDATE users SET ` + strings.Join(setClauses, ", ") + ` WHERE id = $` + strconv.Itoa(len(args))
	res, err := s.q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("update user: %w", csql.Classify(err))
	}
	return res.RowsAffected()
}

// DeleteUser deletes the user with id together with its address and car links.
// It returns the number of affected rows.
func (s *Store) DeleteUser(ctx context.Context, id uuid.UUID) (int64, error) {
	res, err := s.q.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return 0, fmt.Errorf("delete user: %w", csql.Classify(err))
	}
	return res.RowsAffected()
}

// InsertAddress inserts the address of user userID
func (s *Store) InsertAddress(ctx context.Context, userID uuid.UUID, na NewAddress) (*Address, error) {
	id := uuid.New()
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO address (id, user_id, city, build, apartment) VALUES ($1, $2, $3, $4, $5)`,
		id, userID, na.City, na.Build, na.Apartment)
	if err != nil {
		return nil, fmt.Errorf("insert address: %w", csql.Classify(err))
	}
	return &Address{
		ID:        &id,
		UserID:    &userID,
		City:      na.City,
		Build:     na.Build,
		Apartment: na.Apartment,
	}, nil
}

// Statistics returns the row counts of all tables
func (s *Store) Statistics(ctx context.Context) (*Statistics, error) {
	st := &Statistics{}
	err := s.q.QueryRowContext(ctx, `SELECT
		(SELECT count(*) FROM users),
		(SELECT count(*) FROM address),
		(SELECT count(*) FROM car),
		(SELECT count(*) FROM users_car)`).Scan(&st.Users, &st.Addresses, &st.Cars, &st.UserCars)
	if err != nil {
		return nil, fmt.Errorf("statistics: %w", err)
	}
	return st, nil
}

// IsNotFound returns true if err is ErrNotFound or sql.ErrNoRows
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, sql.ErrNoRows)
}
