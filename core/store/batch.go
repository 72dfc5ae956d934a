package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/relabs-tech/garage/core/csql"
)

// CreateWithRelations creates a user together with its address and cars in one
// transaction. Cars and their links are written with one multi-row statement
// each, regardless of the number of cars. address may be nil.
//
// The returned view is read back inside the same transaction.
func CreateWithRelations(ctx context.Context, db *sql.DB, mode AggregationMode, nu NewUser, address *NewAddress, cars []NewCar) (*UserWithRelations, error) {
	var view *UserWithRelations
	err := csql.WithTx(ctx, db, nil, func(ctx context.Context, tx csql.Querier) error {
		s := New(tx, WithAggregationMode(mode))

		user, err := s.InsertUser(ctx, nu)
		if err != nil {
			return err
		}

		if address != nil {
			if _, err := s.InsertAddress(ctx, user.ID, *address); err != nil {
				return err
			}
		}

		if len(cars) > 0 {
			// identifiers by position, links[i] refers to rows[i]
			rows := make([]Car, len(cars))
			links := make([]UserCarLink, len(cars))
			for i, nc := range cars {
				rows[i] = Car{ID: uuid.New(), Model: nc.Model, ReleaseYear: nc.ReleaseYear}
				links[i] = UserCarLink{ID: uuid.New(), UserID: user.ID, CarID: rows[i].ID}
			}
			if err := s.InsertCars(ctx, rows); err != nil {
				return err
			}
			if err := s.InsertUserCars(ctx, links); err != nil {
				return err
			}
		}

		view, err = s.UserWithRelationsByUsername(ctx, user.Username)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create user with relations: %w", err)
	}
	return view, nil
}
