package store

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when a keyed lookup matches no row
	ErrNotFound = errors.New("not found")
	// ErrMultipleRows is returned when a lookup by a unique key matches more than one row
	ErrMultipleRows = errors.New("multiple rows for unique key")
)

// User is a row of the users table
type User struct {
	ID        uuid.UUID
	Username  string
	Email     *string
	FirstName *string
	Age       *int
	CreatedAt time.Time
}

// NewUser holds the values of a user to be created
type NewUser struct {
	Username  string
	Email     *string
	FirstName *string
	Age       *int
}

// Address is a row of the address table. Within an aggregated view all fields
// are nil when the user has no address.
type Address struct {
	ID        *uuid.UUID
	UserID    *uuid.UUID
	City      *string
	Build     *string
	Apartment *string
}

// IsZero returns true if the address is the filler of a user without address
func (a Address) IsZero() bool {
	return a.ID == nil && a.City == nil && a.Build == nil && a.Apartment == nil
}

// NewAddress holds the values of an address to be created
type NewAddress struct {
	City      *string
	Build     *string
	Apartment *string
}

// Car is a row of the car table
type Car struct {
	ID          uuid.UUID `json:"id"`
	Model       string    `json:"model"`
	ReleaseYear int       `json:"release_year"`
}

// NewCar holds the values of a car to be created
type NewCar struct {
	Model       string
	ReleaseYear int
}

// UserCarLink is a row of the users_car table
type UserCarLink struct {
	ID     uuid.UUID
	UserID uuid.UUID
	CarID  uuid.UUID
}

// UserWithRelations is the aggregated view of a user with its address and cars.
// Cars is never nil.
type UserWithRelations struct {
	User    User
	Address Address
	Cars    []Car
}

// Assignment is a single column = value pair of a partial update
type Assignment struct {
	Column string
	Value  any
}

// Page selects a window of primary rows. Number is zero based.
type Page struct {
	Number int
	Size   int
}

// Offset returns the number of rows to skip
func (p Page) Offset() int {
	return p.Number * p.Size
}

// Statistics holds the row counts of all tables
type Statistics struct {
	Users     int64 `json:"users"`
	Addresses int64 `json:"address"`
	Cars      int64 `json:"car"`
	UserCars  int64 `json:"users_car"`
}
