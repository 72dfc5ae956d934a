package backend

import (
	"time"

	"github.com/google/uuid"
	"github.com/relabs-tech/garage/core/pointers"
	"github.com/relabs-tech/garage/core/store"
)

// CreateUserRequest is the body of POST /users
type CreateUserRequest struct {
	Username  string  `json:"username"`
	Email     *string `json:"email"`
	FirstName *string `json:"firstName"`
	Age       *int    `json:"age"`
}

func (c CreateUserRequest) newUser() store.NewUser {
	return store.NewUser{
		Username:  c.Username,
		Email:     c.Email,
		FirstName: c.FirstName,
		Age:       c.Age,
	}
}

// UpdateUserRequest is the body of PATCH /users/{id}. Absent fields are left untouched,
// explicit nulls clear the column.
type UpdateUserRequest struct {
	Username  pointers.Optional[string] `json:"username"`
	Email     pointers.Optional[string] `json:"email"`
	FirstName pointers.Optional[string] `json:"firstName"`
	Age       pointers.Optional[int]    `json:"age"`
}

// assignments returns the column assignments for all present fields
func (u UpdateUserRequest) assignments() ([]store.Assignment, error) {
	var assignments []store.Assignment
	if u.Username.Set {
		if u.Username.Null {
			return nil, badRequest("username must not be null")
		}
		assignments = append(assignments, store.Assignment{Column: "username", Value: u.Username.Value})
	}
	if u.Email.Set {
		assignments = append(assignments, store.Assignment{Column: "email", Value: u.Email.Ptr()})
	}
	if u.FirstName.Set {
		assignments = append(assignments, store.Assignment{Column: "first_name", Value: u.FirstName.Ptr()})
	}
	if u.Age.Set {
		assignments = append(assignments, store.Assignment{Column: "age", Value: u.Age.Ptr()})
	}
	return assignments, nil
}

// UserResponseDto is the external representation of a user
type UserResponseDto struct {
	ID        uuid.UUID `json:"id"`
	Username  string    `json:"username"`
	Email     *string   `json:"email"`
	FirstName *string   `json:"firstName"`
	Age       *int      `json:"age"`
	CreatedAt time.Time `json:"createdAt"`
}

func userResponse(u store.User) UserResponseDto {
	return UserResponseDto{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		FirstName: u.FirstName,
		Age:       u.Age,
		CreatedAt: u.CreatedAt,
	}
}

// AddressDto is an address. All fields are null for users without address.
type AddressDto struct {
	City      *string `json:"city"`
	Build     *string `json:"build"`
	Apartment *string `json:"apartment"`
}

// CarDto is a car of an aggregated view and of a create request
type CarDto struct {
	Model   string `json:"model"`
	CarYear int    `json:"carYear"`
}

// CarResponseDto is the external representation of a standalone car
type CarResponseDto struct {
	ID      uuid.UUID `json:"id"`
	Model   string    `json:"model"`
	CarYear int       `json:"carYear"`
}

func carResponse(c store.Car) CarResponseDto {
	return CarResponseDto{ID: c.ID, Model: c.Model, CarYear: c.ReleaseYear}
}

// CreateUserWithRelationsRequest is the body of POST /users/relations
type CreateUserWithRelationsRequest struct {
	User    CreateUserRequest `json:"user"`
	Address *AddressDto       `json:"address"`
	Cars    []CarDto          `json:"cars"`
}

// UserWithRelationsDto is the aggregated view of a user
type UserWithRelationsDto struct {
	User    UserResponseDto `json:"user"`
	Address AddressDto      `json:"address"`
	Cars    []CarDto        `json:"cars"`
}

func userWithRelationsResponse(v store.UserWithRelations) UserWithRelationsDto {
	dto := UserWithRelationsDto{
		User: userResponse(v.User),
		Address: AddressDto{
			City:      v.Address.City,
			Build:     v.Address.Build,
			Apartment: v.Address.Apartment,
		},
		Cars: make([]CarDto, 0, len(v.Cars)),
	}
	for _, c := range v.Cars {
		dto.Cars = append(dto.Cars, CarDto{Model: c.Model, CarYear: c.ReleaseYear})
	}
	return dto
}

func userWithRelationsResponses(views []store.UserWithRelations) []UserWithRelationsDto {
	response := make([]UserWithRelationsDto, 0, len(views))
	for _, v := range views {
		response = append(response, userWithRelationsResponse(v))
	}
	return response
}
