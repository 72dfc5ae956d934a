package store

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/relabs-tech/garage/core/csql"
	"github.com/relabs-tech/garage/core/pointers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInsertCars(t *testing.T) {
	db, mock := newMock(t)
	civic, model3 := uuid.New(), uuid.New()

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO car (id, model, release_year) SELECT * FROM unnest($1::uuid[], $2::varchar[], $3::int[])`)).
		WithArgs(`{"`+civic.String()+`","`+model3.String()+`"}`, `{"Civic","Model 3"}`, "{2020,2022}").
		WillReturnResult(sqlmock.NewResult(0, 2))

	err := New(db).InsertCars(context.Background(), []Car{
		{ID: civic, Model: "Civic", ReleaseYear: 2020},
		{ID: model3, Model: "Model 3", ReleaseYear: 2022},
	})
	require.NoError(t, err)
}

// the postgres protocol allows at most 65535 bind parameters per statement
func TestInsertCarsManyCars(t *testing.T) {
	db, mock := newMock(t)
	const n = 22000
	cars := make([]Car, n)
	links := make([]UserCarLink, n)
	userID := uuid.New()
	for i := range cars {
		cars[i] = Car{ID: uuid.New(), Model: "Golf", ReleaseYear: 2015}
		links[i] = UserCarLink{ID: uuid.New(), UserID: userID, CarID: cars[i].ID}
	}

	mock.ExpectExec(`INSERT INTO car`).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, n))
	mock.ExpectExec(`INSERT INTO users_car`).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, n))

	s := New(db)
	require.NoError(t, s.InsertCars(context.Background(), cars))
	require.NoError(t, s.InsertUserCars(context.Background(), links))
}

func TestInsertCarsEmpty(t *testing.T) {
	db, _ := newMock(t)
	s := New(db)
	assert.NoError(t, s.InsertCars(context.Background(), nil))
	assert.NoError(t, s.InsertUserCars(context.Background(), nil))
}

func TestCreateWithRelations(t *testing.T) {
	db, mock := newMock(t)
	userID := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO users`).
		WithArgs(sqlmock.AnyArg(), "alice", nil, nil, int64(30)).
		WillReturnRows(sqlmock.NewRows(userRowColumns).AddRow(userID.String(), "alice", nil, nil, int64(30), time.Now()))
	mock.ExpectExec(`INSERT INTO address`).
		WithArgs(sqlmock.AnyArg(), userID.String(), "NY", "12", "3B").
		WillReturnResult(sqlmock.NewResult(0, 1))
	// exactly one statement for all cars and one for all links
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO car (id, model, release_year) SELECT * FROM unnest(`)).
		WithArgs(sqlmock.AnyArg(), `{"Civic","Model3"}`, "{2020,2022}").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO users_car (id, user_id, car_id) SELECT * FROM unnest(`)).
		WithArgs(sqlmock.AnyArg(), `{"`+userID.String()+`","`+userID.String()+`"}`, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectQuery(`WHERE u.username = \$1`).
		WithArgs("alice").
		WillReturnRows(sqlmock.NewRows(append(relationRowColumns, "cars")).
			AddRow(userID.String(), "alice", nil, nil, int64(30), time.Now(),
				uuid.NewString(), userID.String(), "NY", "12", "3B",
				`[{"id":"`+uuid.NewString()+`","model":"Civic","release_year":2020},{"id":"`+uuid.NewString()+`","model":"Model3","release_year":2022}]`))
	mock.ExpectCommit()

	view, err := CreateWithRelations(context.Background(), db, AggregationJSON,
		NewUser{Username: "alice", Age: pointers.To(30)},
		&NewAddress{City: pointers.To("NY"), Build: pointers.To("12"), Apartment: pointers.To("3B")},
		[]NewCar{{Model: "Civic", ReleaseYear: 2020}, {Model: "Model3", ReleaseYear: 2022}})
	require.NoError(t, err)
	assert.Equal(t, userID, view.User.ID)
	assert.Equal(t, "3B", *view.Address.Apartment)
	require.Len(t, view.Cars, 2)
	assert.ElementsMatch(t, []string{"Civic", "Model3"}, []string{view.Cars[0].Model, view.Cars[1].Model})
}

func TestCreateWithRelationsWithoutCarsOrAddress(t *testing.T) {
	db, mock := newMock(t)
	userID := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO users`).
		WillReturnRows(sqlmock.NewRows(userRowColumns).AddRow(userID.String(), "solo", nil, nil, nil, time.Now()))
	mock.ExpectQuery(`WHERE u.username = \$1`).
		WithArgs("solo").
		WillReturnRows(sqlmock.NewRows(append(relationRowColumns, "cars")).
			AddRow(userID.String(), "solo", nil, nil, nil, time.Now(), nil, nil, nil, nil, nil, `[]`))
	mock.ExpectCommit()

	view, err := CreateWithRelations(context.Background(), db, AggregationJSON, NewUser{Username: "solo"}, nil, nil)
	require.NoError(t, err)
	assert.NotNil(t, view.Cars)
	assert.Empty(t, view.Cars)
	assert.True(t, view.Address.IsZero())
}

func TestCreateWithRelationsRollsBackOnCarFailure(t *testing.T) {
	db, mock := newMock(t)
	userID := uuid.New()
	failure := errors.New("car batch failed")

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO users`).
		WillReturnRows(sqlmock.NewRows(userRowColumns).AddRow(userID.String(), "alice", nil, nil, nil, time.Now()))
	mock.ExpectExec(`INSERT INTO address`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO car`).WillReturnError(failure)
	mock.ExpectRollback()

	_, err := CreateWithRelations(context.Background(), db, AggregationJSON,
		NewUser{Username: "alice"}, &NewAddress{City: pointers.To("NY")},
		[]NewCar{{Model: "Civic", ReleaseYear: 2020}})
	assert.ErrorIs(t, err, failure)
	assert.Contains(t, err.Error(), "failed to create user with relations")
}

func TestCreateWithRelationsDuplicateUsername(t *testing.T) {
	db, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO users`).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "users_username_key", Message: "duplicate key value"})
	mock.ExpectRollback()

	_, err := CreateWithRelations(context.Background(), db, AggregationJSON, NewUser{Username: "alice"}, nil, nil)
	assert.ErrorIs(t, err, csql.ErrUniqueViolation)
}
