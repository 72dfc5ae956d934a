package test

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/relabs-tech/garage/core"
	"github.com/relabs-tech/garage/core/backend"
	"github.com/relabs-tech/garage/core/client"
	"github.com/relabs-tech/garage/core/events"
	"github.com/relabs-tech/garage/core/pointers"
	"github.com/stretchr/testify/suite"
)

type GarageTestSuite struct {
	IntegrationTestSuite
}

func TestGarageTestSuite(t *testing.T) {
	suite.Run(t, &GarageTestSuite{})
}

// uniqueName returns a username which is not used by any other test
func uniqueName(prefix string) string {
	return prefix + "_" + strings.ReplaceAll(uuid.NewString()[:8], "-", "")
}

func (s *GarageTestSuite) statistics() map[string]int {
	var stats map[string]int
	_, err := s.client.RawGet("/statistics", &stats)
	s.Require().NoError(err)
	return stats
}

func (s *GarageTestSuite) TestUserLifecycle() {
	username := uniqueName("alice")

	var created backend.UserResponseDto
	_, err := s.client.RawPost("/users", backend.CreateUserRequest{Username: username, Age: pointers.To(30)}, &created)
	s.Require().NoError(err)
	s.NotEqual(uuid.Nil, created.ID)
	s.False(created.CreatedAt.IsZero())

	var errorDto backend.ErrorDto
	status, err := s.client.Do(http.MethodPost, "/users", backend.CreateUserRequest{Username: username}, &errorDto)
	s.Require().NoError(err)
	s.Equal(http.StatusConflict, status)

	var patched backend.UserResponseDto
	_, err = s.client.RawPatch("/users/"+created.ID.String(), map[string]interface{}{"age": 31, "email": "a@example.com"}, &patched)
	s.Require().NoError(err)
	s.Equal(username, patched.Username)
	s.Equal(31, *patched.Age)
	s.Equal("a@example.com", *patched.Email)

	_, err = s.client.RawPatch("/users/"+created.ID.String(), []byte(`{"email":null}`), &patched)
	s.Require().NoError(err)
	s.Nil(patched.Email)
	s.Equal(31, *patched.Age)

	var fetched backend.UserResponseDto
	_, err = s.client.RawGet("/users/"+created.ID.String(), &fetched)
	s.Require().NoError(err)
	s.Equal(patched, fetched)

	_, err = s.client.RawDelete("/users/" + created.ID.String())
	s.Require().NoError(err)

	status, err = s.client.Do(http.MethodDelete, "/users/"+created.ID.String(), nil, nil)
	s.Require().NoError(err)
	s.Equal(http.StatusNotFound, status)

	status, err = s.client.Do(http.MethodGet, "/users/"+created.ID.String(), nil, nil)
	s.Require().NoError(err)
	s.Equal(http.StatusNotFound, status)
}

func (s *GarageTestSuite) TestUsersAreListedNewestFirst() {
	var ids []uuid.UUID
	for i := 0; i < 3; i++ {
		var u backend.UserResponseDto
		_, err := s.client.RawPost("/users", backend.CreateUserRequest{Username: uniqueName("paging")}, &u)
		s.Require().NoError(err)
		ids = append(ids, u.ID)
		time.Sleep(5 * time.Millisecond)
	}

	var page []backend.UserResponseDto
	_, err := s.client.RawGet(client.PagePath("/users", 0, 2), &page)
	s.Require().NoError(err)
	s.Require().Len(page, 2)
	s.Equal(ids[2], page[0].ID)
	s.Equal(ids[1], page[1].ID)

	var next []backend.UserResponseDto
	_, err = s.client.RawGet(client.PagePath("/users", 1, 2), &next)
	s.Require().NoError(err)
	s.Require().NotEmpty(next)
	s.Equal(ids[0], next[0].ID)
}

func (s *GarageTestSuite) TestCreateUserWithRelations() {
	username := uniqueName("Carla")
	request := backend.CreateUserWithRelationsRequest{
		User:    backend.CreateUserRequest{Username: username, Age: pointers.To(40)},
		Address: &backend.AddressDto{City: pointers.To("Berlin"), Build: pointers.To("7")},
		Cars: []backend.CarDto{
			{Model: "Model 3", CarYear: 2022},
			{Model: "Civic", CarYear: 2020},
			{Model: "Civic", CarYear: 2018},
		},
	}
	before := s.statistics()

	var created backend.UserWithRelationsDto
	_, err := s.client.RawPost("/users/relations", request, &created)
	s.Require().NoError(err)
	s.Equal(username, created.User.Username)
	s.Equal("Berlin", *created.Address.City)
	s.Nil(created.Address.Apartment)
	s.Equal([]backend.CarDto{
		{Model: "Civic", CarYear: 2018},
		{Model: "Civic", CarYear: 2020},
		{Model: "Model 3", CarYear: 2022},
	}, created.Cars)

	after := s.statistics()
	s.Equal(before["users"]+1, after["users"])
	s.Equal(before["address"]+1, after["address"])
	s.Equal(before["car"]+3, after["car"])
	s.Equal(before["users_car"]+3, after["users_car"])

	for _, c := range []client.Client{s.client, s.portable} {
		var view backend.UserWithRelationsDto
		_, err = c.RawGet("/users/relations/"+username, &view)
		s.Require().NoError(err)
		s.Equal(created, view)
	}
}

func (s *GarageTestSuite) TestCreateUserWithRelationsWithoutAddress() {
	username := uniqueName("dave")

	var body []byte
	_, err := s.client.RawPost("/users/relations", backend.CreateUserWithRelationsRequest{
		User: backend.CreateUserRequest{Username: username},
	}, &body)
	s.Require().NoError(err)
	s.JSONEq(`{"city":null,"build":null,"apartment":null}`, string(extract(s.T(), body, "address")))
	s.JSONEq(`[]`, string(extract(s.T(), body, "cars")))
}

func (s *GarageTestSuite) TestCreateUserWithRelationsIsAtomic() {
	username := uniqueName("erin")
	_, err := s.client.RawPost("/users", backend.CreateUserRequest{Username: username}, nil)
	s.Require().NoError(err)
	before := s.statistics()

	status, err := s.client.Do(http.MethodPost, "/users/relations", backend.CreateUserWithRelationsRequest{
		User:    backend.CreateUserRequest{Username: username},
		Address: &backend.AddressDto{City: pointers.To("Paris")},
		Cars:    []backend.CarDto{{Model: "Clio", CarYear: 2019}},
	}, nil)
	s.Require().NoError(err)
	s.Equal(http.StatusConflict, status)
	s.Equal(before, s.statistics())
}

func (s *GarageTestSuite) TestSearchUsersWithRelations() {
	marker := strings.ReplaceAll(uuid.NewString()[:8], "-", "")
	for _, name := range []string{"Frank" + marker, "frank_" + marker + "x", "gina" + marker} {
		_, err := s.client.RawPost("/users/relations", backend.CreateUserWithRelationsRequest{
			User: backend.CreateUserRequest{Username: name},
			Cars: []backend.CarDto{{Model: "Golf", CarYear: 2015}},
		}, nil)
		s.Require().NoError(err)
	}

	for _, c := range []client.Client{s.client, s.portable} {
		var views []backend.UserWithRelationsDto
		_, err := c.RawGet(client.WithQuery("/users/relations/search", map[string]string{
			"username": "FRANK" + strings.ToUpper(marker)[:4],
		}), &views)
		s.Require().NoError(err)
		s.Require().Len(views, 1)
		s.Equal("Frank"+marker, views[0].User.Username)
		s.Equal([]backend.CarDto{{Model: "Golf", CarYear: 2015}}, views[0].Cars)

		_, err = c.RawGet(client.WithQuery("/users/relations/search", map[string]string{"username": marker}), &views)
		s.Require().NoError(err)
		s.Len(views, 3)

		_, err = c.RawGet(client.WithQuery("/users/relations/search", map[string]string{"username": "k_" + marker}), &views)
		s.Require().NoError(err)
		s.Require().Len(views, 1)
		s.Equal("frank_"+marker+"x", views[0].User.Username)
	}
}

func (s *GarageTestSuite) TestNotificationsAreWrittenToKafka() {
	reader := s.reader()
	defer reader.Close()

	var created backend.UserResponseDto
	_, err := s.client.RawPost("/users", backend.CreateUserRequest{Username: uniqueName("kafka")}, &created)
	s.Require().NoError(err)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	for {
		msg, err := reader.ReadMessage(ctx)
		s.Require().NoError(err)
		if string(msg.Key) != created.ID.String() {
			continue
		}
		var n events.Notification
		s.Require().NoError(json.Unmarshal(msg.Value, &n))
		s.Equal(core.ResourceUser, n.Resource)
		s.Equal(core.OperationCreate, n.Operation)
		s.Equal(created.ID, n.ResourceID)

		var payload backend.UserResponseDto
		s.Require().NoError(json.Unmarshal(n.Payload, &payload))
		s.Equal(created.Username, payload.Username)
		return
	}
}

func (s *GarageTestSuite) TestConcurrentCreateSameUsername() {
	username := uniqueName("race")
	const n = 8

	var wg sync.WaitGroup
	statuses := make([]int, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			statuses[i], _ = s.client.Do(http.MethodPost, "/users", backend.CreateUserRequest{Username: username}, nil)
		}(i)
	}
	wg.Wait()

	created := 0
	for _, status := range statuses {
		switch status {
		case http.StatusCreated:
			created++
		default:
			s.Equal(http.StatusConflict, status)
		}
	}
	s.Equal(1, created)
}

func extract(t *testing.T, body []byte, key string) json.RawMessage {
	t.Helper()
	var m map[string]json.RawMessage
	if err := json.Unmarshal(body, &m); err != nil {
		t.Fatal(err)
	}
	return m[key]
}
