package backend

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/relabs-tech/garage/core"
	"github.com/relabs-tech/garage/core/logger"
	"github.com/relabs-tech/garage/core/store"
)

const schemaCreateUserWithRelations = "https://garage.relabs.tech/schemas/create_user_with_relations.json"

// search scopes of /users/relations/search
const (
	searchScopeQuery = "query"
	searchScopePage  = "page"
)

func (b *Backend) handleRelations(router *mux.Router) {
	logger.Default().Debugln("users with relations")
	logger.Default().Debugln("  handle route: /users/relations POST")
	logger.Default().Debugln("  handle route: /users/relations/full GET")
	logger.Default().Debugln("  handle route: /users/relations/search GET")
	logger.Default().Debugln("  handle route: /users/relations/{username} GET")

	router.HandleFunc("/users/relations", func(w http.ResponseWriter, r *http.Request) {
		logger.FromContext(r.Context()).Infoln("called route for", r.URL, r.Method)
		b.createUserWithRelations(w, r)
	}).Methods(http.MethodOptions, http.MethodPost)

	router.HandleFunc("/users/relations/full", func(w http.ResponseWriter, r *http.Request) {
		logger.FromContext(r.Context()).Infoln("called route for", r.URL, r.Method)
		b.listUsersWithRelations(w, r)
	}).Methods(http.MethodOptions, http.MethodGet)

	router.HandleFunc("/users/relations/search", func(w http.ResponseWriter, r *http.Request) {
		logger.FromContext(r.Context()).Infoln("called route for", r.URL, r.Method)
		b.searchUsersWithRelations(w, r)
	}).Methods(http.MethodOptions, http.MethodGet)

	router.HandleFunc("/users/relations/{username}", func(w http.ResponseWriter, r *http.Request) {
		logger.FromContext(r.Context()).Infoln("called route for", r.URL, r.Method)
		b.getUserWithRelations(w, r)
	}).Methods(http.MethodOptions, http.MethodGet)
}

func (b *Backend) createUserWithRelations(w http.ResponseWriter, r *http.Request) {
	const handler = "createUserWithRelations"
	var request CreateUserWithRelationsRequest
	if err := b.decodeBody(w, r, schemaCreateUserWithRelations, &request); err != nil {
		writeError(w, r, handler, 4201, err)
		return
	}

	var address *store.NewAddress
	if request.Address != nil {
		address = &store.NewAddress{
			City:      request.Address.City,
			Build:     request.Address.Build,
			Apartment: request.Address.Apartment,
		}
	}
	cars := make([]store.NewCar, 0, len(request.Cars))
	for _, c := range request.Cars {
		cars = append(cars, store.NewCar{Model: c.Model, ReleaseYear: c.CarYear})
	}

	view, err := store.CreateWithRelations(r.Context(), b.db.DB, b.mode, request.User.newUser(), address, cars)
	if err != nil {
		writeError(w, r, handler, 4202, err)
		return
	}
	response := userWithRelationsResponse(*view)
	b.notify(r.Context(), core.ResourceUser, core.OperationCreate, view.User.ID, response)
	writeJSON(w, http.StatusCreated, response)
}

func (b *Backend) getUserWithRelations(w http.ResponseWriter, r *http.Request) {
	const handler = "getUserWithRelations"
	username := mux.Vars(r)["username"]
	view, err := b.store(b.db).UserWithRelationsByUsername(r.Context(), username)
	if err != nil {
		writeError(w, r, handler, 4211, err)
		return
	}
	writeJSON(w, http.StatusOK, userWithRelationsResponse(*view))
}

func (b *Backend) listUsersWithRelations(w http.ResponseWriter, r *http.Request) {
	const handler = "getUsersWithFullRelations"
	page, err := pageFromRequest(r)
	if err != nil {
		writeError(w, r, handler, 4221, err)
		return
	}
	views, err := b.store(b.db).UsersWithRelations(r.Context(), page)
	if err != nil {
		writeError(w, r, handler, 4222, err)
		return
	}
	writeJSON(w, http.StatusOK, userWithRelationsResponses(views))
}

// searchUsersWithRelations searches usernames by substring. The default scope
// filters in the database and pages the matches. Scope "page" fetches one page
// of all users and filters within that page only.
func (b *Backend) searchUsersWithRelations(w http.ResponseWriter, r *http.Request) {
	const handler = "searchUsers"
	query := r.URL.Query()
	username := query.Get("username")
	if username == "" {
		writeError(w, r, handler, 4231, badRequest("parameter 'username' is required"))
		return
	}
	page, err := pageFromRequest(r)
	if err != nil {
		writeError(w, r, handler, 4232, err)
		return
	}

	s := b.store(b.db)
	var views []store.UserWithRelations
	switch scope := query.Get("scope"); scope {
	case "", searchScopeQuery:
		views, err = s.SearchUsersWithRelations(r.Context(), username, page)
	case searchScopePage:
		views, err = s.UsersWithRelations(r.Context(), page)
		views = filterByUsername(views, username)
	default:
		err = badRequest("parameter 'scope': unknown scope '%s'", scope)
	}
	if err != nil {
		writeError(w, r, handler, 4233, err)
		return
	}
	writeJSON(w, http.StatusOK, userWithRelationsResponses(views))
}

// filterByUsername keeps the views whose username contains substring, case insensitive
func filterByUsername(views []store.UserWithRelations, substring string) []store.UserWithRelations {
	substring = strings.ToLower(substring)
	filtered := []store.UserWithRelations{}
	for _, v := range views {
		if strings.Contains(strings.ToLower(v.User.Username), substring) {
			filtered = append(filtered, v)
		}
	}
	return filtered
}
