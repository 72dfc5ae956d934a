// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

package backend

import (
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/relabs-tech/garage/core"
	"github.com/relabs-tech/garage/core/logger"
	"github.com/relabs-tech/garage/core/store"
)

const (
	schemaCreateUser = "https://garage.relabs.tech/schemas/create_user.json"
	schemaUpdateUser = "https://garage.relabs.tech/schemas/update_user.json"
)

func userIDFromRequest(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		return uuid.Nil, badRequest("invalid uuid '%s'", mux.Vars(r)["id"])
	}
	return id, nil
}

func userNotFound(id uuid.UUID) error {
	return fmt.Errorf("user with id %s: %w", id, store.ErrNotFound)
}

func (b *Backend) handleUsers(router *mux.Router) {
	logger.Default().Debugln("users")
	logger.Default().Debugln("  handle route: /users POST, GET")
	logger.Default().Debugln("  handle route: /users/{id} GET, PATCH, DELETE")

	router.HandleFunc("/users", func(w http.ResponseWriter, r *http.Request) {
		logger.FromContext(r.Context()).Infoln("called route for", r.URL, r.Method)
		b.createUser(w, r)
	}).Methods(http.MethodOptions, http.MethodPost)

	router.HandleFunc("/users", func(w http.ResponseWriter, r *http.Request) {
		logger.FromContext(r.Context()).Infoln("called route for", r.URL, r.Method)
		b.listUsers(w, r)
	}).Methods(http.MethodOptions, http.MethodGet)

	router.HandleFunc("/users/{id}", func(w http.ResponseWriter, r *http.Request) {
		logger.FromContext(r.Context()).Infoln("called route for", r.URL, r.Method)
		b.getUser(w, r)
	}).Methods(http.MethodOptions, http.MethodGet)

	router.HandleFunc("/users/{id}", func(w http.ResponseWriter, r *http.Request) {
		logger.FromContext(r.Context()).Infoln("called route for", r.URL, r.Method)
		b.updateUserPartial(w, r)
	}).Methods(http.MethodOptions, http.MethodPatch)

	router.HandleFunc("/users/{id}", func(w http.ResponseWriter, r *http.Request) {
		logger.FromContext(r.Context()).Infoln("called route for", r.URL, r.Method)
		b.deleteUser(w, r)
	}).Methods(http.MethodOptions, http.MethodDelete)
}

func (b *Backend) createUser(w http.ResponseWriter, r *http.Request) {
	const handler = "createUser"
	var request CreateUserRequest
	if err := b.decodeBody(w, r, schemaCreateUser, &request); err != nil {
		writeError(w, r, handler, 4101, err)
		return
	}

	user, err := b.store(b.db).InsertUser(r.Context(), request.newUser())
	if err != nil {
		writeError(w, r, handler, 4102, err)
		return
	}
	response := userResponse(*user)
	b.notify(r.Context(), core.ResourceUser, core.OperationCreate, user.ID, response)
	writeJSON(w, http.StatusCreated, response)
}

func (b *Backend) getUser(w http.ResponseWriter, r *http.Request) {
	const handler = "getUserById"
	id, err := userIDFromRequest(r)
	if err != nil {
		writeError(w, r, handler, 4111, err)
		return
	}
	user, err := b.store(b.db).SelectUser(r.Context(), id)
	if err == nil && user == nil {
		err = userNotFound(id)
	}
	if err != nil {
		writeError(w, r, handler, 4112, err)
		return
	}
	writeJSON(w, http.StatusOK, userResponse(*user))
}

func (b *Backend) listUsers(w http.ResponseWriter, r *http.Request) {
	const handler = "getUsersWithPagination"
	page, err := pageFromRequest(r)
	if err != nil {
		writeError(w, r, handler, 4121, err)
		return
	}
	users, err := b.store(b.db).SelectUsers(r.Context(), page)
	if err != nil {
		writeError(w, r, handler, 4122, err)
		return
	}
	response := make([]UserResponseDto, 0, len(users))
	for _, u := range users {
		response = append(response, userResponse(u))
	}
	writeJSON(w, http.StatusOK, response)
}

func (b *Backend) updateUserPartial(w http.ResponseWriter, r *http.Request) {
	const handler = "updateUserPartial"
	id, err := userIDFromRequest(r)
	if err != nil {
		writeError(w, r, handler, 4131, err)
		return
	}
	var request UpdateUserRequest
	if err := b.decodeBody(w, r, schemaUpdateUser, &request); err != nil {
		writeError(w, r, handler, 4132, err)
		return
	}
	assignments, err := request.assignments()
	if err != nil {
		writeError(w, r, handler, 4133, err)
		return
	}

	s := b.store(b.db)
	exists, err := s.UserExists(r.Context(), id)
	if err == nil && !exists {
		err = userNotFound(id)
	}
	if err != nil {
		writeError(w, r, handler, 4134, err)
		return
	}

	if len(assignments) > 0 {
		n, err := s.UpdateUser(r.Context(), id, assignments)
		if err == nil && n == 0 {
			// deleted after the existence check
			err = userNotFound(id)
		}
		if err != nil {
			writeError(w, r, handler, 4135, err)
			return
		}
	}

	user, err := s.SelectUser(r.Context(), id)
	if err == nil && user == nil {
		err = userNotFound(id)
	}
	if err != nil {
		writeError(w, r, handler, 4136, err)
		return
	}
	response := userResponse(*user)
	if len(assignments) > 0 {
		b.notify(r.Context(), core.ResourceUser, core.OperationUpdate, id, response)
	}
	writeJSON(w, http.StatusOK, response)
}

func (b *Backend) deleteUser(w http.ResponseWriter, r *http.Request) {
	const handler = "deleteUser"
	id, err := userIDFromRequest(r)
	if err != nil {
		writeError(w, r, handler, 4141, err)
		return
	}

	s := b.store(b.db)
	exists, err := s.UserExists(r.Context(), id)
	if err == nil && !exists {
		err = userNotFound(id)
	}
	if err != nil {
		writeError(w, r, handler, 4142, err)
		return
	}

	n, err := s.DeleteUser(r.Context(), id)
	if err == nil && n == 0 {
		// deleted after the existence check
		err = userNotFound(id)
	}
	if err != nil {
		writeError(w, r, handler, 4143, err)
		return
	}
	b.notify(r.Context(), core.ResourceUser, core.OperationDelete, id, nil)
	w.WriteHeader(http.StatusNoContent)
}
