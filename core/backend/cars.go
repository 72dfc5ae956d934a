package backend

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/relabs-tech/garage/core"
	"github.com/relabs-tech/garage/core/logger"
	"github.com/relabs-tech/garage/core/store"
)

const schemaCreateCar = "https://garage.relabs.tech/schemas/create_car.json"

func (b *Backend) handleCars(router *mux.Router) {
	logger.Default().Debugln("cars")
	logger.Default().Debugln("  handle route: /cars POST, GET")

	router.HandleFunc("/cars", func(w http.ResponseWriter, r *http.Request) {
		logger.FromContext(r.Context()).Infoln("called route for", r.URL, r.Method)
		b.createCar(w, r)
	}).Methods(http.MethodOptions, http.MethodPost)

	router.HandleFunc("/cars", func(w http.ResponseWriter, r *http.Request) {
		logger.FromContext(r.Context()).Infoln("called route for", r.URL, r.Method)
		b.listCars(w, r)
	}).Methods(http.MethodOptions, http.MethodGet)
}

func (b *Backend) createCar(w http.ResponseWriter, r *http.Request) {
	const handler = "createCar"
	var request CarDto
	if err := b.decodeBody(w, r, schemaCreateCar, &request); err != nil {
		writeError(w, r, handler, 4301, err)
		return
	}
	car, err := b.store(b.db).InsertCar(r.Context(), store.NewCar{Model: request.Model, ReleaseYear: request.CarYear})
	if err != nil {
		writeError(w, r, handler, 4302, err)
		return
	}
	response := carResponse(*car)
	b.notify(r.Context(), core.ResourceCar, core.OperationCreate, car.ID, response)
	writeJSON(w, http.StatusCreated, response)
}

func (b *Backend) listCars(w http.ResponseWriter, r *http.Request) {
	const handler = "getAllCars"
	cars, err := b.store(b.db).SelectCars(r.Context())
	if err != nil {
		writeError(w, r, handler, 4311, err)
		return
	}
	response := make([]CarResponseDto, 0, len(cars))
	for _, c := range cars {
		response = append(response, carResponse(c))
	}
	writeJSON(w, http.StatusOK, response)
}
