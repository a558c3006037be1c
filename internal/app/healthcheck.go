package app

import (
	"net/http"

	"github.com/metinatakli/hostel-booking/api"
)

func (app *Application) GetHealth(w http.ResponseWriter, r *http.Request) {
	status := "UP"
	systemInfo := api.SystemInfo{
		Version:     version,
		Environment: app.config.Env,
	}

	resp := api.HealthcheckResponse{
		Status:     status,
		SystemInfo: systemInfo,
	}

	err := app.writeJSON(w, http.StatusOK, resp, nil)
	if err != nil {
		app.serverErrorResponse(w, r, err)
	}
}

func (app *Application) GetOpenApiDocument(w http.ResponseWriter, r *http.Request) {
	if app.swagger == nil {
		app.notFoundResponse(w, r)
		return
	}

	err := app.writeJSON(w, http.StatusOK, app.swagger, nil)
	if err != nil {
		app.serverErrorResponse(w, r, err)
	}
}
