package api

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/argus-vision/argus/internal/session"
	"github.com/argus-vision/argus/internal/watchlist"
)

func NewRouter(cfg ServerConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware())
	r.Use(RecoveryMiddleware(cfg.Logger))
	r.Use(LoggingMiddleware(cfg.Logger))

	r.Get("/health", healthHandler(cfg))

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(cfg.Persons, cfg.Logger))

		r.Get("/cameras", listCamerasHandler(cfg))
		r.Post("/cameras/{id}/live/start", cameraCommandHandler(cfg, cfg.Registry.StartLive))
		r.Post("/cameras/{id}/live/stop", cameraCommandHandler(cfg, cfg.Registry.StopLive))
		r.Post("/cameras/{id}/disconnect", cameraCommandHandler(cfg, cfg.Registry.Disconnect))
		r.Get("/radar", radarHandler(cfg))
		r.Get("/persons", listPersonsHandler(cfg))
		r.Get("/persons/{id}", getPersonHandler(cfg))
		r.Get("/watchlist", listWatchlistHandler(cfg))
		r.Post("/watchlist", enrollHandler(cfg))
		r.Delete("/watchlist/{id}", deleteWatchlistHandler(cfg))
		r.Post("/watchlist/check", checkWatchlistHandler(cfg))
		r.Get("/watchlist/alerts", alertsHandler(cfg))
	})

	return r
}

func healthHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uptime := int64(time.Since(cfg.StartTime).Seconds())
		WriteJSON(w, http.StatusOK, HealthResponse{
			Status:   "ok",
			Version:  "0.1.0",
			UptimeS:  uptime,
			ServerID: cfg.ServerID,
		})
	}
}

func listCamerasHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		infos := cfg.Registry.List()

		resp := CamerasResponse{Cameras: make([]CameraResponse, len(infos))}
		for i, info := range infos {
			resp.Cameras[i] = CameraToResponse(info)
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

// cameraCommandHandler wraps one registry operation. Command outcomes
// are reported as {success,message}; an unknown camera is a 404.
func cameraCommandHandler(cfg ServerConfig, op func(id string) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if id == "" {
			WriteError(w, http.StatusBadRequest, "camera id required", "BAD_REQUEST")
			return
		}

		if err := op(id); err != nil {
			if errors.Is(err, session.ErrNotFound) {
				WriteJSON(w, http.StatusNotFound, CommandResponse{Success: false, Message: "camera not found"})
				return
			}
			WriteJSON(w, http.StatusBadGateway, CommandResponse{Success: false, Message: err.Error()})
			return
		}
		WriteJSON(w, http.StatusOK, CommandResponse{Success: true})
	}
}

func radarHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		records := cfg.Radar.Snapshot()

		resp := RadarResponse{Records: make([]RadarRecordResponse, len(records))}
		for i, rec := range records {
			resp.Records[i] = RadarRecordToResponse(rec)
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func listPersonsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		persons, err := cfg.Persons.ListPersons(r.Context())
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to list persons", "INTERNAL_ERROR")
			return
		}

		resp := PersonsResponse{Persons: make([]PersonResponse, len(persons))}
		for i, p := range persons {
			resp.Persons[i] = PersonToResponse(p)
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func getPersonHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if id == "" {
			WriteError(w, http.StatusBadRequest, "person id required", "BAD_REQUEST")
			return
		}

		person, err := cfg.Persons.GetPerson(r.Context(), id)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}
		if person == nil {
			WriteError(w, http.StatusNotFound, "person not found", "NOT_FOUND")
			return
		}

		WriteJSON(w, http.StatusOK, PersonToResponse(person))
	}
}

func listWatchlistHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entries, err := cfg.WatchlistRepo.ListEntries(r.Context())
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to list watchlist", "INTERNAL_ERROR")
			return
		}

		resp := WatchlistResponse{Entries: make([]WatchlistEntryResponse, len(entries))}
		for i, e := range entries {
			resp.Entries[i] = EntryToResponse(e)
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func enrollHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req EnrollRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}
		if req.Name == "" {
			WriteError(w, http.StatusBadRequest, "name is required", "BAD_REQUEST")
			return
		}
		if len(req.Crops) == 0 {
			WriteError(w, http.StatusBadRequest, "at least one face crop is required", "BAD_REQUEST")
			return
		}

		crops := make([][]byte, len(req.Crops))
		for i, c := range req.Crops {
			data, err := base64.StdEncoding.DecodeString(c)
			if err != nil {
				WriteError(w, http.StatusBadRequest, "crop is not valid base64", "BAD_REQUEST")
				return
			}
			crops[i] = data
		}

		entry, err := cfg.Watchlist.Enroll(r.Context(), req.Name, crops)
		if err != nil {
			WriteError(w, http.StatusBadRequest, err.Error(), "BAD_REQUEST")
			return
		}

		WriteJSON(w, http.StatusCreated, EntryToResponse(entry))
	}
}

func deleteWatchlistHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if id == "" {
			WriteError(w, http.StatusBadRequest, "entry id required", "BAD_REQUEST")
			return
		}

		if err := cfg.WatchlistRepo.DeleteEntry(r.Context(), id); err != nil {
			if errors.Is(err, watchlist.ErrNotFound) {
				WriteError(w, http.StatusNotFound, "entry not found", "NOT_FOUND")
				return
			}
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func checkWatchlistHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		alerts, err := cfg.Watchlist.Check(r.Context())
		if err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}

		resp := AlertsResponse{Alerts: make([]AlertResponse, len(alerts))}
		for i, a := range alerts {
			resp.Alerts[i] = AlertToResponse(a)
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func alertsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		alerts := cfg.Watchlist.RecentAlerts()

		resp := AlertsResponse{Alerts: make([]AlertResponse, len(alerts))}
		for i, a := range alerts {
			resp.Alerts[i] = AlertToResponse(a)
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}
