package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"tripline/internal/codec"
	"tripline/internal/models"
	"tripline/internal/service"
	"tripline/internal/store"

	"github.com/google/uuid"
)

// handleAuth multiplexes /api/v1/auth/{signup,signin,oauth,guest,signout}.
func (s *HTTPServer) handleAuth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	action := strings.TrimPrefix(r.URL.Path, "/api/v1/auth/")

	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
		Username string `json:"username"`
		Code     string `json:"code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	ctx := r.Context()
	switch action {
	case "signup":
		user, err := s.users.SignUp(ctx, body.Email, body.Password, body.Username)
		if err != nil {
			writeAuthError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, userResponse(user.ID, user.Username, user.Email, user.IsGuest))
	case "signin":
		user, err := s.users.SignIn(ctx, body.Email, body.Password)
		if err != nil {
			writeAuthError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, userResponse(user.ID, user.Username, user.Email, user.IsGuest))
	case "oauth":
		user, err := s.users.SignInWithOAuth(ctx, body.Code)
		if err != nil {
			writeAuthError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, userResponse(user.ID, user.Username, user.Email, user.IsGuest))
	case "guest":
		user, err := s.users.JoinAsGuest(ctx, body.Username)
		if err != nil {
			writeAuthError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, userResponse(user.ID, user.Username, user.Email, user.IsGuest))
	case "signout":
		userID := strings.TrimSpace(r.Header.Get("X-User-ID"))
		if userID != "" {
			s.sessions.CloseSession(userID)
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "signed out"})
	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

func userResponse(id, username, email string, isGuest bool) map[string]any {
	return map[string]any{
		"id":       id,
		"username": username,
		"email":    email,
		"isGuest":  isGuest,
	}
}

// writeAuthError maps auth failures to their fixed user-facing messages.
func writeAuthError(w http.ResponseWriter, err error) {
	var authErr *service.AuthError
	if errors.As(err, &authErr) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{
			"error": authErr.Error(),
			"code":  authErr.Code,
		})
		return
	}
	writeError(w, http.StatusInternalServerError, "internal error")
}

// handleTrips serves GET (list) and POST (create) on the trips collection.
func (s *HTTPServer) handleTrips(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.userSession(w, r)
	if !ok {
		return
	}
	session, err := s.sessions.Session(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to open session")
		return
	}

	switch r.Method {
	case http.MethodGet:
		trips := session.Trips()
		docs := make([]map[string]any, 0, len(trips))
		for _, trip := range trips {
			docs = append(docs, codec.EncodeTrip(trip))
		}
		writeJSON(w, http.StatusOK, map[string]any{"trips": docs})
	case http.MethodPost:
		var raw map[string]any
		if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		trip := codec.DecodeTrip(raw)
		if trip.Title == "" {
			writeError(w, http.StatusBadRequest, "title is required")
			return
		}
		if trip.ID == "" {
			trip.ID = uuid.NewString()
		}
		trip.CreatedBy = userID
		if err := session.CreateTrip(r.Context(), trip); err != nil {
			writeStoreError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, codec.EncodeTrip(trip))
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleTripSubtree dispatches /api/v1/trips/{id}[/...] by path segments.
func (s *HTTPServer) handleTripSubtree(w http.ResponseWriter, r *http.Request) {
	const prefix = "/api/v1/trips/"
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, prefix), "/")
	segments := strings.Split(rest, "/")
	if len(segments) == 0 || segments[0] == "" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	userID, ok := s.userSession(w, r)
	if !ok {
		return
	}
	session, err := s.sessions.Session(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to open session")
		return
	}

	tripID := segments[0]
	switch {
	case len(segments) == 1:
		s.handleTrip(w, r, session, tripID)
	case segments[1] == "modules":
		s.handleModules(w, r, session, tripID, segments[2:])
	case segments[1] == "locks":
		s.handleLocks(w, r, session, tripID, segments[2:])
	case segments[1] == "invites" && len(segments) == 2:
		s.handleGenerateInvite(w, r, session, tripID)
	case segments[1] == "export" && len(segments) == 2:
		s.handleExport(w, r, session, tripID)
	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

// requireTrip restricts an operation to trips in the caller's projection:
// someone else's trip is indistinguishable from a missing one.
func requireTrip(w http.ResponseWriter, session *service.SyncService, tripID string) bool {
	if _, ok := session.TripByID(tripID); !ok {
		writeError(w, http.StatusNotFound, "trip not found")
		return false
	}
	return true
}

func (s *HTTPServer) handleTrip(w http.ResponseWriter, r *http.Request, session *service.SyncService, tripID string) {
	if !requireTrip(w, session, tripID) {
		return
	}

	switch r.Method {
	case http.MethodGet:
		trip, _ := session.TripByID(tripID)
		writeJSON(w, http.StatusOK, codec.EncodeTrip(trip))
	case http.MethodPut:
		var raw map[string]any
		if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		trip := codec.DecodeTrip(raw)
		trip.ID = tripID
		if err := session.UpdateTrip(r.Context(), trip); err != nil {
			writeStoreError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, codec.EncodeTrip(trip))
	case http.MethodDelete:
		if err := session.DeleteTrip(r.Context(), tripID); err != nil {
			writeStoreError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *HTTPServer) handleModules(w http.ResponseWriter, r *http.Request, session *service.SyncService, tripID string, rest []string) {
	if !requireTrip(w, session, tripID) {
		return
	}

	switch {
	case len(rest) == 0 || rest[0] == "":
		switch r.Method {
		case http.MethodPost:
			module, ok := decodeModuleBody(w, r)
			if !ok {
				return
			}
			if err := session.AddModule(r.Context(), tripID, module); err != nil {
				writeStoreError(w, err)
				return
			}
			writeJSON(w, http.StatusCreated, codec.EncodeModule(module))
		case http.MethodPut:
			s.handleModulesBatch(w, r, session, tripID)
		default:
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		}
	case len(rest) == 1:
		moduleID := rest[0]
		switch r.Method {
		case http.MethodPut:
			module, ok := decodeModuleBody(w, r)
			if !ok {
				return
			}
			module.ID = moduleID
			if session.IsSectionLocked(moduleID, session.UserID()) {
				writeError(w, http.StatusConflict, "section is locked by another user")
				return
			}
			if err := session.UpdateModule(r.Context(), tripID, module); err != nil {
				writeStoreError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, codec.EncodeModule(module))
		case http.MethodDelete:
			if err := session.DeleteModule(r.Context(), tripID, moduleID); err != nil {
				writeStoreError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
		default:
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		}
	case len(rest) == 2 && rest[1] == "toggle" && r.Method == http.MethodPost:
		if err := session.ToggleModuleCompletion(r.Context(), tripID, rest[0]); err != nil {
			writeStoreError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "toggled"})
	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

func (s *HTTPServer) handleModulesBatch(w http.ResponseWriter, r *http.Request, session *service.SyncService, tripID string) {
	var body struct {
		Modules []map[string]any `json:"modules"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	modules, err := codec.DecodeModules(body.Modules)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := session.UpdateModulesBatch(r.Context(), tripID, modules); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"count": len(modules)})
}

func (s *HTTPServer) handleLocks(w http.ResponseWriter, r *http.Request, session *service.SyncService, tripID string, rest []string) {
	if !requireTrip(w, session, tripID) {
		return
	}

	switch {
	case len(rest) == 0 || rest[0] == "":
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"locks": session.SectionLocks(r.Context(), tripID)})
	case len(rest) == 1:
		moduleID := rest[0]
		switch r.Method {
		case http.MethodPost:
			if session.IsSectionLocked(moduleID, session.UserID()) {
				writeError(w, http.StatusConflict, "section is locked by another user")
				return
			}
			if err := session.LockSection(r.Context(), tripID, moduleID); err != nil {
				writeError(w, http.StatusInternalServerError, "failed to lock section")
				return
			}
			writeJSON(w, http.StatusOK, map[string]string{"status": "locked"})
		case http.MethodDelete:
			if err := session.UnlockSection(r.Context(), tripID, moduleID); err != nil {
				writeError(w, http.StatusInternalServerError, "failed to unlock section")
				return
			}
			writeJSON(w, http.StatusOK, map[string]string{"status": "unlocked"})
		default:
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		}
	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

func (s *HTTPServer) handleGenerateInvite(w http.ResponseWriter, r *http.Request, session *service.SyncService, tripID string) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if !requireTrip(w, session, tripID) {
		return
	}

	code, err := s.invites.GenerateInviteCode(r.Context(), tripID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to generate invite code")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"code": code})
}

func (s *HTTPServer) handleJoinTrip(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	userID, ok := s.userSession(w, r)
	if !ok {
		return
	}

	var body struct {
		Code string `json:"code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if len(body.Code) != 6 {
		writeError(w, http.StatusBadRequest, "a 6-digit invite code is required")
		return
	}

	trip, err := s.invites.JoinTrip(r.Context(), body.Code, userID)
	if err != nil {
		if errors.Is(err, store.ErrInviteNotFound) || errors.Is(err, service.ErrInviteInactive) {
			writeError(w, http.StatusNotFound, "invalid or expired invite code")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to join trip")
		return
	}
	writeJSON(w, http.StatusOK, codec.EncodeTrip(trip))
}

func (s *HTTPServer) handleExport(w http.ResponseWriter, r *http.Request, session *service.SyncService, tripID string) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if !requireTrip(w, session, tripID) {
		return
	}
	if s.exporter == nil {
		writeError(w, http.StatusNotImplemented, "exports are not configured")
		return
	}

	trip, _ := session.TripByID(tripID)
	path, err := s.exporter.Export(r.Context(), trip)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to export trip")
		return
	}

	w.Header().Set("Content-Disposition", "attachment; filename=itinerary.xlsx")
	http.ServeFile(w, r, path)
}

func decodeModuleBody(w http.ResponseWriter, r *http.Request) (module models.Module, ok bool) {
	var raw map[string]any
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return module, false
	}
	module, err := codec.DecodeModule(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return module, false
	}
	return module, true
}

func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrTripNotFound):
		writeError(w, http.StatusNotFound, "trip not found")
	case errors.Is(err, store.ErrVersionConflict):
		writeError(w, http.StatusConflict, "trip was modified concurrently")
	case errors.Is(err, service.ErrModuleNotFound):
		writeError(w, http.StatusNotFound, "module not found")
	case errors.Is(err, store.ErrTripExists):
		writeError(w, http.StatusConflict, "trip already exists")
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
