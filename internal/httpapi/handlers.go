package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/middleware"
	"github.com/MrEthical07/authcore/permission"
)

type userView struct {
	UserID      string          `json:"user_id"`
	Email       string          `json:"email"`
	DisplayName string          `json:"display_name"`
	Active      bool            `json:"is_active"`
	Role        permission.Role `json:"role"`
	CreatedAt   time.Time       `json:"created_at"`
}

func newUserView(u authcore.UserRecord) userView {
	return userView{
		UserID:      u.UserID,
		Email:       u.Email,
		DisplayName: u.DisplayName,
		Active:      u.Active,
		Role:        u.Role,
		CreatedAt:   u.CreatedAt,
	}
}

type tokenView struct {
	AccessToken     string    `json:"access_token"`
	RefreshToken    string    `json:"refresh_token"`
	TokenType       string    `json:"token_type"`
	AccessExpiresAt time.Time `json:"access_expires_at"`
}

func newTokenView(p authcore.TokenPair) tokenView {
	return tokenView{
		AccessToken:     p.AccessToken,
		RefreshToken:    p.RefreshToken,
		TokenType:       p.TokenType,
		AccessExpiresAt: p.AccessExpiresAt,
	}
}

type registerRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type profileRequest struct {
	DisplayName optionalString `json:"display_name"`
}

// optionalString tells an absent key apart from an explicit null.
type optionalString struct {
	Set   bool
	Value *string
}

func (o *optionalString) UnmarshalJSON(b []byte) error {
	o.Set = true
	if string(b) == "null" {
		o.Value = nil
		return nil
	}
	var v string
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	o.Value = &v
	return nil
}

type activeRequest struct {
	Active *bool `json:"is_active"`
}

type roleRequest struct {
	Role permission.Role `json:"role"`
}

// decode reads one JSON object into v. It writes the 400 itself and returns
// false on failure.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, ErrCodeBadRequest, "request body too large")
			return false
		}
		writeBadRequest(w, "invalid JSON body")
		return false
	}
	return true
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	h := s.engine.Health(r.Context())
	status := http.StatusOK
	store := "up"
	if !h.StoreAvailable {
		status = http.StatusServiceUnavailable
		store = "down"
	}
	writeJSON(w, status, map[string]any{
		"status":           http.StatusText(status),
		"refresh_store":    store,
		"store_latency_ms": h.StoreLatency.Milliseconds(),
	})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !s.decode(w, r, &req) {
		return
	}
	u, err := s.engine.Register(r.Context(), authcore.RegisterInput{
		Email:       req.Email,
		Password:    req.Password,
		DisplayName: req.DisplayName,
	})
	if err != nil {
		writeEngineError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, newUserView(u))
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !s.decode(w, r, &req) {
		return
	}
	pair, err := s.engine.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeEngineError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, newTokenView(pair))
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !s.decode(w, r, &req) {
		return
	}
	pair, err := s.engine.RefreshSession(r.Context(), req.RefreshToken)
	if err != nil {
		writeEngineError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, newTokenView(pair))
}

// handleLogout answers 204 for any well-formed body, known token or not.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.engine.Logout(r.Context(), req.RefreshToken); err != nil {
		writeEngineError(w, s.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleLogoutAll(w http.ResponseWriter, r *http.Request) {
	caller, _ := middleware.AuthResultFromContext(r.Context())
	if err := s.engine.LogoutAll(r.Context(), caller.UserID); err != nil {
		writeEngineError(w, s.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// activeCaller loads the account behind the access token. Deactivated
// accounts are refused even while their access token is still valid.
func (s *Server) activeCaller(w http.ResponseWriter, r *http.Request) (authcore.UserRecord, bool) {
	caller, _ := middleware.AuthResultFromContext(r.Context())
	u, err := s.engine.GetUser(r.Context(), caller.UserID)
	if errors.Is(err, authcore.ErrUserNotFound) {
		writeUnauthorized(w, "account not found")
		return authcore.UserRecord{}, false
	}
	if err != nil {
		writeEngineError(w, s.logger, err)
		return authcore.UserRecord{}, false
	}
	if !u.Active {
		writeUnauthorized(w, "account is deactivated")
		return authcore.UserRecord{}, false
	}
	return u, true
}

func (s *Server) handleGetMe(w http.ResponseWriter, r *http.Request) {
	u, ok := s.activeCaller(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, newUserView(u))
}

// handleUpdateMe leaves fields absent from the body untouched; an explicit
// null display_name clears it.
func (s *Server) handleUpdateMe(w http.ResponseWriter, r *http.Request) {
	var req profileRequest
	if !s.decode(w, r, &req) {
		return
	}
	u, ok := s.activeCaller(w, r)
	if !ok {
		return
	}
	if !req.DisplayName.Set {
		writeJSON(w, http.StatusOK, newUserView(u))
		return
	}

	var name string
	if req.DisplayName.Value != nil {
		name = *req.DisplayName.Value
	}
	u, err := s.engine.UpdateProfile(r.Context(), u.UserID, name)
	if err != nil {
		writeEngineError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, newUserView(u))
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	offset, ok := queryInt(r, "offset")
	if !ok {
		writeBadRequest(w, "offset must be a non-negative integer")
		return
	}
	limit, ok := queryInt(r, "limit")
	if !ok {
		writeBadRequest(w, "limit must be a non-negative integer")
		return
	}

	users, err := s.engine.ListUsers(r.Context(), offset, limit)
	if err != nil {
		writeEngineError(w, s.logger, err)
		return
	}
	views := make([]userView, 0, len(users))
	for _, u := range users {
		views = append(views, newUserView(u))
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	id, ok := userIDParam(w, r)
	if !ok {
		return
	}
	s.writeUser(w, r, id)
}

func (s *Server) handleSetActive(w http.ResponseWriter, r *http.Request) {
	id, ok := userIDParam(w, r)
	if !ok {
		return
	}
	var req activeRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Active == nil {
		writeError(w, http.StatusUnprocessableEntity, ErrCodeValidation, "is_active is required")
		return
	}

	var err error
	if *req.Active {
		err = s.engine.ActivateUser(r.Context(), id)
	} else {
		err = s.engine.DeactivateUser(r.Context(), id)
	}
	if err != nil {
		writeEngineError(w, s.logger, err)
		return
	}
	s.writeUser(w, r, id)
}

func (s *Server) handleSetRole(w http.ResponseWriter, r *http.Request) {
	id, ok := userIDParam(w, r)
	if !ok {
		return
	}
	var req roleRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.engine.SetRole(r.Context(), id, req.Role); err != nil {
		writeEngineError(w, s.logger, err)
		return
	}
	s.writeUser(w, r, id)
}

func (s *Server) writeUser(w http.ResponseWriter, r *http.Request, userID string) {
	u, err := s.engine.GetUser(r.Context(), userID)
	if err != nil {
		writeEngineError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, newUserView(u))
}

// userIDParam reads the {id} path segment, which must be a UUID.
func userIDParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "id")
	if _, err := uuid.Parse(id); err != nil {
		writeError(w, http.StatusUnprocessableEntity, ErrCodeValidation, "user id must be a UUID")
		return "", false
	}
	return id, true
}

// queryInt parses an optional non-negative query parameter; absent means 0.
func queryInt(r *http.Request, key string) (int, bool) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}
