package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/finderhq/influencer-finder/internal/auth"
	"github.com/finderhq/influencer-finder/internal/export"
	"github.com/finderhq/influencer-finder/internal/influencer"
	"github.com/finderhq/influencer-finder/internal/keystore"
	"github.com/finderhq/influencer-finder/internal/store/postgres"
	"github.com/finderhq/influencer-finder/internal/syncjob"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" || req.Password == "" {
		writeError(s.deps.Logger, w, http.StatusBadRequest, "email and password required")
		return
	}

	user, err := s.deps.Users.GetByEmail(r.Context(), req.Email)
	if err != nil || !auth.CheckPassword(user.PasswordHash, req.Password) {
		writeError(s.deps.Logger, w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if user.Status != postgres.UserStatusActive {
		writeError(s.deps.Logger, w, http.StatusForbidden, "account disabled")
		return
	}

	token, err := auth.GenerateToken(user.ID, user.Role, s.deps.JWTSecret, s.deps.TokenTTL)
	if err != nil {
		s.deps.Logger.Error("failed to sign token", zap.Error(err))
		writeError(s.deps.Logger, w, http.StatusInternalServerError, "failed to sign token")
		return
	}
	writeJSON(s.deps.Logger, w, http.StatusOK, map[string]string{"token": token, "role": user.Role})
}

func filterFromQuery(r *http.Request) influencer.Filter {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	return influencer.Filter{
		City:     q.Get("city"),
		Category: q.Get("category"),
		Platform: q.Get("platform"),
		Bio:      q.Get("bio"),
		Page:     page,
	}
}

func (s *Server) searchPage(w http.ResponseWriter, r *http.Request) {
	result := s.deps.Searcher.Search(r.Context(), filterFromQuery(r))
	status := http.StatusOK
	if !result.Success {
		status = http.StatusBadGateway
	}
	writeJSON(s.deps.Logger, w, status, result)
}

func (s *Server) searchAll(w http.ResponseWriter, r *http.Request) {
	result := s.deps.Searcher.SearchAll(r.Context(), filterFromQuery(r))
	status := http.StatusOK
	if !result.Success {
		status = http.StatusBadGateway
	}
	writeJSON(s.deps.Logger, w, status, result)
}

func (s *Server) cached(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	result := s.deps.Searcher.Cached(r.Context(), q.Get("city"), q.Get("platform"))
	status := http.StatusOK
	if !result.Success {
		status = http.StatusInternalServerError
	}
	writeJSON(s.deps.Logger, w, status, result)
}

func (s *Server) exportCSV(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	city, platform := q.Get("city"), q.Get("platform")

	result := s.deps.Searcher.Cached(r.Context(), city, platform)
	if !result.Success {
		writeError(s.deps.Logger, w, http.StatusInternalServerError, result.Message)
		return
	}

	payload, err := export.CSV(result.Results)
	if err != nil {
		writeError(s.deps.Logger, w, http.StatusInternalServerError, "failed to render export")
		return
	}

	if q.Get("archive") == "true" {
		objectName := export.ObjectName(city, platform, time.Now().Unix())
		if err := s.deps.Exports.Save(r.Context(), objectName, payload); err != nil {
			s.deps.Logger.Warn("failed to archive export",
				zap.String("object", objectName),
				zap.Error(err),
			)
		}
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", "influencers.csv"))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(payload); err != nil {
		s.deps.Logger.Error("export write failed", zap.Error(err))
	}
}

type createUserRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

func (s *Server) listUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.deps.Users.List(r.Context())
	if err != nil {
		writeError(s.deps.Logger, w, http.StatusInternalServerError, "failed to list users")
		return
	}
	writeJSON(s.deps.Logger, w, http.StatusOK, map[string]any{"users": users})
}

func (s *Server) createUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" || req.Password == "" {
		writeError(s.deps.Logger, w, http.StatusBadRequest, "email and password required")
		return
	}
	if req.Role == "" {
		req.Role = postgres.RoleUser
	}
	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		writeError(s.deps.Logger, w, http.StatusInternalServerError, "failed to hash password")
		return
	}
	user, err := s.deps.Users.Create(r.Context(), req.Email, hash, req.Role)
	if errors.Is(err, postgres.ErrDuplicate) {
		writeError(s.deps.Logger, w, http.StatusConflict, "email already registered")
		return
	}
	if err != nil {
		writeError(s.deps.Logger, w, http.StatusInternalServerError, "failed to create user")
		return
	}
	writeJSON(s.deps.Logger, w, http.StatusCreated, user)
}

type statusRequest struct {
	Status string `json:"status"`
}

func (s *Server) updateUserStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Status == "" {
		writeError(s.deps.Logger, w, http.StatusBadRequest, "status required")
		return
	}
	s.writeUpdate(w, s.deps.Users.UpdateStatus(r.Context(), chi.URLParam(r, "user_id"), req.Status))
}

func (s *Server) updateUserRole(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Role string `json:"role"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Role == "" {
		writeError(s.deps.Logger, w, http.StatusBadRequest, "role required")
		return
	}
	s.writeUpdate(w, s.deps.Users.UpdateRole(r.Context(), chi.URLParam(r, "user_id"), req.Role))
}

func (s *Server) deleteUser(w http.ResponseWriter, r *http.Request) {
	s.writeUpdate(w, s.deps.Users.Delete(r.Context(), chi.URLParam(r, "user_id")))
}

func (s *Server) listCities(w http.ResponseWriter, r *http.Request) {
	cities, err := s.deps.Cities.List(r.Context())
	if err != nil {
		writeError(s.deps.Logger, w, http.StatusInternalServerError, "failed to list cities")
		return
	}
	writeJSON(s.deps.Logger, w, http.StatusOK, map[string]any{"cities": cities})
}

func (s *Server) createCity(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		writeError(s.deps.Logger, w, http.StatusBadRequest, "name required")
		return
	}
	city, err := s.deps.Cities.Create(r.Context(), req.Name)
	if errors.Is(err, postgres.ErrDuplicate) {
		writeError(s.deps.Logger, w, http.StatusConflict, "city already exists")
		return
	}
	if err != nil {
		writeError(s.deps.Logger, w, http.StatusInternalServerError, "failed to create city")
		return
	}
	writeJSON(s.deps.Logger, w, http.StatusCreated, city)
}

func (s *Server) deleteCity(w http.ResponseWriter, r *http.Request) {
	s.writeUpdate(w, s.deps.Cities.Delete(r.Context(), chi.URLParam(r, "city_id")))
}

// keyResponse redacts the key material; only a fingerprint leaves the
// service.
type keyResponse struct {
	ID          string     `json:"id"`
	ServiceName string     `json:"serviceName"`
	Fingerprint string     `json:"fingerprint"`
	Status      string     `json:"status"`
	LastUsed    *time.Time `json:"lastUsed,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
}

func (s *Server) listKeys(w http.ResponseWriter, r *http.Request) {
	keys, err := s.deps.Keys.List(r.Context())
	if err != nil {
		writeError(s.deps.Logger, w, http.StatusInternalServerError, "failed to list api keys")
		return
	}
	out := make([]keyResponse, 0, len(keys))
	for _, key := range keys {
		out = append(out, keyResponse{
			ID:          key.ID,
			ServiceName: key.ServiceName,
			Fingerprint: key.Fingerprint(),
			Status:      key.Status,
			LastUsed:    key.LastUsed,
			CreatedAt:   key.CreatedAt,
		})
	}
	writeJSON(s.deps.Logger, w, http.StatusOK, map[string]any{"keys": out})
}

func (s *Server) createKey(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ServiceName string `json:"serviceName"`
		KeyValue    string `json:"keyValue"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ServiceName == "" || req.KeyValue == "" {
		writeError(s.deps.Logger, w, http.StatusBadRequest, "serviceName and keyValue required")
		return
	}
	key, err := s.deps.Keys.Create(r.Context(), req.ServiceName, req.KeyValue)
	if err != nil {
		writeError(s.deps.Logger, w, http.StatusInternalServerError, "failed to create api key")
		return
	}
	writeJSON(s.deps.Logger, w, http.StatusCreated, keyResponse{
		ID:          key.ID,
		ServiceName: key.ServiceName,
		Fingerprint: key.Fingerprint(),
		Status:      key.Status,
		CreatedAt:   key.CreatedAt,
	})
}

func (s *Server) updateKeyStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Status == "" {
		writeError(s.deps.Logger, w, http.StatusBadRequest, "status required")
		return
	}
	s.writeUpdate(w, s.deps.Keys.UpdateStatus(r.Context(), chi.URLParam(r, "key_id"), req.Status))
}

func (s *Server) deleteKey(w http.ResponseWriter, r *http.Request) {
	s.writeUpdate(w, s.deps.Keys.Delete(r.Context(), chi.URLParam(r, "key_id")))
}

func (s *Server) listSubscriptions(w http.ResponseWriter, r *http.Request) {
	subs, err := s.deps.Subscriptions.List(r.Context())
	if err != nil {
		writeError(s.deps.Logger, w, http.StatusInternalServerError, "failed to list subscriptions")
		return
	}
	writeJSON(s.deps.Logger, w, http.StatusOK, map[string]any{"subscriptions": subs})
}

func (s *Server) createSubscription(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID    string     `json:"userId"`
		Plan      string     `json:"plan"`
		ExpiresAt *time.Time `json:"expiresAt"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" || req.Plan == "" {
		writeError(s.deps.Logger, w, http.StatusBadRequest, "userId and plan required")
		return
	}
	sub, err := s.deps.Subscriptions.Create(r.Context(), req.UserID, req.Plan, req.ExpiresAt)
	if err != nil {
		writeError(s.deps.Logger, w, http.StatusInternalServerError, "failed to create subscription")
		return
	}
	writeJSON(s.deps.Logger, w, http.StatusCreated, sub)
}

func (s *Server) updateSubscriptionStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Status == "" {
		writeError(s.deps.Logger, w, http.StatusBadRequest, "status required")
		return
	}
	s.writeUpdate(w, s.deps.Subscriptions.UpdateStatus(r.Context(), chi.URLParam(r, "sub_id"), req.Status))
}

func (s *Server) deleteSubscription(w http.ResponseWriter, r *http.Request) {
	s.writeUpdate(w, s.deps.Subscriptions.Delete(r.Context(), chi.URLParam(r, "sub_id")))
}

func (s *Server) submitSync(w http.ResponseWriter, r *http.Request) {
	var params syncjob.Parameters
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		writeError(s.deps.Logger, w, http.StatusBadRequest, "invalid JSON")
		return
	}
	job, err := s.deps.Syncer.Submit(r.Context(), params)
	if err != nil {
		writeError(s.deps.Logger, w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(s.deps.Logger, w, http.StatusAccepted, map[string]any{"job": job})
}

func (s *Server) getSync(w http.ResponseWriter, r *http.Request) {
	job, err := s.deps.Jobs.Get(r.Context(), chi.URLParam(r, "job_id"))
	if err != nil {
		writeError(s.deps.Logger, w, http.StatusNotFound, "sync job not found")
		return
	}
	writeJSON(s.deps.Logger, w, http.StatusOK, map[string]any{"job": job})
}

// writeUpdate maps store errors for the PATCH/DELETE admin handlers.
func (s *Server) writeUpdate(w http.ResponseWriter, err error) {
	switch {
	case err == nil:
		writeJSON(s.deps.Logger, w, http.StatusOK, map[string]string{"status": "ok"})
	case errors.Is(err, postgres.ErrNotFound), errors.Is(err, keystore.ErrNotFound):
		writeError(s.deps.Logger, w, http.StatusNotFound, "not found")
	default:
		writeError(s.deps.Logger, w, http.StatusInternalServerError, "update failed")
	}
}

func writeJSON(logger *zap.Logger, w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Error("write JSON failed", zap.Error(err))
	}
}

func writeError(logger *zap.Logger, w http.ResponseWriter, status int, msg string) {
	writeJSON(logger, w, status, map[string]string{"error": msg})
}
