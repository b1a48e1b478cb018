package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/elisha-et/TutorLink/internal/auth"
	"github.com/elisha-et/TutorLink/internal/config"
	"github.com/elisha-et/TutorLink/internal/crypto"
	"github.com/elisha-et/TutorLink/internal/model"
	"github.com/elisha-et/TutorLink/internal/repository"
)

type Server struct {
	cfg   config.Config
	store repository.Storage
	redis *redis.Client
}

func NewServer(cfg config.Config, store repository.Storage, redisClient *redis.Client) *Server {
	return &Server{
		cfg:   cfg,
		store: store,
		redis: redisClient,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Post("/auth/register", s.handleRegister)
	r.Post("/auth/login", s.handleLogin)
	r.With(s.authMiddleware).Get("/auth/me", s.handleGetMe)
	r.With(s.authMiddleware).Post("/auth/logout", s.handleLogout)

	r.Get("/tutors/search", s.handleSearchTutors)
	r.With(s.authMiddleware, s.requireRole(model.RoleTutor)).Post("/tutors/profile", s.handleUpsertTutorProfile)

	r.Route("/help-requests", func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.With(s.requireRole(model.RoleStudent)).Post("/", s.handleCreateHelpRequest)
		r.Get("/", s.handleListHelpRequests)
		r.With(s.requireRole(model.RoleTutor)).Patch("/{requestID}", s.handleUpdateHelpRequest)
	})

	return r
}

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authResponse struct {
	Token string      `json:"token"`
	User  userSummary `json:"user"`
}

type userSummary struct {
	ID    string   `json:"id"`
	Email string   `json:"email"`
	Name  string   `json:"name"`
	Roles []string `json:"roles"`
}

type tutorListing struct {
	TutorID  string   `json:"tutorId"`
	Name     string   `json:"name"`
	Bio      string   `json:"bio"`
	Subjects []string `json:"subjects"`
}

type tutorProfileRequest struct {
	Bio          string   `json:"bio"`
	Subjects     []string `json:"subjects"`
	Availability []string `json:"availability"`
}

type createHelpRequestRequest struct {
	Subject        string   `json:"subject"`
	Description    string   `json:"description"`
	PreferredTimes []string `json:"preferredTimes"`
}

type updateHelpRequestRequest struct {
	Status string `json:"status"`
}

type helpRequestSummary struct {
	ID             string   `json:"id"`
	StudentID      string   `json:"studentId"`
	StudentName    string   `json:"studentName"`
	Subject        string   `json:"subject"`
	Description    string   `json:"description"`
	PreferredTimes []string `json:"preferredTimes"`
	Status         string   `json:"status"`
	TutorID        *string  `json:"tutorId,omitempty"`
	CreatedAt      int64    `json:"createdAt"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	req.Role = strings.TrimSpace(strings.ToLower(req.Role))
	if req.Name == "" {
		writeError(w, http.StatusUnprocessableEntity, "missing_name")
		return
	}
	if req.Email == "" {
		writeError(w, http.StatusUnprocessableEntity, "missing_email")
		return
	}
	if req.Password == "" {
		writeError(w, http.StatusUnprocessableEntity, "missing_password")
		return
	}
	if len(req.Password) < s.cfg.MinPasswordLength {
		writeError(w, http.StatusUnprocessableEntity, "weak_password")
		return
	}
	role := model.Role(req.Role)
	if !role.Valid() {
		writeError(w, http.StatusUnprocessableEntity, "invalid_role")
		return
	}

	hash, err := crypto.HashPassword(req.Password)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	now := time.Now().UTC()
	user := model.User{
		ID:           uuid.NewString(),
		Email:        req.Email,
		PasswordHash: hash,
		Name:         req.Name,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.CreateUser(r.Context(), user, role); err != nil {
		if errors.Is(err, repository.ErrEmailTaken) {
			writeError(w, http.StatusConflict, "email_taken")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	user.Roles = []model.Role{role}

	token, err := s.issueToken(user)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "token_error")
		return
	}
	writeJSON(w, http.StatusOK, authResponse{Token: token, User: mapUser(user)})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "missing_credentials")
		return
	}

	user, err := s.store.GetUserByEmail(r.Context(), req.Email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusUnauthorized, "invalid_credentials")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	if err := crypto.CheckPassword(user.PasswordHash, req.Password); err != nil {
		writeError(w, http.StatusUnauthorized, "invalid_credentials")
		return
	}

	token, err := s.issueToken(user)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "token_error")
		return
	}
	writeJSON(w, http.StatusOK, authResponse{Token: token, User: mapUser(user)})
}

func (s *Server) handleGetMe(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "missing_token")
		return
	}

	user, err := s.store.GetUserByID(r.Context(), claims.UserID)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "user_not_found")
		return
	}
	writeJSON(w, http.StatusOK, mapUser(user))
}

// handleLogout denylists the presented token for its remaining lifetime.
// Logout is client-driven: without redis the endpoint still succeeds and
// the client clears its credential store.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "missing_token")
		return
	}

	if s.redis != nil && claims.ExpiresAt != nil {
		token := bearerToken(r.Header.Get("Authorization"))
		ttl := time.Until(claims.ExpiresAt.Time)
		if token != "" && ttl > 0 {
			_ = s.redis.Set(r.Context(), revokedKey(crypto.HashToken(token)), "1", ttl).Err()
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSearchTutors(w http.ResponseWriter, r *http.Request) {
	listings, err := s.store.SearchTutors(r.Context(), r.URL.Query().Get("subject"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	resp := make([]tutorListing, 0, len(listings))
	for _, listing := range listings {
		resp = append(resp, tutorListing{
			TutorID:  listing.TutorID,
			Name:     listing.Name,
			Bio:      listing.Bio,
			Subjects: listing.Subjects,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleUpsertTutorProfile(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "missing_token")
		return
	}

	var req tutorProfileRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	profile := model.TutorProfile{
		UserID:       claims.UserID,
		Bio:          strings.TrimSpace(req.Bio),
		Subjects:     normalizeTags(req.Subjects),
		Availability: normalizeTags(req.Availability),
		UpdatedAt:    time.Now().UTC(),
	}
	if err := s.store.UpsertTutorProfile(r.Context(), profile); err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCreateHelpRequest(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "missing_token")
		return
	}

	var req createHelpRequestRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	req.Subject = strings.TrimSpace(req.Subject)
	req.Description = strings.TrimSpace(req.Description)
	if req.Subject == "" {
		writeError(w, http.StatusUnprocessableEntity, "missing_subject")
		return
	}
	if req.Description == "" {
		writeError(w, http.StatusUnprocessableEntity, "missing_description")
		return
	}

	now := time.Now().UTC()
	request := model.HelpRequest{
		ID:             uuid.NewString(),
		StudentID:      claims.UserID,
		Subject:        req.Subject,
		Description:    req.Description,
		PreferredTimes: normalizeTags(req.PreferredTimes),
		Status:         model.StatusOpen,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.store.CreateHelpRequest(r.Context(), request); err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": request.ID})
}

// handleListHelpRequests serves the two documented list forms:
// ?mine=true (a student's own requests) and ?status=open[&subject=]
// (the tutor-facing open board).
func (s *Server) handleListHelpRequests(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "missing_token")
		return
	}

	query := r.URL.Query()
	switch {
	case query.Get("mine") == "true":
		if !claims.HasRole(string(model.RoleStudent)) {
			writeError(w, http.StatusForbidden, "student_only")
			return
		}
		requests, err := s.store.ListRequestsByStudent(r.Context(), claims.UserID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "server_error")
			return
		}
		writeJSON(w, http.StatusOK, mapHelpRequests(requests))

	case query.Get("status") == string(model.StatusOpen):
		if !claims.HasRole(string(model.RoleTutor)) {
			writeError(w, http.StatusForbidden, "tutor_only")
			return
		}
		requests, err := s.store.ListOpenRequests(r.Context(), query.Get("subject"))
		if err != nil {
			writeError(w, http.StatusInternalServerError, "server_error")
			return
		}
		writeJSON(w, http.StatusOK, mapHelpRequests(requests))

	default:
		writeError(w, http.StatusBadRequest, "invalid_query")
	}
}

func (s *Server) handleUpdateHelpRequest(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "missing_token")
		return
	}
	requestID := chi.URLParam(r, "requestID")
	if requestID == "" {
		writeError(w, http.StatusBadRequest, "missing_request_id")
		return
	}

	var req updateHelpRequestRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	var err error
	switch model.RequestStatus(strings.TrimSpace(req.Status)) {
	case model.StatusMatched:
		err = s.store.AcceptHelpRequest(r.Context(), requestID, claims.UserID)
	case model.StatusClosed:
		err = s.store.DeclineHelpRequest(r.Context(), requestID, claims.UserID)
	default:
		writeError(w, http.StatusBadRequest, "invalid_status")
		return
	}

	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]string{"status": req.Status})
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, "request_not_found")
	case errors.Is(err, repository.ErrConflict):
		writeError(w, http.StatusConflict, "conflict")
	default:
		writeError(w, http.StatusInternalServerError, "server_error")
	}
}

func (s *Server) issueToken(user model.User) (string, error) {
	roles := make([]string, 0, len(user.Roles))
	for _, role := range user.Roles {
		roles = append(roles, string(role))
	}
	return auth.NewAccessToken(s.cfg.JWTSecret, s.cfg.JWTIssuer, s.cfg.AccessTokenTTL, auth.Claims{
		UserID: user.ID,
		Name:   user.Name,
		Roles:  roles,
	})
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r.Header.Get("Authorization"))
		if token == "" {
			writeError(w, http.StatusUnauthorized, "missing_token")
			return
		}

		claims, err := auth.ParseToken(s.cfg.JWTSecret, s.cfg.JWTIssuer, token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid_token")
			return
		}

		if s.redis != nil {
			revoked, err := s.redis.Exists(r.Context(), revokedKey(crypto.HashToken(token))).Result()
			if err != nil && !errors.Is(err, redis.Nil) {
				writeError(w, http.StatusInternalServerError, "server_error")
				return
			}
			if revoked > 0 {
				writeError(w, http.StatusUnauthorized, "token_revoked")
				return
			}
		}

		ctx := context.WithValue(r.Context(), claimsKey{}, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) requireRole(role model.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := claimsFromContext(r.Context())
			if claims == nil || !claims.HasRole(string(role)) {
				writeError(w, http.StatusForbidden, string(role)+"_only")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type claimsKey struct{}

func claimsFromContext(ctx context.Context) *auth.Claims {
	value := ctx.Value(claimsKey{})
	claims, _ := value.(*auth.Claims)
	return claims
}

func mapUser(user model.User) userSummary {
	roles := make([]string, 0, len(user.Roles))
	for _, role := range user.Roles {
		roles = append(roles, string(role))
	}
	return userSummary{
		ID:    user.ID,
		Email: user.Email,
		Name:  user.Name,
		Roles: roles,
	}
}

func mapHelpRequests(requests []model.HelpRequest) []helpRequestSummary {
	resp := make([]helpRequestSummary, 0, len(requests))
	for _, request := range requests {
		resp = append(resp, helpRequestSummary{
			ID:             request.ID,
			StudentID:      request.StudentID,
			StudentName:    request.StudentName,
			Subject:        request.Subject,
			Description:    request.Description,
			PreferredTimes: request.PreferredTimes,
			Status:         string(request.Status),
			TutorID:        request.TutorID,
			CreatedAt:      request.CreatedAt.Unix(),
		})
	}
	return resp
}

func normalizeTags(tags []string) []string {
	cleaned := make([]string, 0, len(tags))
	for _, tag := range tags {
		if tag = strings.TrimSpace(tag); tag != "" {
			cleaned = append(cleaned, tag)
		}
	}
	return cleaned
}

func revokedKey(tokenHash string) string {
	return "revoked:" + tokenHash
}

func bearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func decodeJSON(r *http.Request, out interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(out)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}
