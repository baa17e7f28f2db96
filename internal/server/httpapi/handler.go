package httpapi

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/dmitrijs2005/tors/internal/common"
)

type credentialsRequest struct {
	User     string `json:"user"`
	Password string `json:"password"`
}

type registerResponse struct {
	ID string `json:"id"`
}

type loginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

type publicKeyResponse struct {
	Alg       string `json:"alg"`
	PublicKey string `json:"public_key"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// maxBodyBytes bounds request bodies; credentials are small.
const maxBodyBytes = 64 << 10

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !s.decode(w, r, &req) {
		return
	}

	account, err := s.accounts.Register(r.Context(), req.User, req.Password)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.logger.Info(r.Context(), "Registered", "account_id", account.ID)
	writeJSON(w, http.StatusCreated, registerResponse{ID: account.ID})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !s.decode(w, r, &req) {
		return
	}

	account, err := s.accounts.Authenticate(r.Context(), req.User, req.Password)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	token, err := s.tokens.Issue(r.Context(), account.ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{Token: token.Value, ExpiresAt: token.ExpiresAt})
}

func (s *Server) handleWhoAmI(w http.ResponseWriter, r *http.Request) {
	accountID, _ := AccountIDFromContext(r.Context())
	writeJSON(w, http.StatusOK, registerResponse{ID: accountID})
}

func (s *Server) handlePublicKey(w http.ResponseWriter, r *http.Request) {
	pub, err := s.keys.PublicKey()
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, publicKeyResponse{
		Alg:       "EdDSA",
		PublicKey: base64.StdEncoding.EncodeToString(pub),
	})
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed request"})
		return false
	}
	return true
}

// writeError maps the service error taxonomy onto status codes. Internal
// failures are logged and reported without detail.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, common.ErrInvalidInput):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: common.ErrInvalidInput.Error()})
	case errors.Is(err, common.ErrConflict):
		writeJSON(w, http.StatusConflict, errorResponse{Error: common.ErrConflict.Error()})
	case errors.Is(err, common.ErrorUnauthorized):
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "unauthorized"})
	case errors.Is(err, common.ErrTokenExpired):
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: common.ErrTokenExpired.Error()})
	case errors.Is(err, common.ErrInvalidToken):
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: common.ErrInvalidToken.Error()})
	case r.Context().Err() != nil && errors.Is(err, r.Context().Err()):
		// client went away
	default:
		s.logger.Error(r.Context(), "request failed", "path", r.URL.Path, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
