package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/MrEthical07/tokenguard"
	"github.com/MrEthical07/tokenguard/user"
)

const refreshFailureMessage = "invalid or expired refresh token"

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	DeviceID string `json:"deviceId"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
	DeviceID     string `json:"deviceId"`
}

type logoutRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type setRolesRequest struct {
	RoleIDs []int64 `json:"roleIds"`
	Actor   string  `json:"actor"`
}

type tokenResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	TokenType    string `json:"tokenType"`
	ExpiresIn    int64  `json:"expiresIn"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := s.decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	pair, err := s.engine.Login(r.Context(), tokenguard.LoginRequest{
		Email:    req.Email,
		Password: req.Password,
		DeviceID: req.DeviceID,
	}).Unwrap()
	if err != nil {
		s.writeEngineError(w, r, err, "invalid credentials")
		return
	}
	writeJSON(w, http.StatusOK, s.tokenResponse(pair))
}

func (s *server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := s.decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	pair, err := s.engine.Refresh(r.Context(), tokenguard.RefreshRequest{
		RefreshToken: req.RefreshToken,
		DeviceID:     req.DeviceID,
	}).Unwrap()
	if err != nil {
		if tokenguard.IsRefreshFailure(err) {
			writeError(w, http.StatusUnauthorized, refreshFailureMessage)
			return
		}
		s.writeEngineError(w, r, err, refreshFailureMessage)
		return
	}
	writeJSON(w, http.StatusOK, s.tokenResponse(pair))
}

func (s *server) handleLogout(w http.ResponseWriter, r *http.Request) {
	var req logoutRequest
	if err := s.decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.engine.Logout(r.Context(), req.RefreshToken); err != nil {
		s.writeEngineError(w, r, err, "")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleSetRoles(w http.ResponseWriter, r *http.Request) {
	var req setRolesRequest
	if err := s.decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ids := make([]user.RoleID, 0, len(req.RoleIDs))
	for _, id := range req.RoleIDs {
		ids = append(ids, user.RoleID(id))
	}
	res := s.engine.SetUserRoles(r.Context(), tokenguard.SetRolesRequest{
		UserID:  chi.URLParam(r, "id"),
		RoleIDs: ids,
		Actor:   req.Actor,
	})
	if err := res.Err(); err != nil {
		s.writeEngineError(w, r, err, "")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handlePermissions(w http.ResponseWriter, r *http.Request) {
	perms, err := s.engine.GetUserPermissions(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeEngineError(w, r, err, "")
		return
	}
	if perms == nil {
		perms = []string{}
	}
	writeJSON(w, http.StatusOK, map[string][]string{"permissions": perms})
}

func (s *server) tokenResponse(pair tokenguard.TokenPair) tokenResponse {
	expiresIn := math.Ceil(pair.AccessExpiresAt.Sub(s.now()).Seconds())
	if expiresIn < 0 {
		expiresIn = 0
	}
	return tokenResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		TokenType:    pair.TokenType,
		ExpiresIn:    int64(expiresIn),
	}
}

func (s *server) decode(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// writeEngineError maps err by kind. unauthorizedMsg replaces the error text
// for 401 responses so that failure reasons are not leaked.
func (s *server) writeEngineError(w http.ResponseWriter, r *http.Request, err error, unauthorizedMsg string) {
	switch tokenguard.KindOf(err) {
	case tokenguard.KindValidation:
		writeError(w, http.StatusBadRequest, err.Error())
	case tokenguard.KindNotFound:
		writeError(w, http.StatusNotFound, err.Error())
	case tokenguard.KindConflict:
		writeError(w, http.StatusConflict, err.Error())
	case tokenguard.KindUnauthorized:
		if unauthorizedMsg == "" {
			unauthorizedMsg = "unauthorized"
		}
		writeError(w, http.StatusUnauthorized, unauthorizedMsg)
	case tokenguard.KindRateLimited:
		writeError(w, http.StatusTooManyRequests, "too many requests")
	default:
		s.logger.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "error", err)
		if errors.Is(err, tokenguard.ErrStoreUnavailable) {
			writeError(w, http.StatusServiceUnavailable, "service unavailable")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}
