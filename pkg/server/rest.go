package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/trigate/trigate/pkg/account"
	"github.com/trigate/trigate/pkg/gate"
)

// Failure responses use the same {"detail": ...} shape as the scoring
// services, so one client-side error path covers both.
func writeError(w http.ResponseWriter, status int, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"detail": detail})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{"status": "ok"}
	if s.cfg.Verify != nil {
		h, err := s.cfg.Verify.Health(r.Context())
		if err != nil {
			resp["status"] = "degraded"
			resp["verify_error"] = err.Error()
		} else {
			resp["verify"] = h
		}
	}
	resp["detector"] = map[string]bool{"degraded": s.cfg.Model == nil}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleProfiles(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Profiles == nil {
		writeError(w, http.StatusServiceUnavailable, "profile directory not configured")
		return
	}
	profiles, err := s.cfg.Profiles.All(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"profiles": profiles})
}

type createAccountRequest struct {
	Username  string `json:"username"`
	Secret    string `json:"secret"`
	ProfileID string `json:"profile_id"`
}

func (s *Server) handleCreateAccount(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Accounts == nil {
		writeError(w, http.StatusServiceUnavailable, "account store not configured")
		return
	}
	var req createAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if s.cfg.Profiles != nil && req.ProfileID != "" {
		if _, err := s.cfg.Profiles.Lookup(r.Context(), req.ProfileID); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	acct, err := s.cfg.Accounts.Create(r.Context(), req.Username, req.Secret, req.ProfileID)
	if err != nil {
		if errors.Is(err, account.ErrExists) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, acct)
}

type loginRequest struct {
	Username string `json:"username"`
	Secret   string `json:"secret"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Accounts == nil {
		writeError(w, http.StatusServiceUnavailable, "account store not configured")
		return
	}
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	acct, err := s.cfg.Accounts.Authenticate(r.Context(), req.Username, req.Secret)
	if err != nil {
		if errors.Is(err, account.ErrBadCredentials) {
			writeError(w, http.StatusUnauthorized, "bad credentials")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	sess, err := s.cfg.Accounts.CreateSession(r.Context(), acct.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	sess := s.sessionFrom(r)
	if sess == nil {
		writeError(w, http.StatusUnauthorized, "not logged in")
		return
	}
	if err := s.cfg.Accounts.DeleteSession(r.Context(), sess.Token); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	sess := s.sessionFrom(r)
	if sess == nil {
		writeError(w, http.StatusUnauthorized, "not logged in")
		return
	}
	acct, err := s.cfg.Accounts.Get(r.Context(), sess.AccountID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"session": sess, "account": acct})
}

func (s *Server) handleAttempts(w http.ResponseWriter, r *http.Request) {
	sess := s.sessionFrom(r)
	if sess == nil {
		writeError(w, http.StatusUnauthorized, "not logged in")
		return
	}
	attempts, err := s.cfg.Accounts.Attempts(r.Context(), sess.AccountID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"attempts": attempts})
}

// sessionFrom resolves the bearer token (Authorization header or "token"
// query parameter, for websocket clients that cannot set headers).
func (s *Server) sessionFrom(r *http.Request) *account.Session {
	if s.cfg.Accounts == nil {
		return nil
	}
	token := r.URL.Query().Get("token")
	if auth := r.Header.Get("Authorization"); auth != "" {
		token = strings.TrimPrefix(auth, "Bearer ")
	}
	if token == "" {
		return nil
	}
	sess, err := s.cfg.Accounts.GetSession(r.Context(), token)
	if err != nil {
		return nil
	}
	return sess
}

// recordAttempt writes the outcome into the account's history.
func (s *Server) recordAttempt(ctx context.Context, accountID string, outcome *gate.Outcome) {
	if s.cfg.Accounts == nil || accountID == "" {
		return
	}
	steps := make(map[string]bool, len(outcome.Results))
	for step, res := range outcome.Results {
		steps[step.String()] = res.Success
	}
	rec := &account.AttemptRecord{
		AttemptID: outcome.AttemptID,
		ProfileID: outcome.ProfileID,
		Overall:   outcome.Overall,
		Message:   outcome.Message,
		Steps:     steps,
	}
	if err := s.cfg.Accounts.RecordAttempt(ctx, accountID, rec); err != nil {
		s.log.Error("record attempt", "account", accountID, "error", err)
	}
}
