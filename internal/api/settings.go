package api

import (
	"encoding/json"
	"net/http"
	"os"
	"strings"
	"time"
)

// tokenPrefixes are the GitHub token formats the settings endpoint accepts.
var tokenPrefixes = []string{"ghp_", "gho_", "github_pat_"}

func maskToken(token string) string {
	if len(token) <= 8 {
		return "***"
	}
	return token[:4] + "..." + token[len(token)-4:]
}

func validTokenPrefix(token string) bool {
	for _, p := range tokenPrefixes {
		if strings.HasPrefix(token, p) {
			return true
		}
	}
	return false
}

func (s *Server) storedToken() (string, bool) {
	data, err := os.ReadFile(s.cfg.TokenPath())
	if err != nil {
		return "", false
	}
	token := strings.TrimSpace(string(data))
	return token, token != ""
}

func (s *Server) handleGetToken(w http.ResponseWriter, r *http.Request) {
	token, ok := s.storedToken()
	if !ok {
		writeJSON(w, http.StatusOK, map[string]any{"exists": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"exists":       true,
		"masked_token": maskToken(token),
		"length":       len(token),
	})
}

func (s *Server) handleSetToken(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	token := strings.TrimSpace(req.Token)
	if token == "" {
		writeError(w, http.StatusBadRequest, "token is required")
		return
	}
	if !validTokenPrefix(token) {
		writeError(w, http.StatusBadRequest, "token must start with ghp_, gho_, or github_pat_")
		return
	}

	if err := os.MkdirAll(s.cfg.SecretsDir, 0o700); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := os.WriteFile(s.cfg.TokenPath(), []byte(token+"\n"), 0o600); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.logger.Info("git token updated")
	writeJSON(w, http.StatusOK, map[string]any{
		"success":          true,
		"message":          "Token saved",
		"masked_token":     maskToken(token),
		"restart_required": true,
	})
}

// handleTestToken checks a token against the GitHub API. The body may carry
// a token to test; otherwise the stored one is used. Auth failures are a
// 200 with valid=false, not an HTTP error.
func (s *Server) handleTestToken(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token string `json:"token"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)

	token := strings.TrimSpace(req.Token)
	if token == "" {
		stored, ok := s.storedToken()
		if !ok {
			writeError(w, http.StatusBadRequest, "no token configured")
			return
		}
		token = stored
	}

	httpReq, err := http.NewRequestWithContext(r.Context(), http.MethodGet, s.githubAPI+"/user", nil)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	httpReq.Header.Set("Authorization", "token "+token)
	httpReq.Header.Set("Accept", "application/vnd.github.v3+json")

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(httpReq)
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]any{
			"valid": false,
			"error": err.Error(),
		})
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		writeJSON(w, http.StatusOK, map[string]any{
			"valid":       false,
			"error":       "GitHub API returned " + resp.Status,
			"status_code": resp.StatusCode,
		})
		return
	}

	var user struct {
		Login string `json:"login"`
		Name  string `json:"name"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		writeJSON(w, http.StatusOK, map[string]any{
			"valid": false,
			"error": "decode GitHub response: " + err.Error(),
		})
		return
	}

	scopes := []string{}
	if raw := resp.Header.Get("X-OAuth-Scopes"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			scopes = append(scopes, strings.TrimSpace(s))
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"valid":    true,
		"username": user.Login,
		"name":     user.Name,
		"scopes":   scopes,
	})
}
