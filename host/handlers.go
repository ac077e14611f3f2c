package host

import (
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/droniapp/go-auth-client/gateway"
	autherrors "github.com/droniapp/go-auth-client/internal/errors"
	"github.com/droniapp/go-auth-client/token/jwt"
)

const maxForwardBodyBytes = 4 << 20

// SessionSummary is what the webview sees of the session. The token itself
// stays in the host.
type SessionSummary struct {
	Authenticated    bool       `json:"authenticated"`
	Loading          bool       `json:"loading"`
	Subject          string     `json:"subject,omitempty"`
	ExpiresAt        *time.Time `json:"expiresAt,omitempty"`
	RemainingSeconds int64      `json:"remainingSeconds"`
}

type visibilityRequest struct {
	State string `json:"state"`
}

// NaverCallbackHandler finishes the Naver login: the backend redirects here
// with either access_token or error.
func (s *Server) NaverCallbackHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.store.SetLoading(true)
		accessToken := r.URL.Query().Get("access_token")
		errorParam := r.URL.Query().Get("error")

		if errorParam != "" {
			s.logger.Error().Str("error", errorParam).Msg("[NaverCallback] OAuth error")
			s.store.SetLoading(false)
			s.redirectToLogin(w, r, errorParam)
			return
		}

		if accessToken == "" {
			s.logger.Warn().Msg("[NaverCallback] Callback invoked without access_token or error")
			s.store.SetLoading(false)
			s.redirectToLogin(w, r, "Invalid callback parameters")
			return
		}

		if s.env == "DEV" {
			jwt.LogInfo(s.logger, accessToken, "Naver OAuth Access Token")
		}
		if err := s.store.Login(accessToken); err != nil {
			s.store.SetLoading(false)
			s.redirectToLogin(w, r, err.Error())
			return
		}
		s.store.SetLoading(false)
		http.Redirect(w, r, s.config.GetHomePath(), http.StatusFound)
	}
}

func (s *Server) LogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.store.Logout()
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) SessionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		state := s.store.State()
		summary := SessionSummary{
			Authenticated: state.IsAuthenticated,
			Loading:       state.IsLoading,
		}
		if info, ok := jwt.Inspect(state.AccessToken); ok {
			summary.Subject = info.UserID
			summary.ExpiresAt = info.ExpirationDate
			summary.RemainingSeconds = info.RemainingSeconds
		}
		writeJSON(w, http.StatusOK, summary)
	}
}

// VisibilityHandler receives the page visibility changes of the webview.
func (s *Server) VisibilityHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req visibilityRequest
		if err := json.NewDecoder(io.LimitReader(r.Body, 1024)).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, gateway.ErrorResponse{Message: "invalid visibility payload", Status: http.StatusBadRequest})
			return
		}
		switch req.State {
		case "visible":
			s.monitor.OnVisible(r.Context())
		case "hidden":
		default:
			writeJSON(w, http.StatusBadRequest, gateway.ErrorResponse{Message: "unknown visibility state " + req.State, Status: http.StatusBadRequest})
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// APIHandler forwards the call to the backend with the session token.
func (s *Server) APIHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxForwardBodyBytes))
		if err != nil {
			writeJSON(w, http.StatusBadRequest, gateway.ErrorResponse{Message: "failed to read request body", Status: http.StatusBadRequest})
			return
		}

		opts := gateway.RequestOptions{
			Method: r.Method,
			Query:  r.URL.Query(),
		}
		if len(body) > 0 {
			opts.Body = json.RawMessage(body)
		}

		resp, err := s.api.Do(r.Context(), r.URL.Path, opts)
		if err != nil {
			s.writeAPIError(w, r, err)
			return
		}

		if contentType := resp.Header.Get("Content-Type"); contentType != "" {
			w.Header().Set("Content-Type", contentType)
		}
		w.WriteHeader(resp.Status)
		_, _ = w.Write(resp.Body)
	}
}

func (s *Server) writeAPIError(w http.ResponseWriter, r *http.Request, err error) {
	if autherrors.Is(err, autherrors.ErrSessionExpired) {
		s.redirectToLogin(w, r, "Session expired")
		return
	}

	var apiErr *gateway.APIError
	if !autherrors.As(err, &apiErr) {
		s.logger.Err(err).Str("path", r.URL.Path).Msg("API call failed")
		writeJSON(w, http.StatusInternalServerError, gateway.ErrorResponse{Message: err.Error(), Status: http.StatusInternalServerError})
		return
	}
	writeJSON(w, apiErr.Status, gateway.ErrorResponse{Message: apiErr.Message, Status: apiErr.Status})
}

func (s *Server) redirectToLogin(w http.ResponseWriter, r *http.Request, reason string) {
	target := s.config.GetLoginPath() + "?" + url.Values{"error": []string{reason}}.Encode()
	http.Redirect(w, r, target, http.StatusSeeOther)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
