package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/matheuscscp/echo-callback/internal/config"
	"github.com/matheuscscp/echo-callback/internal/constants"
	"github.com/matheuscscp/echo-callback/internal/logging"
)

func baseURL(r *http.Request, conf *config.ServerConfig) string {
	scheme := "http"
	if r.TLS != nil || conf.BehindHTTPSProxy {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s", scheme, r.Host)
}

func endpointURL(r *http.Request, conf *config.ServerConfig, id string) string {
	return fmt.Sprintf("%s/%s", baseURL(r, conf), id)
}

func authorizationCode(r *http.Request) string {
	return r.URL.Query().Get(constants.QueryParamAuthorizationCode)
}

func state(r *http.Request) string {
	return r.URL.Query().Get(constants.QueryParamState)
}

func respondJSON(w http.ResponseWriter, r *http.Request, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logging.FromRequest(r).WithError(err).Error("failed to write response")
	}
}

func respondDetail(w http.ResponseWriter, r *http.Request, status int, detail string) {
	respondJSON(w, r, status, map[string]any{"detail": detail})
}
