package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/matheuscscp/echo-callback/internal/config"
	"github.com/matheuscscp/echo-callback/internal/logging"
	"github.com/matheuscscp/echo-callback/internal/store"
)

const (
	urlParamID = "id"

	pathNewEndpoint = "/"
	pathEndpoint    = "/{" + urlParamID + "}"
)

var (
	errEmptyPayload   = errors.New("request body must not be empty")
	errInvalidPayload = errors.New("request body must be valid JSON")
)

type callbackPayload struct {
	Code  string `json:"code"`
	State string `json:"state"`
}

func newAPI(conf *config.Config, st store.Store) http.Handler {
	mux := chi.NewRouter()
	mux.Use(middleware.Recoverer)

	mux.Get(pathNewEndpoint, func(w http.ResponseWriter, r *http.Request) {
		id := st.CreateSlot()
		respondJSON(w, r, http.StatusOK, map[string]any{
			"url": endpointURL(r, &conf.Server, id),
		})
		logging.FromRequest(r).Debug("endpoint created")
	})

	mux.Post(pathEndpoint, func(w http.ResponseWriter, r *http.Request) {
		l := logging.FromRequest(r)
		id := chi.URLParam(r, urlParamID)

		// The slot is checked before the body so that a missing or written
		// endpoint is reported as such whatever the body holds.
		if err := st.CheckWritable(id); err != nil {
			respondWriteError(w, r, err)
			return
		}

		payload, err := readPayload(w, r, conf.Server.MaxBodyBytes)
		if err != nil {
			var maxBytesErr *http.MaxBytesError
			switch {
			case errors.As(err, &maxBytesErr):
				respondDetail(w, r, http.StatusRequestEntityTooLarge,
					fmt.Sprintf("Request body exceeds maximum of %d bytes", maxBytesErr.Limit))
			case errors.Is(err, errEmptyPayload), errors.Is(err, errInvalidPayload):
				respondDetail(w, r, http.StatusBadRequest, "Invalid request body: "+err.Error())
			default:
				l.WithError(err).Error("failed to read request body")
				respondDetail(w, r, http.StatusBadRequest, "Failed to read request body")
			}
			return
		}

		writeOnce(w, r, st, id, payload)
	})

	mux.Get(pathEndpoint, func(w http.ResponseWriter, r *http.Request) {
		l := logging.FromRequest(r)
		id := chi.URLParam(r, urlParamID)

		// A browser redirected here by the authorization server writes the
		// callback parameters instead of reading.
		if code, callbackState := authorizationCode(r), state(r); code != "" && callbackState != "" {
			payload, err := json.Marshal(callbackPayload{Code: code, State: callbackState})
			if err != nil {
				l.WithError(err).Error("failed to marshal callback parameters")
				respondDetail(w, r, http.StatusInternalServerError, "Failed to marshal callback parameters")
				return
			}
			writeOnce(w, r, st, id, payload)
			return
		}

		payload, err := st.ReadAndConsume(id)
		switch {
		case errors.Is(err, store.ErrNotFound):
			respondDetail(w, r, http.StatusNotFound, "Endpoint not found")
			return
		case errors.Is(err, store.ErrNotReady):
			respondDetail(w, r, http.StatusTooEarly, "Data has not been written to this endpoint yet")
			return
		case err != nil:
			l.WithError(err).Error("failed to read endpoint")
			respondDetail(w, r, http.StatusInternalServerError, "Failed to read endpoint")
			return
		}

		respondJSON(w, r, http.StatusOK, payload)
		l.Debug("endpoint consumed")
	})

	return mux
}

func writeOnce(w http.ResponseWriter, r *http.Request, st store.Store, id string, payload json.RawMessage) {
	l := logging.FromRequest(r)

	if err := st.WriteOnce(id, payload); err != nil {
		respondWriteError(w, r, err)
		return
	}

	respondJSON(w, r, http.StatusOK, map[string]any{
		"msg": fmt.Sprintf("Successfully written your data to key %s, you can close this window", id),
	})
	l.Debug("endpoint written")
}

func respondWriteError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		respondDetail(w, r, http.StatusNotFound, "Endpoint not found")
	case errors.Is(err, store.ErrAlreadyWritten):
		respondDetail(w, r, http.StatusForbidden, "Data has already been written to this endpoint")
	default:
		logging.FromRequest(r).WithError(err).Error("failed to write endpoint")
		respondDetail(w, r, http.StatusInternalServerError, "Failed to write endpoint")
	}
}

// readPayload reads the request body as an opaque JSON value. A body that
// holds no data (null, false, 0, "", [] or {}) counts as empty.
func readPayload(w http.ResponseWriter, r *http.Request, maxBytes int64) (json.RawMessage, error) {
	b, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBytes))
	if err != nil {
		return nil, err
	}
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return nil, errEmptyPayload
	}
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return nil, errInvalidPayload
	}
	if !holdsData(v) {
		return nil, errEmptyPayload
	}
	return json.RawMessage(b), nil
}

func holdsData(v any) bool {
	switch v := v.(type) {
	case nil:
		return false
	case bool:
		return v
	case float64:
		return v != 0
	case string:
		return v != ""
	case []any:
		return len(v) > 0
	case map[string]any:
		return len(v) > 0
	}
	return true
}
