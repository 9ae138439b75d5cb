package server

import (
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	. "github.com/onsi/gomega"

	"github.com/matheuscscp/echo-callback/internal/config"
	"github.com/matheuscscp/echo-callback/internal/store"
)

func newTestConfig() *config.Config {
	conf := &config.Config{}
	if err := conf.ValidateAndInitialize(); err != nil {
		panic(err)
	}
	return conf
}

func decodeBody(g *WithT, rec *httptest.ResponseRecorder) map[string]any {
	var body map[string]any
	g.Expect(json.Unmarshal(rec.Body.Bytes(), &body)).To(Succeed())
	return body
}

func serve(api http.Handler, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	api.ServeHTTP(rec, req)
	return rec
}

func TestNewEndpoint(t *testing.T) {
	tests := []struct {
		name             string
		behindHTTPSProxy bool
		tls              bool
		expectedScheme   string
	}{
		{
			name:           "plain http",
			expectedScheme: "http",
		},
		{
			name:             "behind https proxy",
			behindHTTPSProxy: true,
			expectedScheme:   "https",
		},
		{
			name:           "direct tls",
			tls:            true,
			expectedScheme: "https",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewWithT(t)

			conf := newTestConfig()
			conf.Server.BehindHTTPSProxy = tt.behindHTTPSProxy
			st := store.NewMemoryStore()
			api := newAPI(conf, st)

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Host = "relay.example.com"
			if tt.tls {
				req.TLS = &tls.ConnectionState{}
			}
			rec := httptest.NewRecorder()

			api.ServeHTTP(rec, req)

			g.Expect(rec.Code).To(Equal(http.StatusOK))
			g.Expect(rec.Header().Get("Content-Type")).To(Equal("application/json"))
			body := decodeBody(g, rec)
			g.Expect(body).To(HaveKey("url"))
			g.Expect(body["url"]).To(MatchRegexp(`^%s://relay\.example\.com/[A-Za-z0-9_-]{22}$`, tt.expectedScheme))
			g.Expect(st.Len()).To(Equal(1))
		})
	}
}

func TestNewEndpoint_UniqueURLs(t *testing.T) {
	g := NewWithT(t)

	st := store.NewMemoryStore()
	api := newAPI(newTestConfig(), st)

	urls := make(map[string]bool)
	for range 10 {
		rec := serve(api, http.MethodGet, "/", "")
		g.Expect(rec.Code).To(Equal(http.StatusOK))
		u := decodeBody(g, rec)["url"].(string)
		g.Expect(urls).ToNot(HaveKey(u))
		urls[u] = true
	}
	g.Expect(st.Len()).To(Equal(10))
}

func TestWriteEndpoint(t *testing.T) {
	tests := []struct {
		name           string
		body           string
		unknownID      bool
		alreadyWritten bool
		maxBodyBytes   int64
		expectedStatus int
		expectedDetail string
	}{
		{
			name:           "valid payload",
			body:           `{"access_token":"secret","expires_in":3600}`,
			expectedStatus: http.StatusOK,
		},
		{
			name:           "unknown endpoint",
			body:           `{"code":"abc"}`,
			unknownID:      true,
			expectedStatus: http.StatusNotFound,
			expectedDetail: "Endpoint not found",
		},
		{
			name:           "already written",
			body:           `{"code":"abc"}`,
			alreadyWritten: true,
			expectedStatus: http.StatusForbidden,
			expectedDetail: "Data has already been written to this endpoint",
		},
		{
			name:           "empty body",
			body:           "",
			expectedStatus: http.StatusBadRequest,
			expectedDetail: "Invalid request body: request body must not be empty",
		},
		{
			name:           "whitespace body",
			body:           "  \n ",
			expectedStatus: http.StatusBadRequest,
			expectedDetail: "Invalid request body: request body must not be empty",
		},
		{
			name:           "null body",
			body:           "null",
			expectedStatus: http.StatusBadRequest,
			expectedDetail: "Invalid request body: request body must not be empty",
		},
		{
			name:           "unknown endpoint with empty body",
			unknownID:      true,
			expectedStatus: http.StatusNotFound,
			expectedDetail: "Endpoint not found",
		},
		{
			name:           "unknown endpoint with invalid json",
			body:           "not json",
			unknownID:      true,
			expectedStatus: http.StatusNotFound,
			expectedDetail: "Endpoint not found",
		},
		{
			name:           "already written with empty body",
			alreadyWritten: true,
			expectedStatus: http.StatusForbidden,
			expectedDetail: "Data has already been written to this endpoint",
		},
		{
			name:           "already written with invalid json",
			body:           "not json",
			alreadyWritten: true,
			expectedStatus: http.StatusForbidden,
			expectedDetail: "Data has already been written to this endpoint",
		},
		{
			name:           "empty object",
			body:           "{}",
			expectedStatus: http.StatusBadRequest,
			expectedDetail: "Invalid request body: request body must not be empty",
		},
		{
			name:           "empty array",
			body:           " [] ",
			expectedStatus: http.StatusBadRequest,
			expectedDetail: "Invalid request body: request body must not be empty",
		},
		{
			name:           "empty string",
			body:           `""`,
			expectedStatus: http.StatusBadRequest,
			expectedDetail: "Invalid request body: request body must not be empty",
		},
		{
			name:           "false",
			body:           "false",
			expectedStatus: http.StatusBadRequest,
			expectedDetail: "Invalid request body: request body must not be empty",
		},
		{
			name:           "zero",
			body:           "0",
			expectedStatus: http.StatusBadRequest,
			expectedDetail: "Invalid request body: request body must not be empty",
		},
		{
			name:           "scalar payload",
			body:           `"opaque-token"`,
			expectedStatus: http.StatusOK,
		},
		{
			name:           "invalid json",
			body:           `{"code":`,
			expectedStatus: http.StatusBadRequest,
			expectedDetail: "Invalid request body: request body must be valid JSON",
		},
		{
			name:           "body too large",
			body:           `{"code":"0123456789abcdef"}`,
			maxBodyBytes:   16,
			expectedStatus: http.StatusRequestEntityTooLarge,
			expectedDetail: "Request body exceeds maximum of 16 bytes",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewWithT(t)

			conf := newTestConfig()
			if tt.maxBodyBytes > 0 {
				conf.Server.MaxBodyBytes = tt.maxBodyBytes
			}
			st := store.NewMemoryStore()
			api := newAPI(conf, st)

			id := st.CreateSlot()
			if tt.alreadyWritten {
				g.Expect(st.WriteOnce(id, json.RawMessage(`{"first":true}`))).To(Succeed())
			}
			if tt.unknownID {
				id = "unknown"
			}

			rec := serve(api, http.MethodPost, "/"+id, tt.body)

			g.Expect(rec.Code).To(Equal(tt.expectedStatus))
			body := decodeBody(g, rec)
			if tt.expectedDetail != "" {
				g.Expect(body).To(Equal(map[string]any{"detail": tt.expectedDetail}))
				return
			}
			g.Expect(body).To(Equal(map[string]any{
				"msg": fmt.Sprintf("Successfully written your data to key %s, you can close this window", id),
			}))

			payload, err := st.ReadAndConsume(id)
			g.Expect(err).ToNot(HaveOccurred())
			g.Expect(string(payload)).To(MatchJSON(tt.body))
		})
	}
}

func TestWriteEndpoint_EmptyPayloadKeepsSlotWritable(t *testing.T) {
	g := NewWithT(t)

	st := store.NewMemoryStore()
	api := newAPI(newTestConfig(), st)
	id := st.CreateSlot()

	rec := serve(api, http.MethodPost, "/"+id, "{}")
	g.Expect(rec.Code).To(Equal(http.StatusBadRequest))

	rec = serve(api, http.MethodGet, "/"+id, "")
	g.Expect(rec.Code).To(Equal(http.StatusTooEarly))

	rec = serve(api, http.MethodPost, "/"+id, `{"code":"abc"}`)
	g.Expect(rec.Code).To(Equal(http.StatusOK))
}

func TestReadEndpoint(t *testing.T) {
	tests := []struct {
		name           string
		payload        string
		unknownID      bool
		expectedStatus int
		expectedDetail string
	}{
		{
			name:           "written payload",
			payload:        `{"access_token":"secret","nested":{"list":[1,2]}}`,
			expectedStatus: http.StatusOK,
		},
		{
			name:           "not written yet",
			expectedStatus: http.StatusTooEarly,
			expectedDetail: "Data has not been written to this endpoint yet",
		},
		{
			name:           "unknown endpoint",
			unknownID:      true,
			expectedStatus: http.StatusNotFound,
			expectedDetail: "Endpoint not found",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewWithT(t)

			st := store.NewMemoryStore()
			api := newAPI(newTestConfig(), st)

			id := st.CreateSlot()
			if tt.payload != "" {
				g.Expect(st.WriteOnce(id, json.RawMessage(tt.payload))).To(Succeed())
			}
			if tt.unknownID {
				id = "unknown"
			}

			rec := serve(api, http.MethodGet, "/"+id, "")

			g.Expect(rec.Code).To(Equal(tt.expectedStatus))
			if tt.expectedDetail != "" {
				g.Expect(decodeBody(g, rec)).To(Equal(map[string]any{"detail": tt.expectedDetail}))
				return
			}
			g.Expect(rec.Header().Get("Content-Type")).To(Equal("application/json"))
			g.Expect(rec.Body.String()).To(MatchJSON(tt.payload))

			// Consumed.
			g.Expect(st.Len()).To(Equal(0))
			rec = serve(api, http.MethodGet, "/"+id, "")
			g.Expect(rec.Code).To(Equal(http.StatusNotFound))
		})
	}
}

func TestReadEndpoint_NotReadyKeepsSlot(t *testing.T) {
	g := NewWithT(t)

	st := store.NewMemoryStore()
	api := newAPI(newTestConfig(), st)
	id := st.CreateSlot()

	for range 3 {
		rec := serve(api, http.MethodGet, "/"+id, "")
		g.Expect(rec.Code).To(Equal(http.StatusTooEarly))
	}
	g.Expect(st.Len()).To(Equal(1))

	rec := serve(api, http.MethodPost, "/"+id, `{"ok":true}`)
	g.Expect(rec.Code).To(Equal(http.StatusOK))

	rec = serve(api, http.MethodGet, "/"+id, "")
	g.Expect(rec.Code).To(Equal(http.StatusOK))
	g.Expect(rec.Body.String()).To(MatchJSON(`{"ok":true}`))
}

func TestReadEndpoint_Expired(t *testing.T) {
	g := NewWithT(t)

	now := time.Now()
	st := store.NewMemoryStore(store.WithTTL(time.Minute), store.WithClock(func() time.Time { return now }))
	api := newAPI(newTestConfig(), st)

	id := st.CreateSlot()
	g.Expect(st.WriteOnce(id, json.RawMessage(`{"code":"abc"}`))).To(Succeed())

	now = now.Add(time.Minute + time.Second)

	rec := serve(api, http.MethodGet, "/"+id, "")
	g.Expect(rec.Code).To(Equal(http.StatusNotFound))
}

func TestCallbackWrite(t *testing.T) {
	tests := []struct {
		name           string
		query          string
		alreadyWritten bool
		unknownID      bool
		expectedStatus int
		expectedDetail string
		expectWritten  bool
	}{
		{
			name:           "code and state",
			query:          "?code=abc&state=xyz",
			expectedStatus: http.StatusOK,
			expectWritten:  true,
		},
		{
			name:           "extra parameters are ignored",
			query:          "?code=abc&state=xyz&scope=openid",
			expectedStatus: http.StatusOK,
			expectWritten:  true,
		},
		{
			name:           "already written",
			query:          "?code=abc&state=xyz",
			alreadyWritten: true,
			expectedStatus: http.StatusForbidden,
			expectedDetail: "Data has already been written to this endpoint",
		},
		{
			name:           "unknown endpoint",
			query:          "?code=abc&state=xyz",
			unknownID:      true,
			expectedStatus: http.StatusNotFound,
			expectedDetail: "Endpoint not found",
		},
		{
			name:           "code without state reads",
			query:          "?code=abc",
			expectedStatus: http.StatusTooEarly,
			expectedDetail: "Data has not been written to this endpoint yet",
		},
		{
			name:           "state without code reads",
			query:          "?state=xyz",
			expectedStatus: http.StatusTooEarly,
			expectedDetail: "Data has not been written to this endpoint yet",
		},
		{
			name:           "empty code reads",
			query:          "?code=&state=xyz",
			expectedStatus: http.StatusTooEarly,
			expectedDetail: "Data has not been written to this endpoint yet",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewWithT(t)

			st := store.NewMemoryStore()
			api := newAPI(newTestConfig(), st)

			id := st.CreateSlot()
			if tt.alreadyWritten {
				g.Expect(st.WriteOnce(id, json.RawMessage(`{"first":true}`))).To(Succeed())
			}
			if tt.unknownID {
				id = "unknown"
			}

			rec := serve(api, http.MethodGet, "/"+id+tt.query, "")

			g.Expect(rec.Code).To(Equal(tt.expectedStatus))
			body := decodeBody(g, rec)
			if tt.expectedDetail != "" {
				g.Expect(body).To(Equal(map[string]any{"detail": tt.expectedDetail}))
			} else {
				g.Expect(body["msg"]).To(ContainSubstring("Successfully written your data to key %s", id))
			}

			if !tt.expectWritten {
				return
			}

			// The callback write does not consume the endpoint.
			g.Expect(st.Len()).To(Equal(1))

			rec = serve(api, http.MethodGet, "/"+id, "")
			g.Expect(rec.Code).To(Equal(http.StatusOK))
			g.Expect(rec.Body.String()).To(MatchJSON(`{"code":"abc","state":"xyz"}`))
			g.Expect(st.Len()).To(Equal(0))
		})
	}
}

func TestCallbackWrite_EscapedParameters(t *testing.T) {
	g := NewWithT(t)

	st := store.NewMemoryStore()
	api := newAPI(newTestConfig(), st)
	id := st.CreateSlot()

	rec := serve(api, http.MethodGet, "/"+id+"?code=a%2Fb%3Dc&state=x%20y", "")
	g.Expect(rec.Code).To(Equal(http.StatusOK))

	payload, err := st.ReadAndConsume(id)
	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(string(payload)).To(MatchJSON(`{"code":"a/b=c","state":"x y"}`))
}

func TestConcurrentWrites(t *testing.T) {
	g := NewWithT(t)

	st := store.NewMemoryStore()
	api := newAPI(newTestConfig(), st)
	id := st.CreateSlot()

	const writers = 20
	codes := make([]int, writers)
	var wg sync.WaitGroup
	for i := range writers {
		wg.Go(func() {
			codes[i] = serve(api, http.MethodPost, "/"+id, fmt.Sprintf(`{"writer":%d}`, i)).Code
		})
	}
	wg.Wait()

	winner := -1
	for i, code := range codes {
		if code == http.StatusOK {
			g.Expect(winner).To(Equal(-1), "more than one writer succeeded")
			winner = i
			continue
		}
		g.Expect(code).To(Equal(http.StatusForbidden))
	}
	g.Expect(winner).ToNot(Equal(-1))

	rec := serve(api, http.MethodGet, "/"+id, "")
	g.Expect(rec.Code).To(Equal(http.StatusOK))
	g.Expect(rec.Body.String()).To(MatchJSON(fmt.Sprintf(`{"writer":%d}`, winner)))
}

func TestUnsupportedMethods(t *testing.T) {
	tests := []struct {
		method string
		target string
	}{
		{http.MethodPut, "/some-id"},
		{http.MethodDelete, "/some-id"},
		{http.MethodPost, "/"},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.target, func(t *testing.T) {
			g := NewWithT(t)

			api := newAPI(newTestConfig(), store.NewMemoryStore())
			rec := serve(api, tt.method, tt.target, "")
			g.Expect(rec.Code).To(Equal(http.StatusMethodNotAllowed))
		})
	}
}
