package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/matheuscscp/echo-callback/internal/config"
	"github.com/matheuscscp/echo-callback/internal/store"
)

func New(conf *config.Config, st store.Store,
	promRegisterer prometheus.Registerer, promGatherer prometheus.Gatherer) *http.Server {

	api := newAPI(conf, st)
	return newServer(conf, api, promRegisterer, promGatherer)
}
