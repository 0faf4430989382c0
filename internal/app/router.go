package app

import (
	"context"
	"net/http"

	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/xenking/bistro/internal/handler"
	"github.com/xenking/bistro/pkg/health"
	"github.com/xenking/bistro/pkg/httpmiddleware"
)

// newRouter mounts the health probes and the authenticated /api routes.
func newRouter(h *handler.Handler, authn *handler.Authenticator, hs *health.Health) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/livez", hs.LiveEndpoint).Methods(http.MethodGet)
	r.HandleFunc("/readyz", hs.ReadyEndpoint).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.Use(authn.Middleware)
	h.Routes(api)
	return r
}

func isProbe(r *http.Request) bool {
	return r.URL.Path == "/livez" || r.URL.Path == "/readyz"
}

// wrapHandler applies the middleware chain, outermost first.
func wrapHandler(ctx context.Context, r *mux.Router, m *app.Telemetry, cfg *Config) http.Handler {
	routeFinder := httpmiddleware.MakeRouteFinder(r)
	corsHandler := cors.New(cors.Options{
		AllowedOrigins: cfg.CORS.Origins,
		AllowedMethods: []string{
			http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions,
		},
		AllowedHeaders:   []string{"Content-Type", "Authorization", handler.APIKeyHeader, httpmiddleware.RequestIDHeader},
		ExposedHeaders:   []string{httpmiddleware.RequestIDHeader},
		AllowCredentials: cfg.CORS.AllowCredentials,
		MaxAge:           86400,
	})

	return httpmiddleware.Wrap(r,
		httpmiddleware.Recovery(),
		corsHandler.Handler,
		httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
			Max:     cfg.RateLimit.Max,
			Window:  cfg.RateLimit.Window,
			KeyFunc: httpmiddleware.CredentialKeyFunc("Authorization", handler.APIKeyHeader),
			Skip:    isProbe,
		}),
		httpmiddleware.RequestID(),
		httpmiddleware.InjectLogger(zctx.From(ctx)),
		httpmiddleware.Instrument("bistro-api", routeFinder, m),
		httpmiddleware.LogRequests(routeFinder),
		httpmiddleware.Labeler(routeFinder),
	)
}
