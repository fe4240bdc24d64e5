package httpserver

import (
	"net/http"

	"evrewards/backend/services/rewards-service/internal/http/middleware"
)

// Routes groups handlers.
type Routes struct {
	Health         http.HandlerFunc
	Metrics        http.Handler
	AuthChallenge  http.HandlerFunc
	AuthToken      http.HandlerFunc
	Initialize     http.HandlerFunc
	Platform       http.HandlerFunc
	RegisterDriver http.HandlerFunc
	Drivers        http.HandlerFunc
	Driver         http.HandlerFunc
	Holdings       http.HandlerFunc
	ApproveAccess  http.HandlerFunc
	RecordSession  http.HandlerFunc
	Sessions       http.HandlerFunc
	BuyPoints      http.HandlerFunc
	Sustainability http.HandlerFunc
	Events         http.HandlerFunc
}

// Options holds the cross-cutting wrappers applied by the router.
type Options struct {
	// Auth verifies the bearer token of signed routes.
	Auth middleware.Middleware
	// Limit throttles signed routes after Auth.
	Limit middleware.Middleware
	// Instrument wraps each route with metrics under its pattern.
	Instrument func(route string, h http.Handler) http.Handler
}

// NewRouter registers endpoints. Nil routes are skipped.
func NewRouter(routes Routes, opts Options) http.Handler {
	mux := http.NewServeMux()
	r := router{mux: mux, opts: opts}

	r.public("GET /health", routes.Health)
	if routes.Metrics != nil {
		mux.Handle("GET /metrics", routes.Metrics)
	}
	r.public("POST /auth/challenge", routes.AuthChallenge)
	r.public("POST /auth/token", routes.AuthToken)

	r.signed("POST /platform/initialize", routes.Initialize)
	r.public("GET /platform", routes.Platform)

	r.signed("POST /drivers", routes.RegisterDriver)
	r.public("GET /drivers", routes.Drivers)
	r.public("GET /drivers/{driver}", routes.Driver)
	r.public("GET /drivers/{driver}/holdings", routes.Holdings)
	r.signed("POST /drivers/access", routes.ApproveAccess)
	r.public("GET /drivers/{driver}/sessions", routes.Sessions)
	r.signed("POST /drivers/{driver}/purchases", routes.BuyPoints)

	r.signed("POST /sessions", routes.RecordSession)
	r.public("GET /insights/sustainability", routes.Sustainability)

	// Upgraded connections bypass instrumentation.
	if routes.Events != nil {
		mux.Handle("GET /events/ws", routes.Events)
	}
	return mux
}

type router struct {
	mux  *http.ServeMux
	opts Options
}

func (r router) public(pattern string, h http.HandlerFunc) {
	if h == nil {
		return
	}
	r.mux.Handle(pattern, r.instrument(pattern, h))
}

func (r router) signed(pattern string, h http.HandlerFunc) {
	if h == nil {
		return
	}
	var mws []middleware.Middleware
	if r.opts.Auth != nil {
		mws = append(mws, r.opts.Auth)
	}
	if r.opts.Limit != nil {
		mws = append(mws, r.opts.Limit)
	}
	r.mux.Handle(pattern, r.instrument(pattern, middleware.Chain(h, mws...)))
}

func (r router) instrument(pattern string, h http.Handler) http.Handler {
	if r.opts.Instrument == nil {
		return h
	}
	return r.opts.Instrument(pattern, h)
}
