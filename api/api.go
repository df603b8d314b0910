// Package api exposes the marketplace over HTTP with a chi router.
//
// Mutating routes are authenticated by X-Signature headers. Each signer
// signs an auth.Envelope binding the method, the path, a timestamp and a
// nonce to the raw body. Signatures that verify with a fresh timestamp add
// the signer to the request's signer set, which the engine's
// auth.ContextAuthorizer checks; the operation then redeems the nonce so
// the request cannot be replayed. Queries need no signature.
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"

	"github.com/xraph/factor"
)

// MaxBodyBytes bounds request bodies.
const MaxBodyBytes = 1 << 20

// DefaultMaxSkew is how far a signature timestamp may be from the engine
// clock.
const DefaultMaxSkew = 5 * time.Minute

// API serves the marketplace routes.
type API struct {
	engine   *factor.Engine
	logger   *slog.Logger
	validate *validator.Validate
	basePath string
	maxSkew  time.Duration
}

// Option configures an API.
type Option func(*API)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *API) { a.logger = logger }
}

// WithBasePath mounts every route under prefix, e.g. "/factor".
func WithBasePath(prefix string) Option {
	return func(a *API) { a.basePath = prefix }
}

// WithMaxSkew sets the accepted distance between a signature timestamp
// and the engine clock.
func WithMaxSkew(d time.Duration) Option {
	return func(a *API) {
		if d > 0 {
			a.maxSkew = d
		}
	}
}

// New creates an API for engine.
func New(engine *factor.Engine, opts ...Option) *API {
	a := &API{
		engine:   engine,
		logger:   slog.Default(),
		validate: validator.New(validator.WithRequiredStructEnabled()),
		maxSkew:  DefaultMaxSkew,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Handler returns the root http.Handler including middleware.
func (a *API) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(middleware.RealIP)
	r.Use(a.logRequests)
	r.Use(middleware.Recoverer)

	if a.basePath == "" || a.basePath == "/" {
		a.Register(r)
		return r
	}
	r.Route(a.basePath, a.Register)
	return r
}

// Register adds the marketplace routes to r.
func (a *API) Register(r chi.Router) {
	r.Get("/healthz", a.health)

	r.Group(func(r chi.Router) {
		r.Use(a.verifySigners)

		r.Post("/initialize", a.initialize)
		r.Post("/invoices", a.mint)
		r.Post("/invoices/{id}/verify", a.verify)
		r.Post("/invoices/{id}/list", a.list)
		r.Post("/invoices/{id}/buy", a.buy)
		r.Post("/invoices/{id}/settle", a.settle)
		r.Post("/balances/{token}/deposit", a.deposit)
	})

	r.Get("/invoices", a.invoicesByParty)
	r.Get("/invoices/count", a.invoiceCount)
	r.Get("/invoices/{id}", a.getInvoice)
	r.Get("/invoices/{id}/listing", a.getListing)
	r.Get("/listings", a.allListings)
	r.Get("/balances/{token}/{owner}", a.balance)
}
