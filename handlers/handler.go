// Package handlers serves the gated docs site over HTTP.
package handlers

import (
	"docgate/gate"
	"docgate/identity"
	"docgate/utils"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DefaultLandingWait bounds how long /after-login waits for a sign-in.
const DefaultLandingWait = 2 * time.Minute

type Deps struct {
	Client *identity.Client
	Store  identity.Store
	// DB is optional; without it no issuance audit rows are written.
	DB *pgxpool.Pool
	// Site serves the built documentation.
	Site        http.Handler
	SiteURL     string
	Secure      bool
	LandingWait time.Duration
	Clock       gate.Clock
}

type Handler struct {
	client      *identity.Client
	store       identity.Store
	db          *pgxpool.Pool
	site        http.Handler
	redirectTo  string
	secure      bool
	landingWait time.Duration
	clock       gate.Clock
}

func NewHandler(d Deps) (*Handler, error) {
	if d.Client == nil {
		return nil, errors.New("handlers: identity client is required")
	}
	if d.Store == nil {
		return nil, errors.New("handlers: session store is required")
	}
	if d.SiteURL == "" {
		return nil, errors.New("handlers: site URL is required")
	}
	h := &Handler{
		client:      d.Client,
		store:       d.Store,
		db:          d.DB,
		site:        d.Site,
		redirectTo:  strings.TrimRight(d.SiteURL, "/") + gate.LandingPath,
		secure:      d.Secure,
		landingWait: d.LandingWait,
		clock:       d.Clock,
	}
	if h.site == nil {
		h.site = http.NotFoundHandler()
	}
	if h.landingWait <= 0 {
		h.landingWait = DefaultLandingWait
	}
	if h.clock == nil {
		h.clock = gate.RealClock{}
	}
	return h, nil
}

// Routes wires every page behind the session gate.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(h.Gate)

	r.Get(gate.RootPath, h.Root)
	r.Get(gate.LoginPath, h.LoginPage)
	r.Post(gate.LoginPath, h.Login)
	r.Get(gate.LandingPath, h.AfterLogin)
	r.Post(gate.LandingPath, h.AcceptTokens)
	r.Post("/logout", h.Logout)
	r.Get("/*", h.site.ServeHTTP)
	r.Head("/*", h.site.ServeHTTP)
	return r
}

// Gate runs the session check ahead of every route. Nothing is written before
// the check completes.
func (h *Handler) Gate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		outcome := gate.Check(r.Context(), h.browser(r), r.URL.Path)
		if target := outcome.Target(); target != "" {
			redirect(w, r, target, http.StatusSeeOther)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Root forwards a visit to the site root.
func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	redirect(w, r, gate.RootTarget(r.Context(), h.browser(r)), http.StatusFound)
}

func (h *Handler) browser(r *http.Request) *identity.Browser {
	return h.browserFor(utils.BrowserKey(r))
}

func (h *Handler) browserFor(key string) *identity.Browser {
	digest := ""
	if key != "" {
		digest = utils.Digest(key)
	}
	return identity.NewBrowser(h.client, h.store, digest, h.redirectTo)
}

// redirect replaces the current page. HTMX requests get HX-Redirect so the
// whole page moves instead of a fragment swap.
func redirect(w http.ResponseWriter, r *http.Request, target string, code int) {
	if r.Header.Get("HX-Request") == "true" {
		w.Header().Set("HX-Redirect", target)
		w.WriteHeader(http.StatusOK)
		return
	}
	http.Redirect(w, r, target, code)
}
