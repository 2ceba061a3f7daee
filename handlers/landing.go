package handlers

import (
	"context"
	"docgate/gate"
	"docgate/identity"
	"docgate/models"
	"docgate/ui"
	"docgate/utils"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"
)

const MsgLandingTimeout = "Timed out waiting for sign-in. Request a new link from the login page."

// AfterLogin is where magic links land. The page is streamed: each state of
// the landing flow is flushed as it is reached, and the request context is
// the page's lifetime.
func (h *Handler) AfterLogin(w http.ResponseWriter, r *http.Request) {
	key := utils.BrowserKey(r)
	if !utils.CookieExists(r, utils.SessionCookie) {
		key = utils.GenerateToken(32)
		utils.SetSessionCookie(w, key, h.secure)
	}
	browser := h.browserFor(key)

	ctx, cancel := context.WithTimeout(r.Context(), h.landingWait)
	defer cancel()

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	view := newLandingView(w, http.NewResponseController(w))
	view.render("landing-head", models.LandingPageData{})
	defer view.render("landing-foot", models.LandingPageData{})

	query := r.URL.Query()
	if tokenHash := query.Get("token_hash"); tokenHash != "" {
		if err := browser.VerifyLink(ctx, tokenHash, query.Get("type")); err != nil {
			log.Println("magic link verification failed: ", err)
			view.Fail(err.Error())
			return
		}
	}

	landing := &gate.Landing{Provider: browser, View: view, Clock: h.clock}
	err := landing.Run(ctx)
	switch {
	case errors.Is(err, context.DeadlineExceeded) && r.Context().Err() == nil:
		view.Fail(MsgLandingTimeout)
	case err != nil && ctx.Err() == nil:
		log.Println("landing flow failed: ", err)
	}
}

// AcceptTokens takes the tokens a provider redirect left in the URL fragment,
// forwarded by the waiting page, and signs this browser in with them.
func (h *Handler) AcceptTokens(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad form", http.StatusBadRequest)
		return
	}
	key := utils.BrowserKey(r)
	if key == "" {
		http.Error(w, "missing session cookie", http.StatusBadRequest)
		return
	}
	browser := h.browserFor(key)

	if desc := r.PostFormValue("error_description"); desc != "" {
		log.Println("provider redirected with error: ", desc)
		if err := browser.Abandon(r.Context()); err != nil {
			log.Println("error publishing auth event: ", err)
		}
		http.Error(w, desc, http.StatusBadRequest)
		return
	}

	accessToken := r.PostFormValue("access_token")
	if accessToken == "" {
		http.Error(w, "missing access_token", http.StatusBadRequest)
		return
	}
	var expiresIn time.Duration
	if raw := r.PostFormValue("expires_in"); raw != "" {
		seconds, err := strconv.Atoi(raw)
		if err != nil || seconds < 0 {
			http.Error(w, "invalid expires_in", http.StatusBadRequest)
			return
		}
		expiresIn = time.Duration(seconds) * time.Second
	}

	err := browser.EstablishTokens(r.Context(), accessToken, r.PostFormValue("refresh_token"), r.PostFormValue("token_type"), expiresIn)
	if err != nil {
		var apiErr *identity.APIError
		if (errors.As(err, &apiErr) && apiErr.Status < 500) || errors.Is(err, identity.ErrNoSession) {
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}
		log.Println("error establishing session: ", err)
		http.Error(w, "internal error. try again.", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// landingView writes each landing state as an HTML block and flushes it so
// the browser shows it straight away.
type landingView struct {
	w  io.Writer
	rc *http.ResponseController
}

func newLandingView(w io.Writer, rc *http.ResponseController) *landingView {
	return &landingView{w: w, rc: rc}
}

func (v *landingView) Waiting() {
	v.render("landing-waiting", models.LandingPageData{})
}

func (v *landingView) Welcome(user *models.User) {
	v.render("landing-welcome", models.LandingPageData{Email: user.Email})
}

func (v *landingView) Fail(msg string) {
	v.render("landing-error", models.LandingPageData{Error: msg})
}

func (v *landingView) Navigate(path string) {
	v.render("landing-redirect", models.LandingPageData{Redirect: path})
}

func (v *landingView) render(name string, data models.LandingPageData) {
	if err := ui.Render(v.w, name, data); err != nil {
		log.Println("error rendering landing block: ", err)
		return
	}
	if err := v.rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
		log.Println("error flushing landing block: ", err)
	}
}
