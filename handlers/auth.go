package handlers

import (
	"docgate/gate"
	"docgate/models"
	"docgate/ui"
	"docgate/utils"
	"log"
	"net/http"
	"strings"
)

const msgEmailRequired = "Please enter your email address."

func (h *Handler) LoginPage(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := ui.Render(w, "login", models.LoginPageData{}); err != nil {
		http.Error(w, "Error rendering template: "+err.Error(), http.StatusInternalServerError)
	}
}

// Login asks the provider to email a one-time link to the submitted address.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad form", http.StatusBadRequest)
		return
	}
	email := strings.TrimSpace(r.PostFormValue("email"))

	var form gate.LoginForm
	if email == "" {
		form.Message = msgEmailRequired
		form.IsError = true
	} else {
		log.Printf("magic link requested for %s from %s (%s)", email, utils.GetIP(r), utils.GetUserAgent(r))
		err := form.Submit(r.Context(), h.browser(r), email)
		if err != nil {
			log.Println("magic link request failed: ", err)
		}
		h.recordIssuance(r, email, err)
	}

	data := models.LoginPageData{
		Email:   form.Email,
		Message: form.Message,
		IsError: form.IsError,
		Sending: form.Sending,
	}
	name := "login"
	if r.Header.Get("HX-Request") == "true" {
		name = "login-feedback"
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := ui.Render(w, name, data); err != nil {
		http.Error(w, "Error rendering template: "+err.Error(), http.StatusInternalServerError)
	}
}

func (h *Handler) recordIssuance(r *http.Request, email string, sendErr error) {
	issuance := models.Issuance{Email: email, Source: models.SourceLoginForm, OK: sendErr == nil}
	if sendErr != nil {
		issuance.Error = sendErr.Error()
	}
	if err := utils.RecordIssuance(r.Context(), h.db, issuance); err != nil {
		log.Println("error recording issuance: ", err)
	}
}

// Logout ends the browser's session and sends it back to the login page.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.browser(r).SignOut(r.Context()); err != nil {
		log.Println("error signing out: ", err)
	}
	utils.ClearSessionCookie(w, h.secure)
	redirect(w, r, gate.LoginPath, http.StatusSeeOther)
}
