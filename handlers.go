package main

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/csrf"

	"connectkids/internal/backend"
	"connectkids/internal/model"
	"connectkids/internal/opportunity"
	"connectkids/internal/querycache"
	"connectkids/internal/session"
)

const listingsPath = "/Opportunities"

func (s *Server) page(r *http.Request, title string, user *model.User) basePageData {
	return basePageData{
		PageTitle:   title,
		CurrentYear: time.Now().Year(),
		User:        user,
		CSRFField:   csrf.TemplateField(r),
		LocalLogin:  s.login != nil,
	}
}

func sessionToken(r *http.Request) string {
	cookie, err := r.Cookie(session.CookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}

// gate is the resolved session for one request and the view it allows.
type gate struct {
	state opportunity.State
	view  opportunity.View
	user  *model.User
	token string
}

// submitted moves g to the view that follows a successful create.
func (g *gate) submitted() {
	g.state.Submitted = true
	g.view = opportunity.Derive(g.state)
}

func (s *Server) resolveGate(r *http.Request) gate {
	token := sessionToken(r)
	state := opportunity.State{SessionResolved: true}

	var user *model.User
	u, err := s.sessions.Resolve(r.Context(), token)
	if err == nil {
		user = &u
		state.Authenticated = true
		state.Role = u.Role
	} else if token != "" {
		s.logger.Debug("session not resolved", "request_id", requestID(r.Context()), "error", err)
	}
	return gate{state: state, view: opportunity.Derive(state), user: user, token: token}
}

// callbackPath receives the browser back from the hosted login.
const callbackPath = "/auth/callback"

// redirectToLogin sends the browser to sign in and back to the current page.
// With the hosted service the return goes through callbackPath carrying a
// state nonce that must match the browser's cookie.
func (s *Server) redirectToLogin(w http.ResponseWriter, r *http.Request) {
	base := strings.TrimRight(s.publicURL, "/")
	returnURL := base + r.URL.RequestURI()
	if s.login == nil {
		state := uuid.NewString()
		s.setLoginState(w, state)
		returnURL = base + callbackPath + "?" + url.Values{
			"state":    {state},
			"from_url": {r.URL.RequestURI()},
		}.Encode()
	}
	http.Redirect(w, r, s.backend.LoginURL(returnURL), http.StatusSeeOther)
}

// handleAuthCallback stores the token the hosted login hands back, but only
// for the browser that holds the matching state nonce.
func (s *Server) handleAuthCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	token := q.Get("access_token")
	cookie, err := r.Cookie(loginStateCookie)
	s.clearLoginState(w)
	if err != nil || token == "" || q.Get("state") == "" ||
		subtle.ConstantTimeCompare([]byte(cookie.Value), []byte(q.Get("state"))) != 1 {
		s.logger.Warn("login callback rejected", "request_id", requestID(r.Context()))
		s.render(w, "error", http.StatusBadRequest, errorPageData{
			basePageData: s.page(r, "Error", nil),
			Message:      "That sign-in link is not valid. Please sign in again.",
		})
		return
	}
	s.setSessionCookie(w, token)
	http.Redirect(w, r, s.localRedirect(q.Get("from_url"), listingsPath), http.StatusSeeOther)
}

// localRedirect keeps post-login navigation on this site.
func (s *Server) localRedirect(target, fallback string) string {
	if target == "" {
		return fallback
	}
	if base := strings.TrimRight(s.publicURL, "/"); base != "" && strings.HasPrefix(target, base+"/") {
		target = strings.TrimPrefix(target, base)
	}
	u, err := url.Parse(target)
	if err != nil || u.IsAbs() || u.Host != "" || !strings.HasPrefix(u.Path, "/") || strings.HasPrefix(target, "//") || strings.HasPrefix(target, "/\\") {
		return fallback
	}
	return u.RequestURI()
}

// respondToGate writes the response for every view except the form, and
// reports whether it did.
func (s *Server) respondToGate(w http.ResponseWriter, r *http.Request, g gate) bool {
	switch g.view {
	case opportunity.ViewEditing:
		return false
	case opportunity.ViewSubmitted:
		page := s.page(r, "Opportunity Created", g.user)
		page.Refresh = &metaRefresh{
			Seconds: int(opportunity.RedirectDelay / time.Second),
			URL:     listingsPath,
		}
		s.render(w, "submitted", http.StatusOK, linkPageData{basePageData: page, ListingsURL: listingsPath})
	case opportunity.ViewLogin:
		s.redirectToLogin(w, r)
	case opportunity.ViewCompleteProfile:
		http.Redirect(w, r, "/CompleteProfile?from_url="+url.QueryEscape(r.URL.RequestURI()), http.StatusSeeOther)
	case opportunity.ViewDenied:
		s.render(w, "denied", http.StatusForbidden, linkPageData{
			basePageData: s.page(r, "Organizers Only", g.user),
			ListingsURL:  listingsPath,
		})
	default:
		s.render(w, "loading", http.StatusOK, s.page(r, "Loading", g.user))
	}
	return true
}

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, listingsPath, http.StatusFound)
}

func (s *Server) formData(r *http.Request, user *model.User, d model.Draft) opportunityFormData {
	return opportunityFormData{
		basePageData: s.page(r, "Create Opportunity", user),
		Draft:        d,
		AgeRanges:    model.AgeRanges,
		Interests:    model.Interests,
	}
}

func (s *Server) handleCreateOpportunityPage(w http.ResponseWriter, r *http.Request) {
	g := s.resolveGate(r)
	if s.respondToGate(w, r, g) {
		return
	}
	s.render(w, "create", http.StatusOK, s.formData(r, g.user, model.NewDraft()))
}

func draftFromForm(r *http.Request) model.Draft {
	return model.Draft{
		Title:        r.PostFormValue("title"),
		AgeRange:     model.AgeRange(r.PostFormValue("age_range")),
		Interest:     model.Interest(r.PostFormValue("interest")),
		Description:  r.PostFormValue("description"),
		Link:         r.PostFormValue("link"),
		Organization: r.PostFormValue("organization"),
	}
}

func (s *Server) handleCreateOpportunity(w http.ResponseWriter, r *http.Request) {
	g := s.resolveGate(r)
	if s.respondToGate(w, r, g) {
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}

	draft := draftFromForm(r)
	_, err := s.opportunities.Submit(r.Context(), g.token, draft)

	var invalid *opportunity.ValidationError
	switch {
	case errors.As(err, &invalid):
		data := s.formData(r, g.user, draft)
		data.Errors = invalid.Fields
		data.Alert = invalid.Error()
		s.render(w, "create", http.StatusUnprocessableEntity, data)
		return

	case errors.Is(err, backend.ErrUnauthenticated):
		s.sessions.Refresh(g.token)
		s.redirectToLogin(w, r)
		return

	case err != nil:
		s.logger.Error("create opportunity",
			"request_id", requestID(r.Context()),
			"user", g.user.Email,
			"error", err,
		)
		data := s.formData(r, g.user, draft)
		data.CreateError = "We couldn't create your opportunity. Your details are still here."
		s.render(w, "create", http.StatusBadGateway, data)
		return
	}

	g.submitted()
	s.respondToGate(w, r, g)
}

func (s *Server) handleImpactPage(w http.ResponseWriter, r *http.Request) {
	g := s.resolveGate(r)
	page := s.page(r, "Our Impact", g.user)
	page.Scripts = []string{"/static/wasm_exec.js", "/static/impact.js"}
	s.render(w, "impact", http.StatusOK, impactPageData{basePageData: page, Impact: s.impact})
}

// listingsKey scopes cached listings to the viewer, since the data service
// answers each bearer token separately. Invalidating ListingsKey drops all.
func listingsKey(user *model.User) []string {
	viewer := "anonymous"
	if user != nil {
		viewer = "user:" + user.ID
	}
	return append(append([]string(nil), opportunity.ListingsKey...), viewer)
}

func (s *Server) handleOpportunitiesPage(w http.ResponseWriter, r *http.Request) {
	g := s.resolveGate(r)

	items, err := querycache.Fetch(r.Context(), s.listings, listingsKey(g.user),
		func(ctx context.Context) ([]model.Opportunity, error) {
			return s.backend.ListOpportunities(ctx, g.token)
		})
	if errors.Is(err, backend.ErrUnauthenticated) {
		s.redirectToLogin(w, r)
		return
	}

	page := s.page(r, "Opportunities", g.user)
	page.Scripts = []string{"/static/live.js"}
	data := listingsPageData{
		basePageData:  page,
		Opportunities: items,
		CanCreate:     g.view == opportunity.ViewEditing,
	}
	status := http.StatusOK
	if err != nil {
		s.logger.Error("list opportunities", "request_id", requestID(r.Context()), "error", err)
		data.Error = "Opportunities could not be loaded right now."
		status = http.StatusBadGateway
	}
	s.render(w, "opportunities", status, data)
}

func (s *Server) handleCompleteProfilePage(w http.ResponseWriter, r *http.Request) {
	g := s.resolveGate(r)
	if g.view == opportunity.ViewLogin {
		s.redirectToLogin(w, r)
		return
	}
	from := s.localRedirect(r.URL.Query().Get("from_url"), listingsPath)
	if g.user.Role != "" {
		http.Redirect(w, r, from, http.StatusSeeOther)
		return
	}
	s.render(w, "complete-profile", http.StatusOK, profilePageData{
		basePageData: s.page(r, "Complete Profile", g.user),
		Roles:        model.Roles,
		FromURL:      from,
	})
}

func (s *Server) handleCompleteProfile(w http.ResponseWriter, r *http.Request) {
	g := s.resolveGate(r)
	if g.view == opportunity.ViewLogin {
		s.redirectToLogin(w, r)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}

	from := s.localRedirect(r.PostFormValue("from_url"), listingsPath)
	if g.user.Role != "" {
		s.logger.Warn("profile already complete", "request_id", requestID(r.Context()), "user", g.user.Email)
		http.Redirect(w, r, from, http.StatusSeeOther)
		return
	}
	role := model.Role(r.PostFormValue("user_type"))
	if !model.ValidRole(role) {
		s.render(w, "complete-profile", http.StatusUnprocessableEntity, profilePageData{
			basePageData: s.page(r, "Complete Profile", g.user),
			Roles:        model.Roles,
			FromURL:      from,
			Error:        "Please choose how you will use ConnectKids",
		})
		return
	}

	if _, err := s.backend.UpdateMe(r.Context(), g.token, model.ProfileUpdate{Role: role}); err != nil {
		s.logger.Error("update profile", "request_id", requestID(r.Context()), "error", err)
		s.render(w, "error", http.StatusBadGateway, errorPageData{
			basePageData: s.page(r, "Error", g.user),
			Message:      "Your profile could not be saved. Please try again.",
		})
		return
	}
	s.sessions.Refresh(g.token)
	s.logger.Info("profile completed", "user", g.user.Email, "role", role)
	http.Redirect(w, r, from, http.StatusSeeOther)
}

func (s *Server) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	s.render(w, "login", http.StatusOK, loginPageData{
		basePageData: s.page(r, "Log in", nil),
		FromURL:      s.localRedirect(r.URL.Query().Get("from_url"), listingsPath),
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}
	email := strings.TrimSpace(r.PostFormValue("email"))
	from := s.localRedirect(r.PostFormValue("from_url"), listingsPath)

	token, err := s.login.Login(r.Context(), email, r.PostFormValue("password"))
	if err != nil {
		status := http.StatusUnauthorized
		if !errors.Is(err, backend.ErrInvalidCredentials) {
			s.logger.Error("login", "request_id", requestID(r.Context()), "error", err)
			status = http.StatusInternalServerError
		}
		s.render(w, "login", status, loginPageData{
			basePageData: s.page(r, "Log in", nil),
			FromURL:      from,
			Email:        email,
			Error:        "Invalid email or password",
		})
		return
	}

	s.setSessionCookie(w, token)
	s.logger.Info("user logged in", "email", email)
	http.Redirect(w, r, from, http.StatusSeeOther)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if token := sessionToken(r); token != "" {
		s.sessions.Refresh(token)
	}
	s.clearSessionCookie(w)
	http.Redirect(w, r, listingsPath, http.StatusSeeOther)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte("ok"))
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	s.render(w, "error", http.StatusNotFound, errorPageData{
		basePageData: s.page(r, "Not Found", nil),
		Message:      "That page does not exist.",
	})
}

func (s *Server) handleCSRFFailure(w http.ResponseWriter, r *http.Request) {
	s.logger.Warn("csrf rejected",
		"request_id", requestID(r.Context()),
		"path", r.URL.Path,
		"reason", csrf.FailureReason(r),
	)
	s.render(w, "error", http.StatusForbidden, errorPageData{
		basePageData: s.page(r, "Error", nil),
		Message:      "Your form expired. Please go back, reload the page and try again.",
	})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade", "error", err)
		return
	}

	client := &Client{
		hub:  s.hub,
		conn: conn,
		send: make(chan []byte, 256),
	}
	if !s.hub.join(client) {
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

// sameOrigin accepts websocket upgrades from this site's pages only.
func (s *Server) sameOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if u.Host == r.Host {
		return true
	}
	public, err := url.Parse(s.publicURL)
	return err == nil && u.Host == public.Host
}
