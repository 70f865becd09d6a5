// Package identitytest provides an in-memory stub of the Ayla identity API
// for tests: login/logout/register/current-user plus the activity-today
// endpoint, with per-route call counting and fault injection.
//
// The stub issues real JWT session tokens via the ayla_session cookie and
// accepts them back either as a cookie or as an Authorization bearer
// header, matching the production contract closely enough for the client
// and session-controller test suites.
package identitytest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/ayla-health/ayla-cli/internal/models"
)

// SessionCookieName must match the cookie name the client mirrors into its
// token store.
const SessionCookieName = "ayla_session"

const defaultTokenTTL = time.Hour

type account struct {
	id        string
	email     string
	hash      []byte
	firstName string
	lastName  string
	activity  models.ActivitySummary
}

type injectedFailure struct {
	code      int
	remaining int
}

// Server is a running stub identity backend.
type Server struct {
	mu       sync.Mutex
	users    map[string]*account // keyed by email
	secret   []byte
	tokenTTL time.Duration
	calls    map[string]int
	failures map[string]*injectedFailure

	httpServer *httptest.Server
}

// NewServer starts the stub; callers must Close it.
func NewServer() *Server {
	s := &Server{
		users:    make(map[string]*account),
		secret:   []byte(uuid.New().String()),
		tokenTTL: defaultTokenTTL,
		calls:    make(map[string]int),
		failures: make(map[string]*injectedFailure),
	}

	r := chi.NewRouter()
	r.Post("/api/auth/login", s.handleLogin)
	r.Post("/api/auth/logout", s.handleLogout)
	r.Post("/api/auth/register", s.handleRegister)
	r.Get("/api/auth/me", s.handleMe)
	r.Get("/api/activity/today", s.handleActivity)

	s.httpServer = httptest.NewServer(r)
	return s
}

// URL returns the base URL of the stub.
func (s *Server) URL() string {
	return s.httpServer.URL
}

// Close shuts the stub down.
func (s *Server) Close() {
	s.httpServer.Close()
}

// AddUser registers a user directly, bypassing the register endpoint, and
// returns its profile.
func (s *Server) AddUser(email, password, firstName, lastName string) *models.UserProfile {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		panic(err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	acc := &account{
		id:        uuid.New().String(),
		email:     strings.ToLower(email),
		hash:      hash,
		firstName: firstName,
		lastName:  lastName,
	}
	s.users[acc.email] = acc
	return profileOf(acc)
}

// SetActivity sets the activity summary returned for the given user.
func (s *Server) SetActivity(email string, summary models.ActivitySummary) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if acc, ok := s.users[strings.ToLower(email)]; ok {
		acc.activity = summary
	}
}

// Calls returns how many requests reached the given route ("login",
// "logout", "register", "me", "activity").
func (s *Server) Calls(route string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[route]
}

// FailNext arms the route to answer the next n requests with the given
// status code instead of its normal behavior.
func (s *Server) FailNext(route string, code, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[route] = &injectedFailure{code: code, remaining: n}
}

// RevokeSessions rotates the signing secret, invalidating every
// outstanding session token.
func (s *Server) RevokeSessions() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.secret = []byte(uuid.New().String())
}

// enter records the call and reports an injected failure, if armed.
func (s *Server) enter(route string) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls[route]++
	if f, ok := s.failures[route]; ok && f.remaining > 0 {
		f.remaining--
		return f.code, true
	}
	return 0, false
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if code, ok := s.enter("login"); ok {
		writeJSON(w, code, map[string]string{"message": "injected failure"})
		return
	}

	var creds models.Credentials
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "invalid request body"})
		return
	}

	s.mu.Lock()
	acc, ok := s.users[strings.ToLower(creds.Email)]
	s.mu.Unlock()

	if !ok || bcrypt.CompareHashAndPassword(acc.hash, []byte(creds.Password)) != nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "invalid email or password"})
		return
	}

	token, err := s.issueToken(acc)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"message": "failed to issue token"})
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"user":    profileOf(acc),
		"message": "login successful",
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if code, ok := s.enter("logout"); ok {
		writeJSON(w, code, map[string]string{"message": "injected failure"})
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:   SessionCookieName,
		Value:  "",
		Path:   "/",
		MaxAge: -1,
	})
	writeJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if code, ok := s.enter("register"); ok {
		writeJSON(w, code, map[string]string{"message": "injected failure"})
		return
	}

	var data models.RegisterData
	if err := json.NewDecoder(r.Body).Decode(&data); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "invalid request body"})
		return
	}

	email := strings.ToLower(data.Email)

	s.mu.Lock()
	_, exists := s.users[email]
	s.mu.Unlock()
	if exists {
		writeJSON(w, http.StatusConflict, map[string]string{"message": "email already registered"})
		return
	}

	profile := s.AddUser(email, data.Password, data.FirstName, data.LastName)
	writeJSON(w, http.StatusCreated, map[string]any{
		"user":    profile,
		"message": "account created",
	})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	if code, ok := s.enter("me"); ok {
		writeJSON(w, code, map[string]string{"message": "injected failure"})
		return
	}

	acc, ok := s.authenticate(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "unauthorized"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": profileOf(acc)})
}

func (s *Server) handleActivity(w http.ResponseWriter, r *http.Request) {
	if code, ok := s.enter("activity"); ok {
		writeJSON(w, code, map[string]string{"message": "injected failure"})
		return
	}

	acc, ok := s.authenticate(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "unauthorized"})
		return
	}

	s.mu.Lock()
	summary := acc.activity
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) issueToken(acc *account) (string, error) {
	s.mu.Lock()
	secret := s.secret
	ttl := s.tokenTTL
	s.mu.Unlock()

	claims := jwt.RegisteredClaims{
		Subject:   acc.id,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		IssuedAt:  jwt.NewNumericDate(time.Now()),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// authenticate resolves the requesting user from the bearer header or the
// session cookie.
func (s *Server) authenticate(r *http.Request) (*account, bool) {
	token := ""
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		token = strings.TrimPrefix(h, "Bearer ")
	} else if ck, err := r.Cookie(SessionCookieName); err == nil {
		token = ck.Value
	}
	if token == "" {
		return nil, false
	}

	s.mu.Lock()
	secret := s.secret
	s.mu.Unlock()

	parsed, err := jwt.ParseWithClaims(token, &jwt.RegisteredClaims{}, func(t *jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !parsed.Valid {
		return nil, false
	}
	claims := parsed.Claims.(*jwt.RegisteredClaims)

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, acc := range s.users {
		if acc.id == claims.Subject {
			return acc, true
		}
	}
	return nil, false
}

func profileOf(acc *account) *models.UserProfile {
	return &models.UserProfile{
		ID:        acc.id,
		Email:     acc.email,
		FirstName: acc.firstName,
		LastName:  acc.lastName,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
