package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/ayla-health/ayla-cli/internal/autherr"
	"github.com/ayla-health/ayla-cli/internal/logging"
	"github.com/ayla-health/ayla-cli/internal/models"
	"github.com/ayla-health/ayla-cli/internal/store"
)

// SessionCookieName is the cookie through which the backend communicates
// the session token. The client never inspects its value; it only mirrors
// it into the token store and presents it as a bearer credential.
const SessionCookieName = "ayla_session"

const defaultRequestTimeout = 15 * time.Second

// authResponse is the common envelope of the identity endpoints.
type authResponse struct {
	User    *models.UserProfile `json:"user"`
	Message string              `json:"message"`
}

// errorResponse is the optional JSON body of non-2xx responses.
type errorResponse struct {
	Message string `json:"message"`
}

// HTTPClient implements Client over HTTP/JSON.
type HTTPClient struct {
	baseURL string
	http    *http.Client
	store   *store.Store
	log     logging.Logger

	// onUnauthenticated is invoked after a 401 on an authenticated call,
	// once the token store has been cleared. The session controller wires
	// it to the forced de-authentication transition.
	onUnauthenticated func()
}

// NewHTTPClient constructs an HTTPClient rooted at baseURL, mirroring the
// session cookie into st.
func NewHTTPClient(baseURL string, st *store.Store, log logging.Logger) (*HTTPClient, error) {
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid base URL %q: %w", baseURL, err)
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}

	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Jar: jar, Timeout: defaultRequestTimeout},
		store:   st,
		log:     log,
	}, nil
}

// SetUnauthenticatedHook registers the forced de-authentication callback.
// Must be called before the client is shared between goroutines.
func (c *HTTPClient) SetUnauthenticatedHook(fn func()) {
	c.onUnauthenticated = fn
}

func (c *HTTPClient) Login(ctx context.Context, email, password string) (*models.UserProfile, string, error) {
	creds := models.Credentials{Email: email, Password: password}

	var resp authResponse
	err := c.do(ctx, http.MethodPost, "/api/auth/login", creds, &resp, requestOpts{credentialCall: true})
	if err != nil {
		return nil, "", err
	}
	if resp.User == nil {
		return nil, "", autherr.New(autherr.Internal, "login response missing user", nil)
	}
	return resp.User, resp.Message, nil
}

func (c *HTTPClient) Logout(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/api/auth/logout", nil, nil, requestOpts{})
}

func (c *HTTPClient) Register(ctx context.Context, data models.RegisterData) (*models.UserProfile, string, error) {
	var resp authResponse
	err := c.do(ctx, http.MethodPost, "/api/auth/register", data, &resp, requestOpts{credentialCall: true})
	if err != nil {
		return nil, "", err
	}
	return resp.User, resp.Message, nil
}

func (c *HTTPClient) CurrentUser(ctx context.Context) (*models.UserProfile, error) {
	var resp authResponse
	if err := c.do(ctx, http.MethodGet, "/api/auth/me", nil, &resp, requestOpts{}); err != nil {
		return nil, err
	}
	if resp.User == nil {
		return nil, autherr.New(autherr.Internal, "current-user response missing user", nil)
	}
	return resp.User, nil
}

func (c *HTTPClient) ValidateSession(ctx context.Context) bool {
	_, err := c.CurrentUser(ctx)
	return err == nil
}

func (c *HTTPClient) TodayActivity(ctx context.Context) (*models.ActivitySummary, error) {
	var summary models.ActivitySummary
	if err := c.do(ctx, http.MethodGet, "/api/activity/today", nil, &summary, requestOpts{}); err != nil {
		return nil, err
	}
	return &summary, nil
}

func (c *HTTPClient) Close() error {
	c.http.CloseIdleConnections()
	return nil
}

// requestOpts adjusts failure mapping per endpoint. credentialCall marks
// login/register, whose 4xx responses mean rejected input rather than an
// expired session.
type requestOpts struct {
	credentialCall bool
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body, out any, opts requestOpts) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return autherr.New(autherr.Internal, "failed to encode request", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return autherr.New(autherr.Internal, "failed to build request", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.store.Token(ctx); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return autherr.New(autherr.ServerUnavailable, "server unavailable", err)
	}
	defer resp.Body.Close()

	c.captureSessionCookie(ctx, resp)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return autherr.New(autherr.Internal, "failed to decode response", err)
		}
		return nil
	}

	return c.mapError(ctx, resp, opts)
}

// captureSessionCookie mirrors the backend-issued session cookie into the
// token store so the session survives restarts and is visible to other
// contexts sharing the store.
func (c *HTTPClient) captureSessionCookie(ctx context.Context, resp *http.Response) {
	for _, ck := range resp.Cookies() {
		if ck.Name != SessionCookieName {
			continue
		}
		if ck.Value == "" || ck.MaxAge < 0 {
			continue
		}
		c.store.SaveToken(ctx, ck.Value)
	}
}

// mapError translates a non-2xx response into a tagged error. A 401 on an
// authenticated call clears the token store and fires the unauthenticated
// hook before returning.
func (c *HTTPClient) mapError(ctx context.Context, resp *http.Response, opts requestOpts) error {
	msg := serverMessage(resp.Body)

	switch {
	case resp.StatusCode == http.StatusUnauthorized && !opts.credentialCall:
		c.log.Warn(ctx, "session rejected by backend", "status", resp.StatusCode)
		c.store.Clear(ctx)
		if c.onUnauthenticated != nil {
			c.onUnauthenticated()
		}
		if msg == "" {
			msg = "session expired"
		}
		return autherr.New(autherr.Unauthenticated, msg, nil)

	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		if msg == "" {
			msg = "invalid credentials"
		}
		return autherr.New(autherr.InvalidCredentials, msg, nil)

	default:
		if msg == "" {
			msg = "server unavailable"
		}
		return autherr.New(autherr.ServerUnavailable, msg, fmt.Errorf("status %d", resp.StatusCode))
	}
}

// serverMessage extracts the optional {message} payload of a failure body.
func serverMessage(r io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(r, 1<<16))
	if err != nil {
		return ""
	}
	var er errorResponse
	if err := json.Unmarshal(data, &er); err != nil {
		return ""
	}
	return er.Message
}
