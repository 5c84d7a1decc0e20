/*
Copyright 2024 Gravitational, Inc.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package oauth

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"html"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gravitational/oc-donor-bot/lib"
	"github.com/gravitational/oc-donor-bot/lib/auth/state"
	"github.com/gravitational/oc-donor-bot/lib/logger"
	"github.com/gravitational/trace"
	"github.com/jonboulle/clockwork"
	"github.com/julienschmidt/httprouter"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultRedirectURI is used when no redirect URI is configured.
	DefaultRedirectURI = "http://localhost:3000/callback"
	// DefaultTimeout bounds how long the flow waits for the browser callback.
	DefaultTimeout = 10 * time.Minute

	defaultPort = "3000"

	// shutdownGracePeriod is how long the listener may take to close
	// gracefully before it is closed forcefully.
	shutdownGracePeriod = time.Second
)

// Phase is the state of a CallbackFlow.
type Phase int

const (
	// PhaseAwaitingCallback is the initial phase, the flow waits for the browser.
	PhaseAwaitingCallback Phase = iota
	// PhaseExchanging means the callback arrived and the code is being exchanged.
	PhaseExchanging
	// PhaseDone means the credential was stored.
	PhaseDone
	// PhaseFailed means the callback was rejected or the exchange failed.
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseAwaitingCallback:
		return "awaiting-callback"
	case PhaseExchanging:
		return "exchanging"
	case PhaseDone:
		return "done"
	case PhaseFailed:
		return "failed"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// CallbackFlowConfig configures a CallbackFlow.
type CallbackFlowConfig struct {
	// ClientID is the OAuth application id.
	ClientID string
	// RedirectURI is where the provider sends the browser back to. The
	// listener binds to its port and serves its path.
	RedirectURI string
	// ListenAddr overrides the address derived from RedirectURI.
	ListenAddr string
	// AuthorizeURL is the provider's authorization endpoint.
	AuthorizeURL string
	// Scopes are the requested OAuth scopes.
	Scopes []string
	// Timeout bounds the wait for the callback.
	Timeout time.Duration
	// Exchanger trades the authorization code for a credential.
	Exchanger Exchanger
	// State stores the resulting credential.
	State state.State
	// Clock is used for the timeout and the acquisition timestamp.
	Clock clockwork.Clock
	// AntiForgeryToken is the OAuth state value. Generated when empty.
	AntiForgeryToken string
}

// CheckAndSetDefaults validates the config and fills the defaults in.
func (c *CallbackFlowConfig) CheckAndSetDefaults() error {
	if c.ClientID == "" {
		return trace.BadParameter("missing required value client id")
	}
	if c.AuthorizeURL == "" {
		return trace.BadParameter("missing required value authorize url")
	}
	if c.Exchanger == nil {
		return trace.BadParameter("missing exchanger")
	}
	if c.State == nil {
		return trace.BadParameter("missing credentials state")
	}
	if c.RedirectURI == "" {
		c.RedirectURI = DefaultRedirectURI
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
	if c.AntiForgeryToken == "" {
		token, err := newAntiForgeryToken()
		if err != nil {
			return trace.Wrap(err)
		}
		c.AntiForgeryToken = token
	}
	return nil
}

// CallbackFlow is a one-shot authorization-code flow. It serves exactly one
// callback on a local listener, moving from PhaseAwaitingCallback through
// PhaseExchanging to PhaseDone or PhaseFailed.
type CallbackFlow struct {
	conf     CallbackFlowConfig
	redirect *url.URL
	http     *lib.HTTP
	log      logrus.FieldLogger

	serveErr chan error
	done     chan struct{}

	mu    sync.Mutex // protects the below fields
	phase Phase
	err   error
}

// NewCallbackFlow builds the flow. Nothing is bound until Start.
func NewCallbackFlow(conf CallbackFlowConfig) (*CallbackFlow, error) {
	if err := conf.CheckAndSetDefaults(); err != nil {
		return nil, trace.Wrap(err)
	}

	redirect, err := url.Parse(conf.RedirectURI)
	if err != nil {
		return nil, trace.BadParameter("invalid redirect uri %q: %v", conf.RedirectURI, err)
	}
	if redirect.Scheme != "http" && redirect.Scheme != "https" {
		return nil, trace.BadParameter("redirect uri %q must be an http(s) url", conf.RedirectURI)
	}

	listenAddr := conf.ListenAddr
	if listenAddr == "" {
		port := redirect.Port()
		if port == "" {
			port = defaultPort
		}
		listenAddr = net.JoinHostPort("", port)
	}

	httpSrv, err := lib.NewHTTP(lib.HTTPConfig{Listen: listenAddr})
	if err != nil {
		return nil, trace.Wrap(err)
	}

	flow := &CallbackFlow{
		conf:     conf,
		redirect: redirect,
		http:     httpSrv,
		log:      logger.Standard(),
		serveErr: make(chan error, 1),
		done:     make(chan struct{}),
	}

	callbackPath := redirect.Path
	if callbackPath == "" {
		callbackPath = "/"
	}
	httpSrv.GET(callbackPath, flow.handleCallback)

	return flow, nil
}

// AuthorizationURL is the URL the operator opens in a browser.
func (f *CallbackFlow) AuthorizationURL() string {
	u, err := url.Parse(f.conf.AuthorizeURL)
	if err != nil {
		// AuthorizeURL is a constant in practice, keep the raw value.
		u = &url.URL{Path: f.conf.AuthorizeURL}
	}
	q := u.Query()
	q.Set("client_id", f.conf.ClientID)
	q.Set("response_type", "code")
	q.Set("redirect_uri", f.conf.RedirectURI)
	q.Set("scope", strings.Join(f.conf.Scopes, ","))
	q.Set("state", f.conf.AntiForgeryToken)
	u.RawQuery = q.Encode()
	return u.String()
}

// Phase returns the current phase.
func (f *CallbackFlow) Phase() Phase {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.phase
}

// Addr is the address the listener is bound to.
func (f *CallbackFlow) Addr() string {
	return f.http.Addr()
}

// Start binds the listener and starts serving. Binding errors, such as the
// port being in use, are returned directly.
func (f *CallbackFlow) Start(ctx context.Context) error {
	f.log = logger.Get(ctx)
	if err := f.http.Bind(); err != nil {
		if trace.IsConnectionProblem(err) {
			return trace.Wrap(err, "port %s is already in use, either free the port or change the redirect uri to use a different port", f.http.Listen)
		}
		return trace.Wrap(err)
	}
	go func() {
		f.serveErr <- f.http.ListenAndServe(ctx)
	}()
	f.log.Infof("Listening on %s for OAuth callback...", f.Addr())
	return nil
}

// Wait blocks until the callback was handled, the timeout expired, the
// listener failed or ctx was cancelled. The listener is always shut down
// before Wait returns.
func (f *CallbackFlow) Wait(ctx context.Context) error {
	defer f.shutdown()

	timeout := f.conf.Clock.After(f.conf.Timeout)
	select {
	case <-f.done:
		f.mu.Lock()
		defer f.mu.Unlock()
		return f.err
	case err := <-f.serveErr:
		if err == nil {
			err = trace.ConnectionProblem(nil, "callback listener stopped unexpectedly")
		}
		f.fail(err)
		return trace.Wrap(err)
	case <-timeout:
		err := trace.LimitExceeded("timed out after %s waiting for the OAuth callback", f.conf.Timeout)
		f.fail(err)
		return err
	case <-ctx.Done():
		f.fail(ctx.Err())
		return trace.Wrap(ctx.Err())
	}
}

// Run starts the flow and waits for it to finish.
func (f *CallbackFlow) Run(ctx context.Context) error {
	if err := f.Start(ctx); err != nil {
		return trace.Wrap(err)
	}
	return trace.Wrap(f.Wait(ctx))
}

func (f *CallbackFlow) shutdown() {
	if err := f.http.ShutdownWithTimeout(context.Background(), shutdownGracePeriod); err != nil {
		f.log.WithError(err).Debug("Graceful shutdown of the callback listener failed, closing")
		f.http.Close()
	}
}

// claim moves the flow out of PhaseAwaitingCallback. Only the first caller
// succeeds.
func (f *CallbackFlow) claim() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.phase != PhaseAwaitingCallback {
		return false
	}
	f.phase = PhaseExchanging
	return true
}

// fail records a terminal failure unless the flow already finished.
func (f *CallbackFlow) fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.phase == PhaseDone || f.phase == PhaseFailed {
		return
	}
	f.phase = PhaseFailed
	f.err = err
}

func (f *CallbackFlow) finish(err error) {
	f.mu.Lock()
	if err != nil {
		f.phase = PhaseFailed
	} else {
		f.phase = PhaseDone
	}
	f.err = err
	f.mu.Unlock()
	close(f.done)
}

func (f *CallbackFlow) handleCallback(rw http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if !f.claim() {
		writePage(rw, http.StatusGone, "Callback already handled", "This authorization session is finished.")
		return
	}

	status, title, message, err := f.processCallback(r.Context(), r.URL.Query())
	writePage(rw, status, title, message)
	if err != nil {
		f.log.WithError(err).Error(title)
	}
	f.finish(err)
}

func (f *CallbackFlow) processCallback(ctx context.Context, query url.Values) (int, string, string, error) {
	if providerErr := query.Get("error"); providerErr != "" {
		return http.StatusBadRequest, "Authorization failed", providerErr,
			trace.AccessDenied("authorization failed: %s", providerErr)
	}

	returned := query.Get("state")
	if subtle.ConstantTimeCompare([]byte(returned), []byte(f.conf.AntiForgeryToken)) != 1 {
		return http.StatusBadRequest, "State mismatch, possible CSRF attack", "",
			trace.CompareFailed("state parameter mismatch")
	}

	code := query.Get("code")
	if code == "" {
		return http.StatusBadRequest, "No authorization code received", "",
			trace.BadParameter("no authorization code in callback")
	}

	f.log.Info("Exchanging authorization code for access token...")
	creds, err := f.conf.Exchanger.Exchange(ctx, code, f.conf.RedirectURI)
	if err != nil {
		return http.StatusInternalServerError, "Token exchange failed", "",
			trace.Wrap(err, "token exchange failed")
	}
	if creds.ObtainedAt.IsZero() {
		creds.ObtainedAt = f.conf.Clock.Now().UTC()
	}

	if err := f.conf.State.PutCredentials(ctx, creds); err != nil {
		return http.StatusInternalServerError, "Failed to save the token", "",
			trace.Wrap(err, "failed to save the token")
	}

	return http.StatusOK, "Authorization successful!",
		"You can close this window. The bot token has been saved.", nil
}

func writePage(rw http.ResponseWriter, status int, title, message string) {
	rw.Header().Set("Content-Type", "text/html; charset=utf-8")
	rw.WriteHeader(status)
	body := "<h1>" + html.EscapeString(title) + "</h1>"
	if message != "" {
		body += "<p>" + html.EscapeString(message) + "</p>"
	}
	fmt.Fprint(rw, body)
}

func newAntiForgeryToken() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", trace.Wrap(err)
	}
	return hex.EncodeToString(buf), nil
}
