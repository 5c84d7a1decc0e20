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

package lib

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/url"
	"path"
	"syscall"
	"time"

	"github.com/gravitational/trace"
	"github.com/julienschmidt/httprouter"
	log "github.com/sirupsen/logrus"
)

// HTTPConfig configures the inbound HTTP server.
type HTTPConfig struct {
	Listen     string `name:"http-listen" help:"Address to listen on" default:":8080" env:"DONORBOT_LISTEN"`
	KeyFile    string `name:"http-key-file" help:"HTTPS key file, plain HTTP is served when empty" env:"DONORBOT_HTTPS_KEY_FILE"`
	CertFile   string `name:"http-cert-file" help:"HTTPS certificate file" env:"DONORBOT_HTTPS_CERT_FILE"`
	RawBaseURL string `name:"http-base-url" help:"Public base URL of the server" env:"DONORBOT_BASE_URL"`
}

// HTTP is a tiny wrapper around standard net/http.
// It serves either plain HTTP or HTTPS, depending on the settings.
// It also adds a context to its handlers and the server itself has context to.
// So you are guaranteed that server will be closed when the context is cancelled.
type HTTP struct {
	HTTPConfig
	baseURL *url.URL
	*httprouter.Router
	server   http.Server
	listener net.Listener
}

// BaseURL parses the "base-url" setting.
func (conf *HTTPConfig) BaseURL() (*url.URL, error) {
	if raw := conf.RawBaseURL; raw != "" {
		return url.Parse(raw)
	}
	return &url.URL{}, nil
}

func (conf *HTTPConfig) Check() error {
	if _, err := conf.BaseURL(); err != nil {
		return trace.Wrap(err)
	}
	if conf.Listen == "" {
		return trace.BadParameter("missing required value listen")
	}
	if conf.KeyFile != "" && conf.CertFile == "" {
		return trace.BadParameter("https-cert-file is required when https-key-file is specified")
	}
	if conf.CertFile != "" && conf.KeyFile == "" {
		return trace.BadParameter("https-key-file is required when https-cert-file is specified")
	}
	return nil
}

// NewHTTP creates a new HTTP wrapper
func NewHTTP(config HTTPConfig) (*HTTP, error) {
	baseURL, err := config.BaseURL()
	if err != nil {
		return nil, trace.Wrap(err)
	}
	router := httprouter.New()

	return &HTTP{
		HTTPConfig: config,
		baseURL:    baseURL,
		Router:     router,
		server:     http.Server{Addr: config.Listen, Handler: router, ReadHeaderTimeout: 10 * time.Second},
	}, nil
}

// Bind binds the listening socket. Binding errors are returned immediately
// so that a busy port is reported before anything else happens.
func (h *HTTP) Bind() error {
	if h.listener != nil {
		return nil
	}
	listener, err := net.Listen("tcp", h.HTTPConfig.Listen)
	if err != nil {
		if errors.Is(err, syscall.EADDRINUSE) {
			return trace.ConnectionProblem(err, "address %s is already in use", h.HTTPConfig.Listen)
		}
		return trace.ConvertSystemError(err)
	}
	h.listener = listener
	return nil
}

// Addr returns the address the server is bound to, or the configured one if
// the socket was not bound yet.
func (h *HTTP) Addr() string {
	if h.listener != nil {
		return h.listener.Addr().String()
	}
	return h.Listen
}

// ListenAndServe runs a http(s) server on a provided port.
func (h *HTTP) ListenAndServe(ctx context.Context) error {
	defer log.Debug("HTTP server terminated")

	if err := h.Bind(); err != nil {
		return trace.Wrap(err)
	}

	h.server.BaseContext = func(_ net.Listener) context.Context {
		return ctx
	}
	go func() {
		<-ctx.Done()
		h.server.Close()
	}()

	var err error
	if h.CertFile == "" {
		log.Debugf("Starting insecure HTTP server on %s", h.Addr())
		err = h.server.Serve(h.listener)
	} else {
		log.Debugf("Starting secure HTTPS server on %s", h.Addr())
		err = h.server.ServeTLS(h.listener, h.CertFile, h.KeyFile)
	}
	if err == http.ErrServerClosed {
		return nil
	}
	return trace.Wrap(err)
}

// Shutdown stops the server gracefully.
func (h *HTTP) Shutdown(ctx context.Context) error {
	return h.server.Shutdown(ctx)
}

// ShutdownWithTimeout stops the server gracefully.
func (h *HTTP) ShutdownWithTimeout(ctx context.Context, duration time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, duration)
	defer cancel()

	return h.Shutdown(ctx)
}

// Close terminates the server immediately.
func (h *HTTP) Close() error {
	return h.server.Close()
}

// BaseURL returns an url on which the server is accessible externally.
func (h *HTTP) BaseURL() *url.URL {
	url := *h.baseURL
	return &url
}

// NewURL builds an external url for a specific path and query parameters.
func (h *HTTP) NewURL(subpath string, values url.Values) *url.URL {
	url := h.BaseURL()
	url.Path = path.Join(url.Path, subpath)

	if values != nil {
		url.RawQuery = values.Encode()
	}

	return url
}
