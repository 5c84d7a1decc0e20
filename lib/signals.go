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
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gravitational/oc-donor-bot/lib/logger"
)

// Terminable is an app that can be stopped by a signal.
type Terminable interface {
	// Shutdown attempts to gracefully terminate.
	Shutdown(context.Context) error
	// Close does a fast (force) termination.
	Close()
}

// Reloadable is implemented by apps that can re-read their state on SIGHUP.
type Reloadable interface {
	Reload(context.Context) error
}

// ServeSignals handles SIGTERM, SIGINT and, if the app supports it, SIGHUP.
// It returns once the app has been asked to terminate or ctx is done.
func ServeSignals(ctx context.Context, app Terminable, shutdownTimeout time.Duration) {
	sigC := make(chan os.Signal, 1)
	signal.Notify(sigC,
		syscall.SIGTERM, // graceful shutdown
		syscall.SIGINT,  // graceful-then-fast shutdown
		syscall.SIGHUP,  // reload
	)
	defer signal.Stop(sigC)

	handler := &signalHandler{app: app, shutdownTimeout: shutdownTimeout}
	for {
		select {
		case sig := <-sigC:
			if handler.handle(ctx, sig) {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

type signalHandler struct {
	app             Terminable
	shutdownTimeout time.Duration
	interrupted     bool
}

// handle reacts to a single signal and reports whether serving should stop.
func (h *signalHandler) handle(ctx context.Context, sig os.Signal) bool {
	log := logger.Get(ctx).WithField("signal", sig.String())
	switch sig {
	case syscall.SIGTERM:
		h.shutdown(ctx)
		return true
	case syscall.SIGINT:
		if h.interrupted {
			log.Info("Interrupted twice, forcing shutdown")
			h.app.Close()
			return true
		}
		h.interrupted = true
		go h.shutdown(ctx)
	case syscall.SIGHUP:
		reloadable, ok := h.app.(Reloadable)
		if !ok {
			log.Warn("Reload is not supported, ignoring")
			return false
		}
		if err := reloadable.Reload(ctx); err != nil {
			log.WithError(err).Error("Reload failed")
		} else {
			log.Info("Reloaded successfully")
		}
	}
	return false
}

func (h *signalHandler) shutdown(ctx context.Context) {
	log := logger.Get(ctx)
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), h.shutdownTimeout)
	defer cancel()
	log.Info("Attempting graceful shutdown...")
	if err := h.app.Shutdown(ctx); err != nil {
		log.WithError(err).Info("Graceful shutdown failed. Trying fast shutdown...")
		h.app.Close()
	}
}
