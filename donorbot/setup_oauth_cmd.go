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

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/cli/browser"
	"github.com/gravitational/oc-donor-bot/lib/auth/oauth"
	"github.com/gravitational/oc-donor-bot/lib/auth/state"
	"github.com/gravitational/oc-donor-bot/lib/logger"
	"github.com/gravitational/oc-donor-bot/lib/opencollective"
	"github.com/gravitational/trace"
	"github.com/manifoldco/promptui"
	log "github.com/sirupsen/logrus"
)

// Run authorizes the bot with OpenCollective and stores the token
func (c *SetupOAuthCmd) Run(cli *CLI) error {
	if err := setupLogger(logger.Config{}, cli.Debug); err != nil {
		return trace.Wrap(err)
	}
	if err := c.CheckAndSetDefaults(); err != nil {
		return trace.Wrap(err)
	}

	st, err := state.NewFileState(c.OCTokenPath)
	if err != nil {
		return trace.Wrap(err)
	}
	if st.Exists() && !c.Yes {
		if err := confirmOverwrite(st.Path()); err != nil {
			return trace.Wrap(err)
		}
	}

	flow, err := oauth.NewCallbackFlow(oauth.CallbackFlowConfig{
		ClientID:     c.OCClientID,
		RedirectURI:  c.OCRedirectURI,
		AuthorizeURL: opencollective.DefaultAuthorizeURL,
		Scopes:       opencollective.Scopes,
		Timeout:      c.Timeout,
		Exchanger:    opencollective.NewAuthorizer(c.OCClientID, c.OCClientSecret),
		State:        st,
	})
	if err != nil {
		return trace.Wrap(err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := flow.Start(ctx); err != nil {
		return trace.Wrap(err)
	}

	authURL := flow.AuthorizationURL()
	fmt.Printf("\nOpen this URL in your browser to authorize:\n\n  %s\n\n", authURL)
	if !c.NoBrowser {
		browser.Stdout = os.Stderr
		if err := browser.OpenURL(authURL); err != nil {
			log.WithError(err).Debug("Failed to open the browser")
			log.Info("Could not open the browser automatically, please open the URL manually")
		} else {
			log.Info("Browser opened automatically")
		}
	}

	if err := flow.Wait(ctx); err != nil {
		return trace.Wrap(err, "OpenCollective authorization failed")
	}

	log.Infof("Token saved to %s", st.Path())
	fmt.Println("Authorization complete. Start the bot, or send SIGHUP to a running one to pick the new token up.")
	return nil
}

// confirmOverwrite asks the operator before an existing token is replaced.
func confirmOverwrite(path string) error {
	prompt := promptui.Prompt{
		Label:     fmt.Sprintf("A token already exists at %s, replace it", path),
		IsConfirm: true,
	}
	if _, err := prompt.Run(); err != nil {
		if errors.Is(err, promptui.ErrAbort) || errors.Is(err, promptui.ErrInterrupt) {
			return trace.Errorf("aborted, kept the existing token, pass --yes to replace it without asking")
		}
		return trace.Wrap(err, "cannot ask for confirmation, pass --yes to replace the existing token")
	}
	return nil
}
