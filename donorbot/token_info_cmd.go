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
	"fmt"
	"io"
	"os"
	"time"

	"github.com/gravitational/oc-donor-bot/lib/auth"
	"github.com/gravitational/oc-donor-bot/lib/auth/state"
	"github.com/gravitational/oc-donor-bot/lib/logger"
	"github.com/gravitational/oc-donor-bot/lib/opencollective"
	"github.com/gravitational/trace"
	"github.com/olekukonko/tablewriter"
)

// Run shows the stored token and optionally checks it against the API
func (c *TokenInfoCmd) Run(cli *CLI) error {
	if err := setupLogger(logger.Config{}, cli.Debug); err != nil {
		return trace.Wrap(err)
	}

	st, err := state.NewFileState(c.OCTokenPath)
	if err != nil {
		return trace.Wrap(err)
	}
	creds, err := st.GetCredentials(context.Background())
	if trace.IsNotFound(err) {
		return trace.NotFound("No OpenCollective OAuth token found at %s. Run setup-oauth first.", st.Path())
	}
	if err != nil {
		return trace.Wrap(err)
	}

	status := "not checked"
	if c.Check {
		status = c.checkToken(context.Background(), creds.AccessToken)
	}

	renderTokenInfo(os.Stdout, st.Path(), *creds, status, time.Now())
	return nil
}

func (c *TokenInfoCmd) checkToken(ctx context.Context, token string) string {
	if c.OCCollectiveSlug == "" {
		return "not checked, oc-collective-slug is not set"
	}
	client, err := opencollective.NewClient(opencollective.ClientConfig{
		APIURL: c.OCAPIURL,
		Slug:   c.OCCollectiveSlug,
		Tokens: auth.NewStaticAccessTokenProvider(token),
	})
	if err != nil {
		return err.Error()
	}
	switch err := client.CheckHealth(ctx); {
	case err == nil:
		return "valid"
	case opencollective.IsAuthError(err):
		return "rejected, run setup-oauth to re-authenticate"
	default:
		return fmt.Sprintf("check failed: %v", err)
	}
}

func renderTokenInfo(w io.Writer, path string, creds state.Credentials, status string, now time.Time) {
	obtained := "unknown"
	if !creds.ObtainedAt.IsZero() {
		obtained = fmt.Sprintf("%s (%s ago)", creds.ObtainedAt.Format(time.RFC3339), now.Sub(creds.ObtainedAt).Round(time.Second))
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Field", "Value"})
	table.SetAutoWrapText(false)
	table.Append([]string{"Path", path})
	table.Append([]string{"Access token", maskToken(creds.AccessToken)})
	table.Append([]string{"Obtained at", obtained})
	table.Append([]string{"Status", status})
	table.Render()
}

// maskToken keeps only the ends of a token.
func maskToken(token string) string {
	if len(token) <= 8 {
		return "********"
	}
	return token[:4] + "..." + token[len(token)-4:]
}
