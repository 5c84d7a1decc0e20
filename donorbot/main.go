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
	"fmt"

	"github.com/alecthomas/kong"
	"github.com/gravitational/oc-donor-bot/lib"
	"github.com/gravitational/oc-donor-bot/lib/logger"
	"github.com/gravitational/trace"
	log "github.com/sirupsen/logrus"
)

const (
	appName        = "oc-donor-bot"
	appDescription = "Grants a Discord role to verified OpenCollective donors"
)

var (
	// Version is set at build time
	Version = "0.1.0-dev"
	// Gitref is set at build time
	Gitref = ""
)

var cli CLI

func main() {
	logger.Init()

	ctx := kong.Parse(
		&cli,
		kong.UsageOnError(),
		kong.Configuration(KongTOMLResolver),
		kong.Name(appName),
		kong.Description(appDescription),
		kong.Bind(&cli),
	)

	// See respective commands Run() methods
	if err := ctx.Run(); err != nil {
		if cli.Debug {
			fmt.Printf("%v\n", trace.DebugReport(err))
		}
		lib.Bail(err)
	}
}

// setupLogger applies the logging configuration and the --debug flag.
func setupLogger(conf logger.Config, debug bool) error {
	if err := logger.Setup(conf); err != nil {
		return trace.Wrap(err)
	}
	if debug {
		log.SetLevel(log.DebugLevel)
		log.Debugf("DEBUG logging enabled")
	}
	return nil
}

// Run prints the version
func (c *VersionCmd) Run() error {
	lib.PrintVersion(appName, Version, Gitref)
	return nil
}
