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
	_ "embed"
	"fmt"
	"os"

	"github.com/gravitational/trace"
)

//go:embed tpl/donorbot.toml
var exampleConfig string

// Run prints the example configuration, or writes it to --out.
func (c *ConfigureCmd) Run() error {
	if c.Out == "" {
		fmt.Print(exampleConfig)
		return nil
	}

	flags := os.O_WRONLY | os.O_CREATE | os.O_EXCL
	if c.Force {
		flags = os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	}
	f, err := os.OpenFile(c.Out, flags, 0600)
	if err != nil {
		return trace.ConvertSystemError(err)
	}
	defer f.Close()

	if _, err := f.WriteString(exampleConfig); err != nil {
		return trace.ConvertSystemError(err)
	}
	fmt.Printf("Example configuration written to %s\n", c.Out)
	return nil
}
