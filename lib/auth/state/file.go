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

package state

import (
	"context"
	"path/filepath"

	"github.com/gravitational/trace"
	jsoniter "github.com/json-iterator/go"
	"github.com/peterbourgon/diskv/v3"
)

const (
	// DefaultPath is where the credential lives unless configured otherwise.
	DefaultPath = "data/oc-token.json"

	dirPerm  = 0700
	filePerm = 0600
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// NB: racy, does not use file-locking or similar. Only the setup command
// writes the file and it never runs alongside the bot.
type FileState struct {
	path string
	key  string
	dv   *diskv.Diskv
}

// NewFileState returns a State keeping the credential in a single JSON file.
// The parent directory is created on first write.
func NewFileState(path string) (*FileState, error) {
	if path == "" {
		return nil, trace.BadParameter("missing credentials file path")
	}
	dir, key := filepath.Split(filepath.Clean(path))
	if key == "" || key == "." {
		return nil, trace.BadParameter("credentials path %q does not name a file", path)
	}
	if dir == "" {
		dir = "."
	}

	// Simplest transform function: put the data file into the base dir.
	flatTransform := func(s string) []string { return []string{} }

	dv := diskv.New(diskv.Options{
		BasePath:  dir,
		Transform: flatTransform,
		PathPerm:  dirPerm,
		FilePerm:  filePerm,
	})

	return &FileState{path: path, key: key, dv: dv}, nil
}

// Path returns the credentials file location.
func (f *FileState) Path() string {
	return f.path
}

// Exists reports whether a credentials file is present.
func (f *FileState) Exists() bool {
	return f.dv.Has(f.key)
}

func (f *FileState) GetCredentials(_ context.Context) (*Credentials, error) {
	if !f.dv.Has(f.key) {
		return nil, trace.NotFound("no credentials found at %s", f.path)
	}

	payload, err := f.dv.Read(f.key)
	if err != nil {
		return nil, trace.ConvertSystemError(err)
	}

	var creds Credentials
	if err := json.Unmarshal(payload, &creds); err != nil {
		return nil, trace.Wrap(err, "malformed credentials file %s", f.path)
	}
	if creds.AccessToken == "" {
		return nil, trace.NotFound("state does not contain `access_token`")
	}

	return &creds, nil
}

func (f *FileState) PutCredentials(_ context.Context, creds *Credentials) error {
	if creds == nil || creds.AccessToken == "" {
		return trace.BadParameter("refusing to store empty credentials")
	}

	payload, err := json.MarshalIndent(creds, "", "  ")
	if err != nil {
		return trace.Wrap(err)
	}

	if err := f.dv.Write(f.key, payload); err != nil {
		return trace.ConvertSystemError(err)
	}
	return nil
}

var _ State = &FileState{}
