// Copyright 2024 The Authors (see AUTHORS file)
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package chromatest

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

const (
	// Credentials of the basic auth user.
	BasicAuthUsername = "admin"
	BasicAuthPassword = "admin" //nolint:gosec

	// CredentialsPath is where the htpasswd file is written inside the
	// container.
	CredentialsPath = "/chromadb/test.htpasswd"
)

// File is a file that is copied into the container before it starts.
type File struct {
	Path    string
	Content []byte
	Mode    int64
}

// HTPasswd returns a single htpasswd line for the given user, hashed with
// bcrypt. See https://httpd.apache.org/docs/2.4/misc/password_encryptions.html
// for the format.
// The hash uses [bcrypt.MinCost].
func HTPasswd(username, password string) ([]byte, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		return nil, fmt.Errorf("bcrypt.GenerateFromPassword(): %w", err)
	}

	out := make([]byte, 0, len(username)+1+len(hash))
	out = append(out, username...)
	out = append(out, ':')
	out = append(out, hash...)
	return out, nil
}

// credentialsFile builds the htpasswd file used by [AuthBasic].
func credentialsFile() (*File, error) {
	content, err := HTPasswd(BasicAuthUsername, BasicAuthPassword)
	if err != nil {
		return nil, fmt.Errorf("failed to generate credentials file: %w", err)
	}
	return &File{
		Path:    CredentialsPath,
		Content: content,
		Mode:    0o644,
	}, nil
}
