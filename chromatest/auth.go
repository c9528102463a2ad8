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
	"encoding/base64"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrUnknownAuthType is returned when an [AuthType] outside of the recognized
// set is requested.
var ErrUnknownAuthType = errors.New("unknown auth type")

// AuthType selects how the Chroma server authenticates clients.
type AuthType string

const (
	// AuthNone starts the server without any authentication provider.
	AuthNone AuthType = ""

	// AuthBasic uses HTTP basic auth backed by the htpasswd file at
	// [CredentialsPath].
	AuthBasic AuthType = "basic"

	// AuthToken uses a static token sent as "Authorization: Bearer <token>".
	AuthToken AuthType = "token"

	// AuthXToken uses a static token sent in the [TokenHeader] header.
	AuthXToken AuthType = "xtoken"
)

const (
	// Token is the shared secret configured for [AuthToken] and [AuthXToken].
	Token = "test-token" //nolint:gosec // Only used against throwaway containers.

	// TokenHeader is the header the server reads the token from in
	// [AuthXToken] mode.
	TokenHeader = "X-Chroma-Token"

	basicAuthProvider = "chromadb.auth.basic_authn.BasicAuthenticationServerProvider"
	tokenAuthProvider = "chromadb.auth.token_authn.TokenAuthenticationServerProvider"
)

// Names of the environment variables understood by the Chroma server.
const (
	EnvAnonymizedTelemetry  = "ANONYMIZED_TELEMETRY"
	EnvAllowReset           = "ALLOW_RESET"
	EnvIsPersistent         = "IS_PERSISTENT"
	EnvAuthnProvider        = "CHROMA_SERVER_AUTHN_PROVIDER"
	EnvAuthnCredentials     = "CHROMA_SERVER_AUTHN_CREDENTIALS"
	EnvAuthnCredentialsFile = "CHROMA_SERVER_AUTHN_CREDENTIALS_FILE"
	EnvAuthTokenHeader      = "CHROMA_AUTH_TOKEN_TRANSPORT_HEADER"
)

// AuthTypes returns every recognized auth type, in a stable order.
func AuthTypes() []AuthType {
	return []AuthType{AuthNone, AuthBasic, AuthToken, AuthXToken}
}

// ParseAuthType converts the given string to an [AuthType]. Both the empty
// string and "none" map to [AuthNone]. Matching is case-insensitive.
func ParseAuthType(s string) (AuthType, error) {
	switch v := strings.ToLower(strings.TrimSpace(s)); v {
	case "", "none":
		return AuthNone, nil
	case string(AuthBasic), string(AuthToken), string(AuthXToken):
		return AuthType(v), nil
	default:
		return AuthNone, fmt.Errorf("%w %q, valid values are %q", ErrUnknownAuthType, s, authTypeNames())
	}
}

// Valid reports whether a is one of the recognized auth types.
func (a AuthType) Valid() bool {
	switch a {
	case AuthNone, AuthBasic, AuthToken, AuthXToken:
		return true
	}
	return false
}

// String implements [fmt.Stringer].
func (a AuthType) String() string {
	if a == AuthNone {
		return "none"
	}
	return string(a)
}

// Environment returns the environment for a Chroma server configured with the
// given auth type. The result always contains the base settings (telemetry
// off, reset allowed, persistence on) plus exactly the variables for the
// requested mode. Unrecognized auth types return an error wrapping
// [ErrUnknownAuthType].
//
// The returned map is newly allocated and owned by the caller.
func Environment(a AuthType) (map[string]string, error) {
	env := map[string]string{
		EnvAnonymizedTelemetry: "False",
		EnvAllowReset:          "True",
		EnvIsPersistent:        "True",
	}

	switch a {
	case AuthNone:
	case AuthBasic:
		env[EnvAuthnProvider] = basicAuthProvider
		env[EnvAuthnCredentialsFile] = CredentialsPath
	case AuthToken:
		env[EnvAuthnCredentials] = Token
		env[EnvAuthnProvider] = tokenAuthProvider
	case AuthXToken:
		env[EnvAuthTokenHeader] = TokenHeader
		env[EnvAuthnCredentials] = Token
		env[EnvAuthnProvider] = tokenAuthProvider
	default:
		return nil, fmt.Errorf("%w %q", ErrUnknownAuthType, string(a))
	}
	return env, nil
}

// EnvironmentList flattens env into sorted KEY=VALUE pairs, which is the form
// docker expects.
func EnvironmentList(env map[string]string) []string {
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}

// AuthHeaders returns the HTTP headers a client needs to send to a server
// started with the given auth type. It returns an empty map for [AuthNone] and
// for unrecognized values.
func AuthHeaders(a AuthType) map[string]string {
	switch a {
	case AuthBasic:
		creds := BasicAuthUsername + ":" + BasicAuthPassword
		return map[string]string{
			"Authorization": "Basic " + base64.StdEncoding.EncodeToString([]byte(creds)),
		}
	case AuthToken:
		return map[string]string{"Authorization": "Bearer " + Token}
	case AuthXToken:
		return map[string]string{TokenHeader: Token}
	default:
		return map[string]string{}
	}
}

func authTypeNames() []string {
	all := AuthTypes()
	names := make([]string, 0, len(all))
	for _, a := range all {
		names = append(names, a.String())
	}
	return names
}
