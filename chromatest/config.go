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
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// DefaultStartupTimeout is how long [Start] waits for the server port to
// start listening.
const DefaultStartupTimeout = 120 * time.Second

// Config describes where the Chroma image comes from. It is usually loaded
// with [NewConfig], but can also be built by hand.
type Config struct {
	// PrebuiltImage is a ready-to-run image reference (ex: chromadb/chroma:0.5.0).
	// When set, no image is built.
	PrebuiltImage string `env:"PREBUILT_CHROMADB_IMAGE"`

	// BuildContext is the directory the image is built from when PrebuiltImage
	// is empty.
	BuildContext string `env:"CHROMADB_BUILD_CONTEXT,default=."`

	// Dockerfile is relative to BuildContext.
	Dockerfile string `env:"CHROMADB_DOCKERFILE,default=Dockerfile"`

	// ImageName is the name given to the built image. The image is kept after
	// the container exits so later runs reuse the layer cache.
	ImageName string `env:"CHROMADB_IMAGE_NAME,default=chromadb-test"`

	// DockerEndpoint overrides the docker daemon address. Empty means
	// DOCKER_HOST or the default local socket.
	DockerEndpoint string `env:"CHROMADB_DOCKER_ENDPOINT"`
}

// NewConfig loads a [Config] from the given lookuper and validates it. Use
// [envconfig.OsLookuper] to read from the process environment, or
// [envconfig.MapLookuper] in tests.
func NewConfig(ctx context.Context, lookuper envconfig.Lookuper) (*Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &cfg, lookuper); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config invalid: %w", err)
	}
	return &cfg, nil
}

// Validate checks that the fields needed by the selected provisioning path are
// present.
func (c *Config) Validate() error {
	if c.PrebuiltImage != "" {
		return nil
	}

	var merr error
	if c.BuildContext == "" {
		merr = errors.Join(merr, fmt.Errorf("BuildContext is required when PrebuiltImage is empty"))
	}
	if c.Dockerfile == "" {
		merr = errors.Join(merr, fmt.Errorf("Dockerfile is required when PrebuiltImage is empty"))
	}
	if c.ImageName == "" {
		merr = errors.Join(merr, fmt.Errorf("ImageName is required when PrebuiltImage is empty"))
	}
	return merr
}

// This file also implements the "functional options" pattern for [Start].

type options struct {
	authType       AuthType
	startupTimeout time.Duration
	logger         *slog.Logger
	buildOutput    io.Writer

	// engine is only overridden in tests.
	engine engine
}

func buildOptions(opts ...Option) *options {
	o := &options{
		authType:       AuthNone,
		startupTimeout: DefaultStartupTimeout,
		buildOutput:    io.Discard,
	}
	for _, opt := range opts {
		o = opt(o)
	}
	return o
}

// Option sets a configuration option for [Start]. Users should not implement
// these functions, they should use one of the With* functions.
type Option func(*options) *options

// WithAuthType selects the authentication mode of the server. The default is
// [AuthNone].
func WithAuthType(a AuthType) Option {
	return func(o *options) *options {
		o.authType = a
		return o
	}
}

// WithStartupTimeout overrides how long to wait for the server port to start
// listening. The default is [DefaultStartupTimeout]. [Start] rejects values
// that are not positive.
func WithStartupTimeout(d time.Duration) Option {
	return func(o *options) *options {
		o.startupTimeout = d
		return o
	}
}

// WithLogger overrides the logger that receives startup progress. The default
// is the logger attached to the context.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) *options {
		o.logger = l
		return o
	}
}

// WithBuildOutput sends the docker build output to w. It is discarded by
// default.
func WithBuildOutput(w io.Writer) Option {
	return func(o *options) *options {
		o.buildOutput = w
		return o
	}
}

func withEngine(e engine) Option {
	return func(o *options) *options {
		o.engine = e
		return o
	}
}
