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

// Package chromatest provides an ephemeral Chroma server container for
// integration testing.
//
// The image is either a pre-built image named by [Config.PrebuiltImage], or is
// built from a local build context. The server can be started with any of the
// supported [AuthType] modes.
package chromatest

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/abcxyz/chromatest/logging"
)

// ChromaPort is the port the server listens on inside the container.
const ChromaPort = "8000/tcp"

// ConnInfo specifies how to connect to the started server.
type ConnInfo struct {
	// URL is the base URL of the server, in the form http://<host>:<port>.
	URL string

	Host string

	// Port is the host port mapped to [ChromaPort].
	Port string

	// AuthType is the mode the server was started with.
	AuthType AuthType

	// Container is the running container. The caller owns it and must call
	// Close when done.
	Container *Container
}

// AuthHeaders returns the headers a client must send to this server.
func (c *ConnInfo) AuthHeaders() map[string]string {
	return AuthHeaders(c.AuthType)
}

// Close stops and removes the container. It is safe to call on a nil
// ConnInfo.
func (c *ConnInfo) Close() error {
	if c == nil || c.Container == nil {
		return nil
	}
	return c.Container.Close()
}

// Container is a handle to a started container.
type Container struct {
	id    string
	image string
	eng   engine

	once     sync.Once
	closeErr error
}

// ID returns the docker container ID.
func (c *Container) ID() string {
	return c.id
}

// Image returns the image reference the container was created from.
func (c *Container) Image() string {
	return c.image
}

// Close force removes the container along with its volumes. Calling it more
// than once only removes the container the first time.
func (c *Container) Close() error {
	c.once.Do(func() {
		// Cleanup must still run when the caller's context is already gone.
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		if err := c.eng.RemoveContainer(ctx, c.id); err != nil {
			c.closeErr = fmt.Errorf("failed stopping docker container: %w", err)
		}
	})
	return c.closeErr
}

// Start provisions the image described by cfg, starts a Chroma server from it,
// and waits until the server port is listening. A nil cfg is treated as the
// zero [Config] with its documented defaults applied.
//
// Start blocks for at most the startup timeout once the container is running;
// building or pulling the image is only bounded by ctx.
//
// If Start returns an error, any container it created has already been
// removed. Otherwise the caller must Close the returned ConnInfo.
func Start(ctx context.Context, cfg *Config, opts ...Option) (*ConnInfo, error) {
	o := buildOptions(opts...)

	logger := o.logger
	if logger == nil {
		logger = logging.FromContext(ctx)
	}
	logger = logger.With("component", "chromatest")

	if cfg == nil {
		cfg = defaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config invalid: %w", err)
	}
	if o.startupTimeout <= 0 {
		return nil, fmt.Errorf("startup timeout must be positive, got %s", o.startupTimeout)
	}

	// Resolve the environment first so an invalid auth type fails before any
	// docker work happens.
	env, err := Environment(o.authType)
	if err != nil {
		return nil, err
	}

	eng := o.engine
	if eng == nil {
		d, err := newDockerEngine(cfg.DockerEndpoint)
		if err != nil {
			return nil, err
		}
		eng = d
	}

	prov := newProvisioner(cfg)
	logger.DebugContext(ctx, "provisioning image", "provisioner", prov.String())
	image, err := prov.Provision(ctx, eng, logger, o.buildOutput)
	if err != nil {
		return nil, err
	}

	var files []*File
	if prov.SupportsFileInjection() {
		f, err := credentialsFile()
		if err != nil {
			return nil, err
		}
		files = append(files, f)
	}

	id, err := eng.CreateContainer(ctx, &createRequest{
		Image:        image,
		Env:          EnvironmentList(env),
		ExposedPorts: []string{ChromaPort},
	})
	if err != nil {
		return nil, err
	}
	container := &Container{id: id, image: image, eng: eng}

	ci, err := startAndWait(ctx, o, logger, eng, container, files)
	if err != nil {
		if cerr := container.Close(); cerr != nil {
			logger.ErrorContext(ctx, "failed to clean up container", "id", id, "error", cerr)
		}
		return nil, err
	}
	return ci, nil
}

// startAndWait copies files into the created container, starts it, and waits
// for the server port.
func startAndWait(ctx context.Context, o *options, logger *slog.Logger, eng engine, container *Container, files []*File) (*ConnInfo, error) {
	if err := eng.CopyFiles(ctx, container.id, files); err != nil {
		return nil, fmt.Errorf("failed to copy files into container: %w", err)
	}

	if err := eng.StartContainer(ctx, container.id); err != nil {
		return nil, err
	}
	logger.InfoContext(ctx, "started container, waiting for it to listen",
		"id", container.id,
		"image", container.image,
		"auth_type", o.authType.String(),
		"timeout", o.startupTimeout)

	port, err := newWaiter(eng, logger).waitUntilListening(ctx, container.id, ChromaPort, o.startupTimeout)
	if err != nil {
		return nil, err
	}

	host := eng.Host()
	return &ConnInfo{
		URL:       "http://" + net.JoinHostPort(host, port),
		Host:      host,
		Port:      port,
		AuthType:  o.authType,
		Container: container,
	}, nil
}

// MustStart is like [Start], but panics if there was an error.
func MustStart(ctx context.Context, cfg *Config, opts ...Option) *ConnInfo {
	ci, err := Start(ctx, cfg, opts...)
	if err != nil {
		panic(err)
	}
	return ci
}

// defaultConfig returns a Config holding the same defaults [NewConfig] applies
// when no variables are set.
func defaultConfig() *Config {
	return &Config{
		BuildContext: ".",
		Dockerfile:   "Dockerfile",
		ImageName:    "chromadb-test",
	}
}
