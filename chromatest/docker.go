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

// This file implements docker integration.

import (
	"archive/tar"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	dockertest "github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"
)

// engine is the subset of container operations needed to run the server.
type engine interface {
	// Host is the address mapped ports are reachable on.
	Host() string

	BuildImage(ctx context.Context, req *buildRequest) error
	EnsureImage(ctx context.Context, ref string) error
	CreateContainer(ctx context.Context, req *createRequest) (string, error)
	CopyFiles(ctx context.Context, id string, files []*File) error
	StartContainer(ctx context.Context, id string) error

	// HostPort returns the host port bound to containerPort, or the empty
	// string if it isn't bound yet.
	HostPort(ctx context.Context, id, containerPort string) (string, error)

	RemoveContainer(ctx context.Context, id string) error
}

type buildRequest struct {
	Name       string
	ContextDir string
	Dockerfile string
	Output     io.Writer
}

type createRequest struct {
	Image        string
	Env          []string
	ExposedPorts []string
}

var _ engine = (*dockerEngine)(nil)

// dockerEngine talks to a docker daemon through dockertest.
type dockerEngine struct {
	pool *dockertest.Pool
	host string
}

// newDockerEngine connects to the daemon at endpoint. An empty endpoint uses
// DOCKER_HOST or the default local socket.
//
// Docker must be installed for this to work.
func newDockerEngine(endpoint string) (*dockerEngine, error) {
	pool, err := dockertest.NewPool(endpoint)
	if err != nil {
		return nil, fmt.Errorf("dockertest.NewPool(): %w%s", err, dockerHint(err, ""))
	}
	if err := pool.Client.Ping(); err != nil {
		return nil, fmt.Errorf("failed to reach docker daemon: %w%s", err, dockerHint(err, ""))
	}
	return &dockerEngine{
		pool: pool,
		host: hostFromEndpoint(pool.Client.Endpoint()),
	}, nil
}

func (d *dockerEngine) Host() string {
	return d.host
}

func (d *dockerEngine) BuildImage(ctx context.Context, req *buildRequest) error {
	if err := d.pool.Client.BuildImage(docker.BuildImageOptions{
		Context:        ctx,
		Name:           req.Name,
		ContextDir:     req.ContextDir,
		Dockerfile:     req.Dockerfile,
		OutputStream:   req.Output,
		RmTmpContainer: true,
	}); err != nil {
		return fmt.Errorf("client.BuildImage(): %w%s", err, dockerHint(err, req.Name))
	}
	return nil
}

func (d *dockerEngine) EnsureImage(ctx context.Context, ref string) error {
	repo, tag := docker.ParseRepositoryTag(ref)
	if tag == "" {
		tag = "latest"
	}

	images, err := d.pool.Client.ListImages(docker.ListImagesOptions{
		Context: ctx,
		Filters: map[string][]string{"reference": {repo + ":" + tag}},
	})
	if err != nil {
		return fmt.Errorf("client.ListImages(): %w%s", err, dockerHint(err, ref))
	}
	if len(images) > 0 {
		return nil
	}
	if err := d.pool.Client.PullImage(docker.PullImageOptions{
		Context:    ctx,
		Repository: repo,
		Tag:        tag,
	}, docker.AuthConfiguration{}); err != nil {
		return fmt.Errorf("client.PullImage(): %w%s", err, dockerHint(err, ref))
	}
	return nil
}

func (d *dockerEngine) CreateContainer(ctx context.Context, req *createRequest) (string, error) {
	exposed := make(map[docker.Port]struct{}, len(req.ExposedPorts))
	for _, p := range req.ExposedPorts {
		exposed[docker.Port(p)] = struct{}{}
	}

	container, err := d.pool.Client.CreateContainer(docker.CreateContainerOptions{
		Context: ctx,
		Config: &docker.Config{
			Image:        req.Image,
			Env:          req.Env,
			ExposedPorts: exposed,
			Labels:       map[string]string{"org.chromatest": "true"},
		},
		HostConfig: &docker.HostConfig{
			PublishAllPorts: true,
			AutoRemove:      true, // remove storage after container exits
			RestartPolicy:   docker.RestartPolicy{Name: "no"},
		},
	})
	if err != nil {
		return "", fmt.Errorf("client.CreateContainer(): %w%s", err, dockerHint(err, req.Image))
	}
	return container.ID, nil
}

func (d *dockerEngine) CopyFiles(ctx context.Context, id string, files []*File) error {
	if len(files) == 0 {
		return nil
	}

	archive, err := tarFiles(files)
	if err != nil {
		return err
	}
	if err := d.pool.Client.UploadToContainer(id, docker.UploadToContainerOptions{
		Context:     ctx,
		InputStream: archive,
		Path:        "/",
	}); err != nil {
		return fmt.Errorf("client.UploadToContainer(): %w", err)
	}
	return nil
}

func (d *dockerEngine) StartContainer(ctx context.Context, id string) error {
	if err := d.pool.Client.StartContainerWithContext(id, nil, ctx); err != nil {
		return fmt.Errorf("client.StartContainer(): %w", err)
	}
	return nil
}

func (d *dockerEngine) HostPort(ctx context.Context, id, containerPort string) (string, error) {
	container, err := d.pool.Client.InspectContainerWithContext(id, ctx)
	if err != nil {
		var noSuch *docker.NoSuchContainer
		if errors.As(err, &noSuch) {
			return "", fmt.Errorf("%w: container was removed, it probably exited during startup", errContainerExited)
		}
		return "", fmt.Errorf("client.InspectContainer(): %w", err)
	}
	if container.State.Status == "exited" || container.State.Status == "dead" {
		return "", fmt.Errorf("%w with code %d", errContainerExited, container.State.ExitCode)
	}
	if container.NetworkSettings == nil {
		return "", nil
	}
	for _, binding := range container.NetworkSettings.Ports[docker.Port(containerPort)] {
		if binding.HostPort != "" {
			return binding.HostPort, nil
		}
	}
	return "", nil
}

func (d *dockerEngine) RemoveContainer(ctx context.Context, id string) error {
	err := d.pool.Client.RemoveContainer(docker.RemoveContainerOptions{
		Context:       ctx,
		ID:            id,
		Force:         true,
		RemoveVolumes: true,
	})
	if err == nil {
		return nil
	}

	// Containers are created with AutoRemove, so docker may already be (or be
	// done) cleaning it up.
	var noSuch *docker.NoSuchContainer
	if errors.As(err, &noSuch) {
		return nil
	}
	var derr *docker.Error
	if errors.As(err, &derr) && derr.Status == http.StatusConflict {
		return nil
	}
	return fmt.Errorf("client.RemoveContainer(): %w", err)
}

// tarFiles packs files into a tar stream rooted at "/".
func tarFiles(files []*File) (io.Reader, error) {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	now := time.Now()
	for _, f := range files {
		mode := f.Mode
		if mode == 0 {
			mode = 0o644
		}
		if err := tw.WriteHeader(&tar.Header{
			Name:    strings.TrimPrefix(f.Path, "/"),
			Mode:    mode,
			Size:    int64(len(f.Content)),
			ModTime: now,
		}); err != nil {
			return nil, fmt.Errorf("failed to write tar header for %s: %w", f.Path, err)
		}
		if _, err := tw.Write(f.Content); err != nil {
			return nil, fmt.Errorf("failed to write tar content for %s: %w", f.Path, err)
		}
	}
	if err := tw.Close(); err != nil {
		return nil, fmt.Errorf("failed to close tar writer: %w", err)
	}
	return &buf, nil
}

// hostFromEndpoint returns the host that published ports are reachable on for
// the given daemon endpoint. Unix sockets and named pipes mean the daemon is
// local.
func hostFromEndpoint(endpoint string) string {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "localhost"
	}
	switch u.Scheme {
	case "tcp", "http", "https":
		if h := u.Hostname(); h != "" {
			return h
		}
	}
	return "localhost"
}

// dockerHint returns extra instructions for common docker setup problems, or
// the empty string.
func dockerHint(err error, image string) string {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "no such file"):
		return `. Please install docker:
		Instructions for Debian: https://docs.docker.com/engine/install/debian/
		Instructions for Mac: https://docs.docker.com/desktop/mac/install/`
	case strings.Contains(msg, "permission denied"):
		return `. To fix this, enable sudo-less docker container creation:
					1. Run "sudo adduser $USER docker" to add your user to the docker group
					2. Reboot the machine to make the group membership effective`
	case image != "" && (strings.Contains(msg, "404") || strings.Contains(msg, "not found")):
		return fmt.Sprintf(". Probably the image %q does not exist", image)
	}
	return ""
}
