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
	"fmt"
	"io"
	"log/slog"
)

// provisioner resolves the image the container is started from.
type provisioner interface {
	// Provision makes the image available to the engine and returns its
	// reference.
	Provision(ctx context.Context, eng engine, logger *slog.Logger, buildOutput io.Writer) (string, error)

	// SupportsFileInjection reports whether files, such as the htpasswd file,
	// are copied into containers created from this image.
	SupportsFileInjection() bool

	fmt.Stringer
}

// newProvisioner picks the provisioning strategy for cfg. A pre-built image
// always wins over building.
func newProvisioner(cfg *Config) provisioner {
	if cfg.PrebuiltImage != "" {
		return &prebuiltImage{ref: cfg.PrebuiltImage}
	}
	return &dockerfileBuild{
		contextDir: cfg.BuildContext,
		dockerfile: cfg.Dockerfile,
		name:       cfg.ImageName,
	}
}

var _ provisioner = (*prebuiltImage)(nil)

// prebuiltImage uses an existing image, pulling it if it isn't available
// locally.
type prebuiltImage struct {
	ref string
}

func (p *prebuiltImage) Provision(ctx context.Context, eng engine, logger *slog.Logger, _ io.Writer) (string, error) {
	logger.DebugContext(ctx, "using pre-built image", "image", p.ref)
	if err := eng.EnsureImage(ctx, p.ref); err != nil {
		return "", fmt.Errorf("failed to provision pre-built image %q: %w", p.ref, err)
	}
	return p.ref, nil
}

func (p *prebuiltImage) SupportsFileInjection() bool { return false }

func (p *prebuiltImage) String() string { return "prebuilt(" + p.ref + ")" }

var _ provisioner = (*dockerfileBuild)(nil)

// dockerfileBuild builds the image from a local build context. The image is
// left in place afterwards.
type dockerfileBuild struct {
	contextDir string
	dockerfile string
	name       string
}

func (b *dockerfileBuild) Provision(ctx context.Context, eng engine, logger *slog.Logger, buildOutput io.Writer) (string, error) {
	logger.InfoContext(ctx, "building image, this can take a while on a cold cache",
		"context", b.contextDir,
		"dockerfile", b.dockerfile,
		"image", b.name)

	if err := eng.BuildImage(ctx, &buildRequest{
		Name:       b.name,
		ContextDir: b.contextDir,
		Dockerfile: b.dockerfile,
		Output:     buildOutput,
	}); err != nil {
		return "", fmt.Errorf("failed to build image from %q: %w", b.contextDir, err)
	}

	logger.DebugContext(ctx, "finished building image", "image", b.name)
	return b.name, nil
}

func (b *dockerfileBuild) SupportsFileInjection() bool { return true }

func (b *dockerfileBuild) String() string { return "build(" + b.contextDir + ")" }
