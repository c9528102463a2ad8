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
	"sync"
)

var _ engine = (*fakeEngine)(nil)

// fakeEngine records calls and serves a fixed host port, so orchestration can
// be tested without docker.
type fakeEngine struct {
	host string

	// hostPort is returned by HostPort. Empty means "not mapped yet".
	hostPort string

	buildErr    error
	ensureErr   error
	createErr   error
	copyErr     error
	startErr    error
	hostPortErr error
	removeErr   error

	mu      sync.Mutex
	calls   []string
	built   []*buildRequest
	ensured []string
	created []*createRequest
	copied  map[string][]*File
	started []string
	removed []string
}

func (f *fakeEngine) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeEngine) Host() string {
	if f.host == "" {
		return "127.0.0.1"
	}
	return f.host
}

func (f *fakeEngine) BuildImage(ctx context.Context, req *buildRequest) error {
	f.record("build")
	f.mu.Lock()
	f.built = append(f.built, req)
	f.mu.Unlock()
	return f.buildErr
}

func (f *fakeEngine) EnsureImage(ctx context.Context, ref string) error {
	f.record("ensure")
	f.mu.Lock()
	f.ensured = append(f.ensured, ref)
	f.mu.Unlock()
	return f.ensureErr
}

func (f *fakeEngine) CreateContainer(ctx context.Context, req *createRequest) (string, error) {
	f.record("create")
	if f.createErr != nil {
		return "", f.createErr
	}
	f.mu.Lock()
	f.created = append(f.created, req)
	f.mu.Unlock()
	return "container-1", nil
}

func (f *fakeEngine) CopyFiles(ctx context.Context, id string, files []*File) error {
	f.record("copy")
	f.mu.Lock()
	if f.copied == nil {
		f.copied = make(map[string][]*File)
	}
	f.copied[id] = append(f.copied[id], files...)
	f.mu.Unlock()
	return f.copyErr
}

func (f *fakeEngine) StartContainer(ctx context.Context, id string) error {
	f.record("start")
	f.mu.Lock()
	f.started = append(f.started, id)
	f.mu.Unlock()
	return f.startErr
}

func (f *fakeEngine) HostPort(ctx context.Context, id, containerPort string) (string, error) {
	if f.hostPortErr != nil {
		return "", f.hostPortErr
	}
	return f.hostPort, nil
}

func (f *fakeEngine) RemoveContainer(ctx context.Context, id string) error {
	f.record("remove")
	f.mu.Lock()
	f.removed = append(f.removed, id)
	f.mu.Unlock()
	return f.removeErr
}

func (f *fakeEngine) callLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}
