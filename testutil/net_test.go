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

package testutil

import (
	"errors"
	"io"
	"net"
	"os"
	"testing"
	"time"
)

func TestListeningPort(t *testing.T) {
	t.Parallel()

	host, port := ListeningPort(t)
	conn, err := net.DialTimeout("tcp", net.JoinHostPort(host, port), time.Second)
	if err != nil {
		t.Fatalf("failed to dial: %v", err)
	}
	defer conn.Close()

	if err := conn.SetReadDeadline(time.Now().Add(50 * time.Millisecond)); err != nil {
		t.Fatal(err)
	}
	_, err = conn.Read(make([]byte, 1))
	if !errors.Is(err, os.ErrDeadlineExceeded) {
		t.Errorf("got read error %v, want a deadline error", err)
	}
}

func TestClosingPort(t *testing.T) {
	t.Parallel()

	host, port := ClosingPort(t)
	conn, err := net.DialTimeout("tcp", net.JoinHostPort(host, port), time.Second)
	if err != nil {
		t.Fatalf("failed to dial: %v", err)
	}
	defer conn.Close()

	if err := conn.SetReadDeadline(time.Now().Add(5 * time.Second)); err != nil {
		t.Fatal(err)
	}
	_, err = conn.Read(make([]byte, 1))
	if err == nil || errors.Is(err, os.ErrDeadlineExceeded) {
		t.Errorf("got read error %v, want the connection to be closed", err)
	}
	if err != nil && !errors.Is(err, io.EOF) {
		t.Logf("connection closed with %v", err)
	}
}

func TestUnusedPort(t *testing.T) {
	t.Parallel()

	host, port := UnusedPort(t)
	if _, err := net.DialTimeout("tcp", net.JoinHostPort(host, port), time.Second); err == nil {
		t.Errorf("expected dial to %s:%s to fail", host, port)
	}
}
