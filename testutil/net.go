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
	"net"
	"sync"
	"testing"
)

// ListeningPort starts a TCP listener on 127.0.0.1 that accepts connections
// and holds them open without writing, like an idle HTTP server. It returns the
// host and port. Everything is closed when the test finishes.
func ListeningPort(tb testing.TB) (string, string) {
	tb.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		tb.Fatalf("net.Listen: %v", err)
	}

	var (
		mu    sync.Mutex
		conns []net.Conn
		wg    sync.WaitGroup
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			mu.Lock()
			conns = append(conns, conn)
			mu.Unlock()
		}
	}()

	tb.Cleanup(func() {
		_ = ln.Close()
		wg.Wait()
		mu.Lock()
		defer mu.Unlock()
		for _, c := range conns {
			_ = c.Close()
		}
	})

	return splitHostPort(tb, ln.Addr().String())
}

// ClosingPort starts a TCP listener on 127.0.0.1 that closes every connection
// as soon as it is accepted, like docker's userland proxy does before the
// container listens. It returns the host and port.
func ClosingPort(tb testing.TB) (string, string) {
	tb.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		tb.Fatalf("net.Listen: %v", err)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			_ = conn.Close()
		}
	}()

	tb.Cleanup(func() {
		_ = ln.Close()
		wg.Wait()
	})

	return splitHostPort(tb, ln.Addr().String())
}

// UnusedPort returns a port on 127.0.0.1 that nothing listens on.
func UnusedPort(tb testing.TB) (string, string) {
	tb.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		tb.Fatalf("net.Listen: %v", err)
	}
	addr := ln.Addr().String()
	if err := ln.Close(); err != nil {
		tb.Fatalf("failed to close listener: %v", err)
	}
	return splitHostPort(tb, addr)
}

func splitHostPort(tb testing.TB, addr string) (string, string) {
	tb.Helper()

	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		tb.Fatalf("net.SplitHostPort(%q): %v", addr, err)
	}
	return host, port
}
