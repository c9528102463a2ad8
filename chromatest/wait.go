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
	"net"
	"os"
	"time"

	"github.com/sethvargo/go-retry"
)

var (
	// ErrStartupTimeout is returned when the server port does not start
	// listening before the startup timeout.
	ErrStartupTimeout = errors.New("timed out waiting for container to start listening")

	errContainerExited = errors.New("container exited")
)

const (
	dialTimeout = 2 * time.Second

	// settleTimeout is how long a fresh connection must stay open before the
	// port counts as listening.
	settleTimeout = 100 * time.Millisecond
)

// waiter polls the container until its port accepts connections.
type waiter struct {
	eng     engine
	logger  *slog.Logger
	backoff func() retry.Backoff
	dial    func(ctx context.Context, network, addr string) (net.Conn, error)
}

func newWaiter(eng engine, logger *slog.Logger) *waiter {
	d := &net.Dialer{Timeout: dialTimeout}
	return &waiter{
		eng:    eng,
		logger: logger,
		backoff: func() retry.Backoff {
			return retry.WithCappedDuration(2*time.Second, retry.NewFibonacci(100*time.Millisecond))
		},
		dial: d.DialContext,
	}
}

// waitUntilListening blocks until containerPort of the container is mapped to a
// host port and that host port is listening, or until timeout elapses. It
// returns the mapped host port. A deadline on ctx that comes before timeout
// wins, and the timeout error reports that shorter budget.
func (w *waiter) waitUntilListening(ctx context.Context, id, containerPort string, timeout time.Duration) (string, error) {
	budget := timeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < budget {
			budget = remaining.Round(time.Millisecond)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var hostPort string
	var lastErr error
	if err := retry.Do(ctx, w.backoff(), func(ctx context.Context) error {
		port, err := w.eng.HostPort(ctx, id, containerPort)
		if err != nil {
			if errors.Is(err, errContainerExited) {
				return err
			}
			lastErr = err
			return retry.RetryableError(err)
		}
		if port == "" {
			lastErr = fmt.Errorf("port %s is not mapped yet", containerPort)
			return retry.RetryableError(lastErr)
		}

		addr := net.JoinHostPort(w.eng.Host(), port)
		if err := w.checkConn(ctx, addr); err != nil {
			lastErr = err
			w.logger.DebugContext(ctx, "container isn't ready yet", "addr", addr, "error", err)
			return retry.RetryableError(err)
		}

		hostPort = port
		return nil
	}); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			if lastErr != nil {
				return "", fmt.Errorf("%w after %s, final attempt returned: %w", ErrStartupTimeout, budget, lastErr)
			}
			return "", fmt.Errorf("%w after %s", ErrStartupTimeout, budget)
		}
		return "", fmt.Errorf("failed to confirm container startup: %w", err)
	}

	w.logger.InfoContext(ctx, "container is listening", "port", hostPort)
	return hostPort, nil
}

// checkConn checks that addr accepts a connection that stays open. Docker's
// userland proxy accepts connections on published ports before anything
// listens inside the container, and then closes them right away, so a
// connection that hits EOF immediately does not count.
func (w *waiter) checkConn(ctx context.Context, addr string) error {
	conn, err := w.dial(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to dial %s: %w", addr, err)
	}
	defer conn.Close()

	if err := conn.SetReadDeadline(time.Now().Add(settleTimeout)); err != nil {
		return fmt.Errorf("failed to set read deadline: %w", err)
	}
	var buf [1]byte
	if _, err := conn.Read(buf[:]); err != nil {
		if errors.Is(err, os.ErrDeadlineExceeded) {
			return nil
		}
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("connection to %s was closed by the remote end", addr)
		}
		return fmt.Errorf("failed to read from %s: %w", addr, err)
	}
	return nil
}
