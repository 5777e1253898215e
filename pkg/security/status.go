package security

import (
	"context"
	"fmt"
	"regexp"

	"github.com/go-logr/logr"

	"github.com/deployd/deploy-agent/pkg/facter"
)

type Status string

const (
	StatusOK    Status = "OK"
	StatusError Status = "ERROR"
)

// DefaultPattern matches a SPIFFE id, e.g. spiffe://example.org/host/web-1.
var DefaultPattern = regexp.MustCompile(`spiffe://[^\s,"']+`)

// Checker derives the health of a host-local security subsystem from the
// output of its status command. Hosts without the tooling (build agents,
// laptops) are expected: every failure maps to StatusError.
type Checker struct {
	name    string
	command []string
	pattern *regexp.Regexp
	invoker facter.Invoker

	logger *logr.Logger
}

func NewChecker(name string, command []string, pattern *regexp.Regexp, invoker facter.Invoker) Checker {
	if pattern == nil {
		pattern = DefaultPattern
	}

	return Checker{
		name:    name,
		command: command,
		pattern: pattern,
		invoker: invoker,
	}
}

// NewCheckerFromConfig compiles the pattern, an empty one meaning DefaultPattern.
func NewCheckerFromConfig(name string, command []string, pattern string, invoker facter.Invoker) (Checker, error) {
	var re *regexp.Regexp

	if pattern != "" {
		var err error

		re, err = regexp.Compile(pattern)
		if err != nil {
			return Checker{}, fmt.Errorf("failed to compile %s pattern: %w", name, err)
		}
	}

	return NewChecker(name, command, re, invoker), nil
}

func (c Checker) WithLogger(logger logr.Logger) Checker {
	c.logger = &logger

	return c
}

func (c Checker) Name() string {
	return c.name
}

// Check never fails.
func (c Checker) Check(ctx context.Context) Status {
	_, err := c.Token(ctx)
	if err != nil {
		c.logInfo(1, "Security status check failed", "check", c.name, "reason", err.Error())

		return StatusError
	}

	return StatusOK
}

// Token runs the status command and extracts the structured token from its output.
func (c Checker) Token(ctx context.Context) (string, error) {
	if len(c.command) == 0 {
		return "", fmt.Errorf("no command configured")
	}

	out, err := c.invoker.Invoke(ctx, c.command[0], c.command[1:]...)
	if err != nil {
		return "", fmt.Errorf("failed to run status command: %w", err)
	}

	token := c.pattern.Find(out)
	if token == nil {
		return "", fmt.Errorf("unexpected status output: %q", truncate(out, 128))
	}

	c.logInfo(2, "Security status check succeeded", "check", c.name, "token", string(token))

	return string(token), nil
}

func (c Checker) logInfo(level int, msg string, keysAndValues ...any) {
	if c.logger == nil {
		return
	}

	c.logger.V(level).Info(msg, keysAndValues...)
}

func truncate(b []byte, size int) []byte {
	if len(b) <= size {
		return b
	}

	return b[:size]
}
