package facter

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/vladimirvivien/gexe/exec"
)

// Invoker runs an external program to completion and returns its stdout.
type Invoker interface {
	Invoke(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ProcessInvoker runs programs as local processes.
type ProcessInvoker struct{}

func (ProcessInvoker) Invoke(ctx context.Context, name string, args ...string) ([]byte, error) {
	err := ctx.Err()
	if err != nil {
		return nil, err
	}

	stdout := bytes.NewBuffer(nil)
	stderr := bytes.NewBuffer(nil)

	proc := exec.NewProc(name)

	// Arguments are set on the underlying command so that values are never
	// re-split on whitespace.
	proc.Command().Args = append([]string{name}, args...)
	proc.Command().Stdout = stdout
	proc.Command().Stderr = stderr

	proc.Start().Wait()

	err = proc.Err()
	if err != nil {
		return stdout.Bytes(), fmt.Errorf("failed to run %s (%w): stderr:%s", name, err, strings.TrimSpace(stderr.String()))
	}

	return stdout.Bytes(), nil
}
