package e2e

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/vladimirvivien/gexe/exec"
)

// RunCommand returns stdout, and stderr along with the error when the command fails.
func RunCommand(command string, env []string) (string, error) {
	stdout := bytes.NewBufferString("")
	stderr := bytes.NewBufferString("")

	proc := exec.NewProc(command)
	proc.Command().Stdout = stdout
	proc.Command().Stderr = stderr

	if len(env) > 0 {
		proc.Command().Env = append(os.Environ(), env...)
	}

	proc.Start().Wait()

	err := proc.Err()
	if err != nil {
		return stdout.String(), fmt.Errorf("failed to run command (%w): stdout:%s stderr:%s", err, stdout.String(), stderr.String())
	}

	return stdout.String(), nil
}

// BuildAgent compiles the agent into dir and returns the binary path.
func BuildAgent(dir string) (string, error) {
	wd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get working dir: %w", err)
	}

	// move up twice to go back to the root dir
	rootDir := filepath.Dir(filepath.Dir(wd))
	ret := filepath.Join(dir, "deploy-agent")

	_, err = RunCommand(fmt.Sprintf("go build -C %s -o %s ./cmd/deploy-agent", rootDir, ret), nil)
	if err != nil {
		return "", err
	}

	return ret, nil
}

// WriteScript writes an executable shell script named name in dir.
func WriteScript(dir string, name string, lines ...string) (string, error) {
	ret := filepath.Join(dir, name)
	content := "#!/bin/sh\n" + strings.Join(lines, "\n") + "\n"

	err := os.WriteFile(ret, []byte(content), 0o755) //nolint:gosec
	if err != nil {
		return "", fmt.Errorf("failed to write script %s: %w", name, err)
	}

	return ret, nil
}
