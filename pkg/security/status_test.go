package security_test

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deployd/deploy-agent/pkg/security"
)

// Helper

type fakeInvoker struct {
	out []byte
	err error

	name string
	args []string
}

func (f *fakeInvoker) Invoke(ctx context.Context, name string, args ...string) ([]byte, error) {
	f.name = name
	f.args = args

	return f.out, f.err
}

// Test

func TestCheck(t *testing.T) {
	type testCase struct {
		name     string
		out      string
		err      error
		expected security.Status
	}

	cases := []testCase{
		{
			name:     "san url in certificate dump",
			out:      "X509v3 Subject Alternative Name:\n    URI:spiffe://example.org/host/web-1, DNS:web-1\n",
			expected: security.StatusOK,
		},
		{
			name:     "bare spiffe id",
			out:      "spiffe://example.org/service/knox\n",
			expected: security.StatusOK,
		},
		{
			name:     "not a parseable SAN URL",
			out:      "not a parseable SAN URL",
			expected: security.StatusError,
		},
		{
			name:     "empty output",
			expected: security.StatusError,
		},
		{
			name:     "command failed",
			out:      "spiffe://example.org/host/web-1",
			err:      errors.New("exit status 1"),
			expected: security.StatusError,
		},
		{
			name:     "command not installed",
			err:      errors.New(`exec: "normandie": executable file not found in $PATH`),
			expected: security.StatusError,
		},
	}

	for i := range cases {
		c := cases[i]

		t.Run(c.name, func(t *testing.T) {
			t.Parallel()

			invoker := &fakeInvoker{out: []byte(c.out), err: c.err}
			checker := security.NewChecker("normandie", []string{"sudo", "normandie", "-app", "host"}, nil, invoker)

			status := checker.Check(context.Background())
			assert.Equal(t, c.expected, status)

			assert.Equal(t, "sudo", invoker.name)
			assert.Equal(t, []string{"normandie", "-app", "host"}, invoker.args)
		})
	}
}

func TestToken(t *testing.T) {
	invoker := &fakeInvoker{out: []byte("URI:spiffe://example.org/host/web-1, DNS:web-1")}
	checker := security.NewChecker("normandie", []string{"normandie"}, nil, invoker)

	token, err := checker.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "spiffe://example.org/host/web-1", token)
}

func TestCustomPattern(t *testing.T) {
	invoker := &fakeInvoker{out: []byte("knox: status=healthy")}

	checker, err := security.NewCheckerFromConfig("knox", []string{"knox", "status"}, `status=healthy`, invoker)
	require.NoError(t, err)
	assert.Equal(t, security.StatusOK, checker.Check(context.Background()))

	_, err = security.NewCheckerFromConfig("knox", []string{"knox"}, `(`, invoker)
	assert.Error(t, err)

	checker = security.NewChecker("knox", nil, regexp.MustCompile(".*"), invoker)
	assert.Equal(t, security.StatusError, checker.Check(context.Background()), "no command configured")
}
