package facter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-logr/logr"
)

const (
	DefaultBin = "facter"

	noCacheFlag = "--no-cache"
)

var (
	ErrProviderUnavailable = errors.New("inventory provider unavailable")
	ErrParse               = errors.New("failed to parse inventory provider output")
	ErrNoFields            = errors.New("no field requested")
)

type Gateway struct {
	bin     string
	invoker Invoker

	logger *logr.Logger
}

func NewGateway(bin string, invoker Invoker) *Gateway {
	if bin == "" {
		bin = DefaultBin
	}

	return &Gateway{
		bin:     bin,
		invoker: invoker,
	}
}

func (g *Gateway) WithLogger(logger logr.Logger) *Gateway {
	g.logger = &logger

	return g
}

// Query runs `facter -jp <fields...> [--no-cache]` and returns the parsed output.
// Requested facts facter doesn't know are missing from the result.
func (g *Gateway) Query(ctx context.Context, fields []string, noCache bool) (Result, error) {
	if len(fields) == 0 {
		return nil, ErrNoFields
	}

	args := make([]string, 0, len(fields)+2)
	args = append(args, "-jp")
	args = append(args, fields...)

	if noCache {
		args = append(args, noCacheFlag)
	}

	g.logInfo(2, "Querying inventory provider", "bin", g.bin, "fields", fields, "noCache", noCache)

	out, err := g.invoker.Invoke(ctx, g.bin, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProviderUnavailable, err)
	}

	ret := Result{}

	err = json.Unmarshal(out, &ret)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrParse, err)
	}

	// "null" unmarshals into a nil map without error
	if ret == nil {
		return nil, fmt.Errorf("%w: not a json object", ErrParse)
	}

	return ret, nil
}

func (g *Gateway) logInfo(level int, msg string, keysAndValues ...any) {
	if g.logger == nil {
		return
	}

	g.logger.V(level).Info(msg, keysAndValues...)
}
