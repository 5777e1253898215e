package refresh

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/prometheus/client_golang/prometheus"
	promdto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deployd/deploy-agent/internal/hostinfo"
	"github.com/deployd/deploy-agent/internal/publish"
	"github.com/deployd/deploy-agent/pkg/facter"
)

type resolverFunc func(ctx context.Context, info *hostinfo.HostInfo) (bool, error)

func (f resolverFunc) Resolve(ctx context.Context, info *hostinfo.HostInfo) (bool, error) {
	return f(ctx, info)
}

func resolveAs(hostname string) Resolver {
	return resolverFunc(func(_ context.Context, info *hostinfo.HostInfo) (bool, error) {
		info.Hostname = hostname
		info.IP = "10.0.0.1"

		return true, nil
	})
}

// sarama fakes

type fakeSession struct {
	ctx    context.Context
	marked []int64
}

func (s *fakeSession) Claims() map[string][]int32 { return nil }
func (s *fakeSession) MemberID() string { return "member" }
func (s *fakeSession) GenerationID() int32 { return 1 }
func (s *fakeSession) MarkOffset(string, int32, int64, string) {}
func (s *fakeSession) Commit() {}
func (s *fakeSession) ResetOffset(string, int32, int64, string) {}
func (s *fakeSession) Context() context.Context { return s.ctx }
func (s *fakeSession) MarkMessage(msg *sarama.ConsumerMessage, metadata string) { s.marked = append(s.marked, msg.Offset) }

type fakeClaim struct {
	messages chan *sarama.ConsumerMessage
}

func (c fakeClaim) Topic() string { return "refresh" }
func (c fakeClaim) Partition() int32 { return 0 }
func (c fakeClaim) InitialOffset() int64 { return 0 }
func (c fakeClaim) HighWaterMarkOffset() int64 { return 0 }
func (c fakeClaim) Messages() <-chan *sarama.ConsumerMessage { return c.messages }

func newClaim(payloads ...string) fakeClaim {
	ret := fakeClaim{messages: make(chan *sarama.ConsumerMessage, len(payloads))}

	for i, payload := range payloads {
		ret.messages <- &sarama.ConsumerMessage{Topic: "refresh", Offset: int64(i), Value: []byte(payload)}
	}

	close(ret.messages)

	return ret
}

func counterValue(t *testing.T, registry *prometheus.Registry, result string) float64 {
	families, err := registry.Gather()
	require.NoError(t, err)

	for _, family := range families {
		if family.GetName() != "test_refresh_request_total" {
			continue
		}

		for _, metric := range family.GetMetric() {
			if labelValue(metric, "result") == result {
				return metric.GetCounter().GetValue()
			}
		}
	}

	return 0
}

func labelValue(metric *promdto.Metric, name string) string {
	for _, label := range metric.GetLabel() {
		if label.GetName() == name {
			return label.GetValue()
		}
	}

	return ""
}

// Tests

func TestRequestTargets(t *testing.T) {
	t.Parallel()

	assert.True(t, Request{}.Targets("web-1"))
	assert.True(t, Request{Hosts: []string{"web-0", "web-1"}}.Targets("web-1"))
	assert.False(t, Request{Hosts: []string{"web-0"}}.Targets("web-1"))
}

func TestHandle(t *testing.T) {
	t.Parallel()

	errBoom := errors.New("boom")

	testCases := []struct {
		name       string
		payload    string
		resolver   Resolver
		publishErr error
		expected   string
		published  bool
	}{
		{
			name:     "invalid json",
			payload:  `{"reason":`,
			resolver: resolveAs("web-1"),
			expected: resultInvalid,
		},
		{
			name:     "other host",
			payload:  `{"reason":"deploy","hosts":["web-2"]}`,
			resolver: resolveAs("web-1"),
			expected: resultSkipped,
		},
		{
			name:      "broadcast",
			payload:   `{"reason":"deploy"}`,
			resolver:  resolveAs("web-1"),
			expected:  resultPublished,
			published: true,
		},
		{
			name:      "targeted",
			payload:   `{"reason":"deploy","hosts":["web-1"]}`,
			resolver:  resolveAs("web-1"),
			expected:  resultPublished,
			published: true,
		},
		{
			name:    "resolution failure",
			payload: `{"reason":"deploy"}`,
			resolver: resolverFunc(func(context.Context, *hostinfo.HostInfo) (bool, error) {
				return false, facter.ErrProviderUnavailable
			}),
			expected: resultFailed,
		},
		{
			name:    "unresolved",
			payload: `{"reason":"deploy"}`,
			resolver: resolverFunc(func(context.Context, *hostinfo.HostInfo) (bool, error) {
				return false, nil
			}),
			expected: resultUnresolved,
		},
		{
			name:       "publish failure",
			payload:    `{"reason":"deploy"}`,
			resolver:   resolveAs("web-1"),
			publishErr: errBoom,
			expected:   resultFailed,
			published:  true,
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			published := false
			publisher := publish.Func(func(_ context.Context, info hostinfo.HostInfo) error {
				published = true

				assert.Equal(t, "web-1", info.Hostname)

				return testCase.publishErr
			})

			handler, err := NewHandler("web-1", testCase.resolver, publisher, prometheus.NewRegistry(), "test")
			require.NoError(t, err)

			assert.Equal(t, testCase.expected, handler.handle(context.Background(), []byte(testCase.payload)))
			assert.Equal(t, testCase.published, published)
		})
	}
}

func TestConsumeClaimMarksEveryMessage(t *testing.T) {
	t.Parallel()

	registry := prometheus.NewRegistry()
	publisher := publish.Func(func(context.Context, hostinfo.HostInfo) error {
		return errors.New("sink down")
	})

	handler, err := NewHandler("web-1", resolveAs("web-1"), publisher, registry, "test")
	require.NoError(t, err)

	session := &fakeSession{ctx: context.Background()}
	claim := newClaim(`not json`, `{"reason":"deploy"}`, `{"hosts":["web-9"]}`)

	err = handler.ConsumeClaim(session, claim)
	require.NoError(t, err)

	assert.Equal(t, []int64{0, 1, 2}, session.marked)
	assert.InDelta(t, 1, counterValue(t, registry, resultInvalid), 0.01)
	assert.InDelta(t, 1, counterValue(t, registry, resultFailed), 0.01)
	assert.InDelta(t, 1, counterValue(t, registry, resultSkipped), 0.01)
}

func TestConsumeClaimStopsOnCancel(t *testing.T) {
	t.Parallel()

	handler, err := NewHandler("web-1", resolveAs("web-1"), publish.Func(func(context.Context, hostinfo.HostInfo) error { return nil }), prometheus.NewRegistry(), "test")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	session := &fakeSession{ctx: ctx}

	err = handler.ConsumeClaim(session, newClaim(`{"reason":"deploy"}`))
	require.NoError(t, err)

	assert.Empty(t, session.marked)
}

func TestHandleIsSerialized(t *testing.T) {
	t.Parallel()

	var inFlight, maxInFlight atomic.Int32

	resolver := resolverFunc(func(_ context.Context, info *hostinfo.HostInfo) (bool, error) {
		current := inFlight.Add(1)
		defer inFlight.Add(-1)

		for {
			seen := maxInFlight.Load()
			if current <= seen || maxInFlight.CompareAndSwap(seen, current) {
				break
			}
		}

		time.Sleep(5 * time.Millisecond)

		info.Hostname = "web-1"
		info.IP = "10.0.0.1"

		return true, nil
	})

	handler, err := NewHandler("web-1", resolver, publish.Func(func(context.Context, hostinfo.HostInfo) error { return nil }), prometheus.NewRegistry(), "test")
	require.NoError(t, err)

	// one goroutine per claimed partition
	var wg sync.WaitGroup

	for range 4 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			assert.Equal(t, resultPublished, handler.handle(context.Background(), []byte(`{"reason":"deploy"}`)))
		}()
	}

	wg.Wait()

	assert.Equal(t, int32(1), maxInFlight.Load())
}
