package report_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deployd/deploy-agent/internal/domain/repo/report"
	"github.com/deployd/deploy-agent/internal/hostinfo"
	"github.com/deployd/deploy-agent/internal/publish"
	"github.com/deployd/deploy-agent/pkg/security"
)

func newProducer(t *testing.T) *mocks.SyncProducer {
	conf := mocks.NewTestConfig()
	conf.Producer.Return.Successes = true

	ret := mocks.NewSyncProducer(t, conf)

	t.Cleanup(func() {
		_ = ret.Close()
	})

	return ret
}

func TestWriteReport(t *testing.T) {
	t.Parallel()

	info := hostinfo.HostInfo{
		Hostname:        "web-1",
		IP:              "10.0.0.1",
		InstanceID:      "i-abc",
		EC2Tags:         map[string]string{"Name": "web-1"},
		NormandieStatus: security.StatusOK,
		KnoxStatus:      security.StatusOK,
	}

	producer := newProducer(t)
	producer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		res := hostinfo.HostInfo{}

		err := json.Unmarshal(val, &res)
		if err != nil {
			return err
		}

		if res.Hostname != info.Hostname || res.InstanceID != info.InstanceID {
			return fmt.Errorf("unexpected payload: %s", val)
		}

		return nil
	})

	err := report.NewKafkaWriter(producer, "hostinfo").Publish(context.Background(), info)
	require.NoError(t, err)
}

func TestWriteReportErrors(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name      string
		sendErr   error
		retryable bool
	}{
		{
			name:      "out of brokers",
			sendErr:   sarama.ErrOutOfBrokers,
			retryable: true,
		},
		{
			name:      "leader not available",
			sendErr:   sarama.ErrLeaderNotAvailable,
			retryable: true,
		},
		{
			name:    "message too large",
			sendErr: sarama.ErrMessageSizeTooLarge,
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			producer := newProducer(t)
			producer.ExpectSendMessageAndFail(testCase.sendErr)

			err := report.NewKafkaWriter(producer, "hostinfo").Publish(context.Background(), hostinfo.HostInfo{Hostname: "web-1"})
			require.Error(t, err)

			assert.ErrorIs(t, err, testCase.sendErr)
			assert.Equal(t, testCase.retryable, errors.Is(err, publish.ErrRetryable))
		})
	}
}

func TestWriteReportMissingHostname(t *testing.T) {
	t.Parallel()

	// no expectation: the producer must not be called
	producer := newProducer(t)

	err := report.NewKafkaWriter(producer, "hostinfo").Publish(context.Background(), hostinfo.HostInfo{IP: "10.0.0.1"})
	require.ErrorIs(t, err, report.ErrMissingHostname)
}
