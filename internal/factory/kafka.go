package factory

import (
	"fmt"
	"math/rand"
	"os"
	"strings"

	"github.com/IBM/sarama"

	"github.com/deployd/deploy-agent/internal/config"
)

// CreateKafkaConsumer joins a consumer group of its own: every agent must see
// every refresh request, a group shared by the fleet would hand each message
// to a single host.
func CreateKafkaConsumer(kafkaConfig config.Kafka, hostname string) (sarama.ConsumerGroup, error) {
	group := RefreshGroupID(kafkaConfig.Refresh.Group, hostname)

	conf, err := createSaramaConfig(kafkaConfig.Broker, group)
	if err != nil {
		return nil, err
	}

	// mandatory configuration
	conf.Consumer.Offsets.AutoCommit.Enable = true
	conf.Consumer.Return.Errors = true

	// refresh requests sent while the agent was down are stale
	conf.Consumer.Offsets.Initial = sarama.OffsetNewest

	ret, err := sarama.NewConsumerGroup(brokerURLs(kafkaConfig.Broker), group, conf)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka consumer group: %w", err)
	}

	return ret, nil
}

func CreateKafkaProducer(kafkaConfig config.Kafka) (sarama.SyncProducer, error) {
	conf, err := createSaramaConfig(kafkaConfig.Broker, kafkaConfig.Report.Topic)
	if err != nil {
		return nil, err
	}

	// mandatory for a sync producer
	conf.Producer.Return.Successes = true
	conf.Producer.Return.Errors = true

	conf.Producer.RequiredAcks = sarama.WaitForAll
	conf.Producer.Partitioner = sarama.NewHashPartitioner

	// retries are handled by the publish layer
	conf.Producer.Retry.Max = 0

	ret, err := sarama.NewSyncProducer(brokerURLs(kafkaConfig.Broker), conf)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}

	return ret, nil
}

// RefreshGroupID is the consumer group of the host, prefixed by the configured group.
func RefreshGroupID(group string, hostname string) string {
	if group == "" {
		return hostname
	}

	return fmt.Sprintf("%s-%s", group, hostname)
}

func createSaramaConfig(broker config.KafkaBroker, clientIDSuffix string) (*sarama.Config, error) {
	conf := sarama.NewConfig()

	conf.ClientID = computeClientID(clientIDSuffix)

	version, err := sarama.ParseKafkaVersion(broker.Version)
	if err != nil {
		return nil, fmt.Errorf("failed to parse kafka version: %w", err)
	}

	conf.Version = version

	err = configureSASL(conf, broker.Creds)
	if err != nil {
		return nil, err
	}

	return conf, nil
}

func configureSASL(conf *sarama.Config, creds config.KafkaCreds) error {
	if creds.Username == "" {
		return nil
	}

	conf.Net.SASL.Enable = true
	conf.Net.SASL.Handshake = true
	conf.Net.SASL.User = creds.Username
	conf.Net.SASL.Password = creds.Password

	switch sarama.SASLMechanism(creds.Mechanism) {
	case sarama.SASLTypeSCRAMSHA512:
		conf.Net.SASL.Mechanism = sarama.SASLTypeSCRAMSHA512
		conf.Net.SASL.SCRAMClientGeneratorFunc = func() sarama.SCRAMClient { return &scramClient{HashGeneratorFcn: sha512Generator} }
	case sarama.SASLTypeSCRAMSHA256:
		conf.Net.SASL.Mechanism = sarama.SASLTypeSCRAMSHA256
		conf.Net.SASL.SCRAMClientGeneratorFunc = func() sarama.SCRAMClient { return &scramClient{HashGeneratorFcn: sha256Generator} }
	case sarama.SASLTypePlaintext:
		conf.Net.SASL.Mechanism = sarama.SASLTypePlaintext
	default:
		return fmt.Errorf("unsupported sasl mechanism: %q", creds.Mechanism)
	}

	return nil
}

func brokerURLs(broker config.KafkaBroker) []string {
	return strings.Split(broker.URLs, ",")
}

func computeClientID(suffix string) string {
	prefix, err := os.Hostname()
	if err != nil {
		prefix = fmt.Sprintf("clientid-%v", suffix)
	}

	return fmt.Sprintf("%s-%x", prefix, rand.Int31())
}
