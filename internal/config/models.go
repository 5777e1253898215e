package config

import "time"

type Config struct {
	Logs        Logs
	Metrics     Metrics
	Inventory   Inventory
	Environment Environment
	Security    Security
	IMDS        IMDS
	Publish     Publish
	Valkey      Valkey
	S3          S3
	Kafka       Kafka
}

type Metrics struct {
	Port int
}

type Logs struct {
	Level   int
	Encoder EncoderType
}

type EncoderType string

const (
	EncoderTypeJson    EncoderType = "json"
	EncoderTypeConsole EncoderType = "console"
)

type Inventory struct {
	UseFacter    bool
	FacterBin    string
	RetryFailure RetryFailurePolicy
}

// RetryFailurePolicy decides what happens when the no-cache retry query itself
// fails (as opposed to returning empty values).
type RetryFailurePolicy string

const (
	RetryFailureAbort RetryFailurePolicy = "abort"
	RetryFailureKeep  RetryFailurePolicy = "keep"
)

type Environment struct {
	// Fleet marks hosts running in the managed cloud fleet. Availability zone
	// and tag resolution is only attempted there.
	Fleet bool
	Name  string
}

type Security struct {
	Normandie StatusCheck
	Knox      StatusCheck
}

type StatusCheck struct {
	Enabled bool
	Command []string
	Pattern string
}

type IMDS struct {
	Endpoint string
}

type Publish struct {
	MaxAttempt uint
	Delay      time.Duration
	Valkey     bool
	S3         bool
	Kafka      bool
}

type S3 struct {
	Bucket       string
	KeyPrefix    string
	BaseEndpoint string
	Region       string
	UsePathStyle bool
	Creds        AWSCreds
}

type AWSCreds struct {
	AccessKeyID     string
	SecretAccessKey string
}

func (c AWSCreds) String() string {
	if c.AccessKeyID != "" && c.SecretAccessKey != "" {
		return "creds set"
	}

	return "no creds"
}

type Kafka struct {
	Broker  KafkaBroker
	Report  KafkaTopic
	Refresh KafkaConsumer
}

type KafkaBroker struct {
	URLs    string
	Version string
	Creds   KafkaCreds
}

type KafkaCreds struct {
	Mechanism string
	Username  string
	Password  string
}

func (c KafkaCreds) String() string {
	if c.Username != "" && c.Password != "" {
		return "sasl " + c.Mechanism
	}

	return "no creds"
}

type KafkaTopic struct {
	Topic string
}

type KafkaConsumer struct {
	Topic string
	// Group is a prefix, each host consumes in its own "<group>-<hostname>" group.
	Group string
}

type Valkey struct {
	URL        string
	Expiration time.Duration
	Creds      ValkeyCreds
}

type ValkeyCreds struct {
	Password string
}

func (c ValkeyCreds) String() string {
	if c.Password != "" {
		return "password set"
	}

	return "no password"
}
