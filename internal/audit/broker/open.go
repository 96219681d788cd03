package broker

import (
	"github.com/cockroachdb/errors"
	otellog "go.opentelemetry.io/otel/log"
)

// Settings selects and configures the audit publisher.
type Settings struct {
	// Kind is "kafka", "amqp", or empty for the OpenTelemetry log sink.
	Kind         string
	KafkaBrokers []string
	KafkaTopic   string
	AMQPURL      string
	AMQPExchange string
	// LogProvider backs the empty Kind. Nil discards events.
	LogProvider otellog.LoggerProvider
}

// Open returns the publisher named by s.Kind and its name for logs and metrics.
func Open(s Settings) (Publisher, string, error) {
	switch s.Kind {
	case NameKafka:
		p, err := NewKafkaPublisher(s.KafkaBrokers, s.KafkaTopic)
		if err != nil {
			return nil, "", err
		}
		return p, NameKafka, nil
	case NameAMQP:
		p, err := DialAMQP(s.AMQPURL, s.AMQPExchange)
		if err != nil {
			return nil, "", err
		}
		return p, NameAMQP, nil
	case "":
		if s.LogProvider == nil {
			return Nop{}, NameNop, nil
		}
		return NewLogPublisher(s.LogProvider), NameOTel, nil
	default:
		return nil, "", errors.Newf("unknown audit broker %q", s.Kind)
	}
}
