package events

import (
	"context"
	"time"

	"DMChat/tools/errs"

	"github.com/Shopify/sarama"
)

// KafkaPublisher sends every event to one topic, keyed so that a user's events keep their order.
type KafkaPublisher struct {
	producer sarama.SyncProducer
	topic    string
}

func kafkaConfig() *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_1_0_0
	cfg.Producer.Return.Successes = true
	cfg.Producer.Return.Errors = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 3
	cfg.Producer.Partitioner = sarama.NewHashPartitioner // Key 控制分区
	cfg.Net.DialTimeout = 10 * time.Second
	cfg.Net.WriteTimeout = 30 * time.Second
	return cfg
}

func NewKafkaPublisher(brokers []string, topic string) (*KafkaPublisher, error) {
	p, err := sarama.NewSyncProducer(brokers, kafkaConfig())
	if err != nil {
		return nil, errs.WrapMsg(err, "kafka producer init failed", "brokers", brokers)
	}
	return &KafkaPublisher{producer: p, topic: topic}, nil
}

func (p *KafkaPublisher) message(e Event) (*sarama.ProducerMessage, error) {
	data, err := e.Encode()
	if err != nil {
		return nil, err
	}
	msg := &sarama.ProducerMessage{
		Topic:     p.topic,
		Value:     sarama.ByteEncoder(data),
		Timestamp: e.OccurredAt,
		Headers: []sarama.RecordHeader{
			{Key: []byte("type"), Value: []byte(e.Type)},
			{Key: []byte("id"), Value: []byte(e.ID)},
		},
	}
	if e.Key != "" {
		msg.Key = sarama.StringEncoder(e.Key)
	}
	return msg, nil
}

func (p *KafkaPublisher) Publish(_ context.Context, e Event) error {
	msg, err := p.message(e)
	if err != nil {
		return err
	}
	if _, _, err := p.producer.SendMessage(msg); err != nil {
		return errs.WrapMsg(err, "kafka send failed", "topic", p.topic, "type", e.Type)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.producer.Close()
}
