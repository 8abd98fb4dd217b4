package sink

import (
	"context"
	"strconv"

	"github.com/fkfk000/replication-checker/common"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/twmb/franz-go/pkg/kgo"
)

/*
A Producer sends records to Kafka and waits for them. *kgo.Client is one.
*/
type Producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
}

/*
KafkaSink publishes one record per change. The key is the table name, so
that the changes to one table stay in order within a partition. A
transaction is only reported as handled once all of its records have been
acknowledged.
*/
type KafkaSink struct {
	producer Producer
	topic    string
	ctx      context.Context
}

/*
NewKafkaClient connects a franz-go client to the brokers.
*/
func NewKafkaClient(brokers []string, topic string) (*kgo.Client, error) {
	if len(brokers) == 0 {
		return nil, errors.New("kafka brokers are required")
	}
	return kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
	)
}

/*
NewKafkaSink creates a sink. Records go to "topic" unless it is empty, in
which case the producer's default topic is used. "ctx" bounds every send.
*/
func NewKafkaSink(ctx context.Context, p Producer, topic string) *KafkaSink {
	return &KafkaSink{
		producer: p,
		topic:    topic,
		ctx:      ctx,
	}
}

func (k *KafkaSink) HandleTransaction(txn *common.Transaction) error {
	if len(txn.Changes) == 0 {
		return nil
	}

	records := make([]*kgo.Record, 0, len(txn.Changes))
	for i := range txn.Changes {
		c := txn.Changes[i]
		seq := c.GetSequence().String()
		c.Sequence = seq
		buf, err := c.Marshal()
		if err != nil {
			return err
		}
		key := c.Table
		if c.Operation == common.Truncate {
			key = ""
		}
		records = append(records, &kgo.Record{
			Topic: k.topic,
			Key:   []byte(key),
			Value: buf,
			Headers: []kgo.RecordHeader{
				{Key: "sequence", Value: []byte(seq)},
				{Key: "txid", Value: []byte(strconv.FormatUint(uint64(txn.Xid), 10))},
				{Key: "operation", Value: []byte(c.Operation.String())},
			},
		})
	}

	if err := k.producer.ProduceSync(k.ctx, records...).FirstErr(); err != nil {
		return errors.Wrapf(err, "publishing transaction %d", txn.Xid)
	}
	log.Debugf("Published %d changes of transaction %d", len(records), txn.Xid)
	return nil
}
