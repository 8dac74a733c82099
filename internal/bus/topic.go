// Package bus implements the durable subject-addressed publish/subscribe
// fabric every pipeline service depends on (domain.Bus), backed by a
// Kafka-compatible broker (Redpanda in dev/test) via franz-go.
package bus

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/pkg/kmsg"
)

// dlqSubject derives the dead-letter subject for a given pipeline subject.
func dlqSubject(subject string) string { return "dlq." + subject }

// ensureTopic creates a topic if it doesn't already exist, tolerating the
// "topic already exists" broker response.
func ensureTopic(ctx context.Context, client *kgo.Client, topic string, partitions int32, replicationFactor int16) error {
	if topic == "" {
		return fmt.Errorf("topic name cannot be empty")
	}
	if partitions <= 0 || replicationFactor <= 0 {
		return fmt.Errorf("partitions and replication factor must be positive")
	}

	req := kmsg.NewCreateTopicsRequest()
	req.TimeoutMillis = 30000

	topicReq := kmsg.NewCreateTopicsRequestTopic()
	topicReq.Topic = topic
	topicReq.NumPartitions = partitions
	topicReq.ReplicationFactor = replicationFactor
	req.Topics = append(req.Topics, topicReq)

	resp, err := client.Request(ctx, &req)
	if err != nil {
		return fmt.Errorf("create topic request: %w", err)
	}
	createResp, ok := resp.(*kmsg.CreateTopicsResponse)
	if !ok {
		return fmt.Errorf("unexpected response type: %T", resp)
	}

	for _, t := range createResp.Topics {
		if t.ErrorCode != 0 {
			if t.ErrorCode == 36 { // TOPIC_ALREADY_EXISTS
				slog.Debug("topic already exists", slog.String("topic", t.Topic))
				continue
			}
			msg := ""
			if t.ErrorMessage != nil {
				msg = *t.ErrorMessage
			}
			return fmt.Errorf("create topic %s: %s (code %d)", t.Topic, msg, t.ErrorCode)
		}
		slog.Info("topic ready", slog.String("topic", t.Topic), slog.Int("partitions", int(partitions)))
	}
	return nil
}
