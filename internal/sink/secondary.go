// stream-collector - dual-destination streaming sink with failover
// SPDX-License-Identifier: AGPL-3.0-or-later

package sink

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/google/uuid"

	"github.com/rob-ellison-jet/stream-collector/internal/logging"
)

// SecondaryClient is the subset of sqs.Client the sink depends on,
// grounded on other_examples' gravitational-teleport athena-consumer.go
// (ctx-first, functional-options SQS v2 call shape).
type SecondaryClient interface {
	SendMessageBatch(ctx context.Context, params *sqs.SendMessageBatchInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageBatchOutput, error)
	GetQueueUrl(ctx context.Context, params *sqs.GetQueueUrlInput, optFns ...func(*sqs.Options)) (*sqs.GetQueueUrlOutput, error)
}

// secondaryDestination wraps the SecondaryClient with the health flag and
// the per-batch byte limit SQS enforces (256 KiB by default).
type secondaryDestination struct {
	client   SecondaryClient
	queueURL string
	maxBytes int
	health   *healthFlag
}

// writeToSecondary submits a batch in four steps: split
// into sub-batches of at most 10 entries (SQS's hard SendMessageBatch
// limit) respecting dest.maxBytes, base64-encode each payload, attach the
// original partition key as the "kinesisKey" message attribute so a
// downstream drainer can still shard by it, and submit. A sub-batch whose
// call itself fails is treated as every entry in it having failed.
func writeToSecondary(ctx context.Context, dest *secondaryDestination, batch []Event) (failures []Failure, callOK bool) {
	subBatches := split(batch, 10, dest.maxBytes)
	callOK = true

	for _, sub := range subBatches {
		entries := make([]types.SendMessageBatchRequestEntry, len(sub))
		idToEvent := make(map[string]Event, len(sub))
		for i, e := range sub {
			id := uuid.NewString()
			idToEvent[id] = e
			entries[i] = types.SendMessageBatchRequestEntry{
				Id:          aws.String(id),
				MessageBody: aws.String(base64.StdEncoding.EncodeToString(e.Payload)),
				MessageAttributes: map[string]types.MessageAttributeValue{
					"kinesisKey": {
						DataType:    aws.String("String"),
						StringValue: aws.String(e.Key),
					},
				},
			}
		}

		out, err := dest.client.SendMessageBatch(ctx, &sqs.SendMessageBatchInput{
			QueueUrl: aws.String(dest.queueURL),
			Entries:  entries,
		})
		if err != nil {
			logging.Error().Err(err).Str("queue", dest.queueURL).Int("records", len(sub)).Msg("sink: secondary SendMessageBatch call failed")
			callOK = false
			for _, e := range sub {
				failures = append(failures, Failure{Event: e, Code: "CallFailure", Message: err.Error()})
			}
			continue
		}

		for _, f := range out.Failed {
			e, ok := idToEvent[aws.ToString(f.Id)]
			if !ok {
				continue
			}
			failures = append(failures, Failure{
				Event:   e,
				Code:    aws.ToString(f.Code),
				Message: aws.ToString(f.Message),
			})
		}
	}
	return failures, callOK
}

// probeSecondary is the liveness check for the secondary queue: a
// get-queue-url call for the configured queue's name must succeed and return
// a non-empty URL. The returned URL is not compared with the configured one.
func probeSecondary(ctx context.Context, dest *secondaryDestination) error {
	out, err := dest.client.GetQueueUrl(ctx, &sqs.GetQueueUrlInput{
		QueueName: aws.String(queueNameFromURL(dest.queueURL)),
	})
	if err != nil {
		return fmt.Errorf("get queue url %q: %w", dest.queueURL, err)
	}
	if aws.ToString(out.QueueUrl) == "" {
		return fmt.Errorf("get queue url %q: empty response", dest.queueURL)
	}
	return nil
}

// queueNameFromURL extracts the trailing path segment of an SQS queue URL,
// which is the queue name GetQueueUrl expects.
func queueNameFromURL(queueURL string) string {
	for i := len(queueURL) - 1; i >= 0; i-- {
		if queueURL[i] == '/' {
			return queueURL[i+1:]
		}
	}
	return queueURL
}
