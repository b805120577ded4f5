// stream-collector - dual-destination streaming sink with failover
// SPDX-License-Identifier: AGPL-3.0-or-later

package sink

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kinesis"
	"github.com/aws/aws-sdk-go-v2/service/kinesis/types"

	"github.com/rob-ellison-jet/stream-collector/internal/logging"
)

// PrimaryClient is the subset of kinesis.Client the sink depends on.
// Shaped to match the real SDK v2 signatures (ctx-first, functional
// options) so a *kinesis.Client satisfies it directly; tests supply a
// fake. Grounded on other_examples' go-kinesis batchproducer.go (PutRecords
// request/response shape) and DataDog-datadog-agent's go.mod, which carries
// aws-sdk-go-v2/service/kinesis as a real dependency.
type PrimaryClient interface {
	PutRecords(ctx context.Context, params *kinesis.PutRecordsInput, optFns ...func(*kinesis.Options)) (*kinesis.PutRecordsOutput, error)
	DescribeStreamSummary(ctx context.Context, params *kinesis.DescribeStreamSummaryInput, optFns ...func(*kinesis.Options)) (*kinesis.DescribeStreamSummaryOutput, error)
}

// primaryDestination wraps the PrimaryClient with the health flag and
// stream name the write, dispatch, and probe logic all share.
type primaryDestination struct {
	client     PrimaryClient
	streamName string
	health     *healthFlag
}

// writeToPrimary submits one PutRecords call and classifies the result
// per-record. A call-level error (network failure, throttling at the API
// level) is
// treated as every record in the batch having failed with that error's
// message; CallOK is false in that case so the dispatch controller does
// not mark the destination healthy.
func writeToPrimary(ctx context.Context, dest *primaryDestination, batch []Event) (failures []Failure, callOK bool) {
	entries := make([]types.PutRecordsRequestEntry, len(batch))
	for i, e := range batch {
		entries[i] = types.PutRecordsRequestEntry{
			Data:         e.Payload,
			PartitionKey: aws.String(e.Key),
		}
	}

	out, err := dest.client.PutRecords(ctx, &kinesis.PutRecordsInput{
		StreamName: aws.String(dest.streamName),
		Records:    entries,
	})
	if err != nil {
		logging.Error().Err(err).Str("stream", dest.streamName).Int("records", len(batch)).Msg("sink: primary PutRecords call failed")
		failures = make([]Failure, len(batch))
		for i, e := range batch {
			failures[i] = Failure{Event: e, Code: "CallFailure", Message: err.Error()}
		}
		return failures, false
	}

	for i, result := range out.Records {
		if result.ErrorCode != nil && *result.ErrorCode != "" {
			failures = append(failures, Failure{
				Event:   batch[i],
				Code:    aws.ToString(result.ErrorCode),
				Message: aws.ToString(result.ErrorMessage),
			})
		}
	}
	return failures, true
}

// probePrimary is the liveness check for the primary stream: a
// describe-stream call whose status must read ACTIVE.
func probePrimary(ctx context.Context, dest *primaryDestination) error {
	out, err := dest.client.DescribeStreamSummary(ctx, &kinesis.DescribeStreamSummaryInput{
		StreamName: aws.String(dest.streamName),
	})
	if err != nil {
		return fmt.Errorf("describe stream %q: %w", dest.streamName, err)
	}
	if out.StreamDescriptionSummary == nil {
		return fmt.Errorf("describe stream %q: empty response", dest.streamName)
	}
	if string(out.StreamDescriptionSummary.StreamStatus) != "ACTIVE" {
		return fmt.Errorf("stream %q status is %s, not ACTIVE", dest.streamName, out.StreamDescriptionSummary.StreamStatus)
	}
	return nil
}
