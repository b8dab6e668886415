package main

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-lambda-go/events"

	"conformity-backend/internal/analyses"
	"conformity-backend/internal/queue"
)

type scriptedProcessor map[string]error

func (p scriptedProcessor) ProcessJob(ctx context.Context, jobID string) error {
	return p[jobID]
}

func record(t *testing.T, id, jobID string) events.SQSMessage {
	t.Helper()
	body, err := queue.EncodeMessage(queue.Message{JobID: jobID})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	return events.SQSMessage{MessageId: id, Body: string(body)}
}

func TestProcessBatchReportsOnlyRetryableFailures(t *testing.T) {
	proc := scriptedProcessor{
		"job-ok":     nil,
		"job-infra":  errors.New("connection reset"),
		"job-failed": &analyses.FailedError{JobID: "job-failed", Class: "auth", Err: errors.New("401")},
	}
	event := events.SQSEvent{Records: []events.SQSMessage{
		record(t, "m-ok", "job-ok"),
		record(t, "m-infra", "job-infra"),
		record(t, "m-failed", "job-failed"),
		{MessageId: "m-bad", Body: "{not json"},
	}}

	resp := processBatch(context.Background(), proc, event)

	if len(resp.BatchItemFailures) != 1 || resp.BatchItemFailures[0].ItemIdentifier != "m-infra" {
		t.Fatalf("unexpected failures: %+v", resp.BatchItemFailures)
	}
}
