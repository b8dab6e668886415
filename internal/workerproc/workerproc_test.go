package workerproc

import (
	"context"
	"errors"
	"testing"

	"conformity-backend/internal/analyses"
	"conformity-backend/internal/queue"
)

type recordingProcessor struct {
	jobIDs []string
	err    error
}

func (p *recordingProcessor) ProcessJob(ctx context.Context, jobID string) error {
	p.jobIDs = append(p.jobIDs, jobID)
	return p.err
}

func encode(t *testing.T, msg queue.Message) string {
	t.Helper()
	body, err := queue.EncodeMessage(msg)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	return string(body)
}

func TestParseMessage(t *testing.T) {
	cases := []struct {
		name    string
		body    string
		wantErr any
	}{
		{name: "empty", body: "  ", wantErr: &ErrEmptyBody{}},
		{name: "invalid json", body: "{nope", wantErr: &ErrDecode{}},
		{name: "missing job id", body: `{"requestId":"req-1"}`, wantErr: &ErrMissingJobID{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := ParseMessage(tc.body)
			if err == nil {
				t.Fatal("expected error")
			}
			if !errors.As(err, tc.wantErr) {
				t.Fatalf("unexpected error type %T", err)
			}
			if !Unrecoverable(err) {
				t.Fatalf("parse errors should be unrecoverable: %v", err)
			}
		})
	}
}

func TestParseMessageMeta(t *testing.T) {
	body := encode(t, queue.Message{JobID: "job-1", RequestID: "req-1", Version: 1})
	msg, meta, err := ParseMessage(body)
	if err != nil {
		t.Fatalf("ParseMessage: %v", err)
	}
	if msg.JobID != "job-1" || msg.RequestID != "req-1" {
		t.Fatalf("unexpected message: %+v", msg)
	}
	if meta.BodyLen != len(body) || len(meta.BodySHA) != 64 {
		t.Fatalf("unexpected meta: %+v", meta)
	}
}

func TestHandleMessageProcessesJob(t *testing.T) {
	proc := &recordingProcessor{}
	if err := HandleMessage(context.Background(), proc, encode(t, queue.Message{JobID: "job-7"})); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if len(proc.jobIDs) != 1 || proc.jobIDs[0] != "job-7" {
		t.Fatalf("unexpected calls: %v", proc.jobIDs)
	}
}

func TestHandleMessageInfrastructureErrorIsRetryable(t *testing.T) {
	proc := &recordingProcessor{err: errors.New("db down")}
	err := HandleMessage(context.Background(), proc, encode(t, queue.Message{JobID: "job-1", RequestID: "req-1"}))
	var procErr ErrProcess
	if !errors.As(err, &procErr) {
		t.Fatalf("expected ErrProcess, got %T", err)
	}
	if procErr.JobID != "job-1" || procErr.RequestID != "req-1" || procErr.Terminal {
		t.Fatalf("unexpected ErrProcess: %+v", procErr)
	}
	if Unrecoverable(err) {
		t.Fatal("infrastructure failure should be retried")
	}
}

func TestHandleMessageFailedJobIsTerminal(t *testing.T) {
	proc := &recordingProcessor{err: &analyses.FailedError{JobID: "job-1", Class: "timeout", Err: errors.New("deadline")}}
	err := HandleMessage(context.Background(), proc, encode(t, queue.Message{JobID: "job-1"}))
	if !Unrecoverable(err) {
		t.Fatalf("failed job should not be redelivered: %v", err)
	}
}

func TestProcessWithoutProcessor(t *testing.T) {
	if err := Process(context.Background(), nil, queue.Message{JobID: "job-1"}); err == nil {
		t.Fatal("expected error without processor")
	}
}
