package poller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"
)

type fakeStatus struct {
	status string
}

func (f fakeStatus) RawJSON() json.RawMessage {
	return json.RawMessage(fmt.Sprintf(`{"status":%q}`, f.status))
}

func (f fakeStatus) JobStatus() string { return f.status }

type transientErr struct{}

func (transientErr) Error() string   { return "upstream unavailable" }
func (transientErr) Transient() bool { return true }

// scripted returns a query that replays results in order and repeats the
// last one once the script runs out.
func scripted(t *testing.T, steps ...interface{}) (func(context.Context) (fakeStatus, error), *int) {
	t.Helper()
	calls := 0
	return func(ctx context.Context) (fakeStatus, error) {
		step := steps[len(steps)-1]
		if calls < len(steps) {
			step = steps[calls]
		}
		calls++
		switch v := step.(type) {
		case string:
			return fakeStatus{status: v}, nil
		case error:
			return fakeStatus{}, v
		default:
			t.Fatalf("unsupported step %T", step)
			return fakeStatus{}, nil
		}
	}, &calls
}

func testJob(query func(context.Context) (fakeStatus, error)) Job[fakeStatus] {
	return Job[fakeStatus]{
		ID:        "job-1",
		Query:     query,
		IsSuccess: func(s fakeStatus) bool { return s.status == "SUCCESS" },
		IsFailure: func(s fakeStatus) bool { return s.status == "FAILURE" },
	}
}

func fastConfig(max int) Config {
	return Config{Interval: time.Millisecond, MaxAttempts: max}
}

func TestPoll_SuccessRecordsEverySnapshot(t *testing.T) {
	query, calls := scripted(t, "PENDING", "GENERATING", "SUCCESS")

	snap, history, err := Poll(context.Background(), testJob(query), fastConfig(10))
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if snap.status != "SUCCESS" {
		t.Errorf("expected terminal snapshot, got %q", snap.status)
	}
	if *calls != 3 {
		t.Errorf("expected 3 queries, got %d", *calls)
	}
	if history.Len() != 3 {
		t.Fatalf("expected 3 records, got %d", history.Len())
	}
	last, _ := history.Last()
	if string(last.Status) != `{"status":"SUCCESS"}` {
		t.Errorf("expected terminal snapshot last, got %s", last.Status)
	}
}

func TestPoll_FailureOnThirdAttempt(t *testing.T) {
	query, _ := scripted(t, "PENDING", "PENDING", "FAILURE")

	_, history, err := Poll(context.Background(), testJob(query), fastConfig(10))
	var failed *JobFailedError
	if !errors.As(err, &failed) {
		t.Fatalf("expected JobFailedError, got %v", err)
	}
	if failed.Attempts != 3 || failed.Status != "FAILURE" {
		t.Errorf("unexpected failure %+v", failed)
	}
	if history.Len() != 3 {
		t.Errorf("expected exactly 3 records, got %d", history.Len())
	}
}

func TestPoll_NeverTerminalIsBounded(t *testing.T) {
	query, calls := scripted(t, "PROCESSING")

	_, history, err := Poll(context.Background(), testJob(query), fastConfig(4))
	var timeout *PollTimeoutError
	if !errors.As(err, &timeout) {
		t.Fatalf("expected PollTimeoutError, got %v", err)
	}
	if timeout.LastStatus != "PROCESSING" {
		t.Errorf("expected last status on error, got %q", timeout.LastStatus)
	}
	if *calls != 4 || history.Len() != 4 {
		t.Errorf("expected 4 queries and records, got %d and %d", *calls, history.Len())
	}
}

func TestPoll_TransientErrorsConsumeAttemptsWithoutRecords(t *testing.T) {
	query, calls := scripted(t, "PENDING", transientErr{}, "SUCCESS")

	_, history, err := Poll(context.Background(), testJob(query), fastConfig(10))
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if *calls != 3 {
		t.Errorf("expected 3 queries, got %d", *calls)
	}
	if history.Len() != 2 {
		t.Errorf("expected 2 records, got %d", history.Len())
	}
}

func TestPoll_PermanentQueryErrorAborts(t *testing.T) {
	boom := errors.New("bad request")
	query, _ := scripted(t, "PENDING", boom)

	_, history, err := Poll(context.Background(), testJob(query), fastConfig(10))
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped query error, got %v", err)
	}
	var qe *QueryError
	if !errors.As(err, &qe) || qe.Attempt != 2 {
		t.Errorf("expected QueryError on attempt 2, got %v", err)
	}
	if history.Len() != 1 {
		t.Errorf("expected history of 1 record, got %d", history.Len())
	}
}

func TestPoll_ContextCancelled(t *testing.T) {
	query, _ := scripted(t, "PENDING")
	ctx, cancel := context.WithCancel(context.Background())

	cfg := Config{
		Interval:    time.Hour,
		MaxAttempts: 5,
		OnAttempt:   func(int, string) { cancel() },
	}

	_, history, err := Poll(ctx, testJob(query), cfg)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if history.Len() != 1 {
		t.Errorf("expected 1 record before cancel, got %d", history.Len())
	}
}

func TestPoll_ZeroMaxAttemptsIsUnbounded(t *testing.T) {
	query, calls := scripted(t, "PENDING")
	ctx, cancel := context.WithCancel(context.Background())

	cfg := Config{
		Interval: time.Nanosecond,
		OnAttempt: func(attempt int, _ string) {
			if attempt == 500 {
				cancel()
			}
		},
	}

	_, history, err := Poll(ctx, testJob(query), cfg)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	var timeout *PollTimeoutError
	if errors.As(err, &timeout) {
		t.Fatalf("unbounded poll should not time out, got %v", err)
	}
	if *calls != 500 || history.Len() != 500 {
		t.Errorf("expected 500 queries and records, got %d and %d", *calls, history.Len())
	}
}

type bodyErr struct {
	body string
}

func (e bodyErr) Error() string   { return "cannot decode reply" }
func (e bodyErr) RawBody() []byte { return []byte(e.body) }

func TestPoll_UndecodableReplyIsRecorded(t *testing.T) {
	query, _ := scripted(t, "PENDING", bodyErr{body: `{"status":"SUCCESS","metadata":7}`})

	_, history, err := Poll(context.Background(), testJob(query), fastConfig(10))
	var qe *QueryError
	if !errors.As(err, &qe) || qe.Attempt != 2 {
		t.Fatalf("expected QueryError on attempt 2, got %v", err)
	}
	if history.Len() != 2 {
		t.Fatalf("expected the undecodable reply in history, got %d records", history.Len())
	}
	last, _ := history.Last()
	if string(last.Status) != `{"status":"SUCCESS","metadata":7}` {
		t.Errorf("expected reply kept verbatim, got %s", last.Status)
	}
}

func TestPoll_NonJSONReplyIsRecordedAsString(t *testing.T) {
	query, _ := scripted(t, bodyErr{body: "<html>bad gateway</html>"})

	_, history, _ := Poll(context.Background(), testJob(query), fastConfig(10))
	last, ok := history.Last()
	if !ok {
		t.Fatal("expected a record")
	}
	if string(last.Status) != `"\u003chtml\u003ebad gateway\u003c/html\u003e"` {
		t.Errorf("unexpected record %s", last.Status)
	}
	if _, err := json.Marshal(history); err != nil {
		t.Errorf("history should stay serializable: %v", err)
	}
}

func TestHistory_MarshalsAsArray(t *testing.T) {
	h := NewHistory()
	data, err := json.Marshal(h)
	if err != nil {
		t.Fatalf("marshal empty: %v", err)
	}
	if string(data) != "[]" {
		t.Errorf("expected empty array, got %s", data)
	}

	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	h.Append(ts, json.RawMessage(`{"status":"PENDING"}`))

	data, err = json.Marshal(h)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `[{"timestamp":"2024-05-01T12:00:00Z","status":{"status":"PENDING"}}]`
	if string(data) != want {
		t.Errorf("expected %s, got %s", want, data)
	}
}
