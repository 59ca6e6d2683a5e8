package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestClientPoll(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/job/poll", r.URL.Path)
		assert.Equal(t, "gateway", r.URL.Query().Get("pi_id"))
		_, _ = w.Write([]byte(`{"job":{"job_id":"j1","type":"bridge_status","params":{"device":"pi9"}}}`))
	}))
	defer srv.Close()

	job, err := NewClient(srv.URL, "gateway").Poll(context.Background())
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, "j1", job.ID)
	assert.Equal(t, "bridge_status", job.Type)
	assert.Equal(t, "pi9", job.Params["device"])
}

func TestClientPollNoJob(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"job":null}`))
	}))
	defer srv.Close()

	job, err := NewClient(srv.URL, "gateway").Poll(context.Background())
	require.NoError(t, err)
	assert.Nil(t, job)
}

func TestClientPollBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "gateway").Poll(context.Background())
	assert.Error(t, err)
}

func TestClientReport(t *testing.T) {
	var got Result
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/job/result", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
	}))
	defer srv.Close()

	err := NewClient(srv.URL, "gateway").Report(context.Background(),
		Result{JobID: "j1", Status: StatusDone, Output: "ok", DurationMS: 12})
	require.NoError(t, err)
	assert.Equal(t, Result{JobID: "j1", Status: StatusDone, Output: "ok", DurationMS: 12}, got)
}

func TestExecute(t *testing.T) {
	r := NewRunner(nil, time.Second, discardLogger())
	r.Register("echo", func(_ context.Context, params map[string]any) (string, error) {
		return params["msg"].(string), nil
	})
	r.Register("boom", func(context.Context, map[string]any) (string, error) {
		return "", errors.New("no fix")
	})

	tests := []struct {
		name       string
		job        Job
		wantStatus string
		wantOutput string
	}{
		{"handler output", Job{ID: "1", Type: "echo", Params: map[string]any{"msg": "hi"}}, StatusDone, "hi"},
		{"handler error", Job{ID: "2", Type: "boom"}, StatusFailed, "Job execution failed: no fix"},
		{"unknown type", Job{ID: "3", Type: "gps_read"}, StatusFailed, "Unknown job type: gps_read"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := r.Execute(context.Background(), tt.job)
			assert.Equal(t, tt.job.ID, res.JobID)
			assert.Equal(t, tt.wantStatus, res.Status)
			assert.Equal(t, tt.wantOutput, res.Output)
			assert.GreaterOrEqual(t, res.DurationMS, int64(0))
		})
	}
}

type fakeAPI struct {
	mu      sync.Mutex
	queue   []*Job
	results []Result
}

func (f *fakeAPI) Poll(context.Context) (*Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.queue) == 0 {
		return nil, nil
	}
	j := f.queue[0]
	f.queue = f.queue[1:]
	return j, nil
}

func (f *fakeAPI) Report(_ context.Context, r Result) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results = append(f.results, r)
	return nil
}

func (f *fakeAPI) reported() []Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Result(nil), f.results...)
}

func TestRunnerPollsAndReports(t *testing.T) {
	api := &fakeAPI{queue: []*Job{{ID: "j1", Type: "bridge_status"}, {ID: "j2", Type: "reboot"}}}
	r := NewRunner(api, 10*time.Millisecond, discardLogger())
	r.Register("bridge_status", func(context.Context, map[string]any) (string, error) {
		return "[]", nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return len(api.reported()) == 2 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done

	results := api.reported()
	assert.Equal(t, StatusDone, results[0].Status)
	assert.Equal(t, StatusFailed, results[1].Status)
	assert.Equal(t, "Unknown job type: reboot", results[1].Output)
}
