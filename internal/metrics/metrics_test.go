package metrics

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/gpio-controller/internal/worker"
)

func TestCollectorWorkerTransitions(t *testing.T) {
	c := New()

	c.WorkerTransition(worker.WorkerTransition{Group: "buttons", Worker: "red", From: worker.StateCreated, To: worker.StateRunning})
	c.WorkerTransition(worker.WorkerTransition{Group: "buttons", Worker: "red", From: worker.StateRunning, To: worker.StateFailed, Err: errors.New("boom")})

	assert.Equal(t, 0.0, testutil.ToFloat64(c.workerState.WithLabelValues("buttons", "red", "RUNNING")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.workerState.WithLabelValues("buttons", "red", "FAILED")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.transitions.WithLabelValues("buttons", "red", "RUNNING")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.failures.WithLabelValues("buttons", "red")))
}

func TestCollectorDrainHistogram(t *testing.T) {
	c := New()
	start := time.Now()

	c.GroupTransition(worker.GroupTransition{Group: "blink", To: worker.GroupDraining, Time: start})
	c.GroupTransition(worker.GroupTransition{Group: "blink", To: worker.GroupDone, Time: start.Add(30 * time.Millisecond)})

	assert.Equal(t, 1.0, testutil.ToFloat64(c.groupState.WithLabelValues("blink", "DONE")))
	assert.Equal(t, 0.0, testutil.ToFloat64(c.groupState.WithLabelValues("blink", "DRAINING")))
	assert.Equal(t, 1, testutil.CollectAndCount(c.drain))
}

func TestCollectorAsGroupListener(t *testing.T) {
	c := New()
	g := worker.NewGroup("lcd", worker.Config{}, worker.WithListener(c))
	require.NoError(t, g.AddWorker("lcd", worker.Blocking(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})))

	errc := make(chan error, 1)
	go func() { errc <- g.Run(context.Background()) }()
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(c.workerState.WithLabelValues("lcd", "lcd", "RUNNING")) == 1
	}, time.Second, time.Millisecond)

	g.StopAll(true)
	require.NoError(t, <-errc)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.workerState.WithLabelValues("lcd", "lcd", "STOPPED")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.transitions.WithLabelValues("lcd", "lcd", "STOP_REQUESTED")))
}

func TestHandler(t *testing.T) {
	c := New()
	c.WorkerTransition(worker.WorkerTransition{Group: "blink", Worker: "blue", To: worker.StateRunning})

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `gpio_controller_worker_state{group="blink",state="RUNNING",worker="blue"} 1`), body)
	assert.Contains(t, body, "go_goroutines")
}
