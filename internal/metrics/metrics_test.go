package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/derivex/internal/core/domain"
)

func TestObserveOutcome(t *testing.T) {
	before := testutil.ToFloat64(documentsTotal.WithLabelValues("write"))
	beforeOK := testutil.ToFloat64(documentsTotal.WithLabelValues("succeeded"))

	ObserveOutcome(domain.BatchOutcome{
		Succeeded: []string{"a", "b"},
		Errors: []domain.ErrorRecord{
			{DocumentID: "c", Kind: domain.ErrorKindWrite},
			{DocumentID: "d", Kind: domain.ErrorKindWrite},
		},
	})

	assert.Equal(t, before+2, testutil.ToFloat64(documentsTotal.WithLabelValues("write")))
	assert.Equal(t, beforeOK+2, testutil.ToFloat64(documentsTotal.WithLabelValues("succeeded")))
}

func TestObserveTask(t *testing.T) {
	before := testutil.ToFloat64(tasksTotal.WithLabelValues("retrying"))

	ObserveTask(domain.TaskRetrying, 20*time.Millisecond)

	assert.Equal(t, before+1, testutil.ToFloat64(tasksTotal.WithLabelValues("retrying")))
}

func TestHandler_ExposesCollectors(t *testing.T) {
	BatchDispatched()
	SetQueueDepth(3)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "derivex_batches_dispatched_total")
	assert.Contains(t, rec.Body.String(), "derivex_queue_pending_tasks 3")
}
