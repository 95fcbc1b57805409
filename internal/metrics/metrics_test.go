package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordRequest(t *testing.T) {
	before := testutil.ToFloat64(RequestsTotal.WithLabelValues("test", "418"))
	RecordRequest("test", 418, 5*time.Millisecond)
	assert.Equal(t, before+1, testutil.ToFloat64(RequestsTotal.WithLabelValues("test", "418")))
}

func TestRecordStageFailure(t *testing.T) {
	before := testutil.ToFloat64(StageFailuresTotal.WithLabelValues("decode"))
	RecordStageFailure("decode")
	RecordStageFailure("decode")
	assert.Equal(t, before+2, testutil.ToFloat64(StageFailuresTotal.WithLabelValues("decode")))
}

func TestSetCodecsReady(t *testing.T) {
	SetCodecsReady(true)
	assert.Equal(t, 1.0, testutil.ToFloat64(CodecsReady))
	SetCodecsReady(false)
	assert.Equal(t, 0.0, testutil.ToFloat64(CodecsReady))
}
