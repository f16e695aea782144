package metrics

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/RichardoC/relaychat/internal/stream"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountFrames(t *testing.T) {
	m := New()

	var out bytes.Buffer
	sink := m.CountFrames(stream.NewWriter(&out, nil))
	input := `{"message":{"content":"a"}}
{"error":"x"}
{"message":{"content":"b"}}
{"done":true}
`
	sum := stream.Transcode(context.Background(), strings.NewReader(input), sink)
	require.NoError(t, sum.Err)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.FramesTotal.WithLabelValues("delta")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FramesTotal.WithLabelValues("error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FramesTotal.WithLabelValues("done")))
	assert.Contains(t, out.String(), "data: [DONE]\n\n")
}

func TestHandler(t *testing.T) {
	m := New()
	m.ChatTotal.WithLabelValues("ok").Inc()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `relaychat_chat_exchanges_total{outcome="ok"} 1`)
}

func TestNew_IndependentRegistries(t *testing.T) {
	a, b := New(), New()
	a.UploadFiles.WithLabelValues(".pdf").Inc()
	assert.Equal(t, 0.0, testutil.ToFloat64(b.UploadFiles.WithLabelValues(".pdf")))
}
