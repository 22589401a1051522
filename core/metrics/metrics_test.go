package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountersIncrement(t *testing.T) {
	before := testutil.ToFloat64(editTurns.WithLabelValues("4", "continue"))
	EditTurn(4, "continue")
	assert.Equal(t, before+1, testutil.ToFloat64(editTurns.WithLabelValues("4", "continue")))

	failBefore := testutil.ToFloat64(groupActions.WithLabelValues("kick", "error"))
	GroupAction("kick", errors.New("boom"))
	assert.Equal(t, failBefore+1, testutil.ToFloat64(groupActions.WithLabelValues("kick", "error")))

	sentBefore := testutil.ToFloat64(messagesSent.WithLabelValues("true"))
	MessageSent(true)
	assert.Equal(t, sentBefore+1, testutil.ToFloat64(messagesSent.WithLabelValues("true")))
}

func TestHandlerExposesRegistry(t *testing.T) {
	ObserveHandler("issue", "ok", 15*time.Millisecond)

	srv := httptest.NewServer(Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.Contains(string(body), `issuebot_updates_handled_total{handler="issue",outcome="ok"}`))
}
