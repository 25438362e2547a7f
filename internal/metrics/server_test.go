package metrics

import (
	"context"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartDisabled(t *testing.T) {
	s, err := Start(context.Background(), Config{})
	require.NoError(t, err)
	assert.Nil(t, s)
	assert.NoError(t, s.Shutdown(context.Background()))
}

func TestServerExposesCounters(t *testing.T) {
	Enrollments.Inc()

	s, err := Start(context.Background(), Config{Listen: "127.0.0.1:0"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Shutdown(context.Background()) })

	resp, err := http.Get("http://" + s.Addr() + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "interestbot_enrollments_total")
}
