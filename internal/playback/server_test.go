package playback

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServerStatusAndFrames(t *testing.T) {
	units, timestamps := fixedUnits(t, 3, 2)
	s := newTestSession(t, newFakeOpener(units), timestamps)
	srv := httptest.NewServer(NewServer(s, nil).ServeMux())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var status statusAPI
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	assert.Equal(t, s.ID, status.SessionID)
	assert.Equal(t, 6, status.NumFrames)
	assert.Equal(t, 3, status.NumUnits)
	assert.Equal(t, 4, status.CachedFrames, "two eager units cached")
	assert.Equal(t, 3, status.Frontier)

	resp, err = http.Get(srv.URL + "/api/frames/0?points=1")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var frame frameAPI
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&frame))
	assert.Equal(t, 0, frame.Index)
	assert.Equal(t, timestamps[0], frame.Timestamp)
	assert.Greater(t, frame.Points, 0)
	assert.Len(t, frame.Data, frame.Points*frame.Stride)
}

func TestServerFrameErrors(t *testing.T) {
	units, timestamps := fixedUnits(t, 3, 2)
	s := newTestSession(t, newFakeOpener(units), timestamps)
	srv := httptest.NewServer(NewServer(s, nil).ServeMux())
	defer srv.Close()

	for _, tc := range []struct {
		path string
		want int
	}{
		{"/api/frames/4", http.StatusNotFound}, // valid index, not decoded yet
		{"/api/frames/99", http.StatusBadRequest},
		{"/api/frames/-1", http.StatusBadRequest},
		{"/api/frames/abc", http.StatusBadRequest},
		{"/api/timings", http.StatusNotFound}, // telemetry disabled
	} {
		resp, err := http.Get(srv.URL + tc.path)
		require.NoError(t, err, tc.path)
		resp.Body.Close()
		assert.Equal(t, tc.want, resp.StatusCode, tc.path)
	}

	// Reset only accepts POST.
	resp, err := http.Get(srv.URL + "/api/reset")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)

	resp, err = http.Post(srv.URL+"/api/reset", "", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
