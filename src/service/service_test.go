package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mosaicnetworks/graphshare/src/common"
	"github.com/mosaicnetworks/graphshare/src/graph"
	"github.com/mosaicnetworks/graphshare/src/guest"
	"github.com/mosaicnetworks/graphshare/src/host"
	"github.com/mosaicnetworks/graphshare/src/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeHost struct {
	stats host.Stats
}

func (f *fakeHost) Stats() host.Stats { return f.stats }

type fakeGuest struct {
	stats guest.Stats
	files map[string]*guest.File
	err   error
}

func (f *fakeGuest) Stats() guest.Stats { return f.stats }

func (f *fakeGuest) FetchFile(ctx context.Context, path string) (*guest.File, error) {
	if f.err != nil {
		return nil, f.err
	}
	file, ok := f.files[path]
	if !ok {
		return nil, protocol.ErrFileNotFound
	}
	return file, nil
}

func do(t *testing.T, s *Service, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest("GET", path, nil)
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)
	return w
}

func newTestStore(t *testing.T) *graph.Store {
	store := graph.NewStore(common.NewTestEntry(t, common.TestLogLevel))
	require.NoError(t, store.Update(graph.Entity{
		"id":        "a",
		"label":     "Alpha",
		"objectURL": "blob:local",
	}))
	return store
}

func TestGetStatsHost(t *testing.T) {
	h := &fakeHost{stats: host.Stats{PeerID: "host-1", Hosting: true}}
	s := NewService("", newTestStore(t), h, nil, common.NewTestEntry(t, common.TestLogLevel))

	w := do(t, s, "/stats")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))

	assert.EqualValues(t, 1, body["entities"])
	hostStats, ok := body["host"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "host-1", hostStats["peer_id"])
	assert.Equal(t, true, hostStats["hosting"])
	assert.NotContains(t, body, "guest")
}

func TestGetGraphSanitized(t *testing.T) {
	s := NewService("", newTestStore(t), nil, nil, common.NewTestEntry(t, common.TestLogLevel))

	w := do(t, s, "/graph")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Entities map[string]map[string]interface{} `json:"entities"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))

	require.Contains(t, body.Entities, "a")
	assert.Equal(t, "Alpha", body.Entities["a"]["label"])
	assert.NotContains(t, body.Entities["a"], "objectURL")
}

func TestGetPeers(t *testing.T) {
	g := &fakeGuest{stats: guest.Stats{PeerID: "guest-1", HostID: "host-1", State: "Open"}}
	s := NewService("", nil, nil, g, common.NewTestEntry(t, common.TestLogLevel))

	w := do(t, s, "/peers")
	require.Equal(t, http.StatusOK, w.Code)

	var peers []map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &peers))
	require.Len(t, peers, 1)
	assert.Equal(t, "host-1", peers[0]["remote_id"])
}

func TestGetFile(t *testing.T) {
	g := &fakeGuest{
		files: map[string]*guest.File{
			"img/a.png": {Path: "img/a.png", MIME: "image/png", Data: []byte{0x89, 'P', 'N', 'G'}},
		},
	}
	s := NewService("", nil, nil, g, common.NewTestEntry(t, common.TestLogLevel))

	w := do(t, s, "/files/img/a.png")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	assert.Equal(t, []byte{0x89, 'P', 'N', 'G'}, w.Body.Bytes())

	w = do(t, s, "/files/img/missing.png")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetFileErrors(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{protocol.ErrNotConnected, http.StatusServiceUnavailable},
		{protocol.ErrRequestTimeout, http.StatusGatewayTimeout},
		{fmt.Errorf("%w: channel closed", protocol.ErrNotConnected), http.StatusServiceUnavailable},
		{fmt.Errorf("boom"), http.StatusInternalServerError},
	}

	for _, c := range cases {
		g := &fakeGuest{err: c.err}
		s := NewService("", nil, nil, g, common.NewTestEntry(t, common.TestLogLevel))

		w := do(t, s, "/files/a.png")
		assert.Equal(t, c.status, w.Code, c.err.Error())
	}
}

func TestGetFileOnHost(t *testing.T) {
	s := NewService("", nil, &fakeHost{}, nil, common.NewTestEntry(t, common.TestLogLevel))

	w := do(t, s, "/files/a.png")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetPeersHost(t *testing.T) {
	h := &fakeHost{stats: host.Stats{
		PeerID:  "host-1",
		Hosting: true,
		Peers:   []host.PeerStats{{RemoteID: "guest-1", Open: true, Synced: true}},
	}}
	g := &fakeGuest{}
	s := NewService("", nil, h, g, common.NewTestEntry(t, common.TestLogLevel))

	w := do(t, s, "/peers")
	require.Equal(t, http.StatusOK, w.Code)

	var peers []map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &peers))
	require.Len(t, peers, 1)
	assert.Equal(t, "guest-1", peers[0]["remote_id"])
	assert.Equal(t, true, peers[0]["synced"])
}

func TestGetFileWhileHosting(t *testing.T) {
	h := &fakeHost{stats: host.Stats{PeerID: "host-1", Hosting: true}}
	g := &fakeGuest{err: protocol.ErrNotConnected}
	s := NewService("", nil, h, g, common.NewTestEntry(t, common.TestLogLevel))

	w := do(t, s, "/files/a.png")
	assert.Equal(t, http.StatusNotFound, w.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "not a guest", body["error"])
}
