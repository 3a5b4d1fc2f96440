package graphshare

import (
	"context"
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/mosaicnetworks/graphshare/src/common"
	"github.com/mosaicnetworks/graphshare/src/config"
	"github.com/mosaicnetworks/graphshare/src/content"
	"github.com/mosaicnetworks/graphshare/src/crypto/keys"
	"github.com/mosaicnetworks/graphshare/src/graph"
	"github.com/mosaicnetworks/graphshare/src/guest"
	"github.com/mosaicnetworks/graphshare/src/net"
	"github.com/mosaicnetworks/graphshare/src/protocol"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestConfig(t *testing.T) *config.Config {
	conf := config.NewTestConfig(t, common.TestLogLevel)
	conf.SetDataDir(t.TempDir())
	conf.NoService = true

	key, err := keys.GenerateECDSAKey()
	require.NoError(t, err)
	conf.Key = key

	return conf
}

func newTestEngine(t *testing.T, trans net.Transport, fs afero.Fs) *Graphshare {
	g := NewGraphshare(newTestConfig(t))
	g.Transport = trans
	if fs != nil {
		g.Content = content.NewFSRoot(fs)
	}

	require.NoError(t, g.Init())
	t.Cleanup(g.Shutdown)

	return g
}

func startHost(t *testing.T, g *Graphshare) string {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	id, err := g.RunHost(ctx)
	require.NoError(t, err)
	return id
}

func connect(t *testing.T, g *Graphshare, hostID string, consumer guest.Consumer) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, g.Guest.ConnectToHost(ctx, hostID, consumer))
}

func TestInitDefaults(t *testing.T) {
	conf := newTestConfig(t)
	conf.Key = nil

	g := NewGraphshare(conf)
	require.NoError(t, g.Init())
	defer g.Shutdown()

	assert.NotNil(t, conf.Key)
	assert.Equal(t, keys.PeerID(conf.Key), conf.PeerID)
	assert.IsType(t, &net.InmemTransport{}, g.Transport)
	assert.NotNil(t, g.Store)
	assert.NotNil(t, g.Content)
	assert.Nil(t, g.Service)

	// the key was persisted and is reused
	again := newTestConfig(t)
	again.Key = nil
	again.SetDataDir(conf.DataDir)

	g2 := NewGraphshare(again)
	require.NoError(t, g2.Init())
	defer g2.Shutdown()

	assert.Equal(t, conf.PeerID, again.PeerID)
}

func TestInitUnknownContentStore(t *testing.T) {
	conf := newTestConfig(t)
	conf.ContentDir = t.TempDir()
	conf.ContentStore = "s3"

	g := NewGraphshare(conf)
	assert.Error(t, g.Init())
}

// The snapshot callback receives exactly the host's graph, and the next
// message is the broadcast update.
func TestSnapshotThenUpdate(t *testing.T) {
	trans := net.NewInmemTransport()

	h := newTestEngine(t, trans, nil)
	require.NoError(t, h.Store.Update(graph.Entity{"id": "a", "title": "A"}))
	hostID := startHost(t, h)

	messages := make(chan interface{}, 10)
	consumer := guest.ConsumerFuncs{
		OnSnapshot: func(s protocol.GraphSnapshot) { messages <- s },
		OnUpdate:   func(e graph.Entity) { messages <- e },
		OnDelete:   func(id string) { messages <- id },
		OnBatchUpdate: func(p map[string]graph.Entity) {
			messages <- p
		},
	}

	g := newTestEngine(t, trans, nil)
	connect(t, g, hostID, consumer)

	select {
	case m := <-messages:
		assert.Equal(t, protocol.GraphSnapshot{
			Version: 1,
			Entities: map[string]graph.Entity{
				"a": {"id": "a", "title": "A"},
			},
			SharedMode: true,
		}, m)
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for snapshot")
	}

	require.NoError(t, h.Store.Update(graph.Entity{"id": "a", "title": "A2"}))

	select {
	case m := <-messages:
		assert.Equal(t, graph.Entity{"id": "a", "title": "A2"}, m)
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for update")
	}
}

func TestMutationOrderAcrossGuests(t *testing.T) {
	trans := net.NewInmemTransport()

	h := newTestEngine(t, trans, nil)
	hostID := startHost(t, h)

	const guests = 3
	const updates = 20

	var wg sync.WaitGroup
	received := make([][]string, guests)
	var mu sync.Mutex

	for i := 0; i < guests; i++ {
		i := i
		synced := make(chan struct{})
		wg.Add(1)

		consumer := guest.ConsumerFuncs{
			OnSnapshot: func(protocol.GraphSnapshot) { close(synced) },
			OnUpdate: func(e graph.Entity) {
				mu.Lock()
				received[i] = append(received[i], e["title"].(string))
				n := len(received[i])
				mu.Unlock()
				if n == updates {
					wg.Done()
				}
			},
		}

		g := newTestEngine(t, trans, nil)
		connect(t, g, hostID, consumer)

		select {
		case <-synced:
		case <-time.After(5 * time.Second):
			t.Fatal("timeout waiting for snapshot")
		}
	}

	var sent []string
	for i := 0; i < updates; i++ {
		title := string(rune('a' + i))
		sent = append(sent, title)
		require.NoError(t, h.Store.Update(graph.Entity{"id": "x", "title": title}))
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for updates")
	}

	mu.Lock()
	defer mu.Unlock()
	for i := 0; i < guests; i++ {
		assert.Equal(t, sent, received[i], "guest %d", i)
	}
}

func TestFetchFileEndToEnd(t *testing.T) {
	cases := []struct {
		name  string
		files map[string]string
		path  string
		want  string
	}{
		{"root", map[string]string{"logo.svg": "<svg/>"}, "logo.svg", "<svg/>"},
		{"exact", map[string]string{"images/x.png": "png"}, "images/x.png", "png"},
		{"webp", map[string]string{"images/x.webp": "webp"}, "images/x.png", "webp"},
		{"fuzzy", map[string]string{"images/x-alt.webp": "alt"}, "images/x.png", "alt"},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			trans := net.NewInmemTransport()

			fs := afero.NewMemMapFs()
			for p, data := range c.files {
				require.NoError(t, afero.WriteFile(fs, p, []byte(data), 0644))
			}

			h := newTestEngine(t, trans, fs)
			hostID := startHost(t, h)

			g := newTestEngine(t, trans, nil)
			require.NoError(t, g.RunGuest(context.Background(), hostID))

			f, err := g.Guest.FetchFile(context.Background(), c.path)
			require.NoError(t, err)
			assert.Equal(t, c.want, string(f.Data))
		})
	}

	t.Run("missing", func(t *testing.T) {
		trans := net.NewInmemTransport()

		h := newTestEngine(t, trans, afero.NewMemMapFs())
		hostID := startHost(t, h)

		g := newTestEngine(t, trans, nil)
		require.NoError(t, g.RunGuest(context.Background(), hostID))

		_, err := g.Guest.FetchFile(context.Background(), "images/x.png")
		assert.ErrorIs(t, err, protocol.ErrFileNotFound)
	})
}

func TestBadgerContent(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, ioutil.WriteFile(filepath.Join(dir, "logo.svg"), []byte("<svg/>"), 0644))

	trans := net.NewInmemTransport()

	conf := newTestConfig(t)
	conf.ContentDir = dir
	conf.ContentStore = config.ContentStoreBadger

	h := NewGraphshare(conf)
	h.Transport = trans
	require.NoError(t, h.Init())
	t.Cleanup(h.Shutdown)

	hostID := startHost(t, h)

	g := newTestEngine(t, trans, nil)
	require.NoError(t, g.RunGuest(context.Background(), hostID))

	f, err := g.Guest.FetchFile(context.Background(), "logo.svg")
	require.NoError(t, err)
	assert.Equal(t, "<svg/>", string(f.Data))
}

// Edits of the graph file reach the mirror of a guest.
func TestGraphFileWatch(t *testing.T) {
	graphFile := filepath.Join(t.TempDir(), "graph.json")
	require.NoError(t, ioutil.WriteFile(graphFile,
		[]byte(`{"entities": {"a": {"title": "A"}}}`), 0644))

	trans := net.NewInmemTransport()

	conf := newTestConfig(t)
	conf.GraphFile = graphFile

	h := NewGraphshare(conf)
	h.Transport = trans
	require.NoError(t, h.Init())
	t.Cleanup(h.Shutdown)

	hostID := startHost(t, h)

	g := newTestEngine(t, trans, nil)
	require.NoError(t, g.RunGuest(context.Background(), hostID))

	require.Eventually(t, func() bool {
		e, ok := g.Store.Get("a")
		return ok && e["title"] == "A"
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, ioutil.WriteFile(graphFile,
		[]byte(`{"entities": {"a": {"title": "A2"}, "b": {"title": "B"}}}`), 0644))

	require.Eventually(t, func() bool {
		a, okA := g.Store.Get("a")
		b, okB := g.Store.Get("b")
		return okA && okB && a["title"] == "A2" && b["title"] == "B"
	}, 5*time.Second, 10*time.Millisecond)

	assert.True(t, g.Mirror.Synced())
}

func TestServiceFilesOnHost(t *testing.T) {
	trans := net.NewInmemTransport()

	conf := newTestConfig(t)
	conf.NoService = false
	conf.ServiceAddr = ""

	h := NewGraphshare(conf)
	h.Transport = trans
	require.NoError(t, h.Init())
	t.Cleanup(h.Shutdown)
	require.NotNil(t, h.Service)

	startHost(t, h)

	req := httptest.NewRequest("GET", "/files/logo.svg", nil)
	w := httptest.NewRecorder()
	h.Service.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}
