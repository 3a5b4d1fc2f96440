package graphshare

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mosaicnetworks/graphshare/src/config"
	"github.com/mosaicnetworks/graphshare/src/content"
	"github.com/mosaicnetworks/graphshare/src/crypto/keys"
	"github.com/mosaicnetworks/graphshare/src/graph"
	"github.com/mosaicnetworks/graphshare/src/guest"
	"github.com/mosaicnetworks/graphshare/src/host"
	"github.com/mosaicnetworks/graphshare/src/net"
	"github.com/mosaicnetworks/graphshare/src/net/signal"
	"github.com/mosaicnetworks/graphshare/src/net/signal/file"
	"github.com/mosaicnetworks/graphshare/src/net/signal/wamp"
	"github.com/mosaicnetworks/graphshare/src/service"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

// Graphshare is a graphshare session. It composes the transport, the graph
// store, the content root, the host and guest coordinators, and the HTTP
// service. A session either hosts its graph with RunHost, or mirrors the graph
// of a remote host with RunGuest.
type Graphshare struct {
	Config *config.Config

	// Transport, Store and Content may be set before calling Init, in which
	// case they are used instead of the ones built from the config.
	Transport net.Transport
	Store     *graph.Store
	Content   content.Root

	Host    *host.Host
	Guest   *guest.Guest
	Mirror  *guest.MirrorConsumer
	Service *service.Service

	badger *content.BadgerRoot
	cancel context.CancelFunc
	wg     sync.WaitGroup
	logger *logrus.Entry
}

// NewGraphshare is a factory method to produce a Graphshare instance.
func NewGraphshare(c *config.Config) *Graphshare {
	engine := &Graphshare{
		Config: c,
		logger: c.Logger(),
	}

	return engine
}

// Init initialises the engine. It loads or creates the private key, and builds
// the components that were not provided by the caller.
func (g *Graphshare) Init() error {
	if err := g.initKey(); err != nil {
		return err
	}

	if err := g.initTransport(); err != nil {
		return err
	}

	if err := g.initStore(); err != nil {
		return err
	}

	if err := g.initContent(); err != nil {
		return err
	}

	g.initCoordinators()

	g.initService()

	return nil
}

func (g *Graphshare) initKey() error {
	if g.Config.Key == nil {
		key, created, err := keys.ReadOrCreateKey(g.Config.Keyfile())
		if err != nil {
			g.logger.WithError(err).Error("Cannot read or create private key")
			return err
		}

		if created {
			g.logger.WithField("keyfile", g.Config.Keyfile()).Info("Created a new key")
		}

		g.Config.Key = key
	}

	if g.Config.PeerID == "" {
		g.Config.PeerID = keys.PeerID(g.Config.Key)
	}

	return nil
}

func (g *Graphshare) initTransport() error {
	if g.Transport != nil {
		return nil
	}

	if !g.Config.WebRTC {
		g.Transport = net.NewInmemTransport()
		g.logger.Debug("Using in-memory transport")
		return nil
	}

	g.Transport = net.NewWebRTCTransport(
		g.signalFactory(),
		g.Config.ICEServers(),
		g.Config.MaxMessageSize,
		g.logger.WithField("prefix", "webrtc"),
	)

	g.logger.WithFields(logrus.Fields{
		"signal_addr": g.Config.SignalAddr,
		"signal_dir":  g.Config.SignalDir,
		"ice_addr":    g.Config.ICEAddress,
	}).Debug("Using WebRTC transport")

	return nil
}

// signalFactory returns a factory of file signals when SignalDir is set, and
// of WAMP signal clients otherwise.
func (g *Graphshare) signalFactory() net.SignalFactory {
	logger := g.logger.WithField("prefix", "signal")

	if g.Config.SignalDir != "" {
		return func(id string) (signal.Signal, error) {
			return file.NewSignal(
				afero.NewOsFs(),
				g.Config.SignalDir,
				id,
				g.Config.SignalTimeout,
				logger,
			)
		}
	}

	return func(id string) (signal.Signal, error) {
		return wamp.NewClient(
			g.Config.SignalAddr,
			g.Config.SignalRealm,
			id,
			g.Config.CertFile(),
			g.Config.SignalSkipVerify,
			g.Config.SignalTimeout,
			logger,
		)
	}
}

func (g *Graphshare) initStore() error {
	if g.Store == nil {
		g.Store = graph.NewStore(g.logger.WithField("prefix", "graph"))
	}
	return nil
}

func (g *Graphshare) initContent() error {
	if g.Content != nil {
		return nil
	}

	switch {
	case g.Config.ContentDir == "":
		g.Content = content.NewFSRoot(afero.NewMemMapFs())
		g.logger.Debug("No content directory, serving no assets")
	case g.Config.ContentStore == config.ContentStoreBadger:
		g.logger.WithField("path", g.Config.DatabaseDir).Debug("Attempting to load or create database")

		root, err := content.NewBadgerRoot(g.Config.DatabaseDir, g.logger.WithField("prefix", "content"))
		if err != nil {
			return err
		}

		n, err := root.Import(g.Config.ContentDir)
		if err != nil {
			root.Close()
			return fmt.Errorf("importing %s: %w", g.Config.ContentDir, err)
		}

		g.logger.WithFields(logrus.Fields{
			"files": n,
			"dir":   g.Config.ContentDir,
		}).Debug("Imported content")

		g.badger = root
		g.Content = root
	case g.Config.ContentStore == config.ContentStoreFS:
		g.Content = content.NewDirRoot(g.Config.ContentDir)
	default:
		return fmt.Errorf("unknown content store %q", g.Config.ContentStore)
	}

	return nil
}

func (g *Graphshare) initCoordinators() {
	g.Host = host.NewHost(
		g.Config.PeerID,
		g.Transport,
		g.Store,
		host.NewImageResolver(g.Content, g.logger),
		g.logger,
	)

	g.Guest = guest.NewGuest(
		guest.Config{
			PeerID:         g.Config.PeerID,
			ConnectTimeout: g.Config.ConnectTimeout,
			RequestTimeout: g.Config.RequestTimeout,
		},
		g.Transport,
		g.logger,
	)

	g.Mirror = guest.NewMirrorConsumer(g.Store, g.logger.WithField("prefix", "mirror"))
}

func (g *Graphshare) initService() {
	if g.Config.NoService {
		return
	}

	g.Service = service.NewService(
		g.Config.ServiceAddr,
		g.Store,
		g.Host,
		g.Guest,
		g.logger,
	)
}

// RunHost loads the graph file, if any, and starts hosting. It returns the
// peer id guests dial. The graph file is watched until Shutdown is called.
func (g *Graphshare) RunHost(ctx context.Context) (string, error) {
	if g.Config.GraphFile != "" {
		f, err := graph.ReadFile(g.Config.GraphFile)
		if err != nil {
			return "", fmt.Errorf("reading graph file: %w", err)
		}

		graph.Load(g.Store, f)

		g.logger.WithFields(logrus.Fields{
			"file":     g.Config.GraphFile,
			"entities": g.Store.Len(),
		}).Info("Loaded graph")
	}

	id, err := g.Host.Start(ctx)
	if err != nil {
		return "", err
	}

	if g.Config.GraphFile != "" {
		w, err := graph.NewWatcher(g.Config.GraphFile, g.Store, g.logger.WithField("prefix", "watcher"))
		if err != nil {
			g.Host.Stop()
			return "", err
		}

		ctx := g.background()

		g.wg.Add(1)
		go func() {
			defer g.wg.Done()
			w.Run(ctx)
		}()
	}

	g.serve()

	return id, nil
}

// RunGuest connects to the host and mirrors its graph into the store.
func (g *Graphshare) RunGuest(ctx context.Context, hostID string) error {
	start := time.Now()

	if err := g.Guest.ConnectToHost(ctx, hostID, g.Mirror); err != nil {
		return err
	}

	g.logger.WithFields(logrus.Fields{
		"host_id":  hostID,
		"duration": time.Since(start),
	}).Info("Connected to host")

	g.serve()

	return nil
}

// background returns the context of the goroutines that run until Shutdown.
func (g *Graphshare) background() context.Context {
	ctx, cancel := context.WithCancel(context.Background())

	prev := g.cancel
	g.cancel = func() {
		if prev != nil {
			prev()
		}
		cancel()
	}

	return ctx
}

func (g *Graphshare) serve() {
	if g.Service == nil || g.Config.ServiceAddr == "" {
		return
	}

	ctx := g.background()

	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		if err := g.Service.Serve(); err != nil {
			g.logger.WithError(err).Error("Service stopped")
		}
	}()

	go func() {
		<-ctx.Done()
		g.Service.Shutdown(context.Background())
	}()
}

// Shutdown stops the coordinators, the service and the graph watcher, and
// closes the content store.
func (g *Graphshare) Shutdown() {
	g.logger.Info("Shutting down")

	if g.cancel != nil {
		g.cancel()
	}

	if g.Guest != nil {
		g.Guest.Disconnect()
	}

	if g.Host != nil {
		if err := g.Host.Stop(); err != nil {
			g.logger.WithError(err).Warn("Stopping host")
		}
	}

	g.wg.Wait()

	if g.badger != nil {
		if err := g.badger.Close(); err != nil {
			g.logger.WithError(err).Warn("Closing content store")
		}
	}
}
