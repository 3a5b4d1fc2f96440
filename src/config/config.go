package config

import (
	"crypto/ecdsa"
	"os"
	"os/user"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/mosaicnetworks/graphshare/src/common"
	webrtc "github.com/pion/webrtc/v2"
	"github.com/rifflock/lfshook"
	"github.com/sirupsen/logrus"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"
)

// Default filenames.
const (
	// DefaultKeyfile is the default name of the file containing the peer's
	// private key
	DefaultKeyfile = "priv_key"

	// DefaultBadgerFile is the default name of the folder containing the Badger
	// content store
	DefaultBadgerFile = "badger_db"

	// DefaultCertFile is the default name of the file containing the TLS
	// certificate for connecting to the signaling server.
	DefaultCertFile = "cert.pem"

	// DefaultSignalDir is the default name of the folder used for file-based
	// signaling
	DefaultSignalDir = "signal"
)

// Content store kinds.
const (
	// ContentStoreFS serves assets from ContentDir on disk
	ContentStoreFS = "fs"
	// ContentStoreBadger serves assets from a badger database, loaded from
	// ContentDir on startup
	ContentStoreBadger = "badger"
)

// Default configuration values.
const (
	DefaultLogLevel         = "debug"
	DefaultServiceAddr      = "127.0.0.1:8000"
	DefaultConnectTimeout   = 10 * time.Second
	DefaultRequestTimeout   = 30 * time.Second
	DefaultMaxMessageSize   = 64 * 1024 * 1024
	DefaultContentStore     = ContentStoreFS
	DefaultWebRTC           = false
	DefaultSignalAddr       = "127.0.0.1:2443"
	DefaultSignalRealm      = "main"
	DefaultSignalSkipVerify = false
	DefaultSignalTimeout    = 15 * time.Second
	DefaultICEAddress       = "stun:stun.l.google.com:19302"
	DefaultICEUsername      = ""
	DefaultICEPassword      = ""
)

// Config contains all the configuration properties of a graphshare peer.
type Config struct {
	// DataDir is the top-level directory containing graphshare configuration
	// and data
	DataDir string `mapstructure:"datadir"`

	// LogLevel determines the chattiness of the log output.
	LogLevel string `mapstructure:"log"`

	// LogFile, if set, receives a copy of every log entry.
	LogFile string `mapstructure:"log-file"`

	// PeerID is the id under which the peer registers with the transport. If
	// empty, the hex-encoded public key of the peer is used.
	PeerID string `mapstructure:"peer-id"`

	// ConnectTimeout bounds the establishment of a guest's connection to a
	// host.
	ConnectTimeout time.Duration `mapstructure:"connect-timeout"`

	// RequestTimeout bounds each file request of a guest.
	RequestTimeout time.Duration `mapstructure:"request-timeout"`

	// MaxMessageSize is the largest message accepted over a WebRTC
	// connection.
	MaxMessageSize int `mapstructure:"max-message-size"`

	// ContentDir is the directory from which a host serves assets.
	ContentDir string `mapstructure:"content"`

	// ContentStore selects how assets are served: "fs" reads ContentDir
	// directly, "badger" imports ContentDir into a badger database under
	// DatabaseDir and serves from it.
	ContentStore string `mapstructure:"content-store"`

	// DatabaseDir is the directory containing the badger database files.
	DatabaseDir string `mapstructure:"db"`

	// GraphFile is the JSON file a host loads its graph from. The file is
	// watched, and changes are broadcast to guests.
	GraphFile string `mapstructure:"graph"`

	// NoService disables the HTTP API service.
	NoService bool `mapstructure:"no-service"`

	// ServiceAddr is the address:port of the optional HTTP service.
	ServiceAddr string `mapstructure:"service-listen"`

	// WebRTC determines whether to use a WebRTC transport. WebRTC enables
	// peers to connect directly even with multiple layers of NAT between them,
	// such as in cellular networks. WebRTC relies on a signaling server whose
	// address is specified by SignalAddr, or on a directory shared by the
	// peers, specified by SignalDir. When WebRTC is disabled, peers use an
	// in-memory transport and must live in the same process.
	WebRTC bool `mapstructure:"webrtc"`

	// SignalAddr is the IP:PORT of the WebRTC signaling server. The connection
	// is over secured web-sockets, wss, and it possible to include a
	// self-signed certificated in a file called cert.pem in the datadir. If no
	// self-signed certificate is found, the server's certificate signing
	// authority better be trusted.
	SignalAddr string `mapstructure:"signal-addr"`

	// SignalRealm is an administrative domain within the WebRTC signaling
	// server. WebRTC signaling messages are only routed within a Realm.
	SignalRealm string `mapstructure:"signal-realm"`

	// SignalSkipVerify controls whether the signal client verifies the server's
	// certificate chain and host name. If SignalSkipVerify is true, TLS accepts
	// any certificate presented by the server and any host name in that
	// certificate. In this mode, TLS is susceptible to man-in-the-middle
	// attacks. This should be used only for testing.
	SignalSkipVerify bool `mapstructure:"signal-skip-verify"`

	// SignalTimeout bounds the exchange of SDP offers and answers.
	SignalTimeout time.Duration `mapstructure:"signal-timeout"`

	// SignalDir, if set, replaces the signaling server with SDP files
	// exchanged through this directory.
	SignalDir string `mapstructure:"signal-dir"`

	// ICE address is the URI of a server providing services for ICE, such as
	// STUN and TURN. The server should support password-based authentication,
	// as graphshare will try to connect with the username and password
	// provided in ICEUsername and ICEPassword below. Username and password can
	// also be empty if the ICE server does not use authentication.
	// https://developer.mozilla.org/en-US/docs/Web/API/RTCIceServer/urls
	ICEAddress string `mapstructure:"ice-addr"`

	// ICEUsername is the username that will be used to authenticate with the
	// ICE server defined in ICEAddress.
	ICEUsername string `mapstructure:"ice-username"`

	// ICEPassword is the password that will be used to authenticate with the
	// ICE server defined in ICEAddress.
	ICEPassword string `mapstructure:"ice-password"`

	// Key is the private key of the peer.
	Key *ecdsa.PrivateKey

	logger *logrus.Logger
}

// NewDefaultConfig returns a config object with default values. All the default
// configuration values are set, even if they cancel eachother out. For example,
// when WebRTC = false, all the Signal options are ignored.
func NewDefaultConfig() *Config {
	config := &Config{
		DataDir:          DefaultDataDir(),
		LogLevel:         DefaultLogLevel,
		ServiceAddr:      DefaultServiceAddr,
		ConnectTimeout:   DefaultConnectTimeout,
		RequestTimeout:   DefaultRequestTimeout,
		MaxMessageSize:   DefaultMaxMessageSize,
		ContentStore:     DefaultContentStore,
		DatabaseDir:      DefaultDatabaseDir(),
		WebRTC:           DefaultWebRTC,
		SignalAddr:       DefaultSignalAddr,
		SignalRealm:      DefaultSignalRealm,
		SignalSkipVerify: DefaultSignalSkipVerify,
		SignalTimeout:    DefaultSignalTimeout,
		ICEAddress:       DefaultICEAddress,
		ICEUsername:      DefaultICEUsername,
		ICEPassword:      DefaultICEPassword,
	}

	return config
}

// NewTestConfig returns a config object with default values and a special
// logger for debugging tests.
func NewTestConfig(t testing.TB, level logrus.Level) *Config {
	config := NewDefaultConfig()
	config.logger = common.NewTestLogger(t, level)
	return config
}

// SetDataDir sets the top-level graphshare directory, and updates the database
// directory if it is currently set to the default value. If the database
// directory is not currently the default, it means the user has explicitely set
// it to something else, so avoid changing it again here.
func (c *Config) SetDataDir(dataDir string) {
	c.DataDir = dataDir
	if c.DatabaseDir == DefaultDatabaseDir() {
		c.DatabaseDir = filepath.Join(dataDir, DefaultBadgerFile)
	}
}

// Keyfile returns the full path of the file containing the private key.
func (c *Config) Keyfile() string {
	return filepath.Join(c.DataDir, DefaultKeyfile)
}

// CertFile returns the full path of the file containing the signal-server TLS
// certificate.
func (c *Config) CertFile() string {
	return filepath.Join(c.DataDir, DefaultCertFile)
}

// ICEServers returns a list of ICE servers used by the WebRTC transport to
// connect to peers. The list contains a single item which is based on the
// configuration passed through the config object. This configuration is limited
// to a single server, with password-based authentication.
func (c *Config) ICEServers() []webrtc.ICEServer {
	server := webrtc.ICEServer{
		URLs: []string{c.ICEAddress},
	}

	if c.ICEUsername != "" {
		server.Username = c.ICEUsername
		server.Credential = c.ICEPassword
		server.CredentialType = webrtc.ICECredentialTypePassword
	}

	return []webrtc.ICEServer{server}
}

// Logger returns a formatted logrus Entry, with prefix set to "graphshare".
// When LogFile is set, entries are also written to that file.
func (c *Config) Logger() *logrus.Entry {
	if c.logger == nil {
		c.logger = logrus.New()
		c.logger.Level = LogLevel(c.LogLevel)
		c.logger.Formatter = new(prefixed.TextFormatter)

		if c.LogFile != "" {
			c.logger.Hooks.Add(lfshook.NewHook(
				c.LogFile,
				&logrus.TextFormatter{DisableColors: true},
			))
		}
	}
	return c.logger.WithField("prefix", "graphshare")
}

// DefaultDatabaseDir returns the default path for the badger database files.
func DefaultDatabaseDir() string {
	return filepath.Join(DefaultDataDir(), DefaultBadgerFile)
}

// DefaultDataDir return the default directory name for top-level graphshare
// config based on the underlying OS, attempting to respect conventions.
func DefaultDataDir() string {
	// Try to place the data folder in the user's home dir
	home := HomeDir()
	if home != "" {
		if runtime.GOOS == "darwin" {
			return filepath.Join(home, ".Graphshare")
		} else if runtime.GOOS == "windows" {
			return filepath.Join(home, "AppData", "Roaming", "Graphshare")
		} else {
			return filepath.Join(home, ".graphshare")
		}
	}
	// As we cannot guess a stable location, return empty and handle later
	return ""
}

// HomeDir returns the user's home directory.
func HomeDir() string {
	if home := os.Getenv("HOME"); home != "" {
		return home
	}
	if usr, err := user.Current(); err == nil {
		return usr.HomeDir
	}
	return ""
}

// LogLevel parses a string into a Logrus log level.
func LogLevel(l string) logrus.Level {
	switch l {
	case "debug":
		return logrus.DebugLevel
	case "info":
		return logrus.InfoLevel
	case "warn":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	case "fatal":
		return logrus.FatalLevel
	case "panic":
		return logrus.PanicLevel
	default:
		return logrus.DebugLevel
	}
}
