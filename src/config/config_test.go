package config

import (
	"io/ioutil"
	"path/filepath"
	"strings"
	"testing"

	webrtc "github.com/pion/webrtc/v2"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	c := NewDefaultConfig()

	assert.Equal(t, DefaultConnectTimeout, c.ConnectTimeout)
	assert.Equal(t, DefaultRequestTimeout, c.RequestTimeout)
	assert.Equal(t, 64*1024*1024, c.MaxMessageSize)
	assert.Equal(t, ContentStoreFS, c.ContentStore)
	assert.False(t, c.WebRTC)
}

func TestSetDataDir(t *testing.T) {
	c := NewDefaultConfig()
	c.SetDataDir("/tmp/gs")

	assert.Equal(t, filepath.Join("/tmp/gs", DefaultKeyfile), c.Keyfile())
	assert.Equal(t, filepath.Join("/tmp/gs", DefaultCertFile), c.CertFile())
	assert.Equal(t, filepath.Join("/tmp/gs", DefaultBadgerFile), c.DatabaseDir)

	// an explicit database directory is kept
	c.DatabaseDir = "/var/db"
	c.SetDataDir("/tmp/other")
	assert.Equal(t, "/var/db", c.DatabaseDir)
}

func TestICEServers(t *testing.T) {
	c := NewDefaultConfig()

	servers := c.ICEServers()
	require.Len(t, servers, 1)
	assert.Equal(t, []string{DefaultICEAddress}, servers[0].URLs)
	assert.Empty(t, servers[0].Username)

	c.ICEAddress = "turn:turn.example.com:3478"
	c.ICEUsername = "user"
	c.ICEPassword = "pass"

	servers = c.ICEServers()
	assert.Equal(t, "user", servers[0].Username)
	assert.Equal(t, "pass", servers[0].Credential)
	assert.Equal(t, webrtc.ICECredentialTypePassword, servers[0].CredentialType)
}

func TestLogLevel(t *testing.T) {
	assert.Equal(t, logrus.InfoLevel, LogLevel("info"))
	assert.Equal(t, logrus.WarnLevel, LogLevel("warn"))
	assert.Equal(t, logrus.DebugLevel, LogLevel("nonsense"))
}

func TestLogFile(t *testing.T) {
	c := NewDefaultConfig()
	c.LogLevel = "info"
	c.LogFile = filepath.Join(t.TempDir(), "graphshare.log")

	logger := c.Logger()
	logger.Logger.Out = ioutil.Discard
	logger.Info("hello file")

	data, err := ioutil.ReadFile(c.LogFile)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), "hello file"))
}
