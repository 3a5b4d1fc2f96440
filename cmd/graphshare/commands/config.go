package commands

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/mosaicnetworks/graphshare/src/config"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

//CLIConfig contains configuration for the host and join commands
type CLIConfig struct {
	Graphshare config.Config `mapstructure:",squash"`
	Fetch      string        `mapstructure:"fetch"`
	Out        string        `mapstructure:"out"`
}

//NewDefaultCLIConfig creates a CLIConfig with default values
func NewDefaultCLIConfig() *CLIConfig {
	return &CLIConfig{
		Graphshare: *config.NewDefaultConfig(),
	}
}

//AddConfigFlags adds the flags shared by the host and join commands
func AddConfigFlags(cmd *cobra.Command) {
	cmd.Flags().String("datadir", _config.Graphshare.DataDir, "Top-level directory for configuration and data")
	cmd.Flags().String("log", _config.Graphshare.LogLevel, "debug, info, warn, error, fatal, panic")
	cmd.Flags().String("log-file", _config.Graphshare.LogFile, "File receiving a copy of the logs")
	cmd.Flags().String("peer-id", _config.Graphshare.PeerID, "Peer id; defaults to the public key")

	// Service
	cmd.Flags().Bool("no-service", _config.Graphshare.NoService, "Disable HTTP service")
	cmd.Flags().StringP("service-listen", "s", _config.Graphshare.ServiceAddr, "Listen IP:Port for HTTP service")

	// WebRTC
	cmd.Flags().Bool("webrtc", _config.Graphshare.WebRTC, "Use WebRTC transport")
	cmd.Flags().Int("max-message-size", _config.Graphshare.MaxMessageSize, "Max size of a WebRTC message")
	cmd.Flags().String("signal-addr", _config.Graphshare.SignalAddr, "IP:Port of WebRTC signaling server")
	cmd.Flags().String("signal-realm", _config.Graphshare.SignalRealm, "WebRTC signaling realm")
	cmd.Flags().Bool("signal-skip-verify", _config.Graphshare.SignalSkipVerify, "(Insecure) Accept any certificate presented by the signal server")
	cmd.Flags().Duration("signal-timeout", _config.Graphshare.SignalTimeout, "Timeout of SDP offers")
	cmd.Flags().String("signal-dir", _config.Graphshare.SignalDir, "Exchange SDP files through this directory instead of a signaling server")
	cmd.Flags().String("ice-addr", _config.Graphshare.ICEAddress, "URL of a WebRTC ICE server")
	cmd.Flags().String("ice-username", _config.Graphshare.ICEUsername, "Username to authenticate to the ICE server")
	cmd.Flags().String("ice-password", _config.Graphshare.ICEPassword, "Password to authenticate to the ICE server")
}

func loadConfig(cmd *cobra.Command, args []string) error {

	err := bindFlagsLoadViper(cmd)
	if err != nil {
		return err
	}

	// If --datadir was explicitely set, but not --db, this will update the
	// default database dir to be inside the new datadir
	_config.Graphshare.SetDataDir(_config.Graphshare.DataDir)

	logFields := logrus.Fields{
		"graphshare.DataDir":        _config.Graphshare.DataDir,
		"graphshare.LogLevel":       _config.Graphshare.LogLevel,
		"graphshare.PeerID":         _config.Graphshare.PeerID,
		"graphshare.ConnectTimeout": _config.Graphshare.ConnectTimeout,
		"graphshare.RequestTimeout": _config.Graphshare.RequestTimeout,
		"graphshare.NoService":      _config.Graphshare.NoService,
		"graphshare.ServiceAddr":    _config.Graphshare.ServiceAddr,
		"graphshare.WebRTC":         _config.Graphshare.WebRTC,
	}

	if _config.Graphshare.WebRTC {
		logFields["graphshare.SignalAddr"] = _config.Graphshare.SignalAddr
		logFields["graphshare.SignalRealm"] = _config.Graphshare.SignalRealm
		logFields["graphshare.SignalDir"] = _config.Graphshare.SignalDir
		logFields["graphshare.ICEAddress"] = _config.Graphshare.ICEAddress
	}

	if _config.Graphshare.ContentDir != "" {
		logFields["graphshare.ContentDir"] = _config.Graphshare.ContentDir
		logFields["graphshare.ContentStore"] = _config.Graphshare.ContentStore
	}

	if _config.Graphshare.GraphFile != "" {
		logFields["graphshare.GraphFile"] = _config.Graphshare.GraphFile
	}

	_config.Graphshare.Logger().WithFields(logFields).Debug("RUN")

	return nil
}

// Bind all flags and read the config into viper
func bindFlagsLoadViper(cmd *cobra.Command) error {
	// Register flags with viper. Include flags from this command and all other
	// persistent flags from the parent
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	// first unmarshal to read from CLI flags
	if err := viper.Unmarshal(_config); err != nil {
		return err
	}

	// look for config file in [datadir]/graphshare.toml (.json, .yaml also work)
	viper.SetConfigName("graphshare")               // name of config file (without extension)
	viper.AddConfigPath(_config.Graphshare.DataDir) // search root directory

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		_config.Graphshare.Logger().Debugf("Using config file: %s", viper.ConfigFileUsed())
	} else if _, ok := err.(viper.ConfigFileNotFoundError); ok {
		_config.Graphshare.Logger().Debugf("No config file found in: %s", _config.Graphshare.DataDir)
	} else {
		return err
	}

	// second unmarshal to read from config file
	return viper.Unmarshal(_config)
}

// waitForSignal blocks until a SIGINT or SIGTERM is received
func waitForSignal() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	signal.Stop(sigCh)
}
