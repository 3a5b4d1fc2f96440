package wamp

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"io/ioutil"
	"os"
	"sync"
	"time"

	"github.com/gammazero/nexus/v3/client"
	"github.com/gammazero/nexus/v3/wamp"
	"github.com/mosaicnetworks/graphshare/src/net/signal"
	"github.com/pion/webrtc/v2"
	"github.com/sirupsen/logrus"
)

// Client implements the Signal interface. It sends and receives SDP offers
// through a WAMP router using WebSockets. Each client registers a procedure
// named after its id; offering to a peer is a call to the peer's procedure.
type Client struct {
	sync.Mutex
	id        string
	routerURL string
	config    client.Config
	client    *client.Client
	consumer  chan signal.OfferPromise
	done      chan struct{}
	closed    bool
	logger    *logrus.Entry
}

// NewClient instantiates a new Client, and opens a connection to the WAMP
// signaling server.
func NewClient(
	server string,
	realm string,
	id string,
	caFile string,
	insecureSkipVerify bool,
	responseTimeout time.Duration,
	logger *logrus.Entry,
) (*Client, error) {

	tlscfg, err := tlsConfig(caFile, insecureSkipVerify, logger)
	if err != nil {
		return nil, err
	}

	res := &Client{
		id:        id,
		routerURL: fmt.Sprintf("wss://%s", server),
		config: client.Config{
			Realm:           realm,
			ResponseTimeout: responseTimeout,
			Logger:          logger,
			TlsCfg:          tlscfg,
		},
		consumer: make(chan signal.OfferPromise),
		done:     make(chan struct{}),
		logger:   logger,
	}

	if err := res.Connect(); err != nil {
		return nil, err
	}

	return res, nil
}

// tlsConfig trusts the certificate in caFile if it exists, and the platform's
// trusted certificates otherwise.
func tlsConfig(caFile string, insecureSkipVerify bool, logger *logrus.Entry) (*tls.Config, error) {
	tlscfg := &tls.Config{}

	if insecureSkipVerify {
		logger.Debug("Skip Verify. Accepting any certificate provided by signal server.")
		tlscfg.InsecureSkipVerify = true
		return tlscfg, nil
	}

	if caFile == "" {
		return tlscfg, nil
	}

	if _, err := os.Stat(caFile); os.IsNotExist(err) {
		logger.Debugf("No certificate file found. Relying on platform trusted certificates.")
		return tlscfg, nil
	}

	certPEM, err := ioutil.ReadFile(caFile)
	if err != nil {
		return nil, err
	}

	roots := x509.NewCertPool()
	if !roots.AppendCertsFromPEM(certPEM) {
		return nil, errors.New("Failed to import certificate to trust")
	}
	tlscfg.RootCAs = roots

	// Decode and parse the server cert to extract the subject info.
	block, _ := pem.Decode(certPEM)
	if block == nil {
		return nil, errors.New("Failed to decode certificate to trust")
	}

	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, err
	}

	logger.Debugf("Trusting certificate %s with CN: %s", caFile, cert.Subject.CommonName)

	// Set ServerName in TLS config to CN from trusted cert so that
	// certificate will validate if CN does not match DNS name.
	tlscfg.ServerName = cert.Subject.CommonName

	return tlscfg, nil
}

// Connect creates a new WAMP client connected to the WAMP router. If a WAMP
// client already exists and is already connected, it does nothing.
func (c *Client) Connect() error {
	c.Lock()
	defer c.Unlock()

	if c.client != nil && c.client.Connected() {
		return nil
	}

	cli, err := client.ConnectNet(
		context.Background(),
		c.routerURL,
		c.config,
	)
	if err != nil {
		return err
	}

	c.client = cli

	return nil
}

// ID implements the Signal interface.
func (c *Client) ID() string {
	return c.id
}

// Listen implements the Signal interface. It registers a procedure, named
// after the client's id, which forwards offers to the consumer channel.
func (c *Client) Listen() error {
	if err := c.client.Register(c.id, c.callHandler, nil); err != nil {
		c.logger.WithError(err).Error("Failed to register procedure")
		return err
	}
	c.logger.Debug("Registered procedure with router")
	return nil
}

// Offer implements the Signal interface. It calls the target's procedure and
// waits for the answer.
func (c *Client) Offer(target string, offer webrtc.SessionDescription) (*webrtc.SessionDescription, error) {
	raw, err := json.Marshal(offer)
	if err != nil {
		return nil, err
	}

	callArgs := wamp.List{
		c.id,
		string(raw),
	}

	ctx, cancel := context.WithTimeout(
		context.Background(),
		c.config.ResponseTimeout,
	)
	defer cancel()

	result, err := c.client.Call(ctx, target, nil, callArgs, nil, nil)
	if err != nil {
		c.logger.WithError(err).WithField("target", target).Debug("Offer failed")
		return nil, err
	}

	if len(result.Arguments) == 0 {
		return nil, errors.New("empty answer")
	}

	sdp, ok := wamp.AsString(result.Arguments[0])
	if !ok {
		return nil, errors.New("answer is not a string")
	}

	answer := webrtc.SessionDescription{}
	if err := json.Unmarshal([]byte(sdp), &answer); err != nil {
		return nil, err
	}

	return &answer, nil
}

// Consumer implements the Signal interface.
func (c *Client) Consumer() <-chan signal.OfferPromise {
	return c.consumer
}

// Close unregisters the client's procedure and closes the connection to the
// WAMP router.
func (c *Client) Close() error {
	c.Lock()
	defer c.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	close(c.done)

	c.client.Unregister(c.id)
	return c.client.Close()
}

// callHandler is called when an offer is received from the signaling server.
func (c *Client) callHandler(ctx context.Context, inv *wamp.Invocation) client.InvokeResult {
	if len(inv.Arguments) != 2 {
		return errResult(
			fmt.Sprintf("Invocation should contain 2 arguments, not %d", len(inv.Arguments)))
	}

	from, ok := wamp.AsString(inv.Arguments[0])
	if !ok {
		return errResult("Error reading invocation first argument")
	}

	sdp, ok := wamp.AsString(inv.Arguments[1])
	if !ok {
		return errResult("Error reading invocation second argument")
	}

	offer := webrtc.SessionDescription{}
	if err := json.Unmarshal([]byte(sdp), &offer); err != nil {
		return errResult(fmt.Sprintf("Error parsing invocation SDP: %v", err))
	}

	if offer.SDP == "" {
		return errResult("Empty SDP")
	}

	promise, respCh := signal.NewOfferPromise(from, offer)

	timer := time.NewTimer(c.config.ResponseTimeout)
	defer timer.Stop()

	select {
	case c.consumer <- promise:
	case <-c.done:
		return errResult("Callee closed")
	case <-ctx.Done():
		return errResult("Call cancelled")
	case <-timer.C:
		return errResult("Callee TIMEOUT")
	}

	select {
	case <-timer.C:
		return errResult("Callee TIMEOUT")
	case <-ctx.Done():
		return errResult("Call cancelled")
	case resp := <-respCh:
		if resp.Error != nil {
			return errResult(resp.Error.Error())
		}

		raw, err := json.Marshal(resp.Answer)
		if err != nil {
			return errResult(fmt.Sprintf("Error parsing answer: %v", err))
		}

		return client.InvokeResult{
			Args: wamp.List{string(raw)},
		}
	}
}

func errResult(msg string) client.InvokeResult {
	return client.InvokeResult{
		Err:  ErrProcessingOffer,
		Args: wamp.List{msg},
	}
}
