package net

import (
	"io"
	"sync"

	"github.com/pion/datachannel"
	webrtc "github.com/pion/webrtc/v2"
	"github.com/sirupsen/logrus"
)

// webrtcConn implements the Connection interface around a PeerConnection and
// its single detached DataChannel.
type webrtcConn struct {
	mu       sync.Mutex
	owner    *webrtcIdentity
	remoteID string
	pc       *webrtc.PeerConnection
	raw      datachannel.ReadWriteCloser
	open     bool
	closed   bool
	maxSize  int
	events   *eventQueue
	logger   *logrus.Entry
}

func newWebRTCConn(owner *webrtcIdentity, remoteID string, maxSize int, logger *logrus.Entry) *webrtcConn {
	return &webrtcConn{
		owner:    owner,
		remoteID: remoteID,
		maxSize:  maxSize,
		events:   newEventQueue(),
		logger:   logger.WithField("remote", remoteID),
	}
}

// attach waits for the DataChannel to open, detaches it and starts reading.
func (c *webrtcConn) attach(dataChannel *webrtc.DataChannel) {
	dataChannel.OnOpen(func() {
		raw, err := dataChannel.Detach()
		if err != nil {
			c.logger.WithError(err).Error("Error detaching DataChannel")
			c.fail(err)
			return
		}

		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			raw.Close()
			return
		}
		c.raw = raw
		c.open = true
		c.events.push(Event{Kind: EventOpen})
		c.mu.Unlock()

		c.logger.Debug("DataChannel open")

		go c.readLoop(raw)
	})
}

func (c *webrtcConn) readLoop(raw datachannel.ReadWriteCloser) {
	buf := make([]byte, bufSize)
	r := reassembler{maxSize: c.maxSize}

	for {
		n, err := raw.Read(buf)
		if err != nil {
			if err != io.EOF && c.IsOpen() {
				c.logger.WithError(err).Debug("DataChannel read")
			}
			c.Close()
			return
		}

		msg, err := r.add(buf[:n])
		if err != nil {
			c.fail(err)
			return
		}

		if msg != nil {
			c.events.push(Event{Kind: EventData, Data: msg})
		}
	}
}

// RemoteID implements the Connection interface.
func (c *webrtcConn) RemoteID() string {
	return c.remoteID
}

// IsOpen implements the Connection interface.
func (c *webrtcConn) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

// Send implements the Connection interface. Messages larger than a
// DataChannel message are split into fragments.
func (c *webrtcConn) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.open {
		return ErrConnectionNotOpen
	}

	if c.maxSize > 0 && len(data) > c.maxSize {
		return ErrMessageTooLarge
	}

	for _, frag := range fragment(data, fragmentSize) {
		if _, err := c.raw.Write(frag); err != nil {
			return err
		}
	}

	return nil
}

// Events implements the Connection interface.
func (c *webrtcConn) Events() <-chan Event {
	return c.events.events()
}

// Close implements the Connection interface. It closes the DataChannel and the
// PeerConnection.
func (c *webrtcConn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.open = false
	raw, pc := c.raw, c.pc
	c.mu.Unlock()

	if raw != nil {
		raw.Close()
	}

	var err error
	if pc != nil {
		err = pc.Close()
	}

	c.events.push(Event{Kind: EventClose})
	c.owner.untrack(c)

	return err
}

// fail reports an error and closes the connection.
func (c *webrtcConn) fail(err error) {
	c.events.push(Event{Kind: EventError, Err: err})
	c.Close()
}
