// Package file implements the Signal interface by reading and writing SDP
// files in a shared directory. It is used in tests and by peers that share a
// filesystem.
//
// Filenames are of the form <offerer>_<answerer>_offer.sdp or
// <offerer>_<answerer>_answer.sdp. So for example if alice makes an offer to
// bob, she will write the offer in a file called alice_bob_offer.sdp and bob
// will answer in alice_bob_answer.sdp. Ids must not contain underscores.
package file

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/mosaicnetworks/graphshare/src/net/signal"
	"github.com/pion/webrtc/v2"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

const (
	offerSuffix  = "offer.sdp"
	answerSuffix = "answer.sdp"
)

// Signal implements the signal.Signal interface over an afero filesystem.
type Signal struct {
	fs           afero.Fs
	dir          string
	id           string
	pollInterval time.Duration
	timeout      time.Duration
	consumer     chan signal.OfferPromise
	done         chan struct{}
	once         sync.Once
	logger       *logrus.Entry
}

// NewSignal instantiates a Signal for id, exchanging SDP files in dir.
func NewSignal(fs afero.Fs, dir string, id string, timeout time.Duration, logger *logrus.Entry) (*Signal, error) {
	if id == "" || strings.Contains(id, "_") {
		return nil, fmt.Errorf("invalid signal id %q", id)
	}

	if err := fs.MkdirAll(dir, 0700); err != nil {
		return nil, err
	}

	return &Signal{
		fs:           fs,
		dir:          dir,
		id:           id,
		pollInterval: 50 * time.Millisecond,
		timeout:      timeout,
		consumer:     make(chan signal.OfferPromise),
		done:         make(chan struct{}),
		logger:       logger,
	}, nil
}

// ID implements the Signal interface.
func (s *Signal) ID() string {
	return s.id
}

// Listen implements the Signal interface. It starts scanning the directory for
// offers addressed to this signal in the background.
func (s *Signal) Listen() error {
	if _, err := s.fs.Stat(s.dir); err != nil {
		return err
	}
	go s.scan()
	return nil
}

func (s *Signal) scan() {
	// offers that have already been processed, by file name and modification
	// time, so that a peer can offer again after a disconnection
	processed := make(map[string]time.Time)

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
		}

		infos, err := afero.ReadDir(s.fs, s.dir)
		if err != nil {
			s.logger.WithError(err).Error("Scanning signal directory")
			continue
		}

		for _, info := range infos {
			parts := strings.Split(info.Name(), "_")
			if len(parts) != 3 || parts[1] != s.id || parts[2] != offerSuffix {
				continue
			}

			if t, ok := processed[info.Name()]; ok && !info.ModTime().After(t) {
				continue
			}
			processed[info.Name()] = info.ModTime()

			if !s.process(parts[0], info.Name()) {
				return
			}
		}
	}
}

// process forwards one offer to the consumer and writes the answer. It returns
// false if the signal was closed in the meantime.
func (s *Signal) process(from string, name string) bool {
	offer, err := s.readSDP(filepath.Join(s.dir, name))
	if err != nil || offer == nil {
		s.logger.WithError(err).WithField("file", name).Debug("Skipping offer")
		return true
	}

	promise, respCh := signal.NewOfferPromise(from, *offer)

	select {
	case s.consumer <- promise:
	case <-s.done:
		return false
	}

	var resp signal.OfferPromiseResponse
	select {
	case resp = <-respCh:
	case <-s.done:
		return false
	}

	if resp.Error != nil || resp.Answer == nil {
		s.logger.WithError(resp.Error).WithField("from", from).Debug("Offer rejected")
		return true
	}

	answerFile := filepath.Join(s.dir, fileName(from, s.id, answerSuffix))
	if err := s.writeSDP(*resp.Answer, answerFile); err != nil {
		s.logger.WithError(err).Error("Writing answer")
	}

	return true
}

// Consumer implements the Signal interface
func (s *Signal) Consumer() <-chan signal.OfferPromise {
	return s.consumer
}

// Offer implements the Signal interface. It writes the offer file and polls
// for the answer file until the timeout.
func (s *Signal) Offer(target string, offer webrtc.SessionDescription) (*webrtc.SessionDescription, error) {
	answerFile := filepath.Join(s.dir, fileName(s.id, target, answerSuffix))

	// an answer left over from a previous connection is stale
	if err := s.fs.Remove(answerFile); err != nil && !os.IsNotExist(err) {
		return nil, err
	}

	offerFile := filepath.Join(s.dir, fileName(s.id, target, offerSuffix))
	if err := s.writeSDP(offer, offerFile); err != nil {
		return nil, err
	}

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	timeout := time.After(s.timeout)
	for {
		select {
		case <-timeout:
			return nil, fmt.Errorf("Timeout waiting for SDP answer")
		case <-s.done:
			return nil, fmt.Errorf("signal closed")
		case <-ticker.C:
			answer, err := s.readSDP(answerFile)
			if err != nil {
				return nil, err
			}
			if answer != nil {
				return answer, nil
			}
		}
	}
}

// Close implements the Signal interface. It stops scanning for offers.
func (s *Signal) Close() error {
	s.once.Do(func() {
		close(s.done)
	})
	return nil
}

func fileName(offerer, answerer, suffix string) string {
	return fmt.Sprintf("%s_%s_%s", offerer, answerer, suffix)
}

func (s *Signal) readSDP(file string) (*webrtc.SessionDescription, error) {
	exists, err := afero.Exists(s.fs, file)
	if err != nil || !exists {
		return nil, err
	}

	content, err := afero.ReadFile(s.fs, file)
	if err != nil {
		return nil, err
	}

	res := webrtc.SessionDescription{}
	if err := json.Unmarshal(content, &res); err != nil {
		return nil, err
	}

	return &res, nil
}

// writeSDP writes to a temporary file first so that readers never see a
// partial file.
func (s *Signal) writeSDP(sdp webrtc.SessionDescription, file string) error {
	raw, err := json.Marshal(sdp)
	if err != nil {
		return err
	}

	tmp := file + ".tmp"
	if err := afero.WriteFile(s.fs, tmp, raw, 0644); err != nil {
		return err
	}

	return s.fs.Rename(tmp, file)
}
