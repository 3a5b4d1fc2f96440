package file

import (
	"testing"
	"time"

	"github.com/mosaicnetworks/graphshare/src/common"
	"github.com/pion/webrtc/v2"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOfferAnswer(t *testing.T) {
	fs := afero.NewMemMapFs()
	logger := common.NewTestEntry(t, common.TestLogLevel)

	alice, err := NewSignal(fs, "/sdp", "alice", 2*time.Second, logger)
	require.NoError(t, err)
	defer alice.Close()

	bob, err := NewSignal(fs, "/sdp", "bob", 2*time.Second, logger)
	require.NoError(t, err)
	defer bob.Close()

	require.NoError(t, bob.Listen())

	go func() {
		for promise := range bob.Consumer() {
			promise.Respond(&webrtc.SessionDescription{
				Type: webrtc.SDPTypeAnswer,
				SDP:  "answer to " + promise.From + ": " + promise.Offer.SDP,
			}, nil)
		}
	}()

	for _, sdp := range []string{"first", "second"} {
		answer, err := alice.Offer("bob", webrtc.SessionDescription{
			Type: webrtc.SDPTypeOffer,
			SDP:  sdp,
		})
		require.NoError(t, err)
		assert.Equal(t, "answer to alice: "+sdp, answer.SDP)

		// modification times of back-to-back offers may be equal
		time.Sleep(20 * time.Millisecond)
	}
}

func TestOfferTimeout(t *testing.T) {
	fs := afero.NewMemMapFs()
	logger := common.NewTestEntry(t, common.TestLogLevel)

	alice, err := NewSignal(fs, "/sdp", "alice", 200*time.Millisecond, logger)
	require.NoError(t, err)
	defer alice.Close()

	_, err = alice.Offer("nobody", webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "x"})
	assert.Error(t, err)
}

func TestInvalidID(t *testing.T) {
	_, err := NewSignal(afero.NewMemMapFs(), "/sdp", "a_b", time.Second, nil)
	assert.Error(t, err)
}
