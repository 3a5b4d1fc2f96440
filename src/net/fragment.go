package net

import (
	"fmt"
	"math"
)

const (
	// bufSize is the size of the buffer used to read DataChannel messages.
	// we need this high buffer size for compatibility with WebRTC
	bufSize = math.MaxUint16

	// fragmentSize is the maximum payload of a single DataChannel message. 16
	// KiB is the largest size that all WebRTC implementations accept.
	fragmentSize = 16 * 1024

	fragmentMore  byte = 0
	fragmentFinal byte = 1
)

// fragment splits a message into DataChannel messages of at most size+1
// bytes. Each one starts with a header byte that tells whether more fragments
// follow. An empty message yields a single final fragment.
func fragment(data []byte, size int) [][]byte {
	var frags [][]byte
	for {
		n := len(data)
		flag := fragmentFinal
		if n > size {
			n = size
			flag = fragmentMore
		}

		frag := make([]byte, n+1)
		frag[0] = flag
		copy(frag[1:], data[:n])
		frags = append(frags, frag)

		data = data[n:]
		if flag == fragmentFinal {
			return frags
		}
	}
}

// reassembler rebuilds messages from in-order fragments.
type reassembler struct {
	buf     []byte
	maxSize int
}

// add consumes a fragment. It returns the complete message when frag is the
// last fragment of a message, and nil otherwise.
func (r *reassembler) add(frag []byte) ([]byte, error) {
	if len(frag) == 0 {
		return nil, fmt.Errorf("empty fragment")
	}

	if r.maxSize > 0 && len(r.buf)+len(frag)-1 > r.maxSize {
		r.buf = nil
		return nil, ErrMessageTooLarge
	}

	switch frag[0] {
	case fragmentMore:
		r.buf = append(r.buf, frag[1:]...)
		return nil, nil
	case fragmentFinal:
		msg := append(r.buf, frag[1:]...)
		r.buf = nil
		if msg == nil {
			msg = []byte{}
		}
		return msg, nil
	default:
		r.buf = nil
		return nil, fmt.Errorf("invalid fragment header %d", frag[0])
	}
}
