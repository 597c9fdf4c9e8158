// Package dedupe provides frame deduplication for AX.25 receivers.
//
// The same frame is commonly heard several times: once direct and again from
// each digipeater that repeats it. Repeaters rewrite the relay path (setting
// the has-been-repeated bit) but leave the rest of the frame untouched, so
// frames are identified by a BLAKE2b fingerprint of everything except the
// relay path. Recently seen fingerprints are kept in a circular buffer.
package dedupe

import (
	"bytes"
	"io"

	"github.com/kabili207/ax25-go/core/codec"
	"golang.org/x/crypto/blake2b"
)

const (
	// DefaultMaxFrameHashes is the default capacity of the fingerprint table.
	DefaultMaxFrameHashes = 128
	// FrameHashSize is the BLAKE2b digest size used for fingerprints.
	FrameHashSize = 8
)

// FrameDeduplicator tracks recently seen frames to prevent processing
// duplicates. It is not safe for concurrent use.
type FrameDeduplicator struct {
	hashes    []byte // circular buffer of FrameHashSize-byte hashes
	maxHashes int
	nextHash  int
	used      int
}

// New creates a new FrameDeduplicator with the default buffer size.
func New() *FrameDeduplicator {
	return NewWithCapacity(DefaultMaxFrameHashes)
}

// NewWithCapacity creates a new FrameDeduplicator holding up to maxHashes
// fingerprints. Values below 1 are raised to 1.
func NewWithCapacity(maxHashes int) *FrameDeduplicator {
	if maxHashes < 1 {
		maxHashes = 1
	}
	return &FrameDeduplicator{
		hashes:    make([]byte, maxHashes*FrameHashSize),
		maxHashes: maxHashes,
	}
}

// HasSeen checks if a frame has been seen before. If not, it records the
// frame and returns false. If it has been seen, it returns true.
func (d *FrameDeduplicator) HasSeen(frame *codec.Frame) bool {
	hash := CalculateFrameHash(frame)
	if d.contains(hash) {
		return true
	}
	d.insert(hash)
	return false
}

// Contains reports whether a frame is in the table without recording it.
func (d *FrameDeduplicator) Contains(frame *codec.Frame) bool {
	return d.contains(CalculateFrameHash(frame))
}

// Insert records a frame, overwriting the oldest fingerprint when full.
func (d *FrameDeduplicator) Insert(frame *codec.Frame) {
	d.insert(CalculateFrameHash(frame))
}

func (d *FrameDeduplicator) contains(hash [FrameHashSize]byte) bool {
	for i := range d.used {
		offset := i * FrameHashSize
		if bytes.Equal(hash[:], d.hashes[offset:offset+FrameHashSize]) {
			return true
		}
	}
	return false
}

func (d *FrameDeduplicator) insert(hash [FrameHashSize]byte) {
	offset := d.nextHash * FrameHashSize
	copy(d.hashes[offset:offset+FrameHashSize], hash[:])
	d.nextHash = (d.nextHash + 1) % d.maxHashes
	if d.used < d.maxHashes {
		d.used++
	}
}

// Len returns the number of fingerprints currently held.
func (d *FrameDeduplicator) Len() int {
	return d.used
}

// Clear resets the deduplicator, forgetting all previously seen frames.
func (d *FrameDeduplicator) Clear() {
	clear(d.hashes)
	d.nextHash = 0
	d.used = 0
}

// CalculateFrameHash computes the deduplication fingerprint for a frame:
// BLAKE2b-64 over source, destination, control, protocol id and payload.
func CalculateFrameHash(frame *codec.Frame) [FrameHashSize]byte {
	// Only fails for sizes outside 1..64 or keys over 64 bytes.
	h, _ := blake2b.New(FrameHashSize, nil)
	writeAddress(h, frame.Source)
	writeAddress(h, frame.Destination)
	h.Write([]byte{frame.Control})
	if frame.HasPID {
		h.Write([]byte{frame.PID})
	}
	h.Write(frame.Payload)

	var result [FrameHashSize]byte
	copy(result[:], h.Sum(nil))
	return result
}

func writeAddress(w io.Writer, a codec.Address) {
	// Length prefix keeps "AB"+"C" distinct from "A"+"BC".
	w.Write([]byte{byte(len(a.Callsign))})
	w.Write([]byte(a.Callsign))
	w.Write([]byte{a.SSID})
}
