package ident

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"hash"
	"math"
	"strconv"
)

// Domain prefixes for content-addressed identity.
// Version suffix enables future algorithm migration.
const (
	DomainRun     = "tmaxfit/run/v1"
	DomainDataset = "tmaxfit/dataset/v1"
	DomainDraws   = "tmaxfit/draws/v1"
)

// hashWithDomain computes SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data)
// The null byte separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := NewHasher(domain)
	h.h.Write(data)
	return h.Sum()
}

// Hasher streams fixed-width binary values into a domain-separated
// SHA-256. Floats are hashed by their IEEE-754 bits, so two digests match
// only when the values are bit-identical.
type Hasher struct {
	h   hash.Hash
	buf [8]byte
}

// NewHasher starts a hash in the given domain.
func NewHasher(domain string) *Hasher {
	h := &Hasher{h: sha256.New()}
	h.h.Write([]byte(domain))
	h.h.Write([]byte{0x00})
	return h
}

// Uint64 writes v big-endian.
func (h *Hasher) Uint64(v uint64) *Hasher {
	binary.BigEndian.PutUint64(h.buf[:], v)
	h.h.Write(h.buf[:])
	return h
}

// Float64 writes the IEEE-754 bits of v.
func (h *Hasher) Float64(v float64) *Hasher {
	return h.Uint64(math.Float64bits(v))
}

// Bool writes a single byte.
func (h *Hasher) Bool(v bool) *Hasher {
	if v {
		h.h.Write([]byte{1})
	} else {
		h.h.Write([]byte{0})
	}
	return h
}

// Sum returns the hex digest.
func (h *Hasher) Sum() string {
	return hex.EncodeToString(h.h.Sum(nil))
}

// RunKey computes the content-addressed key of a run request: the dataset
// digest plus every RunConfig field. Two requests with the same key must
// produce bit-identical results.
func RunKey(datasetDigest string, seed, chains, tuning, samples uint64) (string, error) {
	// Seeds go in as strings: JSON numbers above 2^53 do not survive
	// every decoder.
	obj := map[string]any{
		"dataset": datasetDigest,
		"seed":    strconv.FormatUint(seed, 10),
		"chains":  chains,
		"tuning":  tuning,
		"samples": samples,
	}
	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("RunKey: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainRun, canonical), nil
}

// DatasetDigest hashes an ordered observation series.
func DatasetDigest(xs, ys []float64) string {
	h := NewHasher(DomainDataset).Uint64(uint64(len(xs)))
	for i := range xs {
		h.Float64(xs[i]).Float64(ys[i])
	}
	return h.Sum()
}
