package ledger

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"
)

// Identity is a caller-attested owner, author, liker or follower.
type Identity string

// Kind names the record family a key belongs to.
type Kind string

const (
	KindProfile Kind = "profile"
	KindPost    Kind = "post"
)

// Key locates a record. It is always "<kind>:<64 hex chars>".
type Key string

const keyDigestLen = sha256.Size * 2

// domain returns the hash domain for a kind. The version suffix lets the
// derivation change without colliding with keys already on disk.
func domain(kind Kind) string {
	return "social-ledger/" + string(kind) + "/v1"
}

// DeriveKey computes SHA256(domain || 0x00 || len(c0) || c0 || len(c1) || c1 ...)
// where each length is a uvarint. Length prefixes keep ("ab","c") and ("a","bc")
// apart.
func DeriveKey(kind Kind, components ...[]byte) Key {
	h := sha256.New()
	h.Write([]byte(domain(kind)))
	h.Write([]byte{0x00})
	var lenBuf [binary.MaxVarintLen64]byte
	for _, c := range components {
		n := binary.PutUvarint(lenBuf[:], uint64(len(c)))
		h.Write(lenBuf[:n])
		h.Write(c)
	}
	return Key(string(kind) + ":" + hex.EncodeToString(h.Sum(nil)))
}

// ProfileKey is the key of owner's profile.
func ProfileKey(owner Identity) Key {
	return DeriveKey(KindProfile, []byte(owner))
}

// PostKey is the key of the seq-th post written by author, counting from zero.
func PostKey(author Identity, seq uint64) Key {
	var seqBuf [8]byte
	binary.BigEndian.PutUint64(seqBuf[:], seq)
	return DeriveKey(KindPost, []byte(author), seqBuf[:])
}

// Kind reports the record family encoded in the key prefix.
func (k Key) Kind() Kind {
	kind, _, _ := strings.Cut(string(k), ":")
	return Kind(kind)
}

func (k Key) String() string { return string(k) }

// ParseKey validates a key received from outside the process.
func ParseKey(s string) (Key, error) {
	kind, digest, ok := strings.Cut(s, ":")
	if !ok {
		return "", fmt.Errorf("%w: malformed key %q", ErrNotFound, s)
	}
	switch Kind(kind) {
	case KindProfile, KindPost:
	default:
		return "", fmt.Errorf("%w: unknown key kind %q", ErrNotFound, kind)
	}
	if len(digest) != keyDigestLen {
		return "", fmt.Errorf("%w: malformed key %q", ErrNotFound, s)
	}
	if _, err := hex.DecodeString(digest); err != nil {
		return "", fmt.Errorf("%w: malformed key %q", ErrNotFound, s)
	}
	return Key(s), nil
}
