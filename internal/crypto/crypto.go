// internal/crypto/crypto.go
package crypto

import (
	"crypto/hmac"
	"crypto/md5"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"golang.org/x/crypto/chacha20"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// -----------------------------------------------------------------------------
// Crypto stack, fixed suite:
// - transport frames: HKDF-SHA256 per-message key + ChaCha20-Poly1305
// - room frames: ChaCha20 (unauthenticated, relies on the transport layer
//   for in-transit integrity)
// - credentials: MD5 room digest + HMAC-SHA256 tag
// -----------------------------------------------------------------------------

const (
	SaltSize  = 16
	NonceSize = chacha20poly1305.NonceSize // 12
	KeySize   = chacha20poly1305.KeySize   // 32
	TagSize   = chacha20poly1305.Overhead  // 16

	hkdfInfo         = "enc"
	credentialMarker = "Hello"

	// RoomPrefix marks a room-sealed payload. Lines without it are treated
	// as already-plaintext.
	RoomPrefix = "ENC:"
)

var ErrFrameRejected = errors.New("transport frame rejected")

// TransportKey is the 32-byte hash of the server password. It is derived
// once at startup and passed by value into every seal/open call; there is
// no process-wide key state.
type TransportKey [32]byte

func HashPassword(password string) TransportKey {
	return sha256.Sum256([]byte(password))
}

func (k TransportKey) String() string {
	return "TransportKey{REDACTED}"
}

func (k TransportKey) GoString() string {
	return "crypto.TransportKey{REDACTED}"
}

// frameKey expands the transport key into a one-time 32-byte frame key.
// Every frame carries a fresh salt, so no two frames share a key.
func (k TransportKey) frameKey(salt []byte) ([]byte, error) {
	key := make([]byte, KeySize)
	r := hkdf.New(sha256.New, k[:], salt, []byte(hkdfInfo))
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, err
	}
	return key, nil
}

// Seal encrypts plain into a transport frame:
// base64(salt[16] || nonce[12] || ciphertext+tag).
func (k TransportKey) Seal(plain string) (string, error) {
	var head [SaltSize + NonceSize]byte
	if _, err := rand.Read(head[:]); err != nil {
		return "", err
	}
	salt := head[:SaltSize]
	nonce := head[SaltSize:]
	key, err := k.frameKey(salt)
	if err != nil {
		return "", err
	}
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return "", err
	}
	ct := aead.Seal(nil, nonce, []byte(plain), nil)
	out := make([]byte, 0, len(head)+len(ct))
	out = append(out, head[:]...)
	out = append(out, ct...)
	return base64.StdEncoding.EncodeToString(out), nil
}

// Open reverses Seal. It fails hard on malformed frames and on integrity
// tag mismatch; this is the only layer that authenticates, so callers must
// not ignore the error for control-plane lines.
func (k TransportKey) Open(line string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(line)
	if err != nil {
		return "", fmt.Errorf("%w: not base64", ErrFrameRejected)
	}
	if len(raw) < SaltSize+NonceSize+TagSize {
		return "", fmt.Errorf("%w: frame too short", ErrFrameRejected)
	}
	salt := raw[:SaltSize]
	nonce := raw[SaltSize : SaltSize+NonceSize]
	ct := raw[SaltSize+NonceSize:]
	key, err := k.frameKey(salt)
	if err != nil {
		return "", err
	}
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return "", err
	}
	plain, err := aead.Open(nil, nonce, ct, nil)
	if err != nil {
		return "", fmt.Errorf("%w: tag mismatch", ErrFrameRejected)
	}
	return string(plain), nil
}

// RoomKey is the per-room stream-cipher key context. The 16-byte MD5 digest
// of roomID+password is kept alongside the expanded 32-byte key because the
// credential tag is keyed by the digest, not the expanded key.
//
// MD5 here gates a casual shared-room secret, not the transport trust
// boundary; collision resistance is not required.
type RoomKey struct {
	digest [md5.Size]byte
	key    [KeySize]byte
}

func DeriveRoomKey(roomID, password string) RoomKey {
	var k RoomKey
	k.digest = md5.Sum([]byte(roomID + password))
	copy(k.key[:md5.Size], k.digest[:])
	copy(k.key[md5.Size:], k.digest[:])
	return k
}

func (k RoomKey) String() string {
	return "RoomKey{REDACTED}"
}

func (k RoomKey) GoString() string {
	return "crypto.RoomKey{REDACTED}"
}

// CredentialTag proves knowledge of the room password without transmitting
// it. Deterministic: the same room id and password always yield the same
// tag, so independent clients agree without a server-mediated exchange.
// It is compared by exact equality at join time.
func (k RoomKey) CredentialTag() string {
	mac := hmac.New(sha256.New, k.digest[:])
	mac.Write([]byte(credentialMarker))
	return hex.EncodeToString(mac.Sum(nil))
}

// Seal wraps plain as "ENC:" + base64(nonce[12] || ciphertext). The cipher
// is unauthenticated ChaCha20; tamper detection in transit comes from the
// outer transport layer.
func (k RoomKey) Seal(plain string) string {
	var nonce [NonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		// rand.Read only fails when the platform CSPRNG is broken.
		panic(err)
	}
	c, err := chacha20.NewUnauthenticatedCipher(k.key[:], nonce[:])
	if err != nil {
		panic(err)
	}
	buf := make([]byte, NonceSize+len(plain))
	copy(buf, nonce[:])
	c.XORKeyStream(buf[NonceSize:], []byte(plain))
	return RoomPrefix + base64.StdEncoding.EncodeToString(buf)
}

// Open strips the "ENC:" prefix and decrypts. Lines without the prefix, and
// lines that fail to decode, are returned unchanged with ok=false: server
// control lines never carry this layer and must pass through.
func (k RoomKey) Open(line string) (plain string, ok bool) {
	encoded, found := strings.CutPrefix(line, RoomPrefix)
	if !found {
		return line, false
	}
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil || len(raw) < NonceSize {
		return line, false
	}
	c, err := chacha20.NewUnauthenticatedCipher(k.key[:], raw[:NonceSize])
	if err != nil {
		return line, false
	}
	buf := make([]byte, len(raw)-NonceSize)
	c.XORKeyStream(buf, raw[NonceSize:])
	if !utf8.Valid(buf) {
		return line, false
	}
	return string(buf), true
}
