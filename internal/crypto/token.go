// internal/crypto/token.go
package crypto

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"time"

	"golang.org/x/crypto/chacha20"
)

const (
	// AuthPeriod bounds the validity window of an auth token. The verifier
	// tries the adjacent periods too, so up to one full period of clock
	// skew is tolerated in either direction.
	AuthPeriod = 30 * time.Second

	// InvitePeriod keys invitation tokens. Coarser than AuthPeriod because
	// invitations are pasted by hand. No password is mixed in: an
	// invitation is a convenience token, not a security boundary.
	InvitePeriod = 500 * time.Second

	authMarker = "OKYOUARECORRECT"
)

// PeriodKey derives a 32-byte key purely from the current time period:
// big-endian bytes of unix(t)/period tiled to 32 bytes.
func PeriodKey(t time.Time, period time.Duration) [KeySize]byte {
	id := t.Unix() / int64(period/time.Second)
	var raw [8]byte
	binary.BigEndian.PutUint64(raw[:], uint64(id))
	var key [KeySize]byte
	for i := range key {
		key[i] = raw[i%len(raw)]
	}
	return key
}

// InviteKey is the period key used for invitation tokens.
func InviteKey(t time.Time) [KeySize]byte {
	return PeriodKey(t, InvitePeriod)
}

// layerSeal is one layer of the auth token: a random 16-byte salt is mixed
// into the layer key via HMAC-SHA256 to produce the actual sub-key, then
// ChaCha20 with an all-zero nonce encrypts the data. The salt prefix makes
// the ciphertext non-deterministic per call even for identical inputs.
func layerSeal(data []byte, key [KeySize]byte) ([]byte, error) {
	var salt [SaltSize]byte
	if _, err := rand.Read(salt[:]); err != nil {
		return nil, err
	}
	out := make([]byte, SaltSize+len(data))
	copy(out, salt[:])
	c, err := chacha20.NewUnauthenticatedCipher(layerSubKey(key, salt[:]), make([]byte, NonceSize))
	if err != nil {
		return nil, err
	}
	c.XORKeyStream(out[SaltSize:], data)
	return out, nil
}

func layerOpen(data []byte, key [KeySize]byte) ([]byte, bool) {
	if len(data) < SaltSize {
		return nil, false
	}
	c, err := chacha20.NewUnauthenticatedCipher(layerSubKey(key, data[:SaltSize]), make([]byte, NonceSize))
	if err != nil {
		return nil, false
	}
	out := make([]byte, len(data)-SaltSize)
	c.XORKeyStream(out, data[SaltSize:])
	return out, true
}

func layerSubKey(key [KeySize]byte, salt []byte) []byte {
	mac := hmac.New(sha256.New, key[:])
	mac.Write(salt)
	return mac.Sum(nil)
}

// SealInvite encrypts an invitation payload under the current invite period
// key: nonce[12] || ChaCha20 ciphertext. Confidentiality rests entirely on
// the time window; see InvitePeriod.
func SealInvite(payload []byte, now time.Time) ([]byte, error) {
	var nonce [NonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, err
	}
	key := InviteKey(now)
	c, err := chacha20.NewUnauthenticatedCipher(key[:], nonce[:])
	if err != nil {
		return nil, err
	}
	out := make([]byte, NonceSize+len(payload))
	copy(out, nonce[:])
	c.XORKeyStream(out[NonceSize:], payload)
	return out, nil
}

// OpenInvite reverses SealInvite for the current period. A token from an
// elapsed window decrypts to garbage rather than failing here; the caller
// detects that when parsing the payload.
func OpenInvite(raw []byte, now time.Time) ([]byte, bool) {
	if len(raw) < NonceSize {
		return nil, false
	}
	key := InviteKey(now)
	c, err := chacha20.NewUnauthenticatedCipher(key[:], raw[:NonceSize])
	if err != nil {
		return nil, false
	}
	out := make([]byte, len(raw)-NonceSize)
	c.XORKeyStream(out, raw[NonceSize:])
	return out, true
}

// GenerateAuthToken produces an ephemeral proof of knowledge of the server
// password: a fixed marker sealed under the password hash, re-sealed under
// the current period key, base64 encoded.
func GenerateAuthToken(password string, now time.Time) (string, error) {
	return GenerateAuthTokenFromHash(HashPassword(password), now)
}

// GenerateAuthTokenFromHash is the invitation entry point, where only the
// password hash is known.
func GenerateAuthTokenFromHash(hash TransportKey, now time.Time) (string, error) {
	inner, err := layerSeal([]byte(authMarker), [KeySize]byte(hash))
	if err != nil {
		return "", err
	}
	outer, err := layerSeal(inner, PeriodKey(now, AuthPeriod))
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(outer), nil
}

// VerifyAuthToken peels the period layer for now-period, now and now+period,
// then the password layer, and accepts if the marker is recovered for any
// of the three.
func VerifyAuthToken(token string, hash TransportKey, now time.Time) bool {
	raw, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return false
	}
	for _, delta := range []time.Duration{-AuthPeriod, 0, AuthPeriod} {
		inner, ok := layerOpen(raw, PeriodKey(now.Add(delta), AuthPeriod))
		if !ok {
			continue
		}
		plain, ok := layerOpen(inner, [KeySize]byte(hash))
		if ok && string(plain) == authMarker {
			return true
		}
	}
	return false
}
