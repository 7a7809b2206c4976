package credential

import (
	"crypto/sha256"
	"encoding/base64"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const (
	obfuscationSalt       = "stella_anki_2025"
	obfuscationIterations = 100000
	obfuscationKeyLen     = 32
)

// DeriveKey derives the at-rest obfuscation key from the installation path.
// The result ties the stored document to one install; it is not a security
// boundary.
func DeriveKey(installPath string) []byte {
	return pbkdf2.Key([]byte(installPath), []byte(obfuscationSalt), obfuscationIterations, obfuscationKeyLen, sha256.New)
}

func xorKeystream(data, key []byte) []byte {
	out := make([]byte, len(data))
	for i := range data {
		out[i] = data[i] ^ key[i%len(key)]
	}
	return out
}

// Obfuscate XORs secret with key and encodes it as URL-safe base64.
func Obfuscate(secret string, key []byte) string {
	if secret == "" || len(key) == 0 {
		return secret
	}
	return base64.URLEncoding.EncodeToString(xorKeystream([]byte(secret), key))
}

// Deobfuscate reverses Obfuscate. Input that does not decode is returned as is.
func Deobfuscate(encoded string, key []byte) string {
	if encoded == "" || len(key) == 0 {
		return encoded
	}
	raw, err := base64.URLEncoding.DecodeString(encoded)
	if err != nil {
		return encoded
	}
	return string(xorKeystream(raw, key))
}

// revealKey returns the plaintext for one stored entry. An entry that does
// not de-obfuscate into something shaped like an API key while already
// looking like one is assumed to be legacy plaintext and kept verbatim.
func revealKey(stored string, key []byte) string {
	plain := Deobfuscate(stored, key)
	if strings.HasPrefix(plain, keyPrefix) || !strings.HasPrefix(stored, keyPrefix) {
		return plain
	}
	return stored
}
