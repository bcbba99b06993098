package cache

import (
	"golang.org/x/crypto/blake2b"

	"github.com/libraz/mygramdb-go/internal/core/domain"
)

// fingerprintKey is the static 32-byte key used to keyed-hash canonical
// query strings into cache keys. It need not be secret — the keying only
// exists to make the fingerprint a proper MAC rather than a bare hash.
var fingerprintKey = func() [32]byte {
	var k [32]byte
	copy(k[:], "mygramdb-go result-cache key")
	return k
}()

// Fingerprint computes the 128-bit keyed-hash fingerprint of a canonical
// query string. Two canonical strings that are
// byte-identical always produce the same key.
func Fingerprint(canonical string) domain.CacheKey {
	h, err := blake2b.New(16, fingerprintKey[:])
	if err != nil {
		// blake2b.New only fails for an invalid key length or invalid
		// requested digest size, both fixed constants here.
		panic(err)
	}
	h.Write([]byte(canonical))
	sum := h.Sum(nil)
	var key domain.CacheKey
	copy(key[:], sum)
	return key
}
