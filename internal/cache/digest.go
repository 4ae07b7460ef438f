package cache

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
)

// Digest identifies one formatter input.
type Digest [sha256.Size]byte

func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}

// Key derives the cache key of a perltidy run: H(text || executable ||
// rcPath || rc), where rcPath is the configuration file perltidy loads. Each part is length-prefixed so boundaries cannot shift.
func Key(text, executable, rcPath string, rc []byte) Digest {
	h := sha256.New()
	var n [8]byte
	for _, part := range [][]byte{[]byte(text), []byte(executable), []byte(rcPath), rc} {
		binary.BigEndian.PutUint64(n[:], uint64(len(part)))
		_, _ = h.Write(n[:])
		_, _ = h.Write(part)
	}
	var out Digest
	copy(out[:], h.Sum(nil))
	return out
}
