package cmn

import (
	"math/rand"
	"sync"

	"github.com/teris-io/shortid"
	"go.uber.org/atomic"
)

// Alphabet for generating tie-breaker suffixes, same role as the teacher's
// uuidABC: atomic-write temp files need a short, filename-safe, collision
// resistant suffix (fs/content.go's WorkfileContentResolver.GenUniqueFQN
// appends one the same way). len(tieABC) > 0x3f so GenTie()'s bit masks
// always index in range.
const tieABC = "-5nZJDft6LuzsjGNpPwY7rQa39vehq4i1cV2FROo8yHSlC0BUEdWbIxMmTgKXAk_"

var (
	sidOnce sync.Once
	sid     *shortid.Shortid
	rtie    atomic.Int32
)

// InitShortID seeds the UUID generator once, at process startup.
func InitShortID(seed uint64) {
	sidOnce.Do(func() {
		sid = shortid.MustNew(4 /*worker*/, tieABC, seed)
	})
}

// GenUUID generates a unique, human-readable asset-record ID (used by the
// persistence store for primary keys that aren't the numeric AssetId).
func GenUUID() string {
	if sid == nil {
		InitShortID(uint64(rand.Int63()))
	}
	uuid := sid.MustGenerate()
	var h, t string
	if !isAlpha(uuid[0]) {
		h = string(rune('A' + rand.Int()%26))
	}
	if c := uuid[len(uuid)-1]; c == '-' || c == '_' {
		t = string(rune('a' + rand.Int()%26))
	}
	return h + uuid + t
}

func isAlpha(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

// GenTie returns a short, monotonically-varying suffix used to make
// temp-file names for atomic disk-cache writes collision-free across
// concurrent writers within the same process (grounded on
// fs/content.go's tieBreaker usage and cmn/jsp/file.go's
// `tmp := filepath + ".tmp." + cos.GenTie()`).
func GenTie() string {
	tie := rtie.Add(1)
	b0 := tieABC[tie&0x3f]
	b1 := tieABC[-tie&0x3f]
	b2 := tieABC[(tie>>2)&0x3f]
	return string([]byte{b0, b1, b2})
}
