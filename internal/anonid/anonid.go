// Package anonid mints the public anonymous identifiers graders see in
// place of submitter identities. Identifiers are scoped per contest-year;
// the store's unique index is the final arbiter and callers retry on
// insert conflicts.
package anonid

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultPrefix is used when the deployment does not configure one.
	DefaultPrefix = "COPY"

	maxAttempts = 10

	alphabet = "23456789ABCDEFGHJKLMNPQRSTUVWXYZ" // no 0/O/1/I
	fragLen  = 6
)

// ExistsFunc reports whether an identifier is already taken for a
// contest-year. A store-backed implementation queries the unique index.
type ExistsFunc func(ctx context.Context, contestID, id string) (bool, error)

type Generator struct {
	prefix string
	exists ExistsFunc
	now    func() time.Time
}

func New(prefix string, exists ExistsFunc) *Generator {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Generator{prefix: prefix, exists: exists, now: time.Now}
}

// Generate returns a fresh identifier of the form PREFIX-YEAR-XXXXXX.
// It tries up to 10 random candidates against the exists check, then falls
// back to a UUID-derived value that cannot collide in practice. It never
// fails permanently; only the exists check itself can surface an error.
func (g *Generator) Generate(ctx context.Context, contestID string, year int) (string, error) {
	for i := 0; i < maxAttempts; i++ {
		id := fmt.Sprintf("%s-%d-%s", g.prefix, year, g.fragment())
		taken, err := g.exists(ctx, contestID, id)
		if err != nil {
			return "", fmt.Errorf("anonid: uniqueness check: %w", err)
		}
		if !taken {
			return id, nil
		}
	}
	// Monotonically-unique fallback: UUID collapsed to the same shape.
	u := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	return fmt.Sprintf("%s-%d-%s", g.prefix, year, u[:12]), nil
}

// fragment mixes a time-derived digit pair with random alphabet picks so
// identifiers stay human-readable over the phone.
func (g *Generator) fragment() string {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		// crypto/rand never fails on supported platforms; fall back to the clock
		binary.BigEndian.PutUint64(buf[:], uint64(g.now().UnixNano()))
	}
	sec := g.now().Unix()
	b := make([]byte, 0, fragLen)
	b = append(b, alphabet[sec%int64(len(alphabet))])
	for i := 0; len(b) < fragLen; i++ {
		b = append(b, alphabet[int(buf[i])%len(alphabet)])
	}
	return string(b)
}
