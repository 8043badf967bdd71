package idgen

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"hash/fnv"
	mrand "math/rand"

	"github.com/sqids/sqids-go"
)

// DefaultAlphabet only contains URL-safe characters
const DefaultAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

const minLength = 7

// Generator produces short public image ids. Ids are random, not derived from content.
type Generator struct {
	encoder *sqids.Sqids
}

// New builds a generator. A non-empty salt shuffles the alphabet so ids from different
// deployments do not share a shape.
func New(salt string) (*Generator, error) {
	alphabet := DefaultAlphabet
	if salt != "" {
		alphabet = shuffleAlphabet(salt)
	}

	s, err := sqids.New(sqids.Options{
		Alphabet:  alphabet,
		MinLength: minLength,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create sqids encoder: %w", err)
	}

	return &Generator{encoder: s}, nil
}

// New returns a fresh id
func (g *Generator) New() (string, error) {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}

	// 48 random bits
	n := binary.BigEndian.Uint64(buf[:]) >> 16

	id, err := g.encoder.Encode([]uint64{n})
	if err != nil {
		return "", fmt.Errorf("failed to encode id: %w", err)
	}

	return id, nil
}

func shuffleAlphabet(salt string) string {
	h := fnv.New64a()
	h.Write([]byte(salt))

	r := mrand.New(mrand.NewSource(int64(h.Sum64())))

	alphabet := []rune(DefaultAlphabet)
	r.Shuffle(len(alphabet), func(i, j int) {
		alphabet[i], alphabet[j] = alphabet[j], alphabet[i]
	})

	return string(alphabet)
}
