package services

import (
	"crypto/rand"
	"fmt"
	"io"
	"strings"
	"time"
)

const (
	orderNumberSuffixLength  = 5
	orderNumberSuffixCharset = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
)

// OrderNumberGenerator mints human-readable order numbers of the form
// {yyyyMMddHH}{userID}{5 random base-36 characters}. The random suffix keeps
// numbers from colliding when one user creates several orders within the same
// hour; callers still verify uniqueness on insert and regenerate on conflict.
type OrderNumberGenerator struct {
	entropy io.Reader
}

// NewOrderNumberGenerator constructs a generator. A nil entropy source falls
// back to crypto/rand.
func NewOrderNumberGenerator(entropy io.Reader) *OrderNumberGenerator {
	if entropy == nil {
		entropy = rand.Reader
	}
	return &OrderNumberGenerator{entropy: entropy}
}

// Generate mints an order number for the user at the given time.
func (g *OrderNumberGenerator) Generate(at time.Time, userID string) (string, error) {
	suffix, err := g.randomSuffix()
	if err != nil {
		return "", fmt.Errorf("order number suffix: %w", err)
	}
	return at.UTC().Format("2006010215") + strings.TrimSpace(userID) + suffix, nil
}

func (g *OrderNumberGenerator) randomSuffix() (string, error) {
	buf := make([]byte, orderNumberSuffixLength)
	if _, err := io.ReadFull(g.entropy, buf); err != nil {
		return "", err
	}
	out := make([]byte, orderNumberSuffixLength)
	for i, b := range buf {
		out[i] = orderNumberSuffixCharset[int(b)%len(orderNumberSuffixCharset)]
	}
	return string(out), nil
}
