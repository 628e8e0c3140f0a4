package reward

import (
	crand "crypto/rand"
	"encoding/binary"
	"math/big"
	"math/rand/v2"
	"sync"
)

// Roller is the randomness source of every draw.
type Roller interface {
	// Uniform returns a value in [lo, hi].
	Uniform(lo, hi float64) float64
	// Intn returns a value in [0, n). n must be positive.
	Intn(n int) int
}

// CryptoRoller draws from crypto/rand.
type CryptoRoller struct{}

// NewCryptoRoller returns the production roller.
func NewCryptoRoller() CryptoRoller {
	return CryptoRoller{}
}

func (CryptoRoller) float() float64 {
	var b [8]byte
	if _, err := crand.Read(b[:]); err != nil {
		panic("crypto/rand unavailable: " + err.Error())
	}
	// 53 random bits scaled into [0, 1).
	return float64(binary.LittleEndian.Uint64(b[:])>>11) / (1 << 53)
}

// Uniform implements Roller.
func (r CryptoRoller) Uniform(lo, hi float64) float64 {
	return lo + (hi-lo)*r.float()
}

// Intn implements Roller. The draw is unbiased for every n.
func (r CryptoRoller) Intn(n int) int {
	v, err := crand.Int(crand.Reader, big.NewInt(int64(n)))
	if err != nil {
		panic("crypto/rand unavailable: " + err.Error())
	}
	return int(v.Int64())
}

// SeededRoller is a reproducible roller for simulations and tests.
type SeededRoller struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewSeededRoller creates a roller from a fixed seed.
func NewSeededRoller(seed uint64) *SeededRoller {
	return &SeededRoller{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// Uniform implements Roller.
func (r *SeededRoller) Uniform(lo, hi float64) float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return lo + (hi-lo)*r.rng.Float64()
}

// Intn implements Roller.
func (r *SeededRoller) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rng.IntN(n)
}
