package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	minMemoryKB     uint32 = 8 * 1024
	minSaltLength   uint32 = 16
	minKeyLength    uint32 = 16
	minPassBytes           = 8
	defaultMaxBytes        = 1024
	algorithmID            = "argon2id"
)

var (
	// ErrMalformedHash is returned for strings that are not argon2id PHC hashes.
	ErrMalformedHash = errors.New("malformed password hash")
	// ErrPasswordLength is returned when a plaintext is outside the accepted byte range.
	ErrPasswordLength = errors.New("password length out of range")
)

// Config holds Argon2id cost parameters.
type Config struct {
	Memory           uint32 `yaml:"memory_kb"`
	Time             uint32 `yaml:"time"`
	Parallelism      uint8  `yaml:"parallelism"`
	SaltLength       uint32 `yaml:"salt_length"`
	KeyLength        uint32 `yaml:"key_length"`
	MaxPasswordBytes int    `yaml:"max_password_bytes"`
}

// DefaultConfig returns the production cost parameters.
func DefaultConfig() Config {
	return Config{
		Memory:           64 * 1024,
		Time:             3,
		Parallelism:      2,
		SaltLength:       16,
		KeyLength:        32,
		MaxPasswordBytes: defaultMaxBytes,
	}
}

// Validate reports whether cfg meets the minimum cost floor.
func (c Config) Validate() error {
	switch {
	case c.Memory < minMemoryKB:
		return fmt.Errorf("password memory must be >= %d KB", minMemoryKB)
	case c.Time < 1:
		return errors.New("password time must be >= 1")
	case c.Parallelism < 1:
		return errors.New("password parallelism must be >= 1")
	case c.SaltLength < minSaltLength:
		return fmt.Errorf("password salt length must be >= %d", minSaltLength)
	case c.KeyLength < minKeyLength:
		return fmt.Errorf("password key length must be >= %d", minKeyLength)
	case c.MaxPasswordBytes < 0:
		return errors.New("password max bytes must be >= 0")
	}
	return nil
}

// Hasher produces and checks PHC-encoded Argon2id hashes. It is safe for
// concurrent use.
type Hasher struct {
	config Config
}

type phc struct {
	memory      uint32
	time        uint32
	parallelism uint8
	salt        []byte
	key         []byte
}

// New returns a Hasher for cfg. A zero MaxPasswordBytes selects the default cap.
func New(cfg Config) (*Hasher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.MaxPasswordBytes == 0 {
		cfg.MaxPasswordBytes = defaultMaxBytes
	}
	return &Hasher{config: cfg}, nil
}

// Hash derives a new salted hash of plaintext. Input bytes are used as given,
// without Unicode normalization.
func (h *Hasher) Hash(plaintext string) (string, error) {
	if err := h.checkLength(plaintext); err != nil {
		return "", err
	}

	salt := make([]byte, h.config.SaltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", err
	}
	key := argon2.IDKey([]byte(plaintext), salt, h.config.Time, h.config.Memory, h.config.Parallelism, h.config.KeyLength)

	return encode(phc{
		memory:      h.config.Memory,
		time:        h.config.Time,
		parallelism: h.config.Parallelism,
		salt:        salt,
		key:         key,
	}), nil
}

// Verify reports whether plaintext matches encoded. A malformed hash is an
// error; a mismatch is not.
func (h *Hasher) Verify(plaintext, encoded string) (bool, error) {
	if len(plaintext) > h.config.MaxPasswordBytes {
		return false, ErrPasswordLength
	}
	p, err := decode(encoded)
	if err != nil {
		return false, err
	}
	computed := argon2.IDKey([]byte(plaintext), p.salt, p.time, p.memory, p.parallelism, uint32(len(p.key)))
	return subtle.ConstantTimeCompare(computed, p.key) == 1, nil
}

// NeedsRehash reports whether encoded was produced with weaker or different
// parameters than the Hasher's configuration.
func (h *Hasher) NeedsRehash(encoded string) (bool, error) {
	p, err := decode(encoded)
	if err != nil {
		return false, err
	}
	return h.config.Memory > p.memory ||
		h.config.Time > p.time ||
		h.config.Parallelism > p.parallelism ||
		h.config.KeyLength != uint32(len(p.key)), nil
}

func (h *Hasher) checkLength(plaintext string) error {
	if len(plaintext) < minPassBytes || len(plaintext) > h.config.MaxPasswordBytes {
		return fmt.Errorf("%w: must be %d-%d bytes", ErrPasswordLength, minPassBytes, h.config.MaxPasswordBytes)
	}
	return nil
}

func encode(p phc) string {
	return fmt.Sprintf("$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		algorithmID, argon2.Version, p.memory, p.time, p.parallelism,
		base64.RawStdEncoding.EncodeToString(p.salt),
		base64.RawStdEncoding.EncodeToString(p.key),
	)
}

func decode(encoded string) (phc, error) {
	var p phc
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != algorithmID {
		return p, ErrMalformedHash
	}
	if parts[2] != "v="+strconv.Itoa(argon2.Version) {
		return p, fmt.Errorf("%w: unsupported version %q", ErrMalformedHash, parts[2])
	}
	if err := p.parseParams(parts[3]); err != nil {
		return p, err
	}

	var err error
	if p.salt, err = decodeB64(parts[4]); err != nil || len(p.salt) < int(minSaltLength) {
		return p, fmt.Errorf("%w: bad salt", ErrMalformedHash)
	}
	if p.key, err = decodeB64(parts[5]); err != nil || len(p.key) == 0 {
		return p, fmt.Errorf("%w: bad key", ErrMalformedHash)
	}
	return p, nil
}

func (p *phc) parseParams(s string) error {
	seen := 0
	for _, pair := range strings.Split(s, ",") {
		k, v, ok := strings.Cut(pair, "=")
		if !ok {
			return fmt.Errorf("%w: bad parameter %q", ErrMalformedHash, pair)
		}
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil || n == 0 {
			return fmt.Errorf("%w: bad parameter %q", ErrMalformedHash, pair)
		}
		switch k {
		case "m":
			if n < uint64(minMemoryKB) {
				return fmt.Errorf("%w: memory below floor", ErrMalformedHash)
			}
			p.memory = uint32(n)
		case "t":
			p.time = uint32(n)
		case "p":
			if n > 255 {
				return fmt.Errorf("%w: parallelism out of range", ErrMalformedHash)
			}
			p.parallelism = uint8(n)
		default:
			return fmt.Errorf("%w: unknown parameter %q", ErrMalformedHash, k)
		}
		seen++
	}
	if seen != 3 || p.memory == 0 || p.time == 0 || p.parallelism == 0 {
		return fmt.Errorf("%w: missing parameters", ErrMalformedHash)
	}
	return nil
}

// PHC strings from other tools sometimes carry padding.
func decodeB64(s string) ([]byte, error) {
	return base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
}
