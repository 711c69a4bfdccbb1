package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"

	"github.com/pkg/errors"
	"golang.org/x/crypto/scrypt"
)

const (
	maxPasswordLength = 1024
	saltLength        = 16
)

// Params is stored as JSON next to each hash so verification keeps working
// after the deployment-wide defaults change.
type Params struct {
	N      int `json:"N"`
	R      int `json:"r"`
	P      int `json:"p"`
	KeyLen int `json:"keylen"`
}

// Hasher derives and verifies scrypt password hashes. The work factor is
// fixed at construction from config; per-record params always win on verify.
type Hasher struct {
	params Params
}

func NewHasher(n, r, p, keyLen int) (*Hasher, error) {
	if err := checkParams(Params{N: n, R: r, P: p, KeyLen: keyLen}); err != nil {
		return nil, err
	}
	return &Hasher{params: Params{N: n, R: r, P: p, KeyLen: keyLen}}, nil
}

// Hash derives a key from password with a fresh random salt. It returns the
// salt, the derived key (both base64) and the params used, JSON-encoded.
func (h *Hasher) Hash(password string) (saltB64, hashB64, paramsJSON string, err error) {
	if len(password) > maxPasswordLength {
		return "", "", "", errors.New("password too long")
	}
	salt := make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", "", "", errors.Wrap(err, "generate salt")
	}
	key, err := scrypt.Key([]byte(password), salt, h.params.N, h.params.R, h.params.P, h.params.KeyLen)
	if err != nil {
		return "", "", "", errors.Wrap(err, "derive key")
	}
	pj, err := json.Marshal(h.params)
	if err != nil {
		return "", "", "", errors.Wrap(err, "marshal params")
	}
	return base64.StdEncoding.EncodeToString(salt),
		base64.StdEncoding.EncodeToString(key),
		string(pj), nil
}

// Verify re-derives the key using the stored salt and params and compares it
// against the stored hash in constant time. Malformed or out-of-bounds
// stored material verifies as false, not as an error the caller could
// distinguish from a wrong password.
func (h *Hasher) Verify(password, saltB64, hashB64, paramsJSON string) (bool, error) {
	if len(password) > maxPasswordLength {
		return false, nil
	}
	var p Params
	if err := json.Unmarshal([]byte(paramsJSON), &p); err != nil {
		return false, nil
	}
	if err := checkParams(p); err != nil {
		return false, nil
	}
	salt, err := base64.StdEncoding.DecodeString(saltB64)
	if err != nil || len(salt) == 0 {
		return false, nil
	}
	stored, err := base64.StdEncoding.DecodeString(hashB64)
	if err != nil || len(stored) != p.KeyLen {
		return false, nil
	}
	derived, err := scrypt.Key([]byte(password), salt, p.N, p.R, p.P, p.KeyLen)
	if err != nil {
		return false, nil
	}
	return subtle.ConstantTimeCompare(derived, stored) == 1, nil
}

func checkParams(p Params) error {
	if p.N < 1<<10 || p.N > 1<<20 || p.N&(p.N-1) != 0 {
		return errors.New("scrypt N must be a power of two between 1024 and 1048576")
	}
	if p.R <= 0 || p.R > 32 {
		return errors.New("scrypt r must be between 1 and 32")
	}
	if p.P <= 0 || p.P > 16 {
		return errors.New("scrypt p must be between 1 and 16")
	}
	if p.KeyLen < 16 || p.KeyLen > 256 {
		return errors.New("scrypt keylen must be between 16 and 256")
	}
	return nil
}
