package util

import (
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/pkg/errors"
)

const (
	idAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"
	idLength   = 12
)

// GenID returns a fresh url-safe id, probing exists to dodge the (unlikely)
// collision.
func GenID(exists func(string) (bool, error)) (string, error) {
	for retry := 0; retry < 5; retry++ {
		id, err := gonanoid.Generate(idAlphabet, idLength)
		if err != nil {
			return "", errors.Wrap(err, "generate id")
		}
		exist, err := exists(id)
		if err != nil {
			return "", err
		}
		if !exist {
			return id, nil
		}
	}
	return "", errors.New("id collision after 5 retries")
}

// NewID returns a fresh id without a collision probe, for rows keyed by
// server-generated ids that are never guessed (uploads).
func NewID() (string, error) {
	return gonanoid.Generate(idAlphabet, idLength)
}
