package game

import (
	"context"
	"crypto/rand"
	"errors"
)

// Room codes are short lowercase hex strings: unambiguous to read out on
// stream and cheap to type on a phone.
const (
	gameCodeAlphabet = "0123456789abcdef"
	gameCodeLength   = 6

	maxCodeAttempts = 10
)

func newGameCode() string {
	buf := make([]byte, gameCodeLength)
	if _, err := rand.Read(buf); err != nil {
		return "000000"
	}
	for i := range buf {
		buf[i] = gameCodeAlphabet[int(buf[i])%len(gameCodeAlphabet)]
	}
	return string(buf)
}

// generateGameCode draws codes until one does not collide with any existing
// game row.
func (e *Engine) generateGameCode(ctx context.Context) (string, error) {
	for i := 0; i < maxCodeAttempts; i++ {
		code := newGameCode()
		exists, err := e.store.GameCodeExists(ctx, code)
		if err != nil {
			return "", err
		}
		if !exists {
			return code, nil
		}
	}
	return "", errors.New("could not generate a unique game code")
}
