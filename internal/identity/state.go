package identity

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"time"

	"github.com/gorilla/securecookie"
)

const (
	StateCookieName = "calibrate_oauth_state"
	StateTTL        = 10 * time.Minute
)

var ErrStateMismatch = errors.New("oauth state mismatch")

// StateCodec signs and encrypts the OAuth state so the callback can check it
// without server-side storage.
type StateCodec struct {
	sc *securecookie.SecureCookie
}

// NewStateCodec uses the given keys, or random ones when hashKey is empty.
// Random keys do not survive a restart, which only costs in-flight sign-ins.
func NewStateCodec(hashKey, blockKey []byte) *StateCodec {
	if len(hashKey) == 0 {
		hashKey = securecookie.GenerateRandomKey(64)
		blockKey = securecookie.GenerateRandomKey(32)
	}
	if len(blockKey) == 0 {
		blockKey = nil
	}
	sc := securecookie.New(hashKey, blockKey)
	sc.MaxAge(int(StateTTL.Seconds()))
	return &StateCodec{sc: sc}
}

// Issue returns a fresh state and the cookie value that carries it.
func (c *StateCodec) Issue() (state string, cookieValue string, err error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", "", err
	}
	state = base64.RawURLEncoding.EncodeToString(b)
	cookieValue, err = c.sc.Encode(StateCookieName, state)
	if err != nil {
		return "", "", err
	}
	return state, cookieValue, nil
}

// Verify checks that state is the one carried by cookieValue.
func (c *StateCodec) Verify(cookieValue, state string) error {
	if cookieValue == "" || state == "" {
		return ErrStateMismatch
	}
	var stored string
	if err := c.sc.Decode(StateCookieName, cookieValue, &stored); err != nil {
		return errors.Join(ErrStateMismatch, err)
	}
	if subtle.ConstantTimeCompare([]byte(stored), []byte(state)) != 1 {
		return ErrStateMismatch
	}
	return nil
}
