// Package token implements the opaque run capability token.
//
// The token binds {user, day, run_index} and is the sole authorization to
// act on a specific run. It carries no signature: the server compensates
// by re-validating the embedded user against the authenticated caller and
// the embedded day against the live config.
package token

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	ErrMalformedToken = errors.New("malformed run token")
	ErrTokenMismatch  = errors.New("token does not belong to caller")
	ErrStaleToken     = errors.New("token is for a previous day")
)

// Claims is the decoded content of a run token.
type Claims struct {
	UserID   string
	Day      string
	RunIndex int
}

// Encode serializes the claims as base64("user:day:run_index"). Clients
// treat the result as opaque.
func Encode(userID, day string, runIndex int) string {
	raw := fmt.Sprintf("%s:%s:%d", userID, day, runIndex)
	return base64.StdEncoding.EncodeToString([]byte(raw))
}

// Decode parses a token. It fails with ErrMalformedToken unless the
// payload splits into exactly three colon-delimited fields with an integer
// run index.
func Decode(tok string) (Claims, error) {
	raw, err := base64.StdEncoding.DecodeString(tok)
	if err != nil {
		return Claims{}, ErrMalformedToken
	}

	parts := strings.Split(string(raw), ":")
	if len(parts) != 3 {
		return Claims{}, ErrMalformedToken
	}

	runIndex, err := strconv.Atoi(parts[2])
	if err != nil || runIndex < 1 {
		return Claims{}, ErrMalformedToken
	}

	return Claims{UserID: parts[0], Day: parts[1], RunIndex: runIndex}, nil
}

// Verify checks the claims against the authenticated caller and the live
// config day. A foreign user yields ErrTokenMismatch (potential abuse
// signal); a previous day's token yields ErrStaleToken.
func (c Claims) Verify(userID, day string) error {
	if c.UserID != userID {
		return ErrTokenMismatch
	}
	if c.Day != day {
		return ErrStaleToken
	}
	return nil
}
