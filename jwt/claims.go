package jwt

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the session token payload. Subject is the canonical user id.
type Claims struct {
	Phone string `json:"phone,omitempty"`
	jwt.RegisteredClaims
}

// UserID returns the canonical user identity.
func (c *Claims) UserID() string {
	return c.Subject
}

// legacyIdentity lists identity spellings found in tokens minted before sub
// became canonical, in lookup order.
type legacyIdentity struct {
	ID     any `json:"id"`
	UserID any `json:"userId"`
	Mongo  any `json:"_id"`
}

// UnmarshalJSON decodes the payload and folds a legacy identity field into
// Subject when sub is absent.
func (c *Claims) UnmarshalJSON(data []byte) error {
	type plain Claims
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*c = Claims(p)
	if strings.TrimSpace(c.Subject) != "" {
		return nil
	}

	var legacy legacyIdentity
	if err := json.Unmarshal(data, &legacy); err != nil {
		return nil
	}
	for _, v := range []any{legacy.ID, legacy.UserID, legacy.Mongo} {
		if id := identityString(v); id != "" {
			c.Subject = id
			return nil
		}
	}
	return nil
}

func identityString(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return ""
	}
}
