package orders

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
)

const codePrefix = "PED-"

// GenerateCode returns a human-facing order code: the PED- prefix followed by
// twelve upper-case hex characters. Collisions are possible and handled by the
// caller retrying the insert.
func GenerateCode() (string, error) {
	buf := make([]byte, 6)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating order code: %w", err)
	}
	return codePrefix + strings.ToUpper(hex.EncodeToString(buf)), nil
}
