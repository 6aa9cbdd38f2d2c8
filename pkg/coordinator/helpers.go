package coordinator

import (
	"encoding/hex"

	"github.com/google/uuid"
)

func parseDraftID(s string) (uuid.UUID, error) {
	return uuid.Parse(s)
}

func hexOrEmpty(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	return hex.EncodeToString(b)
}
