package ids

import (
	"strings"

	"github.com/google/uuid"
)

// New returns a fresh 32-character lowercase hex identifier.
func New() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
