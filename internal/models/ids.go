package models

import (
	"strings"

	"github.com/google/uuid"
)

// idNamespace scopes name-based IDs so the same finding keeps its ID
// across runs over the same data.
var idNamespace = uuid.MustParse("6f1c1d2e-8c52-4f7e-9a0b-3d3f5c1e2a47")

// StableID derives a deterministic UUID from a kind and its key parts.
func StableID(kind string, parts ...string) string {
	name := kind + ":" + strings.Join(parts, "|")
	return uuid.NewSHA1(idNamespace, []byte(name)).String()
}
