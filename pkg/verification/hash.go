package verification

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/gowebpki/jcs"

	"github.com/goliatone/go-docforge/pkg/catalog"
	"github.com/goliatone/go-docforge/pkg/content"
)

// Hash returns the SHA-256 hex digest of body. Plain text hashes its bytes;
// structured bodies hash their RFC 8785 canonical JSON so key order and
// whitespace do not change the version.
func Hash(body content.Content) (string, error) {
	if body.Kind() == content.KindPlainText {
		return digest([]byte(body.Text())), nil
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("verification: encode content: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("verification: canonicalize content: %w", err)
	}
	return digest(canonical), nil
}

func digest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Eligible is the production gate used at render and listing time: the
// four-part eligibility invariant plus a recomputed content hash that must
// equal the recorded version.
func Eligible(t catalog.Template) bool {
	if !catalog.IsProductionEligible(t) {
		return false
	}
	sum, err := Hash(t.Content)
	if err != nil {
		return false
	}
	return sum == t.VersionHash
}

// CacheFresh reports whether the template's variable cache was computed no
// earlier than its last content update.
func CacheFresh(t catalog.Template) bool {
	return t.VariablesCachedAt != nil && !t.VariablesCachedAt.Before(t.UpdatedAt)
}
