package scenes

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// ComputeIdempotencyKey derives the deterministic digest identifying a
// logical generation request. Identical inputs always hash identically;
// the field separator keeps adjacent fields from gluing into ambiguous
// strings (owner "1", project "23" vs owner "12", project "3").
func ComputeIdempotencyKey(ownerID, projectID uint, startKey string, endKey *string, shotTypeID, resolvedPrompt string) string {
	end := ""
	if endKey != nil {
		end = *endKey
	}
	material := strings.Join([]string{
		fmt.Sprintf("%d", ownerID),
		fmt.Sprintf("%d", projectID),
		startKey,
		end,
		shotTypeID,
		resolvedPrompt,
	}, "\x1f")
	sum := sha256.Sum256([]byte(material))
	return hex.EncodeToString(sum[:])
}

// OwnsKey checks authorization-by-path-prefix: a storage key belongs to
// the caller only when it sits under their own project directory.
func OwnsKey(ownerID, projectID uint, key string) bool {
	return strings.HasPrefix(key, fmt.Sprintf("%d/%d/", ownerID, projectID))
}
