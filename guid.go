package mdprov

import (
	"fmt"
	"strings"

	uuid "github.com/satori/go.uuid"
)

// ValidFSUUID reports whether s is a well formed filesystem UUID as blkid
// reports one for ext4.
func ValidFSUUID(s string) bool {
	_, err := uuid.FromString(s)
	return err == nil
}

// GenRunID generates a random identifier used to tag a provisioning run in
// log lines and backup file names.
func GenRunID() string {
	return uuid.NewV4().String()[:8]
}

// NormalizeArrayUUID converts mdadm's colon-grouped array UUID
// (8hex:8hex:8hex:8hex) to canonical UUID form.
func NormalizeArrayUUID(s string) (string, error) {
	hexOnly := strings.ReplaceAll(strings.TrimSpace(s), ":", "")

	parsed, err := uuid.FromString(fmt.Sprintf("%s-%s-%s-%s-%s",
		safeSlice(hexOnly, 0, 8), safeSlice(hexOnly, 8, 12),
		safeSlice(hexOnly, 12, 16), safeSlice(hexOnly, 16, 20),
		safeSlice(hexOnly, 20, 32)))
	if err != nil {
		return "", fmt.Errorf("bad array UUID '%s': %s", s, err)
	}

	return parsed.String(), nil
}

func safeSlice(s string, start, end int) string {
	if len(s) < end {
		return ""
	}

	return s[start:end]
}
