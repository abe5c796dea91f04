// Copyright 2024-2026 Aiku AI

package tdproto

import (
	"fmt"
	"strconv"
)

// MakeExternalID formats a user or chat id the way the internal platform
// stores it.
func MakeExternalID(id int64) string {
	return strconv.FormatInt(id, 10)
}

// ParseExternalID parses an external id back into a numeric user id.
func ParseExternalID(externalID string) (int64, error) {
	id, err := strconv.ParseInt(externalID, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse external id %q: %w", externalID, err)
	}
	return id, nil
}
