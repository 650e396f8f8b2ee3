package client

import (
	"strings"

	"github.com/wabridge/wabridge/internal/domain"
)

// NormalizeJID maps a caller-supplied target identifier onto the network's
// addressing form. Already-qualified addresses pass through untouched; bare
// identifiers containing the group marker ("-") get the group suffix, all
// others the individual-chat suffix.
func NormalizeJID(target string) string {
	if strings.Contains(target, "@") {
		return target
	}
	if strings.Contains(target, "-") {
		return target + domain.GroupJIDSuffix
	}
	return target + domain.UserJIDSuffix
}
