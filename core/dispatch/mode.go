package dispatch

import (
	"fmt"
	"strings"
)

// SendMode selects how a dispatched envelope reaches the cluster.
type SendMode string

const (
	// ModeSingle sends to one member and correlates its reply.
	ModeSingle SendMode = "SINGLE"
	// ModeAll publishes to every member. There is no reply.
	ModeAll SendMode = "ALL"
)

// ParseSendMode parses s case-insensitively. The empty string is ModeSingle.
func ParseSendMode(s string) (SendMode, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", string(ModeSingle):
		return ModeSingle, nil
	case string(ModeAll):
		return ModeAll, nil
	default:
		return "", &ConfigError{Field: "Mode", Reason: fmt.Sprintf("unknown send mode %q", s)}
	}
}

func (m SendMode) String() string { return string(m) }
