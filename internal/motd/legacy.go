package motd

import (
	"go.wardproxy.dev/ward/internal/config"
	"go.wardproxy.dev/ward/internal/legacy"
)

// ForLegacyState builds the pre-1.7 kick-frame bytes conveying the same
// reachability state a modern client would see via ForState, so a legacy
// client probing a sleeping or unreachable backend gets a readable MOTD
// instead of a silently dropped connection. variant selects which of the
// two legacy response encodings (bare motd string, or the richer 1.4+
// four-field form) the connecting client understands.
func ForLegacyState(state State, m config.MOTDTemplates, variant legacy.PingVariant) []byte {
	text := templateText(m, state)
	if variant.UsesV1_4ResponseFormat() {
		return legacy.BuildKickV1_4(0, text, "ward", 0, 0)
	}
	return legacy.BuildKickBeta(text, 0, 0)
}
