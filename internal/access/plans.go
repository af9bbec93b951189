// ABOUTME: Ordered subscription plan scale used for discovery filtering
// ABOUTME: free < starter < professional < enterprise

package access

import "github.com/hearthside/agenthub/internal/manifest"

// planRank orders the subscription tiers. Unknown plans rank below free so a
// corrupt value never unlocks anything.
var planRank = map[string]int{
	manifest.PlanFree:         0,
	manifest.PlanStarter:      1,
	manifest.PlanProfessional: 2,
	manifest.PlanEnterprise:   3,
}

// MeetsPlan reports whether the caller's plan satisfies an agent's minimum
// plan requirement. This is a discovery-time filter, not part of the
// per-request access decision.
func MeetsPlan(have, need string) bool {
	haveRank, ok := planRank[have]
	if !ok {
		haveRank = -1
	}
	needRank, ok := planRank[need]
	if !ok {
		// Agent declares an unknown tier: offer it to nobody.
		return false
	}
	return haveRank >= needRank
}
