package intervention

import "github.com/serenmind/sentinel/pkg/domain/crisis"

// Protocol is the versioned emergency protocol: a deterministic, table-driven
// mapping from (crisis type, level) to the ordered intervention actions. Two
// invocations with identical inputs always produce identical outputs within
// one protocol version.
type Protocol struct {
	Version string
	table   map[crisis.Type]map[crisis.Level][]crisis.Action
}

// DefaultProtocolVersion identifies the protocol table compiled into the
// binary.
const DefaultProtocolVersion = "protocol-v1"

func DefaultProtocol() *Protocol {
	safetyMsg := func(rationale string) crisis.Action {
		return crisis.Action{
			Type:      crisis.ActionImmediateSafetyMessage,
			Target:    "session",
			Rationale: rationale,
		}
	}
	resources := func(target, rationale string) crisis.Action {
		return crisis.Action{
			Type:      crisis.ActionResourceLink,
			Target:    target,
			Rationale: rationale,
		}
	}
	review := func(rationale string) crisis.Action {
		return crisis.Action{
			Type:      crisis.ActionHumanReviewRequest,
			Target:    "oversight",
			Rationale: rationale,
		}
	}
	softBlock := crisis.Action{
		Type:      crisis.ActionSoftBlock,
		Target:    "session",
		Rationale: "pause narrative content while the crisis workflow runs",
	}
	monitor := crisis.Action{
		Type:      crisis.ActionContinuousMonitoring,
		Target:    "session",
		Rationale: "watch subsequent turns for repeated or escalating signals",
	}

	table := map[crisis.Type]map[crisis.Level][]crisis.Action{
		crisis.TypeSelfHarm: {
			crisis.LevelLow: {
				monitor,
				resources("crisis-hotline", "offer support resources proactively"),
			},
			crisis.LevelModerate: {
				safetyMsg("acknowledge distress and surface support options"),
				resources("crisis-hotline", "direct access to trained crisis support"),
				monitor,
			},
			crisis.LevelHigh: {
				safetyMsg("respond immediately to self-harm ideation"),
				resources("crisis-hotline", "direct access to trained crisis support"),
				review("self-harm signal requires human judgment"),
				softBlock,
			},
			crisis.LevelCritical: {
				safetyMsg("respond immediately to acute self-harm risk"),
				resources("emergency-services", "acute risk requires emergency resources"),
				review("acute self-harm risk requires immediate human oversight"),
				softBlock,
			},
		},
		crisis.TypeAbuseDisclosure: {
			crisis.LevelLow: {
				monitor,
			},
			crisis.LevelModerate: {
				safetyMsg("acknowledge the disclosure supportively"),
				resources("abuse-support", "connect to abuse support services"),
				monitor,
			},
			crisis.LevelHigh: {
				safetyMsg("acknowledge the disclosure supportively"),
				resources("abuse-support", "connect to abuse support services"),
				review("abuse disclosure requires human review"),
			},
			crisis.LevelCritical: {
				safetyMsg("acknowledge the disclosure supportively"),
				resources("emergency-services", "disclosed ongoing danger"),
				review("ongoing-danger disclosure requires immediate human oversight"),
				softBlock,
			},
		},
		crisis.TypeSevereDistress: {
			crisis.LevelLow: {
				monitor,
			},
			crisis.LevelModerate: {
				safetyMsg("acknowledge distress"),
				monitor,
			},
			crisis.LevelHigh: {
				safetyMsg("acknowledge severe distress"),
				resources("crisis-hotline", "offer structured support"),
				review("sustained severe distress"),
			},
			crisis.LevelCritical: {
				safetyMsg("acknowledge acute distress"),
				resources("crisis-hotline", "offer structured support"),
				review("acute distress requires human oversight"),
				softBlock,
			},
		},
	}

	return &Protocol{Version: DefaultProtocolVersion, table: table}
}

// ActionsFor returns the ordered action sequence for the classification. The
// returned slice is a copy; callers may append to it freely.
func (p *Protocol) ActionsFor(crisisType crisis.Type, level crisis.Level) []crisis.Action {
	levels, ok := p.table[crisisType]
	if !ok || level == crisis.LevelNone {
		return nil
	}
	actions, ok := levels[level]
	if !ok {
		// An unmapped level falls back to the highest mapped one below it
		// so a new level never silently produces no response.
		for l := level; l > crisis.LevelNone; l-- {
			if a, ok := levels[l]; ok {
				actions = a
				break
			}
		}
	}
	out := make([]crisis.Action, len(actions))
	copy(out, actions)
	return out
}
