// Package phase advances the vehicle through its flight phases from the
// filtered state estimate.
package phase

import "fmt"

// Phase is one segment of the mission. The byte value is the telemetry wire value.
type Phase uint8

const (
	Prelaunch Phase = iota
	PoweredFlight
	Coast
	CoastWithControl
	DrogueDescent
	MainDescent
	Concluded
	numPhases
)

var names = [numPhases]string{
	"PRELAUNCH",
	"POWERED_FLIGHT",
	"COAST",
	"COAST_WITH_CONTROL",
	"DROGUE_DESCENT",
	"MAIN_DESCENT",
	"CONCLUDED",
}

// Eight-character labels used by the telemetry converter.
var labels = [numPhases]string{
	"PRELTOFF",
	"PWFLIGHT",
	"CRUISING",
	"CRSCANRD",
	"FALLDROG",
	"FALLMAIN",
	"CONCLUDE",
}

func (p Phase) String() string {
	if p < numPhases {
		return names[p]
	}
	return fmt.Sprintf("PHASE(%d)", uint8(p))
}

// Label returns the converter label of p, or UNKNOWN for a value outside the closed set.
func (p Phase) Label() string {
	if p < numPhases {
		return labels[p]
	}
	return "UNKNOWN"
}

// Valid reports whether p is one of the seven phases.
func (p Phase) Valid() bool {
	return p < numPhases
}

// Action is the single actuation request issued on entry to a phase.
type Action uint8

const (
	ActionNone Action = iota
	ActionArmPyros
	ActionStowCanards
	ActionEngageCanards
	ActionFireDrogue
	ActionFireMain
	ActionSafeAll
)

var actionNames = [...]string{"none", "arm-pyros", "stow-canards", "engage-canards", "fire-drogue", "fire-main", "safe-all"}

func (a Action) String() string {
	if int(a) < len(actionNames) {
		return actionNames[a]
	}
	return fmt.Sprintf("action(%d)", uint8(a))
}

// entryActions[p] is issued exactly once when p is entered.
var entryActions = [numPhases]Action{
	Prelaunch:        ActionNone,
	PoweredFlight:    ActionArmPyros,
	Coast:            ActionStowCanards,
	CoastWithControl: ActionEngageCanards,
	DrogueDescent:    ActionFireDrogue,
	MainDescent:      ActionFireMain,
	Concluded:        ActionSafeAll,
}

// EntryAction returns the action issued on entry to p.
func EntryAction(p Phase) Action {
	if p < numPhases {
		return entryActions[p]
	}
	return ActionNone
}
