// Mode table for the companion gateway.
//
// Each request declares a mode; the mode maps to exactly one system-prompt
// template and one post-processing rule. Adding a mode means adding one
// table entry, not new control flow.
package prompt

import (
	"errors"
	"fmt"
	"sort"
)

// Mode is the declared purpose of a request.
type Mode string

// Supported modes.
const (
	ModeChat                 Mode = "chat"
	ModeLogisticsAnalysis    Mode = "logistics_analysis"
	ModePowerDiagnostics     Mode = "power_diagnostics"
	ModeProductionBottleneck Mode = "production_bottleneck"
	ModeDefencePlanner       Mode = "defence_planner"
	ModeTrainSchedule        Mode = "train_schedule"
	ModeLogicInspector       Mode = "logic_inspector"
	ModeStarterBase          Mode = "starter_base"
	ModePollutionForecast    Mode = "pollution_forecast"
)

// ErrUnknownMode indicates the request declared a mode not in the table.
var ErrUnknownMode = errors.New("unknown mode")

// postRule is the post-processing applied to the upstream reply.
type postRule int

const (
	postPassThrough postRule = iota
	postExtractBlueprint
)

type modeSpec struct {
	system string
	post   postRule
}

const commonPreamble = `You are the in-game assistant of a Factorio GPT mod. The player talks to you from inside a running game. Answers are rendered in the mod's chat panel, so keep them compact and concrete. When the request includes a factory snapshot, treat it as the ground truth about the player's base.`

var modeTable = map[Mode]modeSpec{
	ModeChat: {
		system: commonPreamble + `

Answer the player's question directly. Give practical Factorio advice: ratios, recipes, layouts, research priorities. Do not invent entities that are not in the snapshot.`,
		post: postPassThrough,
	},
	ModeLogisticsAnalysis: {
		system: commonPreamble + `

Analyze the belt, inserter, and logistics-network data in the snapshot. Identify saturated belts, starved assemblers, and unbalanced splitters. For each problem name the affected entities and propose a concrete fix (belt tier upgrade, extra lane, requester chest rework).`,
		post: postPassThrough,
	},
	ModePowerDiagnostics: {
		system: commonPreamble + `

Diagnose the electric network in the snapshot. Compare production capacity against consumption, flag brownout risk, accumulator coverage, and fuel supply for boilers or reactors. Recommend how much generation to add and of what kind.`,
		post: postPassThrough,
	},
	ModeProductionBottleneck: {
		system: commonPreamble + `

Find the production bottleneck. Walk the crafting chain in the snapshot from raw resources to final products, locate the stage with the lowest effective throughput, and say exactly how many additional machines or modules close the gap.`,
		post: postPassThrough,
	},
	ModeDefencePlanner: {
		system: commonPreamble + `

Plan the base defence. Using the snapshot's walls, turrets, and ammo supply, assess coverage against biter attacks at the current evolution factor. Point out gaps in the perimeter and recommend turret types, wall thickness, and ammo logistics.`,
		post: postPassThrough,
	},
	ModeTrainSchedule: {
		system: commonPreamble + `

Review the rail network in the snapshot. Check train schedules, station throughput, and signal placement. Flag deadlock-prone junctions and idle trains, and propose schedule or signalling changes.`,
		post: postPassThrough,
	},
	ModeLogicInspector: {
		system: commonPreamble + `

Inspect the circuit-network data in the snapshot. Explain what the combinator logic does, point out contradictory or dead signals, and suggest simplifications. Quote signal names exactly as they appear.`,
		post: postPassThrough,
	},
	ModeStarterBase: {
		system: commonPreamble + `

Design a starter base for the player. Produce a compact early-game layout covering mining, smelting, and basic science. Output a Factorio blueprint exchange string for the layout, wrapped in a fenced code block, followed by a short build order.`,
		post: postExtractBlueprint,
	},
	ModePollutionForecast: {
		system: commonPreamble + `

Forecast pollution. From the snapshot's pollution sources and absorption, estimate cloud growth, when it reaches nearby nests, and the resulting attack pressure. Recommend efficiency modules, tree planting, or defence build-up accordingly.`,
		post: postPassThrough,
	},
}

// ParseMode validates a caller-supplied mode string.
func ParseMode(s string) (Mode, error) {
	m := Mode(s)
	if _, ok := modeTable[m]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownMode, s)
	}
	return m, nil
}

// Modes returns all supported mode names, sorted.
func Modes() []string {
	names := make([]string, 0, len(modeTable))
	for m := range modeTable {
		names = append(names, string(m))
	}
	sort.Strings(names)
	return names
}

// BlueprintCapable reports whether the mode's post-processing extracts a
// blueprint string from the reply.
func (m Mode) BlueprintCapable() bool {
	return modeTable[m].post == postExtractBlueprint
}

// SystemTemplate returns the mode's fixed system-prompt template.
func (m Mode) SystemTemplate() string {
	return modeTable[m].system
}
