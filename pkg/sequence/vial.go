package sequence

import "time"

// VialPositionsPattern matches saved vial position files; the newest
// match wins.
const VialPositionsPattern = "vial_transfer_positions*.json"

// VialTiming paces the vial routine.
var VialTiming = Timing{
	MoveSpeed: 25,
	MoveWait:  3 * time.Second,
	GripSpeed: 50,
	GripWait:  time.Second,
}

// VialSteps is the vial transfer routine: rack to balance, a weigh
// pause, then back to the rack.
func VialSteps() []Step {
	return []Step{
		{Name: "home", Pose: "home_position"},
		{Name: "above vial", Pose: "above_vial"},
		{Name: "grab vial", Pose: "grab_vial", Grip: GripClose},
		{Name: "lift vial", Pose: "lift_vial"},
		{Name: "above balance", Pose: "above_balance"},
		{Name: "place on balance", Pose: "place_balance", Grip: GripOpen},
		{Name: "retreat", Pose: "retreat_balance"},
		{Name: "weigh", Dwell: 10 * time.Second},
		{Name: "pick up from balance", Pose: "place_balance", Grip: GripClose},
		{Name: "lift from balance", Pose: "retreat_balance"},
		{Name: "return above vial", Pose: "above_vial"},
		{Name: "place on table", Pose: "grab_vial", Grip: GripOpen},
		{Name: "safe retract", Pose: "above_vial"},
		{Name: "home", Pose: "home_position"},
	}
}
