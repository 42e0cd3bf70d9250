package derived

import "github.com/flightdv/corepipeline/engine/domain"

// Preset is a named, ready-to-apply derived column formula for a common
// aerodynamic/flight-test quantity, referencing standard column names a
// project convention is expected to supply.
type Preset struct {
	Name        string
	Expression  string
	Description string
}

// Catalog lists the built-in presets (spec §[NEW] "supplemented features").
// fdctl offers these as shortcuts so operators don't hand-type common
// formulas.
var Catalog = []Preset{
	{
		Name:        "dynamic_pressure",
		Expression:  "0.5 * [rho] * [v] * [v]",
		Description: "Dynamic pressure q = 1/2 rho v^2",
	},
	{
		Name:        "mach_from_speed_of_sound",
		Expression:  "[v] / [a]",
		Description: "Mach number from true airspeed and local speed of sound",
	},
	{
		Name:        "lift_coefficient",
		Expression:  "[lift] / (0.5 * [rho] * [v] * [v] * [s_ref])",
		Description: "CL = L / (q * S_ref)",
	},
	{
		Name:        "drag_coefficient",
		Expression:  "[drag] / (0.5 * [rho] * [v] * [v] * [s_ref])",
		Description: "CD = D / (q * S_ref)",
	},
	{
		Name:        "lift_to_drag",
		Expression:  "[lift] / [drag]",
		Description: "L/D ratio",
	},
	{
		Name:        "angle_of_attack_deg",
		Expression:  "[alpha_rad] * 57.29577951308232",
		Description: "Angle of attack, radians to degrees",
	},
	{
		Name:        "reynolds_number",
		Expression:  "[rho] * [v] * [chord] / [mu]",
		Description: "Re = rho v L / mu",
	},
}

// PresetByName looks up a preset, or reports ok=false.
func PresetByName(name string) (Preset, bool) {
	for _, p := range Catalog {
		if p.Name == name {
			return p, true
		}
	}
	return Preset{}, false
}

// AsDerivedSpec converts a preset into the DerivedSpec shape stored on an
// IngestionJob, optionally renaming it.
func (p Preset) AsDerivedSpec(rename string) domain.DerivedSpec {
	name := p.Name
	if rename != "" {
		name = rename
	}
	return domain.DerivedSpec{Name: name, Expression: p.Expression}
}
