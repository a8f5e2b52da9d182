package discovery

// throttleMultiplier derives an advisory interval multiplier from average
// load relative to the soft limits. 1.0 means run at configured intervals;
// higher values suggest stretching them. The scheduler computes and
// exposes this but does not reschedule timers with it; it is telemetry
// for an implementer's timer-replacement strategy.
func throttleMultiplier(cpuPercent, memPercent, cpuSoft, memSoft float64) float64 {
	load := cpuPercent / cpuSoft
	if m := memPercent / memSoft; m > load {
		load = m
	}

	switch {
	case load < 0.5:
		return 1.0
	case load < 0.75:
		return 1.25
	case load < 1.0:
		return 1.5
	case load < 1.1:
		return 2.0
	default:
		return 3.0
	}
}
