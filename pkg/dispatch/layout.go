package dispatch

// Layout maps the window's decision variables onto LP columns. Per-timestep
// blocks come first (T columns each), followed by the terminal energy level,
// the monthly-peak scalar and one fill level per tariff bracket.
type Layout struct {
	T int // timesteps in the window
	B int // tariff brackets
}

const perStepBlocks = 11

// Per-timestep variables, kW unless noted.
func (l Layout) Charge(t int) int     { return 0*l.T + t }
func (l Layout) Discharge(t int) int  { return 1*l.T + t }
func (l Layout) Import(t int) int     { return 2*l.T + t }
func (l Layout) Export(t int) int     { return 3*l.T + t }
func (l Layout) Energy(t int) int     { return 4*l.T + t } // kWh at the start of step t
func (l Layout) Curtail(t int) int    { return 5*l.T + t }
func (l Layout) DeltaPlus(t int) int  { return 6*l.T + t }  // kWh gained by step t's action
func (l Layout) DeltaMinus(t int) int { return 7*l.T + t }  // kWh lost by step t's action
func (l Layout) DOD(t int) int        { return 8*l.T + t }  // fraction of nominal capacity
func (l Layout) CyclicDeg(t int) int  { return 9*l.T + t }  // percent
func (l Layout) TotalDeg(t int) int   { return 10*l.T + t } // percent

// Scalars.
func (l Layout) TerminalEnergy() int { return perStepBlocks * l.T }
func (l Layout) Peak() int           { return perStepBlocks*l.T + 1 }

// BracketFill returns the column of tariff bracket i's fill level (0..1 for
// closed brackets, unbounded for an open final bracket).
func (l Layout) BracketFill(i int) int { return perStepBlocks*l.T + 2 + i }

// NumVariables is the total LP column count.
func (l Layout) NumVariables() int { return perStepBlocks*l.T + 2 + l.B }
