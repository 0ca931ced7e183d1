package sim

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/b0czek/linuxcnc-node-sub000/internal/machine"
)

// Driver feeds the simulated channels with a plausible machining session:
// axes sweep along a path, the program line advances, and the occasional
// operator message is pushed.
type Driver struct {
	stats  []*StatChannel
	errs   *ErrorChannel
	period time.Duration
}

// NewDriver creates a driver stepping the simulation every period.
func NewDriver(stat *StatChannel, errs *ErrorChannel, period time.Duration) *Driver {
	if period <= 0 {
		period = 100 * time.Millisecond
	}
	return &Driver{stats: []*StatChannel{stat}, errs: errs, period: period}
}

// Attach adds another stat channel fed by the same session, the equivalent
// of a consumer opening its own connection to the status stream. Must be
// called before Run.
func (d *Driver) Attach(stat *StatChannel) {
	d.stats = append(d.stats, stat)
}

// Run steps the simulation until ctx is cancelled.
func (d *Driver) Run(ctx context.Context) {
	ticker := time.NewTicker(d.period)
	defer ticker.Stop()

	step := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			step++
			d.advance(step)
		}
	}
}

func (d *Driver) advance(step int) {
	t := float64(step) / 50.0
	update := func(st *machine.Status) {
		st.Task.MotionLine = step / 10
		st.Task.CurrentLine = step / 10
		st.Motion.Traj.Position.X = 100 * math.Sin(t)
		st.Motion.Traj.Position.Y = 100 * math.Cos(t)
		st.Motion.Traj.Position.Z = -5 - math.Mod(t, 10)
		st.Motion.Traj.CurrentVel = 25 + 5*math.Sin(t*3)
		if len(st.Motion.Spindle) > 0 {
			st.Motion.Spindle[0].Speed = 12000
			st.Motion.Spindle[0].Enabled = true
		}
	}
	for _, stat := range d.stats {
		stat.Update(update)
	}

	if step%200 == 0 {
		d.errs.Push(machine.KindText, fmt.Sprintf("program line %d reached", step/10))
	}
}
