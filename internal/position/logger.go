// Package position records a decimated history of the machine's commanded
// tool position. Points are cursor-stamped so consumers can replay only what
// they missed: DeltaSince(cursor) returns the points logged after that
// cursor, flagging when the ring buffer has already discarded part of the
// requested range.
package position

import (
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/b0czek/linuxcnc-node-sub000/internal/channels"
	"github.com/b0czek/linuxcnc-node-sub000/internal/machine"
	"github.com/b0czek/linuxcnc-node-sub000/internal/watch"
)

const (
	// MinLogInterval is the floor for the sampling interval; requests below
	// it are clamped up.
	MinLogInterval = 10 * time.Millisecond

	// DefaultLogInterval is used when no interval is configured.
	DefaultLogInterval = 10 * time.Millisecond

	// DefaultMaxHistory bounds the ring buffer when no size is configured.
	DefaultMaxHistory = 10000

	// positionEpsilon is the minimum per-axis movement worth logging.
	positionEpsilon = 1e-6
)

// Point is one logged sample: the commanded position with the tool offset
// removed, plus the planner's motion type.
type Point struct {
	X          float64   `json:"x"`
	Y          float64   `json:"y"`
	Z          float64   `json:"z"`
	A          float64   `json:"a"`
	B          float64   `json:"b"`
	C          float64   `json:"c"`
	U          float64   `json:"u"`
	V          float64   `json:"v"`
	W          float64   `json:"w"`
	MotionType int       `json:"motionType"`
	Timestamp  time.Time `json:"timestamp"`
}

// Delta is the answer to an as-of-cursor history query. WasReset reports
// that the requested cursor predates the oldest retained point, so the
// returned points are a partial replay starting from what survives.
type Delta struct {
	WasReset bool    `json:"wasReset"`
	Cursor   uint64  `json:"cursor"`
	Points   []Point `json:"points"`
}

// Logger samples a StatChannel on its own schedule and keeps a bounded,
// decimated position history. Unlike the watchers it does not arm itself on
// subscription; Start and Stop are explicit, matching an operator turning
// motion capture on and off. The zero value is not usable; construct with
// New.
type Logger struct {
	source machine.StatChannel
	logger *slog.Logger
	diag   *channels.Events
	sched  *watch.Scheduler

	mu           sync.Mutex
	history      []Point
	maxHistory   int
	cursor       uint64
	oldestCursor uint64

	last, secondLast Point
	haveLast         bool
	haveSecondLast   bool
	destroyed        bool
}

// Option configures a Logger.
type Option func(*options)

type options struct {
	logger     *slog.Logger
	diag       *channels.Events
	interval   time.Duration
	maxHistory int
}

// WithLogger sets the diagnostic logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithDiagnostics attaches the diagnostics channel hub.
func WithDiagnostics(diag *channels.Events) Option {
	return func(o *options) { o.diag = diag }
}

// WithLogInterval sets the sampling interval, clamped to MinLogInterval.
// Non-positive durations keep the default.
func WithLogInterval(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.interval = d
		}
	}
}

// WithMaxHistory bounds the ring buffer. Non-positive sizes keep the default.
func WithMaxHistory(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxHistory = n
		}
	}
}

// New creates a stopped logger over source.
func New(source machine.StatChannel, opts ...Option) *Logger {
	o := &options{
		logger:     slog.Default(),
		interval:   DefaultLogInterval,
		maxHistory: DefaultMaxHistory,
	}
	for _, opt := range opts {
		opt(o)
	}

	l := &Logger{
		source:     source,
		logger:     o.logger.With("component", "position-logger"),
		diag:       o.diag,
		maxHistory: o.maxHistory,
	}
	l.sched = watch.NewScheduler(MinLogInterval, o.interval, l.logCycle)
	return l
}

// Start begins sampling. Idempotent while running.
func (l *Logger) Start() {
	l.mu.Lock()
	if l.destroyed {
		l.mu.Unlock()
		return
	}
	l.mu.Unlock()

	l.sched.Start()
	l.publishState("armed")
}

// Stop halts sampling without discarding history. Idempotent.
func (l *Logger) Stop() {
	l.sched.Stop()
	l.publishState("idle")
}

// Running reports whether the logger is sampling.
func (l *Logger) Running() bool {
	return l.sched.Running()
}

// SetLogInterval reconfigures the sampling interval, clamped to
// MinLogInterval.
func (l *Logger) SetLogInterval(d time.Duration) {
	l.sched.SetInterval(d)
}

// LogInterval returns the effective sampling interval.
func (l *Logger) LogInterval() time.Duration {
	return l.sched.Interval()
}

// Clear discards the history. The cursor stays monotonic: everything logged
// so far, the current cursor included, becomes stale, so a pre-clear cursor
// handed back to DeltaSince reports WasReset.
func (l *Logger) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.history = nil
	l.oldestCursor = l.cursor + 1
	l.haveLast = false
	l.haveSecondLast = false
}

// Cursor returns the cursor of the most recently logged point, 0 before any.
func (l *Logger) Cursor() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cursor
}

// Count returns the number of retained points.
func (l *Logger) Count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.history)
}

// Current returns the most recently logged point, or nil when the history
// is empty.
func (l *Logger) Current() *Point {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.history) == 0 {
		return nil
	}
	p := l.history[len(l.history)-1]
	return &p
}

// History returns up to count retained points starting at start (an index
// into the retained window, oldest first). Out-of-range arguments are
// clamped, never an error.
func (l *Logger) History(start, count int) []Point {
	l.mu.Lock()
	defer l.mu.Unlock()
	if start < 0 {
		start = 0
	}
	if start > len(l.history) {
		start = len(l.history)
	}
	if count < 0 || count > len(l.history)-start {
		count = len(l.history) - start
	}
	out := make([]Point, count)
	copy(out, l.history[start:start+count])
	return out
}

// DeltaSince returns the points logged after the given cursor. A cursor older
// than the oldest retained point yields WasReset with the full surviving
// window.
func (l *Logger) DeltaSince(cursor uint64) Delta {
	l.mu.Lock()
	defer l.mu.Unlock()

	wasReset := cursor < l.oldestCursor
	start := cursor
	if wasReset {
		start = l.oldestCursor
	}

	var deltaCount uint64
	if l.cursor > start {
		deltaCount = l.cursor - start
	}
	if deltaCount > uint64(len(l.history)) {
		deltaCount = uint64(len(l.history))
	}

	startIndex := len(l.history) - int(deltaCount)
	points := make([]Point, deltaCount)
	copy(points, l.history[startIndex:])

	return Delta{WasReset: wasReset, Cursor: l.cursor, Points: points}
}

// Destroy stops sampling, drops the history and disconnects the source.
// Idempotent.
func (l *Logger) Destroy() {
	l.mu.Lock()
	if l.destroyed {
		l.mu.Unlock()
		return
	}
	l.destroyed = true
	l.history = nil
	l.mu.Unlock()

	l.sched.Stop()
	if err := l.source.Close(); err != nil {
		l.logger.Warn("failed to close stat channel", "error", err)
	}
	l.publishState("idle")
}

// logCycle samples the source once. A sample is appended when the position
// moved beyond positionEpsilon on any axis; a sample extending the current
// straight-line move replaces the previous point in place so long moves do
// not flood the buffer. Only appended samples advance the cursor.
func (l *Logger) logCycle() {
	if _, err := l.source.Poll(); err != nil {
		l.logger.Error("position poll failed", "error", err)
		l.diag.PublishPollError(channels.PollErrorEvent{
			Watcher:   "position",
			Err:       err,
			Timestamp: time.Now(),
		})
		return
	}
	st := l.source.Status()
	if st == nil {
		return
	}
	current := samplePoint(st)

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.destroyed {
		return
	}

	if l.haveLast && l.haveSecondLast && !positionChanged(current, l.last) {
		return
	}

	if l.haveLast && l.haveSecondLast &&
		colinear(current, l.last, l.secondLast) &&
		current.MotionType == l.last.MotionType &&
		l.last.MotionType == l.secondLast.MotionType {
		// Extend the straight move: overwrite the last logged point rather
		// than appending a redundant one.
		if len(l.history) > 0 {
			l.history[len(l.history)-1] = current
		}
	} else {
		l.history = append(l.history, current)
		l.cursor++
		if len(l.history) > l.maxHistory {
			excess := len(l.history) - l.maxHistory
			l.history = append([]Point(nil), l.history[excess:]...)
			l.oldestCursor += uint64(excess)
		}
	}

	l.secondLast = l.last
	l.last = current
	if !l.haveLast {
		l.haveLast = true
	} else if !l.haveSecondLast {
		l.haveSecondLast = true
	}
}

func (l *Logger) publishState(state string) {
	l.diag.PublishWatcherState(channels.WatcherStateEvent{
		Watcher:   "position",
		State:     state,
		Timestamp: time.Now(),
	})
}

// samplePoint extracts the commanded position with the tool offset removed.
func samplePoint(st *machine.Status) Point {
	pos := st.Motion.Traj.Position
	off := st.Task.ToolOffset
	return Point{
		X:          pos.X - off.X,
		Y:          pos.Y - off.Y,
		Z:          pos.Z - off.Z,
		A:          pos.A - off.A,
		B:          pos.B - off.B,
		C:          pos.C - off.C,
		U:          pos.U - off.U,
		V:          pos.V - off.V,
		W:          pos.W - off.W,
		MotionType: st.Motion.Traj.MotionType,
		Timestamp:  time.Now(),
	}
}

func axes(p Point) [9]float64 {
	return [9]float64{p.X, p.Y, p.Z, p.A, p.B, p.C, p.U, p.V, p.W}
}

func positionChanged(a, b Point) bool {
	av, bv := axes(a), axes(b)
	for i := range av {
		if math.Abs(av[i]-bv[i]) > positionEpsilon {
			return true
		}
	}
	return a.MotionType != b.MotionType
}

// colinear reports whether b lies on the straight segment direction from c
// through a: the displacement vectors b->a and c->b must be parallel.
func colinear(a, b, c Point) bool {
	av, bv, cv := axes(a), axes(b), axes(c)
	var v1, v2 [9]float64
	var dot, n1, n2 float64
	for i := range av {
		v1[i] = av[i] - bv[i]
		v2[i] = bv[i] - cv[i]
		dot += v1[i] * v2[i]
		n1 += v1[i] * v1[i]
		n2 += v2[i] * v2[i]
	}
	if n1 < positionEpsilon*positionEpsilon || n2 < positionEpsilon*positionEpsilon {
		return true
	}
	// Parallel and pointing the same way: cos of the angle close to 1.
	return dot > 0 && dot*dot > (1-1e-9)*n1*n2
}
