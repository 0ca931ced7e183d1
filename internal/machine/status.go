// Package machine defines the contracts and data model of the machine-control
// backend this process observes. The backend itself (motion planner, realtime
// bus, NML transport) lives outside the process; everything here is either an
// interface it is polled through or a snapshot of what it reported.
package machine

import (
	"encoding/json"
	"fmt"
)

// Pose is a 9-axis cartesian position.
type Pose struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
	A float64 `json:"a"`
	B float64 `json:"b"`
	C float64 `json:"c"`
	U float64 `json:"u"`
	V float64 `json:"v"`
	W float64 `json:"w"`
}

// TaskStatus mirrors the task-level portion of the backend status record.
type TaskStatus struct {
	Mode          int     `json:"mode"`
	State         int     `json:"state"`
	ExecState     int     `json:"execState"`
	InterpState   int     `json:"interpState"`
	MotionLine    int     `json:"motionLine"`
	CurrentLine   int     `json:"currentLine"`
	ReadLine      int     `json:"readLine"`
	File          string  `json:"file"`
	Command       string  `json:"command"`
	TaskPaused    bool    `json:"taskPaused"`
	OptionalStop  bool    `json:"optionalStopState"`
	BlockDelete   bool    `json:"blockDeleteState"`
	InputTimeout  bool    `json:"inputTimeout"`
	G5xIndex      int     `json:"g5xIndex"`
	G5xOffset     Pose    `json:"g5xOffset"`
	G92Offset     Pose    `json:"g92Offset"`
	ToolOffset    Pose    `json:"toolOffset"`
	RotationXY    float64 `json:"rotationXY"`
	DelayLeft     float64 `json:"delayLeft"`
	ProgramUnits  int     `json:"programUnits"`
	InterpErrcode int     `json:"interpreterErrorCode"`
}

// JointStatus mirrors one joint of the motion status record.
type JointStatus struct {
	Units          float64 `json:"units"`
	Velocity       float64 `json:"velocity"`
	Output         float64 `json:"output"`
	Input          float64 `json:"input"`
	FerrorCurrent  float64 `json:"ferrorCurrent"`
	InPosition     bool    `json:"inPosition"`
	Homing         bool    `json:"homing"`
	Homed          bool    `json:"homed"`
	Fault          bool    `json:"fault"`
	Enabled        bool    `json:"enabled"`
	MinSoftLimit   bool    `json:"minSoftLimit"`
	MaxSoftLimit   bool    `json:"maxSoftLimit"`
	MinHardLimit   bool    `json:"minHardLimit"`
	MaxHardLimit   bool    `json:"maxHardLimit"`
	OverrideLimits bool    `json:"overrideLimits"`
}

// SpindleStatus mirrors one spindle of the motion status record.
type SpindleStatus struct {
	Speed     float64 `json:"speed"`
	Override  float64 `json:"override"`
	Direction int     `json:"direction"`
	Brake     bool    `json:"brake"`
	Enabled   bool    `json:"enabled"`
	Homed     bool    `json:"homed"`
}

// TrajStatus mirrors the trajectory planner portion of the motion status.
type TrajStatus struct {
	LinearUnits      float64 `json:"linearUnits"`
	AngularUnits     float64 `json:"angularUnits"`
	CycleTime        float64 `json:"cycleTime"`
	Joints           int     `json:"joints"`
	Spindles         int     `json:"spindles"`
	Mode             int     `json:"mode"`
	Enabled          bool    `json:"enabled"`
	InPosition       bool    `json:"inPosition"`
	Queue            int     `json:"queue"`
	ActiveQueue      int     `json:"activeQueue"`
	QueueFull        bool    `json:"queueFull"`
	ID               int     `json:"id"`
	Paused           bool    `json:"paused"`
	FeedRateOverride float64 `json:"feedRateOverride"`
	RapidOverride    float64 `json:"rapidRateOverride"`
	Position         Pose    `json:"position"`
	ActualPosition   Pose    `json:"actualPosition"`
	Velocity         float64 `json:"velocity"`
	Acceleration     float64 `json:"acceleration"`
	MaxVelocity      float64 `json:"maxVelocity"`
	MaxAcceleration  float64 `json:"maxAcceleration"`
	ProbedPosition   Pose    `json:"probedPosition"`
	ProbeTripped     bool    `json:"probeTripped"`
	Probing          bool    `json:"probing"`
	KinematicsType   int     `json:"kinematicsType"`
	MotionType       int     `json:"motionType"`
	DistanceToGo     float64 `json:"distanceToGo"`
	CurrentVel       float64 `json:"currentVel"`
	FeedOverrideOn   bool    `json:"feedOverrideEnabled"`
	AdaptiveFeedOn   bool    `json:"adaptiveFeedEnabled"`
	FeedHoldOn       bool    `json:"feedHoldEnabled"`
}

// MotionStatus groups the trajectory, joint, spindle and IO-pin state.
type MotionStatus struct {
	Traj          TrajStatus      `json:"traj"`
	Joint         []JointStatus   `json:"joint"`
	Spindle       []SpindleStatus `json:"spindle"`
	DigitalInput  []int           `json:"digitalInput"`
	DigitalOutput []int           `json:"digitalOutput"`
	AnalogInput   []float64       `json:"analogInput"`
	AnalogOutput  []float64       `json:"analogOutput"`
}

// ToolStatus mirrors the tool-changer portion of the IO status.
type ToolStatus struct {
	PocketPrepped int `json:"pocketPrepped"`
	ToolInSpindle int `json:"toolInSpindle"`
}

// CoolantStatus mirrors the coolant portion of the IO status.
type CoolantStatus struct {
	Mist  bool `json:"mist"`
	Flood bool `json:"flood"`
}

// IoStatus groups tool, coolant and estop state.
type IoStatus struct {
	Tool    ToolStatus    `json:"tool"`
	Coolant CoolantStatus `json:"coolant"`
	Estop   bool          `json:"estop"`
}

// ToolEntry is one row of the tool table.
type ToolEntry struct {
	ToolNo      int     `json:"toolNo"`
	PocketNo    int     `json:"pocketNo"`
	Diameter    float64 `json:"diameter"`
	FrontAngle  float64 `json:"frontAngle"`
	BackAngle   float64 `json:"backAngle"`
	Orientation int     `json:"orientation"`
	Offset      Pose    `json:"offset"`
	Comment     string  `json:"comment"`
}

// Status is the full state record reported by the backend status channel.
// It is replaced wholesale on every poll that reports a change; a *Status
// handed out by a channel must be treated as read-only.
type Status struct {
	EchoSerialNumber int          `json:"echoSerialNumber"`
	State            int          `json:"state"`
	Task             TaskStatus   `json:"task"`
	Motion           MotionStatus `json:"motion"`
	Io               IoStatus     `json:"io"`
	ToolTable        []ToolEntry  `json:"toolTable"`
}

// Tree converts the status into a generic value tree (maps, slices, float64
// numbers, bools, strings) suitable for dot-path resolution and structural
// comparison. Field names in the tree are the json tag names.
func (s *Status) Tree() (map[string]any, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to encode status: %w", err)
	}
	var tree map[string]any
	if err := json.Unmarshal(raw, &tree); err != nil {
		return nil, fmt.Errorf("failed to decode status tree: %w", err)
	}
	return tree, nil
}
