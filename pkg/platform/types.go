package platform

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"
	"time"
)

// Bus topics used by the pipeline.
const (
	TopicSensorRaw  = "sensor.raw"
	TopicControlCmd = "control.cmd"
)

// SensorSample is one reading from a sensor.
type SensorSample struct {
	Name      string
	Value     float64
	Timestamp time.Time
}

// Payload renders the sample as "name:value".
func (s SensorSample) Payload() string {
	return fmt.Sprintf("%s:%f", s.Name, s.Value)
}

// ControlCommand is the output of the control law.
type ControlCommand struct {
	Effort    float64
	Timestamp time.Time
}

// Payload renders the effort as a decimal string.
func (c ControlCommand) Payload() string {
	return fmt.Sprintf("%f", c.Effort)
}

// Sensor produces samples. Read is called on the scheduler goroutine.
type Sensor interface {
	Read(ctx context.Context) (SensorSample, error)
}

// SensorFunc adapts a function to Sensor.
type SensorFunc func(ctx context.Context) (SensorSample, error)

// Read calls f.
func (f SensorFunc) Read(ctx context.Context) (SensorSample, error) {
	return f(ctx)
}

// Actuator applies commands. Apply is called on pool workers, possibly
// concurrently.
type Actuator interface {
	Apply(ctx context.Context, cmd ControlCommand) error
}

// ActuatorFunc adapts a function to Actuator.
type ActuatorFunc func(ctx context.Context, cmd ControlCommand) error

// Apply calls f.
func (f ActuatorFunc) Apply(ctx context.Context, cmd ControlCommand) error {
	return f(ctx, cmd)
}

// NoisySensor reports 1.0 plus Gaussian noise.
type NoisySensor struct {
	Name   string
	StdDev float64
}

// NewNoisySensor creates a sensor with the given name and noise level.
func NewNoisySensor(name string, stddev float64) *NoisySensor {
	return &NoisySensor{Name: name, StdDev: stddev}
}

// Read implements Sensor.
func (s *NoisySensor) Read(context.Context) (SensorSample, error) {
	return SensorSample{
		Name:      s.Name,
		Value:     1 + rand.NormFloat64()*s.StdDev,
		Timestamp: time.Now(),
	}, nil
}

// ParseSample splits a "name:value" payload at the last colon.
func ParseSample(payload string) (SensorSample, error) {
	i := strings.LastIndexByte(payload, ':')
	if i < 0 {
		return SensorSample{}, fmt.Errorf("%w: %q has no ':'", ErrMalformedPayload, payload)
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(payload[i+1:]), 64)
	if err != nil {
		return SensorSample{}, fmt.Errorf("%w: %q: %w", ErrMalformedPayload, payload, err)
	}
	return SensorSample{Name: payload[:i], Value: v}, nil
}

// ParseCommand reads an effort payload.
func ParseCommand(payload string) (ControlCommand, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(payload), 64)
	if err != nil {
		return ControlCommand{}, fmt.Errorf("%w: %q: %w", ErrMalformedPayload, payload, err)
	}
	return ControlCommand{Effort: v}, nil
}
