package bridge

import "github.com/ljwoods2/imdbridge/frame"

// Domain is the Go-native shape of the periodic simulation cell the host
// exposes: orthogonal edge lengths plus triclinic tilt factors.
type Domain = frame.Domain

// ParticleView is the host's per-particle arrays, read-mostly plus one
// additive write. The bridge never retains a ParticleView across calls;
// the host passes a fresh one into each entry point.
type ParticleView interface {
	// NumLocal is this rank's particle count.
	NumLocal() int
	// Tag is the stable global identifier of particle i.
	Tag(i int) int64
	// InGroup reports whether particle i is selected for reporting/steering.
	InGroup(i int) bool
	// Position returns particle i's wrapped coordinates.
	Position(i int) [3]float64
	// Velocity returns particle i's velocity.
	Velocity(i int) [3]float64
	// Force returns particle i's current accumulated force.
	Force(i int) [3]float64
	// Image returns particle i's periodic image flags.
	Image(i int) [3]int32
	// AddForce additively accumulates a steering force onto particle i.
	AddForce(i int, fx, fy, fz float64)
	// Domain returns the current periodic cell.
	Domain() Domain
	// Dt returns the integrator's current timestep.
	Dt() float64
	// CurrentTime returns the simulation clock, in the same units as Dt.
	CurrentTime() float64
	// Step returns the current integrator step count.
	Step() uint64
}
