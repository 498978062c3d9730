package main

import "github.com/ljwoods2/imdbridge/bridge"

// simView is a toy in-memory stand-in for the host's per-particle arrays:
// every particle starts at position (tag, tag, tag) in a 20x20x20
// orthogonal box with a fixed small velocity. Positions change only when
// Advance is called.
type simView struct {
	tags  []int64
	pos   [][3]float64
	vel   [][3]float64
	force [][3]float64
	image [][3]int32
	step  uint64
	dt    float64
}

func newSimView(tags []int64) *simView {
	n := len(tags)
	v := &simView{
		tags:  append([]int64(nil), tags...),
		pos:   make([][3]float64, n),
		vel:   make([][3]float64, n),
		force: make([][3]float64, n),
		image: make([][3]int32, n),
		dt:    0.002,
	}
	for i, t := range tags {
		v.pos[i] = [3]float64{float64(t), float64(t), float64(t)}
		v.vel[i] = [3]float64{0.01, 0, -0.01}
	}
	return v
}

func (v *simView) NumLocal() int             { return len(v.tags) }
func (v *simView) Tag(i int) int64           { return v.tags[i] }
func (v *simView) InGroup(int) bool          { return true }
func (v *simView) Position(i int) [3]float64 { return v.pos[i] }
func (v *simView) Velocity(i int) [3]float64 { return v.vel[i] }
func (v *simView) Force(i int) [3]float64    { return v.force[i] }
func (v *simView) Image(i int) [3]int32      { return v.image[i] }
func (v *simView) Domain() bridge.Domain     { return bridge.Domain{Xprd: 20, Yprd: 20, Zprd: 20} }
func (v *simView) Dt() float64               { return v.dt }
func (v *simView) CurrentTime() float64      { return float64(v.step) * v.dt }
func (v *simView) Step() uint64              { return v.step }

func (v *simView) AddForce(i int, fx, fy, fz float64) {
	v.force[i][0] += fx
	v.force[i][1] += fy
	v.force[i][2] += fz
}

// Advance integrates one trivial explicit-Euler step: velocity updates
// position, force resets to zero (as a real integrator would after
// consuming it), image flags are left untouched since positions never
// leave the box in this toy simulation.
func (v *simView) Advance() {
	for i := range v.tags {
		v.pos[i][0] += v.vel[i][0]
		v.pos[i][1] += v.vel[i][1]
		v.pos[i][2] += v.vel[i][2]
		v.force[i] = [3]float64{}
	}
}
