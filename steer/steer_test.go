package steer

import (
	"testing"

	"github.com/ljwoods2/imdbridge/wire"
)

type fakeParticles struct {
	inGroup []bool
	force   [][3]float64
}

func (p *fakeParticles) InGroup(i int) bool { return p.inGroup[i] }
func (p *fakeParticles) AddForce(i int, fx, fy, fz float64) {
	p.force[i][0] += fx
	p.force[i][1] += fy
	p.force[i][2] += fz
}

func TestApplyAddsScaledForceOnce(t *testing.T) {
	tags := []int64{3, 7, 10}
	idx := BuildLocalIndex(len(tags), func(i int) int64 { return tags[i] }, func(i int) bool { return true })
	revIdmap := []int64{3} // client index 0 -> tag 3

	p := &fakeParticles{inGroup: []bool{true, true, true}, force: make([][3]float64, 3)}
	forces := []wire.MDCommForce{{Index: 0, Force: [3]float32{1, 2, 3}}}

	n := Apply(idx, forces, revIdmap, 2.0, p)
	if n != 1 {
		t.Fatalf("applied = %d, want 1", n)
	}
	want := [3]float64{2, 4, 6}
	if p.force[0] != want {
		t.Fatalf("force[0] = %v, want %v", p.force[0], want)
	}
	if p.force[1] != ([3]float64{}) || p.force[2] != ([3]float64{}) {
		t.Fatal("force applied to unintended particle")
	}
}

func TestApplySkipsOutOfGroup(t *testing.T) {
	tags := []int64{5}
	idx := BuildLocalIndex(1, func(i int) int64 { return tags[i] }, func(i int) bool { return true })
	revIdmap := []int64{5}
	p := &fakeParticles{inGroup: []bool{false}, force: make([][3]float64, 1)}
	forces := []wire.MDCommForce{{Index: 0, Force: [3]float32{1, 1, 1}}}

	if n := Apply(idx, forces, revIdmap, 1.0, p); n != 0 {
		t.Fatalf("applied = %d, want 0", n)
	}
}

func TestApplySkipsUnownedTag(t *testing.T) {
	tags := []int64{5}
	idx := BuildLocalIndex(1, func(i int) int64 { return tags[i] }, func(i int) bool { return true })
	revIdmap := []int64{99} // not owned locally
	p := &fakeParticles{inGroup: []bool{true}, force: make([][3]float64, 1)}
	forces := []wire.MDCommForce{{Index: 0, Force: [3]float32{1, 1, 1}}}

	if n := Apply(idx, forces, revIdmap, 1.0, p); n != 0 {
		t.Fatalf("applied = %d, want 0", n)
	}
}

func TestApplySkipsOutOfRangeIndex(t *testing.T) {
	idx := BuildLocalIndex(0, func(i int) int64 { return 0 }, func(i int) bool { return false })
	revIdmap := []int64{1, 2}
	p := &fakeParticles{inGroup: []bool{}, force: nil}
	forces := []wire.MDCommForce{{Index: 5, Force: [3]float32{1, 1, 1}}}

	if n := Apply(idx, forces, revIdmap, 1.0, p); n != 0 {
		t.Fatalf("applied = %d, want 0", n)
	}
}
