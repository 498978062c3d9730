package frame

// Domain describes a periodic simulation cell: orthogonal edge lengths
// plus triclinic tilt factors. A rectangular cell has Xy = Xz = Yz = 0.
type Domain struct {
	Xprd, Yprd, Zprd float64
	Xy, Xz, Yz       float64
}

// Unwrap reconstructs an unbounded-space coordinate from a wrapped
// position and its image flags. The triclinic terms drop out naturally
// for a rectangular cell (Xy = Xz = Yz = 0).
func Unwrap(pos [3]float64, image [3]int32, d Domain) [3]float64 {
	ix, iy, iz := float64(image[0]), float64(image[1]), float64(image[2])
	return [3]float64{
		pos[0] + ix*d.Xprd + iy*d.Xy + iz*d.Xz,
		pos[1] + iy*d.Yprd + iz*d.Yz,
		pos[2] + iz*d.Zprd,
	}
}
