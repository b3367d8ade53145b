package mathx

func FloorDiv(a, b int) int {
	// b > 0
	q := a / b
	r := a % b
	if r < 0 {
		q--
	}
	return q
}

func Mod(a, b int) int {
	// b > 0
	m := a % b
	if m < 0 {
		m += b
	}
	return m
}

func ClampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func mix64(z uint64) uint64 {
	z += 0x9e3779b97f4a7c15
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}

func Hash2(seed int64, x, z int) uint64 {
	ux := uint64(uint32(int32(x)))
	uz := uint64(uint32(int32(z)))
	v := uint64(seed) ^ (ux * 0x9e3779b97f4a7c15) ^ (uz * 0xbf58476d1ce4e5b9)
	return mix64(v)
}

// Unit2 maps Hash2 to [0,1).
func Unit2(seed int64, x, z int) float64 {
	return float64(Hash2(seed, x, z)>>11) / float64(1<<53)
}

// ValueNoise2 is bilinear value noise over a lattice with the given cell size.
// Output is in [0,1).
func ValueNoise2(seed int64, x, z, cell int) float64 {
	if cell <= 1 {
		return Unit2(seed, x, z)
	}
	gx := FloorDiv(x, cell)
	gz := FloorDiv(z, cell)
	fx := float64(Mod(x, cell)) / float64(cell)
	fz := float64(Mod(z, cell)) / float64(cell)
	// smoothstep
	fx = fx * fx * (3 - 2*fx)
	fz = fz * fz * (3 - 2*fz)

	v00 := Unit2(seed, gx, gz)
	v10 := Unit2(seed, gx+1, gz)
	v01 := Unit2(seed, gx, gz+1)
	v11 := Unit2(seed, gx+1, gz+1)
	a := v00 + (v10-v00)*fx
	b := v01 + (v11-v01)*fx
	return a + (b-a)*fz
}
