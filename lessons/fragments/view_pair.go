package fragment

// A gauge owns one reading. Callers copy the value out through Get, or
// reach through Ptr when they mean to write in place. Neither accessor
// consumes the gauge, so reads and writes can interleave freely.
type gauge struct {
	celsius int
}

func (g gauge) Get() int {
	return g.celsius
}

func (g *gauge) Ptr() *int {
	return &g.celsius
}

func calibrate() int {
	g := gauge{celsius: 20}
	before := g.Get()
	*g.Ptr() += 2
	return before + g.Get()
}
