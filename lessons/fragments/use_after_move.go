package fragment

// A parcel handed to a consuming function is gone: the binding that
// supplied the argument must not be touched again.
type parcel struct {
	label string
}

// ship takes ownership of its argument.
//
//movecheck:consumes p
func ship(p parcel) int {
	return len(p.label)
}

func demo() string {
	p := parcel{label: "books"}
	ship(p)
	return p.label
}
