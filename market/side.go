package market

type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

func (s Side) Valid() bool {
	return s == SideBuy || s == SideSell
}

// Direction of an open position, derived from the order side.
type Direction string

const (
	Long  Direction = "long"
	Short Direction = "short"
)

func (s Side) Direction() Direction {
	if s == SideSell {
		return Short
	}
	return Long
}

// Sign is +1 for long and -1 for short.
func (d Direction) Sign() int64 {
	if d == Short {
		return -1
	}
	return 1
}
