package fixed

var (
	NegOne  = FromInt64(-1, 0)
	Zero    = FromInt64(0, 0)
	One     = FromInt64(1, 0)
	Two     = FromInt64(2, 0)
	Four    = FromInt64(4, 0)
	Hundred = FromInt64(100, 0)
)
