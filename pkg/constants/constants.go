package constants

type contextKey int

const (
	TxKey contextKey = iota
	PoolKey
)
