package domain

const (
	// Share accounting constants
	SHARE_TOTAL     = 100.0
	SHARE_TOLERANCE = 1e-6
)
