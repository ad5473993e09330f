package domain

import "errors"

var (
	// ErrInvalidLinkage is returned when a record's previous-record reference
	// does not resolve to a record of the same dataset
	ErrInvalidLinkage = errors.New("invalid linkage")

	// ErrDuplicateRoot is returned when a second creation record with no
	// predecessor is appended to a dataset that already has a root
	ErrDuplicateRoot = errors.New("duplicate root")

	// ErrMissingRoot is returned when a dataset's chain has no record with a
	// nil previous-record reference
	ErrMissingRoot = errors.New("missing root")

	// ErrBrokenChain is returned when a non-root record's predecessor does not
	// resolve within the dataset's record set
	ErrBrokenChain = errors.New("broken chain")

	// ErrCycleDetected is returned when chain traversal exceeds the record
	// count, indicating a corrupted history
	ErrCycleDetected = errors.New("cycle detected")

	// ErrInvalidShareSum is returned when contributor shares do not sum to 100
	ErrInvalidShareSum = errors.New("invalid share sum")

	// ErrDuplicateContributor is returned when the same address appears twice
	// in a share input set
	ErrDuplicateContributor = errors.New("duplicate contributor")

	// ErrOutOfRangeShare is returned when a share is below 0 or above 100
	ErrOutOfRangeShare = errors.New("share out of range")

	// ErrNoContributors is returned when a distribution is attempted for a
	// dataset with no contributors
	ErrNoContributors = errors.New("no contributors")

	// ErrAlreadyVerified is returned when a dataset's chain already contains a
	// verification record
	ErrAlreadyVerified = errors.New("already verified")

	// ErrRecordNotFound is returned when a provenance record does not exist
	ErrRecordNotFound = errors.New("record not found")

	// ErrInvalidActionType is returned when an action type is outside the closed enum
	ErrInvalidActionType = errors.New("invalid action type")

	// ErrInvalidAddress is returned when a wallet address is malformed
	ErrInvalidAddress = errors.New("invalid address")

	// ErrInvalidAmount is returned when a revenue amount is not positive
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrInvalidDetail is returned when an event detail does not match the
	// record's action type
	ErrInvalidDetail = errors.New("invalid event detail")

	// ErrMissingDescription is returned when a lifecycle event carries no
	// human-readable summary
	ErrMissingDescription = errors.New("missing description")

	// ErrChainTxAlreadySet is returned when a chain transaction reference is
	// attached to a record that already has one
	ErrChainTxAlreadySet = errors.New("chain transaction reference already set")
)
