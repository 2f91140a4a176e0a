package feed

import "errors"

// Authorization rejections. Security failures: surfaced to the caller and
// never retried automatically.
var (
	ErrUntrustedTransport = errors.New("untrusted transport identity")
	ErrUntrustedOrigin    = errors.New("untrusted origin identity")
	ErrVersionMismatch    = errors.New("unexpected message version")
)

// Registry rejections. Operator-input errors.
var (
	ErrAlreadyRegistered = errors.New("feed already registered")
	ErrLengthMismatch    = errors.New("batch argument length mismatch")
	ErrFeedNotFound      = errors.New("feed not found")
)

// Update rejections. The relay treats these as permanent for the payload
// that produced them; resending the same round cannot succeed.
var (
	ErrFeedDisabled      = errors.New("feed disabled")
	ErrInvalidFeedSource = errors.New("feed does not match expected origin feed")
	ErrDecimalsMismatch  = errors.New("decimals mismatch")
	ErrInvalidPrice      = errors.New("answer must be positive")
	ErrStaleRound        = errors.New("round id not greater than latest")
	ErrStaleTimestamp    = errors.New("update timestamp behind latest")
)

// Query absences. Absence, not failure.
var (
	ErrNoData        = errors.New("no data for feed")
	ErrRoundNotFound = errors.New("round not found")
)

// Treasury rejections.
var ErrNoFunds = errors.New("no operational funds available")
