package escrow

import (
	"github.com/iov-one/weave/errors"
)

var (
	// ErrCompleted is returned when approving or cancelling an escrow
	// that already reached a terminal state.
	ErrCompleted = errors.Register(150, "escrow already completed")

	// ErrAlreadyApproved is returned when an approver approves the
	// same escrow twice.
	ErrAlreadyApproved = errors.Register(151, "already approved")

	// ErrInsufficientFunds is returned when the escrowed amount is
	// missing, not positive, or spread over more than one currency.
	ErrInsufficientFunds = errors.Register(152, "insufficient funds")

	// ErrSelfApprove is reserved for rejecting approvals by the source
	// or beneficiary. No handler returns it, an approver who is also a
	// party to the escrow may approve.
	ErrSelfApprove = errors.Register(153, "cannot approve own escrow")
)
