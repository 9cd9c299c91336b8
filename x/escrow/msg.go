package escrow

import (
	"github.com/iov-one/weave"
	"github.com/iov-one/weave/coin"
	"github.com/iov-one/weave/errors"
	"github.com/iov-one/weave/migration"
)

func init() {
	migration.MustRegister(1, &CreateEscrowMsg{}, migration.NoModification)
	migration.MustRegister(1, &ApproveEscrowMsg{}, migration.NoModification)
	migration.MustRegister(1, &CancelEscrowMsg{}, migration.NoModification)
}

const (
	pathCreateEscrowMsg  = "escrow/create"
	pathApproveEscrowMsg = "escrow/approve"
	pathCancelEscrowMsg  = "escrow/cancel"

	maxDescriptionSize int = 256
)

var _ weave.Msg = (*CreateEscrowMsg)(nil)
var _ weave.Msg = (*ApproveEscrowMsg)(nil)
var _ weave.Msg = (*CancelEscrowMsg)(nil)

// Path fulfills weave.Msg interface to allow routing
func (CreateEscrowMsg) Path() string {
	return pathCreateEscrowMsg
}

// Path fulfills weave.Msg interface to allow routing
func (ApproveEscrowMsg) Path() string {
	return pathApproveEscrowMsg
}

// Path fulfills weave.Msg interface to allow routing
func (CancelEscrowMsg) Path() string {
	return pathCancelEscrowMsg
}

// Validate makes sure that this is sensible. The funds are checked
// before the parties so that a malformed deposit is reported first.
func (m *CreateEscrowMsg) Validate() error {
	if err := m.Metadata.Validate(); err != nil {
		return errors.Wrap(err, "metadata")
	}
	if err := validateAmount(m.Amount); err != nil {
		return err
	}
	if m.Beneficiary == nil {
		return errors.Wrap(errors.ErrEmpty, "beneficiary")
	}
	if err := m.Beneficiary.Validate(); err != nil {
		return errors.Wrap(err, "beneficiary")
	}
	if err := validateApprovers(m.Approver1, m.Approver2, m.Approver3); err != nil {
		return err
	}
	if len(m.Description) > maxDescriptionSize {
		return errors.Wrapf(errors.ErrInput, "description %s", m.Description)
	}
	return validateAddresses(m.Source)
}

// Validate makes sure that this is sensible
func (m *ApproveEscrowMsg) Validate() error {
	if err := m.Metadata.Validate(); err != nil {
		return errors.Wrap(err, "metadata")
	}
	return validateEscrowID(m.EscrowId)
}

// Validate makes sure that this is sensible
func (m *CancelEscrowMsg) Validate() error {
	if err := m.Metadata.Validate(); err != nil {
		return errors.Wrap(err, "metadata")
	}
	return validateEscrowID(m.EscrowId)
}

// validateApprovers requires the first two approvers, only the third
// one is optional. Duplicates are allowed, they collapse into a single
// quorum seat, so a sole approver is configured by listing the same
// address twice.
func validateApprovers(a1, a2, a3 weave.Address) error {
	if len(a1) == 0 {
		return errors.Wrap(errors.ErrEmpty, "approver1")
	}
	if err := a1.Validate(); err != nil {
		return errors.Wrap(err, "approver1")
	}
	if len(a2) == 0 {
		return errors.Wrap(errors.ErrEmpty, "approver2")
	}
	if err := a2.Validate(); err != nil {
		return errors.Wrap(err, "approver2")
	}
	if len(a3) != 0 {
		if err := a3.Validate(); err != nil {
			return errors.Wrap(err, "approver3")
		}
	}
	return nil
}

// validateAddresses returns an error if any address doesn't validate
// nil is considered valid here
func validateAddresses(addrs ...weave.Address) error {
	for _, a := range addrs {
		if a != nil {
			if err := a.Validate(); err != nil {
				return err
			}
		}
	}
	return nil
}

// validateAmount accepts only a single positive coin. Zero, negative
// and multi currency deposits are rejected as insufficient funds.
func validateAmount(amount []*coin.Coin) error {
	if len(amount) != 1 {
		return errors.Wrapf(ErrInsufficientFunds, "expected one coin, got %d", len(amount))
	}
	c := amount[0]
	if c == nil || !c.IsPositive() {
		return errors.Wrapf(ErrInsufficientFunds, "non-positive amount: %v", c)
	}
	return c.Validate()
}

func validateEscrowID(id []byte) error {
	if len(id) != 8 {
		return errors.Wrapf(errors.ErrInput, "escrow id: %X", id)
	}
	return nil
}
