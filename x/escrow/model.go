package escrow

import (
	"bytes"

	"github.com/iov-one/weave"
	"github.com/iov-one/weave/errors"
	"github.com/iov-one/weave/migration"
	"github.com/iov-one/weave/orm"
)

func init() {
	migration.MustRegister(1, &Escrow{}, migration.NoModification)
}

var _ orm.CloneableData = (*Escrow)(nil)

// Validate ensures the escrow is valid
func (e *Escrow) Validate() error {
	if err := e.Metadata.Validate(); err != nil {
		return errors.Wrap(err, "metadata")
	}
	if err := e.Source.Validate(); err != nil {
		return errors.Wrap(err, "source")
	}
	if err := e.Beneficiary.Validate(); err != nil {
		return errors.Wrap(err, "beneficiary")
	}
	if err := validateApprovers(e.Approver1, e.Approver2, e.Approver3); err != nil {
		return err
	}
	if e.Amount == nil || !e.Amount.IsPositive() {
		return errors.Wrap(ErrInsufficientFunds, "amount")
	}
	if len(e.Description) > maxDescriptionSize {
		return errors.Wrapf(errors.ErrInput, "description %s", e.Description)
	}
	for _, a := range e.Approvals {
		if !e.IsApprover(a) {
			return errors.Wrapf(errors.ErrState, "approval from non approver %s", a)
		}
	}
	if e.CreatedAt == 0 {
		return errors.Wrap(errors.ErrEmpty, "created at")
	}
	return e.Address.Validate()
}

// Copy makes a new escrow with the same values
func (e *Escrow) Copy() orm.CloneableData {
	approvals := make([]weave.Address, len(e.Approvals))
	copy(approvals, e.Approvals)
	return &Escrow{
		Metadata:    e.Metadata.Copy(),
		Source:      e.Source,
		Beneficiary: e.Beneficiary,
		Approver1:   e.Approver1,
		Approver2:   e.Approver2,
		Approver3:   e.Approver3,
		Amount:      e.Amount.Clone(),
		Description: e.Description,
		Approvals:   approvals,
		IsCompleted: e.IsCompleted,
		CreatedAt:   e.CreatedAt,
		CompletedAt: e.CompletedAt,
		Address:     e.Address.Clone(),
	}
}

// DistinctApprovers returns the configured approvers with duplicate
// and empty entries dropped. An address listed twice holds a single
// seat in the quorum.
func (e *Escrow) DistinctApprovers() []weave.Address {
	var out []weave.Address
	for _, a := range [][]byte{e.Approver1, e.Approver2, e.Approver3} {
		if len(a) == 0 {
			continue
		}
		dup := false
		for _, seen := range out {
			if bytes.Equal(seen, a) {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, weave.Address(a))
		}
	}
	return out
}

// RequiredApprovals returns how many approvals release the funds. A
// single approver decides alone, two must both agree, three form a
// two-of-three quorum.
func (e *Escrow) RequiredApprovals() int {
	switch len(e.DistinctApprovers()) {
	case 1:
		return 1
	case 2:
		return 2
	default:
		return 2
	}
}

// CanBeReleased returns true once enough approvals were collected.
func (e *Escrow) CanBeReleased() bool {
	return len(e.Approvals) >= e.RequiredApprovals()
}

// IsApprover returns true if addr is one of the configured approvers.
func (e *Escrow) IsApprover(addr weave.Address) bool {
	for _, a := range e.DistinctApprovers() {
		if a.Equals(addr) {
			return true
		}
	}
	return false
}

// HasApproved returns true if addr already approved this escrow.
func (e *Escrow) HasApproved(addr weave.Address) bool {
	for _, a := range e.Approvals {
		if a.Equals(addr) {
			return true
		}
	}
	return false
}

// isCancelled is true for escrows completed without a release. Release
// stamps CompletedAt, cancel does not.
func (e *Escrow) isCancelled() bool {
	return e.IsCompleted && e.CompletedAt == 0
}

// AsEscrow extracts an *Escrow value or nil from the object
// Must be called on a Bucket result that is an *Escrow,
// will panic on bad type.
func AsEscrow(obj orm.Object) *Escrow {
	if obj == nil || obj.Value() == nil {
		return nil
	}
	return obj.Value().(*Escrow)
}

// Condition calculates the address of an escrow given
// the key
func Condition(key []byte) weave.Condition {
	return weave.NewCondition("escrow", "seq", key)
}

// NewBucket returns the bucket holding all escrows. Cancelled escrows
// drop out of all three indexes, released ones stay listed.
func NewBucket() orm.ModelBucket {
	b := orm.NewModelBucket("esc", &Escrow{},
		orm.WithIDSequence(escrowSeq),
		orm.WithIndex("source", idxSource, false),
		orm.WithIndex("beneficiary", idxBeneficiary, false),
		orm.WithIndex("approver", idxApprovers, false),
	)
	return migration.NewModelBucket("escrow", b)
}

var escrowSeq = orm.NewSequence("escrow", "id")

func toEscrow(obj orm.Object) (*Escrow, error) {
	if obj == nil {
		return nil, errors.Wrap(errors.ErrHuman, "Cannot take index of nil")
	}
	esc, ok := obj.Value().(*Escrow)
	if !ok {
		return nil, errors.Wrap(errors.ErrHuman, "Can only take index of Escrow")
	}
	return esc, nil
}

func idxSource(obj orm.Object) ([]byte, error) {
	esc, err := toEscrow(obj)
	if err != nil {
		return nil, err
	}
	if esc.isCancelled() {
		return nil, nil
	}
	return esc.Source, nil
}

func idxBeneficiary(obj orm.Object) ([]byte, error) {
	esc, err := toEscrow(obj)
	if err != nil {
		return nil, err
	}
	if esc.isCancelled() {
		return nil, nil
	}
	return esc.Beneficiary, nil
}

func idxApprovers(obj orm.Object) ([][]byte, error) {
	esc, err := toEscrow(obj)
	if err != nil {
		return nil, err
	}
	if esc.isCancelled() {
		return nil, nil
	}
	approvers := esc.DistinctApprovers()
	keys := make([][]byte, 0, len(approvers))
	for _, a := range approvers {
		keys = append(keys, a)
	}
	return keys, nil
}
