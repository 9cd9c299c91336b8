package escrow

import (
	"fmt"
	"strconv"

	"github.com/iov-one/weave"
	"github.com/iov-one/weave/coin"
	"github.com/iov-one/weave/errors"
	"github.com/iov-one/weave/migration"
	"github.com/iov-one/weave/orm"
	"github.com/iov-one/weave/x"
	"github.com/iov-one/weave/x/cash"
	"github.com/tendermint/tendermint/libs/common"
)

const (
	// pay escrow cost up-front
	createEscrowCost  int64 = 300
	approveEscrowCost int64 = 50
	cancelEscrowCost  int64 = 0
)

// RegisterRoutes will instantiate and register
// all handlers in this package
func RegisterRoutes(r weave.Registry, auth x.Authenticator, cashctrl cash.Controller) {
	r = migration.SchemaMigratingRegistry("escrow", r)
	bucket := NewBucket()

	r.Handle(&CreateEscrowMsg{}, CreateEscrowHandler{auth, bucket, cashctrl})
	r.Handle(&ApproveEscrowMsg{}, ApproveEscrowHandler{auth, bucket, cashctrl})
	r.Handle(&CancelEscrowMsg{}, CancelEscrowHandler{auth, bucket, cashctrl})
}

// RegisterQuery will register this bucket as "/escrows"
func RegisterQuery(qr weave.QueryRouter) {
	NewBucket().Register("escrows", qr)
}

// CreateEscrowHandler creates a new escrow and locks the deposit under
// its account.
type CreateEscrowHandler struct {
	auth   x.Authenticator
	bucket orm.ModelBucket
	bank   cash.CoinMover
}

var _ weave.Handler = CreateEscrowHandler{}

// Check just verifies it is properly formed and returns
// the cost of executing it.
func (h CreateEscrowHandler) Check(ctx weave.Context, db weave.KVStore, tx weave.Tx) (*weave.CheckResult, error) {
	_, err := h.validate(ctx, db, tx)
	if err != nil {
		return nil, err
	}

	res := &weave.CheckResult{
		GasAllocated: createEscrowCost,
	}
	return res, nil
}

// Deliver moves the deposit from the source to the escrow account if
// all preconditions are met. The sequence only advances once the
// message validated, a rejected create never burns an ID.
func (h CreateEscrowHandler) Deliver(ctx weave.Context, db weave.KVStore, tx weave.Tx) (*weave.DeliverResult, error) {
	msg, err := h.validate(ctx, db, tx)
	if err != nil {
		return nil, err
	}

	// apply a default for source
	source := msg.Source
	if source == nil {
		source = x.AnySigner(ctx, h.auth).Address()
	}

	key, err := escrowSeq.NextVal(db)
	if err != nil {
		return nil, errors.Wrap(err, "cannot acquire key")
	}

	now, err := weave.BlockTime(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "block time")
	}

	escrow := &Escrow{
		Metadata:    &weave.Metadata{Schema: 1},
		Source:      source,
		Beneficiary: msg.Beneficiary,
		Approver1:   msg.Approver1,
		Approver2:   msg.Approver2,
		Approver3:   msg.Approver3,
		Amount:      msg.Amount[0],
		Description: msg.Description,
		CreatedAt:   weave.AsUnixTime(now),
		Address:     Condition(key).Address(),
	}
	if _, err := h.bucket.Put(db, key, escrow); err != nil {
		return nil, errors.Wrap(err, "cannot store escrow")
	}

	// Deposit to the escrow account.
	if err := moveCoins(db, h.bank, escrow.Source, escrow.Address, msg.Amount); err != nil {
		return nil, err
	}
	res := &weave.DeliverResult{
		Data: key,
		Tags: []common.KVPair{
			{Key: []byte("method"), Value: []byte("create_escrow")},
			{Key: []byte("escrow_id"), Value: []byte(fmt.Sprintf("%X", key))},
			{Key: []byte("creator"), Value: []byte(escrow.Source.String())},
			{Key: []byte("beneficiary"), Value: []byte(escrow.Beneficiary.String())},
			{Key: []byte("amount"), Value: []byte(escrow.Amount.String())},
			{Key: []byte("description"), Value: []byte(escrow.Description)},
		},
	}
	return res, nil
}

// validate does all common pre-processing between Check and Deliver.
func (h CreateEscrowHandler) validate(ctx weave.Context, db weave.KVStore, tx weave.Tx) (*CreateEscrowMsg, error) {
	var msg CreateEscrowMsg
	if err := weave.LoadMsg(tx, &msg); err != nil {
		return nil, errors.Wrap(err, "load msg")
	}

	// Source must authorize this (if not set, defaults to the first signer).
	if msg.Source != nil {
		if !h.auth.HasAddress(ctx, msg.Source) {
			return nil, errors.ErrUnauthorized
		}
	}

	return &msg, nil
}

// ApproveEscrowHandler collects an approval and pays out to the
// beneficiary once the quorum is met.
type ApproveEscrowHandler struct {
	auth   x.Authenticator
	bucket orm.ModelBucket
	bank   cash.Controller
}

var _ weave.Handler = ApproveEscrowHandler{}

// Check just verifies it is properly formed and returns
// the cost of executing it.
func (h ApproveEscrowHandler) Check(ctx weave.Context, db weave.KVStore, tx weave.Tx) (*weave.CheckResult, error) {
	_, _, _, err := h.validate(ctx, db, tx)
	if err != nil {
		return nil, err
	}

	return &weave.CheckResult{GasAllocated: approveEscrowCost}, nil
}

// Deliver records the approval. When this was the approval that meets
// the quorum the escrow completes and the funds move to the
// beneficiary. The index entries of a released escrow are kept.
func (h ApproveEscrowHandler) Deliver(ctx weave.Context, db weave.KVStore, tx weave.Tx) (*weave.DeliverResult, error) {
	msg, escrow, approver, err := h.validate(ctx, db, tx)
	if err != nil {
		return nil, err
	}

	escrow.Approvals = append(escrow.Approvals, approver)

	released := false
	if escrow.CanBeReleased() {
		now, err := weave.BlockTime(ctx)
		if err != nil {
			return nil, errors.Wrap(err, "block time")
		}
		escrow.IsCompleted = true
		escrow.CompletedAt = weave.AsUnixTime(now)
		released = true
	}

	if _, err := h.bucket.Put(db, msg.EscrowId, escrow); err != nil {
		return nil, errors.Wrap(err, "cannot save escrow")
	}

	if released {
		amount := []*coin.Coin{escrow.Amount}
		if err := moveCoins(db, h.bank, escrow.Address, escrow.Beneficiary, amount); err != nil {
			return nil, err
		}
	}

	tags := []common.KVPair{
		{Key: []byte("method"), Value: []byte("approve_escrow")},
		{Key: []byte("escrow_id"), Value: []byte(fmt.Sprintf("%X", msg.EscrowId))},
		{Key: []byte("approver"), Value: []byte(approver.String())},
		{Key: []byte("total_approvals"), Value: []byte(strconv.Itoa(len(escrow.Approvals)))},
		{Key: []byte("released"), Value: []byte(strconv.FormatBool(released))},
	}
	if released {
		tags = append(tags,
			common.KVPair{Key: []byte("released_to"), Value: []byte(escrow.Beneficiary.String())},
			common.KVPair{Key: []byte("amount_released"), Value: []byte(escrow.Amount.String())},
		)
	}
	res := &weave.DeliverResult{
		Data: msg.EscrowId,
		Tags: tags,
	}
	return res, nil
}

// validate does all common pre-processing between Check and Deliver.
// It resolves which configured approver signed the transaction.
func (h ApproveEscrowHandler) validate(ctx weave.Context, db weave.KVStore, tx weave.Tx) (*ApproveEscrowMsg, *Escrow, weave.Address, error) {
	var msg ApproveEscrowMsg
	if err := weave.LoadMsg(tx, &msg); err != nil {
		return nil, nil, nil, errors.Wrap(err, "load msg")
	}

	var escrow Escrow
	if err := h.bucket.One(db, msg.EscrowId, &escrow); err != nil {
		return nil, nil, nil, errors.Wrap(err, "cannot load escrow from the store")
	}

	// Completion is checked before membership so that a late approval
	// on a settled escrow always reports the terminal state.
	if escrow.IsCompleted {
		return nil, nil, nil, ErrCompleted
	}

	var approver weave.Address
	for _, a := range escrow.DistinctApprovers() {
		if h.auth.HasAddress(ctx, a) {
			approver = a
			break
		}
	}
	if approver == nil {
		return nil, nil, nil, errors.Wrap(errors.ErrUnauthorized, "not an approver")
	}

	if escrow.HasApproved(approver) {
		return nil, nil, nil, ErrAlreadyApproved
	}

	return &msg, &escrow, approver, nil
}

// CancelEscrowHandler refunds the source before any approval was
// collected.
type CancelEscrowHandler struct {
	auth   x.Authenticator
	bucket orm.ModelBucket
	bank   cash.Controller
}

var _ weave.Handler = CancelEscrowHandler{}

// Check just verifies it is properly formed and returns
// the cost of executing it.
func (h CancelEscrowHandler) Check(ctx weave.Context, db weave.KVStore, tx weave.Tx) (*weave.CheckResult, error) {
	_, _, err := h.validate(ctx, db, tx)
	if err != nil {
		return nil, err
	}

	return &weave.CheckResult{GasAllocated: cancelEscrowCost}, nil
}

// Deliver completes the escrow without a release stamp and refunds the
// full amount to the source. The missing completion stamp is what
// drops the escrow from the address indexes.
func (h CancelEscrowHandler) Deliver(ctx weave.Context, db weave.KVStore, tx weave.Tx) (*weave.DeliverResult, error) {
	msg, escrow, err := h.validate(ctx, db, tx)
	if err != nil {
		return nil, err
	}

	escrow.IsCompleted = true
	if _, err := h.bucket.Put(db, msg.EscrowId, escrow); err != nil {
		return nil, errors.Wrap(err, "cannot save escrow")
	}

	amount := []*coin.Coin{escrow.Amount}
	if err := moveCoins(db, h.bank, escrow.Address, escrow.Source, amount); err != nil {
		return nil, err
	}

	res := &weave.DeliverResult{
		Data: msg.EscrowId,
		Tags: []common.KVPair{
			{Key: []byte("method"), Value: []byte("cancel_escrow")},
			{Key: []byte("escrow_id"), Value: []byte(fmt.Sprintf("%X", msg.EscrowId))},
			{Key: []byte("refunded_to"), Value: []byte(escrow.Source.String())},
		},
	}
	return res, nil
}

// validate does all common pre-processing between Check and Deliver.
func (h CancelEscrowHandler) validate(ctx weave.Context, db weave.KVStore, tx weave.Tx) (*CancelEscrowMsg, *Escrow, error) {
	var msg CancelEscrowMsg
	if err := weave.LoadMsg(tx, &msg); err != nil {
		return nil, nil, errors.Wrap(err, "load msg")
	}

	var escrow Escrow
	if err := h.bucket.One(db, msg.EscrowId, &escrow); err != nil {
		return nil, nil, errors.Wrap(err, "cannot load escrow from the store")
	}

	// Only the source may cancel.
	if !h.auth.HasAddress(ctx, escrow.Source) {
		return nil, nil, errors.ErrUnauthorized
	}

	if escrow.IsCompleted {
		return nil, nil, ErrCompleted
	}

	// Once any approval exists the source lost the right to back out.
	if len(escrow.Approvals) > 0 {
		return nil, nil, errors.Wrap(errors.ErrUnauthorized, "approvals already collected")
	}

	return &msg, &escrow, nil
}

func moveCoins(db weave.KVStore, bank cash.CoinMover, src, dest weave.Address, amounts []*coin.Coin) error {
	for _, c := range amounts {
		if err := bank.MoveCoins(db, src, dest, *c); err != nil {
			return errors.Wrapf(err, "cannot move %q", c.String())
		}
	}
	return nil
}
