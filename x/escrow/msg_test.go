package escrow_test

import (
	"testing"

	"github.com/iov-one/weave"
	"github.com/iov-one/weave/coin"
	"github.com/iov-one/weave/errors"
	"github.com/iov-one/weave/weavetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iov-one/cosmoscrow/x/escrow"
)

func TestMsgPaths(t *testing.T) {
	assert.Equal(t, "escrow/create", escrow.CreateEscrowMsg{}.Path())
	assert.Equal(t, "escrow/approve", escrow.ApproveEscrowMsg{}.Path())
	assert.Equal(t, "escrow/cancel", escrow.CancelEscrowMsg{}.Path())
}

func TestCreateEscrowMsgValidate(t *testing.T) {
	good := coin.NewCoin(5, 0, "IOV")
	negative := coin.NewCoin(-5, 0, "IOV")
	other := coin.NewCoin(1, 0, "ETH")

	base := func() *escrow.CreateEscrowMsg {
		return &escrow.CreateEscrowMsg{
			Metadata:    &weave.Metadata{Schema: 1},
			Source:      weavetest.NewCondition().Address(),
			Beneficiary: weavetest.NewCondition().Address(),
			Approver1:   weavetest.NewCondition().Address(),
			Approver2:   weavetest.NewCondition().Address(),
			Amount:      []*coin.Coin{&good},
			Description: "security deposit",
		}
	}

	cases := map[string]struct {
		mutate  func(msg *escrow.CreateEscrowMsg)
		wantErr *errors.Error
	}{
		"valid message": {
			mutate: func(msg *escrow.CreateEscrowMsg) {},
		},
		"source is optional": {
			mutate: func(msg *escrow.CreateEscrowMsg) { msg.Source = nil },
		},
		"missing metadata": {
			mutate:  func(msg *escrow.CreateEscrowMsg) { msg.Metadata = nil },
			wantErr: errors.ErrMetadata,
		},
		"no funds": {
			mutate:  func(msg *escrow.CreateEscrowMsg) { msg.Amount = nil },
			wantErr: escrow.ErrInsufficientFunds,
		},
		"more than one coin": {
			mutate: func(msg *escrow.CreateEscrowMsg) {
				msg.Amount = append(msg.Amount, &other)
			},
			wantErr: escrow.ErrInsufficientFunds,
		},
		"negative amount": {
			mutate: func(msg *escrow.CreateEscrowMsg) {
				msg.Amount = []*coin.Coin{&negative}
			},
			wantErr: escrow.ErrInsufficientFunds,
		},
		"missing beneficiary": {
			mutate:  func(msg *escrow.CreateEscrowMsg) { msg.Beneficiary = nil },
			wantErr: errors.ErrEmpty,
		},
		"malformed beneficiary": {
			mutate: func(msg *escrow.CreateEscrowMsg) {
				msg.Beneficiary = weave.Address{0x1, 0x2, 0x3}
			},
			wantErr: errors.ErrInput,
		},
		"no approvers": {
			mutate: func(msg *escrow.CreateEscrowMsg) {
				msg.Approver1 = nil
				msg.Approver2 = nil
			},
			wantErr: errors.ErrEmpty,
		},
		"only the first approver": {
			mutate: func(msg *escrow.CreateEscrowMsg) {
				msg.Approver2 = nil
			},
			wantErr: errors.ErrEmpty,
		},
		"only the second approver": {
			mutate: func(msg *escrow.CreateEscrowMsg) {
				msg.Approver1 = nil
			},
			wantErr: errors.ErrEmpty,
		},
		"all three approvers": {
			mutate: func(msg *escrow.CreateEscrowMsg) {
				msg.Approver3 = weavetest.NewCondition().Address()
			},
		},
		"malformed approver": {
			mutate: func(msg *escrow.CreateEscrowMsg) {
				msg.Approver2 = weave.Address{0xff}
			},
			wantErr: errors.ErrInput,
		},
		"duplicate approvers are allowed": {
			mutate: func(msg *escrow.CreateEscrowMsg) {
				msg.Approver2 = msg.Approver1
			},
		},
		"description too long": {
			mutate: func(msg *escrow.CreateEscrowMsg) {
				long := make([]byte, 257)
				for i := range long {
					long[i] = 'x'
				}
				msg.Description = string(long)
			},
			wantErr: errors.ErrInput,
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			msg := base()
			tc.mutate(msg)
			err := msg.Validate()
			if tc.wantErr == nil {
				require.NoError(t, err)
			} else {
				assert.True(t, tc.wantErr.Is(err), "unexpected error: %+v", err)
			}
		})
	}
}

func TestApproveAndCancelMsgValidate(t *testing.T) {
	cases := map[string]struct {
		metadata *weave.Metadata
		escrowID []byte
		wantErr  *errors.Error
	}{
		"valid": {
			metadata: &weave.Metadata{Schema: 1},
			escrowID: weavetest.SequenceID(4),
		},
		"missing metadata": {
			escrowID: weavetest.SequenceID(4),
			wantErr:  errors.ErrMetadata,
		},
		"missing id": {
			metadata: &weave.Metadata{Schema: 1},
			wantErr:  errors.ErrInput,
		},
		"short id": {
			metadata: &weave.Metadata{Schema: 1},
			escrowID: []byte{1, 2, 3},
			wantErr:  errors.ErrInput,
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			approve := &escrow.ApproveEscrowMsg{Metadata: tc.metadata, EscrowId: tc.escrowID}
			cancel := &escrow.CancelEscrowMsg{Metadata: tc.metadata, EscrowId: tc.escrowID}
			for _, err := range []error{approve.Validate(), cancel.Validate()} {
				if tc.wantErr == nil {
					require.NoError(t, err)
				} else {
					assert.True(t, tc.wantErr.Is(err), "unexpected error: %+v", err)
				}
			}
		})
	}
}
