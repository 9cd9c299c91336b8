package escrow

import (
	"testing"

	"github.com/iov-one/weave"
	"github.com/iov-one/weave/coin"
	"github.com/iov-one/weave/orm"
	"github.com/iov-one/weave/weavetest"
	"github.com/iov-one/weave/weavetest/assert"
)

func TestQuorumArithmetic(t *testing.T) {
	a := weavetest.NewCondition().Address()
	b := weavetest.NewCondition().Address()
	c := weavetest.NewCondition().Address()

	cases := map[string]struct {
		approvers    [3]weave.Address
		wantDistinct int
		wantRequired int
	}{
		"single approver decides alone": {
			approvers:    [3]weave.Address{a, nil, nil},
			wantDistinct: 1,
			wantRequired: 1,
		},
		"two approvers must both agree": {
			approvers:    [3]weave.Address{a, b, nil},
			wantDistinct: 2,
			wantRequired: 2,
		},
		"three approvers form two of three": {
			approvers:    [3]weave.Address{a, b, c},
			wantDistinct: 3,
			wantRequired: 2,
		},
		"duplicate pair collapses": {
			approvers:    [3]weave.Address{a, a, nil},
			wantDistinct: 1,
			wantRequired: 1,
		},
		"duplicate in three collapses": {
			approvers:    [3]weave.Address{a, b, a},
			wantDistinct: 2,
			wantRequired: 2,
		},
		"all the same": {
			approvers:    [3]weave.Address{a, a, a},
			wantDistinct: 1,
			wantRequired: 1,
		},
		"gap in the middle": {
			approvers:    [3]weave.Address{nil, b, c},
			wantDistinct: 2,
			wantRequired: 2,
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			esc := Escrow{
				Approver1: tc.approvers[0],
				Approver2: tc.approvers[1],
				Approver3: tc.approvers[2],
			}
			assert.Equal(t, tc.wantDistinct, len(esc.DistinctApprovers()))
			assert.Equal(t, tc.wantRequired, esc.RequiredApprovals())
		})
	}
}

func TestCanBeReleased(t *testing.T) {
	a := weavetest.NewCondition().Address()
	b := weavetest.NewCondition().Address()
	c := weavetest.NewCondition().Address()

	esc := Escrow{Approver1: a, Approver2: b, Approver3: c}
	assert.Equal(t, false, esc.CanBeReleased())

	esc.Approvals = []weave.Address{a}
	assert.Equal(t, false, esc.CanBeReleased())

	esc.Approvals = []weave.Address{a, c}
	assert.Equal(t, true, esc.CanBeReleased())
}

func TestApproverMembership(t *testing.T) {
	a := weavetest.NewCondition().Address()
	b := weavetest.NewCondition().Address()
	stranger := weavetest.NewCondition().Address()

	esc := Escrow{
		Approver1: a,
		Approver2: b,
		Approver3: a,
		Approvals: []weave.Address{a},
	}
	assert.Equal(t, true, esc.IsApprover(a))
	assert.Equal(t, true, esc.IsApprover(b))
	assert.Equal(t, false, esc.IsApprover(stranger))
	assert.Equal(t, true, esc.HasApproved(a))
	assert.Equal(t, false, esc.HasApproved(b))
}

func TestEscrowValidation(t *testing.T) {
	amount := coin.NewCoin(10, 0, "IOV")
	zero := coin.NewCoin(0, 0, "IOV")
	key := weavetest.SequenceID(1)
	approver := weavetest.NewCondition().Address()
	second := weavetest.NewCondition().Address()
	stranger := weavetest.NewCondition().Address()

	valid := Escrow{
		Metadata:    &weave.Metadata{Schema: 1},
		Source:      weavetest.NewCondition().Address(),
		Beneficiary: weavetest.NewCondition().Address(),
		Approver1:   approver,
		Approver2:   second,
		Amount:      &amount,
		Description: "settlement",
		CreatedAt:   1572247483,
		Address:     Condition(key).Address(),
	}

	cases := map[string]struct {
		mutate  func(esc *Escrow)
		wantErr bool
	}{
		"valid escrow": {
			mutate:  func(esc *Escrow) {},
			wantErr: false,
		},
		"missing metadata": {
			mutate:  func(esc *Escrow) { esc.Metadata = nil },
			wantErr: true,
		},
		"missing beneficiary": {
			mutate:  func(esc *Escrow) { esc.Beneficiary = nil },
			wantErr: true,
		},
		"missing first approver": {
			mutate:  func(esc *Escrow) { esc.Approver1 = nil },
			wantErr: true,
		},
		"missing second approver": {
			mutate:  func(esc *Escrow) { esc.Approver2 = nil },
			wantErr: true,
		},
		"duplicate instead of a second approver": {
			mutate:  func(esc *Escrow) { esc.Approver2 = esc.Approver1 },
			wantErr: false,
		},
		"missing amount": {
			mutate:  func(esc *Escrow) { esc.Amount = nil },
			wantErr: true,
		},
		"zero amount": {
			mutate:  func(esc *Escrow) { esc.Amount = &zero },
			wantErr: true,
		},
		"approval from a stranger": {
			mutate:  func(esc *Escrow) { esc.Approvals = []weave.Address{stranger} },
			wantErr: true,
		},
		"approval from the approver": {
			mutate:  func(esc *Escrow) { esc.Approvals = []weave.Address{approver} },
			wantErr: false,
		},
		"missing creation time": {
			mutate:  func(esc *Escrow) { esc.CreatedAt = 0 },
			wantErr: true,
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			esc := *(valid.Copy().(*Escrow))
			tc.mutate(&esc)
			err := esc.Validate()
			if tc.wantErr && err == nil {
				t.Fatal("expected an error")
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("unexpected error: %+v", err)
			}
		})
	}
}

func TestIndexKeysFollowCompletion(t *testing.T) {
	amount := coin.NewCoin(10, 0, "IOV")
	key := weavetest.SequenceID(1)
	source := weavetest.NewCondition().Address()
	beneficiary := weavetest.NewCondition().Address()
	a := weavetest.NewCondition().Address()
	b := weavetest.NewCondition().Address()

	esc := &Escrow{
		Metadata:    &weave.Metadata{Schema: 1},
		Source:      source,
		Beneficiary: beneficiary,
		Approver1:   a,
		Approver2:   b,
		Approver3:   a,
		Amount:      &amount,
		CreatedAt:   1572247483,
		Address:     Condition(key).Address(),
	}
	obj := orm.NewSimpleObj(key, esc)

	k, err := idxSource(obj)
	assert.Nil(t, err)
	assert.Equal(t, []byte(source), k)

	k, err = idxBeneficiary(obj)
	assert.Nil(t, err)
	assert.Equal(t, []byte(beneficiary), k)

	keys, err := idxApprovers(obj)
	assert.Nil(t, err)
	// the duplicate approver yields a single index entry
	assert.Equal(t, 2, len(keys))

	// a released escrow keeps its index entries
	esc.IsCompleted = true
	esc.CompletedAt = 1572247500
	k, err = idxSource(obj)
	assert.Nil(t, err)
	assert.Equal(t, []byte(source), k)

	// a cancelled one drops them
	esc.CompletedAt = 0
	k, err = idxSource(obj)
	assert.Nil(t, err)
	assert.Equal(t, 0, len(k))
	k, err = idxBeneficiary(obj)
	assert.Nil(t, err)
	assert.Equal(t, 0, len(k))
	keys, err = idxApprovers(obj)
	assert.Nil(t, err)
	assert.Equal(t, 0, len(keys))
}
