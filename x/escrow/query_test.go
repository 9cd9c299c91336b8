package escrow_test

import (
	"encoding/binary"
	"testing"

	"github.com/iov-one/weave"
	"github.com/iov-one/weave/coin"
	"github.com/iov-one/weave/errors"
	"github.com/iov-one/weave/migration"
	"github.com/iov-one/weave/orm"
	"github.com/iov-one/weave/store"
	"github.com/iov-one/weave/weavetest"
	"github.com/iov-one/weave/weavetest/assert"

	"github.com/iov-one/cosmoscrow/x/escrow"
)

// seedEscrow stores an escrow with the next sequence ID and returns
// that ID together with the store key.
func seedEscrow(t *testing.T, db weave.KVStore, bucket orm.ModelBucket, mutate func(esc *escrow.Escrow)) (uint64, []byte) {
	t.Helper()
	amount := coin.NewCoin(5, 0, "IOV")
	esc := &escrow.Escrow{
		Metadata:    &weave.Metadata{Schema: 1},
		Source:      weavetest.NewCondition().Address(),
		Beneficiary: weavetest.NewCondition().Address(),
		Approver1:   weavetest.NewCondition().Address(),
		Approver2:   weavetest.NewCondition().Address(),
		Amount:      &amount,
		CreatedAt:   1572247483,
		Address:     weavetest.NewCondition().Address(),
	}
	if mutate != nil {
		mutate(esc)
	}
	key, err := bucket.Put(db, nil, esc)
	assert.Nil(t, err)
	return binary.BigEndian.Uint64(key), key
}

func TestQuerierEscrow(t *testing.T) {
	db := store.MemStore()
	migration.MustInitPkg(db, "escrow")
	bucket := escrow.NewBucket()
	q := escrow.NewQuerier()

	alice := weavetest.NewCondition().Address()
	id, _ := seedEscrow(t, db, bucket, func(esc *escrow.Escrow) {
		esc.Source = alice
	})
	assert.Equal(t, uint64(1), id)

	esc, err := q.Escrow(db, 1)
	assert.Nil(t, err)
	if esc == nil {
		t.Fatal("expected an escrow")
	}
	assert.Equal(t, alice, esc.Source)

	missing, err := q.Escrow(db, 99)
	assert.Nil(t, err)
	if missing != nil {
		t.Fatalf("expected no escrow, got %+v", missing)
	}
}

func TestAllPagination(t *testing.T) {
	db := store.MemStore()
	migration.MustInitPkg(db, "escrow")
	bucket := escrow.NewBucket()
	q := escrow.NewQuerier()

	for i := 0; i < 12; i++ {
		seedEscrow(t, db, bucket, nil)
	}

	// zero limit falls back to the default of ten
	records, err := q.All(db, 0, 0)
	assert.Nil(t, err)
	assert.Equal(t, 10, len(records))
	assert.Equal(t, uint64(1), records[0].ID)
	assert.Equal(t, uint64(10), records[9].ID)

	records, err = q.All(db, 0, 30)
	assert.Nil(t, err)
	assert.Equal(t, 12, len(records))

	// an explicit limit above the default is honored as given
	records, err = q.All(db, 0, 11)
	assert.Nil(t, err)
	assert.Equal(t, 11, len(records))

	// startAfter is exclusive
	records, err = q.All(db, 2, 3)
	assert.Nil(t, err)
	assert.Equal(t, 3, len(records))
	assert.Equal(t, uint64(3), records[0].ID)
	assert.Equal(t, uint64(5), records[2].ID)

	records, err = q.All(db, 12, 10)
	assert.Nil(t, err)
	assert.Equal(t, 0, len(records))

	// walking pages visits every escrow exactly once
	var walked []uint64
	var cursor uint64
	for {
		page, err := q.All(db, cursor, 5)
		assert.Nil(t, err)
		if len(page) == 0 {
			break
		}
		for _, rec := range page {
			walked = append(walked, rec.ID)
			cursor = rec.ID
		}
	}
	assert.Equal(t, 12, len(walked))
	for i, id := range walked {
		assert.Equal(t, uint64(i+1), id)
	}
}

func TestAllLimitIsNotCapped(t *testing.T) {
	db := store.MemStore()
	migration.MustInitPkg(db, "escrow")
	bucket := escrow.NewBucket()
	q := escrow.NewQuerier()

	for i := 0; i < 32; i++ {
		seedEscrow(t, db, bucket, nil)
	}

	records, err := q.All(db, 0, 50)
	assert.Nil(t, err)
	assert.Equal(t, 32, len(records))
}

func TestByParticipantRejectsMalformedAddress(t *testing.T) {
	db := store.MemStore()
	migration.MustInitPkg(db, "escrow")
	q := escrow.NewQuerier()

	_, err := q.ByParticipant(db, weave.Address{0x1, 0x2, 0x3}, 0, 0)
	if !errors.ErrInput.Is(err) {
		t.Fatalf("expected an input error, got %+v", err)
	}
}

func TestByParticipantUnion(t *testing.T) {
	db := store.MemStore()
	migration.MustInitPkg(db, "escrow")
	bucket := escrow.NewBucket()
	q := escrow.NewQuerier()

	alice := weavetest.NewCondition().Address()

	seedEscrow(t, db, bucket, func(esc *escrow.Escrow) {
		esc.Source = alice
	})
	seedEscrow(t, db, bucket, func(esc *escrow.Escrow) {
		esc.Beneficiary = alice
	})
	seedEscrow(t, db, bucket, func(esc *escrow.Escrow) {
		esc.Approver2 = alice
	})
	// both source and approver, must show up once
	seedEscrow(t, db, bucket, func(esc *escrow.Escrow) {
		esc.Source = alice
		esc.Approver3 = alice
	})
	// unrelated
	seedEscrow(t, db, bucket, nil)

	records, err := q.ByParticipant(db, alice, 0, 0)
	assert.Nil(t, err)
	assert.Equal(t, 4, len(records))
	for i, want := range []uint64{1, 2, 3, 4} {
		assert.Equal(t, want, records[i].ID)
	}

	records, err = q.ByParticipant(db, alice, 2, 0)
	assert.Nil(t, err)
	assert.Equal(t, 2, len(records))
	assert.Equal(t, uint64(3), records[0].ID)
	assert.Equal(t, uint64(4), records[1].ID)

	records, err = q.ByParticipant(db, alice, 0, 1)
	assert.Nil(t, err)
	assert.Equal(t, 1, len(records))
	assert.Equal(t, uint64(1), records[0].ID)
}

func TestCompletionAndIndexVisibility(t *testing.T) {
	db := store.MemStore()
	migration.MustInitPkg(db, "escrow")
	bucket := escrow.NewBucket()
	q := escrow.NewQuerier()

	alice := weavetest.NewCondition().Address()

	_, cancelledKey := seedEscrow(t, db, bucket, func(esc *escrow.Escrow) {
		esc.Source = alice
	})
	_, releasedKey := seedEscrow(t, db, bucket, func(esc *escrow.Escrow) {
		esc.Source = alice
	})

	var esc escrow.Escrow

	// cancel the first: completed without a release stamp
	assert.Nil(t, bucket.One(db, cancelledKey, &esc))
	esc.IsCompleted = true
	_, err := bucket.Put(db, cancelledKey, &esc)
	assert.Nil(t, err)

	// release the second: completed with the stamp
	assert.Nil(t, bucket.One(db, releasedKey, &esc))
	esc.Approvals = []weave.Address{esc.Approver1}
	esc.IsCompleted = true
	esc.CompletedAt = 1572247500
	_, err = bucket.Put(db, releasedKey, &esc)
	assert.Nil(t, err)

	// the released escrow stays visible by address, the cancelled one
	// is gone from the indexes
	records, err := q.ByParticipant(db, alice, 0, 0)
	assert.Nil(t, err)
	assert.Equal(t, 1, len(records))
	assert.Equal(t, uint64(2), records[0].ID)

	// both are still in the bucket itself
	all, err := q.All(db, 0, 0)
	assert.Nil(t, err)
	assert.Equal(t, 2, len(all))
}
