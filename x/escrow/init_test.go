package escrow_test

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/iov-one/weave"
	"github.com/iov-one/weave/coin"
	"github.com/iov-one/weave/migration"
	"github.com/iov-one/weave/store"
	"github.com/iov-one/weave/weavetest"
	"github.com/iov-one/weave/weavetest/assert"
	"github.com/iov-one/weave/x/cash"

	"github.com/iov-one/cosmoscrow/x/escrow"
)

func TestGenesisInitializer(t *testing.T) {
	db := store.MemStore()
	migration.MustInitPkg(db, "escrow", "cash")

	alice := weavetest.NewCondition().Address()
	bob := weavetest.NewCondition().Address()
	p1 := weavetest.NewCondition().Address()
	p2 := weavetest.NewCondition().Address()

	bank := cash.NewBucket()
	ctrl := cash.NewController(bank)

	raw := fmt.Sprintf(`[
		{
			"source": "%s",
			"beneficiary": "%s",
			"approvers": ["%s", "%s"],
			"amount": {"whole": 10, "ticker": "IOV"},
			"description": "seeded",
			"created_at": 1572247483
		}
	]`, alice, bob, p1, p2)
	opts := weave.Options{"escrow": json.RawMessage(raw)}

	ini := escrow.Initializer{Minter: ctrl}
	assert.Nil(t, ini.FromGenesis(opts, weave.GenesisParams{}, db))

	q := escrow.NewQuerier()
	esc, err := q.Escrow(db, 1)
	assert.Nil(t, err)
	if esc == nil {
		t.Fatal("expected a seeded escrow")
	}
	assert.Equal(t, alice, esc.Source)
	assert.Equal(t, bob, esc.Beneficiary)
	assert.Equal(t, p1, esc.Approver1)
	assert.Equal(t, p2, esc.Approver2)
	assert.Equal(t, 2, esc.RequiredApprovals())
	assert.Equal(t, "seeded", esc.Description)

	acct, err := bank.Get(db, esc.Address)
	assert.Nil(t, err)
	balance := cash.AsCoins(acct)
	want, err := coin.CombineCoins(coin.NewCoin(10, 0, "IOV"))
	assert.Nil(t, err)
	assert.Equal(t, true, balance.Equals(want))
}
