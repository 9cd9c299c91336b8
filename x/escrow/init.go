package escrow

import (
	"github.com/iov-one/weave"
	"github.com/iov-one/weave/coin"
	"github.com/iov-one/weave/x/cash"
	"github.com/pkg/errors"
)

var _ weave.Initializer = (*Initializer)(nil)

// Initializer fulfils the Initializer interface to load data from the genesis file
type Initializer struct {
	Minter cash.CoinMinter
}

// FromGenesis will parse initial escrow info from genesis and save it
// in the database. The escrowed funds are minted onto each escrow
// account so the genesis state starts balanced.
func (i *Initializer) FromGenesis(opts weave.Options, params weave.GenesisParams, db weave.KVStore) error {
	var escrows []struct {
		Source      weave.Address   `json:"source"`
		Beneficiary weave.Address   `json:"beneficiary"`
		Approvers   []weave.Address `json:"approvers"`
		Amount      *coin.Coin      `json:"amount"`
		Description string          `json:"description"`
		CreatedAt   weave.UnixTime  `json:"created_at"`
	}

	if err := opts.ReadOptions("escrow", &escrows); err != nil {
		return err
	}

	bucket := NewBucket()
	for j, e := range escrows {
		if len(e.Approvers) < 2 || len(e.Approvers) > 3 {
			return errors.Errorf("escrow at position %d needs two or three approvers", j)
		}
		escr := Escrow{
			Metadata:    &weave.Metadata{Schema: 1},
			Source:      e.Source,
			Beneficiary: e.Beneficiary,
			Amount:      e.Amount,
			Description: e.Description,
			CreatedAt:   e.CreatedAt,
		}
		for k, a := range e.Approvers {
			switch k {
			case 0:
				escr.Approver1 = a
			case 1:
				escr.Approver2 = a
			case 2:
				escr.Approver3 = a
			}
		}
		key, err := escrowSeq.NextVal(db)
		if err != nil {
			return errors.Wrap(err, "cannot acquire key")
		}
		escr.Address = Condition(key).Address()
		if err := escr.Validate(); err != nil {
			return errors.Wrapf(err, "invalid escrow at position: %d", j)
		}
		if _, err := bucket.Put(db, key, &escr); err != nil {
			return err
		}
		if err := i.Minter.CoinMint(db, escr.Address, *escr.Amount); err != nil {
			return errors.Wrap(err, "failed to issue coins")
		}
	}
	return nil
}
