package app

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/iov-one/weave"
	weaveApp "github.com/iov-one/weave/app"
	"github.com/iov-one/weave/coin"
	"github.com/iov-one/weave/commands/server"
	"github.com/iov-one/weave/crypto"
	"github.com/iov-one/weave/x/cash"
	"github.com/iov-one/weave/x/sigs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	abci "github.com/tendermint/tendermint/abci/types"
	"github.com/tendermint/tendermint/libs/log"

	"github.com/iov-one/cosmoscrow/x/escrow"
)

func TestEscrowLifecycle(t *testing.T) {
	chainID := "test-net-22"
	source := newAccount()
	beneficiary := newAccount()
	appr1 := newAccount()
	appr2 := newAccount()
	myApp := newTestApp(t, chainID, []*account{source})

	// lock 2000 IOV under a fresh escrow
	msg := &escrow.CreateEscrowMsg{
		Metadata:    &weave.Metadata{Schema: 1},
		Source:      source.address(),
		Beneficiary: beneficiary.address(),
		Approver1:   appr1.address(),
		Approver2:   appr2.address(),
		Amount:      []*coin.Coin{{Whole: 2000, Ticker: "IOV"}},
		Description: "web design milestone",
	}
	tx := &Tx{Sum: &Tx_CreateEscrowMsg{msg}}
	dres := signAndCommit(t, myApp, tx, []*account{source}, chainID, 2)
	escrowID := dres.Data
	require.Len(t, escrowID, 8)

	esc := queryEscrow(t, myApp, escrowID)
	assert.Equal(t, source.address(), esc.Source)
	assert.Equal(t, beneficiary.address(), esc.Beneficiary)
	assert.False(t, esc.IsCompleted)
	assert.Empty(t, esc.Approvals)

	// the escrow account now holds the locked funds
	queryWallet(t, myApp, esc.Address, coin.Coins{{Whole: 2000, Ticker: "IOV"}})

	// first approval is not enough for the quorum of two
	approve := &escrow.ApproveEscrowMsg{
		Metadata: &weave.Metadata{Schema: 1},
		EscrowId: escrowID,
	}
	tx = &Tx{Sum: &Tx_ApproveEscrowMsg{approve}}
	signAndCommit(t, myApp, tx, []*account{appr1}, chainID, 3)

	esc = queryEscrow(t, myApp, escrowID)
	assert.Len(t, esc.Approvals, 1)
	assert.False(t, esc.IsCompleted)

	// second approval releases the funds to the beneficiary
	tx = &Tx{Sum: &Tx_ApproveEscrowMsg{approve}}
	signAndCommit(t, myApp, tx, []*account{appr2}, chainID, 4)

	esc = queryEscrow(t, myApp, escrowID)
	assert.Len(t, esc.Approvals, 2)
	assert.True(t, esc.IsCompleted)
	assert.NotZero(t, esc.CompletedAt)
	queryWallet(t, myApp, beneficiary.address(), coin.Coins{{Whole: 2000, Ticker: "IOV"}})
}

func TestEscrowCancelRefund(t *testing.T) {
	chainID := "test-net-23"
	source := newAccount()
	beneficiary := newAccount()
	appr := newAccount()
	myApp := newTestApp(t, chainID, []*account{source})

	msg := &escrow.CreateEscrowMsg{
		Metadata:    &weave.Metadata{Schema: 1},
		Source:      source.address(),
		Beneficiary: beneficiary.address(),
		Approver1:   appr.address(),
		Approver2:   appr.address(),
		Amount:      []*coin.Coin{{Whole: 500, Ticker: "IOV"}},
	}
	tx := &Tx{Sum: &Tx_CreateEscrowMsg{msg}}
	dres := signAndCommit(t, myApp, tx, []*account{source}, chainID, 2)
	escrowID := dres.Data

	cancel := &escrow.CancelEscrowMsg{
		Metadata: &weave.Metadata{Schema: 1},
		EscrowId: escrowID,
	}
	tx = &Tx{Sum: &Tx_CancelEscrowMsg{cancel}}
	signAndCommit(t, myApp, tx, []*account{source}, chainID, 3)

	esc := queryEscrow(t, myApp, escrowID)
	assert.True(t, esc.IsCompleted)
	assert.Zero(t, esc.CompletedAt)

	// all funds are back with the source
	queryWallet(t, myApp, source.address(), coin.Coins{{Whole: 123456789, Ticker: "IOV"}})
}

func TestTxSignBytesIgnoreSignatures(t *testing.T) {
	msg := &escrow.ApproveEscrowMsg{
		Metadata: &weave.Metadata{Schema: 1},
		EscrowId: []byte{0, 0, 0, 0, 0, 0, 0, 1},
	}
	tx := &Tx{Sum: &Tx_ApproveEscrowMsg{msg}}

	unsigned, err := tx.Marshal()
	require.NoError(t, err)

	tx.Signatures = []*sigs.StdSignature{{Sequence: 17}}
	bz, err := tx.GetSignBytes()
	require.NoError(t, err)
	assert.Equal(t, unsigned, bz)
	// signatures must survive the sign bytes calculation
	assert.Len(t, tx.Signatures, 1)
}

func TestTxDecoderRoundTrip(t *testing.T) {
	msg := &escrow.CreateEscrowMsg{
		Metadata:    &weave.Metadata{Schema: 1},
		Beneficiary: newAccount().address(),
		Approver1:   newAccount().address(),
		Approver2:   newAccount().address(),
		Amount:      []*coin.Coin{{Whole: 1, Ticker: "IOV"}},
	}
	tx := &Tx{Sum: &Tx_CreateEscrowMsg{msg}}
	bz, err := tx.Marshal()
	require.NoError(t, err)

	decoded, err := TxDecoder(bz)
	require.NoError(t, err)
	got, err := decoded.GetMsg()
	require.NoError(t, err)
	require.Equal(t, "escrow/create", got.Path())
	assert.Equal(t, msg, got)
}

func TestGenInitOptions(t *testing.T) {
	bz, err := GenInitOptions(nil)
	require.NoError(t, err)
	var doc map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(bz, &doc))
	for _, key := range []string{"cash", "conf", "escrow", "initialize_schema"} {
		assert.Contains(t, doc, key)
	}

	_, err = GenInitOptions([]string{"not a ticker"})
	assert.Error(t, err)
}

type account struct {
	pk *crypto.PrivateKey
	n  int64
}

func newAccount() *account {
	return &account{pk: crypto.GenPrivKeyEd25519()}
}

func (a *account) nonce() (n int64) {
	n = a.n
	a.n++
	return
}

func (a *account) address() weave.Address {
	return a.pk.PublicKey().Address()
}

// newTestApp builds an in-memory application and commits a genesis
// block funding every given account with 123456789 IOV
func newTestApp(t *testing.T, chainID string, accounts []*account) weaveApp.BaseApp {
	t.Helper()

	abciApp, err := GenerateApp(&server.Options{
		MinFee: coin.Coin{},
		Home:   "",
		Logger: log.NewNopLogger(),
		Debug:  true,
	})
	require.NoError(t, err)
	myApp := abciApp.(weaveApp.BaseApp)

	myApp.InitChain(abci.RequestInitChain{
		AppStateBytes: []byte(appState(t, accounts)),
		ChainId:       chainID,
	})
	header := abci.Header{Height: 1, Time: time.Now()}
	myApp.BeginBlock(abci.RequestBeginBlock{Header: header})
	myApp.EndBlock(abci.RequestEndBlock{})
	cres := myApp.Commit()
	assert.NotEmpty(t, cres.Data)
	assert.Equal(t, chainID, myApp.GetChainID())
	return myApp
}

func appState(t *testing.T, accounts []*account) string {
	t.Helper()

	type dict map[string]interface{}

	wallets := make([]interface{}, len(accounts))
	for i, acc := range accounts {
		wallets[i] = dict{
			"address": acc.address(),
			"coins": []interface{}{
				dict{"whole": 123456789, "ticker": "IOV"},
			},
		}
	}
	state, err := json.Marshal(dict{
		"cash": wallets,
		"conf": dict{
			"cash": dict{
				"collector_address": accounts[0].address(),
				"minimal_fee":       coin.Coin{},
			},
			"migration": dict{
				"admin": accounts[0].address(),
			},
		},
		"escrow": []interface{}{},
		"initialize_schema": []dict{
			{"pkg": "cash", "ver": 1},
			{"pkg": "sigs", "ver": 1},
			{"pkg": "escrow", "ver": 1},
		},
	})
	require.NoError(t, err)
	return string(state)
}

// signAndCommit signs the tx with all signers and runs it through a
// full block, requiring both CheckTx and DeliverTx to pass
func signAndCommit(t *testing.T, myApp weaveApp.BaseApp, tx *Tx, signers []*account,
	chainID string, height int64) abci.ResponseDeliverTx {
	t.Helper()

	for _, signer := range signers {
		sig, err := sigs.SignTx(signer.pk, tx, chainID, signer.nonce())
		require.NoError(t, err)
		tx.Signatures = append(tx.Signatures, sig)
	}

	txBytes, err := tx.Marshal()
	require.NoError(t, err)
	require.NotEmpty(t, txBytes)

	header := abci.Header{Height: height, Time: time.Now()}
	myApp.BeginBlock(abci.RequestBeginBlock{Header: header})

	chres := myApp.CheckTx(txBytes)
	require.Equal(t, uint32(0), chres.Code, chres.Log)
	dres := myApp.DeliverTx(txBytes)
	require.Equal(t, uint32(0), dres.Code, dres.Log)

	myApp.EndBlock(abci.RequestEndBlock{})
	cres := myApp.Commit()
	assert.NotEmpty(t, cres.Data)
	return dres
}

func queryEscrow(t *testing.T, myApp weaveApp.BaseApp, id []byte) escrow.Escrow {
	t.Helper()

	res := myApp.Query(abci.RequestQuery{Path: "/escrows", Data: id})
	require.Equal(t, uint32(0), res.Code, "%#v", res)
	require.NotEmpty(t, res.Value, "escrow %x not found", id)

	var esc escrow.Escrow
	require.NoError(t, weaveApp.UnmarshalOneResult(res.Value, &esc))
	return esc
}

func queryWallet(t *testing.T, myApp weaveApp.BaseApp, addr weave.Address, expected coin.Coins) {
	t.Helper()

	res := myApp.Query(abci.RequestQuery{Path: "/wallets", Data: addr})
	require.Equal(t, uint32(0), res.Code, "%#v", res)
	require.NotEmpty(t, res.Value, "wallet %s is empty", addr)

	var set cash.Set
	require.NoError(t, weaveApp.UnmarshalOneResult(res.Value, &set))
	assert.True(t, coin.Coins(set.Coins).Equals(expected), fmt.Sprintf("got %#v", set.Coins))
}
