package airdrop

import (
	"errors"
	"math/big"
	"testing"

	"dropshop/core/events"
	"dropshop/native/catalog"
	"dropshop/state"
)

func addr(fill byte) [20]byte {
	var out [20]byte
	for i := range out {
		out[i] = fill
	}
	return out
}

var (
	sender = addr(0x01)
	alice  = addr(0x02)
	bob    = addr(0x03)
	token  = addr(0xcc)
	nft    = addr(0xaa)
)

func newDistributor(t *testing.T) (*Distributor, *state.Ledger) {
	t.Helper()
	ledger := state.NewLedger()
	d := NewDistributor()
	d.SetState(ledger)
	return d, ledger
}

func TestDistributeERC20(t *testing.T) {
	d, ledger := newDistributor(t)
	if err := ledger.CreditToken(token, sender, big.NewInt(100)); err != nil {
		t.Fatalf("credit: %v", err)
	}
	err := d.DistributeERC20(sender, token, [][20]byte{alice, bob}, []*big.Int{big.NewInt(30), big.NewInt(20)}, "launch rewards")
	if err != nil {
		t.Fatalf("distribute: %v", err)
	}
	if got := ledger.TokenBalance(token, alice); got.Cmp(big.NewInt(30)) != 0 {
		t.Fatalf("alice balance %s", got)
	}
	if got := ledger.TokenBalance(token, bob); got.Cmp(big.NewInt(20)) != 0 {
		t.Fatalf("bob balance %s", got)
	}
	if got := ledger.TokenBalance(token, sender); got.Cmp(big.NewInt(50)) != 0 {
		t.Fatalf("sender balance %s", got)
	}
}

func TestDistributeERC20LengthMismatch(t *testing.T) {
	d, ledger := newDistributor(t)
	if err := ledger.CreditToken(token, sender, big.NewInt(100)); err != nil {
		t.Fatalf("credit: %v", err)
	}
	err := d.DistributeERC20(sender, token, [][20]byte{alice, bob}, []*big.Int{big.NewInt(30)}, "")
	if !errors.Is(err, ErrArrayLengthMismatch) {
		t.Fatalf("expected ErrArrayLengthMismatch, got %v", err)
	}
	if got := ledger.TokenBalance(token, sender); got.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("sender balance %s after rejected batch", got)
	}
}

func TestDistributeERC20SenderAsRecipient(t *testing.T) {
	d, ledger := newDistributor(t)
	if err := ledger.CreditToken(token, sender, big.NewInt(100)); err != nil {
		t.Fatalf("credit: %v", err)
	}
	// A line pointed back at the sender must not grow the supply.
	err := d.DistributeERC20(sender, token, [][20]byte{sender, alice}, []*big.Int{big.NewInt(30), big.NewInt(20)}, "")
	if err != nil {
		t.Fatalf("distribute: %v", err)
	}
	if got := ledger.TokenBalance(token, sender); got.Cmp(big.NewInt(80)) != 0 {
		t.Fatalf("sender balance %s, want 80", got)
	}
	if got := ledger.TokenBalance(token, alice); got.Cmp(big.NewInt(20)) != 0 {
		t.Fatalf("alice balance %s", got)
	}
}

func TestDistributeERC20RollsBackOnFailure(t *testing.T) {
	d, ledger := newDistributor(t)
	if err := ledger.CreditToken(token, sender, big.NewInt(40)); err != nil {
		t.Fatalf("credit: %v", err)
	}
	// The second transfer overdraws the sender; the first must unwind.
	err := d.DistributeERC20(sender, token, [][20]byte{alice, bob}, []*big.Int{big.NewInt(30), big.NewInt(20)}, "")
	if err == nil {
		t.Fatal("expected overdraw failure")
	}
	if got := ledger.TokenBalance(token, alice); got.Sign() != 0 {
		t.Fatalf("alice balance %s after rollback", got)
	}
	if got := ledger.TokenBalance(token, sender); got.Cmp(big.NewInt(40)) != 0 {
		t.Fatalf("sender balance %s after rollback", got)
	}
}

func TestDistributeERC20RejectsNonPositiveAmount(t *testing.T) {
	d, ledger := newDistributor(t)
	if err := ledger.CreditToken(token, sender, big.NewInt(100)); err != nil {
		t.Fatalf("credit: %v", err)
	}
	if err := d.DistributeERC20(sender, token, [][20]byte{alice}, []*big.Int{big.NewInt(0)}, ""); err == nil {
		t.Fatal("expected zero amount rejection")
	}
	if err := d.DistributeERC20(sender, token, nil, nil, ""); !errors.Is(err, ErrEmptyBatch) {
		t.Fatalf("expected ErrEmptyBatch, got %v", err)
	}
}

func TestDistributeERC721(t *testing.T) {
	d, ledger := newDistributor(t)
	one := big.NewInt(1)
	for _, id := range []uint64{7, 8} {
		if err := ledger.InventoryMint(nft, id, sender, one, catalog.NFTERC721); err != nil {
			t.Fatalf("mint %d: %v", id, err)
		}
	}
	err := d.DistributeERC721(sender, nft, [][20]byte{alice, bob}, []uint64{7, 8}, "")
	if err != nil {
		t.Fatalf("distribute: %v", err)
	}
	if got := ledger.InventoryBalance(nft, 7, alice); got.Cmp(one) != 0 {
		t.Fatalf("alice token 7 balance %s", got)
	}
	if got := ledger.InventoryBalance(nft, 8, bob); got.Cmp(one) != 0 {
		t.Fatalf("bob token 8 balance %s", got)
	}
	if got := ledger.InventoryBalance(nft, 7, sender); got.Sign() != 0 {
		t.Fatalf("sender retains token 7: %s", got)
	}
}

func TestDistributeERC721RollsBackOnMissingToken(t *testing.T) {
	d, ledger := newDistributor(t)
	one := big.NewInt(1)
	if err := ledger.InventoryMint(nft, 7, sender, one, catalog.NFTERC721); err != nil {
		t.Fatalf("mint: %v", err)
	}
	// Token 9 was never minted; the delivered token 7 must come back.
	err := d.DistributeERC721(sender, nft, [][20]byte{alice, bob}, []uint64{7, 9}, "")
	if err == nil {
		t.Fatal("expected missing token failure")
	}
	if got := ledger.InventoryBalance(nft, 7, sender); got.Cmp(one) != 0 {
		t.Fatalf("sender token 7 balance %s after rollback", got)
	}
	if got := ledger.InventoryBalance(nft, 7, alice); got.Sign() != 0 {
		t.Fatalf("alice token 7 balance %s after rollback", got)
	}
}

func TestDistributeERC1155(t *testing.T) {
	d, ledger := newDistributor(t)
	if err := ledger.InventoryMint(nft, 5, sender, big.NewInt(100), catalog.NFTERC1155); err != nil {
		t.Fatalf("mint: %v", err)
	}
	err := d.DistributeERC1155(sender, nft, 5, [][20]byte{alice, bob}, []*big.Int{big.NewInt(60), big.NewInt(15)}, "season drop")
	if err != nil {
		t.Fatalf("distribute: %v", err)
	}
	if got := ledger.InventoryBalance(nft, 5, alice); got.Cmp(big.NewInt(60)) != 0 {
		t.Fatalf("alice balance %s", got)
	}
	if got := ledger.InventoryBalance(nft, 5, bob); got.Cmp(big.NewInt(15)) != 0 {
		t.Fatalf("bob balance %s", got)
	}
	if got := ledger.InventoryBalance(nft, 5, sender); got.Cmp(big.NewInt(25)) != 0 {
		t.Fatalf("sender balance %s", got)
	}
}

func TestDistributeERC1155LengthMismatch(t *testing.T) {
	d, ledger := newDistributor(t)
	if err := ledger.InventoryMint(nft, 5, sender, big.NewInt(100), catalog.NFTERC1155); err != nil {
		t.Fatalf("mint: %v", err)
	}
	err := d.DistributeERC1155(sender, nft, 5, [][20]byte{alice}, []*big.Int{big.NewInt(1), big.NewInt(2)}, "")
	if !errors.Is(err, ErrArrayLengthMismatch) {
		t.Fatalf("expected ErrArrayLengthMismatch, got %v", err)
	}
}

func TestDistributeEmitsMemo(t *testing.T) {
	d, ledger := newDistributor(t)
	if err := ledger.CreditToken(token, sender, big.NewInt(10)); err != nil {
		t.Fatalf("credit: %v", err)
	}
	recorder := &events.Recorder{}
	d.SetEmitter(recorder)
	if err := d.DistributeERC20(sender, token, [][20]byte{alice}, []*big.Int{big.NewInt(10)}, "payday"); err != nil {
		t.Fatalf("distribute: %v", err)
	}
	if len(recorder.Events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(recorder.Events))
	}
	evt := recorder.Events[0]
	if evt.Type != EventTypeDistributed {
		t.Fatalf("event type %q", evt.Type)
	}
	if evt.Attributes["memo"] != "payday" {
		t.Fatalf("memo %q", evt.Attributes["memo"])
	}
	if evt.Attributes["standard"] != "erc20" {
		t.Fatalf("standard %q", evt.Attributes["standard"])
	}
}
