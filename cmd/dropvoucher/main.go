package main

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"dropshop/cmd/internal/passphrase"
	"dropshop/crypto"
	"dropshop/native/catalog"
)

const passEnv = "DROPSHOP_MANAGER_PASS"

func usage() {
	fmt.Fprintf(os.Stderr, `dropvoucher manages claim vouchers for shop managers.

Usage:
  dropvoucher new-key --keystore <path>        generate a manager key
  dropvoucher nullifier                        print a fresh random nullifier
  dropvoucher hash --in <voucher.json>         print the canonical voucher digest
  dropvoucher sign --keystore <path> --in <voucher.json>
                                               sign a voucher for submission

The keystore passphrase is read from %s or prompted.
`, passEnv)
	os.Exit(2)
}

func main() {
	if len(os.Args) < 2 {
		usage()
	}
	var err error
	switch os.Args[1] {
	case "new-key":
		err = runNewKey(os.Args[2:])
	case "nullifier":
		err = runNullifier()
	case "hash":
		err = runHash(os.Args[2:])
	case "sign":
		err = runSign(os.Args[2:])
	default:
		usage()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "dropvoucher: %v\n", err)
		os.Exit(1)
	}
}

func runNewKey(args []string) error {
	fs := flag.NewFlagSet("new-key", flag.ExitOnError)
	keystorePath := fs.String("keystore", "./manager.keystore", "Where to write the encrypted key")
	fs.Parse(args)

	pass, err := passphrase.NewSource(passEnv).Get()
	if err != nil {
		return err
	}
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return err
	}
	if err := crypto.SaveToKeystore(*keystorePath, key, pass); err != nil {
		return err
	}
	fmt.Printf("keystore: %s\nmanager:  %s\n", *keystorePath, key.PubKey().Address())
	return nil
}

func runNullifier() error {
	var nullifier [32]byte
	if _, err := rand.Read(nullifier[:]); err != nil {
		return err
	}
	fmt.Printf("0x%s\n", hex.EncodeToString(nullifier[:]))
	return nil
}

func loadVoucher(path string) (*catalog.ClaimVoucher, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	voucher := &catalog.ClaimVoucher{}
	if err := json.Unmarshal(raw, voucher); err != nil {
		return nil, err
	}
	return voucher, nil
}

func runHash(args []string) error {
	fs := flag.NewFlagSet("hash", flag.ExitOnError)
	in := fs.String("in", "", "Voucher JSON file")
	fs.Parse(args)
	if *in == "" {
		return fmt.Errorf("--in is required")
	}
	voucher, err := loadVoucher(*in)
	if err != nil {
		return err
	}
	digest := voucher.Hash()
	fmt.Printf("0x%s\n", hex.EncodeToString(digest[:]))
	return nil
}

func runSign(args []string) error {
	fs := flag.NewFlagSet("sign", flag.ExitOnError)
	keystorePath := fs.String("keystore", "./manager.keystore", "Manager keystore")
	in := fs.String("in", "", "Voucher JSON file")
	fs.Parse(args)
	if *in == "" {
		return fmt.Errorf("--in is required")
	}

	voucher, err := loadVoucher(*in)
	if err != nil {
		return err
	}
	pass, err := passphrase.NewSource(passEnv).Get()
	if err != nil {
		return err
	}
	key, err := crypto.LoadFromKeystore(*keystorePath, pass)
	if err != nil {
		return err
	}
	digest := voucher.Hash()
	signature, err := key.Sign(digest[:])
	if err != nil {
		return err
	}

	out := struct {
		Manager   string               `json:"manager"`
		Signature string               `json:"signature"`
		Voucher   catalog.ClaimVoucher `json:"voucher"`
	}{
		Manager:   key.PubKey().Address().String(),
		Signature: "0x" + hex.EncodeToString(signature),
		Voucher:   *voucher,
	}
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(out)
}
