package chain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/txscript"
)

// Fingerprint returns the electrum-style script hash of an address: the
// byte-reversed SHA-256 of its output script, hex encoded.
func (p Params) Fingerprint(address string) (string, error) {
	a, err := p.ParseAddress(address)
	if err != nil {
		return "", err
	}

	var decoded btcutil.Address
	switch a.Type {
	case P2PKH:
		decoded, err = btcutil.NewAddressPubKeyHash(a.Hash[:], p.Net)
	case P2SH:
		decoded, err = btcutil.NewAddressScriptHashFromHash(a.Hash[:], p.Net)
	}
	if err != nil {
		return "", fmt.Errorf("fingerprint %s: %w", address, err)
	}

	script, err := txscript.PayToAddrScript(decoded)
	if err != nil {
		return "", fmt.Errorf("fingerprint %s: %w", address, err)
	}

	sum := sha256.Sum256(script)
	for i, j := 0, len(sum)-1; i < j; i, j = i+1, j-1 {
		sum[i], sum[j] = sum[j], sum[i]
	}
	return hex.EncodeToString(sum[:]), nil
}
