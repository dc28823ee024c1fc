package chain

import (
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
)

// AddressType distinguishes pay-to-pubkey-hash from pay-to-script-hash.
type AddressType byte

const (
	P2PKH AddressType = 0
	P2SH  AddressType = 1
)

// ErrInvalidAddress wraps every address parse failure.
var ErrInvalidAddress = errors.New("invalid address")

// Address is a parsed, canonicalised on-chain address.
type Address struct {
	Type AddressType
	Hash [20]byte

	canonical string
}

// String returns the canonical cashaddr form, including the prefix.
func (a Address) String() string {
	return a.canonical
}

// Params configures address handling for one network.
type Params struct {
	// CashPrefix is the human-readable cashaddr prefix, e.g. "bitcoincash".
	CashPrefix string

	// RelayPrefix marks relay addresses: a cashaddr whose payload starts
	// with this string forwards funds to a recipient chosen later.
	RelayPrefix string

	// Net supplies legacy base58 version bytes.
	Net *chaincfg.Params
}

// DefaultParams returns mainnet parameters with chaintip's relay convention.
func DefaultParams() Params {
	return Params{
		CashPrefix:  "bitcoincash",
		RelayPrefix: "qrelay",
		Net:         &chaincfg.MainNetParams,
	}
}

// ParseAddress accepts cashaddr (with or without prefix) or legacy base58.
func (p Params) ParseAddress(s string) (Address, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Address{}, fmt.Errorf("%w: empty", ErrInvalidAddress)
	}

	if a, err := p.parseCash(s); err == nil {
		return a, nil
	} else if strings.Contains(s, ":") {
		return Address{}, fmt.Errorf("%w: %q: %v", ErrInvalidAddress, s, err)
	}

	return p.parseLegacy(s)
}

// Canonical parses s and returns its canonical string form.
func (p Params) Canonical(s string) (string, error) {
	a, err := p.ParseAddress(s)
	if err != nil {
		return "", err
	}
	return a.String(), nil
}

// Valid reports whether s parses as an address on this network.
func (p Params) Valid(s string) bool {
	_, err := p.ParseAddress(s)
	return err == nil
}

// IsRelay reports whether s follows the relay naming convention. Only the
// textual form is inspected; s need not be canonical but must carry the
// cashaddr body.
func (p Params) IsRelay(s string) bool {
	if p.RelayPrefix == "" {
		return false
	}
	body := strings.ToLower(s)
	if _, rest, found := strings.Cut(body, ":"); found {
		body = rest
	}
	return strings.HasPrefix(body, p.RelayPrefix)
}

// Encode produces the canonical cashaddr string for a type and hash.
func (p Params) Encode(t AddressType, hash [20]byte) string {
	return encodeCashAddr(p.CashPrefix, byte(t)<<3, hash[:])
}

func (p Params) parseCash(s string) (Address, error) {
	prefix, version, hash, err := decodeCashAddr(s, p.CashPrefix)
	if err != nil {
		return Address{}, err
	}
	if prefix != p.CashPrefix {
		return Address{}, fmt.Errorf("prefix %q, want %q", prefix, p.CashPrefix)
	}
	if version&0x07 != 0 || len(hash) != 20 {
		return Address{}, fmt.Errorf("unsupported hash size (version %#x, %d bytes)", version, len(hash))
	}

	var t AddressType
	switch version >> 3 {
	case 0:
		t = P2PKH
	case 1:
		t = P2SH
	default:
		return Address{}, fmt.Errorf("unsupported address type %d", version>>3)
	}
	return p.newAddress(t, hash), nil
}

func (p Params) parseLegacy(s string) (Address, error) {
	decoded, err := btcutil.DecodeAddress(s, p.Net)
	if err != nil {
		return Address{}, fmt.Errorf("%w: %q: %v", ErrInvalidAddress, s, err)
	}
	if !decoded.IsForNet(p.Net) {
		return Address{}, fmt.Errorf("%w: %q: wrong network", ErrInvalidAddress, s)
	}

	switch a := decoded.(type) {
	case *btcutil.AddressPubKeyHash:
		return p.newAddress(P2PKH, a.ScriptAddress()), nil
	case *btcutil.AddressScriptHash:
		return p.newAddress(P2SH, a.ScriptAddress()), nil
	default:
		return Address{}, fmt.Errorf("%w: %q: unsupported address kind %T", ErrInvalidAddress, s, decoded)
	}
}

func (p Params) newAddress(t AddressType, hash []byte) Address {
	a := Address{Type: t}
	copy(a.Hash[:], hash)
	a.canonical = p.Encode(t, a.Hash)
	return a
}
