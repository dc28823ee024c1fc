package testutil

import (
	"strings"

	"github.com/roach88/tipsync/internal/chain"
)

const cashCharset = "qpzry9x8gf2tvdw0s3jn54khce6mua7l"

// Address returns a valid, non-relay P2PKH cashaddr derived from seed.
//
// Distinct seeds give distinct addresses; the same seed always gives the
// same address.
func Address(p chain.Params, seed byte) string {
	var hash [20]byte
	for i := 1; i < len(hash); i++ {
		hash[i] = seed ^ byte(i)
	}
	return p.Encode(chain.P2PKH, hash)
}

// RelayAddress returns a valid P2PKH cashaddr whose body starts with
// p.RelayPrefix, derived from seed.
func RelayAddress(p chain.Params, seed byte) string {
	groups := make([]byte, 0, 34)
	for _, c := range p.RelayPrefix {
		groups = append(groups, byte(strings.IndexRune(cashCharset, c)))
	}
	for i := byte(0); len(groups) < 34; i++ {
		groups = append(groups, (seed+i*7)&0x1f)
	}
	// 34 groups carry 170 bits; the trailing two are padding.
	groups[33] &^= 0x03

	raw := make([]byte, 0, 21)
	acc, bits := uint32(0), uint(0)
	for _, g := range groups {
		acc = acc<<5 | uint32(g)
		bits += 5
		if bits >= 8 {
			bits -= 8
			raw = append(raw, byte(acc>>bits))
		}
	}

	var hash [20]byte
	copy(hash[:], raw[1:21])
	return p.Encode(chain.P2PKH, hash)
}
