package chain

import (
	"errors"
	"fmt"
	"strings"
)

const cashCharset = "qpzry9x8gf2tvdw0s3jn54khce6mua7l"

var cashCharsetRev = func() [128]int8 {
	var rev [128]int8
	for i := range rev {
		rev[i] = -1
	}
	for i, c := range cashCharset {
		rev[c] = int8(i)
	}
	return rev
}()

// ErrChecksum indicates a cashaddr string whose checksum does not verify.
var ErrChecksum = errors.New("cashaddr: invalid checksum")

func cashPolymod(values []byte) uint64 {
	c := uint64(1)
	for _, d := range values {
		c0 := byte(c >> 35)
		c = ((c & 0x07ffffffff) << 5) ^ uint64(d)
		if c0&0x01 != 0 {
			c ^= 0x98f2bc8e61
		}
		if c0&0x02 != 0 {
			c ^= 0x79b76d99e2
		}
		if c0&0x04 != 0 {
			c ^= 0xf33e5fb3c4
		}
		if c0&0x08 != 0 {
			c ^= 0xae2eabe2a8
		}
		if c0&0x10 != 0 {
			c ^= 0x1e4f43e470
		}
	}
	return c ^ 1
}

func expandPrefix(prefix string) []byte {
	out := make([]byte, 0, len(prefix)+1)
	for i := 0; i < len(prefix); i++ {
		out = append(out, prefix[i]&0x1f)
	}
	return append(out, 0)
}

// convertBits regroups a byte slice from fromBits-wide to toBits-wide groups.
func convertBits(data []byte, fromBits, toBits uint, pad bool) ([]byte, error) {
	acc := uint32(0)
	bits := uint(0)
	maxv := uint32(1<<toBits) - 1
	out := make([]byte, 0, len(data)*int(fromBits)/int(toBits)+1)
	for _, v := range data {
		if uint32(v)>>fromBits != 0 {
			return nil, fmt.Errorf("cashaddr: value %d out of range", v)
		}
		acc = acc<<fromBits | uint32(v)
		bits += fromBits
		for bits >= toBits {
			bits -= toBits
			out = append(out, byte(acc>>bits&maxv))
		}
	}
	if pad {
		if bits > 0 {
			out = append(out, byte(acc<<(toBits-bits)&maxv))
		}
	} else if bits >= fromBits || acc<<(toBits-bits)&maxv != 0 {
		return nil, errors.New("cashaddr: non-zero padding")
	}
	return out, nil
}

// encodeCashAddr encodes a version byte and hash under prefix.
func encodeCashAddr(prefix string, version byte, hash []byte) string {
	payload, _ := convertBits(append([]byte{version}, hash...), 8, 5, true)

	values := append(expandPrefix(prefix), payload...)
	values = append(values, make([]byte, 8)...)
	mod := cashPolymod(values)

	var sb strings.Builder
	sb.WriteString(prefix)
	sb.WriteByte(':')
	for _, p := range payload {
		sb.WriteByte(cashCharset[p])
	}
	for i := 0; i < 8; i++ {
		sb.WriteByte(cashCharset[(mod>>(5*(7-i)))&0x1f])
	}
	return sb.String()
}

// decodeCashAddr decodes s, assuming defaultPrefix when s carries none.
func decodeCashAddr(s, defaultPrefix string) (prefix string, version byte, hash []byte, err error) {
	if strings.ToLower(s) != s && strings.ToUpper(s) != s {
		return "", 0, nil, errors.New("cashaddr: mixed case")
	}
	s = strings.ToLower(s)

	prefix, body, found := strings.Cut(s, ":")
	if !found {
		prefix, body = defaultPrefix, s
	}
	if prefix == "" || len(body) <= 8 {
		return "", 0, nil, errors.New("cashaddr: too short")
	}

	data := make([]byte, len(body))
	for i := 0; i < len(body); i++ {
		c := body[i]
		if c >= 128 || cashCharsetRev[c] < 0 {
			return "", 0, nil, fmt.Errorf("cashaddr: invalid character %q", c)
		}
		data[i] = byte(cashCharsetRev[c])
	}

	if cashPolymod(append(expandPrefix(prefix), data...)) != 0 {
		return "", 0, nil, ErrChecksum
	}

	raw, err := convertBits(data[:len(data)-8], 5, 8, false)
	if err != nil {
		return "", 0, nil, err
	}
	if len(raw) < 1 {
		return "", 0, nil, errors.New("cashaddr: empty payload")
	}
	return prefix, raw[0], raw[1:], nil
}
