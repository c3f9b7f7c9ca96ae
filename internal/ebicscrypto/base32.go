package ebicscrypto

import "fmt"

// crockfordAlphabet is the GNUnet-compatible Base32-Crockford alphabet:
// digits 0-9 then letters, excluding I, L, O, U to avoid visual ambiguity.
const crockfordAlphabet = "0123456789ABCDEFGHJKMNPQRSTVWXYZ"

var crockfordDecodeTable [256]int8

func init() {
	for i := range crockfordDecodeTable {
		crockfordDecodeTable[i] = -1
	}
	for i, c := range crockfordAlphabet {
		crockfordDecodeTable[c] = int8(i)
	}
	// Crockford's spec maps visually similar letters onto their canonical
	// digit, accepted on decode though never produced on encode.
	crockfordDecodeTable['I'] = crockfordDecodeTable['1']
	crockfordDecodeTable['L'] = crockfordDecodeTable['1']
	crockfordDecodeTable['O'] = crockfordDecodeTable['0']
	crockfordDecodeTable['i'] = crockfordDecodeTable['1']
	crockfordDecodeTable['l'] = crockfordDecodeTable['1']
	crockfordDecodeTable['o'] = crockfordDecodeTable['0']
}

// EncodeCrockford encodes b as Base32-Crockford, GNUnet's bit-packing
// convention: bits are consumed most-significant-bit first across the whole
// input, five bits per output character.
func EncodeCrockford(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	outLen := (len(b)*8 + 4) / 5
	out := make([]byte, outLen)

	var buf uint64
	var bits uint
	pos := 0
	for _, by := range b {
		buf = (buf << 8) | uint64(by)
		bits += 8
		for bits >= 5 {
			bits -= 5
			out[pos] = crockfordAlphabet[(buf>>bits)&0x1F]
			pos++
		}
	}
	if bits > 0 {
		out[pos] = crockfordAlphabet[(buf<<(5-bits))&0x1F]
		pos++
	}
	return string(out[:pos])
}

// DecodeCrockford decodes a Base32-Crockford string. Lengths that are not a
// multiple of 5 characters are accepted and yield a correspondingly shorter
// byte array — short blobs are never padded or rejected.
func DecodeCrockford(s string) ([]byte, error) {
	if len(s) == 0 {
		return nil, nil
	}
	outLen := (len(s) * 5) / 8
	out := make([]byte, 0, outLen)

	var buf uint64
	var bits uint
	for i := 0; i < len(s); i++ {
		v := crockfordDecodeTable[s[i]]
		if v < 0 {
			return nil, fmt.Errorf("ebicscrypto: invalid Base32-Crockford character %q at offset %d", s[i], i)
		}
		buf = (buf << 5) | uint64(v)
		bits += 5
		if bits >= 8 {
			bits -= 8
			out = append(out, byte(buf>>bits))
		}
	}
	return out, nil
}
