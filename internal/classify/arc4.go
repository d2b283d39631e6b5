package classify

import (
	"crypto/rc4"
	"encoding/hex"
)

// arc4KeyFromTxid turns a funding (first-input) txid into the byte key
// Counterparty and Bitcoin Stamps both use to ARC4-obfuscate data stored in
// P2MS pubkey slots.
func arc4KeyFromTxid(txid string) ([]byte, error) {
	return hex.DecodeString(txid)
}

// arc4Decrypt runs ARC4 (RC4) over data with the given key. RC4 is
// symmetric and keystream-only, so encrypt and decrypt are the same
// operation; a fresh cipher.Stream is required per call since XORKeyStream
// advances internal state.
func arc4Decrypt(key, data []byte) ([]byte, error) {
	c, err := rc4.NewCipher(key)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(data))
	c.XORKeyStream(out, data)
	return out, nil
}

// extractLengthPrefixed reads a one-byte length prefix followed by that
// many data bytes, the chunk format Chancecoin, Counterparty and Stamps all
// share for packing variable-length data into a fixed 32/64-byte pubkey
// slot.
func extractLengthPrefixed(data []byte) []byte {
	if len(data) < 1 {
		return nil
	}
	length := int(data[0])
	if length > len(data)-1 {
		length = len(data) - 1
	}
	return data[1 : 1+length]
}
