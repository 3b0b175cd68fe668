// Copyright 2025 Veilchain Protocol
//
// PaymentPayload is the plaintext sealed behind a PaymentOutput's
// EncryptedPayload (spec.md §3): the fields only the recipient, or an
// r-holding auditor, can recover once crypto.OpenPayload succeeds.
// Encoding follows the length-prefixed BigEndian style used elsewhere
// in this package (see output.go's amountBytes, block.go's header
// encoding).

package types

import (
	"encoding/binary"
	"fmt"

	"github.com/veilchain/veil/internal/crypto"
)

// PaymentPayload is the decrypted content of a confidential payment
// output: its clear amount, the blinding factor closing its Pedersen
// commitment, an optional memo, and an optional r-value an auditor
// can use to verify the commitment without the recipient's secret key.
type PaymentPayload struct {
	Amount  int64
	Gamma   crypto.Fr
	Comment string
	R       []byte // nil if no auditor r-value is attached
}

// Marshal encodes p as amount || gamma || len(comment) || comment ||
// len(r) || r, all lengths as BigEndian uint32.
func (p PaymentPayload) Marshal() []byte {
	gBytes := p.Gamma.Bytes()
	comment := []byte(p.Comment)

	buf := make([]byte, 0, 8+len(gBytes)+4+len(comment)+4+len(p.R))
	buf = append(buf, amountBytes(p.Amount)...)
	buf = append(buf, gBytes[:]...)

	var u32 [4]byte
	binary.BigEndian.PutUint32(u32[:], uint32(len(comment)))
	buf = append(buf, u32[:]...)
	buf = append(buf, comment...)

	binary.BigEndian.PutUint32(u32[:], uint32(len(p.R)))
	buf = append(buf, u32[:]...)
	buf = append(buf, p.R...)
	return buf
}

// UnmarshalPaymentPayload decodes a PaymentPayload previously produced
// by Marshal. It returns an error rather than panicking on truncated
// input, since data originates from a decrypted, attacker-influenced
// ciphertext until the MAC in crypto.OpenPayload has already verified it.
func UnmarshalPaymentPayload(data []byte) (PaymentPayload, error) {
	const fixedLen = 8 + 32 + 4 // amount + gamma + comment-length prefix
	if len(data) < fixedLen {
		return PaymentPayload{}, fmt.Errorf("types: payment payload too short: %d bytes", len(data))
	}

	amount := int64(binary.BigEndian.Uint64(data[0:8]))
	var gamma crypto.Fr
	gamma.SetBytes(data[8:40])

	off := 40
	commentLen := int(binary.BigEndian.Uint32(data[off : off+4]))
	off += 4
	if off+commentLen+4 > len(data) {
		return PaymentPayload{}, fmt.Errorf("types: payment payload comment length %d exceeds remaining %d bytes", commentLen, len(data)-off)
	}
	comment := string(data[off : off+commentLen])
	off += commentLen

	rLen := int(binary.BigEndian.Uint32(data[off : off+4]))
	off += 4
	if off+rLen > len(data) {
		return PaymentPayload{}, fmt.Errorf("types: payment payload r length %d exceeds remaining %d bytes", rLen, len(data)-off)
	}
	var r []byte
	if rLen > 0 {
		r = append([]byte(nil), data[off:off+rLen]...)
	}

	return PaymentPayload{Amount: amount, Gamma: gamma, Comment: comment, R: r}, nil
}
