// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package contract

import (
	"encoding/binary"
	"math/big"

	"github.com/luxfi/geth/common"
)

// Word helpers for hand-packed precompile calldata. Every argument occupies a
// 32-byte word, matching Solidity ABI layout for static types.

var wordModulus = new(big.Int).Lsh(big.NewInt(1), 256)

// AddressFromWord reads a right-aligned address from a 32-byte word.
func AddressFromWord(word []byte) common.Address {
	return common.BytesToAddress(word[12:32])
}

// PutAddressWord writes [addr] right-aligned into [word].
func PutAddressWord(word []byte, addr common.Address) {
	copy(word[12:32], addr.Bytes())
}

// Uint32FromWord reads a right-aligned uint32 from a 32-byte word.
func Uint32FromWord(word []byte) uint32 {
	return binary.BigEndian.Uint32(word[28:32])
}

// PutUint32Word writes [v] right-aligned into [word].
func PutUint32Word(word []byte, v uint32) {
	binary.BigEndian.PutUint32(word[28:32], v)
}

// Int32FromWord reads a sign-extended int32 from a 32-byte word.
func Int32FromWord(word []byte) int32 {
	return int32(binary.BigEndian.Uint32(word[28:32]))
}

// PutInt32Word writes [v] sign-extended into [word].
func PutInt32Word(word []byte, v int32) {
	if v < 0 {
		for i := 0; i < 28; i++ {
			word[i] = 0xff
		}
	}
	binary.BigEndian.PutUint32(word[28:32], uint32(v))
}

// SignedFromWord decodes a two's-complement int256 word.
func SignedFromWord(word []byte) *big.Int {
	v := new(big.Int).SetBytes(word[:32])
	if word[0]&0x80 != 0 {
		v.Sub(v, wordModulus)
	}
	return v
}

// PutSignedWord encodes [v] as a two's-complement int256 into [word].
func PutSignedWord(word []byte, v *big.Int) {
	enc := v
	if v.Sign() < 0 {
		enc = new(big.Int).Add(wordModulus, v)
	}
	enc.FillBytes(word[:32])
}

// BigFromWord reads an unsigned big integer from a 32-byte word.
func BigFromWord(word []byte) *big.Int {
	return new(big.Int).SetBytes(word[:32])
}

// PutBigWord writes [v] into [word]; v must fit in 256 bits.
func PutBigWord(word []byte, v *big.Int) {
	v.FillBytes(word[:32])
}

// HashFromWord reads a 32-byte word as a hash.
func HashFromWord(word []byte) common.Hash {
	return common.BytesToHash(word[:32])
}
