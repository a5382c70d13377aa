// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package liquidity

import "math/big"

var oneHundred = big.NewInt(100)

// SplitShares splits [total] according to [percentages], returning one share
// per entry in the same order: share[i] = floor(|total| * percentages[i] / 100).
// The multiply happens before the divide on big.Int, so there is no overflow
// and no intermediate truncation. Flooring means sum(shares) <= |total|; the
// undistributed dust is never reconciled and stays with the local remainder.
func SplitShares(total *big.Int, percentages []uint16) []*big.Int {
	shares := make([]*big.Int, len(percentages))
	if total == nil {
		total = new(big.Int)
	}
	magnitude := new(big.Int).Abs(total)
	for i, pct := range percentages {
		share := new(big.Int).Mul(magnitude, big.NewInt(int64(pct)))
		share.Quo(share, oneHundred)
		shares[i] = share
	}
	return shares
}
