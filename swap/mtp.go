package swap

import (
	"context"
	"encoding/binary"
	"sort"

	"qortal.dev/node/aterrors"
	"qortal.dev/node/foreignchain"
)

// timestampOffset is the byte offset of a raw block header's timestamp
// field: version(4) + prevHash(32) + merkleRoot(32).
const timestampOffset = 68

// mtpWindow is the number of trailing headers median-time-past is computed
// over.
const mtpWindow = 11

// MedianTimePast computes the median-time-past rule: of the latest 11 raw
// block headers, extract each one's timestamp (little-endian u32 at byte
// offset 68), sort descending, and return the 6th value (index 5). Fewer
// than 11 headers is an error, never a degraded answer.
func MedianTimePast(headers [][foreignchain.HeaderSize]byte) (uint32, error) {
	if len(headers) < mtpWindow {
		return 0, aterrors.New(aterrors.KindForeignBlockchainError, "fewer than 11 headers available for median-time-past")
	}
	timestamps := make([]uint32, mtpWindow)
	for i := 0; i < mtpWindow; i++ {
		timestamps[i] = binary.LittleEndian.Uint32(headers[i][timestampOffset : timestampOffset+4])
	}
	sort.Slice(timestamps, func(i, j int) bool { return timestamps[i] > timestamps[j] })
	return timestamps[5], nil
}

// fetchMedianTimePast downloads the latest 11 headers from provider and
// reduces them to the median-time-past value.
func fetchMedianTimePast(ctx context.Context, provider foreignchain.BlockchainProvider) (uint32, error) {
	headers, err := provider.LatestHeaders(ctx, mtpWindow)
	if err != nil {
		return 0, aterrors.Wrap(aterrors.KindForeignBlockchainError, "fetching block headers", err)
	}
	return MedianTimePast(headers)
}
