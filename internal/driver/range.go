package driver

import "fmt"

// BlockRange is an inclusive span of block numbers.
type BlockRange struct {
	From uint64
	To   uint64
}

// SplitRange cuts the inclusive span [from, to] into consecutive spans of
// at most batchSize blocks each, preserving order.
func SplitRange(from, to, batchSize uint64) ([]BlockRange, error) {
	if batchSize == 0 {
		return nil, fmt.Errorf("batch size must be greater than zero")
	}
	if to < from {
		return nil, fmt.Errorf("to block must be >= from block")
	}

	ranges := make([]BlockRange, 0, (to-from)/batchSize+1)
	for start := from; ; start += batchSize {
		end := start + batchSize - 1
		if end >= to || end < start {
			// end < start means the addition wrapped past the uint64 max.
			end = to
		}
		ranges = append(ranges, BlockRange{From: start, To: end})
		if end == to {
			return ranges, nil
		}
	}
}
