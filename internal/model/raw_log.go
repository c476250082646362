package model

// RawLog is the normalized representation of a chain log as produced by a
// log source. It is immutable once built.
type RawLog struct {
	ChainID        uint64   `json:"chain_id"`
	BlockNumber    uint64   `json:"block_number"`
	BlockHash      string   `json:"block_hash"`
	TxHash         string   `json:"tx_hash"`
	TxIndex        uint64   `json:"tx_index"`
	LogIndex       uint64   `json:"log_index"`
	Address        string   `json:"address"`
	Topics         []string `json:"topics"`
	Data           string   `json:"data"`
	Removed        bool     `json:"removed"`
	BlockTimestamp uint64   `json:"block_timestamp"`
}

// Topic0 returns the event signature topic, or "" when the log has none.
func (l RawLog) Topic0() string {
	if len(l.Topics) == 0 {
		return ""
	}
	return l.Topics[0]
}
