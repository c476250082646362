package model

import "fmt"

// DecodeErrorKind classifies decode failures.
type DecodeErrorKind string

const (
	MalformedTopics       DecodeErrorKind = "malformed_topics"
	MalformedData         DecodeErrorKind = "malformed_data"
	UnsupportedEventShape DecodeErrorKind = "unsupported_event_shape"
)

// DecodeError reports a per-log decode failure. It is local to one log; the
// caller skips the log and continues the batch.
type DecodeError struct {
	Reason DecodeErrorKind
	Msg    string
}

func (e *DecodeError) Error() string {
	if e.Msg == "" {
		return string(e.Reason)
	}
	return fmt.Sprintf("%s: %s", e.Reason, e.Msg)
}

// NewDecodeError builds a DecodeError with a formatted message.
func NewDecodeError(kind DecodeErrorKind, format string, args ...interface{}) *DecodeError {
	return &DecodeError{Reason: kind, Msg: fmt.Sprintf(format, args...)}
}

// DecodeFailure is the storable record of a decode failure.
type DecodeFailure struct {
	ChainID     uint64 `json:"chain_id"`
	BlockNumber uint64 `json:"block_number"`
	TxHash      string `json:"tx_hash"`
	LogIndex    uint64 `json:"log_index"`
	Address     string `json:"address"`
	Topic0      string `json:"topic0"`
	Kind        string `json:"kind"`
	Error       string `json:"error"`
}

// FailureFromLog builds a DecodeFailure record for a raw log and error.
func FailureFromLog(log RawLog, err error) DecodeFailure {
	kind := ""
	if de, ok := err.(*DecodeError); ok {
		kind = string(de.Reason)
	}
	return DecodeFailure{
		ChainID:     log.ChainID,
		BlockNumber: log.BlockNumber,
		TxHash:      log.TxHash,
		LogIndex:    log.LogIndex,
		Address:     log.Address,
		Topic0:      log.Topic0(),
		Kind:        kind,
		Error:       err.Error(),
	}
}
