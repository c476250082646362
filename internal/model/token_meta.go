package model

// TokenMeta captures the ERC-20 metadata needed to scale raw amounts and to
// resolve a token against the price oracle.
type TokenMeta struct {
	Address  string `json:"address"`
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	Decimals uint8  `json:"decimals"`
}
