package models

import "strings"

// Chain - идентификатор поддерживаемой EVM сети
type Chain string

// Поддерживаемые сети
const (
	ChainEthereum        Chain = "ethereum"
	ChainArbitrum        Chain = "arbitrum"
	ChainOptimism        Chain = "optimism"
	ChainBase            Chain = "base"
	ChainPolygon         Chain = "polygon"
	ChainSepolia         Chain = "sepolia"
	ChainArbitrumSepolia Chain = "arbitrum-sepolia"
)

// chainIDs - EIP-155 chain id каждой сети
var chainIDs = map[Chain]int64{
	ChainEthereum:        1,
	ChainArbitrum:        42161,
	ChainOptimism:        10,
	ChainBase:            8453,
	ChainPolygon:         137,
	ChainSepolia:         11155111,
	ChainArbitrumSepolia: 421614,
}

// SupportedChains возвращает все поддерживаемые сети в фиксированном порядке
func SupportedChains() []Chain {
	return []Chain{
		ChainEthereum,
		ChainArbitrum,
		ChainOptimism,
		ChainBase,
		ChainPolygon,
		ChainSepolia,
		ChainArbitrumSepolia,
	}
}

// ParseChain нормализует строку и проверяет, что сеть поддерживается
func ParseChain(s string) (Chain, bool) {
	c := Chain(strings.ToLower(strings.TrimSpace(s)))
	_, ok := chainIDs[c]
	return c, ok
}

// ChainID возвращает EIP-155 id (0 для неизвестной сети)
func (c Chain) ChainID() int64 {
	return chainIDs[c]
}

func (c Chain) String() string {
	return string(c)
}
