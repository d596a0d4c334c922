package types

// Amount is an integer count of atomic units. 1 coin = 1,000,000 atomic
// units (Decimals = 6); the block reward of 5,400.067 coins is exactly
// 5,400,067,000 atomic units at this scale.
type Amount = uint64

// Decimals is the number of atomic-unit digits per coin.
const Decimals = 6

// Coin is the number of atomic units in one coin.
const Coin Amount = 1_000_000
