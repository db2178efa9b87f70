// Package amm prices trades against a binary-outcome constant-product
// market maker. All amount arithmetic is integer; floats appear only in
// display-level prices and the impact percentage.
package amm

import (
	"fmt"
	"math/big"

	"github.com/pumpsly/duelcore/internal/domain"
)

const bpsDenominator = 10_000

// Quote prices a prospective trade against the pool's current reserves
// without mutating anything.
//
// The trade direction decides which reserve absorbs the input: buying YES
// and selling NO push tokens into the NO reserve and pay out of the YES
// reserve; buying NO and selling YES do the reverse. The fee is taken from
// the input before it hits the curve. The output reserve after the trade is
// the ceiling of k over the grown input reserve, so the product invariant
// never decreases.
//
// A zero input yields a zero quote at the current spot price. A trade that
// would drain the output reserve fails with ErrInvalidAmount.
func Quote(pool domain.Pool, input uint64, tradeType domain.TradeType, slippageBps uint32) (domain.TradeQuote, error) {
	if pool.YesReserve == 0 || pool.NoReserve == 0 {
		return domain.TradeQuote{}, fmt.Errorf("%w: pool has empty reserves", domain.ErrInvalidAmount)
	}
	if slippageBps >= bpsDenominator {
		return domain.TradeQuote{}, fmt.Errorf("%w: slippage %d bps", domain.ErrInvalidAmount, slippageBps)
	}

	var inputReserve, outputReserve uint64
	switch tradeType {
	case domain.TradeBuyYes, domain.TradeSellNo:
		inputReserve, outputReserve = pool.NoReserve, pool.YesReserve
	case domain.TradeBuyNo, domain.TradeSellYes:
		inputReserve, outputReserve = pool.YesReserve, pool.NoReserve
	default:
		return domain.TradeQuote{}, fmt.Errorf("%w: trade type %q", domain.ErrInvalidAmount, tradeType)
	}

	spotYes := yesPrice(pool.YesReserve, pool.NoReserve)

	if input == 0 {
		return domain.TradeQuote{
			Type:           tradeType,
			NewYesReserve:  pool.YesReserve,
			NewNoReserve:   pool.NoReserve,
			YesPriceBefore: spotYes,
			YesPriceAfter:  spotYes,
		}, nil
	}

	in := new(big.Int).SetUint64(input)
	fee := new(big.Int).Mul(in, big.NewInt(int64(pool.FeeBps)))
	fee.Quo(fee, big.NewInt(bpsDenominator))
	netInput := new(big.Int).Sub(in, fee)
	if netInput.Sign() <= 0 {
		return domain.TradeQuote{}, fmt.Errorf("%w: input consumed by fee", domain.ErrInvalidAmount)
	}

	k := new(big.Int).Mul(
		new(big.Int).SetUint64(pool.YesReserve),
		new(big.Int).SetUint64(pool.NoReserve),
	)

	newInputReserve := new(big.Int).Add(new(big.Int).SetUint64(inputReserve), netInput)

	// Ceiling division keeps yes*no from ever dropping below k.
	newOutputReserve := new(big.Int).Add(k, new(big.Int).Sub(newInputReserve, big.NewInt(1)))
	newOutputReserve.Quo(newOutputReserve, newInputReserve)

	output := new(big.Int).Sub(new(big.Int).SetUint64(outputReserve), newOutputReserve)
	if output.Sign() <= 0 {
		return domain.TradeQuote{}, fmt.Errorf("%w: insufficient pool liquidity", domain.ErrInvalidAmount)
	}

	minReceived := new(big.Int).Mul(output, big.NewInt(int64(bpsDenominator-slippageBps)))
	minReceived.Quo(minReceived, big.NewInt(bpsDenominator))

	newYes, newNo := newOutputReserve.Uint64(), newInputReserve.Uint64()
	if tradeType == domain.TradeBuyNo || tradeType == domain.TradeSellYes {
		newYes, newNo = newInputReserve.Uint64(), newOutputReserve.Uint64()
	}

	return domain.TradeQuote{
		Type:           tradeType,
		InputAmount:    input,
		OutputAmount:   output.Uint64(),
		FeeAmount:      fee.Uint64(),
		MinReceived:    minReceived.Uint64(),
		PriceImpact:    priceImpact(netInput, output, inputReserve, outputReserve),
		NewYesReserve:  newYes,
		NewNoReserve:   newNo,
		YesPriceBefore: spotYes,
		YesPriceAfter:  yesPrice(newYes, newNo),
	}, nil
}

// yesPrice is the marginal probability-style price of the YES outcome.
func yesPrice(yesReserve, noReserve uint64) float64 {
	total := float64(yesReserve) + float64(noReserve)
	if total == 0 {
		return 0
	}
	return float64(noReserve) / total
}

// priceImpact compares the realised execution price with the spot price and
// returns the deviation as a percentage.
func priceImpact(netInput, output *big.Int, inputReserve, outputReserve uint64) float64 {
	if outputReserve == 0 || output.Sign() == 0 {
		return 0
	}
	spot := float64(inputReserve) / float64(outputReserve)
	exec, _ := new(big.Float).Quo(
		new(big.Float).SetInt(netInput),
		new(big.Float).SetInt(output),
	).Float64()
	if spot == 0 {
		return 0
	}
	impact := (exec - spot) / spot * 100
	if impact < 0 {
		impact = -impact
	}
	return impact
}
