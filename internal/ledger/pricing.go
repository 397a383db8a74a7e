package ledger

import "math/big"

// Default pricing parameters: a unit price of 0.7 expressed as an exact
// ratio, and the original minimum stake of 1000 base units. Integer ratio
// arithmetic keeps repeated quotes for the same stake bit-identical; there
// is no floating point anywhere in settlement.
const (
	DefaultPriceNumerator   = 7
	DefaultPriceDenominator = 10
)

// DefaultMinRatingAmount is the stake floor below which a rating is rejected.
var DefaultMinRatingAmount = big.NewInt(1000)

// price computes amount * num / den without mutating amount.
func price(amount *big.Int, num, den int64) *big.Int {
	p := new(big.Int).Mul(amount, big.NewInt(num))
	return p.Quo(p, big.NewInt(den))
}

// PreviewPayment quotes the payment required to stake amount. It is
// monotonically increasing in amount and exact: quoting the same stake twice
// always yields the same payment.
func (l *Ledger) PreviewPayment(amount *big.Int) *big.Int {
	return price(amount, l.priceNum, l.priceDen)
}
