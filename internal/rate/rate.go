package rate

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

// ErrUnavailable 汇率源拿不到报价
var ErrUnavailable = errors.New("rate unavailable")

// Source 汇率源
// 桥接兑换的汇率从这里取，实现方可能失败（上游超时/无报价）
type Source interface {
	GetRate(ctx context.Context, sourceAsset, targetCurrency string) (decimal.Decimal, error)
}

// Fixed 固定汇率（没有接真实报价源之前用）
type Fixed struct {
	rate decimal.Decimal
}

func NewFixed(rate decimal.Decimal) *Fixed {
	return &Fixed{rate: rate}
}

func (f *Fixed) GetRate(ctx context.Context, sourceAsset, targetCurrency string) (decimal.Decimal, error) {
	if f.rate.IsZero() || f.rate.IsNegative() {
		return decimal.Zero, ErrUnavailable
	}
	return f.rate, nil
}
