package ethiopost

import (
	"github.com/shopspring/decimal"

	"bolo/internal/domain"
)

// Local tariff in ETB, used when the fee service is unreachable.
var (
	fallbackBaseRate            = decimal.NewFromInt(50)
	fallbackServiceFee          = decimal.NewFromInt(25)
	fallbackExpressDistanceFee  = decimal.NewFromInt(100)
	fallbackStandardDistanceFee = decimal.NewFromInt(50)
)

const (
	expressDeliveryDays  = 2
	standardDeliveryDays = 5
)

// FallbackFee computes the local delivery tariff. Anything other than
// express is priced as standard.
func FallbackFee(serviceType domain.ServiceType) *domain.DeliveryFeeCalculation {
	distance := fallbackStandardDistanceFee
	days := standardDeliveryDays
	if serviceType == domain.ServiceTypeExpress {
		distance = fallbackExpressDistanceFee
		days = expressDeliveryDays
	}

	return &domain.DeliveryFeeCalculation{
		BaseRate:              fallbackBaseRate,
		DistanceFee:           distance,
		ServiceFee:            fallbackServiceFee,
		TotalFee:              fallbackBaseRate.Add(distance).Add(fallbackServiceFee),
		Currency:              domain.DefaultCurrency,
		EstimatedDeliveryDays: days,
		Fallback:              true,
	}
}
