package ethiopost

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"bolo/internal/domain"
)

func TestFallbackFee(t *testing.T) {
	express := FallbackFee(domain.ServiceTypeExpress)
	standard := FallbackFee(domain.ServiceTypeStandard)

	assert.True(t, express.TotalFee.Equal(decimal.NewFromInt(175)))
	assert.True(t, standard.TotalFee.Equal(decimal.NewFromInt(125)))
	assert.Equal(t, 2, express.EstimatedDeliveryDays)
	assert.Equal(t, 5, standard.EstimatedDeliveryDays)
	assert.True(t, express.Fallback)
	assert.Equal(t, "ETB", express.Currency)
}

func TestFallbackFee_ExpressCostsMoreAndArrivesSooner(t *testing.T) {
	express := FallbackFee(domain.ServiceTypeExpress)
	standard := FallbackFee(domain.ServiceTypeStandard)

	assert.True(t, express.TotalFee.GreaterThanOrEqual(standard.TotalFee))
	assert.True(t, express.DistanceFee.GreaterThanOrEqual(standard.DistanceFee))
	assert.Less(t, express.EstimatedDeliveryDays, standard.EstimatedDeliveryDays)
}

func TestFallbackFee_TotalIsSumOfParts(t *testing.T) {
	for _, st := range []domain.ServiceType{domain.ServiceTypeExpress, domain.ServiceTypeStandard, "overnight"} {
		fee := FallbackFee(st)
		sum := fee.BaseRate.Add(fee.DistanceFee).Add(fee.ServiceFee)
		assert.True(t, fee.TotalFee.Equal(sum), "service %q", st)
	}
}
