package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vtruhin/StockFlux/internal/domain"
)

func TestProducts(t *testing.T) {
	products, err := Products("archive", "AAPL", "", "MSFT", "AAPL")
	require.NoError(t, err)
	require.Len(t, products, 2)

	assert.Equal(t, "AAPL", products[0].ID)
	assert.Equal(t, "archive", products[0].Source)
	def, ok := products[0].DefaultPeriod()
	require.True(t, ok)
	assert.Equal(t, domain.PeriodDay1, def)
	assert.True(t, products[1].SupportsPeriod(domain.PeriodWeek1.Seconds))
	assert.False(t, products[1].SupportsPeriod(domain.PeriodHour1.Seconds))

	// each product owns its period slice
	products[0].Periods[0] = domain.PeriodHour1
	assert.Equal(t, domain.PeriodDay1, products[1].Periods[0])
}

func TestProducts_Generated(t *testing.T) {
	products, err := Products("generated", "Data Generator")
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, []domain.Period{domain.PeriodDay1}, products[0].Periods)
}

func TestProducts_UnknownSource(t *testing.T) {
	_, err := Products("kraken", "XBTUSD")
	assert.Error(t, err)
}
