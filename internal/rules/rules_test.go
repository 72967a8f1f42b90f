package rules

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quant-research/internal/dto"
)

func TestTrend(t *testing.T) {
	tests := []struct {
		name string
		xs   []float64
		want dto.Signal
	}{
		{name: "rising slope above threshold", xs: []float64{0, 1, 2, 3}, want: dto.SignalLong},
		{name: "falling slope below threshold", xs: []float64{3, 2, 1, 0}, want: dto.SignalShort},
		{name: "flat", xs: []float64{1, 1, 1, 1}, want: dto.SignalNeutral},
		{name: "shallow slope inside threshold", xs: []float64{0, 0.2, 0.4, 0.6}, want: dto.SignalNeutral},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Trend(Window{Values: tt.xs}, nil)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSupportResistance(t *testing.T) {
	tests := []struct {
		name   string
		xs     []float64
		params dto.Params
		want   dto.Signal
	}{
		{name: "break above high", xs: []float64{1, 2, 3, 4}, want: dto.SignalLong},
		{name: "break below low", xs: []float64{1, 2, 3, 0.5}, want: dto.SignalShort},
		{name: "inside range", xs: []float64{1, 2, 3, 2.5}, want: dto.SignalNeutral},
		{name: "band b filters marginal break", xs: []float64{1, 2, 3, 4}, params: dto.Params{"b": 0.5}, want: dto.SignalNeutral},
		{name: "e reference lowers the bar", xs: []float64{5, 1, 2, 3, 4}, params: dto.Params{"e": 0}, want: dto.SignalLong},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SupportResistance(Window{Values: tt.xs}, tt.params)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMovingAverage(t *testing.T) {
	tests := []struct {
		name   string
		xs     []float64
		params dto.Params
		want   dto.Signal
	}{
		{name: "last above simple MA", xs: []float64{1, 2, 3, 4, 5}, want: dto.SignalLong},
		{name: "last below simple MA", xs: []float64{5, 4, 3, 2, 1}, want: dto.SignalShort},
		{name: "flat is neutral", xs: []float64{3, 3, 3, 3}, want: dto.SignalNeutral},
		{name: "weighted MA", xs: []float64{1, 2, 3, 4, 5}, params: dto.Params{"kind": "weighted"}, want: dto.SignalLong},
		{name: "fast over slow pair", xs: []float64{1, 2, 3, 4, 5, 6}, params: dto.Params{"fast": 2, "slow": 6}, want: dto.SignalLong},
		{name: "filter b suppresses weak cross", xs: []float64{3, 3, 3, 3.01}, params: dto.Params{"b": 0.05}, want: dto.SignalNeutral},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MovingAverage(Window{Values: tt.xs}, tt.params)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestChannelBreakOut(t *testing.T) {
	tests := []struct {
		name   string
		xs     []float64
		params dto.Params
		want   dto.Signal
	}{
		{name: "upside breakout from narrow channel", xs: []float64{100, 101, 102, 103}, params: dto.Params{"channel_width": 0.05}, want: dto.SignalLong},
		{name: "downside breakout", xs: []float64{100, 101, 102, 99}, params: dto.Params{"channel_width": 0.05}, want: dto.SignalShort},
		{name: "inside channel", xs: []float64{100, 101, 102, 101}, params: dto.Params{"channel_width": 0.05}, want: dto.SignalNeutral},
		{name: "channel too wide", xs: []float64{100, 110, 120, 130}, params: dto.Params{"channel_width": 0.05}, want: dto.SignalNeutral},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ChannelBreakOut(Window{Values: tt.xs}, tt.params)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMomentumInOscillator(t *testing.T) {
	p := dto.Params{"upper": 2.0}
	assert.Equal(t, dto.SignalLong, MomentumInOscillator(Window{Values: []float64{0, 3}}, p))
	assert.Equal(t, dto.SignalShort, MomentumInOscillator(Window{Values: []float64{0, -3}}, p))
	assert.Equal(t, dto.SignalNeutral, MomentumInOscillator(Window{Values: []float64{0, 1}}, p))
}

func ohlcWindow(o, h, l, c []float64) Window {
	return Window{Series: map[string][]float64{
		dto.ColumnOpen:  o,
		dto.ColumnHigh:  h,
		dto.ColumnLow:   l,
		dto.ColumnClose: c,
	}}
}

func TestHammer(t *testing.T) {
	// Down bar then a small body with a long lower shadow: hammer.
	w := ohlcWindow(
		[]float64{10, 9},
		[]float64{10.2, 9.15},
		[]float64{8.8, 8.5},
		[]float64{9, 9.1},
	)
	assert.Equal(t, dto.SignalLong, Hammer(w, nil))

	// Same shape after an up bar: hanging man.
	w = ohlcWindow(
		[]float64{9, 10},
		[]float64{10.2, 10.15},
		[]float64{8.8, 9.5},
		[]float64{10, 10.1},
	)
	assert.Equal(t, dto.SignalShort, Hammer(w, nil))
}

func TestEngulfing(t *testing.T) {
	w := ohlcWindow(
		[]float64{10, 8.9},
		[]float64{10.1, 10.3},
		[]float64{8.9, 8.8},
		[]float64{9, 10.2},
	)
	assert.Equal(t, dto.SignalLong, Engulfing(w, nil))

	w = ohlcWindow(
		[]float64{9, 10.2},
		[]float64{10.1, 10.3},
		[]float64{8.9, 8.8},
		[]float64{10, 8.9},
	)
	assert.Equal(t, dto.SignalShort, Engulfing(w, nil))
}

func TestStar(t *testing.T) {
	// Long bearish bar, small body below its close, strong bullish recovery.
	w := ohlcWindow(
		[]float64{10, 7.8, 7.7},
		[]float64{10.1, 7.9, 9.6},
		[]float64{7.9, 7.5, 7.6},
		[]float64{8, 7.6, 9.5},
	)
	assert.Equal(t, dto.SignalLong, Star(w, nil))
}

func TestOnBalanceVolume(t *testing.T) {
	obv := OnBalanceVolume([]float64{1, 2, 2, 1}, []float64{10, 10, 10, 10})
	assert.Equal(t, []float64{0, 10, 10, 0}, obv)
}

func TestROC(t *testing.T) {
	roc := ROC([]float64{1, 2, 4}, 1)
	assert.Equal(t, []float64{0, 100, 100}, roc)
}

func derivedSeries(t *testing.T, closes, volumes []float64) *dto.PriceSeries {
	t.Helper()
	bars := make([]dto.Bar, len(closes))
	for i := range closes {
		bars[i] = dto.Bar{
			Date:   time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, i),
			Open:   closes[i],
			High:   closes[i],
			Low:    closes[i],
			Close:  closes[i],
			Volume: volumes[i],
		}
	}
	s, err := dto.NewPriceSeries("TEST", bars)
	require.NoError(t, err)
	return s
}

func TestApplyDerived(t *testing.T) {
	series := derivedSeries(t, []float64{1, 2, 2, 1}, []float64{10, 10, 10, 10})

	err := ApplyDerived(series, []dto.DerivedColumn{
		{Name: "obv", Kind: dto.DerivedOBV},
		{Name: "osc", Kind: dto.DerivedROC, Window: 1},
	})
	require.NoError(t, err)

	obv, err := series.Column("obv")
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 10, 10, 0}, obv)

	osc, err := series.Column("osc")
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 100, 0, -50}, osc)
}

func TestApplyDerivedValidation(t *testing.T) {
	tests := []struct {
		name string
		spec dto.DerivedColumn
	}{
		{name: "unknown kind", spec: dto.DerivedColumn{Name: "x", Kind: "macd"}},
		{name: "roc without window", spec: dto.DerivedColumn{Name: "x", Kind: dto.DerivedROC}},
		{name: "ratio with fast >= slow", spec: dto.DerivedColumn{Name: "x", Kind: dto.DerivedRatioMA, Fast: 5, Slow: 5, Window: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			series := derivedSeries(t, []float64{1, 2, 3}, []float64{1, 1, 1})
			err := ApplyDerived(series, []dto.DerivedColumn{tt.spec})
			var vErr *dto.ValidationError
			require.ErrorAs(t, err, &vErr)
		})
	}
}

func TestApplyDerivedUnknownSource(t *testing.T) {
	series := derivedSeries(t, []float64{1, 2, 3}, []float64{1, 1, 1})
	err := ApplyDerived(series, []dto.DerivedColumn{{Name: "x", Kind: dto.DerivedROC, Window: 1, Source: "vwap"}})
	var missing *dto.MissingDataError
	require.ErrorAs(t, err, &missing)
}

func TestLookup(t *testing.T) {
	fn, err := Lookup("trend")
	require.NoError(t, err)
	require.NotNil(t, fn)

	_, err = Lookup("nope")
	var vErr *dto.ValidationError
	require.ErrorAs(t, err, &vErr)
	// The error names what is registered so a typoed descriptor is fixable
	// from the message alone.
	assert.Contains(t, err.Error(), "support_resistance")

	multi, err := MultiSeries("engulfing")
	require.NoError(t, err)
	assert.True(t, multi)

	multi, err = MultiSeries("trend")
	require.NoError(t, err)
	assert.False(t, multi)
}
