package rules

import (
	"fmt"

	"quant-research/internal/dto"
)

// ApplyDerived computes the requested oscillator and volume columns and
// attaches them to the series before signal generation. The caller passes a
// clone when the base series is shared, since columns are added in place.
func ApplyDerived(series *dto.PriceSeries, specs []dto.DerivedColumn) error {
	for _, spec := range specs {
		source := spec.Source
		if source == "" {
			source = dto.ColumnClose
		}
		base, err := series.Column(source)
		if err != nil {
			return err
		}

		var values []float64
		switch spec.Kind {
		case dto.DerivedROC:
			if spec.Window <= 0 {
				return &dto.ValidationError{Reason: fmt.Sprintf("derived column %q: roc needs a positive window", spec.Name)}
			}
			values = ROC(base, spec.Window)
		case dto.DerivedSMAOfROC:
			if spec.Window <= 0 || spec.Smooth <= 0 {
				return &dto.ValidationError{Reason: fmt.Sprintf("derived column %q: sma_of_roc needs positive window and smooth", spec.Name)}
			}
			values = SMAOfROC(base, spec.Window, spec.Smooth)
		case dto.DerivedRatioMA:
			if spec.Fast <= 0 || spec.Slow <= spec.Fast || spec.Window <= 0 {
				return &dto.ValidationError{Reason: fmt.Sprintf("derived column %q: ratio_ma_roc needs 0 < fast < slow and a positive window", spec.Name)}
			}
			values = RatioMAROC(base, spec.Fast, spec.Slow, spec.Window)
		case dto.DerivedOBV:
			volumes, err := series.Column(dto.ColumnVolume)
			if err != nil {
				return err
			}
			values = OnBalanceVolume(base, volumes)
		default:
			return &dto.ValidationError{Reason: fmt.Sprintf("derived column %q: unknown kind %q", spec.Name, spec.Kind)}
		}

		if err := series.SetColumn(spec.Name, values); err != nil {
			return err
		}
	}
	return nil
}
