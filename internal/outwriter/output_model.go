package outwriter

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/attendrisk/attendrisk/internal/contract"
	"github.com/attendrisk/attendrisk/schema"
)

// WriteModelDefinition displays the active risk model.
// This is a static display that does not read any attendance input.
func WriteModelDefinition(model schema.ModelRenderModel, cfg *contract.Config) error {
	switch cfg.Output {
	case schema.JSONOut:
		return writeWithFile(cfg.OutputFile, func(w io.Writer) error {
			return writeJSON(w, model)
		}, "Wrote JSON")
	case schema.CSVOut:
		return writeWithFile(cfg.OutputFile, func(w io.Writer) error {
			return writeModelCSV(w, model)
		}, "Wrote CSV")
	case schema.ParquetOut:
		return fmt.Errorf("output format %s is not supported for the model command", cfg.Output)
	default:
		return writeWithFile(cfg.OutputFile, func(w io.Writer) error {
			return writeModelText(w, model)
		}, "Wrote text")
	}
}

// writeModelText displays the model in human-readable text format.
func writeModelText(w io.Writer, model schema.ModelRenderModel) error {
	lines := []string{
		"📐 Attendance Risk Model (features " + model.Version + ")",
		"=======================================",
		"",
		model.Description,
		"Formula: " + model.Formula,
		"",
	}
	for _, line := range lines {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}

	for _, f := range model.Factors {
		if _, err := fmt.Fprintf(w, "  %-20s %+7.2f  %s\n", f.Feature, f.Weight, f.Description); err != nil {
			return err
		}
	}

	_, err := fmt.Fprintf(w, "\nLabels: safe < %.2f ≤ watch < %.2f ≤ at_risk\nRequired attendance: %.0f%%\n",
		model.Cutoffs.Watch, model.Cutoffs.AtRisk, model.Required*100)
	return err
}

// writeModelCSV writes one row per model coefficient, bias first.
func writeModelCSV(w io.Writer, model schema.ModelRenderModel) error {
	return writeCSVWithHeader(w, []string{"feature", "weight", "description"}, func(cw *csv.Writer) error {
		if err := cw.Write([]string{"bias", fmt.Sprintf("%g", model.Bias), "Intercept of the logistic model"}); err != nil {
			return fmt.Errorf("failed to write CSV record: %w", err)
		}
		for _, f := range model.Factors {
			if err := cw.Write([]string{string(f.Feature), fmt.Sprintf("%g", f.Weight), f.Description}); err != nil {
				return fmt.Errorf("failed to write CSV record: %w", err)
			}
		}
		return nil
	})
}
