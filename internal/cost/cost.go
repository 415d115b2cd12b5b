// ABOUTME: Cost accounting for provider runs
// ABOUTME: Pure dollars-from-usage computation against a configured pricing table

package cost

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Usage is the token consumption reported by the provider for one run.
type Usage struct {
	Model            string
	PromptTokens     int
	CompletionTokens int
}

// Rate holds the dollar rates for one model, per 1000 tokens.
type Rate struct {
	InputPer1K  float64 `yaml:"input_per_1k"`
	OutputPer1K float64 `yaml:"output_per_1k"`
}

// Table maps model identifiers to their rates, plus a flat per-image rate.
type Table struct {
	Models       map[string]Rate `yaml:"models"`
	ImagePerFile float64         `yaml:"image_per_file"`
}

// LoadTable reads a pricing table from a YAML file.
func LoadTable(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading pricing table: %w", err)
	}
	var t Table
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parsing pricing table: %w", err)
	}
	if len(t.Models) == 0 {
		return nil, fmt.Errorf("pricing table %s defines no models", path)
	}
	return &t, nil
}

// Compute returns the dollar cost of one run, split into input, output and
// image components. It is deterministic given its inputs and has no side
// effects. An unknown model is an error rather than a silent zero charge.
func Compute(u Usage, t *Table, imageCount int) (input, output, image float64, err error) {
	rate, ok := t.Models[u.Model]
	if !ok {
		return 0, 0, 0, fmt.Errorf("no pricing for model %q", u.Model)
	}
	input = float64(u.PromptTokens) / 1000 * rate.InputPer1K
	output = float64(u.CompletionTokens) / 1000 * rate.OutputPer1K
	image = float64(imageCount) * t.ImagePerFile
	return input, output, image, nil
}
