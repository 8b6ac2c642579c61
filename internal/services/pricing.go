package services

import (
  "fmt"
  "os"
  "gopkg.in/yaml.v3"
  "github.com/yungbote/chatdesk-backend/internal/logger"
)

// ModelRate is the per-1K-token price pair for one model.
type ModelRate struct {
  InputPer1K    float64   `yaml:"input_per_1k"`
  OutputPer1K   float64   `yaml:"output_per_1k"`
}

// PricingTable is built once at startup and injected into the usage
// service; nothing mutates it afterwards.
type PricingTable struct {
  DefaultModel  string                  `yaml:"default_model"`
  Rates         map[string]ModelRate    `yaml:"models"`
}

func DefaultPricingTable() PricingTable {
  return PricingTable{
    DefaultModel: "gpt-4o-mini",
    Rates: map[string]ModelRate{
      "gpt-4o-mini":   {InputPer1K: 0.000150, OutputPer1K: 0.000600},
      "gpt-4o":        {InputPer1K: 0.005, OutputPer1K: 0.015},
      "gpt-3.5-turbo": {InputPer1K: 0.001, OutputPer1K: 0.002},
    },
  }
}

// LoadPricingTable returns the built-in table, overlaid with entries from
// the YAML file at path when one is given.
func LoadPricingTable(path string, log *logger.Logger) (PricingTable, error) {
  table := DefaultPricingTable()
  if path == "" {
    return table, nil
  }

  raw, err := os.ReadFile(path)
  if err != nil {
    return table, fmt.Errorf("read pricing config: %w", err)
  }
  var override PricingTable
  if err := yaml.Unmarshal(raw, &override); err != nil {
    return table, fmt.Errorf("parse pricing config: %w", err)
  }
  if override.DefaultModel != "" {
    table.DefaultModel = override.DefaultModel
  }
  for model, rate := range override.Rates {
    table.Rates[model] = rate
  }
  if _, ok := table.Rates[table.DefaultModel]; !ok {
    return table, fmt.Errorf("pricing config default model %q has no rate entry", table.DefaultModel)
  }
  if log != nil {
    log.Info("Pricing table loaded from config", "path", path, "models", len(table.Rates))
  }
  return table, nil
}

// RateFor falls back to the default tier for unknown models.
func (p PricingTable) RateFor(model string) ModelRate {
  if rate, ok := p.Rates[model]; ok {
    return rate
  }
  return p.Rates[p.DefaultModel]
}

func (p PricingTable) Cost(inputTokens, outputTokens int, model string) float64 {
  rate := p.RateFor(model)
  inputCost := float64(inputTokens) / 1000 * rate.InputPer1K
  outputCost := float64(outputTokens) / 1000 * rate.OutputPer1K
  return inputCost + outputCost
}
