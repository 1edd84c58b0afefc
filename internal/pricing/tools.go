package pricing

import (
	"context"

	"github.com/scorzo/cloudcost/internal/models"
	"github.com/scorzo/cloudcost/internal/toolserver"
)

const (
	ToolCalculateSavings = "calculate_instance_savings"
	ToolListSupported    = "list_supported_instances"
)

var calculateSavingsSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"instances": map[string]any{
			"type":        "array",
			"description": "List of AWS instance configurations to compare",
			"items": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"type": map[string]any{
						"type":        "string",
						"description": "AWS instance type (e.g., 't3.micro', 'm5.large')",
					},
					"quantity": map[string]any{
						"type":        "integer",
						"description": "Number of instances",
						"minimum":     1,
					},
					"region": map[string]any{
						"type":        "string",
						"description": "AWS region (e.g., 'us-east-1', 'us-west-2', 'eu-west-1')",
					},
					"hours_per_month": map[string]any{
						"type":        "integer",
						"description": "Hours per month (default: 730 for 24/7 operation)",
						"minimum":     1,
						"maximum":     MaxHoursPerMonth,
						"default":     DefaultHoursPerMonth,
					},
				},
				"required": []string{"type", "quantity", "region"},
			},
			"minItems": 1,
		},
	},
	"required": []string{"instances"},
}

type calculateSavingsArgs struct {
	Instances []InstanceConfig `json:"instances"`
}

// Register the calculator's tools on d.
func Register(d *toolserver.Dispatcher, c *Calculator) {
	d.Register(toolserver.Tool{
		Descriptor: models.ToolDescriptor{
			Name:        ToolCalculateSavings,
			Description: "Calculate cost comparison between AWS instances and alternative cloud instances. Provides detailed breakdown of costs, savings, and recommendations.",
			InputSchema: calculateSavingsSchema,
		},
		Handler: func(ctx context.Context, args models.Input) (any, error) {
			a, err := toolserver.DecodeArgs[calculateSavingsArgs](args)
			if err != nil {
				return nil, err
			}
			return c.CalculateInstanceSavings(a.Instances)
		},
	})
	d.Register(toolserver.Tool{
		Descriptor: models.ToolDescriptor{
			Name:        ToolListSupported,
			Description: "Get a list of supported AWS instance types and regions for cost comparison.",
			InputSchema: map[string]any{"type": "object", "properties": map[string]any{}},
		},
		Handler: func(ctx context.Context, args models.Input) (any, error) {
			return c.ListSupportedInstances(), nil
		},
	})
}
