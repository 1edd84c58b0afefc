package pricing

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const (
	highSavingsPct        = 30
	significantSavingsPct = 20
	largeInfraMonthlyCost = 1000
)

var printer = message.NewPrinter(language.English)

// Recommend produces advice tiered by savings percentage and absolute AWS
// spend. Costs are monthly.
func Recommend(awsCost, altCost, savingsPct float64) []string {
	if savingsPct <= 0 {
		return []string{"Current AWS pricing is competitive for your configuration"}
	}
	annual := round((awsCost-altCost)*12, 2)
	ret := []string{
		printer.Sprintf("Switching to alternative cloud could save $%.2f annually", annual),
	}
	switch {
	case savingsPct > highSavingsPct:
		ret = append(ret, "High savings potential - consider migrating production workloads")
	case savingsPct > significantSavingsPct:
		ret = append(ret, "Significant savings - ideal for dev/staging environments")
	default:
		ret = append(ret, "Moderate savings - good for non-critical workloads")
	}
	if awsCost > largeInfraMonthlyCost {
		ret = append(ret, "Large infrastructure - consider phased migration approach")
	}
	return ret
}
