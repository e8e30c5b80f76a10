package risk

// Tier is a discrete risk bucket derived from the predicted probability.
type Tier string

const (
	TierLow      Tier = "Low Risk"
	TierModerate Tier = "Moderate Risk"
	TierHigh     Tier = "High Risk"
)

// Decision thresholds. Boundary convention is strictly-greater: a
// probability of exactly 0.5 is Low.
const (
	highRiskThreshold     = 0.5
	highProtocolThreshold = 0.7
)

// RiskLevel maps a probability to the displayed two-tier label.
func RiskLevel(probability float64) Tier {
	if probability > highRiskThreshold {
		return TierHigh
	}
	return TierLow
}

// Protocol is a canned set of clinical recommendations.
type Protocol struct {
	Tier            Tier     `json:"tier"`
	Recommendations []string `json:"recommendations"`
}

// ProtocolFor selects the recommendation block with a three-way split
// at 0.7/0.5. This is deliberately independent of RiskLevel: a
// probability in (0.5, 0.7] is displayed High Risk but managed with
// the moderate protocol.
func ProtocolFor(probability float64) Protocol {
	switch {
	case probability > highProtocolThreshold:
		return Protocol{
			Tier: TierHigh,
			Recommendations: []string{
				"Enhanced respiratory monitoring - continuous pulse oximetry",
				"Prophylactic antibiotics - consider Piperacillin-Tazobactam",
				"Chest X-ray within 6 hours post-op",
				"Arterial blood gas analysis every 4 hours",
				"Consult pulmonologist immediately",
			},
		}
	case probability > highRiskThreshold:
		return Protocol{
			Tier: TierModerate,
			Recommendations: []string{
				"Incentive spirometry every 2 hours while awake",
				"Daily serum procalcitonin levels",
				"Strict fluid balance management (<1500mL/24hrs)",
				"Pulmonary auscultation every 4 hours",
				"Early mobilization protocol",
			},
		}
	default:
		return Protocol{
			Tier: TierLow,
			Recommendations: []string{
				"Standard postoperative care",
				"Maintain SpO2 > 95% with supplemental O2 as needed",
				"Deep breathing exercises Q2H",
				"Monitor for respiratory symptoms",
				"Chest physiotherapy PRN",
			},
		}
	}
}
