package types

const (
	PlanPremiumHub = "premium_hub"
	PlanTestDrive  = "test_drive"
)

// Plan describes one of the two paid offers.
type Plan struct {
	ID           string
	PromoCode    string
	MonthlyPrice int
	Title        string
}

var Plans = map[string]Plan{
	PlanPremiumHub: {ID: PlanPremiumHub, PromoCode: "PREMIUM17", MonthlyPrice: 17, Title: "Premium Hub"},
	PlanTestDrive:  {ID: PlanTestDrive, PromoCode: "SOROKA", MonthlyPrice: 9, Title: "Test Drive"},
}

func PlanByID(id string) (Plan, bool) {
	p, ok := Plans[id]
	return p, ok
}
