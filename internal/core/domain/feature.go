package domain

// Named capabilities exposed to clients.
const (
	FeatureWithdrawal = "withdrawal"
	FeatureTransfer   = "transfer"
	FeatureSwap       = "swap"
)

// Feature is a named capability that can be switched on or off.
type Feature struct {
	Name    string `json:"name"`
	Enabled bool   `json:"enabled"`
}
