package stellar

// NativeAssetType is the Horizon asset_type of the network's base currency.
const NativeAssetType = "native"

// Account is the subset of a Horizon account record this service uses.
// This is our domain model, independent of the Horizon response format.
type Account struct {
	ID       string
	Sequence int64
	Balances []Balance
}

// Balance is one trustline (or the native balance) of an account.
type Balance struct {
	AssetType string
	AssetCode string
	Amount    string // decimal string as returned by Horizon, e.g. "9999.9999900"
}

// NativeBalance returns the native balance amount. Accounts always carry a
// native entry on the real network; "0" is returned if one is missing.
func (a *Account) NativeBalance() string {
	for _, b := range a.Balances {
		if b.AssetType == NativeAssetType {
			return b.Amount
		}
	}
	return "0"
}
