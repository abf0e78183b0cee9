package domain

// SubscriptionID is the handle assigned by the daemon to every subscription
// to the update schedule of a price account.
type SubscriptionID int64

// Product is a tradable instrument known by the daemon.
type Product struct {
	Account string
	Symbol  string
	Prices  []PriceAccount
}

// PriceAccount is one of the accounts where the prices of a product are
// published, each with its own fixed point exponent.
type PriceAccount struct {
	Account  string
	Exponent int
}

// Subscription binds a subscription to the price account it refers to.
type Subscription struct {
	ID       SubscriptionID
	Symbol   string
	Account  string
	Exponent int
}
