package pythd

import "encoding/json"

const (
	jsonrpcVersion = "2.0"

	methodGetProductList      = "get_product_list"
	methodSubscribePriceSched = "subscribe_price_sched"
	methodUpdatePrice         = "update_price"
	methodNotifyPriceSched    = "notify_price_sched"

	symbolAttribute = "symbol"
)

// SubscriptionID identifies a price schedule subscription.
type SubscriptionID int64

// NotifyPriceSchedHandler is called every time pythd asks for a new price
// for one of the subscribed price accounts.
type NotifyPriceSchedHandler func(subscription SubscriptionID)

// Product is a product listed by pythd, with its reference data and the
// price accounts that can be updated for it.
type Product struct {
	Account    string            `json:"account"`
	Attributes map[string]string `json:"attr_dict"`
	Prices     []PriceAccount    `json:"price"`
}

// Symbol returns the symbol of the product, ie. Crypto.BTC/USD.
func (p Product) Symbol() string {
	return p.Attributes[symbolAttribute]
}

// PriceAccount is an account holding the price of a product, along with the
// exponent used to represent prices in fixed point.
type PriceAccount struct {
	Account  string `json:"account"`
	Exponent int    `json:"price_exponent"`
}

type request struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      uint64      `json:"id"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
}

type message struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *uint64         `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

type subscribePriceSchedParams struct {
	Account string `json:"account"`
}

type subscribePriceSchedResult struct {
	Subscription SubscriptionID `json:"subscription"`
}

type notifyPriceSchedParams struct {
	Subscription SubscriptionID `json:"subscription"`
}

type updatePriceParams struct {
	Account string `json:"account"`
	Price   int64  `json:"price"`
	Conf    uint64 `json:"conf"`
	Status  string `json:"status"`
}
