package money

// Code represents a currency code (e.g., "ZAR", "USD").
type Code string

// Supported currency codes
const (
	ZAR Code = "ZAR" // South African Rand
	USD Code = "USD" // US Dollar
	EUR Code = "EUR" // Euro
	GBP Code = "GBP" // British Pound
	NGN Code = "NGN" // Nigerian Naira
	KES Code = "KES" // Kenyan Shilling
	JPY Code = "JPY" // Japanese Yen
	KWD Code = "KWD" // Kuwaiti Dinar
)

// decimals lists currencies whose minor unit exponent is not 2.
var decimals = map[Code]int{
	JPY: 0,
	KWD: 3,
}
