package scenario

import (
	"math"
	"math/rand/v2"
)

var (
	CurrencyPairs = []string{"GBP/USD", "USD/EUR", "EUR/JPY", "USD/JPY", "AUD/USD"}
	Directions    = []string{"ABOVE", "BELOW"}
	ChannelPools  = [][]string{
		{"email"},
		{"sms"},
		{"email", "sms"},
		{"push"},
	}
)

// RandomSubscription draws a subscription with a threshold in [0.5, 2.5)
// rounded to 4 decimal places.
func RandomSubscription() CreateSubscriptionRequest {
	channels := ChannelPools[rand.IntN(len(ChannelPools))]
	return CreateSubscriptionRequest{
		CurrencyPair:         CurrencyPairs[rand.IntN(len(CurrencyPairs))],
		Threshold:            math.Round((rand.Float64()*2+0.5)*1e4) / 1e4,
		Direction:            Directions[rand.IntN(len(Directions))],
		NotificationChannels: append([]string(nil), channels...),
	}
}

// FixedSubscription is the payload used by the arrival-rate scenario.
func FixedSubscription() CreateSubscriptionRequest {
	return CreateSubscriptionRequest{
		CurrencyPair:         "GBP/USD",
		Threshold:            1.25,
		Direction:            "ABOVE",
		NotificationChannels: []string{"email", "sms"},
	}
}
