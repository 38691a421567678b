package scenario

import "time"

type SignupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Mobile   string `json:"mobile"`
	Admin    bool   `json:"admin"`
}

type SignupResponse struct {
	UserID  string `json:"userId"`
	Message string `json:"message"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Token   string `json:"token"`
	Message string `json:"message,omitempty"`
}

type CreateSubscriptionRequest struct {
	CurrencyPair         string   `json:"currencyPair"`
	Threshold            float64  `json:"threshold"`
	Direction            string   `json:"direction"`
	NotificationChannels []string `json:"notificationChannels"`
}

// Subscription is one entry of the service's subscription listings.
type Subscription struct {
	ID                    string    `json:"id"`
	CurrencyPair          string    `json:"currencyPair"`
	Threshold             float64   `json:"threshold"`
	Direction             string    `json:"direction"`
	NotificationsChannels []string  `json:"notificationsChannels"`
	Status                string    `json:"status"`
	CreatedAt             time.Time `json:"createdAt"`
	UpdatedAt             time.Time `json:"updatedAt"`
}

type CreateSubscriptionResponse struct {
	SubscriptionID string       `json:"subscriptionId"`
	Message        string       `json:"message"`
	Subscription   Subscription `json:"subscription"`
}

type SubscriptionsResponse struct {
	Subscriptions []Subscription `json:"subscriptions"`
	TotalCount    int            `json:"totalCount"`
}
