package models

type SubscriptionTier string

const (
	TierFree       SubscriptionTier = "free"
	TierPro        SubscriptionTier = "pro"
	TierEnterprise SubscriptionTier = "enterprise"
)

type Account struct {
	ID       string           `json:"id"`
	Email    string           `json:"email"`
	Tier     SubscriptionTier `json:"subscriptionTier"`
	JobsUsed int              `json:"jobsUsed"`
}
