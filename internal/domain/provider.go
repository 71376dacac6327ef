package domain

import (
	"sort"
	"time"
)

// ProviderDetail is one configured downstream provider.
type ProviderDetail struct {
	ID                    string
	Identifier            string
	DisplayName           string
	Channel               Channel
	Active                bool
	Priority              int
	SupportsInternational bool
	UpdatedAt             time.Time
}

// EligibleProviders keeps active providers able to serve the request,
// ordered by ascending priority. Identifier breaks priority ties so the
// order is stable across calls.
func EligibleProviders(details []ProviderDetail, channel Channel, international bool) []ProviderDetail {
	eligible := make([]ProviderDetail, 0, len(details))
	for _, d := range details {
		if d.Channel != channel || !d.Active {
			continue
		}
		if channel == ChannelSMS && international && !d.SupportsInternational {
			continue
		}
		eligible = append(eligible, d)
	}

	sort.SliceStable(eligible, func(i, j int) bool {
		if eligible[i].Priority != eligible[j].Priority {
			return eligible[i].Priority < eligible[j].Priority
		}
		return eligible[i].Identifier < eligible[j].Identifier
	})

	return eligible
}
