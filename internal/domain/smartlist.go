package domain

// SmartListType names a rule-derived contact segment. Membership is a
// pure function of the current profile + lead score snapshot and is never
// persisted separately.
type SmartListType string

const (
	ListNeedsFollowUp  SmartListType = "needs_follow_up"
	ListWarmLeads      SmartListType = "warm_leads"
	ListInactive30Days SmartListType = "inactive_30_days"
	ListVIP            SmartListType = "vip"
	ListColdLeads      SmartListType = "cold_leads"
	ListRecentContacts SmartListType = "recent_contacts"
	ListHotLeads       SmartListType = "hot_leads"
	ListAtRisk         SmartListType = "at_risk"
)

// AllSmartLists returns the closed set of smart list types in stable order.
func AllSmartLists() []SmartListType {
	return []SmartListType{
		ListNeedsFollowUp,
		ListWarmLeads,
		ListInactive30Days,
		ListVIP,
		ListColdLeads,
		ListRecentContacts,
		ListHotLeads,
		ListAtRisk,
	}
}
