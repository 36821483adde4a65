package dashboard

// CountRow pairs a grouping key with its ticket count.
type CountRow struct {
	Key   string `json:"key"`
	Count int    `json:"count"`
}

// Summary is the aggregated helpdesk overview.
type Summary struct {
	ByStatus     []CountRow `json:"by_status"`
	ByPriority   []CountRow `json:"by_priority"`
	ByDepartment []CountRow `json:"by_department"`
	OpenAge      []CountRow `json:"open_age"`
	OnlineUsers  int        `json:"online_users"`
}
