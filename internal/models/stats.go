package models

// Overview — сводная статистика дашборда (GET /api/stats/overview).
type Overview struct {
	TotalReplays      int   `json:"total_replays"`
	TotalUsers        int   `json:"total_users"`
	TotalStorageBytes int64 `json:"total_storage_bytes"`
	ReplaysToday      int   `json:"replays_today"`
	ReplaysThisWeek   int   `json:"replays_this_week"`
	ActiveSessions    int   `json:"active_sessions"`
}

// TopUser — строка рейтинга пользователей по числу реплеев.
type TopUser struct {
	Username             string `json:"username"`
	DisplayName          string `json:"display_name,omitempty"`
	ReplayCount          int    `json:"replay_count"`
	TotalDurationSeconds int64  `json:"total_duration_seconds"`
}

// TimePoint — одна точка временного ряда реплеев (день -> количество).
type TimePoint struct {
	Date                 string `json:"date"`
	Count                int    `json:"count"`
	TotalDurationSeconds int64  `json:"total_duration_seconds"`
}
