package models

import (
	"time"

	"github.com/google/uuid"
)

// ReplayStatus — статус реплея на сервере.
type ReplayStatus string

const (
	ReplayStatusActive   ReplayStatus = "active"
	ReplayStatusArchived ReplayStatus = "archived"
	ReplayStatusDeleted  ReplayStatus = "deleted"
)

// Replay — запись сессии Guacamole, как её отдаёт API.
type Replay struct {
	ID              uuid.UUID    `json:"id"`
	Filename        string       `json:"filename"`
	SessionName     string       `json:"session_name,omitempty"`
	OwnerUsername   string       `json:"owner_username,omitempty"`
	ClientIP        string       `json:"client_ip,omitempty"`
	FileSize        int64        `json:"file_size"`
	DurationSeconds int64        `json:"duration_seconds"`
	SessionStart    *time.Time   `json:"session_start,omitempty"`
	SessionEnd      *time.Time   `json:"session_end,omitempty"`
	ImportedAt      time.Time    `json:"imported_at"`
	Status          ReplayStatus `json:"status"`
	Protocol        string       `json:"protocol,omitempty"`
	Hostname        string       `json:"hostname,omitempty"`
	ConnectionName  string       `json:"connection_name,omitempty"`
	StorageTier     string       `json:"storage_tier,omitempty"`
}

// ReplayPage — страница списка реплеев (GET /api/replays).
//
// Инвариант: len(Items) <= PageSize; Total — размер всего отфильтрованного
// множества на сервере, а не длина страницы.
type ReplayPage struct {
	Items      []Replay `json:"items"`
	Total      int      `json:"total"`
	Page       int      `json:"page"`
	PageSize   int      `json:"page_size"`
	TotalPages int      `json:"total_pages,omitempty"`
}

// ReplayFilters — активный набор критериев фильтрации списка.
// Пустое значение критерия означает «не передавать в запрос».
// Даты — строки в ISO-формате, как их формирует UI.
type ReplayFilters struct {
	Query       string
	Username    string
	SessionName string
	ClientIP    string
	DateFrom    string
	DateTo      string
	Status      string
	SortBy      string
	SortOrder   string
}

// ReplayFilterPatch — частичное обновление фильтров: nil-поле не трогает
// текущее значение, непустой указатель перезаписывает (в т.ч. пустой строкой).
type ReplayFilterPatch struct {
	Query       *string
	Username    *string
	SessionName *string
	ClientIP    *string
	DateFrom    *string
	DateTo      *string
	Status      *string
	SortBy      *string
	SortOrder   *string
}

// Apply накатывает патч на набор фильтров.
func (f ReplayFilters) Apply(p ReplayFilterPatch) ReplayFilters {
	if p.Query != nil {
		f.Query = *p.Query
	}
	if p.Username != nil {
		f.Username = *p.Username
	}
	if p.SessionName != nil {
		f.SessionName = *p.SessionName
	}
	if p.ClientIP != nil {
		f.ClientIP = *p.ClientIP
	}
	if p.DateFrom != nil {
		f.DateFrom = *p.DateFrom
	}
	if p.DateTo != nil {
		f.DateTo = *p.DateTo
	}
	if p.Status != nil {
		f.Status = *p.Status
	}
	if p.SortBy != nil {
		f.SortBy = *p.SortBy
	}
	if p.SortOrder != nil {
		f.SortOrder = *p.SortOrder
	}

	return f
}
