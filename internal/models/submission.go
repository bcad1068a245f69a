package models

import (
	"time"

	"github.com/google/uuid"
)

// Metadata keys stamped on every ingested submission.
const (
	MetaReceivedAt = "receivedAt"
	MetaIP         = "ip"
	MetaUserAgent  = "userAgent"
	MetaAPIKeyID   = "apiKeyId"
)

// Submission is a persisted inbound form post.
type Submission struct {
	ID                uuid.UUID              `json:"id"`
	UserID            string                 `json:"userId"`
	SiteName          string                 `json:"siteName"`
	FormName          string                 `json:"formName"`
	Data              map[string]interface{} `json:"data"`
	AdvertisingParams map[string]interface{} `json:"advertisingParams,omitempty"`
	Metadata          map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt         time.Time              `json:"createdAt"`
}

// APIKeyID returns the originating API key id recorded in metadata.
func (s Submission) APIKeyID() string {
	if s.Metadata == nil {
		return ""
	}
	id, _ := s.Metadata[MetaAPIKeyID].(string)
	return id
}

// SubmissionCreate is the inbound payload accepted by the ingestion endpoint.
type SubmissionCreate struct {
	SiteName          string                 `json:"siteName" binding:"required"`
	FormName          string                 `json:"formName" binding:"required"`
	Data              map[string]interface{} `json:"data"`
	AdvertisingParams map[string]interface{} `json:"advertisingParams,omitempty"`
	Metadata          map[string]interface{} `json:"metadata,omitempty"`
}

// RequestMeta describes where a submission came from.
type RequestMeta struct {
	IP        string
	UserAgent string
	APIKeyID  string
}

// SubmissionFilter narrows submission listings.
type SubmissionFilter struct {
	SiteName  string
	FormName  string
	StartDate *time.Time
	EndDate   *time.Time
	Page      int
	Limit     int
}

// Pagination describes a page of results.
type Pagination struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
	Pages int `json:"pages"`
}

// NewPagination computes the page count for total rows.
func NewPagination(page, limit, total int) Pagination {
	pages := 0
	if limit > 0 {
		pages = (total + limit - 1) / limit
	}
	return Pagination{Page: page, Limit: limit, Total: total, Pages: pages}
}

// SubmissionAnalytics aggregates a user's submissions.
type SubmissionAnalytics struct {
	Total                int                       `json:"total"`
	SiteAnalytics        map[string]int            `json:"siteAnalytics"`
	FormAnalytics        map[string]int            `json:"formAnalytics"`
	AdvertisingAnalytics map[string]map[string]int `json:"advertisingAnalytics"`
}
