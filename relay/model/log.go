package model

import "time"

// RequestLog is one append-only record of a completed (or failed) forwarded request.
type RequestLog struct {
	RequestId      string `gorm:"primaryKey"`
	ProviderId     string `gorm:"index:idx_provider_app"`
	AppType        string `gorm:"index:idx_provider_app"`
	Model          string `gorm:"index"`
	RequestModel   string
	InputTokens    int64
	OutputTokens   int64
	CacheReadTokens     int64
	CacheCreationTokens int64
	TotalCostUSD   string
	LatencyMs      int64
	FirstTokenMs   *int64
	StatusCode     int `gorm:"index"`
	IsStreaming    bool
	CostMultiplier string
	SessionId      string `gorm:"index"`
	ProviderType   string
	ErrorMessage   string
	CreatedAt      int64 `gorm:"index"`
}

// RequestLogFilter narrows a historic log query. Zero-valued fields are unconstrained.
type RequestLogFilter struct {
	ProviderId     string
	AppType        string
	Model          string
	SessionId      string
	StatusCode     int
	CreatedAtFrom  int64
	CreatedAtTo    int64
	Limit          int
}

// NowUnix returns the current unix-seconds timestamp used to stamp new log rows.
func NowUnix() int64 {
	return time.Now().Unix()
}
