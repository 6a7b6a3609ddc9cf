package storage

import "time"

// TableSnapshot is the serialized form of the last EOP table fetched from a
// source. Payload is opaque to storage.
type TableSnapshot struct {
	ID          uint      `json:"-" gorm:"primaryKey;column:id"`
	Source      string    `json:"source" gorm:"column:source;index"`
	Payload     []byte    `json:"payload" gorm:"column:payload"`
	SampleCount int       `json:"sample_count" gorm:"column:sample_count"`
	FirstMJD    float64   `json:"first_mjd" gorm:"column:first_mjd"`
	LastMJD     float64   `json:"last_mjd" gorm:"column:last_mjd"`
	FetchedAt   time.Time `json:"fetched_at" gorm:"column:fetched_at"`
}

func (TableSnapshot) TableName() string { return "eop_snapshots" }

type Setting struct {
	Key       string    `gorm:"primaryKey;column:key"`
	Value     string    `gorm:"column:value"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

func (Setting) TableName() string { return "settings" }

// Token represents an API access token. Only a bcrypt hash of the secret is
// stored.
type Token struct {
	ID         string     `json:"id" gorm:"primaryKey;column:id"`
	Name       string     `json:"name" gorm:"column:name"`
	SecretHash string     `json:"-" gorm:"column:secret_hash"`
	Role       string     `json:"role" gorm:"column:role"`
	CreatedAt  time.Time  `json:"created_at" gorm:"column:created_at"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty" gorm:"column:expires_at"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty" gorm:"column:last_used_at"`
}

func (Token) TableName() string { return "tokens" }

// CasbinRule represents a policy rule for RBAC.
type CasbinRule struct {
	ID    uint   `gorm:"primaryKey"`
	PType string `json:"ptype" gorm:"column:ptype"`
	V0    string `json:"v0" gorm:"column:v0"`
	V1    string `json:"v1" gorm:"column:v1"`
	V2    string `json:"v2" gorm:"column:v2"`
	V3    string `json:"v3" gorm:"column:v3"`
	V4    string `json:"v4" gorm:"column:v4"`
	V5    string `json:"v5" gorm:"column:v5"`
}

func (CasbinRule) TableName() string { return "casbin_rules" }

func (r CasbinRule) values() [7]string {
	return [7]string{r.PType, r.V0, r.V1, r.V2, r.V3, r.V4, r.V5}
}

type ScheduledJob struct {
	Name           string    `json:"name" gorm:"primaryKey;column:name"`
	LastRunAt      time.Time `json:"last_run_at" gorm:"column:last_run_at"`
	LastDurationMs int64     `json:"last_duration_ms" gorm:"column:last_duration_ms"`
	LastSuccess    int       `json:"last_success" gorm:"column:last_success"`
	LastError      string    `json:"last_error,omitempty" gorm:"column:last_error"`
}

func (ScheduledJob) TableName() string { return "scheduled_jobs" }
