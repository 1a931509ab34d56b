package devices

import "time"

// Kind classifies a registered terminal.
type Kind string

const (
	KindServer Kind = "server"
	KindClient Kind = "client"
	KindMobile Kind = "mobile"
)

func (k Kind) valid() bool {
	switch k {
	case KindServer, KindClient, KindMobile:
		return true
	}
	return false
}

// Device is one registered terminal, keyed by (company, device). Devices
// are soft-deactivated and never hard-deleted.
type Device struct {
	CompanyID     string     `gorm:"column:company_id;primaryKey;size:190;not null" json:"company_id"`
	DeviceID      string     `gorm:"column:device_id;primaryKey;size:190;not null" json:"device_id"`
	DisplayName   string     `gorm:"column:display_name;size:320" json:"display_name"`
	Kind          Kind       `gorm:"column:kind;size:16;not null;default:'client'" json:"kind"`
	IPAddress     string     `gorm:"column:ip_address;size:64" json:"ip_address"`
	RegisteredBy  string     `gorm:"column:registered_by;size:190" json:"registered_by"`
	RegisteredAt  time.Time  `gorm:"column:registered_at;not null" json:"registered_at"`
	LastSeenAt    time.Time  `gorm:"column:last_seen_at;not null" json:"last_seen_at"`
	DeactivatedAt *time.Time `gorm:"column:deactivated_at" json:"deactivated_at,omitempty"`
	Active        bool       `gorm:"column:active;not null;default:true" json:"active"`
}

// TableName provides the explicit table binding for GORM.
func (Device) TableName() string {
	return "sync_devices"
}
