package models

// TenantGrant gives a user access to one board/employer/toli triple.
type TenantGrant struct {
	ID         uint   `gorm:"primaryKey"`
	UserID     string `gorm:"index;not null"`
	BoardID    *int64
	EmployerID *int64
	ToliID     *int64
	CanWrite   bool
	Priority   int
}

func (TenantGrant) TableName() string {
	return "tenant_grants"
}
