package Models

import "time"

// User is an authenticated caller. Permission levels:
//
//	1 read, 2 write trips, 3 financial/metrics admin, 4 org admin + bulk import.
//
// OrganizationID scopes every read and write the user performs.
type User struct {
	ID             uint      `json:"id" gorm:"primaryKey"`
	OrganizationID uint      `json:"organization_id" gorm:"index;not null"`
	Name           string    `json:"name"`
	Email          string    `json:"email" gorm:"uniqueIndex;not null"`
	Password       []byte    `json:"-"`
	Permission     int       `json:"permission"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (User) TableName() string {
	return "users"
}
