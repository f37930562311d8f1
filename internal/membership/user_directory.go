package membership

import (
	"context"

	"gorm.io/gorm"

	"github.com/somsomparty/chat-core/internal/domain"
)

// GormUserDirectory looks users up in the shared users table, which is owned
// by the account service.
type GormUserDirectory struct {
	db *gorm.DB
}

// NewGormUserDirectory creates a directory backed by db.
func NewGormUserDirectory(db *gorm.DB) *GormUserDirectory {
	return &GormUserDirectory{db: db}
}

func (d *GormUserDirectory) Exists(ctx context.Context, userID int64) (bool, error) {
	var count int64
	err := d.db.WithContext(ctx).Model(&domain.UserModel{}).Where("id = ?", userID).Count(&count).Error
	if err != nil {
		return false, storeErr(err)
	}
	return count > 0, nil
}

// TrustingUserDirectory accepts every positive id. It is used when the
// account database is not reachable from this service and identity is
// already enforced by the gateway.
type TrustingUserDirectory struct{}

func (TrustingUserDirectory) Exists(_ context.Context, userID int64) (bool, error) {
	return userID > 0, nil
}
