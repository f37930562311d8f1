package membership

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/somsomparty/chat-core/internal/domain"
	"github.com/somsomparty/chat-core/pkg/database"
	"github.com/somsomparty/chat-core/pkg/log"
)

// Models lists the tables owned by the registry, for migration.
func Models() []interface{} {
	return []interface{}{&domain.ChatRoomModel{}, &domain.MembershipModel{}}
}

// Migrate creates or updates the registry tables.
func Migrate(db *gorm.DB) error {
	return database.AutoMigrate(db, Models()...)
}

// GormRegistry implements Registry using GORM.
type GormRegistry struct {
	db *gorm.DB
}

// NewGormRegistry creates a new GORM-backed registry.
func NewGormRegistry(db *gorm.DB) *GormRegistry {
	return &GormRegistry{db: db}
}

func storeErr(err error) error {
	return fmt.Errorf("%w: %v", ErrStore, err)
}

// CreateRoom inserts the room if it does not exist and returns the stored row.
func (r *GormRegistry) CreateRoom(ctx context.Context, roomID int64, name string) (*domain.ChatRoom, error) {
	l := log.ForRoom(ctx, roomID, 0)

	model := domain.ChatRoomModel{ID: roomID, Name: name}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "id"}}, DoNothing: true}).
		Create(&model).Error
	if err != nil {
		l.Error().Err(err).Msg("failed to create chat room in db")
		return nil, storeErr(err)
	}

	return r.GetRoom(ctx, roomID)
}

// GetRoom retrieves a room by ID.
func (r *GormRegistry) GetRoom(ctx context.Context, roomID int64) (*domain.ChatRoom, error) {
	var model domain.ChatRoomModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", roomID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRoomNotFound
		}
		l := log.ForRoom(ctx, roomID, 0)
		l.Error().Err(err).Msg("failed to get chat room")
		return nil, storeErr(err)
	}
	return model.ToDomain(), nil
}

func roomExists(tx *gorm.DB, roomID int64) error {
	var count int64
	if err := tx.Model(&domain.ChatRoomModel{}).Where("id = ?", roomID).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return ErrRoomNotFound
	}
	return nil
}

func findMembership(tx *gorm.DB, userID, roomID int64) (*domain.MembershipModel, error) {
	var model domain.MembershipModel
	err := tx.Where("user_id = ? AND room_id = ?", userID, roomID).First(&model).Error
	if err != nil {
		return nil, err
	}
	return &model, nil
}

// Join adds the user to the room inside a single transaction. An existing
// membership is returned as is.
func (r *GormRegistry) Join(ctx context.Context, userID, roomID int64) (*domain.Membership, bool, error) {
	l := log.ForRoom(ctx, roomID, userID)

	var (
		model   *domain.MembershipModel
		created bool
	)
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := roomExists(tx, roomID); err != nil {
			return err
		}

		existing, err := findMembership(tx, userID, roomID)
		if err == nil {
			model = existing
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		model = &domain.MembershipModel{UserID: userID, RoomID: roomID}
		if err := tx.Create(model).Error; err != nil {
			return err
		}
		created = true
		return nil
	})

	switch {
	case err == nil:
		if created {
			l.Debug().Msg("membership created in db")
		}
		return model.ToDomain(), created, nil
	case errors.Is(err, ErrRoomNotFound):
		return nil, false, ErrRoomNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		// A concurrent join won the insert.
		existing, rerr := findMembership(r.db.WithContext(ctx), userID, roomID)
		if rerr == nil {
			return existing.ToDomain(), false, nil
		}
		err = rerr
	}

	l.Error().Err(err).Msg("failed to join room")
	return nil, false, storeErr(err)
}

// Leave removes the membership inside a single transaction.
func (r *GormRegistry) Leave(ctx context.Context, userID, roomID int64) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := roomExists(tx, roomID); err != nil {
			return err
		}

		result := tx.Where("user_id = ? AND room_id = ?", userID, roomID).Delete(&domain.MembershipModel{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrNotAMember
		}
		return nil
	})
	if err == nil || errors.Is(err, ErrRoomNotFound) || errors.Is(err, ErrNotAMember) {
		return err
	}

	l := log.ForRoom(ctx, roomID, userID)
	l.Error().Err(err).Msg("failed to leave room")
	return storeErr(err)
}

// IsMember checks whether the user belongs to the room.
func (r *GormRegistry) IsMember(ctx context.Context, userID, roomID int64) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.MembershipModel{}).
		Where("user_id = ? AND room_id = ?", userID, roomID).
		Count(&count).Error
	if err != nil {
		return false, storeErr(err)
	}
	return count > 0, nil
}

type roomSummaryRow struct {
	RoomID           int64
	RoomName         string
	ParticipantCount int64
}

// ListRoomsForUser returns every room the user belongs to, with the room's
// current member count.
func (r *GormRegistry) ListRoomsForUser(ctx context.Context, userID int64) ([]domain.RoomSummary, error) {
	var rows []roomSummaryRow
	err := r.db.WithContext(ctx).
		Table("room_memberships AS mine").
		Select("r.id AS room_id, r.name AS room_name, COUNT(peer.id) AS participant_count").
		Joins("JOIN chat_rooms AS r ON r.id = mine.room_id").
		Joins("JOIN room_memberships AS peer ON peer.room_id = mine.room_id").
		Where("mine.user_id = ?", userID).
		Group("r.id, r.name").
		Order("r.id").
		Scan(&rows).Error
	if err != nil {
		l := log.ForRoom(ctx, 0, userID)
		l.Error().Err(err).Msg("failed to list user rooms")
		return nil, storeErr(err)
	}

	out := make([]domain.RoomSummary, len(rows))
	for i, row := range rows {
		out[i] = domain.RoomSummary{
			RoomID:           row.RoomID,
			RoomName:         row.RoomName,
			ParticipantCount: row.ParticipantCount,
		}
	}
	return out, nil
}

// ListMembers returns the user ids of a room's members.
func (r *GormRegistry) ListMembers(ctx context.Context, roomID int64) ([]int64, error) {
	var ids []int64
	err := r.db.WithContext(ctx).Model(&domain.MembershipModel{}).
		Where("room_id = ?", roomID).
		Order("user_id").
		Pluck("user_id", &ids).Error
	if err != nil {
		return nil, storeErr(err)
	}
	return ids, nil
}

// ListRoomIDs returns every registered room id.
func (r *GormRegistry) ListRoomIDs(ctx context.Context) ([]int64, error) {
	var ids []int64
	if err := r.db.WithContext(ctx).Model(&domain.ChatRoomModel{}).Order("id").Pluck("id", &ids).Error; err != nil {
		return nil, storeErr(err)
	}
	return ids, nil
}
