package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/C4T-BuT-S4D/invitegate/internal/config"
	"github.com/C4T-BuT-S4D/invitegate/internal/models"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrNotFound = errors.New("not found")

type Storage struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Storage {
	return &Storage{db: db}
}

// Open connects to the configured database engine.
func Open(driver, dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch driver {
	case config.DriverPostgres:
		dialector = postgres.Open(dsn)
	case config.DriverSQLite:
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported driver %q", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", driver, err)
	}
	return db, nil
}

func (s *Storage) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(&models.User{}, &models.GlobalState{}); err != nil {
		return fmt.Errorf("migrating database: %w", err)
	}
	return nil
}

// Transaction runs fn against a Storage bound to a single transaction.
func (s *Storage) Transaction(ctx context.Context, fn func(tx *Storage) error) error {
	if err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Storage{db: tx})
	}); err != nil {
		return fmt.Errorf("in tx: %w", err)
	}
	return nil
}

func (s *Storage) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("getting sql db: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("pinging database: %w", err)
	}
	return nil
}

// GetStatus returns the stored record or ErrNotFound.
func (s *Storage) GetStatus(ctx context.Context, userID int64) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting user: %w", err)
	}
	return &user, nil
}

// GetOrCreateUser inserts a fresh record unless one already exists. Existing
// records are never modified, so the referrer captured on first contact sticks.
func (s *Storage) GetOrCreateUser(
	ctx context.Context,
	userID int64,
	username string,
	firstName string,
	referrerID *int64,
) (*models.User, bool, error) {
	userToCreate := &models.User{
		UserID:     userID,
		Username:   username,
		FirstName:  firstName,
		ReferrerID: referrerID,
	}

	var (
		user    models.User
		created bool
	)
	if err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.
			Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "user_id"}},
				DoNothing: true,
			}).
			Create(userToCreate)
		if res.Error != nil {
			return fmt.Errorf("creating user: %w", res.Error)
		}
		created = res.RowsAffected == 1

		if err := tx.
			Where("user_id = ?", userID).
			First(&user).
			Error; err != nil {
			return fmt.Errorf("getting user: %w", err)
		}

		return nil
	}); err != nil {
		return nil, false, fmt.Errorf("in tx: %w", err)
	}

	return &user, created, nil
}

// MarkFollowed flips channels_followed to true. The returned flag is true only
// for the call that performed the transition.
func (s *Storage) MarkFollowed(ctx context.Context, userID int64) (bool, error) {
	res := s.db.
		WithContext(ctx).
		Model(&models.User{}).
		Where("user_id = ? AND channels_followed = ?", userID, false).
		UpdateColumn("channels_followed", true)
	if res.Error != nil {
		return false, fmt.Errorf("updating user: %w", res.Error)
	}
	if res.RowsAffected == 1 {
		return true, nil
	}

	if _, err := s.GetStatus(ctx, userID); err != nil {
		return false, err
	}
	return false, nil
}

type CreditResult struct {
	InvitedCount int
	JustUnlocked bool
}

// IncrementInvite adds one referral credit and, in the same transaction,
// latches the unlocked flag when the count reaches threshold.
func (s *Storage) IncrementInvite(ctx context.Context, referrerID int64, threshold int) (*CreditResult, error) {
	var result CreditResult
	if err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.
			Model(&models.User{}).
			Where("user_id = ?", referrerID).
			UpdateColumn("invited_count", gorm.Expr("invited_count + ?", 1))
		if res.Error != nil {
			return fmt.Errorf("incrementing invited count: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}

		res = tx.
			Model(&models.User{}).
			Where("user_id = ? AND unlocked = ? AND invited_count >= ?", referrerID, false, threshold).
			UpdateColumn("unlocked", true)
		if res.Error != nil {
			return fmt.Errorf("setting unlocked: %w", res.Error)
		}
		result.JustUnlocked = res.RowsAffected == 1

		var user models.User
		if err := tx.
			Select("invited_count").
			Where("user_id = ?", referrerID).
			First(&user).
			Error; err != nil {
			return fmt.Errorf("getting user: %w", err)
		}
		result.InvitedCount = user.InvitedCount

		return nil
	}); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("in tx: %w", err)
	}

	return &result, nil
}

func (s *Storage) TopReferrers(ctx context.Context, limit int) ([]*models.User, error) {
	var result []*models.User
	if err := s.db.
		WithContext(ctx).
		Where("invited_count > 0").
		Order("invited_count DESC").
		Order("user_id").
		Limit(limit).
		Find(&result).
		Error; err != nil {
		return nil, fmt.Errorf("getting top referrers: %w", err)
	}
	return result, nil
}

func (s *Storage) CountUsers(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.User{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("counting users: %w", err)
	}
	return count, nil
}

func (s *Storage) GetOrCreateGlobalState(ctx context.Context) (*models.GlobalState, error) {
	state := &models.GlobalState{ID: models.GlobalStateID}
	if err := s.db.
		WithContext(ctx).
		Where(models.GlobalState{ID: models.GlobalStateID}).
		FirstOrCreate(state).
		Error; err != nil {
		return nil, fmt.Errorf("getting global state: %w", err)
	}
	return state, nil
}

// UpdateLastUpdate only moves the offset forward; handlers finish out of order.
func (s *Storage) UpdateLastUpdate(ctx context.Context, updateID int) error {
	if err := s.db.
		WithContext(ctx).
		Model(&models.GlobalState{}).
		Where("id = ? AND last_update_id < ?", models.GlobalStateID, updateID).
		UpdateColumn("last_update_id", updateID).
		Error; err != nil {
		return fmt.Errorf("updating last update: %w", err)
	}
	return nil
}
