package gormstore

import (
	"context"
	"time"

	driver "github.com/go-sql-driver/mysql"
	"github.com/pkg/errors"
	gormmysql "gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"stockpile/internal/service/inventory/domain"
)

// inventoryRow is the single shared token counter.
type inventoryRow struct {
	ID        uint `gorm:"primaryKey"`
	Amount    int64
	UpdatedAt time.Time
}

func (inventoryRow) TableName() string { return "inventory" }

// reservationRow is the deduction ledger. The unique (user_id, order_id)
// index is what makes forward-path deduction idempotent under at-least-once
// delivery.
type reservationRow struct {
	ID        uint  `gorm:"primaryKey"`
	UserID    int64 `gorm:"uniqueIndex:idx_user_order"`
	OrderID   int64 `gorm:"uniqueIndex:idx_user_order"`
	Amount    int64
	CreatedAt time.Time
}

func (reservationRow) TableName() string { return "inventory_transactions" }

// Store is the GORM/MySQL implementation of port.InventoryStore.
type Store struct {
	db *gorm.DB
}

func Open(dsn string) (*Store, error) {
	db, err := gorm.Open(gormmysql.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, errors.Wrap(err, "open mysql")
	}
	return &Store{db: db}, nil
}

// NewWithDB wraps an existing gorm handle; used by tests.
func NewWithDB(db *gorm.DB) *Store { return &Store{db: db} }

// Migrate creates the schema when absent.
func (s *Store) Migrate(ctx context.Context) error {
	err := s.db.WithContext(ctx).AutoMigrate(&inventoryRow{}, &reservationRow{})
	return errors.Wrap(err, "migrate inventory schema")
}

// Seed inserts the starting token amount, but only into an empty table, so
// worker restarts never re-seed a live counter.
func (s *Store) Seed(ctx context.Context, amount int64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&inventoryRow{}).Count(&count).Error; err != nil {
			return errors.Wrap(err, "count inventory rows")
		}
		if count > 0 {
			return nil
		}
		if err := tx.Create(&inventoryRow{Amount: amount}).Error; err != nil {
			return errors.Wrap(err, "seed inventory")
		}
		return nil
	})
}

func (s *Store) Available(ctx context.Context) (int64, error) {
	var row inventoryRow
	if err := s.db.WithContext(ctx).First(&row).Error; err != nil {
		return 0, errors.Wrap(err, "read inventory")
	}
	return row.Amount, nil
}

// Deduct runs the whole read-check-write as one transaction with the
// counter row locked, so concurrent workers on the same row cannot lose
// updates. The ledger gates the deduction per (user_id, order_id).
func (s *Store) Deduct(ctx context.Context, userID, orderID, amount int64) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var seen int64
		if err := tx.Model(&reservationRow{}).
			Where("user_id = ? AND order_id = ?", userID, orderID).
			Count(&seen).Error; err != nil {
			return errors.Wrap(err, "check reservation ledger")
		}
		if seen > 0 {
			return domain.ErrAlreadyReserved
		}

		var row inventoryRow
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&row).Error; err != nil {
			return errors.Wrap(err, "lock inventory row")
		}
		if row.Amount < amount {
			return domain.ErrInsufficientTokens
		}

		if err := tx.Model(&inventoryRow{}).Where("id = ?", row.ID).
			Update("amount", row.Amount-amount).Error; err != nil {
			return errors.Wrap(err, "deduct tokens")
		}
		if err := tx.Create(&reservationRow{UserID: userID, OrderID: orderID, Amount: amount}).Error; err != nil {
			return errors.Wrap(err, "record reservation")
		}
		return nil
	})

	// Two workers can pass the ledger check concurrently; the unique index
	// turns the loser's insert into a duplicate-key error.
	if isDuplicateKey(err) {
		return domain.ErrAlreadyReserved
	}
	return err
}

// Restore credits tokens back unconditionally. Same locked transaction
// shape as Deduct.
func (s *Store) Restore(ctx context.Context, amount int64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row inventoryRow
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&row).Error; err != nil {
			return errors.Wrap(err, "lock inventory row")
		}
		if err := tx.Model(&inventoryRow{}).Where("id = ?", row.ID).
			Update("amount", row.Amount+amount).Error; err != nil {
			return errors.Wrap(err, "restore tokens")
		}
		return nil
	})
}

func isDuplicateKey(err error) bool {
	var mysqlErr *driver.MySQLError
	return errors.As(err, &mysqlErr) && mysqlErr.Number == 1062
}
