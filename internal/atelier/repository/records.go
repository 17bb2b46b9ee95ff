// Copyright © 2025 jackelyj <dreamerlyj@gmail.com>
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.
//

package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/innovationmech/atelier/internal/atelier/interfaces"
	"github.com/innovationmech/atelier/internal/atelier/model"
)

// Config configures the MySQL connection.
type Config struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	AutoMigrate     bool
}

// Open connects to MySQL and optionally migrates the schema.
func Open(cfg Config) (*gorm.DB, error) {
	if cfg.DSN == "" {
		return nil, errors.New("database dsn is required")
	}
	db, err := gorm.Open(mysql.Open(cfg.DSN), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	if cfg.AutoMigrate {
		if err := db.AutoMigrate(model.All()...); err != nil {
			return nil, fmt.Errorf("failed to migrate schema: %w", err)
		}
	}
	return db, nil
}

// recordStore is the gorm implementation of interfaces.RecordStore.
type recordStore struct {
	db *gorm.DB
}

// NewRecordStore creates a new record store.
func NewRecordStore(db *gorm.DB) interfaces.RecordStore {
	return &recordStore{db: db}
}

// create inserts value and tolerates a row that already has its id, so a
// retried persistence step is a no-op. A row skipped for colliding with
// another unique key is reported as interfaces.ErrDuplicate.
func (r *recordStore) create(ctx context.Context, table string, value interface{}, id *uuid.UUID) error {
	result := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(value)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected > 0 {
		return nil
	}
	var count int64
	if err := r.db.WithContext(ctx).Table(table).Where("id = ?", *id).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return fmt.Errorf("%w: %s", interfaces.ErrDuplicate, table)
	}
	return nil
}

func (r *recordStore) first(ctx context.Context, dest interface{}, id uuid.UUID) error {
	err := r.db.WithContext(ctx).Where("id = ?", id).First(dest).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return interfaces.ErrNotFound
	}
	return err
}

func (r *recordStore) setStatus(ctx context.Context, value interface{}, id uuid.UUID, status string) error {
	result := r.db.WithContext(ctx).Model(value).Where("id = ?", id).Update("status", status)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return interfaces.ErrNotFound
	}
	return nil
}

// CreateProduct creates a product.
func (r *recordStore) CreateProduct(ctx context.Context, product *model.Product) error {
	return r.create(ctx, "products", product, &product.ID)
}

// UpdateProduct saves every field of a product.
func (r *recordStore) UpdateProduct(ctx context.Context, product *model.Product) error {
	return r.db.WithContext(ctx).Save(product).Error
}

// DeleteProduct deletes a product.
func (r *recordStore) DeleteProduct(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&model.Product{}).Error
}

// GetProduct gets a product by id.
func (r *recordStore) GetProduct(ctx context.Context, id uuid.UUID) (*model.Product, error) {
	var product model.Product
	if err := r.first(ctx, &product, id); err != nil {
		return nil, err
	}
	return &product, nil
}

// CreateArticle creates an article.
func (r *recordStore) CreateArticle(ctx context.Context, article *model.Article) error {
	return r.create(ctx, "articles", article, &article.ID)
}

// UpdateArticle saves every field of an article.
func (r *recordStore) UpdateArticle(ctx context.Context, article *model.Article) error {
	return r.db.WithContext(ctx).Save(article).Error
}

// DeleteArticle deletes an article.
func (r *recordStore) DeleteArticle(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&model.Article{}).Error
}

// CreateBooking creates a booking.
func (r *recordStore) CreateBooking(ctx context.Context, booking *model.Booking) error {
	return r.create(ctx, "bookings", booking, &booking.ID)
}

// ConfirmBooking marks a booking confirmed.
func (r *recordStore) ConfirmBooking(ctx context.Context, id uuid.UUID) error {
	return r.setStatus(ctx, &model.Booking{}, id, model.BookingConfirmed)
}

// CancelBooking marks a booking void. Cancelling a missing booking succeeds.
func (r *recordStore) CancelBooking(ctx context.Context, id uuid.UUID) error {
	err := r.setStatus(ctx, &model.Booking{}, id, model.BookingVoid)
	if errors.Is(err, interfaces.ErrNotFound) {
		return nil
	}
	return err
}

// DeleteBooking deletes a booking.
func (r *recordStore) DeleteBooking(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&model.Booking{}).Error
}

// ListBookings lists the non-void bookings of a resource on a date.
func (r *recordStore) ListBookings(ctx context.Context, resource, date string) ([]model.Booking, error) {
	var bookings []model.Booking
	err := r.db.WithContext(ctx).
		Where("resource = ? AND date = ? AND status <> ?", resource, date, model.BookingVoid).
		Order("hour").
		Find(&bookings).Error
	return bookings, err
}

// CountBookingsByEmail counts the non-void bookings of an email on a date.
func (r *recordStore) CountBookingsByEmail(ctx context.Context, email, date string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.Booking{}).
		Where("email = ? AND date = ? AND status <> ?", email, date, model.BookingVoid).
		Count(&count).Error
	return count, err
}

// CreateOrder creates an order.
func (r *recordStore) CreateOrder(ctx context.Context, order *model.Order) error {
	return r.create(ctx, "orders", order, &order.ID)
}

// VoidOrder marks an order void. Voiding a missing order succeeds.
func (r *recordStore) VoidOrder(ctx context.Context, id uuid.UUID) error {
	err := r.setStatus(ctx, &model.Order{}, id, model.OrderVoid)
	if errors.Is(err, interfaces.ErrNotFound) {
		return nil
	}
	return err
}

// DeleteOrder deletes an order.
func (r *recordStore) DeleteOrder(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&model.Order{}).Error
}

// GetOrder gets an order by id.
func (r *recordStore) GetOrder(ctx context.Context, id uuid.UUID) (*model.Order, error) {
	var order model.Order
	if err := r.first(ctx, &order, id); err != nil {
		return nil, err
	}
	return &order, nil
}
