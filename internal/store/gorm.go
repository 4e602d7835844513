package store

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"inmoradar/internal/models"
)

// GormBackend implements Backend over GORM (MySQL in production, SQLite for
// single-node deployments and tests).
type GormBackend struct {
	db *gorm.DB
}

// NewMySQL opens a MySQL-backed store.
func NewMySQL(host string, port int, user, password, dbname string) (*GormBackend, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		user, password, host, port, dbname)

	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if err := sqlDB.Ping(); err != nil {
		return nil, err
	}

	return &GormBackend{db: db}, nil
}

// NewSQLite opens a SQLite-backed store. Use ":memory:" for tests.
func NewSQLite(path string) (*GormBackend, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}

	// A pooled ":memory:" DSN would open one database per connection.
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	return &GormBackend{db: db}, nil
}

// NewGormBackendFromDB wraps an existing gorm.DB instance.
func NewGormBackendFromDB(db *gorm.DB) *GormBackend {
	return &GormBackend{db: db}
}

// DB returns the underlying gorm.DB instance
func (b *GormBackend) DB() *gorm.DB {
	return b.db
}

// InitSchema creates tables using GORM AutoMigrate
func (b *GormBackend) InitSchema() error {
	return b.db.AutoMigrate(
		&models.Property{},
		&models.PropertyHistory{},
		&models.StatusTransition{},
		&models.Comparable{},
		&models.RunRecord{},
	)
}

func (b *GormBackend) FindByURL(url string) (*models.Property, error) {
	var p models.Property
	err := b.db.Where("source_url = ?", url).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (b *GormBackend) Create(p *models.Property) error {
	return b.db.Create(p).Error
}

func (b *GormBackend) Update(p *models.Property) error {
	return b.db.Save(p).Error
}

func (b *GormBackend) TouchUpdatedAt(id string, t time.Time) error {
	return b.db.Model(&models.Property{}).Where("id = ?", id).
		Update("updated_at", t).Error
}

func (b *GormBackend) AppendHistory(h *models.PropertyHistory) error {
	return b.db.Create(h).Error
}

func (b *GormBackend) RecordTransition(t *models.StatusTransition) error {
	return b.db.Create(t).Error
}

func (b *GormBackend) Count(f ListFilter) (int64, error) {
	var count int64
	err := b.applyFilter(f).Model(&models.Property{}).Count(&count).Error
	return count, err
}

func (b *GormBackend) List(f ListFilter) ([]models.Property, error) {
	var properties []models.Property

	q := b.applyFilter(f).Order(orderClause(f.OrderBy))
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	if f.Offset > 0 {
		q = q.Offset(f.Offset)
	}

	err := q.Find(&properties).Error
	return properties, err
}

func (b *GormBackend) HistoryFor(propertyID string, limit int) ([]models.PropertyHistory, error) {
	var history []models.PropertyHistory
	q := b.db.Where("property_id = ?", propertyID).Order("recorded_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&history).Error
	return history, err
}

func (b *GormBackend) FindStale(portal models.Portal, cutoff time.Time) ([]models.Property, error) {
	var properties []models.Property
	err := b.db.Where("portal = ? AND status = ? AND updated_at < ?",
		portal, models.PropertyStatusActive, cutoff).Find(&properties).Error
	return properties, err
}

func (b *GormBackend) FindExpired(cutoff time.Time, limit int) ([]models.Property, error) {
	var properties []models.Property
	q := b.db.Where("status = ? AND updated_at < ?", models.PropertyStatusRemoved, cutoff)
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&properties).Error
	return properties, err
}

func (b *GormBackend) Delete(id string) error {
	if err := b.db.Where("property_id = ?", id).Delete(&models.PropertyHistory{}).Error; err != nil {
		return err
	}
	return b.db.Where("id = ?", id).Delete(&models.Property{}).Error
}

func (b *GormBackend) SaveRun(r *models.RunRecord) error {
	return b.db.Create(r).Error
}

func (b *GormBackend) GetComparable(id uint) (*models.Comparable, error) {
	var c models.Comparable
	err := b.db.First(&c, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (b *GormBackend) SaveComparable(c *models.Comparable) error {
	return b.db.Save(c).Error
}

func (b *GormBackend) Close() error {
	sqlDB, err := b.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (b *GormBackend) applyFilter(f ListFilter) *gorm.DB {
	q := b.db.Model(&models.Property{})
	if f.Portal != "" {
		q = q.Where("portal = ?", f.Portal)
	}
	if f.Zone != "" {
		q = q.Where("zone = ?", f.Zone)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.MinPrice != nil {
		q = q.Where("price >= ?", *f.MinPrice)
	}
	if f.MaxPrice != nil {
		q = q.Where("price <= ?", *f.MaxPrice)
	}
	if f.MinScore != nil {
		q = q.Where("score >= ?", *f.MinScore)
	}
	return q
}

// orderClause maps the filter order parameter to SQL, putting NULL prices
// last where relevant.
func orderClause(orderBy string) string {
	switch orderBy {
	case "price_asc":
		return "CASE WHEN price IS NULL THEN 1 ELSE 0 END, price ASC"
	case "price_desc":
		return "CASE WHEN price IS NULL THEN 1 ELSE 0 END, price DESC"
	case "created_desc":
		return "created_at DESC"
	case "score_desc":
		return "score DESC"
	default:
		return "score DESC"
	}
}
