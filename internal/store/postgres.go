package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"inmoradar/internal/models"
)

// PostgresBackend implements Backend over raw SQL with lib/pq.
type PostgresBackend struct {
	conn *sql.DB
}

func NewPostgres(host string, port int, user, password, dbname string) (*PostgresBackend, error) {
	connStr := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		host, port, user, password, dbname)

	conn, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}

	if err := conn.Ping(); err != nil {
		return nil, err
	}

	return &PostgresBackend{conn: conn}, nil
}

func (b *PostgresBackend) Close() error {
	return b.conn.Close()
}

// InitSchema creates the tables if they don't exist
func (b *PostgresBackend) InitSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS properties (
		id VARCHAR(32) PRIMARY KEY,
		source_url VARCHAR(500) NOT NULL UNIQUE,
		portal VARCHAR(20) NOT NULL,
		title TEXT,

		price DECIMAL(12, 2),
		surface_m2 DECIMAL(10, 2),
		price_per_m2 DECIMAL(10, 2),

		address TEXT,
		zone VARCHAR(100),
		district VARCHAR(100),
		city VARCHAR(100),

		rooms INTEGER,
		bathrooms INTEGER,
		floor INTEGER,
		is_exterior BOOLEAN NOT NULL DEFAULT FALSE,
		has_lift BOOLEAN NOT NULL DEFAULT FALSE,
		has_garage BOOLEAN NOT NULL DEFAULT FALSE,
		has_pool BOOLEAN NOT NULL DEFAULT FALSE,
		has_storage BOOLEAN NOT NULL DEFAULT FALSE,
		is_penthouse BOOLEAN NOT NULL DEFAULT FALSE,

		condition VARCHAR(20),
		images TEXT,

		score DECIMAL(5, 2) NOT NULL DEFAULT 0,
		score_details TEXT,

		status VARCHAR(20) NOT NULL DEFAULT 'ACTIVE',
		extraction_confidence VARCHAR(10) NOT NULL DEFAULT 'full',

		created_at TIMESTAMP NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMP NOT NULL DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_properties_portal ON properties(portal);
	CREATE INDEX IF NOT EXISTS idx_properties_zone ON properties(zone);
	CREATE INDEX IF NOT EXISTS idx_properties_status ON properties(status);
	CREATE INDEX IF NOT EXISTS idx_properties_price ON properties(price);
	CREATE INDEX IF NOT EXISTS idx_properties_score ON properties(score DESC);
	CREATE INDEX IF NOT EXISTS idx_properties_created_at ON properties(created_at DESC);

	CREATE TABLE IF NOT EXISTS property_history (
		id SERIAL PRIMARY KEY,
		property_id VARCHAR(32) NOT NULL REFERENCES properties(id) ON DELETE CASCADE,
		price DECIMAL(12, 2),
		surface_m2 DECIMAL(10, 2),
		status VARCHAR(20) NOT NULL,
		recorded_at TIMESTAMP NOT NULL DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_history_property_id ON property_history(property_id);

	CREATE TABLE IF NOT EXISTS status_transitions (
		id SERIAL PRIMARY KEY,
		property_id VARCHAR(32) NOT NULL,
		from_status VARCHAR(20) NOT NULL,
		to_status VARCHAR(20) NOT NULL,
		reason TEXT,
		created_at TIMESTAMP NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS comparables (
		id SERIAL PRIMARY KEY,
		source_url VARCHAR(500) UNIQUE,
		zone VARCHAR(100),
		district VARCHAR(100),
		price DECIMAL(12, 2),
		surface_m2 DECIMAL(10, 2),
		price_per_m2 DECIMAL(10, 2),
		was_reformed BOOLEAN,
		reform_quality VARCHAR(10),
		reviewed_at TIMESTAMP,
		sold_at TIMESTAMP,
		created_at TIMESTAMP NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMP NOT NULL DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_comparables_zone ON comparables(zone);

	CREATE TABLE IF NOT EXISTS runs (
		id SERIAL PRIMARY KEY,
		portal VARCHAR(20) NOT NULL,
		zone VARCHAR(100),
		total_found INTEGER NOT NULL DEFAULT 0,
		total_processed INTEGER NOT NULL DEFAULT 0,
		saved INTEGER NOT NULL DEFAULT 0,
		skipped INTEGER NOT NULL DEFAULT 0,
		errors INTEGER NOT NULL DEFAULT 0,
		started_at TIMESTAMP NOT NULL,
		ended_at TIMESTAMP NOT NULL,
		created_at TIMESTAMP NOT NULL DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_runs_portal ON runs(portal);
	`
	_, err := b.conn.Exec(query)
	return err
}

const propertyColumns = `id, source_url, portal, title,
	price, surface_m2, price_per_m2,
	address, zone, district, city,
	rooms, bathrooms, floor,
	is_exterior, has_lift, has_garage, has_pool, has_storage, is_penthouse,
	condition, images, score, score_details,
	status, extraction_confidence, created_at, updated_at`

func (b *PostgresBackend) FindByURL(url string) (*models.Property, error) {
	row := b.conn.QueryRow(
		`SELECT `+propertyColumns+` FROM properties WHERE source_url = $1`, url)
	p, err := scanProperty(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return p, err
}

func (b *PostgresBackend) Create(p *models.Property) error {
	images, details, err := marshalJSONFields(p)
	if err != nil {
		return err
	}

	_, err = b.conn.Exec(`
	INSERT INTO properties (
		id, source_url, portal, title,
		price, surface_m2, price_per_m2,
		address, zone, district, city,
		rooms, bathrooms, floor,
		is_exterior, has_lift, has_garage, has_pool, has_storage, is_penthouse,
		condition, images, score, score_details,
		status, extraction_confidence, created_at, updated_at
	)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
		$15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28)`,
		p.ID, p.SourceURL, p.Portal, p.Title,
		p.Price, p.SurfaceM2, p.PricePerM2,
		p.Address, p.Zone, p.District, p.City,
		p.Rooms, p.Bathrooms, p.Floor,
		p.IsExterior, p.HasLift, p.HasGarage, p.HasPool, p.HasStorage, p.IsPenthouse,
		p.Condition, images, p.Score, details,
		p.Status, p.ExtractionConfidence, p.CreatedAt, p.UpdatedAt)
	return err
}

func (b *PostgresBackend) Update(p *models.Property) error {
	images, details, err := marshalJSONFields(p)
	if err != nil {
		return err
	}

	_, err = b.conn.Exec(`
	UPDATE properties SET
		title = $2, price = $3, surface_m2 = $4, price_per_m2 = $5,
		address = $6, zone = $7, district = $8, city = $9,
		rooms = $10, bathrooms = $11, floor = $12,
		is_exterior = $13, has_lift = $14, has_garage = $15,
		has_pool = $16, has_storage = $17, is_penthouse = $18,
		condition = $19, images = $20, score = $21, score_details = $22,
		status = $23, extraction_confidence = $24, updated_at = $25
	WHERE id = $1`,
		p.ID, p.Title, p.Price, p.SurfaceM2, p.PricePerM2,
		p.Address, p.Zone, p.District, p.City,
		p.Rooms, p.Bathrooms, p.Floor,
		p.IsExterior, p.HasLift, p.HasGarage,
		p.HasPool, p.HasStorage, p.IsPenthouse,
		p.Condition, images, p.Score, details,
		p.Status, p.ExtractionConfidence, time.Now())
	return err
}

func (b *PostgresBackend) TouchUpdatedAt(id string, t time.Time) error {
	_, err := b.conn.Exec(`UPDATE properties SET updated_at = $2 WHERE id = $1`, id, t)
	return err
}

func (b *PostgresBackend) AppendHistory(h *models.PropertyHistory) error {
	return b.conn.QueryRow(`
	INSERT INTO property_history (property_id, price, surface_m2, status, recorded_at)
	VALUES ($1, $2, $3, $4, $5)
	RETURNING id`,
		h.PropertyID, h.Price, h.SurfaceM2, h.Status, h.RecordedAt).Scan(&h.ID)
}

func (b *PostgresBackend) RecordTransition(t *models.StatusTransition) error {
	return b.conn.QueryRow(`
	INSERT INTO status_transitions (property_id, from_status, to_status, reason, created_at)
	VALUES ($1, $2, $3, $4, $5)
	RETURNING id`,
		t.PropertyID, t.FromStatus, t.ToStatus, t.Reason, time.Now()).Scan(&t.ID)
}

func (b *PostgresBackend) Count(f ListFilter) (int64, error) {
	where, args := buildWhere(f)
	var count int64
	err := b.conn.QueryRow(`SELECT COUNT(*) FROM properties`+where, args...).Scan(&count)
	return count, err
}

func (b *PostgresBackend) List(f ListFilter) ([]models.Property, error) {
	where, args := buildWhere(f)

	query := `SELECT ` + propertyColumns + ` FROM properties` + where +
		` ORDER BY ` + orderClause(f.OrderBy)
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if f.Offset > 0 {
		args = append(args, f.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := b.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var properties []models.Property
	for rows.Next() {
		p, err := scanProperty(rows)
		if err != nil {
			return nil, err
		}
		properties = append(properties, *p)
	}
	return properties, rows.Err()
}

func (b *PostgresBackend) HistoryFor(propertyID string, limit int) ([]models.PropertyHistory, error) {
	query := `
	SELECT id, property_id, price, surface_m2, status, recorded_at
	FROM property_history
	WHERE property_id = $1
	ORDER BY recorded_at DESC`
	args := []interface{}{propertyID}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}

	rows, err := b.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var history []models.PropertyHistory
	for rows.Next() {
		var h models.PropertyHistory
		if err := rows.Scan(&h.ID, &h.PropertyID, &h.Price, &h.SurfaceM2, &h.Status, &h.RecordedAt); err != nil {
			return nil, err
		}
		history = append(history, h)
	}
	return history, rows.Err()
}

func (b *PostgresBackend) FindStale(portal models.Portal, cutoff time.Time) ([]models.Property, error) {
	rows, err := b.conn.Query(
		`SELECT `+propertyColumns+` FROM properties
		 WHERE portal = $1 AND status = $2 AND updated_at < $3`,
		portal, models.PropertyStatusActive, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectProperties(rows)
}

func (b *PostgresBackend) FindExpired(cutoff time.Time, limit int) ([]models.Property, error) {
	query := `SELECT ` + propertyColumns + ` FROM properties
		WHERE status = $1 AND updated_at < $2`
	args := []interface{}{models.PropertyStatusRemoved, cutoff}
	if limit > 0 {
		query += " LIMIT $3"
		args = append(args, limit)
	}

	rows, err := b.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectProperties(rows)
}

func (b *PostgresBackend) Delete(id string) error {
	_, err := b.conn.Exec(`DELETE FROM properties WHERE id = $1`, id)
	return err
}

func (b *PostgresBackend) SaveRun(r *models.RunRecord) error {
	return b.conn.QueryRow(`
	INSERT INTO runs (portal, zone, total_found, total_processed, saved, skipped, errors, started_at, ended_at, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
	RETURNING id`,
		r.Portal, r.Zone, r.TotalFound, r.TotalProcessed,
		r.Saved, r.Skipped, r.Errors, r.StartedAt, r.EndedAt).Scan(&r.ID)
}

func (b *PostgresBackend) GetComparable(id uint) (*models.Comparable, error) {
	var c models.Comparable
	err := b.conn.QueryRow(`
	SELECT id, source_url, zone, district, price, surface_m2, price_per_m2,
	       was_reformed, reform_quality, reviewed_at, sold_at, created_at, updated_at
	FROM comparables WHERE id = $1`, id).Scan(
		&c.ID, &c.SourceURL, &c.Zone, &c.District, &c.Price, &c.SurfaceM2, &c.PricePerM2,
		&c.WasReformed, &c.ReformQuality, &c.ReviewedAt, &c.SoldAt, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (b *PostgresBackend) SaveComparable(c *models.Comparable) error {
	if c.ID == 0 {
		return b.conn.QueryRow(`
		INSERT INTO comparables (source_url, zone, district, price, surface_m2, price_per_m2,
			was_reformed, reform_quality, reviewed_at, sold_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW(), NOW())
		RETURNING id`,
			c.SourceURL, c.Zone, c.District, c.Price, c.SurfaceM2, c.PricePerM2,
			c.WasReformed, c.ReformQuality, c.ReviewedAt, c.SoldAt).Scan(&c.ID)
	}
	_, err := b.conn.Exec(`
	UPDATE comparables SET
		zone = $2, district = $3, price = $4, surface_m2 = $5, price_per_m2 = $6,
		was_reformed = $7, reform_quality = $8, reviewed_at = $9, sold_at = $10,
		updated_at = NOW()
	WHERE id = $1`,
		c.ID, c.Zone, c.District, c.Price, c.SurfaceM2, c.PricePerM2,
		c.WasReformed, c.ReformQuality, c.ReviewedAt, c.SoldAt)
	return err
}

func buildWhere(f ListFilter) (string, []interface{}) {
	var clauses []string
	var args []interface{}

	add := func(clause string, value interface{}) {
		args = append(args, value)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}

	if f.Portal != "" {
		add("portal = $%d", f.Portal)
	}
	if f.Zone != "" {
		add("zone = $%d", f.Zone)
	}
	if f.Status != "" {
		add("status = $%d", f.Status)
	}
	if f.MinPrice != nil {
		add("price >= $%d", *f.MinPrice)
	}
	if f.MaxPrice != nil {
		add("price <= $%d", *f.MaxPrice)
	}
	if f.MinScore != nil {
		add("score >= $%d", *f.MinScore)
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanProperty(row rowScanner) (*models.Property, error) {
	var p models.Property
	var images, details sql.NullString

	err := row.Scan(
		&p.ID, &p.SourceURL, &p.Portal, &p.Title,
		&p.Price, &p.SurfaceM2, &p.PricePerM2,
		&p.Address, &p.Zone, &p.District, &p.City,
		&p.Rooms, &p.Bathrooms, &p.Floor,
		&p.IsExterior, &p.HasLift, &p.HasGarage, &p.HasPool, &p.HasStorage, &p.IsPenthouse,
		&p.Condition, &images, &p.Score, &details,
		&p.Status, &p.ExtractionConfidence, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if images.Valid && images.String != "" {
		if err := json.Unmarshal([]byte(images.String), &p.Images); err != nil {
			return nil, fmt.Errorf("decode images for %s: %w", p.ID, err)
		}
	}
	if details.Valid && details.String != "" {
		if err := json.Unmarshal([]byte(details.String), &p.ScoreDetails); err != nil {
			return nil, fmt.Errorf("decode score details for %s: %w", p.ID, err)
		}
	}
	return &p, nil
}

func collectProperties(rows *sql.Rows) ([]models.Property, error) {
	var properties []models.Property
	for rows.Next() {
		p, err := scanProperty(rows)
		if err != nil {
			return nil, err
		}
		properties = append(properties, *p)
	}
	return properties, rows.Err()
}

func marshalJSONFields(p *models.Property) (images, details sql.NullString, err error) {
	if len(p.Images) > 0 {
		raw, err := json.Marshal(p.Images)
		if err != nil {
			return images, details, err
		}
		images = sql.NullString{String: string(raw), Valid: true}
	}
	if len(p.ScoreDetails) > 0 {
		raw, err := json.Marshal(p.ScoreDetails)
		if err != nil {
			return images, details, err
		}
		details = sql.NullString{String: string(raw), Valid: true}
	}
	return images, details, nil
}
