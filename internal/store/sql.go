package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/ppiankov/iocscore/internal/model"
	"github.com/ppiankov/iocscore/internal/normalize"
)

type indicatorRow struct {
	Fingerprint string             `gorm:"primaryKey;size:64"`
	Type        string             `gorm:"index:idx_indicator_type_value;size:16"`
	Value       string             `gorm:"index:idx_indicator_type_value"`
	HashKind    string             `gorm:"size:16"`
	FirstSeen   time.Time          `gorm:"index"`
	LastSeen    time.Time          `gorm:"index"`
	Enrichment  model.Enrichment   `gorm:"serializer:json"`
	Score       *model.ScoreRecord `gorm:"serializer:json"`
	CreatedAt   time.Time
	UpdatedAt   time.Time

	Sightings []sightingRow `gorm:"foreignKey:Fingerprint;references:Fingerprint;constraint:OnDelete:CASCADE"`
}

func (indicatorRow) TableName() string { return "indicators" }

type sightingRow struct {
	ID          uint      `gorm:"primaryKey"`
	Fingerprint string    `gorm:"uniqueIndex:idx_sighting_feed;size:64"`
	Feed        string    `gorm:"uniqueIndex:idx_sighting_feed;size:128"`
	FirstSeen   time.Time
	LastSeen    time.Time
}

func (sightingRow) TableName() string { return "sightings" }

// SQLStore persists indicators in SQLite through gorm
type SQLStore struct {
	db *gorm.DB
}

// OpenSQLStore opens (creating if needed) the SQLite database at dsn and
// migrates the schema
func OpenSQLStore(dsn string) (*SQLStore, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:  gormlogger.Default.LogMode(gormlogger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open indicator store %s: %w", dsn, err)
	}

	// SQLite allows one writer; a single connection serializes
	// transactions instead of failing them with "database is locked"
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to access store connection: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&indicatorRow{}, &sightingRow{}); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to migrate indicator store: %w", err)
	}

	return &SQLStore{db: db.Session(&gorm.Session{CreateBatchSize: 100})}, nil
}

func (s *SQLStore) RecordSighting(ctx context.Context, rawType, rawValue, feed string, ts time.Time) (*model.Indicator, error) {
	fresh, err := normalize.NewIndicator(rawType, rawValue)
	if err != nil {
		return nil, err
	}

	var out *model.Indicator
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ind, err := load(tx, fresh.Fingerprint)
		switch {
		case errors.Is(err, model.ErrNotFound):
			ind = fresh
		case err != nil:
			return err
		}

		normalize.RecordSighting(ind, feed, ts)
		if err := save(tx, ind); err != nil {
			return err
		}
		out = ind
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to record sighting: %w", err)
	}
	return out, nil
}

func (s *SQLStore) Get(ctx context.Context, fingerprint string) (*model.Indicator, error) {
	return load(s.db.WithContext(ctx), fingerprint)
}

func (s *SQLStore) FindByValue(ctx context.Context, raw string) ([]*model.Indicator, error) {
	tx := s.db.WithContext(ctx)
	var out []*model.Indicator
	for _, fp := range candidates(raw) {
		ind, err := load(tx, fp)
		if errors.Is(err, model.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, ind)
	}
	if len(out) == 0 {
		return nil, model.ErrNotFound
	}
	return out, nil
}

func (s *SQLStore) SetEnrichment(ctx context.Context, fingerprint string, enr model.Enrichment) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row indicatorRow
		if err := tx.First(&row, "fingerprint = ?", fingerprint).Error; err != nil {
			return notFound(err)
		}
		row.Enrichment = row.Enrichment.FillMissing(enr)
		return tx.Model(&row).Select("enrichment").Updates(&row).Error
	})
}

func (s *SQLStore) SaveScore(ctx context.Context, fingerprint string, rec model.ScoreRecord) error {
	res := s.db.WithContext(ctx).
		Model(&indicatorRow{Fingerprint: fingerprint}).
		Select("score").
		Updates(&indicatorRow{Score: &rec})
	if res.Error != nil {
		return fmt.Errorf("failed to save score: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return model.ErrNotFound
	}
	return nil
}

func (s *SQLStore) List(ctx context.Context) ([]*model.Indicator, error) {
	var rows []indicatorRow
	err := s.db.WithContext(ctx).
		Preload("Sightings").
		Order("fingerprint").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list indicators: %w", err)
	}
	out := make([]*model.Indicator, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toModel())
	}
	return out, nil
}

// Close releases the underlying database handle
func (s *SQLStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func load(tx *gorm.DB, fingerprint string) (*model.Indicator, error) {
	var row indicatorRow
	err := tx.Preload("Sightings").First(&row, "fingerprint = ?", fingerprint).Error
	if err != nil {
		return nil, notFound(err)
	}
	return row.toModel(), nil
}

func save(tx *gorm.DB, ind *model.Indicator) error {
	row := fromModel(ind)
	err := tx.Omit(clause.Associations).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "fingerprint"}},
			DoUpdates: clause.AssignmentColumns([]string{"first_seen", "last_seen", "updated_at"}),
		}).
		Create(&row).Error
	if err != nil {
		return err
	}
	if len(row.Sightings) == 0 {
		return nil
	}
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "fingerprint"}, {Name: "feed"}},
		DoUpdates: clause.AssignmentColumns([]string{"first_seen", "last_seen"}),
	}).Create(&row.Sightings).Error
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.ErrNotFound
	}
	return err
}

func fromModel(ind *model.Indicator) indicatorRow {
	row := indicatorRow{
		Fingerprint: ind.Fingerprint,
		Type:        string(ind.Type),
		Value:       ind.Value,
		HashKind:    ind.HashKind,
		FirstSeen:   ind.FirstSeen,
		LastSeen:    ind.LastSeen,
		Enrichment:  ind.Enrichment,
		Score:       ind.Score,
	}
	for _, sg := range ind.Sightings() {
		row.Sightings = append(row.Sightings, sightingRow{
			Fingerprint: ind.Fingerprint,
			Feed:        sg.Feed,
			FirstSeen:   sg.FirstSeen,
			LastSeen:    sg.LastSeen,
		})
	}
	return row
}

func (r *indicatorRow) toModel() *model.Indicator {
	ind := &model.Indicator{
		Type:        model.IndicatorType(r.Type),
		Value:       r.Value,
		Fingerprint: r.Fingerprint,
		HashKind:    r.HashKind,
		FirstSeen:   r.FirstSeen.UTC(),
		LastSeen:    r.LastSeen.UTC(),
		Enrichment:  r.Enrichment,
		Score:       r.Score,
		Provenance:  make(map[string]model.Sighting, len(r.Sightings)),
	}
	sort.Slice(r.Sightings, func(i, j int) bool { return r.Sightings[i].Feed < r.Sightings[j].Feed })
	for _, sg := range r.Sightings {
		ind.Provenance[sg.Feed] = model.Sighting{
			Feed:      sg.Feed,
			FirstSeen: sg.FirstSeen.UTC(),
			LastSeen:  sg.LastSeen.UTC(),
		}
	}
	return ind
}
