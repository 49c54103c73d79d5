package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/DrUlysses/Kristine-sub000/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SongRecord is the catalog table row.
type SongRecord struct {
	Path      string `gorm:"primaryKey;size:512"`
	Title     string `gorm:"size:255;index"`
	Artist    string `gorm:"size:255;index"`
	Album     string `gorm:"size:255"`
	Duration  int
	Artwork   []byte `gorm:"type:mediumblob"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (SongRecord) TableName() string {
	return "songs"
}

func recordFromTrack(t model.Track) SongRecord {
	return SongRecord{
		Path:     t.Path,
		Title:    t.Title,
		Artist:   t.Artist,
		Album:    t.Album,
		Duration: t.Duration,
		Artwork:  t.Artwork,
	}
}

func (r SongRecord) track() model.Track {
	return model.Track{
		Title:    r.Title,
		Album:    r.Album,
		Artist:   r.Artist,
		Path:     r.Path,
		Duration: r.Duration,
		Artwork:  r.Artwork,
	}
}

// GormSongRepository stores the catalog in MySQL through GORM.
type GormSongRepository struct {
	db *gorm.DB
}

func NewGormSongRepository(db *gorm.DB) *GormSongRepository {
	return &GormSongRepository{db: db}
}

func (r *GormSongRepository) ListSongs(ctx context.Context) ([]model.Track, error) {
	var records []SongRecord
	err := r.db.WithContext(ctx).
		Order("artist, album, title, path").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list songs: %w", err)
	}
	return tracksFromRecords(records), nil
}

func (r *GormSongRepository) FindSongs(ctx context.Context, query string) ([]model.Track, error) {
	if query == "" {
		return r.ListSongs(ctx)
	}
	like := "%" + query + "%"
	var records []SongRecord
	err := r.db.WithContext(ctx).
		Where("title LIKE ? OR artist LIKE ? OR album LIKE ? OR path LIKE ?", like, like, like, like).
		Order("artist, album, title, path").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to search songs: %w", err)
	}
	return tracksFromRecords(records), nil
}

// UpsertSongs inserts new paths and overwrites the metadata of known ones.
func (r *GormSongRepository) UpsertSongs(ctx context.Context, tracks []model.Track) error {
	if len(tracks) == 0 {
		return nil
	}
	records := make([]SongRecord, len(tracks))
	for i, t := range tracks {
		records[i] = recordFromTrack(t)
	}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "path"}},
			DoUpdates: clause.AssignmentColumns([]string{"title", "artist", "album", "duration", "artwork", "updated_at"}),
		}).
		CreateInBatches(records, 100).Error
	if err != nil {
		return fmt.Errorf("failed to upsert songs: %w", err)
	}
	return nil
}

func (r *GormSongRepository) RemoveSong(ctx context.Context, path string) error {
	res := r.db.WithContext(ctx).Where("path = ?", path).Delete(&SongRecord{})
	if res.Error != nil {
		return fmt.Errorf("failed to remove song: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrSongNotFound
	}
	return nil
}

func tracksFromRecords(records []SongRecord) []model.Track {
	out := make([]model.Track, len(records))
	for i, rec := range records {
		out[i] = rec.track()
	}
	return out
}
