package transcript

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dkeye/voxroom/internal/domain"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type entryRecord struct {
	ID          uint   `gorm:"primaryKey"`
	RoomID      string `gorm:"index;not null"`
	Kind        string `gorm:"not null;default:'message'"`
	Role        string `gorm:"not null"`
	SpeakerID   string
	SpeakerName string
	Text        string    `gorm:"not null"`
	Timestamp   time.Time `gorm:"index;not null"`
	CreatedAt   time.Time
}

func (entryRecord) TableName() string { return "transcript_entries" }

// GormStore persists transcripts in postgres.
type GormStore struct {
	db *gorm.DB
}

// OpenPostgres connects to dsn and migrates the transcript table.
func OpenPostgres(dsn string) (*GormStore, error) {
	if dsn == "" {
		return nil, errors.New("transcript: database dsn is not set")
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)})
	if err != nil {
		return nil, fmt.Errorf("transcript: open postgres: %w", err)
	}
	return NewGormStore(db)
}

func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if err := db.AutoMigrate(&entryRecord{}); err != nil {
		return nil, fmt.Errorf("transcript: migrate: %w", err)
	}
	return &GormStore{db: db}, nil
}

func (s *GormStore) Append(ctx context.Context, e Entry) error {
	rec := entryRecord{
		RoomID:      string(e.RoomID),
		Kind:        string(e.Kind),
		Role:        string(e.Role),
		SpeakerID:   e.SpeakerID,
		SpeakerName: e.SpeakerName,
		Text:        e.Text,
		Timestamp:   e.Timestamp,
	}
	return s.db.WithContext(ctx).Create(&rec).Error
}

func (s *GormStore) List(ctx context.Context, roomID domain.RoomID) ([]Entry, error) {
	var recs []entryRecord
	err := s.db.WithContext(ctx).
		Where("room_id = ?", string(roomID)).
		Order("timestamp asc, id asc").
		Find(&recs).Error
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(recs))
	for _, r := range recs {
		out = append(out, Entry{
			RoomID:      domain.RoomID(r.RoomID),
			Kind:        Kind(r.Kind),
			Role:        domain.MessageRole(r.Role),
			SpeakerID:   r.SpeakerID,
			SpeakerName: r.SpeakerName,
			Text:        r.Text,
			Timestamp:   r.Timestamp,
		})
	}
	return out, nil
}
