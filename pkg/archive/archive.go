package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/serenmind/sentinel/pkg/domain/crisis"
)

//go:generate mockery --name=Repository --dir=. --output=./mocks --filename=repository_mock.go --case=underscore --with-expecter

// Repository persists interventions that reached a terminal state so
// clinicians and reviewers can audit the workflow after the fact.
type Repository interface {
	Archive(ctx context.Context, intervention *crisis.Intervention) error
	GetBySession(ctx context.Context, sessionID string) ([]ArchivedIntervention, error)
}

// ArchivedIntervention is the stored row for one terminal intervention.
type ArchivedIntervention struct {
	ID          uuid.UUID `gorm:"primaryKey;type:uuid"`
	SessionID   string    `gorm:"index"`
	CrisisType  string
	CrisisLevel string
	Confidence  float64
	State       string
	Actions     []byte `gorm:"type:jsonb"`
	Escalation  []byte `gorm:"type:jsonb"`
	DetectedAt  time.Time
	FinalizedAt time.Time
	ArchivedAt  time.Time
}

func (ArchivedIntervention) TableName() string {
	return "archived_interventions"
}

type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type postgresRepository struct {
	db *gorm.DB
}

// NewPostgresRepository opens the archive database and migrates its schema.
func NewPostgresRepository(cfg Config) (Repository, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode,
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to archive database: %w", err)
	}
	if err := db.AutoMigrate(&ArchivedIntervention{}); err != nil {
		return nil, fmt.Errorf("failed to migrate archive schema: %w", err)
	}
	return &postgresRepository{db: db}, nil
}

func (r *postgresRepository) Archive(ctx context.Context, intervention *crisis.Intervention) error {
	row, err := toRow(intervention)
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).Create(&row).Error
}

func (r *postgresRepository) GetBySession(ctx context.Context, sessionID string) ([]ArchivedIntervention, error) {
	var rows []ArchivedIntervention
	if err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("archived_at desc").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func toRow(iv *crisis.Intervention) (ArchivedIntervention, error) {
	actions, err := json.Marshal(iv.Actions)
	if err != nil {
		return ArchivedIntervention{}, fmt.Errorf("failed to marshal actions: %w", err)
	}
	var escalationJSON []byte
	if iv.Escalation != nil {
		escalationJSON, err = json.Marshal(iv.Escalation)
		if err != nil {
			return ArchivedIntervention{}, fmt.Errorf("failed to marshal escalation record: %w", err)
		}
	}
	return ArchivedIntervention{
		ID:          iv.ID,
		SessionID:   iv.SessionID,
		CrisisType:  string(iv.Assessment.Type),
		CrisisLevel: iv.Assessment.Level.String(),
		Confidence:  iv.Assessment.Confidence,
		State:       string(iv.State),
		Actions:     actions,
		Escalation:  escalationJSON,
		DetectedAt:  iv.CreatedAt,
		FinalizedAt: iv.UpdatedAt,
		ArchivedAt:  time.Now(),
	}, nil
}
