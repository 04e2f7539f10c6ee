package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/realorai/session-service/internal/model"
)

type personaRow struct {
	ID         string         `gorm:"primaryKey;type:uuid"`
	Name       string         `gorm:"not null"`
	Age        int            `gorm:"not null"`
	Bio        string
	Traits     pq.StringArray `gorm:"column:personality_traits;type:text[]"`
	AvatarURL  string
	VoiceStyle string
}

func (personaRow) TableName() string { return "ai_personas" }

func (r personaRow) toModel() model.Persona {
	return model.Persona{
		ID:         r.ID,
		Name:       r.Name,
		Age:        r.Age,
		Bio:        r.Bio,
		Traits:     []string(r.Traits),
		AvatarURL:  r.AvatarURL,
		VoiceStyle: r.VoiceStyle,
	}
}

type sessionRow struct {
	ID           string `gorm:"primaryKey;type:uuid"`
	UserID       string `gorm:"type:uuid;index;not null"`
	AIPersonaID  string `gorm:"column:ai_persona_id;type:uuid;not null"`
	StartedAt    time.Time
	EndedAt      *time.Time
	MessageCount *int
	PlayerRating *int
	UserGuess    *string
	WasCorrect   *bool
	EloChange    *int
}

func (sessionRow) TableName() string { return "chat_sessions" }

func (r sessionRow) toModel() model.SessionRecord {
	rec := model.SessionRecord{
		ID:           r.ID,
		UserID:       r.UserID,
		PersonaID:    r.AIPersonaID,
		StartedAt:    r.StartedAt,
		EndedAt:      r.EndedAt,
		MessageCount: r.MessageCount,
		PlayerRating: r.PlayerRating,
		WasCorrect:   r.WasCorrect,
		RatingChange: r.EloChange,
	}
	if r.UserGuess != nil {
		g := model.Guess(*r.UserGuess)
		rec.UserGuess = &g
	}
	return rec
}

type profileRow struct {
	ID        string `gorm:"primaryKey;type:uuid"`
	Username  string
	EloRating int `gorm:"not null;default:1000"`
	IsPremium bool
	CreatedAt time.Time
}

func (profileRow) TableName() string { return "profiles" }

// PostgresConfig holds connection pool settings.
type PostgresConfig struct {
	DSN          string
	MaxOpenConns int
	MaxIdleConns int
	ConnLifetime time.Duration
	AutoMigrate  bool
	Debug        bool
}

// Postgres implements Store on the backend's Postgres schema.
type Postgres struct {
	db *gorm.DB
}

// OpenPostgres connects, configures the pool and optionally migrates the schema.
func OpenPostgres(cfg PostgresConfig) (*Postgres, error) {
	logLevel := gormlogger.Error
	if cfg.Debug {
		logLevel = gormlogger.Info
	}

	db, err := gorm.Open(postgres.Open(cfg.DSN), &gorm.Config{
		Logger:      gormlogger.Default.LogMode(logLevel),
		PrepareStmt: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql db: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnLifetime)

	if cfg.AutoMigrate {
		if err := db.AutoMigrate(&personaRow{}, &sessionRow{}, &profileRow{}); err != nil {
			return nil, fmt.Errorf("failed to migrate schema: %w", err)
		}
	}

	return &Postgres{db: db}, nil
}

// SeedPersonas inserts personas when the table is empty.
func (p *Postgres) SeedPersonas(ctx context.Context, personas []model.Persona) error {
	var count int64
	if err := p.db.WithContext(ctx).Model(&personaRow{}).Count(&count).Error; err != nil {
		return fmt.Errorf("failed to count personas: %w", err)
	}
	if count > 0 {
		return nil
	}

	rows := make([]personaRow, len(personas))
	for i, m := range personas {
		rows[i] = personaRow{
			ID:         m.ID,
			Name:       m.Name,
			Age:        m.Age,
			Bio:        m.Bio,
			Traits:     pq.StringArray(m.Traits),
			AvatarURL:  m.AvatarURL,
			VoiceStyle: m.VoiceStyle,
		}
	}
	return p.db.WithContext(ctx).Create(&rows).Error
}

// SamplePersonas returns up to limit personas in random order.
func (p *Postgres) SamplePersonas(ctx context.Context, limit int) ([]model.Persona, error) {
	var rows []personaRow
	err := p.db.WithContext(ctx).
		Order("random()").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to sample personas: %w", err)
	}

	out := make([]model.Persona, len(rows))
	for i, r := range rows {
		out[i] = r.toModel()
	}
	return out, nil
}

// GetPersona looks up a persona by id.
func (p *Postgres) GetPersona(ctx context.Context, id string) (*model.Persona, error) {
	var row personaRow
	if err := p.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get persona: %w", err)
	}
	m := row.toModel()
	return &m, nil
}

// CreateSession inserts a session record.
func (p *Postgres) CreateSession(ctx context.Context, userID, personaID string) (*model.SessionRecord, error) {
	row := sessionRow{
		ID:          uuid.Must(uuid.NewV7()).String(),
		UserID:      userID,
		AIPersonaID: personaID,
		StartedAt:   time.Now().UTC(),
	}
	if err := p.db.WithContext(ctx).Create(&row).Error; err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	rec := row.toModel()
	return &rec, nil
}

// UpdateSessionOutcome writes the decided fields.
func (p *Postgres) UpdateSessionOutcome(ctx context.Context, sessionID string, out model.SessionOutcome) error {
	res := p.db.WithContext(ctx).
		Model(&sessionRow{}).
		Where("id = ?", sessionID).
		Updates(map[string]any{
			"ended_at":      out.EndedAt,
			"user_guess":    string(out.Guess),
			"was_correct":   out.WasCorrect,
			"elo_change":    out.RatingDelta,
			"message_count": out.MessageCount,
			"player_rating": out.PlayerRating,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to update session: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// GetSession returns a session record.
func (p *Postgres) GetSession(ctx context.Context, sessionID string) (*model.SessionRecord, error) {
	var row sessionRow
	if err := p.db.WithContext(ctx).First(&row, "id = ?", sessionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	rec := row.toModel()
	return &rec, nil
}

// GetProfile returns the user's profile.
func (p *Postgres) GetProfile(ctx context.Context, userID string) (*model.Profile, error) {
	var row profileRow
	if err := p.db.WithContext(ctx).First(&row, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	return &model.Profile{
		ID:        row.ID,
		Username:  row.Username,
		Rating:    row.EloRating,
		IsPremium: row.IsPremium,
		CreatedAt: row.CreatedAt,
	}, nil
}

// UpdateRating sets the user's rating.
func (p *Postgres) UpdateRating(ctx context.Context, userID string, rating int) error {
	res := p.db.WithContext(ctx).
		Model(&profileRow{}).
		Where("id = ?", userID).
		Update("elo_rating", rating)
	if res.Error != nil {
		return fmt.Errorf("failed to update rating: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Ping checks the database connection.
func (p *Postgres) Ping(ctx context.Context) error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close closes the connection pool.
func (p *Postgres) Close() error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
