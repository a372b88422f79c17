package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
	"mockinterview/pkg/domain"
)

const migrateLockID int64 = 51170419

// GormStore implements Store using GORM + Postgres.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB and runs auto-migrations.
func NewGormStore(dsn string) (*GormStore, error) {
	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := withMigrationLock(db, func(tx *gorm.DB) error {
		if err := tx.AutoMigrate(
			&UserModel{},
			&ProfileModel{},
			&ResumeModel{},
			&SessionModel{},
			&QuestionModel{},
			&AnswerModel{},
			&AnalysisModel{},
			&NotificationModel{},
		); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		if err := tx.Exec(`
			DO $$
			BEGIN
				IF NOT EXISTS (
					SELECT 1 FROM information_schema.table_constraints
					WHERE table_schema = 'public'
					AND table_name = 'question_models'
					AND constraint_name = 'question_models_session_id_fkey'
				) THEN
					ALTER TABLE question_models
					ADD CONSTRAINT question_models_session_id_fkey
					FOREIGN KEY (session_id) REFERENCES session_models(id) ON DELETE CASCADE;
				END IF;
				IF NOT EXISTS (
					SELECT 1 FROM information_schema.table_constraints
					WHERE table_schema = 'public'
					AND table_name = 'analysis_models'
					AND constraint_name = 'analysis_models_answer_id_fkey'
				) THEN
					ALTER TABLE analysis_models
					ADD CONSTRAINT analysis_models_answer_id_fkey
					FOREIGN KEY (answer_id) REFERENCES answer_models(id) ON DELETE CASCADE;
				END IF;
			END $$;
		`).Error; err != nil {
			return fmt.Errorf("ensure interview foreign keys: %w", err)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return &GormStore{db: db}, nil
}

func withMigrationLock(db *gorm.DB, fn func(*gorm.DB) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("open sql conn: %w", err)
	}
	defer conn.Close()
	if err := execAdvisory(ctx, conn, "SELECT pg_advisory_lock($1)", migrateLockID); err != nil {
		return fmt.Errorf("acquire migrate lock: %w", err)
	}
	defer func() {
		_ = execAdvisory(ctx, conn, "SELECT pg_advisory_unlock($1)", migrateLockID)
	}()
	return fn(db)
}

func execAdvisory(ctx context.Context, conn *sql.Conn, query string, lockID int64) error {
	_, err := conn.ExecContext(ctx, query, lockID)
	return err
}

// SaveUser registers or updates a user.
// Ping checks database connectivity.
func (s *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close releases the connection pool.
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *GormStore) SaveUser(u domain.User) error {
	model := userToModel(u)
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"email", "username", "password_hash", "role", "updated_at"}),
	}).Create(&model).Error
}

// GetUserByEmail looks up a user by email.
func (s *GormStore) GetUserByEmail(email string) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.Where("email = ?", email).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// GetUserByID returns a user by ID.
func (s *GormStore) GetUserByID(id string) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// SaveProfile upserts interview preferences.
func (s *GormStore) SaveProfile(p domain.Profile) error {
	model := ProfileModel{
		UserID:        p.UserID,
		PreferredRole: string(p.PreferredRole),
		Difficulty:    string(p.Difficulty),
		Category:      string(p.Category),
		UpdatedAt:     p.UpdatedAt,
	}
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"preferred_role", "difficulty", "category", "updated_at"}),
	}).Create(&model).Error
}

func (s *GormStore) GetProfile(userID string) (domain.Profile, bool, error) {
	var model ProfileModel
	if err := s.db.First(&model, "user_id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Profile{}, false, nil
		}
		return domain.Profile{}, false, err
	}
	return domain.Profile{
		UserID:        model.UserID,
		PreferredRole: domain.JobRole(model.PreferredRole),
		Difficulty:    domain.Difficulty(model.Difficulty),
		Category:      domain.Category(model.Category),
		UpdatedAt:     model.UpdatedAt,
	}, true, nil
}

// SaveResume stores or updates a résumé and its extracted fields.
func (s *GormStore) SaveResume(r domain.Resume) error {
	model := ResumeModel{
		ID:               r.ID,
		OwnerID:          r.OwnerID,
		OriginalFilename: r.OriginalFilename,
		StorageKey:       r.StorageKey,
		Fields:           datatypes.NewJSONType(r.Fields),
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
	}
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"original_filename", "storage_key", "fields", "updated_at"}),
	}).Create(&model).Error
}

func (s *GormStore) GetResume(id string) (domain.Resume, bool, error) {
	var model ResumeModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Resume{}, false, nil
		}
		return domain.Resume{}, false, err
	}
	return domain.Resume{
		ID:               model.ID,
		OwnerID:          model.OwnerID,
		OriginalFilename: model.OriginalFilename,
		StorageKey:       model.StorageKey,
		Fields:           model.Fields.Data(),
		CreatedAt:        model.CreatedAt,
		UpdatedAt:        model.UpdatedAt,
	}, true, nil
}

// SaveSession stores or updates a session.
func (s *GormStore) SaveSession(sess domain.Session) error {
	model := sessionToModel(sess)
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"resume_id", "target_role", "state", "ended_at"}),
	}).Create(&model).Error
}

func (s *GormStore) GetSession(id string) (domain.Session, bool, error) {
	var model SessionModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Session{}, false, nil
		}
		return domain.Session{}, false, err
	}
	return sessionFromModel(model), true, nil
}

// ListSessionsByUser returns the user's sessions, newest first.
func (s *GormStore) ListSessionsByUser(userID string) ([]domain.Session, error) {
	var models []SessionModel
	if err := s.db.Where("user_id = ?", userID).Order("started_at DESC").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Session, 0, len(models))
	for _, m := range models {
		res = append(res, sessionFromModel(m))
	}
	return res, nil
}

func (s *GormStore) AdvanceSessionState(id string, from, to domain.SessionState) (bool, error) {
	res := s.db.Model(&SessionModel{}).
		Where("id = ? AND state = ?", id, string(from)).
		Update("state", string(to))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// CloseSession stamps ended_at on the first call only.
func (s *GormStore) CloseSession(id string, at time.Time) (domain.Session, error) {
	var model SessionModel
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&SessionModel{}).
			Where("id = ? AND ended_at IS NULL", id).
			Updates(map[string]any{
				"ended_at": at.UTC(),
				"state":    string(domain.SessionClosed),
			}).Error; err != nil {
			return err
		}
		if err := tx.First(&model, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		return nil
	})
	if err != nil {
		return domain.Session{}, err
	}
	return sessionFromModel(model), nil
}

func (s *GormStore) InsertQuestions(sessionID string, questions []domain.Question) (bool, error) {
	inserted := false
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var session SessionModel
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&session, "id = ?", sessionID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		var count int64
		if err := tx.Model(&QuestionModel{}).Where("session_id = ?", sessionID).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 || len(questions) == 0 {
			return nil
		}
		models := make([]QuestionModel, 0, len(questions))
		for _, q := range questions {
			models = append(models, QuestionModel{
				ID:        q.ID,
				SessionID: sessionID,
				Position:  q.Position,
				Text:      q.Text,
				CreatedAt: q.CreatedAt,
			})
		}
		if err := tx.Create(&models).Error; err != nil {
			return err
		}
		if err := tx.Model(&SessionModel{}).
			Where("id = ? AND state = ?", sessionID, string(domain.SessionCreated)).
			Update("state", string(domain.SessionQuestionsReady)).Error; err != nil {
			return err
		}
		inserted = true
		return nil
	})
	return inserted, err
}

// ListQuestions returns questions in generation order.
func (s *GormStore) ListQuestions(sessionID string) ([]domain.Question, error) {
	var models []QuestionModel
	if err := s.db.Where("session_id = ?", sessionID).Order("position ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Question, 0, len(models))
	for _, m := range models {
		res = append(res, questionFromModel(m))
	}
	return res, nil
}

func (s *GormStore) GetQuestion(id string) (domain.Question, bool, error) {
	var model QuestionModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Question{}, false, nil
		}
		return domain.Question{}, false, err
	}
	return questionFromModel(model), true, nil
}

// NextUnanswered returns the earliest question without any answer.
func (s *GormStore) NextUnanswered(sessionID string) (domain.Question, bool, error) {
	var models []QuestionModel
	if err := s.db.Where("session_id = ?", sessionID).
		Where("NOT EXISTS (SELECT 1 FROM answer_models a WHERE a.question_id = question_models.id)").
		Order("position ASC").
		Limit(1).
		Find(&models).Error; err != nil {
		return domain.Question{}, false, err
	}
	if len(models) == 0 {
		return domain.Question{}, false, nil
	}
	return questionFromModel(models[0]), true, nil
}

// SaveAnswer stores or updates an answer.
func (s *GormStore) SaveAnswer(a domain.Answer) error {
	model := answerToModel(a)
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"transcript", "audio_key", "audio_filename", "analysis_status", "failure_reason", "attempts", "updated_at"}),
	}).Create(&model).Error
}

func (s *GormStore) GetAnswer(id string) (domain.Answer, bool, error) {
	var model AnswerModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Answer{}, false, nil
		}
		return domain.Answer{}, false, err
	}
	return answerFromModel(model), true, nil
}

// ListAnswersBySession returns answers ordered by responded_at.
func (s *GormStore) ListAnswersBySession(sessionID string) ([]domain.Answer, error) {
	var models []AnswerModel
	if err := s.db.Where("session_id = ?", sessionID).Order("responded_at ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Answer, 0, len(models))
	for _, m := range models {
		res = append(res, answerFromModel(m))
	}
	return res, nil
}

// SetAnalysisStatus updates the analysis status of an answer.
func (s *GormStore) SetAnalysisStatus(answerID string, status domain.AnalysisStatus, reason string, attempts int) error {
	res := s.db.Model(&AnswerModel{}).
		Where("id = ?", answerID).
		Updates(map[string]any{
			"analysis_status": string(status),
			"failure_reason":  reason,
			"attempts":        attempts,
			"updated_at":      time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) SetTranscript(answerID, transcript string, segments []domain.Segment) error {
	res := s.db.Model(&AnswerModel{}).
		Where("id = ?", answerID).
		Updates(map[string]any{
			"transcript": transcript,
			"segments":   datatypes.NewJSONSlice(segments),
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) ReplaceAnalysis(r domain.AnalysisResult) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&AnswerModel{}).
			Where("id = ?", r.AnswerID).
			Updates(map[string]any{
				"analysis_status": string(domain.AnalysisDone),
				"failure_reason":  "",
				"updated_at":      time.Now().UTC(),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		model := analysisToModel(r)
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "answer_id"}},
			UpdateAll: true,
		}).Create(&model).Error
	})
}

func (s *GormStore) GetAnalysis(answerID string) (domain.AnalysisResult, bool, error) {
	var model AnalysisModel
	if err := s.db.First(&model, "answer_id = ?", answerID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.AnalysisResult{}, false, nil
		}
		return domain.AnalysisResult{}, false, err
	}
	return analysisFromModel(model), true, nil
}

// ListAnalysesBySession returns every stored result for answers of the session.
func (s *GormStore) ListAnalysesBySession(sessionID string) ([]domain.AnalysisResult, error) {
	var models []AnalysisModel
	if err := s.db.Model(&AnalysisModel{}).
		Joins("JOIN answer_models a ON a.id = analysis_models.answer_id").
		Where("a.session_id = ?", sessionID).
		Order("analysis_models.analyzed_at ASC").
		Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.AnalysisResult, 0, len(models))
	for _, m := range models {
		res = append(res, analysisFromModel(m))
	}
	return res, nil
}

func (s *GormStore) CreateNotification(n domain.Notification) (bool, error) {
	model := NotificationModel{
		ID:        n.ID,
		UserID:    n.UserID,
		SessionID: n.SessionID,
		Kind:      string(n.Kind),
		EventKey:  n.EventKey,
		Message:   n.Message,
		Read:      n.Read,
		CreatedAt: n.CreatedAt,
	}
	res := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "event_key"}},
		DoNothing: true,
	}).Create(&model)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// ListNotifications returns a user's notifications, newest first.
func (s *GormStore) ListNotifications(userID string) ([]domain.Notification, error) {
	var models []NotificationModel
	if err := s.db.Where("user_id = ?", userID).Order("created_at DESC").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Notification, 0, len(models))
	for _, m := range models {
		res = append(res, domain.Notification{
			ID:        m.ID,
			UserID:    m.UserID,
			SessionID: m.SessionID,
			Kind:      domain.NotificationKind(m.Kind),
			EventKey:  m.EventKey,
			Message:   m.Message,
			Read:      m.Read,
			CreatedAt: m.CreatedAt,
		})
	}
	return res, nil
}

func (s *GormStore) MarkNotificationRead(id, userID string) (bool, error) {
	res := s.db.Model(&NotificationModel{}).
		Where("id = ? AND user_id = ?", id, userID).
		Update("read", true)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func userToModel(u domain.User) UserModel {
	return UserModel{
		ID:           u.ID,
		Email:        u.Email,
		Username:     u.Username,
		PasswordHash: u.PasswordHash,
		Role:         string(u.Role),
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
}

func userFromModel(m UserModel) domain.User {
	role := domain.UserRole(m.Role)
	if role == "" {
		role = domain.RoleUser
	}
	return domain.User{
		ID:           m.ID,
		Email:        m.Email,
		Username:     m.Username,
		PasswordHash: m.PasswordHash,
		Role:         role,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

func sessionToModel(s domain.Session) SessionModel {
	return SessionModel{
		ID:         s.ID,
		UserID:     s.UserID,
		ResumeID:   s.ResumeID,
		TargetRole: string(s.TargetRole),
		State:      string(s.State),
		StartedAt:  s.StartedAt,
		EndedAt:    s.EndedAt,
	}
}

func sessionFromModel(m SessionModel) domain.Session {
	return domain.Session{
		ID:         m.ID,
		UserID:     m.UserID,
		ResumeID:   m.ResumeID,
		TargetRole: domain.JobRole(m.TargetRole),
		State:      domain.SessionState(m.State),
		StartedAt:  m.StartedAt,
		EndedAt:    m.EndedAt,
	}
}

func questionFromModel(m QuestionModel) domain.Question {
	return domain.Question{
		ID:        m.ID,
		SessionID: m.SessionID,
		Position:  m.Position,
		Text:      m.Text,
		CreatedAt: m.CreatedAt,
	}
}

func answerToModel(a domain.Answer) AnswerModel {
	return AnswerModel{
		ID:             a.ID,
		QuestionID:     a.QuestionID,
		SessionID:      a.SessionID,
		UserID:         a.UserID,
		Transcript:     a.Transcript,
		Segments:       datatypes.NewJSONSlice(a.Segments),
		AudioKey:       a.AudioKey,
		AudioFilename:  a.AudioFilename,
		AnalysisStatus: string(a.AnalysisStatus),
		FailureReason:  a.FailureReason,
		Attempts:       a.Attempts,
		RespondedAt:    a.RespondedAt,
		UpdatedAt:      a.UpdatedAt,
	}
}

func answerFromModel(m AnswerModel) domain.Answer {
	return domain.Answer{
		ID:             m.ID,
		QuestionID:     m.QuestionID,
		SessionID:      m.SessionID,
		UserID:         m.UserID,
		Transcript:     m.Transcript,
		Segments:       []domain.Segment(m.Segments),
		AudioKey:       m.AudioKey,
		AudioFilename:  m.AudioFilename,
		AnalysisStatus: domain.AnalysisStatus(m.AnalysisStatus),
		FailureReason:  m.FailureReason,
		Attempts:       m.Attempts,
		RespondedAt:    m.RespondedAt,
		UpdatedAt:      m.UpdatedAt,
	}
}

func analysisToModel(r domain.AnalysisResult) AnalysisModel {
	return AnalysisModel{
		AnswerID:        r.AnswerID,
		Tone:            r.Tone,
		Speed:           r.Speed,
		Fluency:         r.Fluency,
		Relevance:       r.Relevance,
		PaceWPM:         r.PaceWPM,
		AvgPauseSeconds: r.AvgPauseSeconds,
		PauseCount:      r.PauseCount,
		RateConsistency: r.RateConsistency,
		AnalyzedAt:      r.AnalyzedAt,
	}
}

func analysisFromModel(m AnalysisModel) domain.AnalysisResult {
	return domain.AnalysisResult{
		AnswerID:        m.AnswerID,
		Tone:            m.Tone,
		Speed:           m.Speed,
		Fluency:         m.Fluency,
		Relevance:       m.Relevance,
		PaceWPM:         m.PaceWPM,
		AvgPauseSeconds: m.AvgPauseSeconds,
		PauseCount:      m.PauseCount,
		RateConsistency: m.RateConsistency,
		AnalyzedAt:      m.AnalyzedAt,
	}
}
