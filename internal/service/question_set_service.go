package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/stemsi/secureeval-backend/internal/model"
	"github.com/stemsi/secureeval-backend/internal/repository"
)

// Upload types the question extractor understands.
var extractableMIMETypes = []string{
	"image/jpeg",
	"image/png",
	"image/webp",
	"image/gif",
	"image/tiff",
	"application/pdf",
}

// QuestionSetService handles question set business logic.
type QuestionSetService struct {
	store     repository.QuestionSetStore
	extractor QuestionExtractor
	cfg       EngineConfig
	log       zerolog.Logger
	now       func() time.Time
}

// NewQuestionSetService creates a new QuestionSetService. extractor may be nil.
func NewQuestionSetService(store repository.QuestionSetStore, extractor QuestionExtractor, cfg EngineConfig, log zerolog.Logger) *QuestionSetService {
	return &QuestionSetService{
		store:     store,
		extractor: extractor,
		cfg:       cfg.withDefaults(),
		log:       log.With().Str("component", "question_set_service").Logger(),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Create validates and stores a question set.
func (s *QuestionSetService) Create(ctx context.Context, req model.CreateQuestionSetRequest) (*model.QuestionSet, error) {
	qs := &model.QuestionSet{
		ID:        uuid.New(),
		Title:     strings.TrimSpace(req.Title),
		Subject:   strings.TrimSpace(req.Subject),
		Questions: make([]model.Question, 0, len(req.Questions)),
		CreatedAt: s.now(),
	}
	if qs.Title == "" {
		return nil, fmt.Errorf("%w: title is required", ErrInvalidInput)
	}
	if len(req.Questions) == 0 {
		return nil, fmt.Errorf("%w: at least one question is required", ErrInvalidInput)
	}

	seen := make(map[string]struct{}, len(req.Questions))
	for i, in := range req.Questions {
		q, err := buildQuestion(i, in)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[q.ID]; dup {
			return nil, fmt.Errorf("%w: question %d: duplicate id %q", ErrInvalidInput, i, q.ID)
		}
		seen[q.ID] = struct{}{}
		qs.Questions = append(qs.Questions, q)
	}

	if err := s.store.Create(ctx, qs); err != nil {
		return nil, questionSetError("create question set", err)
	}

	s.log.Info().
		Str("question_set_id", qs.ID.String()).
		Int("questions", len(qs.Questions)).
		Msg("Question set created")
	return qs, nil
}

// Get retrieves a question set by ID.
func (s *QuestionSetService) Get(ctx context.Context, id uuid.UUID) (*model.QuestionSet, error) {
	qs, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, questionSetError("get question set", err)
	}
	return qs, nil
}

// List retrieves all question sets.
func (s *QuestionSetService) List(ctx context.Context) ([]model.QuestionSetSummary, error) {
	sets, err := s.store.List(ctx)
	if err != nil {
		return nil, questionSetError("list question sets", err)
	}
	return sets, nil
}

// Extract recovers draft questions from an uploaded image or PDF. The content
// type is sniffed from the bytes, never taken from the client.
func (s *QuestionSetService) Extract(ctx context.Context, data []byte) (*model.ExtractionResult, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty upload", ErrInvalidInput)
	}
	if int64(len(data)) > s.cfg.MaxUploadBytes {
		return nil, fmt.Errorf("%w: %d bytes (max: %d)", ErrFileTooLarge, len(data), s.cfg.MaxUploadBytes)
	}

	mt := mimetype.Detect(data)
	if !mimetype.EqualsAny(mt.String(), extractableMIMETypes...) {
		return nil, fmt.Errorf("%w: %s (allowed: %s)", ErrUnsupportedFileType, mt.String(), strings.Join(extractableMIMETypes, ", "))
	}
	if s.extractor == nil {
		return nil, fmt.Errorf("%w: question extraction is not configured", ErrCollaboratorUnavailable)
	}

	ectx, cancel := context.WithTimeout(ctx, s.cfg.ExtractionTimeout)
	defer cancel()

	result, err := s.extractor.Extract(ectx, data, mt.String())
	if err != nil {
		s.log.Warn().Err(err).Str("mime", mt.String()).Msg("Question extraction failed")
		return nil, fmt.Errorf("%w: %v", ErrExtractionFailed, err)
	}
	for i := range result.Questions {
		if result.Questions[i].ID == "" {
			result.Questions[i].ID = strconv.Itoa(i)
		}
		result.Questions[i].MaxMarks = result.Questions[i].Marks()
	}
	return result, nil
}

func buildQuestion(i int, in model.QuestionInput) (model.Question, error) {
	q := model.Question{
		ID:       strings.TrimSpace(in.ID),
		Text:     strings.TrimSpace(in.Text),
		Type:     model.QuestionType(in.Type),
		MaxMarks: in.MaxMarks,
	}
	if q.ID == "" {
		q.ID = strconv.Itoa(i)
	}
	if q.Text == "" {
		return q, fmt.Errorf("%w: question %d: text is required", ErrInvalidInput, i)
	}
	if q.MaxMarks < 0 {
		return q, fmt.Errorf("%w: question %d: max_marks must be positive", ErrInvalidInput, i)
	}
	q.MaxMarks = q.Marks()

	switch q.Type {
	case model.QuestionTypeObjective:
		for _, opt := range in.Options {
			q.Options = append(q.Options, strings.TrimSpace(opt))
		}
		if len(q.Options) < 2 {
			return q, fmt.Errorf("%w: question %d: objective questions need at least two options", ErrInvalidInput, i)
		}
		if in.CorrectIndex == nil || *in.CorrectIndex < 0 || *in.CorrectIndex >= len(q.Options) {
			return q, fmt.Errorf("%w: question %d: correct_index must point at an option", ErrInvalidInput, i)
		}
		idx := *in.CorrectIndex
		q.CorrectIndex = &idx
	case model.QuestionTypeFreeText:
	default:
		return q, fmt.Errorf("%w: question %d: unknown type %q", ErrInvalidInput, i, in.Type)
	}
	return q, nil
}
