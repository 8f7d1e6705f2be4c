package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/stemsi/secureeval-backend/internal/config"
	"github.com/stemsi/secureeval-backend/internal/database"
	"github.com/stemsi/secureeval-backend/internal/logger"
	"github.com/stemsi/secureeval-backend/internal/model"
	"github.com/stemsi/secureeval-backend/internal/repository"
	"github.com/stemsi/secureeval-backend/internal/service"
)

func main() {
	var (
		count    int
		tokenTTL time.Duration
	)
	flag.IntVar(&count, "students", 10, "Number of demo students to assign")
	flag.DurationVar(&tokenTTL, "token-ttl", 12*time.Hour, "Lifetime of the printed demo tokens")
	flag.Parse()

	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	var (
		sessionStore     repository.SessionStore
		questionSetStore repository.QuestionSetStore
	)
	switch cfg.StoreBackend {
	case config.StoreBackendRedis:
		rdb, err := database.NewRedisClient(ctx, cfg, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to Redis")
		}
		defer rdb.Close()
		sessionStore = repository.NewRedisSessionStore(rdb)
		questionSetStore = repository.NewRedisQuestionSetStore(rdb)
	default:
		pool, err := database.NewPostgresPool(ctx, cfg, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
		}
		defer pool.Close()
		sessionStore = repository.NewPostgresSessionStore(pool)
		questionSetStore = repository.NewPostgresQuestionSetStore(pool)
	}

	engineCfg := service.EngineConfigFromConfig(cfg)
	questionSets := service.NewQuestionSetService(questionSetStore, nil, engineCfg, log)
	sessions := service.NewSessionService(sessionStore, questionSetStore, nil, engineCfg, log)
	auth := service.NewAuthService(cfg.JWTSecret)

	fmt.Println("=== Seeding demo question set ===")

	qs, err := questionSets.Create(ctx, demoQuestionSet())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create question set")
	}
	fmt.Printf("Created question set %s (%d questions, %.1f marks)\n", qs.ID, len(qs.Questions), qs.TotalMarks())

	adminToken, err := auth.IssueToken(service.TokenTypeAdmin, "admin-demo", "Demo Proctor", service.AllAdminPermissions, tokenTTL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to sign admin token")
	}
	fmt.Printf("\nAdmin token:\n%s\n\n", adminToken)

	fmt.Printf("=== Assigning %d sessions ===\n", count)
	successCount := 0
	for i := 0; i < count; i++ {
		studentID := fmt.Sprintf("student-%03d", i+1)
		name := fmt.Sprintf("Demo Student %d", i+1)

		sess, err := sessions.Assign(ctx, model.AssignSessionRequest{
			StudentID:     studentID,
			StudentName:   name,
			ExamType:      "demo",
			QuestionSetID: qs.ID.String(),
		})
		if err != nil {
			fmt.Printf("Error assigning %s: %v\n", studentID, err)
			continue
		}

		token, err := auth.IssueToken(service.TokenTypeStudent, studentID, name, nil, tokenTTL)
		if err != nil {
			fmt.Printf("Error signing token for %s: %v\n", studentID, err)
			continue
		}
		successCount++
		fmt.Printf("%s session=%s token=%s\n", studentID, sess.ID, token)
	}

	fmt.Printf("\nSeed completed! Successfully assigned %d/%d sessions.\n", successCount, count)
}

func demoQuestionSet() model.CreateQuestionSetRequest {
	correct := func(i int) *int { return &i }
	return model.CreateQuestionSetRequest{
		Title:   "Demo Science Quiz",
		Subject: "Science",
		Questions: []model.QuestionInput{
			{
				Text:         "Which planet is known as the Red Planet?",
				Type:         string(model.QuestionTypeObjective),
				Options:      []string{"Venus", "Mars", "Jupiter", "Saturn"},
				CorrectIndex: correct(1),
				MaxMarks:     1,
			},
			{
				Text:         "What is the chemical symbol for water?",
				Type:         string(model.QuestionTypeObjective),
				Options:      []string{"H2O", "CO2", "O2", "NaCl"},
				CorrectIndex: correct(0),
				MaxMarks:     1,
			},
			{
				Text:     "Explain in two sentences how photosynthesis works.",
				Type:     string(model.QuestionTypeFreeText),
				MaxMarks: 2,
			},
		},
	}
}
