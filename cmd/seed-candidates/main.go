package main

import (
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/proctorly/proctor-backend/internal/config"
	"github.com/proctorly/proctor-backend/internal/database"
	"github.com/proctorly/proctor-backend/internal/logger"
	"github.com/proctorly/proctor-backend/internal/model"
	"github.com/proctorly/proctor-backend/internal/repository"
	"golang.org/x/crypto/bcrypt"
)

// seed-candidates imports candidate accounts from a CSV file with rows of
// name,username,password. Existing usernames are skipped.
func main() {
	var csvPath string
	flag.StringVar(&csvPath, "file", "candidates.csv", "Path to the candidates CSV file")
	flag.Parse()

	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)

	ctx := context.Background()

	// ─── Connect to PostgreSQL ─────────────────────────────────────────
	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	candidateRepo := repository.NewCandidateRepository(pool)

	// ─── Parse CSV ─────────────────────────────────────────────────────
	f, err := os.Open(csvPath)
	if err != nil {
		log.Fatal().Err(err).Str("file", csvPath).Msg("Failed to open CSV")
	}
	defer f.Close()

	reader := csv.NewReader(f)
	var candidates []model.Candidate
	line := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			log.Fatal().Err(err).Int("line", line).Msg("Failed to read CSV")
		}
		if len(record) < 3 {
			log.Fatal().Int("line", line).Msg("Expected name,username,password")
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(record[2]), cfg.BcryptCost)
		if err != nil {
			log.Fatal().Err(err).Int("line", line).Msg("Failed to hash password")
		}
		candidates = append(candidates, model.Candidate{
			Name:         record[0],
			Username:     record[1],
			PasswordHash: string(hash),
		})
	}

	if len(candidates) == 0 {
		fmt.Println("No candidates found in CSV")
		return
	}

	// ─── Insert ────────────────────────────────────────────────────────
	created, err := candidateRepo.BulkCreate(ctx, candidates)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create candidates")
	}

	fmt.Printf("Imported %d of %d candidates (%d already existed)\n",
		created, len(candidates), len(candidates)-created)
}
