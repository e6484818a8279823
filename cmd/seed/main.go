// Command seed registers a session (profile + source photo) so it can be submitted.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"ai-transform-service/internal/config"
	"ai-transform-service/internal/domain/model"
	"ai-transform-service/internal/infra/adapters/blob"
	pg "ai-transform-service/internal/infra/db/postgres"
	"ai-transform-service/internal/infra/logging"
	red "ai-transform-service/internal/infra/redis"
)

type invalidator interface {
	Invalidate(ctx context.Context, sessionID string) error
}

func main() {
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	sessionID := flag.String("session", "", "session id (required)")
	photo := flag.String("photo", "", "path to the source photo (required)")
	name := flag.String("name", "", "display name")
	goal := flag.String("goal", "get fitter", "goal")
	age := flag.Int("age", 30, "age")
	sex := flag.String("sex", "", "sex")
	height := flag.Float64("height", 175, "height in cm")
	weight := flag.Float64("weight", 80, "current weight in kg")
	target := flag.Float64("target", 74, "target weight in kg")
	activity := flag.String("activity", "moderate", "activity level")
	notes := flag.String("notes", "", "free-text notes")
	flag.Parse()

	// ---- Config ----
	cfg, err := config.LoadConfig(*cfgPath, true)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.Log, true)
	if *sessionID == "" || *photo == "" {
		logger.Fatal().Msg("-session and -photo are required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	data, err := os.ReadFile(*photo)
	if err != nil {
		logger.Fatal().Err(err).Msg("read photo")
	}
	contentType := http.DetectContentType(data)
	if !strings.HasPrefix(contentType, "image/") {
		logger.Fatal().Str("content_type", contentType).Msg("photo is not an image")
	}

	// ---- Blob ----
	signer, err := blob.NewSigner(orDefault(cfg.Blob.SigningKey, "dev-insecure-signing-key"))
	if err != nil {
		logger.Fatal().Err(err).Msg("signer")
	}
	store, err := blob.NewFSStore(cfg.Blob.Root, cfg.HTTP.PublicBaseURL, signer)
	if err != nil {
		logger.Fatal().Err(err).Msg("blob store")
	}
	photoPath, err := store.Put(ctx, "uploads/"+*sessionID+strings.ToLower(filepath.Ext(*photo)), data, contentType)
	if err != nil {
		logger.Fatal().Err(err).Msg("store photo")
	}

	// ---- Postgres ----
	pool, err := pg.Connect(ctx, cfg.Database)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres")
	}
	defer pool.Close()
	if err := pg.EnsureSchema(ctx, pool); err != nil {
		logger.Fatal().Err(err).Msg("schema")
	}
	repo := pg.NewSessionRepo(pool, pg.NewTxManager(pool))

	s := &model.Session{
		ID:               *sessionID,
		PhotoPath:        photoPath,
		PhotoContentType: contentType,
		Profile: model.Profile{
			DisplayName:     *name,
			Goal:            *goal,
			Age:             *age,
			Sex:             *sex,
			HeightCm:        *height,
			CurrentWeightKg: *weight,
			TargetWeightKg:  *target,
			ActivityLevel:   *activity,
			Notes:           *notes,
		},
	}
	if err := repo.Save(ctx, nil, s); err != nil {
		logger.Fatal().Err(err).Msg("save session")
	}

	// a re-seeded session must not be served stale from the read cache
	if cfg.Redis.URL != "" {
		client, err := red.NewClient(ctx, cfg.Redis)
		if err != nil {
			logger.Warn().Err(err).Msg("redis unavailable; cached session may be stale")
		} else {
			defer client.Close()
			if inv, ok := pg.NewSessionRepoCacheDecorator(repo, client).(invalidator); ok {
				_ = inv.Invalidate(ctx, s.ID)
			}
		}
	}

	fmt.Printf("seeded session %s (photo=%s, %s)\n", s.ID, photoPath, contentType)
}

func orDefault(v, def string) string {
	if v != "" {
		return v
	}
	return def
}
