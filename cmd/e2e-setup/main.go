package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"snipr-audio/internal/config"
	"snipr-audio/internal/domain/model"
	"snipr-audio/internal/domain/ports/adapter"
	"snipr-audio/internal/infra/auth"
	"snipr-audio/internal/infra/db/postgres"
	"snipr-audio/internal/infra/redis"
	"snipr-audio/internal/infra/rss"
	"snipr-audio/internal/usecase"

	"github.com/rs/zerolog"
)

var (
	ownerID  = flag.String("owner", "e2e-user", "owner id to seed and mint a token for")
	tokenTTL = flag.Duration("token-ttl", 24*time.Hour, "lifetime of the printed bearer token")
	wipe     = flag.Bool("wipe", true, "truncate all job and feed tables first")
)

// This script puts the database and cache into a clean, predictable state
// for manual end-to-end testing.
func main() {
	ctx := context.Background()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("config load: %v", err)
	}
	logger := zerolog.Nop()

	// --- Connect to Postgres ---
	pool, err := postgres.Connect(ctx, &cfg.Database)
	if err != nil {
		log.Fatalf("postgres connection failed: %v", err)
	}
	defer pool.Close()

	// --- Connect to Redis ---
	redisClient, err := redis.NewClient(ctx, &cfg.Redis)
	if err != nil {
		log.Fatalf("redis connection failed: %v", err)
	}
	defer redisClient.Close()

	log.Println("--- Starting E2E Environment Setup ---")

	log.Println("[1/4] Clearing cached state for the owner...")
	if err := redisClient.Del(ctx, "feed:"+*ownerID, adapter.SubmissionKey(*ownerID)); err != nil {
		log.Fatalf("failed to clear redis keys: %v", err)
	}

	if *wipe {
		log.Println("[2/4] Wiping job and feed tables...")
		if _, err := pool.Exec(ctx, `TRUNCATE conversion_jobs, feed_entries, user_feeds;`); err != nil {
			log.Fatalf("failed to truncate tables: %v", err)
		}
	} else {
		log.Println("[2/4] Keeping existing rows")
	}

	log.Println("[3/4] Seeding a feed with one episode...")
	feeds := usecase.NewFeedUseCase(postgres.NewUserFeedRepo(pool), redis.NewFeedCache(redisClient),
		rss.NewRenderer(cfg.Feed.DefaultImage), cfg.Server.PublicBaseURL, cfg.Redis.TTL, &logger)
	p := adapter.Principal{ID: *ownerID, Name: "E2E User", Email: *ownerID + "@example.com"}
	if _, err := feeds.AppendEntry(ctx, p, &model.FeedEntry{
		GUID:          "e2e-welcome",
		OwnerID:       p.ID,
		Title:         "Welcome to your feed",
		Description:   "A seeded episode so podcast apps have something to show.",
		AudioURL:      cfg.Server.PublicBaseURL + "/media/e2e/welcome.mp3",
		LengthBytes:   48000,
		DurationLabel: "00:00:03",
	}); err != nil {
		log.Printf("seed episode: %v", err)
	}
	info, err := feeds.Info(ctx, p)
	if err != nil {
		log.Fatalf("feed info: %v", err)
	}

	log.Println("[4/4] Minting a bearer token...")
	token, err := auth.NewJWTVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.Audience).Mint(p, *tokenTTL)
	if err != nil {
		log.Fatalf("mint token: %v", err)
	}

	fmt.Printf("owner:    %s\nfeed:     %s\nepisodes: %d\ntoken:    %s\n", info.OwnerID, info.FeedURL, info.Episodes, token)
	log.Println("--- E2E Environment Setup Complete ---")
}
