package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"

	"bierbaron/db"
)

// Seeds a handful of Discord users with Bierkästen for local crash testing.
func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env not found")
	}

	if os.Getenv("DATABASE_URL") == "" {
		log.Fatal("DATABASE_URL not set")
	}

	ctx := context.Background()
	pg, err := db.NewPostgres(ctx, os.Getenv("DATABASE_URL"))
	if err != nil {
		log.Fatalf("Failed to init postgres: %v", err)
	}
	defer pg.Close()

	testUsers := []struct {
		discordID string
		name      string
		balance   int64
	}{
		{"100000000000000001", "Bierbaron", 5000},
		{"100000000000000002", "Hopfenkönig", 2500},
		{"100000000000000003", "Malzmeister", 1200},
		{"100000000000000004", "Kastenträger", 800},
		{"100000000000000005", "Pilsprinz", 250},
		{"100000000000000006", "Schaumschläger", 40},
	}

	fmt.Println("Seeding wallets with test data...")

	for _, u := range testUsers {
		id, err := pg.EnsureUser(ctx, u.discordID, u.name)
		if err != nil {
			log.Printf("Failed to create %s: %v", u.name, err)
			continue
		}

		current, err := pg.Balance(ctx, id)
		if err != nil {
			log.Printf("Failed to read balance of %s: %v", u.name, err)
			continue
		}
		if delta := u.balance - current; delta != 0 {
			if err := pg.Grant(ctx, id, delta, "seed"); err != nil {
				log.Printf("Failed to fund %s: %v", u.name, err)
				continue
			}
		}
		fmt.Printf("  #%d %s -> %d\n", id, u.name, u.balance)
	}

	fmt.Println("\nDone! Testing leaderboard...")

	entries, err := pg.GetBalanceLeaderboard(ctx, 20)
	if err != nil {
		log.Fatalf("Failed to get leaderboard: %v", err)
	}

	fmt.Printf("\nLeaderboard (%d entries):\n", len(entries))
	for i, e := range entries {
		fmt.Printf("  #%d %s %d\n", i+1, e.DiscordName, e.Balance)
	}
}
