package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"golang.org/x/crypto/bcrypt"

	"flock-messaging/config"
	"flock-messaging/internal/domain/chat"
	"flock-messaging/internal/domain/user"
	"flock-messaging/pkg/database"

	"github.com/google/uuid"
)

const usage = `
Flock Messaging - Database CLI Tool

Usage:
  migrate [command]

Commands:
  up          Run GORM migrations
  status      Show database connection and table status
  seed-dev    Seed with development/test data

Examples:
  go run cmd/migrate/main.go up
  go run cmd/migrate/main.go status
  go run cmd/migrate/main.go seed-dev
`

var models = []interface{}{
	&user.User{},
	&user.Follow{},
	&chat.Conversation{},
	&chat.Participant{},
	&chat.Message{},
	&chat.MessageReaction{},
	&chat.MessageLike{},
	&chat.MessageComment{},
}

func main() {
	flag.Usage = func() {
		fmt.Print(usage)
	}
	flag.Parse()

	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(1)
	}

	cfg := config.LoadConfig()
	database.Connect(cfg)
	defer database.Close()

	switch flag.Arg(0) {
	case "up":
		runMigrationsUp()
	case "status":
		showStatus()
	case "seed-dev":
		runSeedDevelopment()
	default:
		fmt.Printf("Unknown command: %s\n", flag.Arg(0))
		flag.Usage()
		os.Exit(1)
	}
}

func runMigrationsUp() {
	log.Println("Running migrations...")

	if err := database.AutoMigrate(models...); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}

	log.Println("Migrations completed successfully")
}

func showStatus() {
	log.Println("Checking database status...")

	if err := database.Ping(); err != nil {
		log.Fatalf("Database connection failed: %v", err)
	}
	log.Println("Database connection: OK")

	tables := []string{"users", "follows", "conversations", "participants", "messages", "message_reactions", "message_likes", "message_comments"}
	for _, table := range tables {
		exists, err := database.TableExists(table)
		if err != nil {
			log.Printf("Error checking table %s: %v", table, err)
			continue
		}
		if exists {
			count, _ := database.GetTableCount(table)
			log.Printf("Table %-20s exists (%d rows)", table, count)
		} else {
			log.Printf("Table %-20s does not exist", table)
		}
	}
}

func runSeedDevelopment() {
	log.Println("Seeding database (development mode)...")

	if err := database.AutoMigrate(models...); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.DefaultCost)
	if err != nil {
		log.Fatalf("Seeding failed: %v", err)
	}

	alice := user.User{ID: uuid.New(), Username: "alice", PasswordHash: string(hash), CreatedAt: time.Now()}
	bob := user.User{ID: uuid.New(), Username: "bob", PasswordHash: string(hash), Private: true, CreatedAt: time.Now()}
	if err := database.DB.Create(&[]user.User{alice, bob}).Error; err != nil {
		log.Fatalf("Seeding failed: %v", err)
	}

	follow := user.Follow{FollowerID: alice.ID, FollowingID: bob.ID, CreatedAt: time.Now()}
	if err := database.DB.Create(&follow).Error; err != nil {
		log.Fatalf("Seeding failed: %v", err)
	}

	conv, participants := chat.NewConversation(alice.ID, bob.ID)
	if err := database.DB.Create(&conv).Error; err != nil {
		log.Fatalf("Seeding failed: %v", err)
	}
	if err := database.DB.Create(&participants).Error; err != nil {
		log.Fatalf("Seeding failed: %v", err)
	}

	hello := chat.NewTextMessage(conv.ID, alice.ID, "hey bob")
	if err := database.DB.Create(&hello).Error; err != nil {
		log.Fatalf("Seeding failed: %v", err)
	}

	log.Printf("Seeded users alice (%s) and bob (%s), conversation %s", alice.ID, bob.ID, conv.ID)
	log.Println("Development seeding completed")
}
