package database

import (
	"fmt"
	"log"

	config "github.com/ysuzuki8/market_dm/configs"
	"github.com/ysuzuki8/market_dm/models"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var DB *gorm.DB

func ConnectDB() {
	var err error
	dsn := config.Config("DATABASE_URL")

	DB, err = gorm.Open(postgres.Open(dsn), &gorm.Config{
		PrepareStmt:                              false,
		SkipDefaultTransaction:                   true,
		DisableForeignKeyConstraintWhenMigrating: true,
		DisableNestedTransaction:                 true,
		// Unique-constraint violations must surface as gorm.ErrDuplicatedKey
		// for the direct-conversation dedup retry.
		TranslateError: true,
	})
	if err != nil {
		log.Fatalf("🔥 Failed to connect to database: %v", err)
	}

	fmt.Println("✅ Database connected successfully")
}

func Migrate() {
	err := DB.AutoMigrate(
		&models.User{},
		&models.Conversation{},
		&models.ConversationParticipant{},
		&models.Message{},
		&models.MessageAttachment{},
	)
	if err != nil {
		log.Fatalf("🔥 Failed to migrate database: %v", err)
	}
	fmt.Println("✅ Database migration successful")
}

// SeedSupportUser bootstraps a reachable directory account so fresh
// installs have someone to message. No-op when SUPPORT_EMAIL is unset.
func SeedSupportUser() {
	supportEmail := config.Config("SUPPORT_EMAIL")
	supportPassword := config.Config("SUPPORT_PASSWORD")
	if supportEmail == "" {
		return
	}

	var count int64
	err := DB.Model(&models.User{}).Where("email = ?", supportEmail).Count(&count).Error
	if err != nil {
		log.Fatalf("🔥 Failed to check for support user: %v", err)
		return
	}

	if count > 0 {
		log.Println("Support user already exists.")
		return
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(supportPassword), bcrypt.DefaultCost)
	if err != nil {
		log.Fatalf("🔥 Failed to hash support user password: %v", err)
		return
	}

	name := config.Config("SUPPORT_NAME")
	if name == "" {
		name = "Support"
	}

	supportUser := models.User{
		Name:     name,
		Email:    supportEmail,
		Password: string(hashedPassword),
	}

	if err := DB.Create(&supportUser).Error; err != nil {
		log.Fatalf("🔥 Failed to seed support user: %v", err)
		return
	}

	log.Println("✅ Support user seeded successfully")
}
