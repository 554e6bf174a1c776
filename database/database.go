package database

import (
	"context"
	"fmt"
	"log"
	"time"

	"schoolreports_go/config"
	"schoolreports_go/models"

	"github.com/glebarez/sqlite"
	"github.com/go-redis/redis/v8"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var DB *gorm.DB
var RedisClient *redis.Client

// ActivityQueueKey is the Redis sorted set of cached activity log keys, scored by unix time.
const ActivityQueueKey = "logs:queue"

// Connect initializes the database and Redis connections
func Connect() {
	connectDatabase()
	connectRedis()
}

// connectDatabase initializes the database connection
func connectDatabase() {
	var err error

	// Configure GORM logger based on environment
	var gormLogger logger.Interface
	if config.AppConfig.AppEnv == "development" {
		gormLogger = logger.Default.LogMode(logger.Info)
	} else {
		gormLogger = logger.Default.LogMode(logger.Silent)
	}

	if config.AppConfig.DBDriver == "sqlite" {
		DB, err = OpenSQLite(config.AppConfig.DBPath, gormLogger)
		if err != nil {
			log.Fatal("Failed to open sqlite database:", err)
		}
	} else {
		// Retry logic for transient tunnel issues
		var lastErr error
		for attempt := 1; attempt <= 8; attempt++ {
			DB, err = gorm.Open(mysql.Open(config.AppConfig.GetDSN()), &gorm.Config{
				Logger: gormLogger,
			})
			if err == nil {
				lastErr = nil
				break
			}
			lastErr = err
			log.Printf("Database connect attempt %d failed: %v", attempt, err)
			time.Sleep(time.Duration(attempt*attempt) * 300 * time.Millisecond)
		}
		if lastErr != nil {
			log.Fatal("Failed to connect to database after retries:", lastErr)
		}

		sqlDB, err := DB.DB()
		if err != nil {
			log.Fatal("Failed to get database instance:", err)
		}
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetMaxOpenConns(50)
		sqlDB.SetConnMaxLifetime(55 * time.Minute)
	}

	log.Println("Database connected successfully")

	if config.AppConfig.SkipMigrate {
		log.Println("SKIP_MIGRATE set; skipping auto migration")
		return
	}
	AutoMigrate()
}

// OpenSQLite opens a single-connection sqlite database at path (":memory:" allowed).
func OpenSQLite(path string, gormLogger logger.Interface) (*gorm.DB, error) {
	if gormLogger == nil {
		gormLogger = logger.Default.LogMode(logger.Silent)
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: gormLogger})
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// sqlite serialises writers; one connection also keeps ":memory:" databases alive
	sqlDB.SetMaxOpenConns(1)
	return db, nil
}

// AutoMigrate performs automatic database migration
func AutoMigrate() {
	if err := Migrate(DB); err != nil {
		log.Fatal("Auto migration failed:", err)
	}
	log.Println("Database migration completed successfully")
}

// Migrate creates or updates every table on db.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(models.All()...)
}

// connectRedis initializes Redis connection
func connectRedis() {
	RedisClient = redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", config.AppConfig.RedisHost, config.AppConfig.RedisPort),
		Password: config.AppConfig.RedisPassword,
		DB:       0,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if _, err := RedisClient.Ping(ctx).Result(); err != nil {
		log.Printf("Redis connection failed: %v", err)
		log.Println("Continuing without Redis - logs will be saved directly to database")
		RedisClient = nil
		return
	}

	log.Println("Redis connected successfully")
}

// GetRedisClient returns the Redis client instance
func GetRedisClient() *redis.Client {
	return RedisClient
}

// GetDB returns the database instance
func GetDB() *gorm.DB {
	return DB
}

// Close closes the database connection
func Close() {
	if DB == nil {
		return
	}
	sqlDB, err := DB.DB()
	if err != nil {
		log.Println("Error getting database instance:", err)
		return
	}

	if err := sqlDB.Close(); err != nil {
		log.Println("Error closing database connection:", err)
		return
	}

	log.Println("Database connection closed")
}
