package database

import (
	"campusdesk_go/config"
	"campusdesk_go/models"
	"context"
	"fmt"
	"log"
	"time"

	"github.com/go-redis/redis/v8"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var DB *gorm.DB
var RedisClient *redis.Client
var Mongo *mongo.Database

var mongoClient *mongo.Client

// Connect initializes the database, Redis and (optional) MongoDB connections
func Connect() {
	connectDatabase()
	connectRedis()
	connectMongo()
}

// connectDatabase initializes the database connection
func connectDatabase() {
	var err error
	dsn := config.AppConfig.GetDSN()

	var gormLogger logger.Interface
	if config.AppConfig.AppEnv == "development" {
		gormLogger = logger.Default.LogMode(logger.Info)
	} else {
		gormLogger = logger.Default.LogMode(logger.Silent)
	}

	// Retry logic for transient network issues
	var lastErr error
	for attempt := 1; attempt <= 8; attempt++ {
		DB, err = gorm.Open(mysql.Open(dsn), &gorm.Config{Logger: gormLogger, TranslateError: true})
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

	log.Println("Database connected successfully")

	sqlDB, err := DB.DB()
	if err != nil {
		log.Fatal("Failed to get database instance:", err)
	}

	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(50)
	sqlDB.SetConnMaxLifetime(55 * time.Minute)

	if config.AppConfig.SkipMigrate {
		log.Println("SKIP_MIGRATE=true; skipping auto migration")
		return
	}
	AutoMigrate()
}

// AutoMigrate performs automatic database migration
func AutoMigrate() {
	err := DB.AutoMigrate(
		&models.User{},
		&models.Student{},
		&models.ClassGroup{},
		&models.AttendanceRecord{},
		&models.AttendanceOverride{},
		&models.Assignment{},
		&models.Exam{},
		&models.Notice{},
		&models.NoticeRead{},
		&models.Event{},
		&models.Fine{},
		&models.PaymentTransaction{},
		&models.PushToken{},
		&models.NotificationLog{},
		&models.NotificationClear{},
		&models.Form{},
		&models.FormSubmission{},
		&models.Mentor{},
		&models.MentorSalary{},
		&models.Mark{},
		&models.Document{},
		&models.UniformRequest{},
		&models.LineGroup{},
		&models.ActivityLog{},
		&models.LogArchive{},
	)

	if err != nil {
		log.Fatal("Auto migration failed:", err)
	}

	log.Println("Database migration completed successfully")
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
		log.Println("Continuing without Redis - logs, notifications and upload jobs stay in-process")
		RedisClient = nil
		return
	}

	log.Println("Redis connected successfully")
}

// connectMongo opens the optional MongoDB notification log store
func connectMongo() {
	if config.AppConfig.MongoURI == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(config.AppConfig.MongoURI))
	if err != nil {
		log.Printf("MongoDB connection failed: %v; notification logs will use MySQL", err)
		return
	}
	if err := client.Ping(ctx, nil); err != nil {
		log.Printf("MongoDB ping failed: %v; notification logs will use MySQL", err)
		_ = client.Disconnect(context.Background())
		return
	}

	mongoClient = client
	Mongo = client.Database(config.AppConfig.MongoDB)
	log.Println("MongoDB connected successfully")
}

// GetRedisClient returns the Redis client instance
func GetRedisClient() *redis.Client {
	return RedisClient
}

// GetDB returns the database instance
func GetDB() *gorm.DB {
	return DB
}

// GetMongo returns the MongoDB database, or nil when MongoDB is not configured
func GetMongo() *mongo.Database {
	return Mongo
}

// Close closes all open connections
func Close() {
	if mongoClient != nil {
		if err := mongoClient.Disconnect(context.Background()); err != nil {
			log.Println("Error closing MongoDB connection:", err)
		}
	}
	if RedisClient != nil {
		if err := RedisClient.Close(); err != nil {
			log.Println("Error closing Redis connection:", err)
		}
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
