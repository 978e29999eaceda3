package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/ssm"
	"github.com/joho/godotenv"
)

type Config struct {
	// Database
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	// Redis
	RedisHost     string
	RedisPort     string
	RedisPassword string

	// MongoDB (optional notification log store)
	MongoURI string
	MongoDB  string

	// JWT
	JWTSecret    string
	JWTExpiresIn time.Duration

	// Storage
	StorageDriver       string
	CloudinaryCloudName string
	CloudinaryAPIKey    string
	CloudinaryAPISecret string
	CloudinaryFolder    string
	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	S3BucketName        string

	// Push
	FirebaseCredentialsFile string
	VAPIDPublicKey          string
	VAPIDPrivateKey         string
	VAPIDSubject            string

	// Payments
	PaymentWebhookSecret string
	MidtransServerKey    string
	MidtransProduction   bool

	// LINE
	LineChannelSecret      string
	LineChannelAccessToken string

	// Server
	Port   string
	AppEnv string

	// File Upload
	MaxFileSize   int64
	UploadWorkers int

	// Logging
	LogLevel string
	LogFile  string

	// Notifications
	FeedLimit                    int
	NotificationLogRetentionDays int

	// Feature Toggles
	UseRedisNotifications bool
	SkipMigrate           bool
	Seed                  bool

	// Seeding
	AdminUsername string
	AdminPassword string
}

func (c *Config) GetDSN() string {
	return c.DBUser + ":" + c.DBPassword + "@tcp(" + c.DBHost + ":" + c.DBPort + ")/" + c.DBName + "?charset=utf8mb4&parseTime=True&loc=Local"
}

var AppConfig *Config

func LoadConfig() {
	useSSM := getEnv("USE_SSM", "false") == "true"

	var paramMap map[string]string

	basePath := getEnv("SSM_BASE_PATH", "/campusdesk")
	stage := getEnv("STAGE", getEnv("APP_ENV", "production"))
	prefix := strings.TrimRight(basePath, "/") + "/" + stage

	if useSSM {
		sess, err := session.NewSession(&aws.Config{Region: aws.String(getEnv("AWS_REGION", "ap-south-1"))})
		if err != nil {
			log.Fatal("Failed to create AWS session:", err)
		}
		log.Printf("Using AWS SSM Parameter Store (prefix=%s)", prefix)
		paramMap = fetchSSMParameters(ssm.New(sess), prefix)
	} else {
		if err := godotenv.Load(); err != nil {
			log.Println("Warning: .env file not found, using environment variables")
		}
	}

	getVal := func(key, def string) string {
		if v, ok := paramMap[strings.ToUpper(key)]; ok && v != "" {
			return v
		}
		return getEnv(strings.ToUpper(key), def)
	}

	jwtExpires, err := ParseDuration(getVal("JWT_EXPIRES_IN", "24h"))
	if err != nil {
		log.Fatal("Invalid JWT_EXPIRES_IN format:", err)
	}

	maxFileSize, err := strconv.ParseInt(getVal("MAX_FILE_SIZE", "10485760"), 10, 64)
	if err != nil {
		log.Fatal("Invalid MAX_FILE_SIZE format:", err)
	}

	AppConfig = &Config{
		DBHost:     getVal("DB_HOST", "localhost"),
		DBPort:     getVal("DB_PORT", "3306"),
		DBUser:     getVal("DB_USER", "root"),
		DBPassword: getVal("DB_PASSWORD", ""),
		DBName:     getVal("DB_NAME", "campusdesk"),

		RedisHost:     getVal("REDIS_HOST", "localhost"),
		RedisPort:     getVal("REDIS_PORT", "6379"),
		RedisPassword: getVal("REDIS_PASSWORD", ""),

		MongoURI: getVal("MONGO_URI", ""),
		MongoDB:  getVal("MONGO_DB", "campusdesk"),

		JWTSecret:    getVal("JWT_SECRET", "your_super_secret_jwt_key"),
		JWTExpiresIn: jwtExpires,

		StorageDriver:       strings.ToLower(getVal("STORAGE_DRIVER", "cloudinary")),
		CloudinaryCloudName: getVal("CLOUDINARY_CLOUD_NAME", ""),
		CloudinaryAPIKey:    getVal("CLOUDINARY_API_KEY", ""),
		CloudinaryAPISecret: getVal("CLOUDINARY_API_SECRET", ""),
		CloudinaryFolder:    getVal("CLOUDINARY_FOLDER", "campusdesk"),
		AWSRegion:           getVal("AWS_REGION", "ap-south-1"),
		AWSAccessKeyID:      getVal("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getVal("AWS_SECRET_ACCESS_KEY", ""),
		S3BucketName:        getVal("S3_BUCKET_NAME", "campusdesk-storage"),

		FirebaseCredentialsFile: getVal("FIREBASE_CREDENTIALS_FILE", ""),
		VAPIDPublicKey:          getVal("VAPID_PUBLIC_KEY", ""),
		VAPIDPrivateKey:         getVal("VAPID_PRIVATE_KEY", ""),
		VAPIDSubject:            getVal("VAPID_SUBJECT", "mailto:admin@campusdesk.local"),

		PaymentWebhookSecret: getVal("PAYMENT_WEBHOOK_SECRET", ""),
		MidtransServerKey:    getVal("MIDTRANS_SERVER_KEY", ""),
		MidtransProduction:   getBool(getVal("MIDTRANS_PRODUCTION", "false")),

		LineChannelSecret:      getVal("LINE_CHANNEL_SECRET", ""),
		LineChannelAccessToken: getVal("LINE_CHANNEL_ACCESS_TOKEN", ""),

		Port:   getVal("PORT", "3000"),
		AppEnv: getVal("APP_ENV", "development"),

		MaxFileSize:   maxFileSize,
		UploadWorkers: getInt(getVal("UPLOAD_WORKERS", "4"), 4),

		LogLevel: getVal("LOG_LEVEL", "info"),
		LogFile:  getVal("LOG_FILE", "logs/app.log"),

		FeedLimit:                    getInt(getVal("FEED_LIMIT", "100"), 100),
		NotificationLogRetentionDays: getInt(getVal("NOTIFICATION_LOG_RETENTION_DAYS", "90"), 90),

		UseRedisNotifications: getBool(getVal("USE_REDIS_NOTIFICATIONS", "false")),
		SkipMigrate:           getBool(getVal("SKIP_MIGRATE", "false")),
		Seed:                  getBool(getVal("SEED", "false")),

		AdminUsername: getVal("ADMIN_USERNAME", "admin"),
		AdminPassword: getVal("ADMIN_PASSWORD", ""),
	}

	validateConfig(AppConfig, useSSM)
}

// ParseDuration accepts Go durations plus the day/week shorthands ("7d", "2w").
func ParseDuration(raw string) (time.Duration, error) {
	d, err := time.ParseDuration(raw)
	if err == nil {
		return d, nil
	}
	s := strings.TrimSpace(strings.ToLower(raw))
	if len(s) > 1 {
		if n, convErr := strconv.Atoi(s[:len(s)-1]); convErr == nil {
			switch s[len(s)-1] {
			case 'd':
				return time.Duration(n) * 24 * time.Hour, nil
			case 'w':
				return time.Duration(n*7) * 24 * time.Hour, nil
			}
		}
	}
	return 0, err
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBool(v string) bool {
	return strings.ToLower(strings.TrimSpace(v)) == "true"
}

func getInt(v string, def int) int {
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || n <= 0 {
		return def
	}
	return n
}

// fetchSSMParameters reads all parameters under prefix and returns them keyed by the UPPERCASE last path segment.
func fetchSSMParameters(client *ssm.SSM, prefix string) map[string]string {
	out := make(map[string]string)
	var next *string
	for {
		in := &ssm.GetParametersByPathInput{
			Path:           aws.String(prefix),
			WithDecryption: aws.Bool(true),
			Recursive:      aws.Bool(true),
			NextToken:      next,
		}
		resp, err := client.GetParametersByPath(in)
		if err != nil {
			log.Printf("Warning: unable to fetch SSM parameters for prefix %s: %v", prefix, err)
			break
		}
		for _, p := range resp.Parameters {
			if p.Name == nil || p.Value == nil {
				continue
			}
			name := *p.Name
			if idx := strings.LastIndex(name, "/"); idx >= 0 {
				name = name[idx+1:]
			}
			if name == "" {
				continue
			}
			out[strings.ToUpper(name)] = *p.Value
		}
		if resp.NextToken == nil || *resp.NextToken == "" {
			break
		}
		next = resp.NextToken
	}
	return out
}

func validateConfig(c *Config, usedSSM bool) {
	// Only enforce stricter rules in production
	if strings.ToLower(c.AppEnv) != "production" {
		return
	}
	required := map[string]string{
		"DB_PASSWORD":            c.DBPassword,
		"JWT_SECRET":             c.JWTSecret,
		"PAYMENT_WEBHOOK_SECRET": c.PaymentWebhookSecret,
	}
	for k, v := range required {
		if strings.TrimSpace(v) == "" {
			log.Fatalf("Missing required secret %s in production (SSM=%v)", k, usedSSM)
		}
	}
	if len(c.JWTSecret) < 16 {
		log.Fatal("JWT_SECRET too short (min 16 chars)")
	}
}
