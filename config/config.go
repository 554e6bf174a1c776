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
	DBDriver   string
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBPath     string

	// Redis
	RedisHost     string
	RedisPort     string
	RedisPassword string

	// JWT
	JWTSecret    string
	JWTExpiresIn time.Duration

	// AWS S3
	AWSRegion          string
	AWSAccessKeyID     string
	AWSSecretAccessKey string
	S3BucketName       string

	// Server
	Port     string
	AppEnv   string
	TimeZone string

	// File Upload
	MaxFileSize       int64
	MaxImageSize      int64
	MaxAttachmentSize int64

	// Logging
	LogLevel         string
	LogFile          string
	ArchiveAfterDays int

	// LINE
	LineChannelSecret      string
	LineChannelAccessToken string

	// Feature Toggles
	SkipMigrate bool
	SkipSeed    bool
}

func (c *Config) GetDSN() string {
	return c.DBUser + ":" + c.DBPassword + "@tcp(" + c.DBHost + ":" + c.DBPort + ")/" + c.DBName + "?charset=utf8mb4&parseTime=True&loc=Local"
}

// Location returns the configured time zone, falling back to UTC.
func (c *Config) Location() *time.Location {
	if c == nil || c.TimeZone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return time.UTC
	}
	return loc
}

var AppConfig *Config

func LoadConfig() {
	useSSM := getEnv("USE_SSM", "false") == "true"

	var paramMap map[string]string

	// Stage & base path for SSM (allows multi-env without code changes)
	basePath := getEnv("SSM_BASE_PATH", "/schoolreports")
	stage := getEnv("STAGE", getEnv("APP_ENV", "production"))
	basePath = strings.TrimRight(basePath, "/")
	prefix := basePath + "/" + stage

	if useSSM {
		sess, err := session.NewSession(&aws.Config{Region: aws.String(getEnv("AWS_REGION", "me-south-1"))})
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
		if useSSM {
			if v, ok := paramMap[strings.ToUpper(key)]; ok && v != "" {
				return v
			}
		}
		return getEnv(strings.ToUpper(key), def)
	}

	jwtExpires, err := ParseDurationShorthand(getVal("JWT_EXPIRES_IN", "24h"))
	if err != nil {
		log.Fatal("Invalid JWT_EXPIRES_IN format:", err)
	}

	AppConfig = &Config{
		DBDriver:   strings.ToLower(getVal("DB_DRIVER", "mysql")),
		DBHost:     getVal("DB_HOST", "localhost"),
		DBPort:     getVal("DB_PORT", "3306"),
		DBUser:     getVal("DB_USER", "root"),
		DBPassword: getVal("DB_PASSWORD", ""),
		DBName:     getVal("DB_NAME", "schoolreports"),
		DBPath:     getVal("DB_PATH", "schoolreports.db"),

		RedisHost:     getVal("REDIS_HOST", "localhost"),
		RedisPort:     getVal("REDIS_PORT", "6379"),
		RedisPassword: getVal("REDIS_PASSWORD", ""),

		JWTSecret:    getVal("JWT_SECRET", "your_super_secret_jwt_key"),
		JWTExpiresIn: jwtExpires,

		AWSRegion:          getVal("AWS_REGION", "me-south-1"),
		AWSAccessKeyID:     getVal("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey: getVal("AWS_SECRET_ACCESS_KEY", ""),
		S3BucketName:       getVal("S3_BUCKET_NAME", "schoolreports-media"),

		Port:     getVal("PORT", "3000"),
		AppEnv:   getVal("APP_ENV", "development"),
		TimeZone: getVal("TIME_ZONE", "Asia/Riyadh"),

		MaxFileSize:       mustInt64("MAX_FILE_SIZE", getVal("MAX_FILE_SIZE", "26214400")),
		MaxImageSize:      mustInt64("MAX_IMAGE_SIZE", getVal("MAX_IMAGE_SIZE", "2097152")),
		MaxAttachmentSize: mustInt64("MAX_ATTACHMENT_SIZE", getVal("MAX_ATTACHMENT_SIZE", "5242880")),

		LogLevel:         getVal("LOG_LEVEL", "info"),
		LogFile:          getVal("LOG_FILE", "logs/app.log"),
		ArchiveAfterDays: int(mustInt64("ARCHIVE_AFTER_DAYS", getVal("ARCHIVE_AFTER_DAYS", "30"))),

		LineChannelSecret:      getVal("LINE_CHANNEL_SECRET", ""),
		LineChannelAccessToken: getVal("LINE_CHANNEL_ACCESS_TOKEN", ""),

		SkipMigrate: strings.ToLower(getVal("SKIP_MIGRATE", "false")) == "true",
		SkipSeed:    strings.ToLower(getVal("SKIP_SEED", "false")) == "true",
	}

	validateConfig(AppConfig, useSSM)
}

// ParseDurationShorthand accepts Go durations plus "7d" and "2w" forms.
func ParseDurationShorthand(v string) (time.Duration, error) {
	d, err := time.ParseDuration(v)
	if err == nil {
		return d, nil
	}
	s := strings.TrimSpace(strings.ToLower(v))
	if len(s) > 1 {
		if n, err2 := strconv.Atoi(s[:len(s)-1]); err2 == nil {
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

func mustInt64(key, v string) int64 {
	n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil {
		log.Fatalf("Invalid %s format: %v", key, err)
	}
	return n
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// fetchSSMParameters reads all parameters under prefix and returns map with UPPERCASE keys.
func fetchSSMParameters(client *ssm.SSM, prefix string) map[string]string {
	out := make(map[string]string)
	next := aws.String("")
	for {
		in := &ssm.GetParametersByPathInput{
			Path:           aws.String(prefix),
			WithDecryption: aws.Bool(true),
			Recursive:      aws.Bool(true),
		}
		if *next != "" {
			in.NextToken = next
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
			key := name
			if idx := strings.LastIndex(name, "/"); idx >= 0 {
				key = name[idx+1:]
			}
			if key == "" {
				continue
			}
			out[strings.ToUpper(key)] = *p.Value
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
		"JWT_SECRET": c.JWTSecret,
	}
	if c.DBDriver != "sqlite" {
		required["DB_PASSWORD"] = c.DBPassword
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
