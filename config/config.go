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

	// Server
	Port   string
	AppEnv string

	// Logging
	LogLevel string
	LogFile  string

	// Click
	ClickServiceIDs []string
	ClickSecretKey  string
	ClickMerchantID string

	// Payme
	PaymeKey        string
	PaymeAccountKey string
	PaymeMinAmount  int64
	PaymeMaxAmount  int64
	PaymeTimeout    time.Duration

	// SMS (PlayMobile)
	SMSAPIURL          string
	SMSLogin           string
	SMSPassword        string
	SMSPrefix          string
	SMSOriginator      string
	PaymentSMSTemplate string

	// Jobs
	TuitionCron string

	// Feature Toggles
	UseRedisSMS bool
	SkipMigrate bool
	SeedData    bool
}

func (c *Config) GetDSN() string {
	return c.DBUser + ":" + c.DBPassword + "@tcp(" + c.DBHost + ":" + c.DBPort + ")/" + c.DBName + "?charset=utf8mb4&parseTime=True&loc=Local"
}

var AppConfig *Config

func LoadConfig() {
	useSSM := getEnv("USE_SSM", "false") == "true"

	var paramMap map[string]string

	// Stage & base path for SSM (allows multi-env without code changes)
	basePath := getEnv("SSM_BASE_PATH", "/academy")
	stage := getEnv("STAGE", getEnv("APP_ENV", "production"))
	basePath = strings.TrimRight(basePath, "/")
	prefix := basePath + "/" + stage

	if useSSM {
		sess, err := session.NewSession(&aws.Config{Region: aws.String(getEnv("AWS_REGION", "ap-southeast-1"))})
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

	// Helper accessor respecting map / env fallback
	getVal := func(key, def string) string {
		if useSSM {
			if v, ok := paramMap[strings.ToUpper(key)]; ok && v != "" {
				return v
			}
		}
		return getEnv(strings.ToUpper(key), def)
	}

	paymeTimeout, err := time.ParseDuration(getVal("PAYME_TIMEOUT", "12h"))
	if err != nil {
		log.Fatal("Invalid PAYME_TIMEOUT format:", err)
	}

	AppConfig = &Config{
		DBHost:     getVal("DB_HOST", "localhost"),
		DBPort:     getVal("DB_PORT", "3306"),
		DBUser:     getVal("DB_USER", "root"),
		DBPassword: getVal("DB_PASSWORD", ""),
		DBName:     getVal("DB_NAME", "academy_backoffice"),

		RedisHost:     getVal("REDIS_HOST", "localhost"),
		RedisPort:     getVal("REDIS_PORT", "6379"),
		RedisPassword: getVal("REDIS_PASSWORD", ""),

		Port:   getVal("PORT", "3000"),
		AppEnv: getVal("APP_ENV", "development"),

		LogLevel: getVal("LOG_LEVEL", "info"),
		LogFile:  getVal("LOG_FILE", "logs/app.log"),

		ClickServiceIDs: splitList(getVal("CLICK_SERVICE_ID", "")),
		ClickSecretKey:  getVal("CLICK_SECRET_KEY", ""),
		ClickMerchantID: getVal("CLICK_MERCHANT_ID", ""),

		PaymeKey:        getVal("PAYME_KEY", ""),
		PaymeAccountKey: getVal("PAYME_ACCOUNT_KEY", "account_number"),
		PaymeMinAmount:  mustInt(getVal("PAYME_MIN_AMOUNT", "1"), "PAYME_MIN_AMOUNT"),
		PaymeMaxAmount:  mustInt(getVal("PAYME_MAX_AMOUNT", "10000000"), "PAYME_MAX_AMOUNT"),
		PaymeTimeout:    paymeTimeout,

		SMSAPIURL:          getVal("SMS_API_URL", "https://send.smsxabar.uz/broker-api/send"),
		SMSLogin:           getVal("SMS_LOGIN", ""),
		SMSPassword:        getVal("SMS_PASSWORD", ""),
		SMSPrefix:          getVal("SMS_PREFIX", "academy"),
		SMSOriginator:      getVal("SMS_ORIGINATOR", "3700"),
		PaymentSMSTemplate: getVal("PAYMENT_SMS_TEMPLATE", "Payment of %s received for %s. Thank you!"),

		TuitionCron: getVal("TUITION_CRON", "0 5 0 * * *"),

		UseRedisSMS: strings.ToLower(getVal("USE_REDIS_SMS", "false")) == "true",
		SkipMigrate: strings.ToLower(getVal("SKIP_MIGRATE", "false")) == "true",
		SeedData:    strings.ToLower(getVal("SEED_DATA", "false")) == "true",
	}

	validateConfig(AppConfig, useSSM)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func mustInt(raw, key string) int64 {
	n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		log.Fatalf("Invalid %s format: %v", key, err)
	}
	return n
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
			log.Fatalf("Failed to read SSM parameters under %s: %v", prefix, err)
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
		"DB_PASSWORD":      c.DBPassword,
		"CLICK_SECRET_KEY": c.ClickSecretKey,
		"PAYME_KEY":        c.PaymeKey,
	}
	for k, v := range required {
		if strings.TrimSpace(v) == "" {
			log.Fatalf("Missing required secret %s in production (SSM=%v)", k, usedSSM)
		}
	}
	if len(c.ClickServiceIDs) == 0 {
		log.Fatal("CLICK_SERVICE_ID must list at least one service id in production")
	}
}
