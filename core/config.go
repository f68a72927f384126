package core

import (
	"fmt"
	"log"
	"net"
	"net/mail"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type (
	ServerConfig struct {
		Host            string
		Address         string
		DebugHost       string
		CORSOrigins     []string
		ReadTimeout     time.Duration
		WriteTimeout    time.Duration
		ShutdownTimeout time.Duration
		RateLimit       int // requests per RateWindow per IP on auth endpoints
		RateWindow      time.Duration
	}

	AuthConfig struct {
		Issuer          string
		Audience        string
		AccessSecret    string
		RefreshSecret   string
		AccessTokenTTL  time.Duration
		RefreshTokenTTL time.Duration

		LoginMaxAttempts int
		LoginWindow      time.Duration

		CodeLength      int
		CodeTTL         time.Duration
		CodeMaxAttempts int
		CodeCooldown    time.Duration
		CodeSendLimit   int
		CodeSendWindow  time.Duration
	}

	DatabaseConfig struct {
		Engine        string // postgres | inmem
		Host          string
		Port          int
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
		MaxOpenConns  int
		MaxIdleConns  int
		PingTimeout   time.Duration
	}

	CacheConfig struct {
		Backend       string // redis | memory
		RedisAddr     string
		RedisPassword string
		RedisDB       int
		KeyPrefix     string
	}

	StorageConfig struct {
		Backend        string // s3 | local
		LocalDir       string
		BaseURL        string
		Bucket         string
		Region         string
		Endpoint       string
		AccessKeyID    string
		SecretKey      string
		ForcePathStyle bool
		MaxUploadSize  int64
	}

	Config struct {
		Env             string
		Build           string
		Debug           bool
		TestMode        bool
		WorkDir         string
		AppName         string
		SecretKey       string
		FrontendBaseURL string
		RollbarToken    string

		EmailBackend         string // console | sendgrid | postmark
		DefaultFromEmail     mail.Address
		SupportEmail         string
		SendgridApiKey       string
		PostmarkServerToken  string
		PostmarkAccountToken string

		Server   ServerConfig
		Auth     AuthConfig
		Database DatabaseConfig
		Cache    CacheConfig
		Storage  StorageConfig
	}
)

func (db DatabaseConfig) Address() string {
	return net.JoinHostPort(db.Host, strconv.Itoa(db.Port))
}

// NewConfig loads the configuration of the current environment.
// ENV selects the environment (DEV by default, TEST, QA, PROD); every key can be
// overridden by an env var prefixed with the environment name, e.g. PROD_DATABASE_HOST.
func NewConfig() *Config {
	conf := viper.New()
	wd := Getwd()

	// defaults
	conf.SetTypeByDefaultValue(true)
	conf.SetDefault("build", "develop")
	conf.SetDefault("debug", true)
	conf.SetDefault("testMode", false)
	conf.SetDefault("appName", "FindClass")
	conf.SetDefault("secretKey", "vhk3-m1x)zpa$+90=ru&oet5(b!q)#*w4(#pn8^$tyfd2kaz")
	conf.SetDefault("frontendBaseURL", "http://localhost:3000")
	conf.SetDefault("rollbarToken", "")
	conf.SetDefault("emailBackend", "console")
	conf.SetDefault("defaultFromEmail", "FindClass <noreply@findclass.nz>")
	conf.SetDefault("supportEmail", "support@findclass.nz")
	conf.SetDefault("sendgridApiKey", "")
	conf.SetDefault("postmarkServerToken", "")
	conf.SetDefault("postmarkAccountToken", "")

	conf.SetDefault("server.host", "localhost")
	conf.SetDefault("server.address", ":8000")
	conf.SetDefault("server.debugHost", ":4000")
	conf.SetDefault("server.corsOrigins", []string{"http://localhost:3000"})
	conf.SetDefault("server.readTimeout", 5*time.Second)
	conf.SetDefault("server.writeTimeout", 10*time.Second)
	conf.SetDefault("server.shutdownTimeout", 5*time.Second)
	conf.SetDefault("server.rateLimit", 30)
	conf.SetDefault("server.rateWindow", time.Minute)

	conf.SetDefault("auth.issuer", "findclass.nz")
	conf.SetDefault("auth.audience", "findclass-web")
	conf.SetDefault("auth.accessSecret", "")
	conf.SetDefault("auth.refreshSecret", "")
	conf.SetDefault("auth.accessTokenTTL", 15*time.Minute)
	conf.SetDefault("auth.refreshTokenTTL", 7*24*time.Hour)
	conf.SetDefault("auth.loginMaxAttempts", 10)
	conf.SetDefault("auth.loginWindow", 15*time.Minute)
	conf.SetDefault("auth.codeLength", 6)
	conf.SetDefault("auth.codeTTL", 10*time.Minute)
	conf.SetDefault("auth.codeMaxAttempts", 5)
	conf.SetDefault("auth.codeCooldown", time.Minute)
	conf.SetDefault("auth.codeSendLimit", 5)
	conf.SetDefault("auth.codeSendWindow", time.Hour)

	conf.SetDefault("database.engine", "postgres")
	conf.SetDefault("database.host", "localhost")
	conf.SetDefault("database.port", 5432)
	conf.SetDefault("database.name", "findclass")
	conf.SetDefault("database.user", "findclass")
	conf.SetDefault("database.password", "findclass")
	conf.SetDefault("database.adminUser", "")
	conf.SetDefault("database.adminPassword", "")
	conf.SetDefault("database.disableTLS", true)
	conf.SetDefault("database.maxOpenConns", 20)
	conf.SetDefault("database.maxIdleConns", 5)
	conf.SetDefault("database.pingTimeout", 30*time.Second)

	conf.SetDefault("cache.backend", "redis")
	conf.SetDefault("cache.redisAddr", "localhost:6379")
	conf.SetDefault("cache.redisPassword", "")
	conf.SetDefault("cache.redisDB", 0)
	conf.SetDefault("cache.keyPrefix", "findclass:")

	conf.SetDefault("storage.backend", "local")
	conf.SetDefault("storage.localDir", filepath.Join(wd, "media"))
	conf.SetDefault("storage.baseURL", "http://localhost:8000/media")
	conf.SetDefault("storage.bucket", "")
	conf.SetDefault("storage.region", "ap-southeast-2")
	conf.SetDefault("storage.endpoint", "")
	conf.SetDefault("storage.accessKeyID", "")
	conf.SetDefault("storage.secretKey", "")
	conf.SetDefault("storage.forcePathStyle", false)
	conf.SetDefault("storage.maxUploadSize", int64(5<<20))

	env := strings.ToUpper(os.Getenv("ENV")) // DEV (local; default), TEST, QA, PROD
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		conf.SetDefault("testMode", true)
	}
	conf.SetEnvPrefix(env)
	conf.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// load .env if it exists (ignore if it does not)
	if wd != "" {
		dotEnvPath := filepath.Join(wd, "config", ".env."+strings.ToLower(env))
		if _, err := os.Stat(dotEnvPath); err == nil {
			if err := godotenv.Load(dotEnvPath); err != nil {
				log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
			}
		} else if !os.IsNotExist(err) {
			log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
		}
	}
	conf.AutomaticEnv()

	c := &Config{
		Env:                  env,
		Build:                conf.GetString("build"),
		Debug:                conf.GetBool("debug"),
		TestMode:             conf.GetBool("testMode"),
		WorkDir:              wd,
		AppName:              conf.GetString("appName"),
		SecretKey:            conf.GetString("secretKey"),
		FrontendBaseURL:      strings.TrimRight(conf.GetString("frontendBaseURL"), "/"),
		RollbarToken:         conf.GetString("rollbarToken"),
		EmailBackend:         conf.GetString("emailBackend"),
		SupportEmail:         conf.GetString("supportEmail"),
		SendgridApiKey:       conf.GetString("sendgridApiKey"),
		PostmarkServerToken:  conf.GetString("postmarkServerToken"),
		PostmarkAccountToken: conf.GetString("postmarkAccountToken"),
		Server: ServerConfig{
			Host:            conf.GetString("server.host"),
			Address:         conf.GetString("server.address"),
			DebugHost:       conf.GetString("server.debugHost"),
			CORSOrigins:     conf.GetStringSlice("server.corsOrigins"),
			ReadTimeout:     conf.GetDuration("server.readTimeout"),
			WriteTimeout:    conf.GetDuration("server.writeTimeout"),
			ShutdownTimeout: conf.GetDuration("server.shutdownTimeout"),
			RateLimit:       conf.GetInt("server.rateLimit"),
			RateWindow:      conf.GetDuration("server.rateWindow"),
		},
		Auth: AuthConfig{
			Issuer:           conf.GetString("auth.issuer"),
			Audience:         conf.GetString("auth.audience"),
			AccessSecret:     conf.GetString("auth.accessSecret"),
			RefreshSecret:    conf.GetString("auth.refreshSecret"),
			AccessTokenTTL:   conf.GetDuration("auth.accessTokenTTL"),
			RefreshTokenTTL:  conf.GetDuration("auth.refreshTokenTTL"),
			LoginMaxAttempts: conf.GetInt("auth.loginMaxAttempts"),
			LoginWindow:      conf.GetDuration("auth.loginWindow"),
			CodeLength:       conf.GetInt("auth.codeLength"),
			CodeTTL:          conf.GetDuration("auth.codeTTL"),
			CodeMaxAttempts:  conf.GetInt("auth.codeMaxAttempts"),
			CodeCooldown:     conf.GetDuration("auth.codeCooldown"),
			CodeSendLimit:    conf.GetInt("auth.codeSendLimit"),
			CodeSendWindow:   conf.GetDuration("auth.codeSendWindow"),
		},
		Database: DatabaseConfig{
			Engine:        conf.GetString("database.engine"),
			Host:          conf.GetString("database.host"),
			Port:          conf.GetInt("database.port"),
			Name:          conf.GetString("database.name"),
			User:          conf.GetString("database.user"),
			Password:      conf.GetString("database.password"),
			AdminUser:     conf.GetString("database.adminUser"),
			AdminPassword: conf.GetString("database.adminPassword"),
			DisableTLS:    conf.GetBool("database.disableTLS"),
			MaxOpenConns:  conf.GetInt("database.maxOpenConns"),
			MaxIdleConns:  conf.GetInt("database.maxIdleConns"),
			PingTimeout:   conf.GetDuration("database.pingTimeout"),
		},
		Cache: CacheConfig{
			Backend:       conf.GetString("cache.backend"),
			RedisAddr:     conf.GetString("cache.redisAddr"),
			RedisPassword: conf.GetString("cache.redisPassword"),
			RedisDB:       conf.GetInt("cache.redisDB"),
			KeyPrefix:     conf.GetString("cache.keyPrefix"),
		},
		Storage: StorageConfig{
			Backend:        conf.GetString("storage.backend"),
			LocalDir:       conf.GetString("storage.localDir"),
			BaseURL:        strings.TrimRight(conf.GetString("storage.baseURL"), "/"),
			Bucket:         conf.GetString("storage.bucket"),
			Region:         conf.GetString("storage.region"),
			Endpoint:       conf.GetString("storage.endpoint"),
			AccessKeyID:    conf.GetString("storage.accessKeyID"),
			SecretKey:      conf.GetString("storage.secretKey"),
			ForcePathStyle: conf.GetBool("storage.forcePathStyle"),
			MaxUploadSize:  conf.GetInt64("storage.maxUploadSize"),
		},
	}

	from, err := mail.ParseAddress(conf.GetString("defaultFromEmail"))
	if err != nil {
		log.Fatalf("config.defaultFromEmail: %v", err)
	}
	c.DefaultFromEmail = *from

	if c.Auth.AccessSecret == "" {
		c.Auth.AccessSecret = c.SecretKey + ":access"
	}
	if c.Auth.RefreshSecret == "" {
		c.Auth.RefreshSecret = c.SecretKey + ":refresh"
	}
	return c
}

// String hides secrets when the config gets printed.
func (c *Config) String() string {
	return fmt.Sprintf("Config{Env:%s Build:%s Debug:%v Database:%s/%s Cache:%s Storage:%s Email:%s}",
		c.Env, c.Build, c.Debug, c.Database.Engine, c.Database.Name, c.Cache.Backend, c.Storage.Backend, c.EmailBackend)
}
