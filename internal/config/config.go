package config

import "github.com/caarlos0/env/v9"

type Config struct {
	Port       string `env:"PORT" envDefault:"8080"`
	DBUser     string `env:"DB_USER,required"`
	DBPassword string `env:"DB_PASSWORD,required"`
	DBHost     string `env:"DB_HOST,required"` // e.g. tcp(host:3306) or unix(/cloudsql/instance)
	DBName     string `env:"DB_NAME,required"`
	DBPort     string `env:"DB_PORT" envDefault:"3306"`

	InstanceConnectionName string `env:"INSTANCE_CONNECTION_NAME"`

	RedisAddr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	FirebaseProjectID string   `env:"FIREBASE_PROJECT_ID,required"`
	AdminEmails       []string `env:"ADMIN_EMAILS" envSeparator:","`

	StorageBucket string `env:"STORAGE_BUCKET"`

	// Reserved sender uid for system/broadcast messages.
	PlatformUID string `env:"PLATFORM_UID" envDefault:"platform"`

	// Cron expression for the GDPR erasure sweep.
	ErasureSchedule string `env:"ERASURE_SCHEDULE" envDefault:"@hourly"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
