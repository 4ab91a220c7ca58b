package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// WithEnv applies environment variable overrides using the provided prefix.
//
// Environment variable mapping:
//
//	PORT, ENVIRONMENT
//	DATABASE_URL  - "memory" (default) or "postgres://..." / "postgresql://..."
//	STORAGE_URL   - "memory://" (default), "file:///path", or
//	                "s3://originals-bucket,assets-bucket"
//	PRESIGN_TTL   - Go duration for presigned URL validity
//	BUS_URL       - "inprocess://" (default) or
//	                "kafka://host:9092,host2:9092/topic"
//	KAFKA_GROUP_ID, SCRATCH_DIR
//
// S3 credentials come from AWS_REGION, AWS_ACCESS_KEY_ID,
// AWS_SECRET_ACCESS_KEY, AWS_S3_ENDPOINT, AWS_S3_USE_PATH_STYLE.
func WithEnv(prefix string) Option {
	return func(c *ServerConfig) error {
		if v, ok := lookupEnv(prefix, "PORT"); ok && v != "" {
			c.Port = v
		}
		if v, ok := lookupEnv(prefix, "ENVIRONMENT"); ok && v != "" {
			c.Environment = v
		}
		if v, ok := lookupEnv(prefix, "SCRATCH_DIR"); ok && v != "" {
			c.ScratchDir = v
		}
		if v, ok := lookupEnv(prefix, "PRESIGN_TTL"); ok && v != "" {
			ttl, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("invalid PRESIGN_TTL: %w", err)
			}
			c.PresignTTL = ttl
		}
		if err := applyDatabaseEnv(prefix, c); err != nil {
			return err
		}
		if err := applyStorageEnv(prefix, c); err != nil {
			return err
		}
		return applyBusEnv(prefix, c)
	}
}

func applyDatabaseEnv(prefix string, c *ServerConfig) error {
	dbURL, ok := lookupEnv(prefix, "DATABASE_URL")
	if !ok || dbURL == "" || dbURL == "memory" {
		c.DatabaseType = "memory"
		c.DatabaseURL = ""
		return nil
	}
	if strings.HasPrefix(dbURL, "postgres://") || strings.HasPrefix(dbURL, "postgresql://") {
		c.DatabaseType = "postgres"
		c.DatabaseURL = dbURL
		return nil
	}
	return fmt.Errorf("unsupported DATABASE_URL format: %s (use 'memory' or 'postgresql://...')", dbURL)
}

func applyStorageEnv(prefix string, c *ServerConfig) error {
	storageURL, ok := lookupEnv(prefix, "STORAGE_URL")
	if !ok || storageURL == "" || storageURL == "memory" || storageURL == "memory://" {
		c.StorageType = "memory"
		return nil
	}

	if path, found := strings.CutPrefix(storageURL, "file://"); found {
		if path == "" {
			return fmt.Errorf("filesystem path cannot be empty in STORAGE_URL")
		}
		c.StorageType = "fs"
		c.FSBaseDir = path
		if v, ok := lookupEnv(prefix, "ASSET_URL_PREFIX"); ok {
			c.FSURLPrefix = v
		}
		return nil
	}

	if buckets, found := strings.CutPrefix(storageURL, "s3://"); found {
		names := strings.SplitN(buckets, ",", 2)
		if len(names) != 2 || names[0] == "" || names[1] == "" {
			return fmt.Errorf("s3 STORAGE_URL needs two buckets: s3://originals,assets")
		}
		c.StorageType = "s3"
		c.OriginalsBucket = names[0]
		c.AssetsBucket = names[1]
		if v, ok := lookupEnv("", "AWS_REGION"); ok && v != "" {
			c.S3Region = v
		}
		if v, ok := lookupEnv("", "AWS_ACCESS_KEY_ID"); ok && v != "" {
			c.S3AccessKeyID = v
		}
		if v, ok := lookupEnv("", "AWS_SECRET_ACCESS_KEY"); ok && v != "" {
			c.S3SecretKey = v
		}
		if v, ok := lookupEnv("", "AWS_S3_ENDPOINT"); ok && v != "" {
			c.S3Endpoint = v
		}
		if v, ok := lookupEnv("", "AWS_S3_USE_PATH_STYLE"); ok && v != "" {
			c.S3UsePathStyle = v == "true" || v == "1"
		}
		return nil
	}

	return fmt.Errorf("unsupported STORAGE_URL format: %s (use 'memory://', 'file://...', or 's3://originals,assets')", storageURL)
}

func applyBusEnv(prefix string, c *ServerConfig) error {
	busURL, ok := lookupEnv(prefix, "BUS_URL")
	if !ok || busURL == "" || busURL == "inprocess" || busURL == "inprocess://" {
		c.BusType = "inprocess"
		return nil
	}

	if rest, found := strings.CutPrefix(busURL, "kafka://"); found {
		brokers, topic, found := strings.Cut(rest, "/")
		if !found || brokers == "" || topic == "" {
			return fmt.Errorf("kafka BUS_URL needs brokers and topic: kafka://host:9092/topic")
		}
		c.BusType = "kafka"
		c.KafkaBrokers = strings.Split(brokers, ",")
		c.KafkaTopic = topic
		if v, ok := lookupEnv(prefix, "KAFKA_GROUP_ID"); ok && v != "" {
			c.KafkaGroupID = v
		}
		return nil
	}

	return fmt.Errorf("unsupported BUS_URL format: %s (use 'inprocess://' or 'kafka://host:9092/topic')", busURL)
}

func lookupEnv(prefix, key string) (string, bool) {
	return os.LookupEnv(prefix + key)
}
