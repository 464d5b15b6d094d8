package config

import "time"

type Config struct {
	AppName                       string   `env:"APP_NAME" env-default:"chorus-api"`
	Port                          int      `env:"PORT" env-default:"3004"`
	LogLevel                      string   `env:"LOG_LEVEL" env-default:"info"`
	PrettyLogs                    bool     `env:"PRETTY_LOGS" env-default:"false"`
	HttpServerWriteTimeoutSeconds int      `env:"HTTP_SERVER_WRITE_TIMEOUT_SECONDS" env-default:"10"`
	HttpServerReadTimeoutSeconds  int      `env:"HTTP_SERVER_READ_TIMEOUT_SECONDS" env-default:"10"`
	HttpServerIdleTimeoutSeconds  int      `env:"HTTP_SERVER_IDLE_TIMEOUT_SECONDS" env-default:"10"`
	MaxHeaderBytes                int      `env:"HTTP_SERVER_MAX_HEADER_BYTES" env-default:"64000"` // 64KB
	AllowOrigins                  []string `env:"HTTP_SERVER_ALLOW_ORIGINS" env-default:"*"`
	AllowMethods                  []string `env:"HTTP_SERVER_ALLOW_METHODS" env-default:"GET,POST,PUT,DELETE"`
	StartupMaxAttempts            int      `env:"STARTUP_MAX_ATTEMPTS" env-default:"5"`

	// PostgreSQL (canonical catalog store)
	DatabaseDriver              string        `env:"DB_DRIVER" env-default:"postgres"`
	DatabaseHost                string        `env:"DB_HOST" env-default:""`
	DatabasePort                string        `env:"DB_PORT" env-default:"5432"`
	DatabaseUserName            string        `env:"DB_USER_NAME" env-default:""`
	DatabasePassword            string        `env:"DB_PASSWORD" env-default:""`
	DatabaseName                string        `env:"DB_NAME" env-default:"chorus"`
	DatabaseSSLMode             string        `env:"DB_SQL_MODE" env-default:"disable"`
	DatabaseMaxOpenConns        int           `env:"DB_MAX_OPEN_CONNS" env-default:"25"`
	DatabaseMaxIdleConns        int           `env:"DB_MAX_IDLE_CONNS" env-default:"10"`
	DatabaseConnMaxLifetime     time.Duration `env:"DB_CONN_MAX_LIFETIME" env-default:"10s"`
	DatabaseMigrationFolderPath string        `env:"DB_MIGRATION_FOLDER_PATH" env-default:"db/pg"`
	DatabaseMigrationVersion    int           `env:"DB_MIGRATION_VERSION" env-default:"0"`
	DatabaseMigrationForce      int           `env:"DB_MIGRATION_FORCE" env-default:"0"`

	// Graph projection (Memgraph)
	GraphDBEnabled  bool   `env:"GRAPH_DB_ENABLED" env-default:"false"`
	GraphDBHost     string `env:"GRAPH_DB_HOST" env-default:"localhost"`
	GraphDBPort     int    `env:"GRAPH_DB_PORT" env-default:"7687"`
	GraphDBUser     string `env:"GRAPH_DB_USER" env-default:""`
	GraphDBPassword string `env:"GRAPH_DB_PASSWORD" env-default:""`
	GraphDBName     string `env:"GRAPH_DB_NAME" env-default:"memgraph"`
	GraphDBEncrypt  bool   `env:"GRAPH_DB_ENCRYPT" env-default:"false"`
	GraphDBMaxConns int    `env:"GRAPH_DB_MAX_CONNS" env-default:"25"`

	// Kafka Consumer (provider intake)
	KafkaBrokers         []string `env:"KAFKA_BROKERS" env-default:"localhost:9092"`
	KafkaIntakeTopic     string   `env:"KAFKA_INTAKE_TOPIC" env-default:"catalog-intake"`
	KafkaConsumerGroup   string   `env:"KAFKA_CONSUMER_GROUP" env-default:"chorus-consumer"`
	KafkaConsumerEnabled bool     `env:"KAFKA_CONSUMER_ENABLED" env-default:"true"`

	// Kafka Producer settings
	KafkaOutputTopic  string `env:"KAFKA_OUTPUT_TOPIC" env-default:"catalog-events"`
	KafkaBatchSize    int    `env:"KAFKA_BATCH_SIZE" env-default:"100"`
	KafkaBatchTimeout int    `env:"KAFKA_BATCH_TIMEOUT_MS" env-default:"100"`
	KafkaRequiredAcks int    `env:"KAFKA_REQUIRED_ACKS" env-default:"1"`
	KafkaCompression  string `env:"KAFKA_COMPRESSION" env-default:"snappy"`

	// Resolution thresholds
	HighSimilarityThreshold float64 `env:"HIGH_SIMILARITY_THRESHOLD" env-default:"0.90"`
	FeaturingBaseThreshold  float64 `env:"FEATURING_BASE_THRESHOLD" env-default:"0.95"`
	CreditNameThreshold     float64 `env:"CREDIT_NAME_THRESHOLD" env-default:"0.90"`
	MinCreditConfidence     float64 `env:"MIN_CREDIT_CONFIDENCE" env-default:"0.70"`

	// Merge policy
	AutoMergeExact          bool `env:"AUTO_MERGE_EXACT" env-default:"true"`
	AutoMergeHighConfidence bool `env:"AUTO_MERGE_HIGH_CONFIDENCE" env-default:"false"`

	// Album resolution
	AlbumTrackFloor int `env:"ALBUM_TRACK_FLOOR" env-default:"4"`

	// Credit sources, lowest rank wins ties ("source:rank" pairs)
	CreditSourcePriorities []string `env:"CREDIT_SOURCE_PRIORITIES" env-default:"genius_web:1,rapedia:1,genius_api:2,spotify:3,discogs:4,manual:6"`

	// Processing
	DetectBatchSize  int `env:"DETECT_BATCH_SIZE" env-default:"100"`
	MergeWorkerCount int `env:"MERGE_WORKER_COUNT" env-default:"4"`
}
