// Package config loads pipeline settings from an optional YAML file and the
// environment, with defaults that make a local run work out of the box.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Reddit holds the API credentials. ClientID and ClientSecret have no
// defaults and normally arrive through the environment.
type Reddit struct {
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	UserAgent    string `mapstructure:"user_agent"`
}

// Mongo locates the document store.
type Mongo struct {
	URI                string `mapstructure:"uri"`
	Database           string `mapstructure:"database"`
	PostsCollection    string `mapstructure:"posts_collection"`
	CommentsCollection string `mapstructure:"comments_collection"`
	BatchSize          int    `mapstructure:"batch_size"`
}

// ETL controls what a run extracts and how fast.
type ETL struct {
	Subreddits       []string `mapstructure:"subreddits"`
	Sort             string   `mapstructure:"sort"`
	PostLimit        int      `mapstructure:"post_limit"`
	FetchComments    bool     `mapstructure:"fetch_comments"`
	ReplaceMoreLimit int      `mapstructure:"replace_more_limit"`
	MaxCommentDepth  int      `mapstructure:"max_comment_depth"`

	RequestsPerMinute int `mapstructure:"requests_per_minute"`
	MaxAttempts       int `mapstructure:"max_attempts"`

	DelayBetweenSubreddits time.Duration `mapstructure:"delay_between_subreddits"`
	DelayBetweenPosts      time.Duration `mapstructure:"delay_between_posts"`
}

// Checkpoint selects where run progress is persisted. A non-empty Bucket
// switches from the local file to cloud storage.
type Checkpoint struct {
	Path   string `mapstructure:"path"`
	Bucket string `mapstructure:"bucket"`
	Object string `mapstructure:"object"`
}

// Config is the full pipeline configuration.
type Config struct {
	Reddit     Reddit     `mapstructure:"reddit"`
	Mongo      Mongo      `mapstructure:"mongo"`
	ETL        ETL        `mapstructure:"etl"`
	Checkpoint Checkpoint `mapstructure:"checkpoint"`
}

// Load reads config.yaml from the working directory if present, overlays
// environment variables, and fills in defaults. A missing config file is
// fine; a malformed one is not.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Credentials and deployment-specific settings come from the
	// environment in production.
	bind := func(key, env string) {
		if err := v.BindEnv(key, env); err != nil {
			panic(fmt.Sprintf("bind %s: %v", key, err))
		}
	}
	bind("reddit.client_id", "REDDIT_CLIENT_ID")
	bind("reddit.client_secret", "REDDIT_CLIENT_SECRET")
	bind("reddit.user_agent", "REDDIT_USER_AGENT")
	bind("mongo.uri", "MONGO_URI")
	bind("checkpoint.bucket", "CHECKPOINT_BUCKET")
	bind("checkpoint.path", "CHECKPOINT_PATH")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

// Validate reports settings a run cannot proceed without.
func (c *Config) Validate() error {
	if c.Reddit.ClientID == "" || c.Reddit.ClientSecret == "" {
		return errors.New("reddit credentials missing: set REDDIT_CLIENT_ID and REDDIT_CLIENT_SECRET")
	}
	if len(c.ETL.Subreddits) == 0 {
		return errors.New("no subreddits configured")
	}
	if c.ETL.RequestsPerMinute <= 0 {
		return errors.New("requests_per_minute must be positive")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("reddit.user_agent", "reddit-etl/1.0")

	v.SetDefault("mongo.uri", "mongodb://localhost:27017")
	v.SetDefault("mongo.database", "reddit_data_lake")
	v.SetDefault("mongo.posts_collection", "posts")
	v.SetDefault("mongo.comments_collection", "comments")
	v.SetDefault("mongo.batch_size", 100)

	v.SetDefault("etl.subreddits", []string{"computerscience"})
	v.SetDefault("etl.sort", "hot")
	v.SetDefault("etl.post_limit", 100)
	v.SetDefault("etl.fetch_comments", true)
	v.SetDefault("etl.replace_more_limit", -1)
	v.SetDefault("etl.max_comment_depth", -1)
	v.SetDefault("etl.requests_per_minute", 60)
	v.SetDefault("etl.max_attempts", 3)
	v.SetDefault("etl.delay_between_subreddits", 2*time.Second)
	v.SetDefault("etl.delay_between_posts", time.Second)

	v.SetDefault("checkpoint.path", "checkpoint.json")
	v.SetDefault("checkpoint.object", "checkpoint.json")
}
