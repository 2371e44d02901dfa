package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/go-semantic-release/asset-mirror/internal/discovery"
	"github.com/go-semantic-release/asset-mirror/internal/hasher"
	"github.com/google/go-github/v59/github"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"golang.org/x/oauth2"
)

// ConstrainedReleaseCap is the number of releases per repository that are
// mirrored in a constrained run.
const ConstrainedReleaseCap = 2

type MirrorConfig struct {
	Owner          string        `envconfig:"MIRROR_OWNER"`
	OwnerType      string        `envconfig:"MIRROR_OWNER_TYPE" default:"org"`
	GitHubToken    string        `envconfig:"GITHUB_TOKEN"`
	Root           string        `envconfig:"MIRROR_ROOT" default:"."`
	Constrained    bool          `envconfig:"MIRROR_CONSTRAINED"`
	MaxNewAssets   int           `envconfig:"MAX_NEW_ASSETS"`
	MaxAssetSize   int64         `envconfig:"MAX_ASSET_SIZE" default:"52428800"`
	Workers        int           `envconfig:"WORKERS" default:"1"`
	MaxAttempts    int           `envconfig:"DOWNLOAD_MAX_ATTEMPTS" default:"3"`
	RetryBaseDelay time.Duration `envconfig:"DOWNLOAD_RETRY_BASE_DELAY" default:"1s"`
	RetryMaxDelay  time.Duration `envconfig:"DOWNLOAD_RETRY_MAX_DELAY" default:"30s"`
	Timeout        time.Duration `envconfig:"DOWNLOAD_TIMEOUT" default:"5m"`
	HashAlgorithms []string      `envconfig:"HASH_ALGORITHMS" default:"sha256,sha512,md5"`

	PublishBucket          string `envconfig:"PUBLISH_BUCKET"`
	PublishPrefix          string `envconfig:"PUBLISH_PREFIX"`
	PublishEndpoint        string `envconfig:"PUBLISH_ENDPOINT"`
	PublishRegion          string `envconfig:"PUBLISH_REGION" default:"auto"`
	PublishAccessKeyID     string `envconfig:"PUBLISH_ACCESS_KEY_ID"`
	PublishSecretAccessKey string `envconfig:"PUBLISH_SECRET_ACCESS_KEY"`
	CloudflareAccountID    string `envconfig:"CLOUDFLARE_ACCOUNT_ID"`
}

// loadDotEnv loads a .env file from the working directory. Variables that are
// already set are not overridden.
func loadDotEnv() error {
	if _, err := os.Stat(".env"); err != nil {
		return nil
	}
	return godotenv.Load()
}

func NewMirrorConfigFromEnv() (*MirrorConfig, error) {
	if err := loadDotEnv(); err != nil {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}
	var mCfg MirrorConfig
	if err := envconfig.Process("", &mCfg); err != nil {
		return nil, err
	}
	return &mCfg, nil
}

func (m *MirrorConfig) Validate() error {
	var errs []error
	switch strings.ToLower(m.OwnerType) {
	case discovery.OwnerTypeOrg, discovery.OwnerTypeUser:
	default:
		errs = append(errs, fmt.Errorf("invalid owner type %q", m.OwnerType))
	}
	if m.MaxNewAssets < 0 {
		errs = append(errs, errors.New("max new assets must not be negative"))
	}
	if m.MaxAssetSize <= 0 {
		errs = append(errs, errors.New("max asset size must be positive"))
	}
	if m.Workers < 1 {
		errs = append(errs, errors.New("workers must be at least 1"))
	}
	if m.MaxAttempts < 1 {
		errs = append(errs, errors.New("download attempts must be at least 1"))
	}
	if _, err := m.Algorithms(); err != nil {
		errs = append(errs, err)
	}
	if m.PublishEnabled() && (m.PublishAccessKeyID == "" || m.PublishSecretAccessKey == "") {
		errs = append(errs, errors.New("publishing requires PUBLISH_ACCESS_KEY_ID and PUBLISH_SECRET_ACCESS_KEY"))
	}
	if m.PublishEnabled() && m.PublishEndpoint == "" && m.CloudflareAccountID == "" {
		errs = append(errs, errors.New("publishing requires PUBLISH_ENDPOINT or CLOUDFLARE_ACCOUNT_ID"))
	}
	return errors.Join(errs...)
}

// ValidateSync additionally checks the settings needed to contact GitHub.
func (m *MirrorConfig) ValidateSync() error {
	if m.Owner == "" {
		return errors.Join(errors.New("MIRROR_OWNER is required"), m.Validate())
	}
	return m.Validate()
}

// ReleaseCap returns the number of releases per repository to mirror, zero
// meaning all of them.
func (m *MirrorConfig) ReleaseCap() int {
	if m.Constrained {
		return ConstrainedReleaseCap
	}
	return 0
}

func (m *MirrorConfig) Algorithms() ([]hasher.Algorithm, error) {
	algs := make([]hasher.Algorithm, 0, len(m.HashAlgorithms))
	for _, name := range m.HashAlgorithms {
		a, err := hasher.Lookup(strings.TrimSpace(name))
		if err != nil {
			return nil, err
		}
		algs = append(algs, a)
	}
	return algs, nil
}

func (m *MirrorConfig) CreateGitHubClient() *github.Client {
	if m.GitHubToken == "" {
		return github.NewClient(nil)
	}
	oauthClient := oauth2.NewClient(context.Background(), oauth2.StaticTokenSource(&oauth2.Token{AccessToken: m.GitHubToken}))
	return github.NewClient(oauthClient)
}

func (m *MirrorConfig) PublishEnabled() bool {
	return m.PublishBucket != ""
}

func (m *MirrorConfig) publishEndpoint() string {
	if m.PublishEndpoint != "" {
		return m.PublishEndpoint
	}
	return fmt.Sprintf("https://%s.r2.cloudflarestorage.com", m.CloudflareAccountID)
}

func (m *MirrorConfig) CreateS3Client(ctx context.Context) (*s3.Client, error) {
	staticCredentialsProvider := credentials.NewStaticCredentialsProvider(
		m.PublishAccessKeyID,
		m.PublishSecretAccessKey,
		"",
	)
	s3Cfg, err := awsConfig.LoadDefaultConfig(ctx,
		awsConfig.WithRegion(m.PublishRegion),
		awsConfig.WithCredentialsProvider(staticCredentialsProvider),
	)
	if err != nil {
		return nil, err
	}
	return s3.NewFromConfig(s3Cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(m.publishEndpoint())
		o.UsePathStyle = m.PublishEndpoint != ""
	}), nil
}
