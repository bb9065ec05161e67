package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/qntmpulse/relationship-engine/internal/config"
	"github.com/qntmpulse/relationship-engine/internal/domain"
)

// StateSnapshot is the serialized engine state written to S3.
type StateSnapshot struct {
	TakenAt      time.Time                     `json:"taken_at"`
	Profiles     []*domain.RelationshipProfile `json:"profiles"`
	Leads        []*domain.LeadScore           `json:"leads"`
	Alerts       []*domain.RelationshipAlert   `json:"alerts"`
	Suppressions []string                      `json:"suppressions"`
}

// SnapshotStore persists state snapshots to S3.
type SnapshotStore struct {
	s3Client *s3.Client
	bucket   string
	prefix   string
}

// NewSnapshotStore creates an S3-backed snapshot store.
func NewSnapshotStore(ctx context.Context, cfg config.SnapshotConfig) (*SnapshotStore, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
	)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	return &SnapshotStore{
		s3Client: s3.NewFromConfig(awsCfg),
		bucket:   cfg.S3Bucket,
		prefix:   cfg.S3Prefix,
	}, nil
}

// SaveState writes the snapshot to the well-known latest key and a
// dated archive key.
func (s *SnapshotStore) SaveState(ctx context.Context, snap *StateSnapshot) error {
	if err := s.putJSON(ctx, s.latestKey(), snap); err != nil {
		return err
	}
	archiveKey := fmt.Sprintf("%s/archive/%s.json", s.prefix, snap.TakenAt.Format("2006-01-02T15-04-05"))
	return s.putJSON(ctx, archiveKey, snap)
}

// LoadState reads the latest snapshot.
func (s *SnapshotStore) LoadState(ctx context.Context) (*StateSnapshot, error) {
	var snap StateSnapshot
	if err := s.getJSON(ctx, s.latestKey(), &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

func (s *SnapshotStore) latestKey() string {
	return fmt.Sprintf("%s/state/latest.json", s.prefix)
}

func (s *SnapshotStore) putJSON(ctx context.Context, key string, data interface{}) error {
	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling snapshot: %w", err)
	}

	_, err = s.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(jsonData),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("putting object to S3: %w", err)
	}

	return nil
}

func (s *SnapshotStore) getJSON(ctx context.Context, key string, target interface{}) error {
	result, err := s.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("getting object from S3: %w", err)
	}
	defer result.Body.Close()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		return fmt.Errorf("reading S3 object body: %w", err)
	}

	if err := json.Unmarshal(data, target); err != nil {
		return fmt.Errorf("unmarshaling snapshot: %w", err)
	}

	return nil
}
