package storage

import (
	"context"
	"log"
	"time"

	"gorm.io/gorm"

	"github.com/Runetap54/edit-stream-manager-sub000/apperrors"
	"github.com/Runetap54/edit-stream-manager-sub000/models"
)

// DefaultGrantTTL is the lifetime of issued keyframe read URLs.
const DefaultGrantTTL = time.Hour

// Signer issues and refreshes signed access grants for a scene's
// keyframes and maintains the mirror-once cache of public copies.
type Signer struct {
	Storage *Client
	DB      *gorm.DB
	TTL     time.Duration
}

func NewSigner(storage *Client, db *gorm.DB) *Signer {
	return &Signer{Storage: storage, DB: db, TTL: DefaultGrantTTL}
}

// IsExpired reports whether a grant may no longer be used. Consumers
// must re-issue rather than retry with a stale URL.
func IsExpired(expiresAt time.Time) bool {
	return isExpiredAt(expiresAt, time.Now())
}

func isExpiredAt(expiresAt, now time.Time) bool {
	return !now.Before(expiresAt)
}

// Issue creates a signed read URL for an object in the private bucket.
// Issuance failure is fatal for the calling operation.
func (s *Signer) Issue(ctx context.Context, key string) (string, time.Time, error) {
	url, err := s.Storage.CreateSignedURL(ctx, key, s.TTL)
	if err != nil {
		return "", time.Time{}, err
	}
	return url, time.Now().Add(s.TTL), nil
}

// Attach issues grants for both keyframes and writes them onto the
// scene record.
func (s *Signer) Attach(ctx context.Context, scene *models.Scene) error {
	startURL, expiresAt, err := s.Issue(ctx, scene.StartKey)
	if err != nil {
		return err
	}
	scene.StartURL = startURL
	if scene.EndKey != nil {
		endURL, _, err := s.Issue(ctx, *scene.EndKey)
		if err != nil {
			return err
		}
		scene.EndURL = endURL
	}
	scene.URLExpiresAt = &expiresAt
	return s.DB.Model(scene).Updates(map[string]interface{}{
		"start_url":      scene.StartURL,
		"end_url":        scene.EndURL,
		"url_expires_at": scene.URLExpiresAt,
	}).Error
}

// Refresh re-issues a scene's keyframe URLs if the grant expired or is
// about to. A refresh failure is logged and leaves the previous URL in
// place; the next access retries.
func (s *Signer) Refresh(ctx context.Context, scene *models.Scene) {
	if err := s.Attach(ctx, scene); err != nil {
		log.Printf("signed URL refresh failed for scene %d: %v", scene.ID, err)
	}
}

// EnsurePublic returns a plainly dereferenceable URL for sourceKey,
// mirroring it into the public bucket on first use. The copy happens at
// most once per unique source object; later calls hit the cache.
func (s *Signer) EnsurePublic(ctx context.Context, sourceKey string) (string, error) {
	var mirror models.MediaMirror
	err := s.DB.First(&mirror, "source_key = ?", sourceKey).Error
	if err == nil {
		return mirror.PublicURL, nil
	}
	if err != gorm.ErrRecordNotFound {
		return "", apperrors.Wrap(apperrors.CodeServer, "mirror lookup failed", err)
	}

	publicKey := "mirrors/" + sourceKey
	if err := s.Storage.Copy(ctx, sourceKey, publicKey); err != nil {
		return "", apperrors.Wrap(apperrors.CodeServer, "mirror copy failed", err)
	}

	mirror = models.MediaMirror{
		SourceKey: sourceKey,
		PublicKey: publicKey,
		PublicURL: s.Storage.PublicURL(publicKey),
	}
	if err := s.DB.Create(&mirror).Error; err != nil {
		// Concurrent submitter mirrored the same object first; reuse its row.
		var existing models.MediaMirror
		if lookupErr := s.DB.First(&existing, "source_key = ?", sourceKey).Error; lookupErr == nil {
			return existing.PublicURL, nil
		}
		return "", apperrors.Wrap(apperrors.CodeServer, "record mirror failed", err)
	}
	return mirror.PublicURL, nil
}
