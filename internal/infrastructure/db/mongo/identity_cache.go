package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/aditi-updates/session-agent/internal/core/domain"
)

const identityCollection = "identity_cache"

// The agent mirrors a single browser profile, so the cache holds exactly
// one record under a fixed id.
const identityDocID = "current"

// IdentityCache persists the last authoritative identity record together
// with the time it was last verified against the platform.
type IdentityCache struct {
	coll *mongo.Collection
}

func NewIdentityCache(db *mongo.Database) *IdentityCache {
	return &IdentityCache{coll: db.Collection(identityCollection)}
}

type identityDoc struct {
	ID          string `bson:"_id"`
	UserID      string `bson:"user_id"`
	Email       string `bson:"email"`
	DisplayName string `bson:"display_name"`
	Role        string `bson:"role"`
	TeamID      string `bson:"team_id,omitempty"`
	TeamName    string `bson:"team_name,omitempty"`
	LastChecked int64  `bson:"last_checked"`
}

func (c *IdentityCache) Get(ctx context.Context) (*domain.Identity, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var doc identityDoc
	if err := c.coll.FindOne(ctx, bson.M{"_id": identityDocID}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrNoIdentity
		}
		return nil, fmt.Errorf("identity cache get: %w", err)
	}

	return &domain.Identity{
		ID:          doc.UserID,
		Email:       doc.Email,
		DisplayName: doc.DisplayName,
		Role:        doc.Role,
		TeamID:      doc.TeamID,
		TeamName:    doc.TeamName,
		LastChecked: unixToTime(doc.LastChecked),
	}, nil
}

// Put overwrites the cached record.
func (c *IdentityCache) Put(ctx context.Context, id *domain.Identity) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	doc := identityDoc{
		ID:          identityDocID,
		UserID:      id.ID,
		Email:       id.Email,
		DisplayName: id.DisplayName,
		Role:        id.Role,
		TeamID:      id.TeamID,
		TeamName:    id.TeamName,
		LastChecked: id.LastChecked.Unix(),
	}

	opts := options.Replace().SetUpsert(true)
	if _, err := c.coll.ReplaceOne(ctx, bson.M{"_id": identityDocID}, doc, opts); err != nil {
		return fmt.Errorf("identity cache put: %w", err)
	}
	return nil
}

func (c *IdentityCache) Delete(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	if _, err := c.coll.DeleteOne(ctx, bson.M{"_id": identityDocID}); err != nil {
		return fmt.Errorf("identity cache delete: %w", err)
	}
	return nil
}

func unixToTime(ts int64) time.Time {
	if ts == 0 {
		return time.Time{}
	}
	return time.Unix(ts, 0).UTC()
}
