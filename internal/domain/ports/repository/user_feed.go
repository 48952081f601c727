package repository

import (
	"context"

	"snipr-audio/internal/domain/model"
)

type UserFeedRepository interface {
	// FindByOwner loads the feed with all of its entries.
	FindByOwner(ctx context.Context, tx Tx, ownerID string) (*model.UserFeed, error)
	// Create fails with domain.ErrAlreadyExists if the owner already has a feed.
	Create(ctx context.Context, tx Tx, feed *model.UserFeed) error
	// AppendEntry adds the entry to its owner's feed. A duplicate guid is
	// ignored and reported with inserted=false.
	AppendEntry(ctx context.Context, tx Tx, entry *model.FeedEntry) (inserted bool, err error)
	UpdateFeedID(ctx context.Context, tx Tx, ownerID, feedID string) error
}
