package campaigns

import "context"

// Repository holds campaigns, posts and the activity log. Every call to View or
// Update runs fn as one unit: readers never observe a partially applied Update.
type Repository interface {
	View(ctx context.Context, fn func(Reader) error) error
	Update(ctx context.Context, fn func(Writer) error) error
}

// Reader exposes the read side of a repository transaction.
type Reader interface {
	// ListCampaigns returns campaigns in insertion order.
	ListCampaigns() ([]Campaign, error)
	FindCampaign(campaignID string) (Campaign, bool, error)
	// ListPosts returns the posts stored under campaignID in insertion order.
	ListPosts(campaignID string) ([]Post, error)
	FindPost(campaignID, postID string) (Post, bool, error)
	// ListPostBuckets returns every post bucket keyed by campaign id, orphans included.
	ListPostBuckets() (map[string][]Post, error)
	// ListActivities returns the activity log newest first.
	ListActivities() ([]Activity, error)
}

// Writer exposes the mutating side of a repository transaction.
type Writer interface {
	Reader
	InsertCampaign(campaign Campaign) error
	// DeleteCampaign removes the campaign and every post stored under its id.
	DeleteCampaign(campaignID string) error
	InsertPost(post Post) error
	DeletePost(campaignID, postID string) error
	// AppendActivity records activity as the newest entry and evicts the oldest
	// entries beyond the repository capacity.
	AppendActivity(activity Activity) error
}
