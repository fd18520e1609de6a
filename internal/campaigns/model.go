package campaigns

import (
	"errors"
	"time"
)

// ActivityType enumerates the domain events recorded in the activity log.
type ActivityType string

const (
	// ActivityCampaignCreated is recorded when a campaign is stored.
	ActivityCampaignCreated ActivityType = "campaign_created"
	// ActivityCampaignDeleted is recorded when an existing campaign is removed.
	ActivityCampaignDeleted ActivityType = "campaign_deleted"
	// ActivityPostCreated is recorded when a post is stored under a campaign.
	ActivityPostCreated ActivityType = "post_created"
	// ActivityPostDeleted is recorded when an existing post is removed.
	ActivityPostDeleted ActivityType = "post_deleted"
)

// DefaultActivityCapacity bounds the activity log when no capacity is configured.
const DefaultActivityCapacity = 50

var (
	// ErrCampaignNotFound indicates that no campaign matches the supplied identifier.
	ErrCampaignNotFound = errors.New("campaigns: campaign not found")
	// ErrInvalidCapacity indicates a non-positive activity log capacity.
	ErrInvalidCapacity = errors.New("campaigns: activity capacity must be positive")
)

// Campaign is a named marketing effort owning zero or more posts.
type Campaign struct {
	ID        string
	Name      string
	Goal      string
	StartDate string
	EndDate   string
	CreatedAt time.Time
}

// CampaignFields carries the caller-supplied campaign attributes.
type CampaignFields struct {
	Name      string
	Goal      string
	StartDate string
	EndDate   string
}

// Post is a scheduled social-media item belonging to one campaign.
type Post struct {
	ID           string
	CampaignID   string
	Platform     string
	Caption      string
	ScheduleDate string
}

// PostFields carries the caller-supplied post attributes.
type PostFields struct {
	Platform     string
	Caption      string
	ScheduleDate string
}

// Activity is an immutable snapshot of a single create or delete event.
// Name and platform are captured at event time and never re-resolved.
type Activity struct {
	ID           string
	Type         ActivityType
	CampaignID   string
	CampaignName string
	PostID       string
	Platform     string
	Timestamp    time.Time
}

// Snapshot is a consistent read of every collection at one point in time.
type Snapshot struct {
	Campaigns  []Campaign
	Posts      map[string][]Post
	Activities []Activity
}
