package campaigns

import (
	"context"
	"sync"
)

// MemoryRepository keeps every collection in process memory behind a single RWMutex.
// Mutations are not rolled back when fn fails part-way, so Service performs all
// fallible preparation before entering Update.
type MemoryRepository struct {
	mu            sync.RWMutex
	campaignOrder []string
	campaigns     map[string]Campaign
	posts         map[string][]Post
	activities    *activityRing
}

// NewMemoryRepository constructs an empty repository whose activity log holds at most capacity entries.
func NewMemoryRepository(capacity int) (*MemoryRepository, error) {
	if capacity <= 0 {
		return nil, ErrInvalidCapacity
	}
	return &MemoryRepository{
		campaigns:  make(map[string]Campaign),
		posts:      make(map[string][]Post),
		activities: newActivityRing(capacity),
	}, nil
}

func (r *MemoryRepository) View(_ context.Context, fn func(Reader) error) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return fn(memoryTx{repository: r})
}

func (r *MemoryRepository) Update(_ context.Context, fn func(Writer) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return fn(memoryTx{repository: r})
}

type memoryTx struct {
	repository *MemoryRepository
}

func (tx memoryTx) ListCampaigns() ([]Campaign, error) {
	result := make([]Campaign, 0, len(tx.repository.campaignOrder))
	for _, campaignID := range tx.repository.campaignOrder {
		result = append(result, tx.repository.campaigns[campaignID])
	}
	return result, nil
}

func (tx memoryTx) FindCampaign(campaignID string) (Campaign, bool, error) {
	campaign, ok := tx.repository.campaigns[campaignID]
	return campaign, ok, nil
}

func (tx memoryTx) ListPosts(campaignID string) ([]Post, error) {
	bucket := tx.repository.posts[campaignID]
	result := make([]Post, len(bucket))
	copy(result, bucket)
	return result, nil
}

func (tx memoryTx) ListPostBuckets() (map[string][]Post, error) {
	result := make(map[string][]Post, len(tx.repository.posts))
	for campaignID, bucket := range tx.repository.posts {
		posts := make([]Post, len(bucket))
		copy(posts, bucket)
		result[campaignID] = posts
	}
	return result, nil
}

func (tx memoryTx) FindPost(campaignID, postID string) (Post, bool, error) {
	for _, post := range tx.repository.posts[campaignID] {
		if post.ID == postID {
			return post, true, nil
		}
	}
	return Post{}, false, nil
}

func (tx memoryTx) ListActivities() ([]Activity, error) {
	return tx.repository.activities.newestFirst(), nil
}

func (tx memoryTx) InsertCampaign(campaign Campaign) error {
	if _, exists := tx.repository.campaigns[campaign.ID]; !exists {
		tx.repository.campaignOrder = append(tx.repository.campaignOrder, campaign.ID)
	}
	tx.repository.campaigns[campaign.ID] = campaign
	if _, exists := tx.repository.posts[campaign.ID]; !exists {
		tx.repository.posts[campaign.ID] = nil
	}
	return nil
}

func (tx memoryTx) DeleteCampaign(campaignID string) error {
	if _, exists := tx.repository.campaigns[campaignID]; exists {
		delete(tx.repository.campaigns, campaignID)
		for index, candidate := range tx.repository.campaignOrder {
			if candidate == campaignID {
				tx.repository.campaignOrder = append(tx.repository.campaignOrder[:index], tx.repository.campaignOrder[index+1:]...)
				break
			}
		}
	}
	delete(tx.repository.posts, campaignID)
	return nil
}

func (tx memoryTx) InsertPost(post Post) error {
	tx.repository.posts[post.CampaignID] = append(tx.repository.posts[post.CampaignID], post)
	return nil
}

func (tx memoryTx) DeletePost(campaignID, postID string) error {
	bucket, exists := tx.repository.posts[campaignID]
	if !exists {
		return nil
	}
	filtered := bucket[:0]
	for _, post := range bucket {
		if post.ID != postID {
			filtered = append(filtered, post)
		}
	}
	tx.repository.posts[campaignID] = filtered
	return nil
}

func (tx memoryTx) AppendActivity(activity Activity) error {
	tx.repository.activities.push(activity)
	return nil
}
