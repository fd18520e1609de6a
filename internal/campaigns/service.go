package campaigns

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

var (
	errMissingRepository = errors.New("repository is required")
	errMissingIDProvider = errors.New("id provider is required")
	noOpLogger           = zap.NewNop()
)

type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

func (e *ServiceError) Code() string {
	return e.code
}

const (
	opServiceNew      = "campaigns.service.new"
	opListCampaigns   = "campaigns.list_campaigns"
	opGetCampaign     = "campaigns.get_campaign"
	opCreateCampaign  = "campaigns.create_campaign"
	opDeleteCampaign  = "campaigns.delete_campaign"
	opListPosts       = "campaigns.list_posts"
	opCreatePost      = "campaigns.create_post"
	opDeletePost      = "campaigns.delete_post"
	opListActivities  = "campaigns.list_activities"
	opSnapshot        = "campaigns.snapshot"
	opSeed            = "campaigns.seed"
	fieldCampaignID   = "campaign_id"
	fieldPostID       = "post_id"
	reasonMissingRepo = "missing_repository"
	reasonMissingIDs  = "missing_id_provider"
	reasonIDFailed    = "id_generation_failed"
	reasonQueryFailed = "query_failed"
	reasonWriteFailed = "write_failed"
	reasonNotFound    = "campaign_not_found"
)

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}

// ActivityNotifier receives every activity entry after the mutation that produced it commits.
// Implementations must not block.
type ActivityNotifier interface {
	NotifyActivity(activity Activity)
}

type IDProvider interface {
	NewID() (string, error)
}

type ServiceConfig struct {
	Repository Repository
	Clock      func() time.Time
	IDProvider IDProvider
	Notifiers  []ActivityNotifier
	// StrictReferences rejects posts whose campaign does not exist with ErrCampaignNotFound.
	StrictReferences bool
	Logger           *zap.Logger
}

// Service is the store context shared by every request handler.
// Mutations are serialised so notifiers observe activity in log order.
type Service struct {
	mutations        sync.Mutex
	repository       Repository
	clock            func() time.Time
	idProvider       IDProvider
	notifiers        []ActivityNotifier
	strictReferences bool
	postSequence     atomic.Int64
	logger           *zap.Logger
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Repository == nil {
		return nil, newServiceError(opServiceNew, reasonMissingRepo, errMissingRepository)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	if cfg.IDProvider == nil {
		return nil, newServiceError(opServiceNew, reasonMissingIDs, errMissingIDProvider)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	notifiers := make([]ActivityNotifier, 0, len(cfg.Notifiers))
	for _, notifier := range cfg.Notifiers {
		if notifier != nil {
			notifiers = append(notifiers, notifier)
		}
	}

	return &Service{
		repository:       cfg.Repository,
		clock:            clock,
		idProvider:       cfg.IDProvider,
		notifiers:        notifiers,
		strictReferences: cfg.StrictReferences,
		logger:           logger,
	}, nil
}

// ListCampaigns returns every campaign in insertion order.
func (s *Service) ListCampaigns(ctx context.Context) ([]Campaign, error) {
	if s.repository == nil {
		s.logError(opListCampaigns, reasonMissingRepo, errMissingRepository)
		return nil, newServiceError(opListCampaigns, reasonMissingRepo, errMissingRepository)
	}

	var campaigns []Campaign
	err := s.repository.View(ctx, func(tx Reader) error {
		var err error
		campaigns, err = tx.ListCampaigns()
		return err
	})
	if err != nil {
		s.logError(opListCampaigns, reasonQueryFailed, err)
		return nil, newServiceError(opListCampaigns, reasonQueryFailed, err)
	}
	return campaigns, nil
}

// GetCampaign returns the campaign with the given identifier or ErrCampaignNotFound.
func (s *Service) GetCampaign(ctx context.Context, campaignID string) (Campaign, error) {
	if s.repository == nil {
		s.logError(opGetCampaign, reasonMissingRepo, errMissingRepository)
		return Campaign{}, newServiceError(opGetCampaign, reasonMissingRepo, errMissingRepository)
	}

	var (
		campaign Campaign
		found    bool
	)
	err := s.repository.View(ctx, func(tx Reader) error {
		var err error
		campaign, found, err = tx.FindCampaign(campaignID)
		return err
	})
	if err != nil {
		s.logError(opGetCampaign, reasonQueryFailed, err, zap.String(fieldCampaignID, campaignID))
		return Campaign{}, newServiceError(opGetCampaign, reasonQueryFailed, err)
	}
	if !found {
		return Campaign{}, newServiceError(opGetCampaign, reasonNotFound, ErrCampaignNotFound)
	}
	return campaign, nil
}

// CreateCampaign stores a campaign under a fresh identifier and records campaign_created.
// Fields are stored as supplied; empty values are not rejected.
func (s *Service) CreateCampaign(ctx context.Context, fields CampaignFields) (Campaign, error) {
	if s.repository == nil {
		s.logError(opCreateCampaign, reasonMissingRepo, errMissingRepository)
		return Campaign{}, newServiceError(opCreateCampaign, reasonMissingRepo, errMissingRepository)
	}

	s.mutations.Lock()
	defer s.mutations.Unlock()

	campaignID, err := s.newID(opCreateCampaign)
	if err != nil {
		return Campaign{}, err
	}
	activityID, err := s.newID(opCreateCampaign)
	if err != nil {
		return Campaign{}, err
	}

	var (
		campaign Campaign
		activity Activity
	)
	err = s.repository.Update(ctx, func(tx Writer) error {
		now := s.now()
		campaign = Campaign{
			ID:        campaignID,
			Name:      fields.Name,
			Goal:      fields.Goal,
			StartDate: fields.StartDate,
			EndDate:   fields.EndDate,
			CreatedAt: now,
		}
		if err := tx.InsertCampaign(campaign); err != nil {
			return err
		}
		activity = Activity{
			ID:           activityID,
			Type:         ActivityCampaignCreated,
			CampaignID:   campaignID,
			CampaignName: fields.Name,
			Timestamp:    now,
		}
		return tx.AppendActivity(activity)
	})
	if err != nil {
		s.logError(opCreateCampaign, reasonWriteFailed, err, zap.String(fieldCampaignID, campaignID))
		return Campaign{}, newServiceError(opCreateCampaign, reasonWriteFailed, err)
	}

	s.notify(activity)
	return campaign, nil
}

// DeleteCampaign removes the campaign together with all of its posts. Unknown
// identifiers are a no-op, including orphan posts filed under them; the result
// is always true when err is nil.
func (s *Service) DeleteCampaign(ctx context.Context, campaignID string) (bool, error) {
	if s.repository == nil {
		s.logError(opDeleteCampaign, reasonMissingRepo, errMissingRepository)
		return false, newServiceError(opDeleteCampaign, reasonMissingRepo, errMissingRepository)
	}

	s.mutations.Lock()
	defer s.mutations.Unlock()

	activityID, err := s.newID(opDeleteCampaign)
	if err != nil {
		return false, err
	}

	var activity *Activity
	err = s.repository.Update(ctx, func(tx Writer) error {
		campaign, found, err := tx.FindCampaign(campaignID)
		if err != nil {
			return err
		}
		if !found {
			return nil
		}
		activity = &Activity{
			ID:           activityID,
			Type:         ActivityCampaignDeleted,
			CampaignID:   campaignID,
			CampaignName: campaign.Name,
			Timestamp:    s.now(),
		}
		if err := tx.AppendActivity(*activity); err != nil {
			return err
		}
		return tx.DeleteCampaign(campaignID)
	})
	if err != nil {
		s.logError(opDeleteCampaign, reasonWriteFailed, err, zap.String(fieldCampaignID, campaignID))
		return false, newServiceError(opDeleteCampaign, reasonWriteFailed, err)
	}

	if activity != nil {
		s.notify(*activity)
	}
	return true, nil
}

// ListPosts returns the posts of a campaign in insertion order. Unknown campaigns yield an empty slice.
func (s *Service) ListPosts(ctx context.Context, campaignID string) ([]Post, error) {
	if s.repository == nil {
		s.logError(opListPosts, reasonMissingRepo, errMissingRepository)
		return nil, newServiceError(opListPosts, reasonMissingRepo, errMissingRepository)
	}

	var posts []Post
	err := s.repository.View(ctx, func(tx Reader) error {
		var err error
		posts, err = tx.ListPosts(campaignID)
		return err
	})
	if err != nil {
		s.logError(opListPosts, reasonQueryFailed, err, zap.String(fieldCampaignID, campaignID))
		return nil, newServiceError(opListPosts, reasonQueryFailed, err)
	}
	if posts == nil {
		posts = []Post{}
	}
	return posts, nil
}

// CreatePost stores a post under campaignID and records post_created with the
// campaign name resolved at this moment. An unknown campaign is accepted unless
// the service runs with strict references.
func (s *Service) CreatePost(ctx context.Context, campaignID string, fields PostFields) (Post, error) {
	if s.repository == nil {
		s.logError(opCreatePost, reasonMissingRepo, errMissingRepository)
		return Post{}, newServiceError(opCreatePost, reasonMissingRepo, errMissingRepository)
	}

	s.mutations.Lock()
	defer s.mutations.Unlock()

	activityID, err := s.newID(opCreatePost)
	if err != nil {
		return Post{}, err
	}

	var (
		post     Post
		activity Activity
	)
	err = s.repository.Update(ctx, func(tx Writer) error {
		campaign, found, err := tx.FindCampaign(campaignID)
		if err != nil {
			return err
		}
		if !found && s.strictReferences {
			return ErrCampaignNotFound
		}
		post = Post{
			ID:           s.nextPostID(campaignID),
			CampaignID:   campaignID,
			Platform:     fields.Platform,
			Caption:      fields.Caption,
			ScheduleDate: fields.ScheduleDate,
		}
		if err := tx.InsertPost(post); err != nil {
			return err
		}
		activity = Activity{
			ID:           activityID,
			Type:         ActivityPostCreated,
			CampaignID:   campaignID,
			CampaignName: campaign.Name,
			PostID:       post.ID,
			Platform:     post.Platform,
			Timestamp:    s.now(),
		}
		return tx.AppendActivity(activity)
	})
	if errors.Is(err, ErrCampaignNotFound) {
		return Post{}, newServiceError(opCreatePost, reasonNotFound, err)
	}
	if err != nil {
		s.logError(opCreatePost, reasonWriteFailed, err, zap.String(fieldCampaignID, campaignID))
		return Post{}, newServiceError(opCreatePost, reasonWriteFailed, err)
	}

	s.notify(activity)
	return post, nil
}

// DeletePost removes a post from its campaign. Missing campaigns or posts are a
// no-op; the result is always true when err is nil.
func (s *Service) DeletePost(ctx context.Context, campaignID, postID string) (bool, error) {
	if s.repository == nil {
		s.logError(opDeletePost, reasonMissingRepo, errMissingRepository)
		return false, newServiceError(opDeletePost, reasonMissingRepo, errMissingRepository)
	}

	s.mutations.Lock()
	defer s.mutations.Unlock()

	activityID, err := s.newID(opDeletePost)
	if err != nil {
		return false, err
	}

	var activity *Activity
	err = s.repository.Update(ctx, func(tx Writer) error {
		post, found, err := tx.FindPost(campaignID, postID)
		if err != nil || !found {
			return err
		}
		campaign, _, err := tx.FindCampaign(campaignID)
		if err != nil {
			return err
		}
		activity = &Activity{
			ID:           activityID,
			Type:         ActivityPostDeleted,
			CampaignID:   campaignID,
			CampaignName: campaign.Name,
			PostID:       post.ID,
			Platform:     post.Platform,
			Timestamp:    s.now(),
		}
		if err := tx.AppendActivity(*activity); err != nil {
			return err
		}
		return tx.DeletePost(campaignID, postID)
	})
	if err != nil {
		s.logError(opDeletePost, reasonWriteFailed, err,
			zap.String(fieldCampaignID, campaignID),
			zap.String(fieldPostID, postID))
		return false, newServiceError(opDeletePost, reasonWriteFailed, err)
	}

	if activity != nil {
		s.notify(*activity)
	}
	return true, nil
}

// ListActivities returns the activity log newest first.
func (s *Service) ListActivities(ctx context.Context) ([]Activity, error) {
	if s.repository == nil {
		s.logError(opListActivities, reasonMissingRepo, errMissingRepository)
		return nil, newServiceError(opListActivities, reasonMissingRepo, errMissingRepository)
	}

	var activities []Activity
	err := s.repository.View(ctx, func(tx Reader) error {
		var err error
		activities, err = tx.ListActivities()
		return err
	})
	if err != nil {
		s.logError(opListActivities, reasonQueryFailed, err)
		return nil, newServiceError(opListActivities, reasonQueryFailed, err)
	}
	if activities == nil {
		activities = []Activity{}
	}
	return activities, nil
}

// Snapshot reads campaigns, every post bucket and the activity log in a single view.
// Buckets of orphan posts are included alongside those of existing campaigns.
func (s *Service) Snapshot(ctx context.Context) (Snapshot, error) {
	if s.repository == nil {
		s.logError(opSnapshot, reasonMissingRepo, errMissingRepository)
		return Snapshot{}, newServiceError(opSnapshot, reasonMissingRepo, errMissingRepository)
	}

	var snapshot Snapshot
	err := s.repository.View(ctx, func(tx Reader) error {
		campaigns, err := tx.ListCampaigns()
		if err != nil {
			return err
		}
		buckets, err := tx.ListPostBuckets()
		if err != nil {
			return err
		}
		snapshot.Posts = make(map[string][]Post, len(buckets)+len(campaigns))
		for campaignID, posts := range buckets {
			if posts == nil {
				posts = []Post{}
			}
			snapshot.Posts[campaignID] = posts
		}
		for _, campaign := range campaigns {
			if _, ok := snapshot.Posts[campaign.ID]; !ok {
				snapshot.Posts[campaign.ID] = []Post{}
			}
		}
		activities, err := tx.ListActivities()
		if err != nil {
			return err
		}
		snapshot.Campaigns = campaigns
		snapshot.Activities = activities
		return nil
	})
	if err != nil {
		s.logError(opSnapshot, reasonQueryFailed, err)
		return Snapshot{}, newServiceError(opSnapshot, reasonQueryFailed, err)
	}
	return snapshot, nil
}

func (s *Service) newID(operation string) (string, error) {
	if s.idProvider == nil {
		s.logError(operation, reasonMissingIDs, errMissingIDProvider)
		return "", newServiceError(operation, reasonMissingIDs, errMissingIDProvider)
	}
	identifier, err := s.idProvider.NewID()
	if err != nil {
		s.logError(operation, reasonIDFailed, err)
		return "", newServiceError(operation, reasonIDFailed, err)
	}
	return identifier, nil
}

// nextPostID combines the campaign id with a store-wide counter, so ids never repeat
// even when posts are created within the same clock tick.
func (s *Service) nextPostID(campaignID string) string {
	return campaignID + "-" + strconv.FormatInt(s.postSequence.Add(1), 10)
}

func (s *Service) now() time.Time {
	if s.clock == nil {
		return time.Now().UTC()
	}
	return s.clock().UTC()
}

func (s *Service) notify(activity Activity) {
	for _, notifier := range s.notifiers {
		notifier.NotifyActivity(activity)
	}
}

func (s *Service) loggerOrDefault() *zap.Logger {
	if s == nil {
		return noOpLogger
	}
	if s.logger == nil {
		return noOpLogger
	}
	return s.logger
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.loggerOrDefault().Error("campaigns service error", attrs...)
}
