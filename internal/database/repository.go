package database

import (
	"context"
	"errors"
	"time"

	"github.com/MarcoPoloResearchLab/campaignboard/internal/campaigns"
	"gorm.io/gorm"
)

const (
	columnSequence    = "seq"
	orderSequenceAsc  = columnSequence + " ASC"
	orderSequenceDesc = columnSequence + " DESC"
	queryCampaignID   = "campaign_id = ?"
	queryCampaignPost = "campaign_id = ? AND post_id = ?"
)

var errMissingDatabase = errors.New("database: handle is required")

type campaignRecord struct {
	Sequence       int64  `gorm:"column:seq;primaryKey;autoIncrement"`
	CampaignID     string `gorm:"column:campaign_id;size:190;not null;uniqueIndex"`
	Name           string `gorm:"column:name;type:text;not null;default:''"`
	Goal           string `gorm:"column:goal;type:text;not null;default:''"`
	StartDate      string `gorm:"column:start_date;type:text;not null;default:''"`
	EndDate        string `gorm:"column:end_date;type:text;not null;default:''"`
	CreatedAtNanos int64  `gorm:"column:created_at_ns;not null"`
}

func (campaignRecord) TableName() string {
	return "campaigns"
}

type postRecord struct {
	Sequence     int64  `gorm:"column:seq;primaryKey;autoIncrement"`
	PostID       string `gorm:"column:post_id;size:190;not null;uniqueIndex"`
	CampaignID   string `gorm:"column:campaign_id;size:190;not null;index"`
	Platform     string `gorm:"column:platform;type:text;not null;default:''"`
	Caption      string `gorm:"column:caption;type:text;not null;default:''"`
	ScheduleDate string `gorm:"column:schedule_date;type:text;not null;default:''"`
}

func (postRecord) TableName() string {
	return "campaign_posts"
}

type activityRecord struct {
	Sequence       int64  `gorm:"column:seq;primaryKey;autoIncrement"`
	ActivityID     string `gorm:"column:activity_id;size:190;not null;uniqueIndex"`
	Type           string `gorm:"column:type;size:32;not null"`
	CampaignID     string `gorm:"column:campaign_id;size:190;not null"`
	CampaignName   string `gorm:"column:campaign_name;type:text;not null;default:''"`
	PostID         string `gorm:"column:post_id;size:190;not null;default:''"`
	Platform       string `gorm:"column:platform;type:text;not null;default:''"`
	TimestampNanos int64  `gorm:"column:timestamp_ns;not null"`
}

func (activityRecord) TableName() string {
	return "campaign_activities"
}

// Repository implements campaigns.Repository on top of gorm. Insertion order is
// the autoincrement sequence; every View and Update runs in its own transaction.
type Repository struct {
	db       *gorm.DB
	capacity int
}

// NewRepository wraps db; the activity log keeps at most capacity entries.
func NewRepository(db *gorm.DB, capacity int) (*Repository, error) {
	if db == nil {
		return nil, errMissingDatabase
	}
	if capacity <= 0 {
		return nil, campaigns.ErrInvalidCapacity
	}
	return &Repository{db: db, capacity: capacity}, nil
}

func (r *Repository) View(ctx context.Context, fn func(campaigns.Reader) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&sqlTx{db: tx, capacity: r.capacity})
	})
}

func (r *Repository) Update(ctx context.Context, fn func(campaigns.Writer) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&sqlTx{db: tx, capacity: r.capacity})
	})
}

type sqlTx struct {
	db       *gorm.DB
	capacity int
}

func (tx *sqlTx) ListCampaigns() ([]campaigns.Campaign, error) {
	var records []campaignRecord
	if err := tx.db.Order(orderSequenceAsc).Find(&records).Error; err != nil {
		return nil, err
	}
	result := make([]campaigns.Campaign, 0, len(records))
	for _, record := range records {
		result = append(result, record.toCampaign())
	}
	return result, nil
}

func (tx *sqlTx) FindCampaign(campaignID string) (campaigns.Campaign, bool, error) {
	var record campaignRecord
	err := tx.db.Where(queryCampaignID, campaignID).Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return campaigns.Campaign{}, false, nil
	}
	if err != nil {
		return campaigns.Campaign{}, false, err
	}
	return record.toCampaign(), true, nil
}

func (tx *sqlTx) ListPosts(campaignID string) ([]campaigns.Post, error) {
	var records []postRecord
	if err := tx.db.Where(queryCampaignID, campaignID).Order(orderSequenceAsc).Find(&records).Error; err != nil {
		return nil, err
	}
	result := make([]campaigns.Post, 0, len(records))
	for _, record := range records {
		result = append(result, record.toPost())
	}
	return result, nil
}

func (tx *sqlTx) ListPostBuckets() (map[string][]campaigns.Post, error) {
	var records []postRecord
	if err := tx.db.Order(orderSequenceAsc).Find(&records).Error; err != nil {
		return nil, err
	}
	result := make(map[string][]campaigns.Post)
	for _, record := range records {
		result[record.CampaignID] = append(result[record.CampaignID], record.toPost())
	}
	return result, nil
}

func (tx *sqlTx) FindPost(campaignID, postID string) (campaigns.Post, bool, error) {
	var record postRecord
	err := tx.db.Where(queryCampaignPost, campaignID, postID).Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return campaigns.Post{}, false, nil
	}
	if err != nil {
		return campaigns.Post{}, false, err
	}
	return record.toPost(), true, nil
}

func (tx *sqlTx) ListActivities() ([]campaigns.Activity, error) {
	var records []activityRecord
	if err := tx.db.Order(orderSequenceDesc).Limit(tx.capacity).Find(&records).Error; err != nil {
		return nil, err
	}
	result := make([]campaigns.Activity, 0, len(records))
	for _, record := range records {
		result = append(result, record.toActivity())
	}
	return result, nil
}

func (tx *sqlTx) InsertCampaign(campaign campaigns.Campaign) error {
	record := campaignRecord{
		CampaignID:     campaign.ID,
		Name:           campaign.Name,
		Goal:           campaign.Goal,
		StartDate:      campaign.StartDate,
		EndDate:        campaign.EndDate,
		CreatedAtNanos: campaign.CreatedAt.UnixNano(),
	}
	return tx.db.Create(&record).Error
}

func (tx *sqlTx) DeleteCampaign(campaignID string) error {
	if err := tx.db.Where(queryCampaignID, campaignID).Delete(&postRecord{}).Error; err != nil {
		return err
	}
	return tx.db.Where(queryCampaignID, campaignID).Delete(&campaignRecord{}).Error
}

func (tx *sqlTx) InsertPost(post campaigns.Post) error {
	record := postRecord{
		PostID:       post.ID,
		CampaignID:   post.CampaignID,
		Platform:     post.Platform,
		Caption:      post.Caption,
		ScheduleDate: post.ScheduleDate,
	}
	return tx.db.Create(&record).Error
}

func (tx *sqlTx) DeletePost(campaignID, postID string) error {
	return tx.db.Where(queryCampaignPost, campaignID, postID).Delete(&postRecord{}).Error
}

func (tx *sqlTx) AppendActivity(activity campaigns.Activity) error {
	record := activityRecord{
		ActivityID:     activity.ID,
		Type:           string(activity.Type),
		CampaignID:     activity.CampaignID,
		CampaignName:   activity.CampaignName,
		PostID:         activity.PostID,
		Platform:       activity.Platform,
		TimestampNanos: activity.Timestamp.UnixNano(),
	}
	if err := tx.db.Create(&record).Error; err != nil {
		return err
	}

	var cutoff []int64
	if err := tx.db.Model(&activityRecord{}).
		Order(orderSequenceDesc).
		Offset(tx.capacity).
		Limit(1).
		Pluck(columnSequence, &cutoff).Error; err != nil {
		return err
	}
	if len(cutoff) == 0 {
		return nil
	}
	return tx.db.Where(columnSequence+" <= ?", cutoff[0]).Delete(&activityRecord{}).Error
}

func (record campaignRecord) toCampaign() campaigns.Campaign {
	return campaigns.Campaign{
		ID:        record.CampaignID,
		Name:      record.Name,
		Goal:      record.Goal,
		StartDate: record.StartDate,
		EndDate:   record.EndDate,
		CreatedAt: time.Unix(0, record.CreatedAtNanos).UTC(),
	}
}

func (record postRecord) toPost() campaigns.Post {
	return campaigns.Post{
		ID:           record.PostID,
		CampaignID:   record.CampaignID,
		Platform:     record.Platform,
		Caption:      record.Caption,
		ScheduleDate: record.ScheduleDate,
	}
}

func (record activityRecord) toActivity() campaigns.Activity {
	return campaigns.Activity{
		ID:           record.ActivityID,
		Type:         campaigns.ActivityType(record.Type),
		CampaignID:   record.CampaignID,
		CampaignName: record.CampaignName,
		PostID:       record.PostID,
		Platform:     record.Platform,
		Timestamp:    time.Unix(0, record.TimestampNanos).UTC(),
	}
}
