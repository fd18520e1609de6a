package campaigns

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

//go:embed fixtures/demo.yaml
var demoSeed []byte

// SeedSet lists campaigns, each with its posts, to preload into a fresh store.
type SeedSet struct {
	Campaigns []SeedCampaign `yaml:"campaigns"`
}

// SeedCampaign describes one preloaded campaign.
type SeedCampaign struct {
	Name      string     `yaml:"name"`
	Goal      string     `yaml:"goal"`
	StartDate string     `yaml:"startDate"`
	EndDate   string     `yaml:"endDate"`
	Posts     []SeedPost `yaml:"posts"`
}

// SeedPost describes one preloaded post.
type SeedPost struct {
	Platform     string `yaml:"platform"`
	Caption      string `yaml:"caption"`
	ScheduleDate string `yaml:"scheduleDate"`
}

// DemoSeed returns the built-in demo campaign.
func DemoSeed() (SeedSet, error) {
	return ParseSeed(demoSeed)
}

// LoadSeedFile reads a YAML seed set from disk.
func LoadSeedFile(path string) (SeedSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return SeedSet{}, fmt.Errorf("campaigns: read seed file: %w", err)
	}
	return ParseSeed(data)
}

// ParseSeed decodes a YAML seed set, rejecting unknown keys.
func ParseSeed(data []byte) (SeedSet, error) {
	var set SeedSet
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&set); err != nil && !errors.Is(err, io.EOF) {
		return SeedSet{}, fmt.Errorf("campaigns: decode seed: %w", err)
	}
	return set, nil
}

// Seed stores the seed set without recording activity, matching a store that
// starts out populated rather than one that was edited.
func (s *Service) Seed(ctx context.Context, set SeedSet) error {
	if s.repository == nil {
		s.logError(opSeed, reasonMissingRepo, errMissingRepository)
		return newServiceError(opSeed, reasonMissingRepo, errMissingRepository)
	}

	campaignIDs := make([]string, 0, len(set.Campaigns))
	for range set.Campaigns {
		campaignID, err := s.newID(opSeed)
		if err != nil {
			return err
		}
		campaignIDs = append(campaignIDs, campaignID)
	}

	err := s.repository.Update(ctx, func(tx Writer) error {
		now := s.now()
		for index, seed := range set.Campaigns {
			campaign := Campaign{
				ID:        campaignIDs[index],
				Name:      seed.Name,
				Goal:      seed.Goal,
				StartDate: seed.StartDate,
				EndDate:   seed.EndDate,
				CreatedAt: now,
			}
			if err := tx.InsertCampaign(campaign); err != nil {
				return err
			}
			for _, seedPost := range seed.Posts {
				post := Post{
					ID:           s.nextPostID(campaign.ID),
					CampaignID:   campaign.ID,
					Platform:     seedPost.Platform,
					Caption:      seedPost.Caption,
					ScheduleDate: seedPost.ScheduleDate,
				}
				if err := tx.InsertPost(post); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		s.logError(opSeed, reasonWriteFailed, err)
		return newServiceError(opSeed, reasonWriteFailed, err)
	}

	s.loggerOrDefault().Info("store seeded", zap.Int("campaigns", len(set.Campaigns)))
	return nil
}
