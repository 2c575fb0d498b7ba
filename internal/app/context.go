package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"studyline/internal/config"
	"studyline/internal/domain"
	"studyline/internal/repo"
)

// ResolveJourneyAndConfig picks the active journey and ensures a journey +
// config exist in the DB, seeding defaults if missing. It prefers overrides,
// then a studyline.yml in the workspace, then the single journey in the
// workspace. A missing journey is created on the fly.
func ResolveJourneyAndConfig(ctx context.Context, workspace, journeyOverride, actorID string, r repo.Repo) (string, *config.Config, error) {
	fileCfg, err := config.LoadOptional(workspace)
	if err != nil {
		return "", nil, err
	}
	journeyID := journeyOverride
	if journeyID == "" && fileCfg != nil {
		journeyID = fileCfg.Journey.ID
	}
	if journeyID == "" {
		if j, err := r.SingleJourney(ctx); err == nil {
			journeyID = j.ID
		} else {
			return "", nil, fmt.Errorf("journey not specified; use --journey or add studyline.yml")
		}
	}
	seedCfg := fileCfg
	if seedCfg == nil {
		seedCfg = config.Default(journeyID)
	}
	seedCfg.Journey.ID = journeyID

	if _, err := r.GetJourney(ctx, journeyID); err != nil {
		if !errors.Is(err, repo.ErrNotFound) {
			return "", nil, err
		}
		if err := createJourney(ctx, r, journeyID, seedCfg, actorID); err != nil {
			return "", nil, err
		}
	}
	cfg, err := r.GetJourneyConfig(ctx, journeyID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			if err := r.UpsertJourneyConfig(ctx, journeyID, seedCfg); err != nil {
				return "", nil, fmt.Errorf("seed journey config: %w", err)
			}
			cfg = seedCfg
		} else {
			return "", nil, err
		}
	}
	cfg.Journey.ID = journeyID
	return journeyID, cfg, nil
}

func createJourney(ctx context.Context, r repo.Repo, journeyID string, seedCfg *config.Config, actorID string) error {
	if seedCfg == nil {
		seedCfg = config.Default(journeyID)
	}
	if actorID == "" {
		actorID = "local-user"
	}
	now := time.Now().UTC().Format(time.RFC3339)
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	j := domain.Journey{
		ID:        journeyID,
		OwnerID:   actorID,
		Name:      journeyID,
		ExamName:  seedCfg.Journey.Exam,
		Status:    "active",
		CreatedAt: now,
	}
	if err := r.InsertJourney(ctx, tx, j); err != nil {
		return fmt.Errorf("insert journey: %w", err)
	}
	if err := r.UpsertJourneyConfigTx(ctx, tx, journeyID, seedCfg); err != nil {
		return fmt.Errorf("insert journey config: %w", err)
	}
	return tx.Commit()
}
