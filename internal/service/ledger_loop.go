package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/mayconvmartins/mvcashnode-sub004/internal/config"
	"github.com/mayconvmartins/mvcashnode-sub004/internal/models"
	"github.com/mayconvmartins/mvcashnode-sub004/internal/repo"
)

// LedgerLoop owns the scheduled maintenance of the ledger: the audit sweep,
// dust consolidation, and balance history snapshots. Jobs are serialized so
// a slow sweep never overlaps itself.
type LedgerLoop struct {
	logger *zap.Logger

	audit        *AuditService
	residue      *ResidueService
	reservations *ReservationService

	vaults    *repo.VaultRepo
	balances  *repo.BalanceRepo
	snapshots *repo.BalanceSnapshotRepo

	conf config.Config

	mu      sync.Mutex
	cron    *cron.Cron
	running bool
}

func NewLedgerLoop(db *gorm.DB, audit *AuditService, residue *ResidueService, reservations *ReservationService, conf config.Config, logger *zap.Logger) *LedgerLoop {
	return &LedgerLoop{
		logger:       logger,
		audit:        audit,
		residue:      residue,
		reservations: reservations,
		vaults:       repo.NewVaultRepo(db),
		balances:     repo.NewBalanceRepo(db),
		snapshots:    repo.NewBalanceSnapshotRepo(db),
		conf:         conf,
	}
}

// Start registers the scheduled jobs and kicks off the scheduler. Calling
// Start on a running loop is a no-op.
func (s *LedgerLoop) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))

	if s.conf.Audit.Enabled {
		spec := fmt.Sprintf("@every %dm", s.conf.Audit.IntervalMinutes)
		if _, err := c.AddFunc(spec, s.runAudit); err != nil {
			return err
		}
		if _, err := c.AddFunc(spec, s.runConsolidation); err != nil {
			return err
		}
	}

	snapshotMinutes := s.conf.Trading.SnapshotIntervalMinutes
	if snapshotMinutes <= 0 {
		snapshotMinutes = 60
	}
	if _, err := c.AddFunc(fmt.Sprintf("@every %dm", snapshotMinutes), s.runSnapshots); err != nil {
		return err
	}

	c.Start()
	s.cron = c
	s.running = true
	s.logger.Info("ledger loop started",
		zap.Bool("audit", s.conf.Audit.Enabled),
		zap.Int("audit_interval_min", s.conf.Audit.IntervalMinutes),
		zap.Int("snapshot_interval_min", snapshotMinutes))
	return nil
}

// Stop halts the scheduler and waits for the in-flight job, if any.
func (s *LedgerLoop) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	<-s.cron.Stop().Done()
	s.running = false
	s.logger.Info("ledger loop stopped")
}

func (s *LedgerLoop) runAudit() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()
	if _, err := s.audit.Sweep(ctx); err != nil {
		s.logger.Error("scheduled audit sweep failed", zap.Error(err))
	}
}

func (s *LedgerLoop) runConsolidation() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	if _, err := s.residue.Consolidate(ctx); err != nil {
		s.logger.Error("scheduled residue consolidation failed", zap.Error(err))
	}
}

// runSnapshots copies every balance row into the history table, then spot
// checks conservation per (vault, asset) so drift surfaces between sweeps.
func (s *LedgerLoop) runSnapshots() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	vaults, err := s.vaults.FindAll(ctx)
	if err != nil {
		s.logger.Error("snapshot run failed to list vaults", zap.Error(err))
		return
	}

	now := time.Now()
	for _, vault := range vaults {
		balances, err := s.balances.FindAllByVault(ctx, vault.ID)
		if err != nil {
			s.logger.Error("snapshot run failed to list balances",
				zap.String("vault_id", vault.ID), zap.Error(err))
			continue
		}
		for _, bal := range balances {
			snapshot := models.BalanceSnapshot{
				ID:         ulid.Make().String(),
				VaultID:    vault.ID,
				Asset:      bal.Asset,
				Available:  bal.Available,
				Reserved:   bal.Reserved,
				RecordedAt: now,
			}
			if err := s.snapshots.Create(ctx, &snapshot); err != nil {
				s.logger.Error("failed to write balance snapshot", zap.Error(err))
			}
			if err := s.reservations.VerifyConservation(ctx, vault.ID, bal.Asset); err != nil {
				s.logger.Error("conservation check failed",
					zap.String("vault_id", vault.ID),
					zap.String("asset", bal.Asset),
					zap.Error(err))
			}
		}
	}
}
