package app

import (
	"context"
	"fmt"
	"log/slog"
)

// Sweeper re-evaluates every lease-to-own contract and converts the fully
// repaid ones into ownership. Always a global pass: a contract can become
// eligible through a payment on a different contract arriving concurrently,
// so scoping the sweep to one contract would leave conversions behind. Safe
// to re-run; MarkCompleted is conditional.
type Sweeper struct {
	contracts    ContractStore
	installments InstallmentStore
	assets       AssetStore
	accounting   AccountingEmitter
	log          *slog.Logger
}

func NewSweeper(contracts ContractStore, installments InstallmentStore, assets AssetStore, accounting AccountingEmitter, log *slog.Logger) *Sweeper {
	return &Sweeper{
		contracts:    contracts,
		installments: installments,
		assets:       assets,
		accounting:   accounting,
		log:          log,
	}
}

func (s *Sweeper) Sweep(ctx context.Context) error {
	contracts, err := s.contracts.ListLeaseToOwn(ctx)
	if err != nil {
		return fmt.Errorf("list lease-to-own contracts: %w", err)
	}

	for _, c := range contracts {
		if c.Completed {
			continue
		}
		outstanding, err := s.installments.CountOutstanding(ctx, c.ID)
		if err != nil {
			s.log.ErrorContext(ctx, "outstanding count failed during ownership sweep",
				"contract_id", c.ID, "err", err)
			continue
		}
		if outstanding > 0 {
			continue
		}

		completed, err := s.contracts.MarkCompleted(ctx, c.ID)
		if err != nil {
			s.log.ErrorContext(ctx, "contract completion failed during ownership sweep",
				"contract_id", c.ID, "err", err)
			continue
		}
		if !completed {
			continue
		}
		s.log.InfoContext(ctx, "lease-to-own contract fully repaid, converting to ownership",
			"contract_id", c.ID, "asset_id", c.AssetID, "client_id", c.ClientID)

		owned, err := s.assets.MarkOwned(ctx, c.AssetID,
			fmt.Sprintf("lease-to-own contract %s completed", c.ID))
		if err != nil {
			s.log.ErrorContext(ctx, "asset ownership transition failed",
				"asset_id", c.AssetID, "contract_id", c.ID, "err", err)
		} else if owned {
			s.log.InfoContext(ctx, "asset ownership transferred", "asset_id", c.AssetID)
		}

		if err := s.accounting.Emit(ctx, "contract.completed", "contract", c.ID, map[string]any{
			"asset_id":  c.AssetID,
			"client_id": c.ClientID,
		}, "ownership-sweep"); err != nil {
			s.log.ErrorContext(ctx, "accounting emit failed for completed contract",
				"contract_id", c.ID, "err", err)
		}
	}
	return nil
}
