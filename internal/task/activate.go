package task

import (
	"context"

	"varda/internal/verr"
)

// Activate transitions a sample from inactive to active, the single
// transactional helper gating the sample side of the activation state
// machine. It succeeds only when:
//
//  1. no task targeting sampleID is waiting or running, and
//  2. the sample has at least one Variation, and, if it carries a
//     coverage profile, at least one Coverage run.
//
// The whole check-and-flip runs under the sample's advisory lock so a
// concurrent import task claim can never race the activation decision.
func (m *Manager) Activate(ctx context.Context, sampleID string) error {
	return m.Store.Locker().WithSampleLock(ctx, sampleID, func(ctx context.Context) error {
		sample, err := m.Store.Samples().Get(ctx, sampleID)
		if err != nil {
			return err
		}
		if sample.Active {
			return nil
		}

		active, err := m.Store.Tasks().AnyActiveForTarget(ctx, sampleID)
		if err != nil {
			return err
		}
		if active {
			return verr.New(verr.IntegrityConflict, "task: sample %s has a pending or running task, cannot activate", sampleID)
		}

		hasVariation, err := m.Store.Observations().HasVariation(ctx, sampleID)
		if err != nil {
			return err
		}
		if !hasVariation {
			return verr.New(verr.IntegrityConflict, "task: sample %s has no imported variation data, cannot activate", sampleID)
		}

		if sample.CoverageProfile {
			hasCoverage, err := m.Store.Coverage().HasCoverage(ctx, sampleID)
			if err != nil {
				return err
			}
			if !hasCoverage {
				return verr.New(verr.IntegrityConflict, "task: coverage-profile sample %s has no coverage data, cannot activate", sampleID)
			}
		}

		return m.Store.Samples().SetActive(ctx, sampleID, true)
	})
}

// Deactivate is admin-only: no guard beyond the advisory lock, since
// deactivating is always safe.
func (m *Manager) Deactivate(ctx context.Context, sampleID string) error {
	return m.Store.Locker().WithSampleLock(ctx, sampleID, func(ctx context.Context) error {
		return m.Store.Samples().SetActive(ctx, sampleID, false)
	})
}
