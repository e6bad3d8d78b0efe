package backup

// Planner classifies candidate items into those needing a backup and those
// skipped. Planning never writes anywhere and can be repeated freely.
type Planner struct {
	index ArchiveIndex
	codec NameCodec

	// ExcludeViews skips view-service items with reason view-service
	ExcludeViews bool
}

// NewPlanner creates a planner consulting index for existing backups
func NewPlanner(index ArchiveIndex, codec NameCodec) *Planner {
	return &Planner{index: index, codec: codec, ExcludeViews: true}
}

// Plan builds new needs-backup and skipped lists, both in input order. The
// input slice and its items are not modified.
func (p *Planner) Plan(items []*CatalogItem) *Plan {
	plan := &Plan{
		NeedsBackup: make([]*PlannedItem, 0, len(items)),
		Skipped:     make([]*SkippedItem, 0),
	}

	for _, item := range items {
		if item == nil {
			continue
		}

		if p.ExcludeViews && item.IsViewService() {
			plan.Skipped = append(plan.Skipped, &SkippedItem{Item: item, Reason: SkipReasonViewService})
			continue
		}

		fp, err := ResolveFingerprint(item)
		if err != nil || fp.IsAbsent() {
			plan.Skipped = append(plan.Skipped, &SkippedItem{
				Item:       item,
				Reason:     SkipReasonNoEditHistory,
				Identifier: p.codec.Encode(item.ID, fp),
				Err:        err,
			})
			continue
		}

		identifier := p.codec.Encode(item.ID, fp)
		if !isSafeIdentifier(identifier) {
			err := NewResolutionError("item ID cannot be used as an archive file name", nil).
				WithContext("item_id", item.ID)
			plan.Skipped = append(plan.Skipped, &SkippedItem{
				Item:       item,
				Reason:     SkipReasonUnsafeIdentifier,
				Identifier: identifier,
				Err:        err,
			})
			continue
		}
		if p.index.Exists(identifier) {
			plan.Skipped = append(plan.Skipped, &SkippedItem{
				Item:       item,
				Reason:     SkipReasonAlreadyBackedUp,
				Identifier: identifier,
			})
			continue
		}

		plan.NeedsBackup = append(plan.NeedsBackup, &PlannedItem{
			Item:        item,
			Fingerprint: fp,
			Identifier:  identifier,
		})
	}

	return plan
}
