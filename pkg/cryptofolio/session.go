package cryptofolio

import "fmt"

// SessionState returns a snapshot of the interactive state: the
// selection in ledger order plus the in-progress edit, if any.
func (c *Core) SessionState() SessionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionStateLocked()
}

func (c *Core) sessionStateLocked() SessionState {
	state := SessionState{Selected: make([]string, 0, len(c.session.selected))}
	for _, rec := range c.ledger.records {
		if _, ok := c.session.selected[rec.ProviderID]; ok {
			state.Selected = append(state.Selected, rec.ProviderID)
		}
	}
	if c.session.edit != nil {
		edit := *c.session.edit
		state.Edit = &edit
	}
	return state
}

// SetSelected marks or unmarks a holding for batch deletion. Selecting
// requires the row to exist; deselecting an unselected ID is a no-op.
func (c *Core) SetSelected(providerID string, selected bool) (SessionState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if selected {
		if _, ok := c.ledger.Get(providerID); !ok {
			return c.sessionStateLocked(), NewError(ErrCodeNotFound, fmt.Sprintf("no holding for provider id: %s", providerID))
		}
		c.session.selected[providerID] = struct{}{}
	} else {
		delete(c.session.selected, providerID)
	}
	return c.sessionStateLocked(), nil
}

// ClearSelection empties the selection without touching the ledger.
func (c *Core) ClearSelection() SessionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session.selected = map[string]struct{}{}
	return c.sessionStateLocked()
}

// DeleteSelected removes every selected holding in one batch and clears
// the selection. An empty selection deletes nothing.
func (c *Core) DeleteSelected() (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.session.selected) == 0 {
		return 0, nil
	}
	ids := make([]string, 0, len(c.session.selected))
	for id := range c.session.selected {
		ids = append(ids, id)
	}
	return c.removeHoldingsLocked(ids)
}

// BeginEdit opens the single edit slot on the given holding, snapshotting
// its current amount for the later no-op comparison. Opening an edit
// while another row is being edited moves the slot; the previous edit is
// abandoned unchanged.
func (c *Core) BeginEdit(providerID string) (EditState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rec, ok := c.ledger.Get(providerID)
	if !ok {
		return EditState{}, NewError(ErrCodeNotFound, fmt.Sprintf("no holding for provider id: %s", providerID))
	}
	c.session.edit = &EditState{ProviderID: providerID, OriginalAmount: rec.Amount}
	return *c.session.edit, nil
}

// CommitEdit closes the edit slot, writing the new amount only when it
// differs from the snapshot taken at BeginEdit. Committing the original
// value is a pure state transition back to idle: no persistence, no
// audit entry. A rejected amount keeps the edit open so the caller can
// retry.
func (c *Core) CommitEdit(amount Amount) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	edit := c.session.edit
	if edit == nil {
		return false, NewError(ErrCodeValidation, "no edit in progress")
	}
	if amount.Equal(edit.OriginalAmount.Decimal) {
		c.session.edit = nil
		return false, nil
	}
	changed, err := c.setHoldingAmountLocked(edit.ProviderID, amount)
	if err != nil {
		if IsErrorCode(err, ErrCodeValidation) {
			// Invalid input keeps the edit open for a retry.
			return false, err
		}
		c.session.edit = nil
		return changed, err
	}
	c.session.edit = nil
	return changed, nil
}

// DiscardEdit abandons the in-progress edit, reporting whether one
// existed.
func (c *Core) DiscardEdit() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	had := c.session.edit != nil
	c.session.edit = nil
	return had
}
