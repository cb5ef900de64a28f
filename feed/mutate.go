package feed

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"go.uber.org/zap"

	"github.com/pevans/folio/content"
	"github.com/pevans/folio/notify"
)

// OpenForm shows the admin form. A hidden edit resumes where it was left.
func (e *Engine) OpenForm() error {
	err := ErrClosed
	e.update(func() bool {
		err = nil
		if !e.role.IsAdmin() {
			err = ErrPermissionDenied
			return false
		}
		if e.form != FormHidden {
			return false
		}
		e.form = FormCreate
		if e.editID != "" {
			e.form = FormEdit
		}
		e.formGen++
		return true
	})
	return err
}

// HideForm hides the form but keeps the draft.
func (e *Engine) HideForm() {
	e.update(func() bool {
		if e.form == FormHidden {
			return false
		}
		e.form = FormHidden
		e.formGen++
		return true
	})
}

// StartEdit loads an item into the draft and opens the form in edit mode.
// An unsaved draft is replaced.
func (e *Engine) StartEdit(id string) error {
	err := ErrClosed
	e.update(func() bool {
		err = nil
		if !e.role.IsAdmin() {
			err = ErrPermissionDenied
			return false
		}
		item, ok := findItem(e.all, id)
		if !ok {
			err = ErrNotFound
			return false
		}
		if e.editID != id && !e.draft.IsZero() {
			e.logger.Debug("Replacing unsaved draft", zap.String("id", id))
		}
		e.draft = content.DraftFrom(item)
		e.editID = id
		e.form = FormEdit
		e.formGen++
		return true
	})
	return err
}

// Cancel clears the draft and closes the form.
func (e *Engine) Cancel() {
	e.update(func() bool {
		e.draft = content.Draft{}
		e.editID = ""
		e.form = FormHidden
		e.formGen++
		return true
	})
}

// SetDraft replaces the draft fields.
func (e *Engine) SetDraft(d content.Draft) {
	e.update(func() bool {
		if e.draft == d {
			return false
		}
		e.draft = d
		return true
	})
}

// Draft returns the current draft and the id being edited, if any.
func (e *Engine) Draft() (content.Draft, string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.draft, e.editID
}

// Form returns the form state.
func (e *Engine) Form() FormMode {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.form
}

func (e *Engine) mutationContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, e.opts.MutationTimeout)
}

// Submit saves the draft: an update when editing, a create otherwise. An
// incomplete draft is rejected without a store call. On success the form is
// cleared, unless it was reopened or cancelled while the save was in flight.
func (e *Engine) Submit(ctx context.Context) error {
	var (
		err    = ErrClosed
		draft  content.Draft
		editID string
		gen    uint64
	)
	e.update(func() bool {
		err = nil
		if !e.draft.Complete() {
			err = ErrIncompleteDraft
			return false
		}
		if e.busy {
			err = ErrMutationInFlight
			return false
		}
		draft, editID, gen = e.draft, e.editID, e.formGen
		e.busy = true
		return true
	})
	if err != nil {
		return err
	}

	title := e.opts.Collection.Title
	path := e.opts.Collection.Path

	mctx, cancel := e.mutationContext(ctx)
	defer cancel()

	var (
		rec      content.Record
		id       = editID
		storeErr error
	)
	if editID != "" {
		storeErr = e.store.Update(mctx, path, editID, draft.Patch())
	} else {
		rec = draft.Record(e.opts.Now())
		id, storeErr = e.store.Create(mctx, path, rec)
	}

	e.update(func() bool {
		e.busy = false
		if storeErr != nil {
			return true
		}
		if e.formGen == gen {
			e.draft = content.Draft{}
			e.editID = ""
			e.form = FormHidden
			e.formGen++
		}
		if e.opts.ApplyConfirmed {
			e.applyLocalSaveLocked(id, editID != "", draft, rec)
		}
		return true
	})

	if storeErr != nil {
		e.logger.Error("Failed to save item", zap.String("id", editID), zap.Error(storeErr))
		e.notifier.Notify(fmt.Sprintf("Failed to save %s. Try again later.", title), notify.Error)
		return fmt.Errorf("failed to save %s: %w", path, storeErr)
	}

	if editID != "" {
		e.logger.Info("Updated item", zap.String("id", id))
		e.notifier.Notify(fmt.Sprintf("%s updated successfully!", title), notify.Success)
	} else {
		e.logger.Info("Created item", zap.String("id", id))
		e.notifier.Notify(fmt.Sprintf("%s added successfully!", title), notify.Success)
	}
	return nil
}

func (e *Engine) applyLocalSaveLocked(id string, edited bool, draft content.Draft, rec content.Record) {
	if edited {
		i := slices.IndexFunc(e.all, func(it content.Item) bool { return it.ID == id })
		if i >= 0 {
			e.all[i] = draft.Patch().Apply(e.all[i].Record()).WithID(id)
		}
		return
	}
	if slices.ContainsFunc(e.all, func(it content.Item) bool { return it.ID == id }) {
		return
	}
	e.all = append([]content.Item{rec.WithID(id)}, e.all...)
}

// Delete removes an item. Non-admins are refused with a notification and no
// store call. The local copy drops the item once the store confirms.
func (e *Engine) Delete(ctx context.Context, id string) error {
	err := ErrClosed
	e.update(func() bool {
		err = nil
		if !e.role.IsAdmin() {
			err = ErrPermissionDenied
			return false
		}
		if e.busy {
			err = ErrMutationInFlight
			return false
		}
		e.busy = true
		return true
	})
	if errors.Is(err, ErrPermissionDenied) {
		e.notifier.Notify(permissionDeniedMessage, notify.Error)
	}
	if err != nil {
		return err
	}

	title := e.opts.Collection.Title
	path := e.opts.Collection.Path

	mctx, cancel := e.mutationContext(ctx)
	defer cancel()
	storeErr := e.store.Delete(mctx, path, id)

	e.update(func() bool {
		e.busy = false
		if storeErr == nil {
			e.all = slices.DeleteFunc(e.all, func(it content.Item) bool { return it.ID == id })
		}
		return true
	})

	if storeErr != nil {
		e.logger.Error("Failed to delete item", zap.String("id", id), zap.Error(storeErr))
		e.notifier.Notify(fmt.Sprintf("Failed to delete %s. Try again later.", title), notify.Error)
		return fmt.Errorf("failed to delete %s/%s: %w", path, id, storeErr)
	}

	e.logger.Info("Deleted item", zap.String("id", id))
	e.notifier.Notify(fmt.Sprintf("%s deleted successfully!", title), notify.Success)
	return nil
}
