package feed

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pevans/folio/content"
	"github.com/pevans/folio/notify"
	"github.com/pevans/folio/session"
	"github.com/pevans/folio/store"
)

var completeDraft = content.Draft{
	Title:    "Launch",
	Text:     "We shipped **folio**.",
	ImageURL: "https://img.example.com/launch.png",
	Source:   "https://example.com/launch",
}

func admin() session.Provider {
	return session.Fixed(session.RoleAdmin)
}

func lastNote(t *testing.T, r *notify.Recorder) notify.Message {
	t.Helper()
	m, ok := r.Last()
	require.True(t, ok, "expected a notification")
	return m
}

// TestOpenForm_RequiresAdmin verifies readers cannot open the form
func TestOpenForm_RequiresAdmin(t *testing.T) {
	te := setupTestEngine(t, session.Fixed(session.RoleUser))
	assert.ErrorIs(t, te.OpenForm(), ErrPermissionDenied)
	assert.Equal(t, FormHidden, te.Form())
	assert.False(t, te.Controls().ShowAddButton)
}

// TestSubmit_IncompleteDraft verifies no store call is made
func TestSubmit_IncompleteDraft(t *testing.T) {
	te := setupTestEngine(t, admin())
	te.start(t)
	require.NoError(t, te.OpenForm())

	missing := []func(*content.Draft){
		func(d *content.Draft) { d.Title = "" },
		func(d *content.Draft) { d.Text = "" },
		func(d *content.Draft) { d.ImageURL = "" },
		func(d *content.Draft) { d.Source = "" },
	}
	for _, drop := range missing {
		d := completeDraft
		drop(&d)
		te.SetDraft(d)
		assert.ErrorIs(t, te.Submit(context.Background()), ErrIncompleteDraft)
	}

	assert.Equal(t, 0, te.store.count("create"))
	assert.Empty(t, te.notes.Messages())
	assert.Equal(t, FormCreate, te.Form())
}

// TestSubmit_Create verifies a new item is saved and the form cleared
func TestSubmit_Create(t *testing.T) {
	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	te := setupTestEngine(t, admin(), func(o *Options) {
		o.Now = func() time.Time { return now }
	})
	te.start(t)

	require.NoError(t, te.OpenForm())
	assert.Equal(t, "Add Blog", te.Controls().SubmitLabel)
	te.SetDraft(completeDraft)
	require.NoError(t, te.Submit(context.Background()))

	assert.Equal(t, notify.Message{Text: "Blog added successfully!", Kind: notify.Success}, lastNote(t, te.notes))
	d, editID := te.Draft()
	assert.True(t, d.IsZero())
	assert.Empty(t, editID)
	assert.Equal(t, FormHidden, te.Form())
	assert.False(t, te.View().Busy)

	waitTotal(t, te.Engine, 1)
	got := te.View().Items[0]
	assert.Equal(t, "Launch", got.Title)
	assert.Equal(t, content.FormatDate(now), got.Date)
	assert.False(t, got.ForAdmin)
}

// TestSubmit_Edit verifies edits patch the item and keep its date
func TestSubmit_Edit(t *testing.T) {
	te := setupTestEngine(t, admin())
	created := seed(t, te.store, "news", 2)
	te.start(t)

	original := te.View().Items[1]
	require.Equal(t, created[0], original.ID)

	require.NoError(t, te.StartEdit(original.ID))
	assert.Equal(t, FormEdit, te.Form())
	assert.Equal(t, "Update Blog", te.Controls().SubmitLabel)
	d, editID := te.Draft()
	assert.Equal(t, original.ID, editID)
	assert.Equal(t, original.Title, d.Title)

	d.Title = "Renamed"
	te.SetDraft(d)
	require.NoError(t, te.Submit(context.Background()))

	assert.Equal(t, "Blog updated successfully!", lastNote(t, te.notes).Text)
	assert.Equal(t, 1, te.store.count("update"))
	assert.Equal(t, FormHidden, te.Form())

	require.Eventually(t, func() bool {
		for _, it := range te.View().Items {
			if it.ID == original.ID && it.Title == "Renamed" {
				return true
			}
		}
		return false
	}, 2*time.Second, 5*time.Millisecond)

	stored, err := te.store.Get(context.Background(), "news", original.ID)
	require.NoError(t, err)
	assert.Equal(t, original.Date, stored.Date)
}

// TestStartEdit_Errors verifies permission and unknown ids
func TestStartEdit_Errors(t *testing.T) {
	reader := setupTestEngine(t, nil)
	created := seed(t, reader.store, "news", 1)
	reader.start(t)
	assert.ErrorIs(t, reader.StartEdit(created[0]), ErrPermissionDenied)

	te := setupTestEngine(t, admin())
	te.start(t)
	assert.ErrorIs(t, te.StartEdit("missing"), ErrNotFound)
}

// TestSubmit_Failure verifies the draft survives a failed save
func TestSubmit_Failure(t *testing.T) {
	te := setupTestEngine(t, admin())
	te.start(t)
	te.store.set(func(f *fakeStore) { f.createErr = errors.New("disk full") })

	require.NoError(t, te.OpenForm())
	te.SetDraft(completeDraft)
	err := te.Submit(context.Background())
	assert.Error(t, err)

	assert.Equal(t, notify.Message{Text: "Failed to save Blog. Try again later.", Kind: notify.Error}, lastNote(t, te.notes))
	d, _ := te.Draft()
	assert.Equal(t, completeDraft, d)
	assert.Equal(t, FormCreate, te.Form())
	assert.False(t, te.View().Busy)
}

// TestSubmit_Timeout verifies a hung store is abandoned
func TestSubmit_Timeout(t *testing.T) {
	te := setupTestEngine(t, admin(), func(o *Options) {
		o.MutationTimeout = 20 * time.Millisecond
	})
	te.start(t)
	te.store.set(func(f *fakeStore) { f.gate = make(chan struct{}) })

	te.SetDraft(completeDraft)
	err := te.Submit(context.Background())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, "Failed to save Blog. Try again later.", lastNote(t, te.notes).Text)
}

// TestSubmit_InFlight verifies one mutation at a time and that a late
// success does not clear a newer draft
func TestSubmit_InFlight(t *testing.T) {
	te := setupTestEngine(t, admin())
	created := seed(t, te.store, "news", 1)
	te.start(t)
	creates := te.store.count("create")

	gate := make(chan struct{})
	te.store.set(func(f *fakeStore) { f.gate = gate })

	te.SetDraft(completeDraft)
	done := make(chan error, 1)
	go func() { done <- te.Submit(context.Background()) }()
	require.Eventually(t, func() bool { return te.View().Busy }, 2*time.Second, time.Millisecond)

	assert.ErrorIs(t, te.Submit(context.Background()), ErrMutationInFlight)
	assert.ErrorIs(t, te.Delete(context.Background(), created[0]), ErrMutationInFlight)

	te.Cancel()
	next := content.Draft{Title: "Next"}
	te.SetDraft(next)

	close(gate)
	require.NoError(t, <-done)

	d, _ := te.Draft()
	assert.Equal(t, next, d, "a newer draft must survive")
	assert.Equal(t, creates+1, te.store.count("create"))
	assert.Equal(t, 0, te.store.count("delete"))
}

// TestDelete_RequiresAdmin verifies readers are refused without a store call
func TestDelete_RequiresAdmin(t *testing.T) {
	te := setupTestEngine(t, session.Fixed(session.RoleUser))
	created := seed(t, te.store, "news", 1)
	te.start(t)

	assert.ErrorIs(t, te.Delete(context.Background(), created[0]), ErrPermissionDenied)
	assert.Equal(t, notify.Message{Text: "You don't have permission!", Kind: notify.Error}, lastNote(t, te.notes))
	assert.Equal(t, 0, te.store.count("delete"))
	assert.Equal(t, 1, te.View().Total)
}

// TestDelete verifies the item leaves the view once the store confirms
func TestDelete(t *testing.T) {
	te := setupTestEngine(t, admin())
	created := seed(t, te.store, "news", 2)
	te.start(t)

	require.NoError(t, te.Delete(context.Background(), created[1]))
	assert.Equal(t, "Blog deleted successfully!", lastNote(t, te.notes).Text)
	assert.Equal(t, []string{created[0]}, ids(te.View().Items))
}

// TestDelete_RemovesBeforePush verifies a confirmed delete leaves the view
// without waiting for the store to push the new contents
func TestDelete_RemovesBeforePush(t *testing.T) {
	te := setupTestEngine(t, admin())
	created := seed(t, te.store, "news", 2)
	te.start(t)
	te.store.set(func(f *fakeStore) { f.silentDelete = true })

	require.NoError(t, te.Delete(context.Background(), created[1]))
	assert.Equal(t, []string{created[0]}, ids(te.View().Items))
	assert.Equal(t, 1, te.View().Total)

	items, err := te.store.List(context.Background(), "news", store.OrderByDate)
	require.NoError(t, err)
	assert.Len(t, items, 2, "the backing store never saw the delete")
}

// TestDelete_Failure verifies the item stays on failure
func TestDelete_Failure(t *testing.T) {
	te := setupTestEngine(t, admin())
	created := seed(t, te.store, "news", 1)
	te.start(t)
	te.store.set(func(f *fakeStore) { f.deleteErr = errors.New("locked") })

	assert.Error(t, te.Delete(context.Background(), created[0]))
	assert.Equal(t, notify.Message{Text: "Failed to delete Blog. Try again later.", Kind: notify.Error}, lastNote(t, te.notes))
	assert.Equal(t, 1, te.View().Total)
}

// TestCancelAndHide verifies hiding keeps the draft and cancel clears it
func TestCancelAndHide(t *testing.T) {
	te := setupTestEngine(t, admin())
	created := seed(t, te.store, "news", 1)
	te.start(t)

	require.NoError(t, te.StartEdit(created[0]))
	te.HideForm()
	assert.Equal(t, FormHidden, te.Form())
	_, editID := te.Draft()
	assert.Equal(t, created[0], editID)

	require.NoError(t, te.OpenForm())
	assert.Equal(t, FormEdit, te.Form(), "reopening resumes the edit")

	te.Cancel()
	d, editID := te.Draft()
	assert.True(t, d.IsZero())
	assert.Empty(t, editID)

	require.NoError(t, te.OpenForm())
	assert.Equal(t, FormCreate, te.Form())
}

// TestSubmit_ApplyConfirmed verifies confirmed saves show up without a push
func TestSubmit_ApplyConfirmed(t *testing.T) {
	te := setupTestEngine(t, admin(), func(o *Options) { o.ApplyConfirmed = true })
	te.start(t)

	te.SetDraft(completeDraft)
	require.NoError(t, te.Submit(context.Background()))
	assert.Equal(t, 1, te.View().Total, "applied before any push")
}
