package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/pevans/folio/config"
	"github.com/pevans/folio/content"
	"github.com/pevans/folio/feed"
	"github.com/pevans/folio/importer"
	"github.com/pevans/folio/notify"
	"github.com/pevans/folio/session"
	"github.com/pevans/folio/store"
)

const loadTimeout = 15 * time.Second

// mountFeed starts an engine for coll and waits for the first snapshot.
// The returned func closes the engine and the store.
func mountFeed(cfg *config.Config, logger *zap.Logger, coll feed.Collection, onClick feed.ItemClickFunc) (*feed.Engine, func()) {
	st := openStore(cfg, logger)
	if onClick == nil {
		onClick = func(string, string, string, string, string, string) {}
	}

	eng, err := feed.New(st, session.Fixed(cliRole(cfg)), notify.NewConsole(os.Stdout), feed.Options{
		Collection:      coll,
		OnItemClick:     onClick,
		Logger:          logger,
		MutationTimeout: cfg.MutationTimeout,
		ApplyConfirmed:  cfg.ApplyConfirmed,
	})
	if err != nil {
		st.Close()
		fmt.Fprintf(os.Stderr, "Error: failed to create feed: %v\n", err)
		os.Exit(1)
	}

	closeAll := func() {
		eng.Close()
		st.Close()
	}

	if err := eng.Start(context.Background()); err != nil {
		closeAll()
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	select {
	case <-eng.Loaded():
	case <-time.After(loadTimeout):
		closeAll()
		fmt.Fprintf(os.Stderr, "Error: timed out loading %s\n", coll.Title)
		os.Exit(1)
	}
	return eng, closeAll
}

// revealItem loads pages until id is visible.
func revealItem(eng *feed.Engine, id string) bool {
	for {
		for _, item := range eng.View().Items {
			if item.ID == id {
				return true
			}
		}
		if !eng.LoadMore() {
			return false
		}
	}
}

func handleList(cfg *config.Config, logger *zap.Logger, args []string) error {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	path := fs.String("collection", "news", "Collection path")
	search := fs.String("search", "", "Filter by title, text, source or date")
	sortBy := fs.String("sort", "", "Sort order: desc or asc")
	page := fs.Int("page", 1, "Number of pages to show")
	showAdmin := fs.Bool("show-admin", false, "Include admin-only items (admins only)")
	format := fs.String("format", "table", "Output format: table, json, compact")
	fs.Parse(args)

	order, err := feed.ParseOrder(*sortBy)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if *page < 1 {
		fmt.Fprintf(os.Stderr, "Error: --page must be at least 1\n")
		os.Exit(1)
	}
	switch *format {
	case "table", "json", "compact":
	default:
		fmt.Fprintf(os.Stderr, "Error: invalid format: %s (must be table, json, or compact)\n", *format)
		os.Exit(1)
	}

	coll := lookupCollection(cfg, *path)
	eng, closeAll := mountFeed(cfg, logger, coll, nil)
	defer closeAll()

	if *sortBy != "" {
		if !coll.Sortable {
			fmt.Fprintf(os.Stderr, "Warning: %s cannot be sorted, ignoring --sort\n", coll.Title)
		} else {
			eng.SetSortOrder(order)
		}
	}
	if *showAdmin {
		eng.SetHideAdminContent(false)
	}
	eng.SetSearch(*search)
	for i := 1; i < *page; i++ {
		if !eng.LoadMore() {
			break
		}
	}

	view := eng.View()
	cards := eng.Cards()

	switch *format {
	case "json":
		return printListJSON(coll, view, cards)
	case "compact":
		printListCompact(cards)
	case "table":
		printListTable(coll, view, eng.Controls(), cards)
	}
	return nil
}

func handleShow(cfg *config.Config, logger *zap.Logger, args []string) error {
	fs := flag.NewFlagSet("show", flag.ExitOnError)
	path := fs.String("collection", "news", "Collection path")
	fs.Parse(args)

	if fs.NArg() < 1 {
		fmt.Fprintf(os.Stderr, "Error: item ID is required\n")
		fmt.Fprintf(os.Stderr, "Usage: folio show [--collection path] <item-id>\n")
		os.Exit(1)
	}
	itemID := fs.Arg(0)

	coll := lookupCollection(cfg, *path)
	var opened bool
	eng, closeAll := mountFeed(cfg, logger, coll, func(id, date, title, text, source, imageURL string) {
		opened = true
		printItem(id, date, title, text, source, imageURL)
	})
	defer closeAll()

	eng.SetHideAdminContent(false)
	if !revealItem(eng, itemID) {
		return fmt.Errorf("item not found: %s", itemID)
	}

	if h, ok := coll.Styles.Text.(*feed.Highlight); ok {
		h.Select(itemID)
	}
	if err := eng.Click(itemID); err != nil {
		return err
	}
	if !opened {
		return fmt.Errorf("item not opened: %s", itemID)
	}

	for _, card := range eng.Cards() {
		if card.ID == itemID && card.TextClass != "" {
			fmt.Printf("Class:     %s\n", card.TextClass)
		}
	}
	return nil
}

// itemFlags registers the editable fields on fs.
func itemFlags(fs *flag.FlagSet) (title, text, image, source *string, adminOnly *bool) {
	title = fs.String("title", "", "Item title")
	text = fs.String("text", "", "Item text (URLs become links or images)")
	image = fs.String("image", "", "Image URL")
	source = fs.String("source", "", "Source URL")
	adminOnly = fs.Bool("admin-only", false, "Only show the item to admins")
	return
}

func handleAdd(cfg *config.Config, logger *zap.Logger, args []string) error {
	fs := flag.NewFlagSet("add", flag.ExitOnError)
	path := fs.String("collection", "news", "Collection path")
	title, text, image, source, adminOnly := itemFlags(fs)
	fs.Parse(args)

	draft := content.Draft{
		Title:    *title,
		Text:     *text,
		ImageURL: *image,
		Source:   *source,
		ForAdmin: *adminOnly,
	}
	if !draft.Complete() {
		fmt.Fprintf(os.Stderr, "Error: --title, --text, --image and --source are required\n")
		fs.Usage()
		os.Exit(1)
	}

	eng, closeAll := mountFeed(cfg, logger, lookupCollection(cfg, *path), nil)
	defer closeAll()

	if err := eng.OpenForm(); err != nil {
		return mutationError(err)
	}
	eng.SetDraft(draft)
	return mutationError(eng.Submit(context.Background()))
}

func handleEdit(cfg *config.Config, logger *zap.Logger, args []string) error {
	fs := flag.NewFlagSet("edit", flag.ExitOnError)
	path := fs.String("collection", "news", "Collection path")
	title, text, image, source, adminOnly := itemFlags(fs)
	fs.Parse(args)

	if fs.NArg() < 1 {
		fmt.Fprintf(os.Stderr, "Error: item ID is required\n")
		fmt.Fprintf(os.Stderr, "Usage: folio edit [--collection path] [flags] <item-id>\n")
		os.Exit(1)
	}
	itemID := fs.Arg(0)

	eng, closeAll := mountFeed(cfg, logger, lookupCollection(cfg, *path), nil)
	defer closeAll()

	if err := eng.StartEdit(itemID); err != nil {
		return mutationError(err)
	}

	draft, _ := eng.Draft()
	changed := false
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "title":
			draft.Title = *title
		case "text":
			draft.Text = *text
		case "image":
			draft.ImageURL = *image
		case "source":
			draft.Source = *source
		case "admin-only":
			draft.ForAdmin = *adminOnly
		default:
			return
		}
		changed = true
	})
	if !changed {
		fmt.Println("Nothing to update.")
		return nil
	}

	eng.SetDraft(draft)
	return mutationError(eng.Submit(context.Background()))
}

func handleDelete(cfg *config.Config, logger *zap.Logger, args []string) error {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	path := fs.String("collection", "news", "Collection path")
	fs.Parse(args)

	if fs.NArg() < 1 {
		fmt.Fprintf(os.Stderr, "Error: item ID is required\n")
		fmt.Fprintf(os.Stderr, "Usage: folio delete [--collection path] <item-id>\n")
		os.Exit(1)
	}

	eng, closeAll := mountFeed(cfg, logger, lookupCollection(cfg, *path), nil)
	defer closeAll()

	return mutationError(eng.Delete(context.Background(), fs.Arg(0)))
}

// mutationError turns a failed mutation into a message for the user. Store
// failures were already shown as notifications.
func mutationError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, feed.ErrPermissionDenied):
		return errors.New("admin role required (check FOLIO_TOKEN)")
	case errors.Is(err, feed.ErrNotFound), errors.Is(err, store.ErrNotFound):
		return errors.New("item not found")
	case errors.Is(err, feed.ErrIncompleteDraft):
		return errors.New("title, text, image and source must not be empty")
	default:
		return err
	}
}

func handleImport(cfg *config.Config, logger *zap.Logger, args []string) error {
	fs := flag.NewFlagSet("import", flag.ExitOnError)
	path := fs.String("collection", "news", "Collection path")
	feedURL := fs.String("url", "", "RSS or Atom feed URL")
	adminOnly := fs.Bool("admin-only", false, "Mark imported items admin-only")
	limit := fs.Int("limit", 0, "Maximum number of feed items to consider (0 for all)")
	fs.Parse(args)

	if *feedURL == "" {
		fmt.Fprintf(os.Stderr, "Error: --url is required\n")
		fs.Usage()
		os.Exit(1)
	}
	coll := lookupCollection(cfg, *path)
	if !cliRole(cfg).IsAdmin() {
		fmt.Fprintf(os.Stderr, "Error: admin role required (check FOLIO_TOKEN)\n")
		os.Exit(1)
	}

	st := openStore(cfg, logger)
	defer st.Close()

	im, err := importer.New(st, coll.Path, logger)
	if err != nil {
		return err
	}

	result, err := im.Import(context.Background(), *feedURL, importer.Options{
		ForAdmin: *adminOnly,
		Limit:    *limit,
	})
	if err != nil {
		return fmt.Errorf("import failed: %w", err)
	}

	fmt.Printf("✓ Imported %d item(s) into %s\n", result.Created, coll.Title)
	if result.Skipped > 0 {
		fmt.Printf("  Skipped: %d (already present or without image)\n", result.Skipped)
	}
	for _, id := range result.IDs {
		fmt.Printf("  ID: %s\n", id)
	}
	return nil
}
