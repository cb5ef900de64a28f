package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pevans/folio/feed"
	"github.com/pevans/folio/markup"
)

// printListTable prints the feed in human-readable table format
func printListTable(coll feed.Collection, view feed.View, controls feed.Controls, cards []feed.Card) {
	fmt.Printf("%s\n", coll.Title)
	if controls.ShowSort {
		fmt.Printf("%s\n", controls.SortLabel)
	}
	if controls.ShowAdminToggle {
		state := "hidden"
		if !controls.HideAdminContent {
			state = "shown"
		}
		fmt.Printf("Admin-only items: %s\n", state)
	}
	fmt.Println()

	if len(cards) == 0 {
		fmt.Println("No items to display.")
		return
	}

	fmt.Printf("Showing %d of %d items\n\n", len(cards), view.Total)

	for _, card := range cards {
		adminMarker := " "
		if card.ForAdmin {
			adminMarker = "🔒"
		}

		title := card.Title
		if len(title) > 70 {
			title = title[:67] + "..."
		}

		text := markup.Plain(card.Text)
		if len(text) > 150 {
			text = text[:147] + "..."
		}

		fmt.Printf("%s %s\n", adminMarker, title)
		fmt.Printf("   %s | %s\n", card.Host, card.DisplayDate)
		if text != "" {
			fmt.Printf("   %s\n", text)
		}
		fmt.Printf("   URL: %s\n", card.Source)
		fmt.Printf("   ID: %s\n", card.ID)
		fmt.Println()
	}

	if controls.ShowLoadMore {
		fmt.Printf("More items available: use --page %d\n", view.Page+1)
	}
}

// printListJSON prints the feed in JSON format
func printListJSON(coll feed.Collection, view feed.View, cards []feed.Card) error {
	output := map[string]any{
		"collection": coll,
		"items":      cards,
		"total":      view.Total,
		"page":       view.Page,
		"has_more":   view.HasMore,
		"sort":       view.Order,
	}

	data, err := json.MarshalIndent(output, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	fmt.Println(string(data))
	return nil
}

// printListCompact prints the feed in compact format
func printListCompact(cards []feed.Card) {
	if len(cards) == 0 {
		fmt.Println("No items to display.")
		return
	}

	for _, card := range cards {
		fmt.Printf("%s %s (%s)\n", card.ID, card.Title, card.Host)
	}
}

// printItem prints one opened item
func printItem(id, date, title, text, source, imageURL string) {
	rule := strings.Repeat("━", 78)
	fmt.Println(rule)
	fmt.Println(title)
	fmt.Println(rule)
	fmt.Println()

	fmt.Printf("Date:      %s\n", date)
	fmt.Printf("Source:    %s\n", source)
	fmt.Printf("Image:     %s\n", imageURL)
	fmt.Printf("ID:        %s\n", id)
	fmt.Println()

	if text != "" {
		fmt.Println(wrapText(markup.Plain(text), 78))
		fmt.Println()
	}
}

// wrapText wraps text to a maximum line width, keeping existing line breaks
func wrapText(text string, width int) string {
	var out []string
	for _, paragraph := range strings.Split(text, "\n") {
		words := strings.Fields(paragraph)
		if len(words) == 0 {
			out = append(out, "")
			continue
		}

		var currentLine strings.Builder
		for _, word := range words {
			if currentLine.Len() == 0 {
				currentLine.WriteString(word)
			} else if currentLine.Len()+1+len(word) <= width {
				currentLine.WriteString(" ")
				currentLine.WriteString(word)
			} else {
				out = append(out, currentLine.String())
				currentLine.Reset()
				currentLine.WriteString(word)
			}
		}
		out = append(out, currentLine.String())
	}
	return strings.Join(out, "\n")
}
