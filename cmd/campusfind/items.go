package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	campusfind "github.com/akash-dev-18/campusfind-go"
	"github.com/spf13/cobra"
)

var (
	itemsListType     string
	itemsListCategory string
	itemsListStatus   string
	itemsListSearch   string
	itemsListLimit    int
	itemsListJSON     bool

	itemsReportType     string
	itemsReportTitle    string
	itemsReportDesc     string
	itemsReportCategory string
	itemsReportLocation string
	itemsReportDate     string
	itemsReportTags     string

	claimItemDesc string
)

var itemsCmd = &cobra.Command{
	Use:   "items",
	Short: "Browse and report lost and found items",
}

var itemsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List items",
	RunE: func(cmd *cobra.Command, args []string) error {
		client := getClient()
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		page, err := client.Items.List(ctx, &campusfind.ItemFilters{
			Type:     itemsListType,
			Category: itemsListCategory,
			Status:   itemsListStatus,
			Search:   itemsListSearch,
			Limit:    itemsListLimit,
		})
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}

		if itemsListJSON {
			data, _ := json.MarshalIndent(page.Items, "", "  ")
			fmt.Println(string(data))
			return nil
		}

		if len(page.Items) == 0 {
			fmt.Println("No items found.")
			return nil
		}
		for _, it := range page.Items {
			fmt.Printf("%-36s  %-5s  %-10s  %s (%s)\n", it.ID, it.Type, it.Status, it.Title, it.Location)
		}
		fmt.Printf("\n%d of %d items\n", len(page.Items), page.Total)
		return nil
	},
}

var itemsGetCmd = &cobra.Command{
	Use:   "get <item-id>",
	Short: "Show one item",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := getClient()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		it, err := client.Items.Get(ctx, args[0])
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}

		fmt.Printf("Title:       %s\n", it.Title)
		fmt.Printf("Type:        %s\n", it.Type)
		fmt.Printf("Status:      %s\n", it.Status)
		fmt.Printf("Category:    %s\n", it.Category)
		fmt.Printf("Location:    %s\n", it.Location)
		fmt.Printf("Date:        %s\n", it.DateLostFound)
		fmt.Printf("Description: %s\n", it.Description)
		if it.User != nil {
			fmt.Printf("Reported by: %s\n", it.User.DisplayName())
		}
		return nil
	},
}

var itemsReportCmd = &cobra.Command{
	Use:   "report",
	Short: "Report a lost or found item",
	RunE: func(cmd *cobra.Command, args []string) error {
		if itemsReportType != "lost" && itemsReportType != "found" {
			return fmt.Errorf("--type must be lost or found")
		}
		if itemsReportTitle == "" {
			return fmt.Errorf("--title is required")
		}

		var tags []string
		if itemsReportTags != "" {
			for _, t := range strings.Split(itemsReportTags, ",") {
				tags = append(tags, strings.TrimSpace(t))
			}
		}

		client := getClient()
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		it, err := client.Items.Create(ctx, &campusfind.CreateItemOptions{
			Type:          itemsReportType,
			Title:         itemsReportTitle,
			Description:   itemsReportDesc,
			Category:      itemsReportCategory,
			Location:      itemsReportLocation,
			DateLostFound: itemsReportDate,
			Tags:          tags,
		})
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		fmt.Printf("Reported %s item %s\n", it.Type, it.ID)
		return nil
	},
}

var itemsMineCmd = &cobra.Command{
	Use:   "mine",
	Short: "List items you reported",
	RunE: func(cmd *cobra.Command, args []string) error {
		client := getClient()
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		items, err := client.Items.Mine(ctx)
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		if len(items) == 0 {
			fmt.Println("You have not reported any items.")
			return nil
		}
		for _, it := range items {
			fmt.Printf("%-36s  %-5s  %-10s  %s\n", it.ID, it.Type, it.Status, it.Title)
		}
		return nil
	},
}

var itemsMatchesCmd = &cobra.Command{
	Use:   "matches <item-id>",
	Short: "Show scored matches for an item",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := getClient()
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		matches, err := client.Matches.ForItem(ctx, args[0])
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		if len(matches) == 0 {
			fmt.Println("No matches yet.")
			return nil
		}
		for _, m := range matches {
			title := m.FoundItemID
			if m.FoundItem != nil {
				title = m.FoundItem.Title
			}
			fmt.Printf("%.0f%%  %-36s  %s\n", m.SimilarityScore*100, m.ID, title)
		}
		return nil
	},
}

var claimCmd = &cobra.Command{
	Use:   "claim <item-id>",
	Short: "File a claim on a found item",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := getClient()
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		answers := map[string]any{}
		if claimItemDesc != "" {
			answers["description"] = claimItemDesc
		}

		c, err := client.Claims.Create(ctx, &campusfind.CreateClaimOptions{
			ItemID:              args[0],
			VerificationAnswers: answers,
		})
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		fmt.Printf("Claim %s filed (status: %s)\n", c.ID, c.Status)
		return nil
	},
}

func init() {
	itemsListCmd.Flags().StringVar(&itemsListType, "type", "", "filter by type (lost|found)")
	itemsListCmd.Flags().StringVar(&itemsListCategory, "category", "", "filter by category")
	itemsListCmd.Flags().StringVar(&itemsListStatus, "status", "", "filter by status")
	itemsListCmd.Flags().StringVar(&itemsListSearch, "search", "", "full-text search")
	itemsListCmd.Flags().IntVar(&itemsListLimit, "limit", 20, "maximum results")
	itemsListCmd.Flags().BoolVar(&itemsListJSON, "json", false, "raw JSON output")

	itemsReportCmd.Flags().StringVar(&itemsReportType, "type", "", "lost or found")
	itemsReportCmd.Flags().StringVar(&itemsReportTitle, "title", "", "short title")
	itemsReportCmd.Flags().StringVar(&itemsReportDesc, "description", "", "description")
	itemsReportCmd.Flags().StringVar(&itemsReportCategory, "category", "other", "category")
	itemsReportCmd.Flags().StringVar(&itemsReportLocation, "location", "", "where it was lost/found")
	itemsReportCmd.Flags().StringVar(&itemsReportDate, "date", time.Now().Format("2006-01-02"), "date lost/found")
	itemsReportCmd.Flags().StringVar(&itemsReportTags, "tags", "", "comma-separated tags")

	claimCmd.Flags().StringVar(&claimItemDesc, "description", "", "how you can identify the item")

	itemsCmd.AddCommand(itemsListCmd)
	itemsCmd.AddCommand(itemsGetCmd)
	itemsCmd.AddCommand(itemsReportCmd)
	itemsCmd.AddCommand(itemsMineCmd)
	itemsCmd.AddCommand(itemsMatchesCmd)
	rootCmd.AddCommand(itemsCmd)
	rootCmd.AddCommand(claimCmd)
}
