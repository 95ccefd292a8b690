package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/keyxmakerx/atlas/internal/entity"
	"github.com/keyxmakerx/atlas/internal/mediaapi"
	"github.com/keyxmakerx/atlas/internal/mediastore"
)

func newListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list TYPE ID",
		Short: "List the media attached to an entity",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.openStore(cmd, args[0], args[1])
			if err != nil {
				return err
			}
			printView(cmd, store)
			return nil
		},
	}
}

func printView(cmd *cobra.Command, store *mediastore.Store) {
	now := time.Now()
	rows := store.View(now)
	if len(rows) == 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "No media attached to %s\n", store.Ref())
		return
	}
	fmt.Fprint(cmd.OutOrStdout(), renderRows(rows, now))
}

func newUploadCommand(ctx *commandContext) *cobra.Command {
	var description string
	cmd := &cobra.Command{
		Use:   "upload TYPE ID FILE",
		Short: "Upload a file and attach it to an entity",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.openStore(cmd, args[0], args[1])
			if err != nil {
				return err
			}
			f, err := os.Open(args[2])
			if err != nil {
				return err
			}
			defer f.Close()
			info, err := f.Stat()
			if err != nil {
				return err
			}

			item, err := store.Upload(cmd.Context(), filepath.Base(args[2]), info.Size(), f, description)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Uploaded %s as %s (%s)\n", item.FileName, item.ID, item.FileType)
			return nil
		},
	}
	cmd.Flags().StringVarP(&description, "description", "d", "", "Description of the file")
	return cmd
}

func newDeleteCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "delete TYPE ID MEDIA_ID",
		Short: "Detach a file from an entity (the file itself is kept)",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.openStore(cmd, args[0], args[1])
			if err != nil {
				return err
			}
			if err := store.Delete(cmd.Context(), args[2]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Detached %s from %s\n", args[2], store.Ref())
			return nil
		},
	}
}

func newReorderCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "reorder TYPE ID MEDIA_ID...",
		Short: "Set the complete display order of an entity's media",
		Args:  cobra.MinimumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.openStore(cmd, args[0], args[1])
			if err != nil {
				return err
			}
			if err := store.Reorder(cmd.Context(), args[2:]); err != nil {
				return err
			}
			printView(cmd, store)
			return nil
		},
	}
}

func newDescribeCommand(ctx *commandContext) *cobra.Command {
	var (
		description string
		duration    float64
		width       int
		height      int
	)
	cmd := &cobra.Command{
		Use:   "describe TYPE ID MEDIA_ID",
		Short: "Edit a file's description and dimensions",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			var req mediaapi.UpdateMetadataRequest
			flags := cmd.Flags()
			if flags.Changed("description") {
				req.Description = &description
			}
			if flags.Changed("duration") {
				req.DurationSeconds = &duration
			}
			if flags.Changed("width") {
				req.Width = &width
			}
			if flags.Changed("height") {
				req.Height = &height
			}
			if req.Empty() {
				return errors.New("nothing to update; pass --description, --duration, --width or --height")
			}

			store, err := ctx.openStore(cmd, args[0], args[1])
			if err != nil {
				return err
			}
			if err := store.UpdateMetadata(cmd.Context(), args[2], req); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Updated %s\n", args[2])
			return nil
		},
	}
	cmd.Flags().StringVarP(&description, "description", "d", "", "New description")
	cmd.Flags().Float64Var(&duration, "duration", 0, "Duration in seconds (video/audio)")
	cmd.Flags().IntVar(&width, "width", 0, "Width in pixels")
	cmd.Flags().IntVar(&height, "height", 0, "Height in pixels")
	return cmd
}

func newLinkCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "link TYPE ID MEDIA_ID",
		Short: "Attach an already uploaded file to an entity",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.openStore(cmd, args[0], args[1])
			if err != nil {
				return err
			}
			item, err := store.Link(cmd.Context(), args[2])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Linked %s to %s at position %d\n", item.ID, store.Ref(), item.DisplayOrder)
			return nil
		},
	}
}

func newSearchCommand(ctx *commandContext) *cobra.Command {
	var (
		query    string
		fileType string
		limit    int
	)
	cmd := &cobra.Command{
		Use:   "search TYPE ID",
		Short: "Search the catalog for files not yet attached to an entity",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := parseRef(args[0], args[1])
			if err != nil {
				return err
			}
			client, cfg, err := ctx.ensureClient()
			if err != nil {
				return err
			}

			var (
				files     []mediaapi.File
				searchErr error
			)
			searcher := mediastore.NewSearcher(client.Search, ref, cfg.Media.SearchDebounce, ctx.diag,
				func(result []mediaapi.File, err error) {
					files, searchErr = result, err
				})
			defer searcher.Close()

			searcher.Query(query, mediaapi.FileType(strings.ToLower(fileType)), limit)
			searcher.Flush()
			if searchErr != nil {
				return searchErr
			}
			if len(files) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No matching media")
				return nil
			}
			fmt.Fprint(cmd.OutOrStdout(), renderFiles(files))
			return nil
		},
	}
	cmd.Flags().StringVarP(&query, "query", "q", "", "Text to match in file names and descriptions")
	cmd.Flags().StringVarP(&fileType, "type", "t", "", "Restrict to image, video, audio or document")
	cmd.Flags().IntVarP(&limit, "limit", "n", mediaapi.DefaultSearchLimit, "Maximum number of results")
	return cmd
}

func newRefreshLinksCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh-links TYPE ID",
		Short: "Re-issue expiring file links for an entity's media",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.openStore(cmd, args[0], args[1])
			if err != nil {
				return err
			}
			result, err := store.RefreshLinks(cmd.Context())
			printBulk(cmd, "links", result)
			return err
		},
	}
}

func newRefreshPreviewsCommand(ctx *commandContext) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "refresh-previews TYPE ID",
		Short: "Regenerate stale or missing previews for an entity's media",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.openStore(cmd, args[0], args[1])
			if err != nil {
				return err
			}

			var promptErr error
			confirm := func(n int) bool {
				if yes {
					return true
				}
				if !isTerminal(cmd.InOrStdin()) {
					promptErr = errNeedsYes
					return false
				}
				return promptYesNo(cmd.InOrStdin(), cmd.OutOrStdout(),
					fmt.Sprintf("Regenerate %d preview(s)? This calls the drive once per file.", n))
			}

			result, err := store.RefreshPreviews(cmd.Context(), confirm)
			if promptErr != nil {
				return promptErr
			}
			if errors.Is(err, mediastore.ErrNotConfirmed) {
				fmt.Fprintln(cmd.OutOrStdout(), "Cancelled")
				return nil
			}
			if result.Attempted == 0 && err == nil {
				fmt.Fprintln(cmd.OutOrStdout(), "All previews are fresh")
				return nil
			}
			printBulk(cmd, "previews", result)
			return err
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip the confirmation prompt")
	return cmd
}

func printBulk(cmd *cobra.Command, what string, r mediastore.BulkResult) {
	fmt.Fprintf(cmd.OutOrStdout(), "Refreshed %s: %d succeeded, %d failed of %d\n", what, r.Succeeded, r.Failed, r.Attempted)
}

func newTypesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "types",
		Short: "List the entity types media can be attached to",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			all := entity.All()
			rows := make([][]string, 0, len(all))
			for _, info := range all {
				rows = append(rows, []string{string(info.Type), info.Name, flag(info.IsGroup, "yes", "")})
			}
			fmt.Fprint(cmd.OutOrStdout(), renderTable([]string{"Type", "Name", "Group"}, rows, nil))
			return nil
		},
	}
}
