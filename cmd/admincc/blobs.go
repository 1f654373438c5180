package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Agronaut41/admin-cc/internal/blobstore"
	"github.com/Agronaut41/admin-cc/internal/config"
	"github.com/Agronaut41/admin-cc/internal/models"
	"github.com/Agronaut41/admin-cc/internal/refindex"
)

func newBlobsCmd(cfg *config.Config, output *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "blobs",
		Short: "Inspect and manage stored blobs",
	}
	cmd.AddCommand(
		newBlobsListCmd(cfg, output),
		newBlobsShowCmd(cfg, output),
		newBlobsCatCmd(cfg),
		newBlobsRemoveCmd(cfg),
		newBlobsRefsCmd(cfg, output),
	)
	return cmd
}

func newBlobsListCmd(cfg *config.Config, output *string) *cobra.Command {
	var (
		prefix  string
		exclude []string
		limit   int
	)

	cmd := &cobra.Command{
		Use:     "ls",
		Aliases: []string{"list"},
		Short:   "List blobs in id order",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStack(cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			cur := st.blobs.List(cmd.Context(), blobstore.Filter{MediaTypePrefix: prefix, ExcludeMediaTypes: exclude})
			defer cur.Close()

			blobs := []models.Blob{}
			for cur.Next() {
				blobs = append(blobs, cur.Blob())
				if limit > 0 && len(blobs) >= limit {
					break
				}
			}
			if err := cur.Err(); err != nil {
				return err
			}

			if !isTextOutput(*output) {
				return writeStructured(*output, blobs)
			}
			return writeBlobTable(blobs)
		},
	}

	cmd.Flags().StringVar(&prefix, "prefix", "", "only media types starting with this prefix (e.g. image/)")
	cmd.Flags().StringSliceVar(&exclude, "exclude", nil, "media types to leave out")
	cmd.Flags().IntVar(&limit, "limit", 0, "show at most N blobs")
	return cmd
}

func newBlobsShowCmd(cfg *config.Config, output *string) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id|locator>",
		Short: "Show a blob's catalog entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := blobIDArg(args[0])
			if err != nil {
				return err
			}
			st, err := openStack(cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			blob, err := st.blobs.Stat(cmd.Context(), id)
			if err != nil {
				return err
			}
			if !isTextOutput(*output) {
				return writeStructured(*output, blob)
			}
			return writeBlobDetail(blob)
		},
	}
}

func newBlobsCatCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "cat <id|locator>",
		Short: "Write a blob's bytes to stdout",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := blobIDArg(args[0])
			if err != nil {
				return err
			}
			st, err := openStack(cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			rc, err := st.blobs.Get(cmd.Context(), id)
			if err != nil {
				return err
			}
			defer rc.Close()
			_, err = io.Copy(stdout, rc)
			return err
		},
	}
}

func newBlobsRemoveCmd(cfg *config.Config) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "rm <id|locator>...",
		Short: "Delete blobs that nothing references",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStack(cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			refs := refindex.New(st.db, nil)
			for _, arg := range args {
				id, err := blobIDArg(arg)
				if err != nil {
					return err
				}
				if !force {
					counts, err := refs.Count(cmd.Context(), refindex.Locator(id))
					if err != nil {
						return err
					}
					if counts.Total() > 0 {
						return fmt.Errorf("%s is still referenced by %d cacamba(s) and %d order(s); use --force to delete anyway",
							id, counts.SingleFieldUpdates, counts.ArrayFieldUpdates)
					}
				}
				if err := st.blobs.Delete(cmd.Context(), id); err != nil {
					return fmt.Errorf("%s: %w", id, err)
				}
				if err := writePlain("deleted %s\n", id); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "delete even when cacambas or orders still point at the blob")
	return cmd
}

type refsResult struct {
	Locator  string `json:"locator" yaml:"locator"`
	Cacambas int    `json:"cacambas" yaml:"cacambas"`
	Orders   int    `json:"orders" yaml:"orders"`
}

func newBlobsRefsCmd(cfg *config.Config, output *string) *cobra.Command {
	return &cobra.Command{
		Use:   "refs <id|locator>",
		Short: "Count the cacambas and orders pointing at a blob",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := blobIDArg(args[0])
			if err != nil {
				return err
			}
			st, err := openStack(cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			locator := refindex.Locator(id)
			counts, err := refindex.New(st.db, nil).Count(cmd.Context(), locator)
			if err != nil {
				return err
			}
			res := refsResult{Locator: locator, Cacambas: counts.SingleFieldUpdates, Orders: counts.ArrayFieldUpdates}
			if !isTextOutput(*output) {
				return writeStructured(*output, res)
			}
			return writePlain("%s cacambas:%d orders:%d\n", res.Locator, res.Cacambas, res.Orders)
		},
	}
}

// blobIDArg accepts a bare id, a locator or a full URL containing a locator.
func blobIDArg(arg string) (string, error) {
	arg = strings.TrimSpace(arg)
	if id := strings.ToLower(arg); blobstore.ValidID(id) {
		return id, nil
	}
	if id, ok := refindex.ExtractBlobID(arg); ok {
		return id, nil
	}
	return "", fmt.Errorf("not a blob id or locator: %q", arg)
}
