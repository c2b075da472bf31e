package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/tunnelmesh/metacoord/internal/server"
	"github.com/tunnelmesh/metacoord/pkg/bytesize"
	"github.com/tunnelmesh/metacoord/pkg/proto"
)

// DefaultServerAddr is the coordinator address the client commands use by default.
const DefaultServerAddr = "localhost:9000"

type clientFlags struct {
	server  string
	timeout time.Duration
	json    bool
}

func (f *clientFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.server, "server", "s", DefaultServerAddr, "Coordinator address (host:port)")
	cmd.Flags().DurationVar(&f.timeout, "timeout", 10*time.Second, "Request timeout")
	cmd.Flags().BoolVar(&f.json, "json", false, "Print the raw placement list as JSON")
}

func (f *clientFlags) context(parent context.Context) (context.Context, context.CancelFunc) {
	if f.timeout <= 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, f.timeout)
}

func newUploadCmd() *cobra.Command {
	var (
		flags     clientFlags
		chunks    int
		size      string
		chunkSize string
	)

	cmd := &cobra.Command{
		Use:   "upload <filename>",
		Short: "Ask the coordinator where to store the chunks of a file",
		Long: `Ask the coordinator where to store the chunks of a file. The placement replaces any
earlier placement recorded for the same filename.

Give the chunk count directly with --chunks, or let it be derived from --size and
--chunk-size.

Examples:
  metacoord upload report.pdf --chunks 3
  metacoord upload movie.mp4 --size 150MB --chunk-size 64MB`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, summary, err := resolveChunkCount(cmd.Flags().Changed("chunks"), chunks, size, chunkSize)
			if err != nil {
				return err
			}
			if summary != "" && !flags.json {
				_, _ = fmt.Fprintln(cmd.ErrOrStderr(), summary)
			}

			ctx, cancel := flags.context(cmd.Context())
			defer cancel()

			placements, err := server.NewClient(flags.server).Upload(ctx, args[0], n)
			if err != nil {
				return err
			}
			return printPlacements(cmd.OutOrStdout(), placements, flags.json)
		},
	}
	flags.register(cmd)
	cmd.Flags().IntVarP(&chunks, "chunks", "n", 0, "Number of chunks")
	cmd.Flags().StringVar(&size, "size", "", "File size, e.g. 150MB (used when --chunks is not set)")
	cmd.Flags().StringVar(&chunkSize, "chunk-size", "64MB", "Chunk size used with --size")
	cmd.MarkFlagsMutuallyExclusive("chunks", "size")

	return cmd
}

func newDownloadCmd() *cobra.Command {
	var flags clientFlags

	cmd := &cobra.Command{
		Use:   "download <filename>",
		Short: "Ask the coordinator where the chunks of a file are stored",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := flags.context(cmd.Context())
			defer cancel()

			placements, err := server.NewClient(flags.server).Download(ctx, args[0])
			if err != nil {
				return err
			}
			if len(placements) == 0 && !flags.json {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "No chunks recorded for %q.\n", args[0])
				return nil
			}
			return printPlacements(cmd.OutOrStdout(), placements, flags.json)
		},
	}
	flags.register(cmd)

	return cmd
}

// resolveChunkCount returns the chunk count from --chunks, or from --size and --chunk-size.
// When the count is derived, summary describes how.
func resolveChunkCount(chunksSet bool, chunks int, size, chunkSize string) (n int, summary string, err error) {
	if chunksSet {
		if chunks < 0 {
			return 0, "", fmt.Errorf("--chunks must not be negative")
		}
		return chunks, "", nil
	}
	if size == "" {
		return 0, "", errors.New("one of --chunks or --size is required")
	}

	fileBytes, err := bytesize.Parse(size)
	if err != nil {
		return 0, "", fmt.Errorf("invalid --size: %w", err)
	}
	chunkBytes := bytesize.DefaultChunkSize
	if chunkSize != "" {
		chunkBytes, err = bytesize.Parse(chunkSize)
		if err != nil {
			return 0, "", fmt.Errorf("invalid --chunk-size: %w", err)
		}
	}
	n, err = bytesize.ChunkCount(fileBytes, chunkBytes)
	if err != nil {
		return 0, "", err
	}
	summary = fmt.Sprintf("%s in %d chunk(s) of %s", bytesize.Format(fileBytes), n, bytesize.Format(chunkBytes))
	return n, summary, nil
}

func printPlacements(out io.Writer, placements []proto.ChunkPlacement, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(placements)
	}

	if len(placements) == 0 {
		_, _ = fmt.Fprintln(out, "No placements returned.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "CHUNK\tNODE\tREPLICAS")
	for _, p := range placements {
		replicas := "-"
		if len(p.Replicas) > 0 {
			replicas = fmt.Sprint(p.Replicas)
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", p.ChunkID, p.NodeAddress, replicas)
	}
	return w.Flush()
}
