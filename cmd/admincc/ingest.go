package main

import (
	"bufio"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Agronaut41/admin-cc/internal/api"
	"github.com/Agronaut41/admin-cc/internal/config"
	"github.com/Agronaut41/admin-cc/internal/ingest"
)

type ingestResult struct {
	File string `json:"file" yaml:"file"`
	URL  string `json:"url" yaml:"url"`
}

func newIngestCmd(cfg *config.Config, output *string) *cobra.Command {
	var (
		remote    bool
		mediaType string
	)

	cmd := &cobra.Command{
		Use:   "ingest <file>...",
		Short: "Transcode and store images, printing their locators",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			upload, closeFn, err := ingestFunc(cmd, cfg, remote)
			if err != nil {
				return err
			}
			defer closeFn()

			results := make([]ingestResult, 0, len(args))
			for _, path := range args {
				locator, err := ingestFile(path, mediaType, upload)
				if err != nil {
					return fmt.Errorf("%s: %w", path, err)
				}
				results = append(results, ingestResult{File: path, URL: locator})
				if isTextOutput(*output) {
					if err := writePlain("%s\t%s\n", locator, path); err != nil {
						return err
					}
				}
			}
			if !isTextOutput(*output) {
				return writeStructured(*output, results)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&remote, "remote", false, "upload through the API server at api_url instead of writing the database directly")
	cmd.Flags().StringVar(&mediaType, "media-type", "", "declared media type (default: from extension, then content sniffing)")
	return cmd
}

type uploadFunc func(f *os.File, name, mediaType string) (string, error)

func ingestFunc(cmd *cobra.Command, cfg *config.Config, remote bool) (uploadFunc, func(), error) {
	ctx := cmd.Context()
	if remote {
		client := api.NewClient(cfg.APIURL)
		return func(f *os.File, name, mediaType string) (string, error) {
			return client.Upload(ctx, name, mediaType, f)
		}, func() {}, nil
	}

	imageOpts, err := uploadTranscodeOptions(cfg)
	if err != nil {
		return nil, nil, err
	}
	st, err := openStack(cfg)
	if err != nil {
		return nil, nil, err
	}
	svc := ingest.NewService(st.blobs, nil, ingest.Options{
		Transcode:      imageOpts,
		MaxUploadBytes: cfg.Uploads.MaxUploadBytes,
		Logger:         slog.Default(),
	})
	return func(f *os.File, name, mediaType string) (string, error) {
		return svc.IngestReader(ctx, f, name, mediaType)
	}, func() { _ = st.Close() }, nil
}

func ingestFile(path, declared string, upload uploadFunc) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	mediaType, err := detectMediaType(f, declared)
	if err != nil {
		return "", err
	}
	return upload(f, filepath.Base(path), mediaType)
}

// detectMediaType prefers the declared type, then the file extension, then
// the first 512 bytes. f is rewound afterwards.
func detectMediaType(f *os.File, declared string) (string, error) {
	if declared = strings.TrimSpace(declared); declared != "" {
		return declared, nil
	}
	if byExt := mime.TypeByExtension(strings.ToLower(filepath.Ext(f.Name()))); byExt != "" {
		return byExt, nil
	}
	peek, err := bufio.NewReader(f).Peek(512)
	if err != nil && len(peek) == 0 {
		return "", fmt.Errorf("read %s: %w", f.Name(), err)
	}
	if _, err := f.Seek(0, 0); err != nil {
		return "", err
	}
	return http.DetectContentType(peek), nil
}
