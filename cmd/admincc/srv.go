package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Agronaut41/admin-cc/internal/config"
	"github.com/Agronaut41/admin-cc/internal/ingest"
	"github.com/Agronaut41/admin-cc/internal/server"
)

func newSrvCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "srv",
		Short: "Run the admincc file API server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := server.ListenAddr(cfg.APIURL)
			if err != nil {
				return err
			}
			imageOpts, err := uploadTranscodeOptions(cfg)
			if err != nil {
				return err
			}

			st, err := openStack(cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			svc := ingest.NewService(st.blobs, nil, ingest.Options{
				Transcode:      imageOpts,
				MaxUploadBytes: cfg.Uploads.MaxUploadBytes,
				Logger:         slog.Default(),
			})
			srv := server.New(addr, st.blobs, svc, server.Options{
				MultipartMaxMemory: cfg.Uploads.MultipartMaxMemory,
				Logger:             slog.Default(),
			})
			return srv.ListenAndServe(cmd.Context())
		},
	}
}
