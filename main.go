package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/SaiNageswarS/go-api-boot/logger"
	"github.com/SaiNageswarS/go-api-boot/server"
	"github.com/SaiNageswarS/medicode-agent/handlers"
	"github.com/SaiNageswarS/medicode-agent/mcpserver"
	"github.com/SaiNageswarS/medicode-agent/services"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const version = "0.1.0"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "medicode-agent",
		Short:         "Assign ICD-10-CM, HCPCS and CPT-4 codes to clinical notes",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "config.ini", "path to config.ini")

	root.AddCommand(newServeCmd(&configPath), newCodeCmd(&configPath), newMCPCmd(&configPath))
	return root
}

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := getCancellableContext()
			app := mustBootstrap(ctx, *configPath)
			defer app.Close()

			builder := server.New().
				GRPCPort(app.cfg.GRPCPort).
				HTTPPort(app.cfg.HTTPPort)
			for pattern, h := range handlers.NewMedicalCodingHandler(app.service, app.cfg.UploadDir).Routes() {
				builder = builder.Handle(pattern, h)
			}

			boot, err := builder.Build()
			if err != nil {
				logger.Error("Failed to build server", zap.Error(err))
				return err
			}

			if err := boot.Serve(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) && !errors.Is(err, context.Canceled) {
				logger.Error("Server stopped", zap.Error(err))
				return err
			}
			return nil
		},
	}
}

func newCodeCmd(configPath *string) *cobra.Command {
	var text, pdfPath string

	cmd := &cobra.Command{
		Use:   "code",
		Short: "Code a single clinical note and print the result as JSON",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if (text == "") == (pdfPath == "") {
				return errors.New("exactly one of --text or --pdf is required")
			}

			ctx := getCancellableContext()
			app := mustBootstrap(ctx, *configPath)
			defer app.Close()

			var (
				report *services.CodingReport
				err    error
			)
			if pdfPath != "" {
				report, err = app.service.CodePDF(ctx, pdfPath)
			} else {
				report, err = app.service.Code(ctx, text)
			}
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		},
	}
	cmd.Flags().StringVar(&text, "text", "", "clinical note text")
	cmd.Flags().StringVar(&pdfPath, "pdf", "", "path of a PDF clinical note")
	return cmd
}

func newMCPCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Expose medical coding as an MCP tool over stdio",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := getCancellableContext()
			app := mustBootstrap(ctx, *configPath)
			defer app.Close()

			if err := mcpserver.Serve(ctx, app.service, version); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("mcp server: %w", err)
			}
			return nil
		},
	}
}

func mustBootstrap(ctx context.Context, configPath string) *application {
	app, err := bootstrap(ctx, configPath)
	if err != nil {
		logger.Fatal("Failed to start", zap.Error(err))
	}
	return app
}

func getCancellableContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sig
		cancel()
	}()

	return ctx
}
