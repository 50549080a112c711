package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kirillkom/shipment-tariff-agent/internal/bootstrap"
	"github.com/kirillkom/shipment-tariff-agent/internal/config"
	"github.com/kirillkom/shipment-tariff-agent/internal/core/domain"
	"github.com/kirillkom/shipment-tariff-agent/internal/core/usecase"
	"github.com/kirillkom/shipment-tariff-agent/internal/infrastructure/queue/nats"
	"github.com/kirillkom/shipment-tariff-agent/internal/observability/logging"
)

func newRootCmd() *cobra.Command {
	var logLevel string
	root := &cobra.Command{
		Use:           "tariffctl",
		Short:         "Group shipment documents and enrich shipments with tariff data",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level for diagnostics on stderr")
	root.AddCommand(newGroupCmd(), newEnrichCmd(&logLevel))
	return root
}

func newGroupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "group FILE",
		Short: "Cluster extracted documents into shipments",
		Long:  "Reads a JSON array of extracted documents (or an object with a \"files\" array) and prints the shipment groups.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := readInput(cmd.InOrStdin(), args[0])
			if err != nil {
				return err
			}
			docs, err := decodeDocuments(raw)
			if err != nil {
				return err
			}
			groups, err := usecase.NewGroupShipmentsUseCase(nil).Group(cmd.Context(), docs)
			if err != nil {
				return err
			}
			if groups == nil {
				groups = []domain.ShipmentGroup{}
			}
			return writeOutput(cmd.OutOrStdout(), map[string]any{"groups": groups})
		},
	}
}

func newEnrichCmd(logLevel *string) *cobra.Command {
	var (
		destination string
		origin      string
		remote      bool
	)
	cmd := &cobra.Command{
		Use:   "enrich FILE",
		Short: "Enrich a shipment's line items with tariff codes and duty",
		Long:  "Reads a shipment JSON document (or an enrichment request envelope) and prints the enriched shipment with its report.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := readInput(cmd.InOrStdin(), args[0])
			if err != nil {
				return err
			}
			req, err := decodeEnrichmentRequest(raw)
			if err != nil {
				return err
			}
			if destination != "" {
				req.DestinationCountry = destination
			}
			if origin != "" {
				req.OriginCountry = origin
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			var resp any
			if remote {
				resp, err = enrichRemote(ctx, cfg, req)
			} else {
				resp, err = enrichLocal(ctx, cfg, *logLevel, req)
			}
			if err != nil {
				return err
			}
			return writeOutput(cmd.OutOrStdout(), resp)
		},
	}
	cmd.Flags().StringVar(&destination, "destination", "", "destination country (defaults to the receiver address, then US)")
	cmd.Flags().StringVar(&origin, "origin", "", "origin country (defaults to the shipper address, then IN)")
	cmd.Flags().BoolVar(&remote, "remote", false, "send the request to the enrichment workers over NATS")
	return cmd
}

func enrichLocal(ctx context.Context, cfg config.Config, logLevel string, req domain.EnrichmentRequest) (domain.EnrichmentResponse, error) {
	logger := logging.NewJSONLoggerTo(os.Stderr, "tariffctl", logLevel)
	app, err := bootstrap.New(ctx, cfg, logger, nil)
	if err != nil {
		return domain.EnrichmentResponse{}, err
	}
	defer app.Close()
	return usecase.RunEnrichmentRequest(ctx, app.EnrichUC, req)
}

func enrichRemote(ctx context.Context, cfg config.Config, req domain.EnrichmentRequest) (json.RawMessage, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	retry := false
	queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{RetryOnFailedConnect: &retry})
	if err != nil {
		return nil, err
	}
	defer queue.Close()

	reqCtx, cancel := context.WithTimeout(ctx, cfg.NATSRequestTimeout)
	defer cancel()
	return queue.RequestEnrichment(reqCtx, payload)
}

func readInput(stdin io.Reader, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(stdin)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return raw, nil
}

func decodeDocuments(raw []byte) ([]domain.ExtractedDocument, error) {
	var docs []domain.ExtractedDocument
	if err := json.Unmarshal(raw, &docs); err == nil {
		return docs, nil
	}
	var wrapped struct {
		Files []domain.ExtractedDocument `json:"files"`
	}
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return nil, fmt.Errorf("decode documents: %w", err)
	}
	return wrapped.Files, nil
}

// decodeEnrichmentRequest accepts either a request envelope or a bare
// shipment document.
func decodeEnrichmentRequest(raw []byte) (domain.EnrichmentRequest, error) {
	var req domain.EnrichmentRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return req, fmt.Errorf("decode shipment: %w", err)
	}
	if req.Shipment != nil {
		return req, nil
	}
	var shipment domain.Shipment
	if err := json.Unmarshal(raw, &shipment); err != nil {
		return req, fmt.Errorf("decode shipment: %w", err)
	}
	if len(shipment.Boxes) == 0 && len(shipment.ProductDetails) == 0 {
		return req, errors.New("decode shipment: no shipment_boxes or product_details found")
	}
	req.Shipment = &shipment
	return req, nil
}

func writeOutput(w io.Writer, payload any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(payload)
}
