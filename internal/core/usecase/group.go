package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/kirillkom/shipment-tariff-agent/internal/core/domain"
)

// GroupThreshold is the minimum score for joining an existing group.
const GroupThreshold = 0.30

// GroupShipmentsUseCase clusters documents into shipments in a single greedy
// pass. Arrival order can change the outcome: three pairwise-plausible
// documents may split across two groups. That is accepted behavior.
type GroupShipmentsUseCase struct {
	logger *slog.Logger
}

func NewGroupShipmentsUseCase(logger *slog.Logger) *GroupShipmentsUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	return &GroupShipmentsUseCase{logger: logger}
}

func (uc *GroupShipmentsUseCase) Group(ctx context.Context, docs []domain.ExtractedDocument) ([]domain.ShipmentGroup, error) {
	if len(docs) == 0 {
		return []domain.ShipmentGroup{}, nil
	}

	var groups [][]domain.DocumentMetadata
	for _, doc := range docs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if strings.TrimSpace(doc.FileID) == "" {
			return nil, domain.WrapError(domain.ErrInvalidInput, "group shipments", fmt.Errorf("document without id: %q", doc.Filename))
		}
		meta := ExtractMetadata(doc)

		bestIdx := -1
		bestScore := 0.0
		for idx, members := range groups {
			score := MatchScore(meta, members)
			if score > bestScore && score >= GroupThreshold {
				bestScore = score
				bestIdx = idx
			}
		}

		if bestIdx >= 0 {
			groups[bestIdx] = append(groups[bestIdx], meta)
			uc.logger.Debug("shipment_group_join",
				"file_id", meta.FileID,
				"filename", meta.Filename,
				"group", bestIdx,
				"score", bestScore,
				"invoice_number", meta.InvoiceNumber,
				"seller", meta.SellerName,
			)
			continue
		}
		groups = append(groups, []domain.DocumentMetadata{meta})
		uc.logger.Debug("shipment_group_new",
			"file_id", meta.FileID,
			"filename", meta.Filename,
			"group", len(groups)-1,
			"filename_tokens", sortedTokens(meta.FilenameTokens),
		)
	}

	out := make([]domain.ShipmentGroup, 0, len(groups))
	for _, members := range groups {
		ids := make([]string, 0, len(members))
		for _, m := range members {
			ids = append(ids, m.FileID)
		}
		out = append(out, domain.ShipmentGroup{FileIDs: ids, Reason: groupingReason(members)})
	}

	uc.logger.Info("shipment_grouping_complete", "documents", len(docs), "groups", len(out))
	return out, nil
}

func groupingReason(members []domain.DocumentMetadata) string {
	var reasons []string
	for _, m := range members {
		if m.Kind != domain.KindInvoice {
			continue
		}
		if m.InvoiceNumber != "" {
			reasons = append(reasons, "Invoice #"+m.InvoiceNumber)
		}
		if m.SellerName != "" {
			reasons = append(reasons, "Seller: "+m.SellerName)
		}
		break
	}
	if len(reasons) == 0 {
		for _, m := range members {
			if m.SellerName != "" {
				reasons = append(reasons, "Party: "+m.SellerName)
				break
			}
			if m.BuyerName != "" {
				reasons = append(reasons, "Party: "+m.BuyerName)
				break
			}
		}
	}
	if len(reasons) == 0 {
		return fmt.Sprintf("%d file(s) grouped", len(members))
	}
	return strings.Join(reasons, " | ")
}

func sortedTokens(tokens map[string]struct{}) []string {
	out := make([]string, 0, len(tokens))
	for t := range tokens {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
