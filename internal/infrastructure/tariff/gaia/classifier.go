package gaia

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/kirillkom/shipment-tariff-agent/internal/core/domain"
)

const (
	classifyPath     = "/product/classification/tariff-code/autonomous"
	tariffDetailPath = "/tariff/detail"
)

type Classifier struct {
	client *Client
}

func NewClassifier(client *Client) *Classifier {
	return &Classifier{client: client}
}

func (c *Classifier) Classify(ctx context.Context, req domain.ClassifyRequest) (domain.ClassificationOutcome, error) {
	text := strings.TrimSpace(req.Description)
	if text == "" {
		return domain.ClassificationOutcome{}, domain.WrapError(domain.ErrInvalidInput, "gaia classify", errors.New("empty description"))
	}
	body := map[string]any{
		"input": map[string]string{
			"name":        text,
			"description": text,
		},
		"destination_country": req.DestinationCountry,
	}

	var raw json.RawMessage
	err := c.client.execute(ctx, "gaia.classify", func(ctx context.Context) error {
		return c.client.authorizedJSON(ctx, http.MethodPost, classifyPath, nil, body, &raw, "classify")
	})
	if err != nil {
		return domain.ClassificationOutcome{}, err
	}

	data := unwrapData(raw)
	var payload domain.ClassificationPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return domain.ClassificationOutcome{}, fmt.Errorf("parse classification payload: %w", err)
	}
	return domain.ClassificationOutcome{
		BestGuessCode:  strings.TrimSpace(payload.BestGuessCode),
		Confidence:     domain.ConfidenceLabel(strings.TrimSpace(payload.Confidence)),
		InlineBaseDuty: payload.InlineBaseDuty(),
		Raw:            data,
	}, nil
}

type TariffDetails struct {
	client *Client
}

func NewTariffDetails(client *Client) *TariffDetails {
	return &TariffDetails{client: client}
}

// TariffDetail fetches the duty breakdown for a code. A 404 is a normal
// "no detail" outcome.
func (t *TariffDetails) TariffDetail(ctx context.Context, req domain.TariffDetailRequest) (domain.TariffDetailLookup, error) {
	code := digitsOnly(req.ClassificationCode)
	if code == "" {
		return domain.TariffDetailLookup{}, domain.WrapError(domain.ErrInvalidInput, "gaia tariff detail", errors.New("empty classification code"))
	}
	query := url.Values{}
	query.Set("destination_country", req.DestinationCountry)
	query.Set("tariff_code", code)
	if req.OriginCountry != "" {
		query.Set("origin_country", req.OriginCountry)
	}

	var raw json.RawMessage
	notFound := false
	err := t.client.execute(ctx, "gaia.tariff_detail", func(ctx context.Context) error {
		err := t.client.authorizedJSON(ctx, http.MethodGet, tariffDetailPath, query, nil, &raw, "tariff_detail")
		if hasStatus(err, http.StatusNotFound) {
			notFound = true
			return nil
		}
		return err
	})
	if err != nil {
		return domain.TariffDetailLookup{}, err
	}
	if notFound {
		return domain.TariffDetailLookup{Found: false}, nil
	}

	data := unwrapData(raw)
	var detail domain.TariffDetail
	if err := json.Unmarshal(data, &detail); err != nil {
		return domain.TariffDetailLookup{}, fmt.Errorf("parse tariff detail payload: %w", err)
	}
	return domain.TariffDetailLookup{Found: true, Detail: detail, Raw: data}, nil
}

// unwrapData strips the {"data": ...} envelope some endpoints use.
func unwrapData(raw json.RawMessage) json.RawMessage {
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &envelope); err == nil {
		if d := bytes.TrimSpace(envelope.Data); len(d) > 0 && !bytes.Equal(d, []byte("null")) {
			return d
		}
	}
	return raw
}

func digitsOnly(code string) string {
	return strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, code)
}
