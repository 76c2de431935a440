package search

import (
	"bytes"
	"context"
	"encoding/json"
	"time"

	"example.com/eventreg/config"
	"example.com/eventreg/internal/models"

	"github.com/elastic/go-elasticsearch/v7"
	"github.com/elastic/go-elasticsearch/v7/esapi"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// ElasticClient feeds the settlement audit index. Admin search screens read
// the index; the pipeline only writes to it.
type ElasticClient struct {
	client *elasticsearch.Client
	config config.ElasticConfig
}

// NewElasticClient creates a new Elasticsearch client
func NewElasticClient(cfg config.ElasticConfig) (*ElasticClient, error) {
	esConfig := elasticsearch.Config{
		Addresses: []string{cfg.URL},
		Username:  cfg.Username,
		Password:  cfg.Password,
	}

	client, err := elasticsearch.NewClient(esConfig)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create Elasticsearch client")
	}

	return &ElasticClient{
		client: client,
		config: cfg,
	}, nil
}

// IndexSettlement indexes a settled payment with its batch context.
func (c *ElasticClient) IndexSettlement(ctx context.Context, payment *models.Payment, batch *models.Batch, school *models.School, event *models.Event) error {
	log.Info().Str("payment_id", payment.ID.String()).Msg("indexing settlement")

	doc := map[string]interface{}{
		"payment_id":      payment.ID.String(),
		"batch_id":        batch.ID.String(),
		"batch_reference": batch.Reference,
		"school_id":       school.ID.String(),
		"school_name":     school.Name,
		"school_country":  school.Country,
		"event_id":        event.ID.String(),
		"event_name":      event.Name,
		"amount":          payment.Amount,
		"currency":        payment.Currency,
		"payment_mode":    payment.PaymentMode,
		"status":          payment.Status,
		"total_students":  batch.TotalStudents,
		"discount_pct":    batch.DiscountPct,
		"settled_at":      time.Now().UTC().Format(time.RFC3339),
	}

	docJSON, err := json.Marshal(doc)
	if err != nil {
		return errors.Wrap(err, "failed to marshal settlement document")
	}

	indexName := config.FormatIndex(c.config, c.config.Index)

	req := esapi.IndexRequest{
		Index:      indexName,
		DocumentID: payment.ID.String(),
		Body:       bytes.NewReader(docJSON),
		Refresh:    "false",
	}

	res, err := req.Do(ctx, c.client)
	if err != nil {
		return errors.Wrap(err, "failed to index settlement document")
	}
	defer res.Body.Close()

	if res.IsError() {
		return errors.Errorf("failed to index settlement document: %s", res.String())
	}

	return nil
}
