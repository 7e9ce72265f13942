package es

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/elastic/go-elasticsearch/v9"

	"github.com/shopit/backend/internal/models"
)

// Indexer keeps the product search index in step with the catalog. A nil
// Indexer is a no-op, mirroring the kafka producer.
type Indexer struct {
	Client *elasticsearch.Client
	Index  string
}

func (ix *Indexer) IndexProduct(ctx context.Context, p models.Product) error {
	if ix == nil || ix.Client == nil {
		return nil
	}

	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("es: json.Marshal failed: %w", err)
	}

	res, err := ix.Client.Index(
		ix.Index,
		bytes.NewReader(data),
		ix.Client.Index.WithDocumentID(strconv.FormatUint(uint64(p.ID), 10)),
		ix.Client.Index.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("es: index failed: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("es: index error: %s", res.Status())
	}
	return nil
}

func (ix *Indexer) DeleteProduct(ctx context.Context, id uint) error {
	if ix == nil || ix.Client == nil {
		return nil
	}

	res, err := ix.Client.Delete(
		ix.Index,
		strconv.FormatUint(uint64(id), 10),
		ix.Client.Delete.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("es: delete failed: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() && res.StatusCode != 404 {
		return fmt.Errorf("es: delete error: %s", res.Status())
	}
	return nil
}
