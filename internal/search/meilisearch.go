package search

import (
	"context"
	"errors"
	"strconv"

	"order-intake/internal/models"
	"order-intake/internal/store"

	"github.com/meilisearch/meilisearch-go"
)

// Document is the indexed projection of an order
type Document struct {
	ID                 uint   `json:"id"`
	OrderNumber        string `json:"order_number"`
	ProductName        string `json:"product_name"`
	RetailerName       string `json:"retailer_name"`
	RetailerEmail      string `json:"retailer_email"`
	ClientEmailSubject string `json:"client_email_subject"`
	Remarks            string `json:"remarks"`
	OrderStatus        string `json:"order_status"`
	PriorityLevel      string `json:"priority_level"`
	SourceOfOrder      string `json:"source_of_order"`
	CreatedAt          int64  `json:"created_at"`
}

func NewDocument(o *models.Order) Document {
	return Document{
		ID:                 o.ID,
		OrderNumber:        o.OrderNumber,
		ProductName:        o.ProductName,
		RetailerName:       o.RetailerName,
		RetailerEmail:      o.RetailerEmail,
		ClientEmailSubject: o.ClientEmailSubject,
		Remarks:            o.Remarks,
		OrderStatus:        string(o.OrderStatus),
		PriorityLevel:      string(o.PriorityLevel),
		SourceOfOrder:      string(o.SourceOfOrder),
		CreatedAt:          o.CreatedAt.Unix(),
	}
}

type SearchClient struct {
	client *meilisearch.Client
	index  string
}

func NewSearchClient(host, apiKey, index string) *SearchClient {
	client := meilisearch.NewClient(meilisearch.ClientConfig{
		Host:   host,
		APIKey: apiKey,
	})
	if index == "" {
		index = "orders"
	}

	return &SearchClient{
		client: client,
		index:  index,
	}
}

// InitIndex initializes the Meilisearch index
func (s *SearchClient) InitIndex() error {
	// Create index if it doesn't exist
	_, err := s.client.CreateIndex(&meilisearch.IndexConfig{
		Uid:        s.index,
		PrimaryKey: "id",
	})
	// Ignore error if index already exists
	if err != nil && err.Error() != "index already exists" {
		return err
	}

	_, err = s.client.Index(s.index).UpdateSearchableAttributes(&[]string{
		"product_name",
		"order_number",
		"retailer_name",
		"retailer_email",
		"client_email_subject",
		"remarks",
	})
	if err != nil {
		return err
	}

	_, err = s.client.Index(s.index).UpdateFilterableAttributes(&[]string{
		"order_status",
		"priority_level",
		"source_of_order",
	})
	if err != nil {
		return err
	}

	_, err = s.client.Index(s.index).UpdateSortableAttributes(&[]string{
		"created_at",
	})
	return err
}

// IndexOrder indexes a single order
func (s *SearchClient) IndexOrder(order *models.Order) error {
	_, err := s.client.Index(s.index).AddDocuments([]Document{NewDocument(order)})
	return err
}

// IndexOrders indexes multiple orders
func (s *SearchClient) IndexOrders(orders []models.Order) error {
	if len(orders) == 0 {
		return nil
	}
	docs := make([]Document, 0, len(orders))
	for i := range orders {
		docs = append(docs, NewDocument(&orders[i]))
	}
	_, err := s.client.Index(s.index).AddDocuments(docs)
	return err
}

// RemoveOrders drops purged orders from the index
func (s *SearchClient) RemoveOrders(ids []uint) error {
	if len(ids) == 0 {
		return nil
	}
	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, strconv.FormatUint(uint64(id), 10))
	}
	_, err := s.client.Index(s.index).DeleteDocuments(keys)
	return err
}

// SearchIDs returns the ids of matching orders in relevance order
func (s *SearchClient) SearchIDs(params FilterParams) ([]uint, error) {
	searchRes, err := s.client.Index(s.index).Search(params.Query, params.request())
	if err != nil {
		return nil, err
	}

	ids := make([]uint, 0, len(searchRes.Hits))
	for _, hit := range searchRes.Hits {
		if id, ok := hitID(hit); ok {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// Search runs a query and resolves the hits against the store. Hits that
// were trashed or purged since indexing are dropped.
func (s *SearchClient) Search(ctx context.Context, st store.OrderStore, params FilterParams) ([]models.Order, error) {
	ids, err := s.SearchIDs(params)
	if err != nil {
		return nil, err
	}
	return ResolveActive(ctx, st, ids)
}

// ResolveActive loads ids from the store, keeping only active orders
func ResolveActive(ctx context.Context, st store.OrderStore, ids []uint) ([]models.Order, error) {
	out := make([]models.Order, 0, len(ids))
	for _, id := range ids {
		o, err := st.Get(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if o.IsActive() {
			out = append(out, *o)
		}
	}
	return out, nil
}

// hitID extracts the primary key from a search hit
func hitID(hit interface{}) (uint, bool) {
	hitMap, ok := hit.(map[string]interface{})
	if !ok {
		return 0, false
	}
	switch v := hitMap["id"].(type) {
	case float64:
		if v < 0 {
			return 0, false
		}
		return uint(v), true
	case string:
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return 0, false
		}
		return uint(n), true
	}
	return 0, false
}
