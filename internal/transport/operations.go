package transport

import (
	"context"
	"sort"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/aviarylabs/rangesync/pkg/reconcile"
)

// LocaleOption is one entry of the locale catalog, ordered for display.
type LocaleOption struct {
	Code  string `json:"code"`
	Label string `json:"label"`
}

// SourceOption is one selectable candidate-source mode.
type SourceOption struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// CatalogItem is one entry of the full species catalog used for
// autocomplete.
type CatalogItem struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
}

// wireEntry is the server's candidate shape. The display label may be a
// combined "Scientific_Common" string when the secondary name is absent.
type wireEntry struct {
	ID            string  `json:"id"`
	DisplayName   string  `json:"displayName"`
	SecondaryName string  `json:"secondaryName"`
	Score         float64 `json:"score"`
}

type candidatesResponse struct {
	Count   int         `json:"count"`
	Entries []wireEntry `json:"species"`
}

type countResponse struct {
	Count       int    `json:"count"`
	LastUpdated string `json:"lastUpdated,omitempty"`
}

// Locales fetches the locale catalog and returns it ordered by label using
// English collation, so the list is stable for display regardless of the
// server's map ordering.
func (c *Client) Locales(ctx context.Context) ([]LocaleOption, error) {
	resp, err := c.get(ctx, "/api/v2/settings/locales")
	if err != nil {
		return nil, err
	}
	var raw map[string]string
	if err := decodeLenient(resp, "fetch locales", &raw); err != nil {
		return nil, err
	}

	options := make([]LocaleOption, 0, len(raw))
	for code, label := range raw {
		options = append(options, LocaleOption{Code: code, Label: label})
	}
	cl := collate.New(language.English, collate.IgnoreCase)
	sort.Slice(options, func(i, j int) bool {
		return cl.CompareString(options[i].Label, options[j].Label) < 0
	})
	return options, nil
}

// SourceOptions fetches the selectable candidate-source modes.
func (c *Client) SourceOptions(ctx context.Context) ([]SourceOption, error) {
	resp, err := c.get(ctx, "/api/v2/settings/sources")
	if err != nil {
		return nil, err
	}
	var options []SourceOption
	if err := decodeLenient(resp, "fetch source options", &options); err != nil {
		return nil, err
	}
	return options, nil
}

// BaselineCount fetches the candidate count for the committed settings,
// without running a test reconciliation.
func (c *Client) BaselineCount(ctx context.Context) (int, error) {
	resp, err := c.get(ctx, "/api/v2/range/species/count")
	if err != nil {
		return 0, err
	}
	var out countResponse
	if err := DecodeResponse(resp, "fetch baseline count", &out); err != nil {
		return 0, err
	}
	return out.Count, nil
}

// TestCandidates runs a candidate test against the given parameters. It
// implements the catalog collaborator of the reconciliation pipeline.
func (c *Client) TestCandidates(ctx context.Context, req reconcile.CatalogRequest) (reconcile.CatalogResponse, error) {
	resp, err := c.post(ctx, "/api/v2/range/species/test", req)
	if err != nil {
		return reconcile.CatalogResponse{}, err
	}
	var out candidatesResponse
	if err := decodeLenient(resp, "test candidates", &out); err != nil {
		return reconcile.CatalogResponse{}, err
	}
	return toCatalogResponse(out), nil
}

// ListCandidates fetches the candidate list for the given parameters.
func (c *Client) ListCandidates(ctx context.Context, req reconcile.CatalogRequest) (reconcile.CatalogResponse, error) {
	resp, err := c.post(ctx, "/api/v2/range/species/list", req)
	if err != nil {
		return reconcile.CatalogResponse{}, err
	}
	var out candidatesResponse
	if err := decodeLenient(resp, "list candidates", &out); err != nil {
		return reconcile.CatalogResponse{}, err
	}
	return toCatalogResponse(out), nil
}

// FullCatalog fetches the complete species catalog for autocomplete.
func (c *Client) FullCatalog(ctx context.Context) ([]CatalogItem, error) {
	resp, err := c.get(ctx, "/api/v2/species")
	if err != nil {
		return nil, err
	}
	var items []CatalogItem
	if err := decodeLenient(resp, "fetch full catalog", &items); err != nil {
		return nil, err
	}
	return items, nil
}

// FetchSettings retrieves the full persisted section tree.
func (c *Client) FetchSettings(ctx context.Context) (map[string]any, error) {
	resp, err := c.get(ctx, "/api/v2/settings")
	if err != nil {
		return nil, err
	}
	var tree map[string]any
	if err := DecodeResponse(resp, "fetch settings", &tree); err != nil {
		return nil, err
	}
	return tree, nil
}

// SaveSettings persists the given section tree. It implements the settings
// persister collaborator.
func (c *Client) SaveSettings(ctx context.Context, tree map[string]any) error {
	resp, err := c.patch(ctx, "/api/v2/settings", tree)
	if err != nil {
		return err
	}
	var ack struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
	}
	return DecodeResponse(resp, "save settings", &ack)
}

func toCatalogResponse(in candidatesResponse) reconcile.CatalogResponse {
	entries := make([]reconcile.CatalogEntry, 0, len(in.Entries))
	for _, e := range in.Entries {
		common, scientific := splitSpeciesLabel(e.DisplayName, e.SecondaryName)
		id := e.ID
		if id == "" {
			id = common
		}
		entries = append(entries, reconcile.CatalogEntry{
			ID:             id,
			CommonName:     common,
			ScientificName: scientific,
			Score:          e.Score,
		})
	}
	count := in.Count
	if count == 0 {
		count = len(entries)
	}
	return reconcile.CatalogResponse{Count: count, Entries: entries}
}

// splitSpeciesLabel resolves the display and secondary names. A combined
// "Scientific_Common" label is split on the first underscore when no
// secondary name was provided.
func splitSpeciesLabel(display, secondary string) (common, scientific string) {
	if secondary != "" {
		return display, secondary
	}
	if i := strings.Index(display, "_"); i > 0 {
		return display[i+1:], display[:i]
	}
	return display, ""
}
