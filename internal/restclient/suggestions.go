package restclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// AddressQuery pairs a batch row index with the residence address to match.
// Suggestions come back keyed by this index, not by any database id.
type AddressQuery struct {
	Index     int    `json:"piso_id"`
	Direccion string `json:"direccion"`
}

// Suggestion is one fuzzy-match result from the backend.
type Suggestion struct {
	Index           int     `json:"piso_id"`
	BloqueID        int64   `json:"suggested_bloque_id"`
	BloqueDireccion string  `json:"suggested_bloque_direccion"`
	Score           float64 `json:"suggested_score"`
}

// GetBloqueSuggestions asks the fuzzy-matching RPC for candidate buildings
// for a batch of addresses at the given confidence threshold.
func (c *Client) GetBloqueSuggestions(ctx context.Context, queries []AddressQuery, threshold float64) ([]Suggestion, error) {
	body, err := json.Marshal(map[string]any{
		"direcciones":     queries,
		"score_threshold": threshold,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/rpc/bloque_suggestions", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	var suggestions []Suggestion
	if err := c.do(req, &suggestions); err != nil {
		return nil, fmt.Errorf("bloque suggestions: %w", err)
	}
	return suggestions, nil
}
