package gateway

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/securelane/gatepass/internal/domain"
)

// The upstream nests payloads inconsistently: sometimes a bare array or
// object, sometimes wrapped under data/results/passes/pass. Everything is
// mapped to the canonical types here, at the boundary.

var collectionKeys = []string{"data", "results", "passes", "rows", "items"}
var recordKeys = []string{"data", "pass", "result", "record"}

func normalizePasses(body []byte) ([]domain.VisitorPass, error) {
	node, ok := locateArray(body)
	if !ok {
		return nil, fmt.Errorf("gateway response carries no pass collection")
	}

	var passes []domain.VisitorPass
	if err := json.Unmarshal([]byte(node.Raw), &passes); err != nil {
		return nil, fmt.Errorf("failed to decode pass collection: %w", err)
	}
	return passes, nil
}

func normalizePass(body []byte) (*domain.VisitorPass, error) {
	node := gjson.ParseBytes(body)
	if !node.IsObject() {
		return nil, fmt.Errorf("gateway response carries no pass record")
	}
	for _, key := range recordKeys {
		if inner := node.Get(key); inner.IsObject() {
			node = inner
			break
		}
	}

	var pass domain.VisitorPass
	if err := json.Unmarshal([]byte(node.Raw), &pass); err != nil {
		return nil, fmt.Errorf("failed to decode pass record: %w", err)
	}
	if pass.ID == "" {
		return nil, fmt.Errorf("gateway pass record is missing an id")
	}
	return &pass, nil
}

func normalizeCategories(body []byte) ([]domain.Category, error) {
	node, ok := locateArray(body)
	if !ok {
		if inner := gjson.GetBytes(body, "categories"); inner.IsArray() {
			node = inner
			ok = true
		}
	}
	if !ok {
		return nil, fmt.Errorf("gateway response carries no category collection")
	}

	var cats []domain.Category
	if err := json.Unmarshal([]byte(node.Raw), &cats); err != nil {
		return nil, fmt.Errorf("failed to decode categories: %w", err)
	}
	return cats, nil
}

func normalizeCount(body []byte) (int, error) {
	for _, path := range []string{"count", "total", "data.count", "data.total"} {
		if n := gjson.GetBytes(body, path); n.Exists() {
			return int(n.Int()), nil
		}
	}
	return 0, fmt.Errorf("gateway count response carries no count field")
}

func locateArray(body []byte) (gjson.Result, bool) {
	root := gjson.ParseBytes(body)
	if root.IsArray() {
		return root, true
	}
	for _, key := range collectionKeys {
		if inner := root.Get(key); inner.IsArray() {
			return inner, true
		}
	}
	return gjson.Result{}, false
}

// checkActionStatus treats a 2xx action reply as failed when the body itself
// reports a non-success status.
func checkActionStatus(body []byte) error {
	if st := gjson.GetBytes(body, "status"); st.Exists() && st.String() != "success" {
		msg := gjson.GetBytes(body, "message").String()
		if msg == "" {
			msg = "gateway reported status " + st.String()
		}
		return &APIError{StatusCode: 200, Message: msg}
	}
	return nil
}
