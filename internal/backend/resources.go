package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
)

// Record is one backend entity as loosely typed JSON.
type Record map[string]any

// ID returns the record identifier in textual form.
func (r Record) ID() string {
	return r.Text("id")
}

// Text renders a field for display. A dotted key walks nested objects and a
// list of objects renders their names.
func (r Record) Text(key string) string {
	return text(r.lookup(key))
}

// Names returns the names held under key: plain strings or objects with a
// "name" field.
func (r Record) Names(key string) []string {
	items, ok := r.lookup(key).([]any)
	if !ok {
		return nil
	}
	names := make([]string, 0, len(items))
	for _, item := range items {
		switch v := item.(type) {
		case string:
			names = append(names, v)
		case map[string]any:
			if name, ok := v["name"].(string); ok {
				names = append(names, name)
			}
		}
	}
	return names
}

func (r Record) lookup(key string) any {
	var cur any = map[string]any(r)
	for _, part := range strings.Split(key, ".") {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = obj[part]
	}
	return cur
}

func text(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case json.Number:
		return v.String()
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	case []any:
		parts := make([]string, 0, len(v))
		for _, item := range v {
			if obj, ok := item.(map[string]any); ok {
				if name, ok := obj["name"]; ok {
					parts = append(parts, text(name))
					continue
				}
			}
			parts = append(parts, text(item))
		}
		return strings.Join(parts, ", ")
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(data)
	}
}

// List fetches a collection.
func (c *Client) List(ctx context.Context, token, path string) ([]Record, error) {
	payload, err := c.get(ctx, path, token)
	if err != nil {
		return nil, err
	}
	records := []Record{}
	if err := decode(unwrapData(payload), &records); err != nil {
		return nil, fmt.Errorf("list %s: %w", path, err)
	}
	return records, nil
}

// Get fetches a single record.
func (c *Client) Get(ctx context.Context, token, path string) (Record, error) {
	payload, err := c.get(ctx, path, token)
	if err != nil {
		return nil, err
	}
	record := Record{}
	if err := decode(unwrapData(payload), &record); err != nil {
		return nil, fmt.Errorf("get %s: %w", path, err)
	}
	return record, nil
}

// Create posts a new record.
func (c *Client) Create(ctx context.Context, token, path string, body map[string]any) error {
	_, err := c.do(ctx, http.MethodPost, path, token, body)
	return err
}

// Update replaces a record.
func (c *Client) Update(ctx context.Context, token, path string, body map[string]any) error {
	_, err := c.do(ctx, http.MethodPut, path, token, body)
	return err
}

// Delete removes a record.
func (c *Client) Delete(ctx context.Context, token, path string) error {
	_, err := c.do(ctx, http.MethodDelete, path, token, nil)
	return err
}
