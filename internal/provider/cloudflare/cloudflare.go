package cloudflare

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-logr/logr"
	"github.com/tidwall/gjson"

	"subzone/internal/provider"
)

const defaultBaseURL = "https://api.cloudflare.com/client/v4"

func init() {
	provider.Register("cloudflare", func(log logr.Logger, settings map[string]string) (provider.Client, error) {
		return New(log, settings)
	})
}

// Client implements provider.Client against the Cloudflare v4 DNS API.
type Client struct {
	baseURL  string
	apiToken string
	zoneID   string
	client   *http.Client
	log      logr.Logger
}

// New creates a Cloudflare client from the given settings map.
// Required settings: api_token, zone_id. Optional: base_url.
func New(log logr.Logger, settings map[string]string) (*Client, error) {
	apiToken := settings["api_token"]
	if apiToken == "" {
		return nil, fmt.Errorf("cloudflare: missing required setting 'api_token'")
	}
	zoneID := settings["zone_id"]
	if zoneID == "" {
		return nil, fmt.Errorf("cloudflare: missing required setting 'zone_id'")
	}
	baseURL := settings["base_url"]
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	return &Client{
		baseURL:  baseURL,
		apiToken: apiToken,
		zoneID:   zoneID,
		client:   &http.Client{Transport: http.DefaultTransport.(*http.Transport).Clone()},
		log:      log,
	}, nil
}

type recordBody struct {
	Type    string `json:"type"`
	Name    string `json:"name"`
	Content string `json:"content"`
	TTL     int    `json:"ttl"`
	Proxied bool   `json:"proxied"`
}

// do executes a request and returns the raw envelope on success. Any
// failure, transport included, comes back as *provider.Error carrying the
// first message of the envelope's errors array when there is one.
func (c *Client) do(ctx context.Context, op, method, path string, body interface{}) ([]byte, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, provider.Errorf(op, 0, "failed to %s record: %v", op, err)
		}
		bodyReader = bytes.NewReader(data)
	}

	url := strings.TrimRight(c.baseURL, "/") + "/" + strings.TrimLeft(path, "/")
	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return nil, provider.Errorf(op, 0, "failed to %s record: %v", op, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiToken)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		c.log.Error(err, "cloudflare request failed", "op", op, "path", path)
		return nil, provider.Errorf(op, 0, "failed to %s record: %v", op, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, provider.Errorf(op, resp.StatusCode, "failed to %s record: %v", op, err)
	}

	if !gjson.ValidBytes(data) || !gjson.GetBytes(data, "success").Bool() {
		msg := gjson.GetBytes(data, "errors.0.message").String()
		if msg == "" {
			msg = fmt.Sprintf("failed to %s record", op)
		}
		c.log.V(1).Info("cloudflare rejected request", "op", op, "status", resp.StatusCode, "message", msg)
		return nil, &provider.Error{Op: op, Status: resp.StatusCode, Message: msg}
	}
	return data, nil
}

func parseRecord(r gjson.Result) provider.Record {
	return provider.Record{
		ID:      r.Get("id").String(),
		Name:    r.Get("name").String(),
		Type:    r.Get("type").String(),
		Content: r.Get("content").String(),
		TTL:     int(r.Get("ttl").Int()),
		Proxied: r.Get("proxied").Bool(),
	}
}

func (c *Client) recordsPath() string {
	return fmt.Sprintf("zones/%s/dns_records", c.zoneID)
}

// Create adds a DNS record. name must already be fully qualified.
func (c *Client) Create(ctx context.Context, name, recordType, content string, ttl int, proxied bool) (provider.Record, error) {
	c.log.Info("creating record", "name", name, "type", recordType)
	data, err := c.do(ctx, "create", http.MethodPost, c.recordsPath(), recordBody{
		Type: recordType, Name: name, Content: content, TTL: ttl, Proxied: proxied,
	})
	if err != nil {
		return provider.Record{}, err
	}
	rec := parseRecord(gjson.GetBytes(data, "result"))
	c.log.Info("record created", "id", rec.ID)
	return rec, nil
}

// Update replaces the record identified by providerID.
func (c *Client) Update(ctx context.Context, providerID, recordType, name, content string, ttl int, proxied bool) (provider.Record, error) {
	c.log.Info("updating record", "id", providerID, "name", name, "type", recordType)
	data, err := c.do(ctx, "update", http.MethodPut, c.recordsPath()+"/"+providerID, recordBody{
		Type: recordType, Name: name, Content: content, TTL: ttl, Proxied: proxied,
	})
	if err != nil {
		return provider.Record{}, err
	}
	return parseRecord(gjson.GetBytes(data, "result")), nil
}

// Delete removes the record identified by providerID.
func (c *Client) Delete(ctx context.Context, providerID string) error {
	c.log.Info("deleting record", "id", providerID)
	_, err := c.do(ctx, "delete", http.MethodDelete, c.recordsPath()+"/"+providerID, nil)
	return err
}

// List returns every record in the zone, following pagination.
func (c *Client) List(ctx context.Context) ([]provider.Record, error) {
	var records []provider.Record
	for page := 1; ; page++ {
		data, err := c.do(ctx, "list", http.MethodGet, fmt.Sprintf("%s?per_page=100&page=%d", c.recordsPath(), page), nil)
		if err != nil {
			return nil, err
		}
		for _, r := range gjson.GetBytes(data, "result").Array() {
			records = append(records, parseRecord(r))
		}
		totalPages := gjson.GetBytes(data, "result_info.total_pages").Int()
		if int64(page) >= totalPages {
			break
		}
	}
	return records, nil
}

// ZoneName asks Cloudflare for the name of the configured zone.
func (c *Client) ZoneName(ctx context.Context) (string, error) {
	data, err := c.do(ctx, "read zone", http.MethodGet, "zones/"+c.zoneID, nil)
	if err != nil {
		return "", err
	}
	name := gjson.GetBytes(data, "result.name").String()
	if name == "" {
		return "", provider.Errorf("read zone", 0, "zone %s has no name", c.zoneID)
	}
	return name, nil
}
