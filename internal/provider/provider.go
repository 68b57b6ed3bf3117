package provider

import (
	"context"
	"fmt"
	"strings"
)

const apexName = "@"

// Record is a DNS record as the provider sees it.
type Record struct {
	ID      string
	Name    string // FQDN without trailing dot
	Type    string
	Content string
	TTL     int
	Proxied bool
}

// Client is implemented by every DNS provider backend. Calls are single
// network round-trips with no retry.
type Client interface {
	Create(ctx context.Context, name, recordType, content string, ttl int, proxied bool) (Record, error)
	Update(ctx context.Context, providerID, recordType, name, content string, ttl int, proxied bool) (Record, error)
	Delete(ctx context.Context, providerID string) error
	List(ctx context.Context) ([]Record, error)
	ZoneName(ctx context.Context) (string, error)
}

// Error is returned for any non-success outcome of a provider call,
// transport failures included.
type Error struct {
	Op      string
	Status  int
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// Errorf builds an *Error for op with a formatted message.
func Errorf(op string, status int, format string, args ...any) *Error {
	return &Error{Op: op, Status: status, Message: fmt.Sprintf(format, args...)}
}

// FullName qualifies a short name against the zone domain. The apex
// marker "@" yields the zone domain itself.
func FullName(short, zone string) string {
	zone = strings.TrimSuffix(zone, ".")
	if short == apexName {
		return zone
	}
	return short + "." + zone
}
