package route53

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/route53"
	"github.com/aws/aws-sdk-go-v2/service/route53/types"
	"github.com/aws/smithy-go"
	"github.com/go-logr/logr"

	"subzone/internal/provider"
)

// autoTTL replaces the "automatic" TTL of 1, which Route 53 has no notion of.
const autoTTL = 300

func init() {
	provider.Register("route53", func(log logr.Logger, settings map[string]string) (provider.Client, error) {
		return New(log, settings)
	})
}

type api interface {
	ChangeResourceRecordSets(ctx context.Context, in *route53.ChangeResourceRecordSetsInput, optFns ...func(*route53.Options)) (*route53.ChangeResourceRecordSetsOutput, error)
	ListResourceRecordSets(ctx context.Context, in *route53.ListResourceRecordSetsInput, optFns ...func(*route53.Options)) (*route53.ListResourceRecordSetsOutput, error)
	GetHostedZone(ctx context.Context, in *route53.GetHostedZoneInput, optFns ...func(*route53.Options)) (*route53.GetHostedZoneOutput, error)
}

// Client implements provider.Client for a single Route 53 hosted zone.
// Route 53 has no per-record ids, so the provider id is "<fqdn>|<type>".
type Client struct {
	api    api
	zoneID string
	log    logr.Logger
}

// New creates a Route 53 client. Required settings: hosted_zone_id.
// Optional: access_key_id, secret_access_key (default credential chain
// otherwise), region (default us-east-1).
func New(log logr.Logger, settings map[string]string) (*Client, error) {
	zoneID := settings["hosted_zone_id"]
	if zoneID == "" {
		return nil, fmt.Errorf("route53: missing required setting 'hosted_zone_id'")
	}
	region := settings["region"]
	if region == "" {
		region = "us-east-1"
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if settings["access_key_id"] != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(
				settings["access_key_id"],
				settings["secret_access_key"],
				"",
			),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(context.TODO(), opts...)
	if err != nil {
		return nil, fmt.Errorf("route53: failed to load AWS config: %w", err)
	}

	return &Client{api: route53.NewFromConfig(awsCfg), zoneID: zoneID, log: log}, nil
}

func recordID(name, recordType string) string {
	return strings.TrimSuffix(name, ".") + "|" + recordType
}

func splitID(id string) (name, recordType string, ok bool) {
	name, recordType, ok = strings.Cut(id, "|")
	return name, recordType, ok && name != "" && recordType != ""
}

func effectiveTTL(ttl int) int64 {
	if ttl <= 1 {
		return autoTTL
	}
	return int64(ttl)
}

func wrapErr(op string, err error) error {
	var ae smithy.APIError
	if errors.As(err, &ae) {
		return &provider.Error{Op: op, Message: ae.ErrorMessage()}
	}
	return provider.Errorf(op, 0, "failed to %s record: %v", op, err)
}

func (c *Client) change(ctx context.Context, action types.ChangeAction, set *types.ResourceRecordSet) error {
	_, err := c.api.ChangeResourceRecordSets(ctx, &route53.ChangeResourceRecordSetsInput{
		HostedZoneId: aws.String(c.zoneID),
		ChangeBatch: &types.ChangeBatch{
			Comment: aws.String("Changed via subzone"),
			Changes: []types.Change{{Action: action, ResourceRecordSet: set}},
		},
	})
	return err
}

func recordSet(name, recordType, content string, ttl int) *types.ResourceRecordSet {
	return &types.ResourceRecordSet{
		Name:            aws.String(name),
		Type:            types.RRType(recordType),
		TTL:             aws.Int64(effectiveTTL(ttl)),
		ResourceRecords: []types.ResourceRecord{{Value: aws.String(content)}},
	}
}

// Create adds a record set. proxied has no Route 53 equivalent and is ignored.
func (c *Client) Create(ctx context.Context, name, recordType, content string, ttl int, proxied bool) (provider.Record, error) {
	c.log.Info("creating record", "name", name, "type", recordType)
	if err := c.change(ctx, types.ChangeActionCreate, recordSet(name, recordType, content, ttl)); err != nil {
		return provider.Record{}, wrapErr("create", err)
	}
	return provider.Record{
		ID: recordID(name, recordType), Name: name, Type: recordType,
		Content: content, TTL: int(effectiveTTL(ttl)),
	}, nil
}

func (c *Client) Update(ctx context.Context, providerID, recordType, name, content string, ttl int, proxied bool) (provider.Record, error) {
	idName, idType, ok := splitID(providerID)
	if !ok || idName != strings.TrimSuffix(name, ".") || idType != recordType {
		return provider.Record{}, provider.Errorf("update", 0, "record id %q does not match %s (%s)", providerID, name, recordType)
	}
	c.log.Info("updating record", "name", name, "type", recordType)
	if err := c.change(ctx, types.ChangeActionUpsert, recordSet(name, recordType, content, ttl)); err != nil {
		return provider.Record{}, wrapErr("update", err)
	}
	return provider.Record{
		ID: providerID, Name: name, Type: recordType,
		Content: content, TTL: int(effectiveTTL(ttl)),
	}, nil
}

// Delete needs the exact current record set, so it is looked up first.
func (c *Client) Delete(ctx context.Context, providerID string) error {
	name, recordType, ok := splitID(providerID)
	if !ok {
		return provider.Errorf("delete", 0, "invalid record id %q", providerID)
	}
	c.log.Info("deleting record", "name", name, "type", recordType)

	out, err := c.api.ListResourceRecordSets(ctx, &route53.ListResourceRecordSetsInput{
		HostedZoneId:    aws.String(c.zoneID),
		StartRecordName: aws.String(name),
		StartRecordType: types.RRType(recordType),
		MaxItems:        aws.Int32(1),
	})
	if err != nil {
		return wrapErr("delete", err)
	}
	if len(out.ResourceRecordSets) == 0 {
		return provider.Errorf("delete", 404, "record %s (%s) not found", name, recordType)
	}
	current := out.ResourceRecordSets[0]
	if strings.TrimSuffix(aws.ToString(current.Name), ".") != name || string(current.Type) != recordType {
		return provider.Errorf("delete", 404, "record %s (%s) not found", name, recordType)
	}

	if err := c.change(ctx, types.ChangeActionDelete, &current); err != nil {
		return wrapErr("delete", err)
	}
	return nil
}

func (c *Client) List(ctx context.Context) ([]provider.Record, error) {
	var records []provider.Record
	var nextName *string
	var nextType types.RRType

	for {
		input := &route53.ListResourceRecordSetsInput{
			HostedZoneId: aws.String(c.zoneID),
		}
		if nextName != nil {
			input.StartRecordName = nextName
			input.StartRecordType = nextType
		}

		result, err := c.api.ListResourceRecordSets(ctx, input)
		if err != nil {
			return nil, wrapErr("list", err)
		}

		for _, rrs := range result.ResourceRecordSets {
			name := strings.TrimSuffix(aws.ToString(rrs.Name), ".")
			rec := provider.Record{
				ID:   recordID(name, string(rrs.Type)),
				Name: name,
				Type: string(rrs.Type),
			}
			if rrs.TTL != nil {
				rec.TTL = int(*rrs.TTL)
			}
			if len(rrs.ResourceRecords) > 0 {
				rec.Content = aws.ToString(rrs.ResourceRecords[0].Value)
			}
			records = append(records, rec)
		}

		if !result.IsTruncated {
			break
		}
		nextName = result.NextRecordName
		nextType = result.NextRecordType
	}
	return records, nil
}

func (c *Client) ZoneName(ctx context.Context) (string, error) {
	result, err := c.api.GetHostedZone(ctx, &route53.GetHostedZoneInput{
		Id: aws.String(c.zoneID),
	})
	if err != nil {
		return "", wrapErr("read zone", err)
	}
	return strings.TrimSuffix(aws.ToString(result.HostedZone.Name), "."), nil
}
