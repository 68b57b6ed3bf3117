package route53

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/route53"
	"github.com/aws/aws-sdk-go-v2/service/route53/types"
	"github.com/aws/smithy-go"
	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"subzone/internal/provider"
)

type fakeAPI struct {
	changes  []types.Change
	sets     []types.ResourceRecordSet
	zoneName string
	err      error
}

func (f *fakeAPI) ChangeResourceRecordSets(ctx context.Context, in *route53.ChangeResourceRecordSetsInput, _ ...func(*route53.Options)) (*route53.ChangeResourceRecordSetsOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.changes = append(f.changes, in.ChangeBatch.Changes...)
	return &route53.ChangeResourceRecordSetsOutput{}, nil
}

func (f *fakeAPI) ListResourceRecordSets(ctx context.Context, in *route53.ListResourceRecordSetsInput, _ ...func(*route53.Options)) (*route53.ListResourceRecordSetsOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &route53.ListResourceRecordSetsOutput{ResourceRecordSets: f.sets}, nil
}

func (f *fakeAPI) GetHostedZone(ctx context.Context, in *route53.GetHostedZoneInput, _ ...func(*route53.Options)) (*route53.GetHostedZoneOutput, error) {
	return &route53.GetHostedZoneOutput{HostedZone: &types.HostedZone{Name: aws.String(f.zoneName)}}, nil
}

func newTestClient(f *fakeAPI) *Client {
	return &Client{api: f, zoneID: "Z1", log: logr.Discard()}
}

func TestNew_MissingZone(t *testing.T) {
	_, err := New(logr.Discard(), map[string]string{})
	require.Error(t, err)
}

func TestCreate_SynthesizesID(t *testing.T) {
	f := &fakeAPI{}
	c := newTestClient(f)

	rec, err := c.Create(context.Background(), "host1.example.com", "A", "1.1.1.1", 1, true)
	require.NoError(t, err)
	assert.Equal(t, "host1.example.com|A", rec.ID)
	assert.Equal(t, 300, rec.TTL)

	require.Len(t, f.changes, 1)
	assert.Equal(t, types.ChangeActionCreate, f.changes[0].Action)
	assert.Equal(t, int64(300), *f.changes[0].ResourceRecordSet.TTL)
}

func TestUpdate_RejectsMismatchedID(t *testing.T) {
	c := newTestClient(&fakeAPI{})

	_, err := c.Update(context.Background(), "other.example.com|A", "A", "host1.example.com", "1.1.1.1", 60, false)
	var perr *provider.Error
	require.True(t, errors.As(err, &perr))
}

func TestUpdate_Upserts(t *testing.T) {
	f := &fakeAPI{}
	c := newTestClient(f)

	_, err := c.Update(context.Background(), "host1.example.com|A", "A", "host1.example.com", "2.2.2.2", 60, false)
	require.NoError(t, err)
	require.Len(t, f.changes, 1)
	assert.Equal(t, types.ChangeActionUpsert, f.changes[0].Action)
	assert.Equal(t, int64(60), *f.changes[0].ResourceRecordSet.TTL)
}

func TestDelete_UsesCurrentRecordSet(t *testing.T) {
	f := &fakeAPI{sets: []types.ResourceRecordSet{{
		Name:            aws.String("host1.example.com."),
		Type:            types.RRTypeA,
		TTL:             aws.Int64(120),
		ResourceRecords: []types.ResourceRecord{{Value: aws.String("1.1.1.1")}},
	}}}
	c := newTestClient(f)

	require.NoError(t, c.Delete(context.Background(), "host1.example.com|A"))
	require.Len(t, f.changes, 1)
	assert.Equal(t, types.ChangeActionDelete, f.changes[0].Action)
	assert.Equal(t, int64(120), *f.changes[0].ResourceRecordSet.TTL)
}

func TestDelete_NotFound(t *testing.T) {
	f := &fakeAPI{sets: []types.ResourceRecordSet{{
		Name: aws.String("zzz.example.com."),
		Type: types.RRTypeA,
	}}}
	c := newTestClient(f)

	err := c.Delete(context.Background(), "host1.example.com|A")
	var perr *provider.Error
	require.True(t, errors.As(err, &perr))
	assert.Empty(t, f.changes)
}

func TestAPIErrorMessage(t *testing.T) {
	f := &fakeAPI{err: &smithy.GenericAPIError{Code: "InvalidChangeBatch", Message: "Tried to create resource record set but it already exists"}}
	c := newTestClient(f)

	_, err := c.Create(context.Background(), "host1.example.com", "A", "1.1.1.1", 1, false)
	var perr *provider.Error
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, "Tried to create resource record set but it already exists", perr.Message)
}

func TestZoneName_TrimsDot(t *testing.T) {
	c := newTestClient(&fakeAPI{zoneName: "example.com."})

	name, err := c.ZoneName(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "example.com", name)
}
