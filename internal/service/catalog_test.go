package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"subzone/internal/model"
	"subzone/internal/quota"
)

func TestDeletePlan_InUse(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.admin(t)

	err := f.catalog.DeletePlan(ctx, admin, "free")
	require.ErrorIs(t, err, ErrPlanInUse)

	require.NoError(t, f.catalog.DeletePlan(ctx, admin, "enterprise"))
	_, err = f.policy.LimitFor(ctx, "enterprise")
	assert.ErrorIs(t, err, quota.ErrUnknownPlan)

	require.ErrorIs(t, f.catalog.DeletePlan(ctx, admin, "enterprise"), ErrNotFound)
}

func TestCreatePlan(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.admin(t)

	_, err := f.policy.LimitFor(ctx, "team")
	require.ErrorIs(t, err, quota.ErrUnknownPlan)

	p, err := f.catalog.CreatePlan(ctx, admin, model.Plan{ID: "team", Name: "Team", RecordLimit: 20})
	require.NoError(t, err)
	assert.NotNil(t, p.Features)

	limit, err := f.policy.LimitFor(ctx, "team")
	require.NoError(t, err)
	assert.Equal(t, 20, limit)

	_, err = f.catalog.CreatePlan(ctx, admin, model.Plan{ID: "team", Name: "Team 2", RecordLimit: 5})
	require.ErrorIs(t, err, ErrPlanExists)
}

func TestCreatePlan_Validation(t *testing.T) {
	f := newFixture(t)
	admin := f.admin(t)

	tests := map[string]model.Plan{
		"bad id":         {ID: "Team Plan", Name: "Team", RecordLimit: 1},
		"empty name":     {ID: "team", RecordLimit: 1},
		"negative limit": {ID: "team", Name: "Team", RecordLimit: -1},
	}
	for name, p := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := f.catalog.CreatePlan(context.Background(), admin, p)
			assert.ErrorIs(t, err, ErrInvalidInput)
		})
	}
}

func TestUpdatePlan_Missing(t *testing.T) {
	f := newFixture(t)
	admin := f.admin(t)

	_, err := f.catalog.UpdatePlan(context.Background(), admin, "ghost", model.Plan{Name: "Ghost"})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateSettings_Partial(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.admin(t)

	st, err := f.catalog.UpdateSettings(ctx, admin, SettingsPatch{
		TelegramID:    strPtr("@support"),
		ReferralBonus: intPtr(5),
	})
	require.NoError(t, err)
	assert.Equal(t, "@support", st.TelegramID)
	assert.Equal(t, 5, st.ReferralBonus)
	assert.Equal(t, 2, st.FreeRecordLimit)

	st, err = f.catalog.UpdateSettings(ctx, admin, SettingsPatch{ContactMessageEN: strPtr("hi")})
	require.NoError(t, err)
	assert.Equal(t, "@support", st.TelegramID)
	assert.Equal(t, "hi", st.ContactMessageEN)

	_, err = f.catalog.UpdateSettings(ctx, admin, SettingsPatch{FreeRecordLimit: intPtr(-1)})
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestPublicConfig(t *testing.T) {
	f := newFixture(t)
	f.store.settings.TelegramURL = "https://t.me/support"

	cfg, err := f.catalog.PublicConfig(context.Background())
	require.NoError(t, err)
	assert.Equal(t, testZone, cfg.Domain)
	assert.Equal(t, "https://t.me/support", cfg.TelegramURL)
	assert.Equal(t, model.RecordTypes, cfg.RecordTypes)
	assert.Equal(t, 1, cfg.ReferralBonus)
}
