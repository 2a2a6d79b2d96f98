package businesses

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/echo-commerce-backend/pkg/db/dbtest"
	"github.com/angelmondragon/echo-commerce-backend/pkg/db/models"
	"github.com/angelmondragon/echo-commerce-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/echo-commerce-backend/pkg/errors"
)

type stubAccess struct {
	ok  bool
	err error
}

func (s stubAccess) HasAccess(context.Context, uuid.UUID, uuid.UUID) (bool, error) {
	return s.ok, s.err
}

func TestRequireBusinessOwnership(t *testing.T) {
	ctx := context.Background()
	user, biz := uuid.New(), uuid.New()

	require.NoError(t, NewOwnership(stubAccess{ok: true}).RequireBusinessOwnership(ctx, user, biz))

	err := NewOwnership(stubAccess{}).RequireBusinessOwnership(ctx, user, biz)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	err = NewOwnership(stubAccess{err: errors.New("db down")}).RequireBusinessOwnership(ctx, user, biz)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	err = NewOwnership(stubAccess{ok: true}).RequireBusinessOwnership(ctx, uuid.Nil, biz)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized))
}

func TestRepositoryAccessAndConnections(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	ctx := context.Background()

	owner, member, stranger := uuid.New(), uuid.New(), uuid.New()
	biz := models.Business{ID: uuid.New(), OwnerUserID: owner, Name: "Acme", Currency: enums.CurrencyUSD}
	require.NoError(t, conn.Create(&biz).Error)
	require.NoError(t, conn.Create(&models.BusinessMember{BusinessID: biz.ID, UserID: member, Role: enums.MemberRoleStaff}).Error)

	for user, want := range map[uuid.UUID]bool{owner: true, member: true, stranger: false} {
		ok, err := repo.HasAccess(ctx, biz.ID, user)
		require.NoError(t, err)
		require.Equal(t, want, ok)
	}

	none, err := repo.ActiveConnection(ctx, biz.ID)
	require.NoError(t, err)
	require.Nil(t, none)

	require.NoError(t, conn.Create(&models.MarketplaceConnection{
		ID:          uuid.New(),
		BusinessID:  biz.ID,
		ShopDomain:  "acme.myshopify.com",
		AccessToken: "shpat_1",
		Active:      true,
	}).Error)

	active, err := repo.ActiveConnection(ctx, biz.ID)
	require.NoError(t, err)
	require.Equal(t, "acme.myshopify.com", active.ShopDomain)

	byDomain, err := repo.ConnectionByShopDomain(ctx, " ACME.myshopify.com ")
	require.NoError(t, err)
	require.Equal(t, biz.ID, byDomain.BusinessID)

	require.NoError(t, conn.Model(&models.MarketplaceConnection{}).Where("business_id = ?", biz.ID).Update("active", false).Error)
	inactive, err := repo.ActiveConnection(ctx, biz.ID)
	require.NoError(t, err)
	require.Nil(t, inactive)
}
