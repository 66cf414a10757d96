package accounts

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestImportOrdersParentsFirst(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo, nil)

	// Deliberately shuffled: children before parents.
	rows := []ImportRow{
		{Code: "1.1.01", Name: "Till", Category: CategoryAsset, IsLeaf: true, ParentCode: "1.1"},
		{Code: "1", Name: "Assets", Category: CategoryAsset},
		{Code: "1.1", Name: "Current assets", Category: CategoryAsset, ParentCode: "1"},
	}
	result, err := svc.Import(context.Background(), 1, 7, rows)
	require.NoError(t, err)
	require.Len(t, result.Created, 3)
	require.Equal(t, "1", result.Created[0].Code)
	require.Equal(t, "1.1", result.Created[1].Code)
	require.Equal(t, "1.1.01", result.Created[2].Code)

	till, err := repo.Get(context.Background(), 1, "1.1.01")
	require.NoError(t, err)
	require.NotNil(t, till.ParentID)
}

func TestImportCorrectsNormalBalance(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo, nil)

	rows := []ImportRow{
		{Code: "4.1", Name: "Sales", Category: CategoryRevenue, Normal: NormalDebit, IsLeaf: true},
	}
	result, err := svc.Import(context.Background(), 1, 7, rows)
	require.NoError(t, err)
	require.Len(t, result.Warnings, 1)
	require.Contains(t, result.Warnings[0], "corrected to CREDIT")
	require.Equal(t, NormalCredit, result.Created[0].Normal)
}

func TestImportInfersCashEquivalent(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo, nil)

	rows := []ImportRow{
		{Code: "1.1.01", Name: "Caja general", Category: CategoryAsset, IsLeaf: true},
		{Code: "1.1.02", Name: "Banco corriente", Category: CategoryAsset, IsLeaf: true},
		{Code: "4.1", Name: "Cash sales", Category: CategoryRevenue, IsLeaf: true},
	}
	result, err := svc.Import(context.Background(), 1, 7, rows)
	require.NoError(t, err)

	byCode := map[string]Account{}
	for _, a := range result.Created {
		byCode[a.Code] = a
	}
	require.True(t, byCode["1.1.01"].IsCashEquivalent)
	require.False(t, byCode["1.1.02"].IsCashEquivalent)
	// Only asset leaves qualify, name matching alone is not enough.
	require.False(t, byCode["4.1"].IsCashEquivalent)
}

func TestImportRejectsPrefixMismatch(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo, nil)

	rows := []ImportRow{
		{Code: "1", Name: "Assets", Category: CategoryAsset},
		{Code: "2.1", Name: "Payables", Category: CategoryLiability, IsLeaf: true, ParentCode: "1"},
	}
	_, err := svc.Import(context.Background(), 1, 7, rows)
	var sv *StructuralViolation
	require.ErrorAs(t, err, &sv)
	require.Equal(t, InvariantPrefix, sv.Invariant)
}
