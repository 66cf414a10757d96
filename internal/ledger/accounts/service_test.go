package accounts

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

// fakeRepo keeps the chart in memory and runs WithTx callbacks against
// itself, so service invariants can be exercised without postgres.
type fakeRepo struct {
	nextID   int64
	byCode   map[string]*Account
	postings map[int64]bool
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{byCode: map[string]*Account{}, postings: map[int64]bool{}}
}

func (f *fakeRepo) seed(a Account) *Account {
	f.nextID++
	a.ID = f.nextID
	if a.Normal == "" {
		a.Normal = DefaultNormal(a.Category)
	}
	a.IsActive = true
	f.byCode[a.Code] = &a
	return &a
}

func (f *fakeRepo) Get(ctx context.Context, orgID int64, code string) (Account, error) {
	if a, ok := f.byCode[code]; ok {
		return *a, nil
	}
	return Account{}, ErrNotFound
}

func (f *fakeRepo) GetByID(ctx context.Context, id int64) (Account, error) {
	for _, a := range f.byCode {
		if a.ID == id {
			return *a, nil
		}
	}
	return Account{}, ErrNotFound
}

func (f *fakeRepo) List(ctx context.Context, orgID int64) ([]Account, error) {
	var out []Account
	for _, a := range f.byCode {
		out = append(out, *a)
	}
	return out, nil
}

func (f *fakeRepo) ListLeaves(ctx context.Context, orgID int64, cats ...Category) ([]Account, error) {
	var out []Account
	for _, a := range f.byCode {
		if !a.IsLeaf || !a.IsActive {
			continue
		}
		for _, c := range cats {
			if a.Category == c {
				out = append(out, *a)
				break
			}
		}
	}
	return out, nil
}

func (f *fakeRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, f)
}

func (f *fakeRepo) GetForUpdate(ctx context.Context, orgID int64, code string) (Account, error) {
	return f.Get(ctx, orgID, code)
}

func (f *fakeRepo) Insert(ctx context.Context, a Account) (Account, error) {
	if _, ok := f.byCode[a.Code]; ok {
		return Account{}, ErrCodeTaken
	}
	return *f.seed(a), nil
}

func (f *fakeRepo) UpdateParent(ctx context.Context, id int64, parentID *int64) error {
	for _, a := range f.byCode {
		if a.ID == id {
			a.ParentID = parentID
			return nil
		}
	}
	return ErrNotFound
}

func (f *fakeRepo) SetActive(ctx context.Context, id int64, active bool) error {
	for _, a := range f.byCode {
		if a.ID == id {
			a.IsActive = active
			return nil
		}
	}
	return ErrNotFound
}

func (f *fakeRepo) SetLeaf(ctx context.Context, id int64, leaf bool) error {
	for _, a := range f.byCode {
		if a.ID == id {
			a.IsLeaf = leaf
			return nil
		}
	}
	return ErrNotFound
}

func (f *fakeRepo) HasChildren(ctx context.Context, id int64) (bool, error) {
	for _, a := range f.byCode {
		if a.ParentID != nil && *a.ParentID == id {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeRepo) HasPostings(ctx context.Context, id int64) (bool, error) {
	return f.postings[id], nil
}

func TestCreateDefaultsNormalBalance(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo, nil)

	asset, err := svc.Create(context.Background(), CreateInput{OrgID: 1, Code: "1", Name: "Assets", Category: CategoryAsset})
	require.NoError(t, err)
	require.Equal(t, NormalDebit, asset.Normal)

	revenue, err := svc.Create(context.Background(), CreateInput{OrgID: 1, Code: "4", Name: "Revenue", Category: CategoryRevenue})
	require.NoError(t, err)
	require.Equal(t, NormalCredit, revenue.Normal)
}

func TestChildCodeOfSegmentBoundary(t *testing.T) {
	require.True(t, ChildCodeOf("1", "1.1"))
	require.True(t, ChildCodeOf("1.1", "1.1.02"))
	require.False(t, ChildCodeOf("1", "11"))
	require.False(t, ChildCodeOf("1", "1"))
	require.False(t, ChildCodeOf("1.1", "1.10"))
}

func TestCreateRejectsSiblingPrefixAsChild(t *testing.T) {
	repo := newFakeRepo()
	repo.seed(Account{OrgID: 1, Code: "1", Name: "Assets", Category: CategoryAsset})
	svc := NewService(repo, nil)

	// "11" shares the leading character but is not in the "1" subtree.
	_, err := svc.Create(context.Background(), CreateInput{
		OrgID: 1, ParentCode: "1", Code: "11", Name: "Other assets", Category: CategoryAsset,
	})
	var sv *StructuralViolation
	require.ErrorAs(t, err, &sv)
	require.Equal(t, InvariantPrefix, sv.Invariant)
}

func TestCreateRejectsPrefixMismatch(t *testing.T) {
	repo := newFakeRepo()
	repo.seed(Account{OrgID: 1, Code: "1", Name: "Assets", Category: CategoryAsset})
	svc := NewService(repo, nil)

	_, err := svc.Create(context.Background(), CreateInput{
		OrgID: 1, ParentCode: "1", Code: "2.1", Name: "Payables", Category: CategoryLiability,
	})
	var sv *StructuralViolation
	require.ErrorAs(t, err, &sv)
	require.Equal(t, InvariantPrefix, sv.Invariant)
}

func TestCreateRejectsChildUnderLeaf(t *testing.T) {
	repo := newFakeRepo()
	repo.seed(Account{OrgID: 1, Code: "1.1", Name: "Cash", Category: CategoryAsset, IsLeaf: true})
	svc := NewService(repo, nil)

	_, err := svc.Create(context.Background(), CreateInput{
		OrgID: 1, ParentCode: "1.1", Code: "1.1.01", Name: "Till", Category: CategoryAsset, IsLeaf: true,
	})
	var sv *StructuralViolation
	require.ErrorAs(t, err, &sv)
	require.Equal(t, InvariantChildUnderLeaf, sv.Invariant)
}

func TestReparentRejectsSelfParent(t *testing.T) {
	repo := newFakeRepo()
	repo.seed(Account{OrgID: 1, Code: "1", Name: "Assets", Category: CategoryAsset})
	svc := NewService(repo, nil)

	_, err := svc.Reparent(context.Background(), 1, "1", "1", 7)
	var sv *StructuralViolation
	require.ErrorAs(t, err, &sv)
	require.Equal(t, InvariantCycle, sv.Invariant)
}

func TestReparentRejectsAncestorUnderDescendant(t *testing.T) {
	repo := newFakeRepo()
	root := repo.seed(Account{OrgID: 1, Code: "1", Name: "Assets", Category: CategoryAsset})
	child := repo.seed(Account{OrgID: 1, Code: "1.1", Name: "Current", Category: CategoryAsset, ParentID: &root.ID})
	repo.seed(Account{OrgID: 1, Code: "1.1.1", Name: "Cash group", Category: CategoryAsset, ParentID: &child.ID})
	svc := NewService(repo, nil)

	// A descendant's code can never prefix its ancestor's, so the move dies
	// on the prefix rule before the cycle walk even runs.
	_, err := svc.Reparent(context.Background(), 1, "1", "1.1.1", 7)
	var sv *StructuralViolation
	require.ErrorAs(t, err, &sv)
	require.Equal(t, InvariantPrefix, sv.Invariant)
}

func TestDemoteLeafWithPostings(t *testing.T) {
	repo := newFakeRepo()
	leaf := repo.seed(Account{OrgID: 1, Code: "1.1.01", Name: "Till", Category: CategoryAsset, IsLeaf: true})
	repo.postings[leaf.ID] = true
	svc := NewService(repo, nil)

	err := svc.DemoteLeaf(context.Background(), 1, "1.1.01", 7)
	require.ErrorIs(t, err, ErrHasPostings)
	require.True(t, repo.byCode["1.1.01"].IsLeaf)
}

func TestPromoteLeafWithChildren(t *testing.T) {
	repo := newFakeRepo()
	parent := repo.seed(Account{OrgID: 1, Code: "1.1", Name: "Current", Category: CategoryAsset})
	repo.seed(Account{OrgID: 1, Code: "1.1.01", Name: "Till", Category: CategoryAsset, IsLeaf: true, ParentID: &parent.ID})
	svc := NewService(repo, nil)

	err := svc.PromoteLeaf(context.Background(), 1, "1.1", 7)
	var sv *StructuralViolation
	require.ErrorAs(t, err, &sv)
	require.Equal(t, InvariantLeafChildren, sv.Invariant)
}

func TestDeactivate(t *testing.T) {
	repo := newFakeRepo()
	repo.seed(Account{OrgID: 1, Code: "1.1.01", Name: "Till", Category: CategoryAsset, IsLeaf: true})
	svc := NewService(repo, nil)

	require.NoError(t, svc.Deactivate(context.Background(), 1, "1.1.01", 7))
	require.False(t, repo.byCode["1.1.01"].IsActive)
}
