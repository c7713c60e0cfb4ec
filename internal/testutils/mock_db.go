// Package testutils provides test doubles shared across packages.
package testutils

import (
	"context"
	"database/sql"

	"github.com/elevaite/api/internal/db"
)

// MockQuerier is a mock implementation of the db.Querier interface for testing purposes.
type MockQuerier struct {
	GetOrganizationFunc          func(ctx context.Context, id string) (db.Organization, error)
	GetAccountFunc               func(ctx context.Context, id string) (db.Account, error)
	GetProjectFunc               func(ctx context.Context, id string) (db.Project, error)
	GetUserFunc                  func(ctx context.Context, id string) (db.User, error)
	GetUserByEmailFunc           func(ctx context.Context, email string) (db.User, error)
	GetAPIKeyFunc                func(ctx context.Context, id string) (db.APIKey, error)
	GetApplicationFunc           func(ctx context.Context, id int64) (db.Application, error)
	GetConfigurationFunc         func(ctx context.Context, id string) (db.Configuration, error)
	GetInstanceFunc              func(ctx context.Context, id string) (db.Instance, error)
	GetDatasetFunc               func(ctx context.Context, id string) (db.Dataset, error)
	GetCollectionFunc            func(ctx context.Context, id string) (db.Collection, error)
	GetUserAccountFunc           func(ctx context.Context, arg db.GetUserAccountParams) (db.UserAccount, error)
	GetUserProjectFunc           func(ctx context.Context, arg db.GetUserProjectParams) (db.UserProject, error)
	HasRoleAllowFunc             func(ctx context.Context, arg db.HasRoleAllowParams) (bool, error)
	IsUserAssociatedUpToRootFunc func(ctx context.Context, arg db.IsUserAssociatedUpToRootParams) (bool, error)
	ListProjectApplicationsFunc  func(ctx context.Context, arg db.ListProjectApplicationsParams) ([]db.Application, error)
	ListProjectDatasetsFunc      func(ctx context.Context, arg db.ListProjectDatasetsParams) ([]db.Dataset, error)
	CreateAuditEventFunc         func(ctx context.Context, arg db.CreateAuditEventParams) error
}

func (m *MockQuerier) GetOrganization(ctx context.Context, id string) (db.Organization, error) {
	if m.GetOrganizationFunc != nil {
		return m.GetOrganizationFunc(ctx, id)
	}
	return db.Organization{}, sql.ErrNoRows
}

func (m *MockQuerier) GetAccount(ctx context.Context, id string) (db.Account, error) {
	if m.GetAccountFunc != nil {
		return m.GetAccountFunc(ctx, id)
	}
	return db.Account{}, sql.ErrNoRows
}

func (m *MockQuerier) GetProject(ctx context.Context, id string) (db.Project, error) {
	if m.GetProjectFunc != nil {
		return m.GetProjectFunc(ctx, id)
	}
	return db.Project{}, sql.ErrNoRows
}

func (m *MockQuerier) GetUser(ctx context.Context, id string) (db.User, error) {
	if m.GetUserFunc != nil {
		return m.GetUserFunc(ctx, id)
	}
	return db.User{}, sql.ErrNoRows
}

func (m *MockQuerier) GetUserByEmail(ctx context.Context, email string) (db.User, error) {
	if m.GetUserByEmailFunc != nil {
		return m.GetUserByEmailFunc(ctx, email)
	}
	return db.User{}, sql.ErrNoRows
}

func (m *MockQuerier) GetAPIKey(ctx context.Context, id string) (db.APIKey, error) {
	if m.GetAPIKeyFunc != nil {
		return m.GetAPIKeyFunc(ctx, id)
	}
	return db.APIKey{}, sql.ErrNoRows
}

func (m *MockQuerier) GetApplication(ctx context.Context, id int64) (db.Application, error) {
	if m.GetApplicationFunc != nil {
		return m.GetApplicationFunc(ctx, id)
	}
	return db.Application{}, sql.ErrNoRows
}

func (m *MockQuerier) GetConfiguration(ctx context.Context, id string) (db.Configuration, error) {
	if m.GetConfigurationFunc != nil {
		return m.GetConfigurationFunc(ctx, id)
	}
	return db.Configuration{}, sql.ErrNoRows
}

func (m *MockQuerier) GetInstance(ctx context.Context, id string) (db.Instance, error) {
	if m.GetInstanceFunc != nil {
		return m.GetInstanceFunc(ctx, id)
	}
	return db.Instance{}, sql.ErrNoRows
}

func (m *MockQuerier) GetDataset(ctx context.Context, id string) (db.Dataset, error) {
	if m.GetDatasetFunc != nil {
		return m.GetDatasetFunc(ctx, id)
	}
	return db.Dataset{}, sql.ErrNoRows
}

func (m *MockQuerier) GetCollection(ctx context.Context, id string) (db.Collection, error) {
	if m.GetCollectionFunc != nil {
		return m.GetCollectionFunc(ctx, id)
	}
	return db.Collection{}, sql.ErrNoRows
}

func (m *MockQuerier) GetUserAccount(ctx context.Context, arg db.GetUserAccountParams) (db.UserAccount, error) {
	if m.GetUserAccountFunc != nil {
		return m.GetUserAccountFunc(ctx, arg)
	}
	return db.UserAccount{}, sql.ErrNoRows
}

func (m *MockQuerier) GetUserProject(ctx context.Context, arg db.GetUserProjectParams) (db.UserProject, error) {
	if m.GetUserProjectFunc != nil {
		return m.GetUserProjectFunc(ctx, arg)
	}
	return db.UserProject{}, sql.ErrNoRows
}

func (m *MockQuerier) HasRoleAllow(ctx context.Context, arg db.HasRoleAllowParams) (bool, error) {
	if m.HasRoleAllowFunc != nil {
		return m.HasRoleAllowFunc(ctx, arg)
	}
	return false, nil
}

func (m *MockQuerier) IsUserAssociatedUpToRoot(ctx context.Context, arg db.IsUserAssociatedUpToRootParams) (bool, error) {
	if m.IsUserAssociatedUpToRootFunc != nil {
		return m.IsUserAssociatedUpToRootFunc(ctx, arg)
	}
	return true, nil
}

func (m *MockQuerier) ListProjectApplications(ctx context.Context, arg db.ListProjectApplicationsParams) ([]db.Application, error) {
	if m.ListProjectApplicationsFunc != nil {
		return m.ListProjectApplicationsFunc(ctx, arg)
	}
	return nil, nil
}

func (m *MockQuerier) ListProjectDatasets(ctx context.Context, arg db.ListProjectDatasetsParams) ([]db.Dataset, error) {
	if m.ListProjectDatasetsFunc != nil {
		return m.ListProjectDatasetsFunc(ctx, arg)
	}
	return nil, nil
}

func (m *MockQuerier) CreateAuditEvent(ctx context.Context, arg db.CreateAuditEventParams) error {
	if m.CreateAuditEventFunc != nil {
		return m.CreateAuditEventFunc(ctx, arg)
	}
	return nil
}
