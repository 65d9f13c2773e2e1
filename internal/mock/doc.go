// Package mock groups GoMock mocks generated for the public interfaces of
// teammesh. Regenerate with go generate after changing an interface.
package mock

//go:generate mockgen -source=../../model/model.go -destination=model/model_mock.go -package=model
//go:generate mockgen -source=../../team/team.go -destination=team/team_mock.go -package=team
