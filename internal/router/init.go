package router

import (
	"github.com/nimbusbyte/user-auth-service/internal/application"
	"github.com/nimbusbyte/user-auth-service/internal/container"
	repouser "github.com/nimbusbyte/user-auth-service/internal/domain/repository"
	pginfra "github.com/nimbusbyte/user-auth-service/internal/infrastructure/postgres"
	handlers "github.com/nimbusbyte/user-auth-service/internal/interface/http"
	"github.com/nimbusbyte/user-auth-service/internal/router/modules"
)

type UserModuleDeps struct {
	Repo    repouser.UserRepository
	Service *application.Service
	Handler *handlers.UserHandler
}

func buildUserDeps() UserModuleDeps {
	cfg := container.GetConfig()
	repo := pginfra.NewUserRepository(container.GetPGPool())

	service := &application.Service{
		Repo:         repo,
		JWT:          container.GetJWT(),
		HashCost:     cfg.BcryptCost,
		Redis:        container.GetRedis(),
		Logger:       container.GetLogger(),
		Pub:          container.GetRabbitPub(),
		MailEnabled:  cfg.MailSendEnabled,
		GCS:          container.GetGCS(),
		GCSBucket:    cfg.GCSBucket,
		ES:           container.GetES(),
		ESUsersIndex: cfg.ESUsersIndex,
	}

	handler := handlers.NewUserHandler(service, container.GetLogger())

	return UserModuleDeps{
		Repo:    repo,
		Service: service,
		Handler: handler,
	}
}

// InitModules initializes all application modules and registers them with the
// router registry. Called once during startup.
func InitModules(r *Registry) {
	userDeps := buildUserDeps()
	r.Add(modules.NewUserModule(userDeps.Handler, container.GetJWT()))
}
