package app

import (
	"gorm.io/gorm"

	"github.com/peakform/peakform-backend/internal/jobs"
	"github.com/peakform/peakform-backend/internal/platform/logger"
	"github.com/peakform/peakform-backend/internal/repos"
)

type Repos struct {
	Users   repos.UserRepo
	Jobs    jobs.Store
	Events  repos.ProgramJobEventRepo
	AICalls repos.AICallLogRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	log.Info("Wiring repos...")
	return Repos{
		Users:   repos.NewUserRepo(db, log),
		Jobs:    repos.NewProgramJobRepo(db, log),
		Events:  repos.NewProgramJobEventRepo(db, log),
		AICalls: repos.NewAICallLogRepo(db, log),
	}
}
